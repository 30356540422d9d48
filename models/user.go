package models

import "time"

// UserRole определяет роль пользователя, соответствует ENUM в БД.
type UserRole string

const (
	RoleUser      UserRole = "user"
	RoleOrganizer UserRole = "organizer"
	RoleAdmin     UserRole = "admin"
)

// User представляет пользователя с кастодиальным кошельком.
// WalletBalance хранится в минорных единицах и изменяется только через Wallet Ledger.
type User struct {
	ID            int       `json:"id" db:"id"`
	Email         string    `json:"email" db:"email"`
	Nickname      *string   `json:"nickname,omitempty" db:"nickname"`
	Role          UserRole  `json:"role" db:"role"`
	WalletBalance int64     `json:"wallet_balance" db:"wallet_balance"`
	ExternalID    *string   `json:"-" db:"external_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// IdentityLinked reports whether the external identity collaborator has linked this user.
func (u *User) IdentityLinked() bool {
	return u.ExternalID != nil && *u.ExternalID != ""
}
