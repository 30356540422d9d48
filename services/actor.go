package services

import (
	"context"
	"errors"

	"github.com/questarena/tournament-finance/models"
	"github.com/questarena/tournament-finance/repositories"
)

// Actor — аутентифицированный вызывающий, как его передал Auth-коллаборатор.
type Actor struct {
	ID   int
	Role models.UserRole
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// IdentityChecker — Identity-коллаборатор: привязан ли внешний аккаунт.
type IdentityChecker interface {
	IdentityLinked(ctx context.Context, userID int) (bool, error)
}

// RepoIdentityChecker читает флаг привязки из профиля пользователя.
type RepoIdentityChecker struct {
	users repositories.UserRepository
}

func NewRepoIdentityChecker(users repositories.UserRepository) *RepoIdentityChecker {
	return &RepoIdentityChecker{users: users}
}

func (c *RepoIdentityChecker) IdentityLinked(ctx context.Context, userID int) (bool, error) {
	user, err := c.users.GetByID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return false, ErrUserNotFound
		}
		return false, err
	}
	return user.IdentityLinked(), nil
}
