package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TransactionType представляет типы записей леджера, соответствующие ENUM в БД.
type TransactionType string

const (
	TxDeposit           TransactionType = "deposit"
	TxWithdrawal        TransactionType = "withdrawal"
	TxTournamentEntry   TransactionType = "tournament_entry"
	TxTournamentFunding TransactionType = "tournament_funding"
	TxPrizePayout       TransactionType = "prize_payout"
	TxRefund            TransactionType = "refund"
	TxClawback          TransactionType = "clawback"
)

// IsCredit reports whether the type increases the wallet balance.
func (t TransactionType) IsCredit() bool {
	switch t {
	case TxDeposit, TxPrizePayout, TxRefund:
		return true
	}
	return false
}

// IsDebit reports whether the type decreases the wallet balance.
func (t TransactionType) IsDebit() bool {
	switch t {
	case TxWithdrawal, TxTournamentEntry, TxTournamentFunding, TxClawback:
		return true
	}
	return false
}

type TransactionStatus string

const (
	TxStatusPending   TransactionStatus = "pending"
	TxStatusCompleted TransactionStatus = "completed"
	TxStatusFailed    TransactionStatus = "failed"
	TxStatusDisputed  TransactionStatus = "disputed"
	TxStatusRefunded  TransactionStatus = "refunded"
)

// Details — свободный audit payload транзакции (JSONB).
type Details map[string]interface{}

func (d Details) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

func (d *Details) Scan(src interface{}) error {
	if src == nil {
		*d = Details{}
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("details: unsupported scan type %T", src)
	}
	return json.Unmarshal(raw, d)
}

// Transaction — запись в append-only леджере. Amount всегда > 0, направление
// определяется типом. После статуса completed допустим единственный переход в refunded.
type Transaction struct {
	ID           int               `json:"id" db:"id"`
	UserID       int               `json:"user_id" db:"user_id"`
	TournamentID *int              `json:"tournament_id,omitempty" db:"tournament_id"`
	Type         TransactionType   `json:"type" db:"type"`
	Amount       int64             `json:"amount" db:"amount"`
	Reference    string            `json:"reference" db:"reference"`
	Status       TransactionStatus `json:"status" db:"status"`
	Details      Details           `json:"details,omitempty" db:"details"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
}
