package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/questarena/tournament-finance/models"
)

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrBalanceWouldGoNegative = errors.New("wallet balance would go negative")
)

type UserRepository interface {
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.User, error)
	// LockForUpdate берёт блокировку строки пользователя на время транзакции.
	LockForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.User, error)
	// AdjustWalletBalance атомарно сдвигает баланс на delta (серверная
	// арифметика) с защитой от ухода в минус; возвращает новый баланс.
	AdjustWalletBalance(ctx context.Context, exec SQLExecutor, id int, delta int64) (int64, error)
}

type postgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) UserRepository {
	return &postgresUserRepository{db: db}
}

func (r *postgresUserRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const userColumns = `id, email, nickname, role, wallet_balance, external_id, created_at`

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Email, &u.Nickname, &u.Role, &u.WalletBalance, &u.ExternalID, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *postgresUserRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.User, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(executor.QueryRowContext(ctx, query, id))
}

func (r *postgresUserRepository) LockForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.User, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	return scanUser(executor.QueryRowContext(ctx, query, id))
}

func (r *postgresUserRepository) AdjustWalletBalance(ctx context.Context, exec SQLExecutor, id int, delta int64) (int64, error) {
	executor := r.getExecutor(exec)
	query := `
		UPDATE users
		SET wallet_balance = wallet_balance + $1
		WHERE id = $2 AND wallet_balance + $1 >= 0
		RETURNING wallet_balance`

	var balance int64
	err := executor.QueryRowContext(ctx, query, delta, id).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Строка есть, но guard не прошёл, либо пользователя нет.
			// Вызывающий различает это по предшествующему LockForUpdate.
			return 0, ErrBalanceWouldGoNegative
		}
		return 0, err
	}
	return balance, nil
}
