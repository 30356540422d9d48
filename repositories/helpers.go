package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLExecutor абстрагирует *sql.DB и *sql.Tx, чтобы методы репозиториев
// могли выполняться внутри чужой транзакции.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func checkAffectedRows(result sql.Result, notFoundError error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return notFoundError // Возвращаем переданную ошибку "не найдено"
	}
	return nil
}

// TxRunner выполняет функцию в границах одной транзакции БД. Сервисы
// зависят от интерфейса, а не от *sql.DB, чтобы атомарные единицы работы
// можно было проверять без реальной базы.
type TxRunner interface {
	RunInTx(ctx context.Context, timeout time.Duration, fn func(tx *sql.Tx) error) error
}

type dbTxRunner struct {
	db *sql.DB
}

func NewTxRunner(db *sql.DB) TxRunner {
	return dbTxRunner{db: db}
}

func (r dbTxRunner) RunInTx(ctx context.Context, timeout time.Duration, fn func(tx *sql.Tx) error) error {
	return RunInTx(ctx, r.db, timeout, fn)
}

// RunInTx выполняет fn в одной транзакции с ограниченным таймаутом.
// Любая ошибка из fn откатывает транзакцию целиком — частичных эффектов
// не остаётся.
func RunInTx(ctx context.Context, db *sql.DB, timeout time.Duration, fn func(tx *sql.Tx) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
