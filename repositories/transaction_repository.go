package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/questarena/tournament-finance/models"
)

var (
	ErrTransactionNotFound       = errors.New("transaction not found")
	ErrDuplicateReference        = errors.New("transaction reference already exists")
	ErrTransactionStatusConflict = errors.New("transaction status changed concurrently")
)

type ListTransactionsFilter struct {
	UserID       *int
	TournamentID *int
	Type         *models.TransactionType
	Status       *models.TransactionStatus
	Limit        int
	Offset       int
}

type TransactionRepository interface {
	// Insert добавляет строку в append-only леджер. Уникальность reference
	// гарантируется констрейнтом БД.
	Insert(ctx context.Context, exec SQLExecutor, t *models.Transaction) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Transaction, error)
	// FindByReference возвращает (nil, nil), если ссылки ещё нет.
	FindByReference(ctx context.Context, exec SQLExecutor, reference string) (*models.Transaction, error)
	// UpdateStatusIf переводит статус только из ожидаемого from.
	UpdateStatusIf(ctx context.Context, exec SQLExecutor, id int, from, to models.TransactionStatus) error
	List(ctx context.Context, filter ListTransactionsFilter) ([]models.Transaction, error)
	// ListByTournamentAndType — строки леджера турнира в заданном статусе,
	// внутри транзакции (для refund-all).
	ListByTournamentAndType(ctx context.Context, exec SQLExecutor, tournamentID int, txType models.TransactionType, status models.TransactionStatus) ([]models.Transaction, error)
	// SumCompletedByUser возвращает сумму завершённых кредитов и дебетов —
	// для сверки инварианта баланса. Pending-выводы считаются дебетами:
	// удержание уже списано с баланса.
	SumCompletedByUser(ctx context.Context, userID int) (credits, debits int64, err error)
}

type postgresTransactionRepository struct {
	db *sql.DB
}

func NewPostgresTransactionRepository(db *sql.DB) TransactionRepository {
	return &postgresTransactionRepository{db: db}
}

func (r *postgresTransactionRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const transactionColumns = `id, user_id, tournament_id, type, amount, reference, status, details, created_at`

func scanTransaction(scan func(dest ...interface{}) error) (*models.Transaction, error) {
	t := &models.Transaction{}
	err := scan(&t.ID, &t.UserID, &t.TournamentID, &t.Type, &t.Amount, &t.Reference, &t.Status, &t.Details, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *postgresTransactionRepository) Insert(ctx context.Context, exec SQLExecutor, t *models.Transaction) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO transactions (user_id, tournament_id, type, amount, reference, status, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		t.UserID, t.TournamentID, t.Type, t.Amount, t.Reference, t.Status, t.Details,
	).Scan(&t.ID, &t.CreatedAt)

	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return ErrDuplicateReference
	}
	return err
}

func (r *postgresTransactionRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Transaction, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	t, err := scanTransaction(executor.QueryRowContext(ctx, query, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *postgresTransactionRepository) FindByReference(ctx context.Context, exec SQLExecutor, reference string) (*models.Transaction, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1`

	t, err := scanTransaction(executor.QueryRowContext(ctx, query, reference).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (r *postgresTransactionRepository) UpdateStatusIf(ctx context.Context, exec SQLExecutor, id int, from, to models.TransactionStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE transactions SET status = $1 WHERE id = $2 AND status = $3`
	result, err := executor.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTransactionStatusConflict)
}

func (r *postgresTransactionRepository) List(ctx context.Context, filter ListTransactionsFilter) ([]models.Transaction, error) {
	executor := r.getExecutor(nil)
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`

	args := []interface{}{}
	argID := 1

	if filter.UserID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argID)
		args = append(args, *filter.UserID)
		argID++
	}
	if filter.TournamentID != nil {
		query += fmt.Sprintf(" AND tournament_id = $%d", argID)
		args = append(args, *filter.TournamentID)
		argID++
	}
	if filter.Type != nil {
		query += fmt.Sprintf(" AND type = $%d", argID)
		args = append(args, *filter.Type)
		argID++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]models.Transaction, 0)
	for rows.Next() {
		t, scanErr := scanTransaction(rows.Scan)
		if scanErr != nil {
			return nil, scanErr
		}
		transactions = append(transactions, *t)
	}
	return transactions, rows.Err()
}

func (r *postgresTransactionRepository) ListByTournamentAndType(ctx context.Context, exec SQLExecutor, tournamentID int, txType models.TransactionType, status models.TransactionStatus) ([]models.Transaction, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE tournament_id = $1 AND type = $2 AND status = $3
		ORDER BY id`

	rows, err := executor.QueryContext(ctx, query, tournamentID, txType, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]models.Transaction, 0)
	for rows.Next() {
		t, scanErr := scanTransaction(rows.Scan)
		if scanErr != nil {
			return nil, scanErr
		}
		transactions = append(transactions, *t)
	}
	return transactions, rows.Err()
}

func (r *postgresTransactionRepository) SumCompletedByUser(ctx context.Context, userID int) (int64, int64, error) {
	executor := r.getExecutor(nil)
	query := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE type IN ('deposit', 'prize_payout', 'refund')), 0),
			COALESCE(SUM(amount) FILTER (WHERE type IN ('withdrawal', 'tournament_entry', 'tournament_funding', 'clawback')), 0)
		FROM transactions
		WHERE user_id = $1
		  AND (status = 'completed' OR (type = 'withdrawal' AND status = 'pending'))`

	var credits, debits int64
	if err := executor.QueryRowContext(ctx, query, userID).Scan(&credits, &debits); err != nil {
		return 0, 0, err
	}
	return credits, debits, nil
}
