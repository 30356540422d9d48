package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/questarena/tournament-finance/models"
	"github.com/questarena/tournament-finance/notify"
	"github.com/questarena/tournament-finance/repositories"
)

// Notifier доставляет доменные события после коммита. Реализация обязана
// быть неблокирующей: сбой доставки логируется и никогда не влияет на
// финансовый результат.
type Notifier interface {
	Publish(event notify.Event)
}

// MoveParams описывает одно движение денег через леджер.
type MoveParams struct {
	UserID       int
	Amount       int64
	Type         models.TransactionType
	Reference    string // внешний idempotency key; пустой — сгенерировать
	Status       models.TransactionStatus
	TournamentID *int
	Details      models.Details
}

// WalletService — Wallet Ledger: все движения денег проходят через него.
// Каждый Debit/Credit — одна атомарная единица работы: блокировка строки
// пользователя, сдвиг баланса и append строки транзакции коммитятся вместе
// или не коммитятся вовсе.
type WalletService struct {
	runner       repositories.TxRunner
	users        repositories.UserRepository
	transactions repositories.TransactionRepository
	notifier     Notifier
	logger       *slog.Logger
	timeout      time.Duration
}

func NewWalletService(
	runner repositories.TxRunner,
	users repositories.UserRepository,
	transactions repositories.TransactionRepository,
	notifier Notifier,
	logger *slog.Logger,
	timeout time.Duration,
) *WalletService {
	return &WalletService{
		runner:       runner,
		users:        users,
		transactions: transactions,
		notifier:     notifier,
		logger:       logger,
		timeout:      timeout,
	}
}

func (s *WalletService) Debit(ctx context.Context, p MoveParams) (*models.Transaction, error) {
	var tx *models.Transaction
	err := s.runner.RunInTx(ctx, s.timeout, func(dbTx *sql.Tx) error {
		var txErr error
		tx, txErr = s.DebitTx(ctx, dbTx, p)
		return txErr
	})
	return tx, err
}

func (s *WalletService) Credit(ctx context.Context, p MoveParams) (*models.Transaction, error) {
	var tx *models.Transaction
	err := s.runner.RunInTx(ctx, s.timeout, func(dbTx *sql.Tx) error {
		var txErr error
		tx, txErr = s.CreditTx(ctx, dbTx, p)
		return txErr
	})
	return tx, err
}

// DebitTx списывает средства внутри транзакции вызывающего. Неполное
// списание невозможно: при нехватке средств не меняется ничего.
func (s *WalletService) DebitTx(ctx context.Context, exec repositories.SQLExecutor, p MoveParams) (*models.Transaction, error) {
	if !p.Type.IsDebit() {
		return nil, fmt.Errorf("%w: %s is not a debit type", ErrValidationFailed, p.Type)
	}
	return s.move(ctx, exec, p, -1)
}

// CreditTx зачисляет средства внутри транзакции вызывающего.
func (s *WalletService) CreditTx(ctx context.Context, exec repositories.SQLExecutor, p MoveParams) (*models.Transaction, error) {
	if !p.Type.IsCredit() {
		return nil, fmt.Errorf("%w: %s is not a credit type", ErrValidationFailed, p.Type)
	}
	return s.move(ctx, exec, p, 1)
}

func (s *WalletService) move(ctx context.Context, exec repositories.SQLExecutor, p MoveParams, sign int64) (*models.Transaction, error) {
	if p.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidationFailed)
	}
	if p.Status == "" {
		p.Status = models.TxStatusCompleted
	}

	if p.Reference == "" {
		p.Reference = uuid.NewString()
	} else {
		// Повтор вызова с той же ссылкой не применяет эффект второй раз.
		existing, err := s.transactions.FindByReference(ctx, exec, p.Reference)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if existing.UserID == p.UserID && existing.Type == p.Type && existing.Amount == p.Amount {
				return existing, nil
			}
			return nil, ErrDuplicateReference
		}
	}

	user, err := s.users.LockForUpdate(ctx, exec, p.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if sign < 0 && user.WalletBalance < p.Amount {
		return nil, ErrInsufficientFunds
	}

	if _, err := s.users.AdjustWalletBalance(ctx, exec, p.UserID, sign*p.Amount); err != nil {
		if errors.Is(err, repositories.ErrBalanceWouldGoNegative) {
			return nil, ErrInsufficientFunds
		}
		return nil, err
	}

	tx := &models.Transaction{
		UserID:       p.UserID,
		TournamentID: p.TournamentID,
		Type:         p.Type,
		Amount:       p.Amount,
		Reference:    p.Reference,
		Status:       p.Status,
		Details:      p.Details,
	}
	if err := s.transactions.Insert(ctx, exec, tx); err != nil {
		if errors.Is(err, repositories.ErrDuplicateReference) {
			return nil, ErrDuplicateReference
		}
		return nil, err
	}
	return tx, nil
}

func (s *WalletService) GetBalance(ctx context.Context, userID int) (int64, error) {
	user, err := s.users.GetByID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return user.WalletBalance, nil
}

// CheckLedgerInvariant сверяет баланс кошелька с суммой завершённых
// транзакций: balance == Σ(credits) − Σ(debits). Pending-удержания выводов
// входят в дебеты — деньги уже ушли с баланса.
func (s *WalletService) CheckLedgerInvariant(ctx context.Context, userID int) (bool, error) {
	balance, err := s.GetBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	credits, debits, err := s.transactions.SumCompletedByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance == credits-debits, nil
}

func (s *WalletService) ListUserTransactions(ctx context.Context, userID, limit, offset int) ([]models.Transaction, error) {
	return s.transactions.List(ctx, repositories.ListTransactionsFilter{
		UserID: &userID,
		Limit:  limit,
		Offset: offset,
	})
}

// ConfirmDeposit переводит подтверждённый платёжным шлюзом депозит в кредит
// кошелька. Reference приходит от шлюза и служит ключом идемпотентности.
func (s *WalletService) ConfirmDeposit(ctx context.Context, userID int, amount int64, reference string) (*models.Transaction, error) {
	if reference == "" {
		return nil, fmt.Errorf("%w: gateway reference is required", ErrValidationFailed)
	}
	return s.Credit(ctx, MoveParams{
		UserID:    userID,
		Amount:    amount,
		Type:      models.TxDeposit,
		Reference: reference,
	})
}

// RequestWithdrawal создаёт pending-вывод: средства удерживаются сразу,
// финальный статус проставляет шлюз через SetWithdrawalStatus.
func (s *WalletService) RequestWithdrawal(ctx context.Context, userID int, amount int64) (*models.Transaction, error) {
	return s.Debit(ctx, MoveParams{
		UserID: userID,
		Amount: amount,
		Type:   models.TxWithdrawal,
		Status: models.TxStatusPending,
	})
}

type withdrawalMove struct {
	from, to models.TransactionStatus
}

// Эффекты переходов статуса вывода. Явная таблица вместо цепочки if:
// незаявленная пара (from, to) — невалидный переход.
var withdrawalEffects = map[withdrawalMove]func(*WalletService, context.Context, repositories.SQLExecutor, *models.Transaction) error{
	// Шлюз подтвердил вывод: средства уже удержаны, баланс не трогаем.
	{models.TxStatusPending, models.TxStatusCompleted}: func(s *WalletService, ctx context.Context, exec repositories.SQLExecutor, tx *models.Transaction) error {
		return nil
	},
	// Шлюз отклонил: возвращаем удержанное.
	{models.TxStatusPending, models.TxStatusFailed}: func(s *WalletService, ctx context.Context, exec repositories.SQLExecutor, tx *models.Transaction) error {
		_, err := s.users.AdjustWalletBalance(ctx, exec, tx.UserID, tx.Amount)
		return err
	},
	// Повторная подача отклонённого вывода: удерживаем заново.
	{models.TxStatusFailed, models.TxStatusPending}: func(s *WalletService, ctx context.Context, exec repositories.SQLExecutor, tx *models.Transaction) error {
		user, err := s.users.LockForUpdate(ctx, exec, tx.UserID)
		if err != nil {
			return err
		}
		if user.WalletBalance < tx.Amount {
			return ErrInsufficientFunds
		}
		_, err = s.users.AdjustWalletBalance(ctx, exec, tx.UserID, -tx.Amount)
		return err
	},
}

// SetWithdrawalStatus применяет переход статуса вывода по таблице переходов.
func (s *WalletService) SetWithdrawalStatus(ctx context.Context, txID int, to models.TransactionStatus) (*models.Transaction, error) {
	var tx *models.Transaction
	err := s.runner.RunInTx(ctx, s.timeout, func(dbTx *sql.Tx) error {
		var err error
		tx, err = s.transactions.GetByID(ctx, dbTx, txID)
		if err != nil {
			if errors.Is(err, repositories.ErrTransactionNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}
		if tx.Type != models.TxWithdrawal {
			return ErrNotWithdrawal
		}

		effect, ok := withdrawalEffects[withdrawalMove{tx.Status, to}]
		if !ok {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidWithdrawalMove, tx.Status, to)
		}
		if err := effect(s, ctx, dbTx, tx); err != nil {
			return err
		}
		if err := s.transactions.UpdateStatusIf(ctx, dbTx, tx.ID, tx.Status, to); err != nil {
			if errors.Is(err, repositories.ErrTransactionStatusConflict) {
				return ErrConcurrencyConflict
			}
			return err
		}
		tx.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}

	if to == models.TxStatusCompleted {
		s.publish(notify.Event{
			Type:          notify.EventWithdrawalSettled,
			UserID:        tx.UserID,
			TransactionID: &tx.ID,
			Amount:        tx.Amount,
		})
	}
	return tx, nil
}

// publish отправляет событие после коммита; любой сбой только логируется.
func (s *WalletService) publish(event notify.Event) {
	if s.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("notification dispatch panicked",
				slog.String("type", string(event.Type)), slog.Any("panic", r))
		}
	}()
	s.notifier.Publish(event)
}
