package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/questarena/tournament-finance/models"
	"github.com/questarena/tournament-finance/notify"
	"github.com/questarena/tournament-finance/prizes"
	"github.com/questarena/tournament-finance/repositories"
	"golang.org/x/sync/errgroup"
)

const bulkConcurrency = 4

// SettlementService — Settlement Engine: оркестрирует Wallet Ledger,
// Tournament Registry и Prize Calculator. Каждая операция — одна атомарная
// единица работы; события уходят только после коммита.
type SettlementService struct {
	runner       repositories.TxRunner
	tournaments  repositories.TournamentRepository
	transactions repositories.TransactionRepository
	wallet       *WalletService
	identity     IdentityChecker
	notifier     Notifier
	logger       *slog.Logger
	timeout      time.Duration
}

func NewSettlementService(
	runner repositories.TxRunner,
	tournaments repositories.TournamentRepository,
	transactions repositories.TransactionRepository,
	wallet *WalletService,
	identity IdentityChecker,
	notifier Notifier,
	logger *slog.Logger,
	timeout time.Duration,
) *SettlementService {
	return &SettlementService{
		runner:       runner,
		tournaments:  tournaments,
		transactions: transactions,
		wallet:       wallet,
		identity:     identity,
		notifier:     notifier,
		logger:       logger,
		timeout:      timeout,
	}
}

func (s *SettlementService) getTournament(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	t, err := s.tournaments.GetByID(ctx, exec, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

// Register записывает пользователя в турнир: списание entry fee и добавление
// в участники коммитятся вместе или не происходят вовсе.
func (s *SettlementService) Register(ctx context.Context, tournamentID, userID int) (*models.Transaction, error) {
	// Проверка коллаборатора выполняется до атомарной границы.
	linked, err := s.identity.IdentityLinked(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !linked {
		return nil, ErrIdentityNotLinked
	}

	var entryTx *models.Transaction
	err = s.runner.RunInTx(ctx, s.timeout, func(dbTx *sql.Tx) error {
		t, err := s.getTournament(ctx, dbTx, tournamentID)
		if err != nil {
			return err
		}
		if t.Status != models.StatusUpcoming {
			if t.Status == models.StatusCancelled {
				return ErrAlreadyCancelled
			}
			return ErrRegistrationClosed
		}

		registered, err := s.tournaments.IsParticipant(ctx, dbTx, tournamentID, userID)
		if err != nil {
			return err
		}
		if registered {
			return ErrAlreadyRegistered
		}

		if t.EntryFee > 0 {
			entryTx, err = s.wallet.DebitTx(ctx, dbTx, MoveParams{
				UserID:       userID,
				Amount:       t.EntryFee,
				Type:         models.TxTournamentEntry,
				TournamentID: &tournamentID,
			})
			if err != nil {
				return err
			}
		}

		if err := s.tournaments.AddParticipant(ctx, dbTx, tournamentID, userID); err != nil {
			if errors.Is(err, repositories.ErrParticipantExists) {
				return ErrAlreadyRegistered
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := notify.Event{
		Type:         notify.EventRegistrationConfirmed,
		UserID:       userID,
		TournamentID: &tournamentID,
	}
	if entryTx != nil {
		event.TransactionID = &entryTx.ID
		event.Amount = entryTx.Amount
	}
	s.publish(event)
	return entryTx, nil
}

// Fund вносит призовой фонд турнира. Для method=wallet — списание с
// организатора; для topup возвращается сигнал "funding required" без
// каких-либо мутаций (внешний платёжный поток).
func (s *SettlementService) Fund(ctx context.Context, tournamentID, organizerID int, totalPool int64, method models.FundingMethod) (*models.Transaction, bool, error) {
	if totalPool <= 0 {
		return nil, false, fmt.Errorf("%w: total pool must be positive", ErrValidationFailed)
	}

	switch method {
	case models.FundingTopup:
		return nil, true, nil
	case models.FundingDirect:
		return nil, false, nil
	case models.FundingWallet:
	default:
		return nil, false, fmt.Errorf("%w: unknown funding method %q", ErrValidationFailed, method)
	}

	var fundingTx *models.Transaction
	err := s.runner.RunInTx(ctx, s.timeout, func(dbTx *sql.Tx) error {
		t, err := s.getTournament(ctx, dbTx, tournamentID)
		if err != nil {
			return err
		}
		if !t.AcceptsMoney() {
			return ErrAlreadyProcessed
		}
		fundingTx, err = s.wallet.DebitTx(ctx, dbTx, MoveParams{
			UserID:       organizerID,
			Amount:       totalPool,
			Type:         models.TxTournamentFunding,
			TournamentID: &tournamentID,
		})
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return fundingTx, false, nil
}

// Payout вычисляет распределение призов и выплачивает его. Защёлка
// prizesDistributed срабатывает ровно один раз; повторный вызов после
// успеха — ErrAlreadyProcessed.
func (s *SettlementService) Payout(ctx context.Context, actor Actor, tournamentID int, results []models.RankedResult) ([]prizes.Award, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: ranked results are required", ErrValidationFailed)
	}

	var (
		awards   []prizes.Award
		awardTxs []*models.Transaction
	)
	err := s.runner.RunInTx(ctx, s.timeout, func(dbTx *sql.Tx) error {
		t, err := s.getTournament(ctx, dbTx, tournamentID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && actor.ID != t.OrganizerID {
			return ErrForbiddenOperation
		}
		if t.Status != models.StatusCompleted {
			if t.Status == models.StatusCancelled {
				return ErrAlreadyCancelled
			}
			return ErrTournamentNotCompleted
		}
		if t.PrizesDistributed {
			return ErrAlreadyProcessed
		}

		for _, r := range results {
			registered, err := s.tournaments.IsParticipant(ctx, dbTx, tournamentID, r.UserID)
			if err != nil {
				return err
			}
			if !registered {
				return fmt.Errorf("%w: user %d", ErrResultNotParticipant, r.UserID)
			}
		}

		awards, err = prizes.Compute(t.PrizeType, t.PrizeConfig, results)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}

		awardTxs = awardTxs[:0]
		for _, a := range awards {
			tx, err := s.wallet.CreditTx(ctx, dbTx, MoveParams{
				UserID:       a.UserID,
				Amount:       a.Amount,
				Type:         models.TxPrizePayout,
				TournamentID: &tournamentID,
				Details:      models.Details{"position": a.Position},
			})
			if err != nil {
				return err
			}
			awardTxs = append(awardTxs, tx)
		}

		if err := s.tournaments.SetPrizesDistributedIf(ctx, dbTx, tournamentID); err != nil {
			if errors.Is(err, repositories.ErrTournamentStatusConflict) {
				return ErrAlreadyProcessed
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, a := range awards {
		s.publish(notify.Event{
			Type:          notify.EventPrizeAwarded,
			UserID:        a.UserID,
			TournamentID:  &tournamentID,
			TransactionID: &awardTxs[i].ID,
			Amount:        a.Amount,
			Position:      a.Position,
		})
	}
	s.logger.Info("tournament prizes distributed",
		slog.Int("tournament_id", tournamentID), slog.Int("awards", len(awards)))
	return awards, nil
}

// CancelAndRefund отменяет турнир (терминально) и возвращает entry fee всем
// участникам с завершённой entry-транзакцией — в одной атомарной единице.
// Повторный вызов — ErrAlreadyCancelled.
func (s *SettlementService) CancelAndRefund(ctx context.Context, tournamentID int, reason string) error {
	var refunded []models.Transaction
	err := s.runner.RunInTx(ctx, s.timeout, func(dbTx *sql.Tx) error {
		t, err := s.getTournament(ctx, dbTx, tournamentID)
		if err != nil {
			return err
		}
		if t.Status == models.StatusCancelled {
			return ErrAlreadyCancelled
		}
		if t.Status == models.StatusCompleted && t.PrizesDistributed {
			return ErrAlreadyProcessed
		}

		entries, err := s.transactions.ListByTournamentAndType(ctx, dbTx, tournamentID, models.TxTournamentEntry, models.TxStatusCompleted)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if _, err := s.wallet.CreditTx(ctx, dbTx, MoveParams{
				UserID:       entry.UserID,
				Amount:       entry.Amount,
				Type:         models.TxRefund,
				TournamentID: &tournamentID,
				Details:      models.Details{"original_tx_id": entry.ID, "reason": reason},
			}); err != nil {
				return err
			}
			if err := s.transactions.UpdateStatusIf(ctx, dbTx, entry.ID, models.TxStatusCompleted, models.TxStatusRefunded); err != nil {
				return err
			}
			if err := s.tournaments.RemoveParticipant(ctx, dbTx, tournamentID, entry.UserID); err != nil {
				// Участник мог уйти по индивидуальному возврату раньше.
				if !errors.Is(err, repositories.ErrParticipantNotFound) {
					return err
				}
			}
		}

		if err := s.tournaments.UpdateStatusIf(ctx, dbTx, tournamentID, t.Status, models.StatusCancelled); err != nil {
			if errors.Is(err, repositories.ErrTournamentStatusConflict) {
				return ErrConcurrencyConflict
			}
			return err
		}
		refunded = entries
		return nil
	})
	if err != nil {
		return err
	}

	for _, entry := range refunded {
		s.publish(notify.Event{
			Type:         notify.EventTournamentCancelled,
			UserID:       entry.UserID,
			TournamentID: &tournamentID,
			Amount:       entry.Amount,
			Reason:       reason,
		})
	}
	s.logger.Info("tournament cancelled",
		slog.Int("tournament_id", tournamentID),
		slog.Int("refunds", len(refunded)),
		slog.String("reason", reason))
	return nil
}

// Refund возвращает (возможно частично) ранее завершённую транзакцию.
// Оригинал получает единственный допустимый переход completed -> refunded;
// повторный возврат — ошибка, никогда не тихий no-op.
func (s *SettlementService) Refund(ctx context.Context, originalTxID int, amount int64, reason string, toWallet bool) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidationFailed)
	}

	var refundTx *models.Transaction
	err := s.runner.RunInTx(ctx, s.timeout, func(dbTx *sql.Tx) error {
		original, err := s.transactions.GetByID(ctx, dbTx, originalTxID)
		if err != nil {
			if errors.Is(err, repositories.ErrTransactionNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}
		if original.Status == models.TxStatusRefunded {
			return ErrAlreadyProcessed
		}
		if original.Status != models.TxStatusCompleted {
			return ErrRefundNotCompleted
		}
		if amount > original.Amount {
			return ErrRefundExceedsOriginal
		}

		if original.TournamentID != nil {
			t, err := s.getTournament(ctx, dbTx, *original.TournamentID)
			if err != nil {
				return err
			}
			if !t.AcceptsMoney() {
				return ErrAlreadyProcessed
			}
		}

		if toWallet {
			refundTx, err = s.wallet.CreditTx(ctx, dbTx, MoveParams{
				UserID:       original.UserID,
				Amount:       amount,
				Type:         models.TxRefund,
				TournamentID: original.TournamentID,
				Details:      models.Details{"original_tx_id": original.ID, "reason": reason},
			})
			if err != nil {
				return err
			}
		}

		if err := s.transactions.UpdateStatusIf(ctx, dbTx, original.ID, models.TxStatusCompleted, models.TxStatusRefunded); err != nil {
			if errors.Is(err, repositories.ErrTransactionStatusConflict) {
				return ErrConcurrencyConflict
			}
			return err
		}

		if original.Type == models.TxTournamentEntry && original.TournamentID != nil {
			if err := s.tournaments.RemoveParticipant(ctx, dbTx, *original.TournamentID, original.UserID); err != nil {
				if !errors.Is(err, repositories.ErrParticipantNotFound) {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refundTx, nil
}

// Clawback — административное списание без ссылки на исходную транзакцию;
// используется для отзыва ошибочных зачислений.
func (s *SettlementService) Clawback(ctx context.Context, userID int, amount int64, reason string) (*models.Transaction, error) {
	return s.wallet.Debit(ctx, MoveParams{
		UserID:  userID,
		Amount:  amount,
		Type:    models.TxClawback,
		Details: models.Details{"reason": reason},
	})
}

// ClawbackAll обнуляет баланс пользователя одним атомарным списанием
// текущего остатка.
func (s *SettlementService) ClawbackAll(ctx context.Context, userID int, reason string) (*models.Transaction, error) {
	var tx *models.Transaction
	err := s.runner.RunInTx(ctx, s.timeout, func(dbTx *sql.Tx) error {
		user, err := s.wallet.users.LockForUpdate(ctx, dbTx, userID)
		if err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if user.WalletBalance <= 0 {
			return ErrNothingToClawback
		}
		tx, err = s.wallet.DebitTx(ctx, dbTx, MoveParams{
			UserID:  userID,
			Amount:  user.WalletBalance,
			Type:    models.TxClawback,
			Details: models.Details{"reason": reason, "full_balance": true},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

type RefundItem struct {
	TransactionID int    `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason"`
	ToWallet      bool   `json:"to_wallet"`
}

type ClawbackItem struct {
	UserID int    `json:"user_id"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// BulkResult — итог одного элемента bulk-операции.
type BulkResult struct {
	Index         int    `json:"index"`
	TransactionID int    `json:"transaction_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

// BulkRefund применяет Refund к каждому элементу независимо: ошибка одного
// не откатывает и не прерывает остальные.
func (s *SettlementService) BulkRefund(ctx context.Context, items []RefundItem) []BulkResult {
	results := make([]BulkResult, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			results[i] = BulkResult{Index: i}
			tx, err := s.Refund(gctx, item.TransactionID, item.Amount, item.Reason, item.ToWallet)
			if err != nil {
				results[i].Error = err.Error()
				return nil // ошибки отражаются поэлементно
			}
			if tx != nil {
				results[i].TransactionID = tx.ID
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// BulkClawback применяет Clawback к каждому элементу независимо.
func (s *SettlementService) BulkClawback(ctx context.Context, items []ClawbackItem) []BulkResult {
	results := make([]BulkResult, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			results[i] = BulkResult{Index: i}
			tx, err := s.Clawback(gctx, item.UserID, item.Amount, item.Reason)
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}
			results[i].TransactionID = tx.ID
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// ListTransactions — read-only выборка леджера для Admin Reporting.
func (s *SettlementService) ListTransactions(ctx context.Context, filter repositories.ListTransactionsFilter) ([]models.Transaction, error) {
	return s.transactions.List(ctx, filter)
}

func (s *SettlementService) publish(event notify.Event) {
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
