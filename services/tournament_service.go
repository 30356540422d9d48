package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/questarena/tournament-finance/models"
	"github.com/questarena/tournament-finance/prizes"
	"github.com/questarena/tournament-finance/repositories"
)

// TournamentService — Tournament Registry: жизненный цикл документа турнира,
// валидация конфигурации и ручные переходы статуса.
type TournamentService struct {
	runner      repositories.TxRunner
	tournaments repositories.TournamentRepository
	wallet      *WalletService
	logger      *slog.Logger
	timeout     time.Duration
	now         func() time.Time
}

func NewTournamentService(
	runner repositories.TxRunner,
	tournaments repositories.TournamentRepository,
	wallet *WalletService,
	logger *slog.Logger,
	timeout time.Duration,
) *TournamentService {
	return &TournamentService{
		runner:      runner,
		tournaments: tournaments,
		wallet:      wallet,
		logger:      logger,
		timeout:     timeout,
		now:         time.Now,
	}
}

// CreateTournament нормализует payload, проверяет призовую конфигурацию и
// создаёт турнир. При fundingMethod=wallet призовой фонд списывается с
// организатора в той же транзакции, что и вставка документа. Второй
// результат — сигнал "funding required" для метода topup: внешний платёжный
// поток, здесь ничего не списывается.
func (s *TournamentService) CreateTournament(ctx context.Context, actor Actor, payload models.CreateTournamentPayload) (*models.Tournament, bool, error) {
	t, tzFellBack, err := payload.Normalize(s.now())
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if tzFellBack {
		// Вероятная замаскированная ошибка конфигурации: исходное поведение
		// сохранено (fallback на UTC), но событие видно в логах.
		s.logger.Warn("unknown timezone on tournament creation, falling back to UTC",
			slog.String("timezone", payload.Timezone), slog.String("title", t.Title))
	}
	t.OrganizerID = actor.ID

	if err := prizes.ValidateConfig(t.PrizeType, t.PrizeConfig); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	pool, err := prizes.TotalPool(t.PrizeType, t.PrizeConfig)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if t.EntryFee > pool {
		return nil, false, ErrEntryFeeExceedsPool
	}

	fundingRequired := t.FundingMethod == models.FundingTopup

	err = s.runner.RunInTx(ctx, s.timeout, func(dbTx *sql.Tx) error {
		if err := s.tournaments.Create(ctx, dbTx, t); err != nil {
			return err
		}
		if t.FundingMethod == models.FundingWallet && pool > 0 {
			_, err := s.wallet.DebitTx(ctx, dbTx, MoveParams{
				UserID:       actor.ID,
				Amount:       pool,
				Type:         models.TxTournamentFunding,
				TournamentID: &t.ID,
				Details:      models.Details{"title": t.Title},
			})
			return err
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	s.logger.Info("tournament created",
		slog.Int("tournament_id", t.ID),
		slog.Int("organizer_id", actor.ID),
		slog.String("prize_type", string(t.PrizeType)),
		slog.Int64("prize_pool", pool))
	return t, fundingRequired, nil
}

func (s *TournamentService) GetTournament(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.tournaments.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	participants, err := s.tournaments.ListParticipants(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	t.Participants = participants
	return t, nil
}

func (s *TournamentService) ListTournaments(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	return s.tournaments.List(ctx, filter)
}

// SetStatus — явный ручной переход статуса (организатор или админ).
// Единственный путь изменить статус турнира с manualOverride=true.
// Отмена сюда не входит: она идёт через Settlement Engine, т.к. тянет
// за собой возвраты.
func (s *TournamentService) SetStatus(ctx context.Context, actor Actor, id int, next models.TournamentStatus) (*models.Tournament, error) {
	if next == models.StatusCancelled {
		return nil, fmt.Errorf("%w: cancellation must go through the cancel operation", ErrValidationFailed)
	}

	var t *models.Tournament
	err := s.runner.RunInTx(ctx, s.timeout, func(dbTx *sql.Tx) error {
		var err error
		t, err = s.tournaments.GetByID(ctx, dbTx, id)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}
		if !actor.IsAdmin() && actor.ID != t.OrganizerID {
			return ErrForbiddenOperation
		}
		if !models.IsValidStatusTransition(t.Status, next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, t.Status, next)
		}
		if t.Status == next {
			return nil
		}

		now := s.now()
		if err := s.tournaments.ApplyTransition(ctx, dbTx, t.ID, t.Status, next, now); err != nil {
			if errors.Is(err, repositories.ErrTournamentStatusConflict) {
				return ErrConcurrencyConflict
			}
			return err
		}
		switch next {
		case models.StatusActive:
			if t.ActualStart == nil {
				t.ActualStart = &now
			}
		case models.StatusCompleted:
			// Досрочное завершение организатором (подача результатов).
			if t.ActualEnd == nil {
				t.ActualEnd = &now
			}
		}
		t.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// SetManualOverride замораживает или размораживает автоматические переходы.
func (s *TournamentService) SetManualOverride(ctx context.Context, actor Actor, id int, frozen bool) error {
	t, err := s.GetTournament(ctx, id)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && actor.ID != t.OrganizerID {
		return ErrForbiddenOperation
	}
	return s.tournaments.SetManualOverride(ctx, nil, id, frozen)
}
