package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/questarena/tournament-finance/models"
	"github.com/questarena/tournament-finance/repositories"
)

// StatusScheduler периодически переводит турниры по расписанию:
// upcoming -> active при наступлении startAt, active -> completed по
// истечении duration. Турниры с manualOverride=true пропускаются на уровне
// SQL (ListDue и условные UPDATE их не видят).
type StatusScheduler struct {
	tournaments repositories.TournamentRepository
	logger      *slog.Logger
	interval    time.Duration
	now         func() time.Time
}

func NewStatusScheduler(tournaments repositories.TournamentRepository, logger *slog.Logger, interval time.Duration) *StatusScheduler {
	return &StatusScheduler{
		tournaments: tournaments,
		logger:      logger,
		interval:    interval,
		now:         time.Now,
	}
}

// RunOnce выполняет один проход: находит турниры, чьё время пришло, и
// применяет переходы. Конфликт condition-UPDATE (кто-то поменял статус между
// выборкой и апдейтом) повторяется один раз на свежем чтении; повторный
// конфликт — пропуск до следующего тика.
func (s *StatusScheduler) RunOnce(ctx context.Context) {
	now := s.now().UTC()
	due, err := s.tournaments.ListDue(ctx, nil, now)
	if err != nil {
		s.logger.Error("scheduler sweep failed", slog.Any("error", err))
		return
	}

	for _, t := range due {
		if err := s.advance(ctx, t, now); err != nil {
			s.logger.Error("scheduler transition failed",
				slog.Int("tournament_id", t.ID),
				slog.String("status", string(t.Status)),
				slog.Any("error", err))
		}
	}
}

func (s *StatusScheduler) advance(ctx context.Context, t *models.Tournament, now time.Time) error {
	err := s.applyDue(ctx, t, now)
	if !errors.Is(err, repositories.ErrTournamentStatusConflict) {
		return err
	}

	// Одна повторная попытка на свежем состоянии.
	fresh, err := s.tournaments.GetByID(ctx, nil, t.ID)
	if err != nil {
		return err
	}
	if fresh.ManualOverride {
		return nil
	}
	err = s.applyDue(ctx, fresh, now)
	if errors.Is(err, repositories.ErrTournamentStatusConflict) {
		s.logger.Warn("scheduler transition conflicted twice, deferring to next tick",
			slog.Int("tournament_id", t.ID))
		return nil
	}
	return err
}

func (s *StatusScheduler) applyDue(ctx context.Context, t *models.Tournament, now time.Time) error {
	switch t.Status {
	case models.StatusUpcoming:
		if t.StartAt.After(now) {
			return nil
		}
		if err := s.tournaments.ActivateIf(ctx, nil, t.ID, now); err != nil {
			return err
		}
		s.logger.Info("tournament activated", slog.Int("tournament_id", t.ID))
		// Короткий турнир мог закончиться, не дождавшись следующего тика.
		if t.EndAt().After(now) {
			return nil
		}
		if err := s.tournaments.CompleteIf(ctx, nil, t.ID, now); err != nil {
			return err
		}
		s.logger.Info("tournament completed", slog.Int("tournament_id", t.ID))
		return nil
	case models.StatusActive:
		if t.EndAt().After(now) {
			return nil
		}
		if err := s.tournaments.CompleteIf(ctx, nil, t.ID, now); err != nil {
			return err
		}
		s.logger.Info("tournament completed", slog.Int("tournament_id", t.ID))
		return nil
	default:
		return nil
	}
}

// Run запускает периодический опрос и блокируется до отмены контекста.
func (s *StatusScheduler) Run(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() { s.RunOnce(ctx) }),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return err
	}

	scheduler.Start()
	s.logger.Info("status scheduler started", slog.Duration("interval", s.interval))

	<-ctx.Done()
	return scheduler.Shutdown()
}
