package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/questarena/tournament-finance/models"
)

var (
	ErrTournamentNotFound       = errors.New("tournament not found")
	ErrTournamentStatusConflict = errors.New("tournament status changed concurrently")
	ErrParticipantExists        = errors.New("user is already a participant of this tournament")
	ErrParticipantNotFound      = errors.New("participant registration not found")
	ErrTournamentInvalidOrg     = errors.New("invalid organizer reference")
)

type ListTournamentsFilter struct {
	OrganizerID *int
	Category    *string
	Status      *models.TournamentStatus
	Limit       int
	Offset      int
}

type TournamentRepository interface {
	Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error)
	// UpdateStatusIf применяет переход статуса только если текущий статус
	// всё ещё from (optimistic guard).
	UpdateStatusIf(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus) error
	// ActivateIf: upcoming -> active, actual_start фиксируется один раз.
	ActivateIf(ctx context.Context, exec SQLExecutor, id int, at time.Time) error
	// CompleteIf: active -> completed, actual_end фиксируется один раз.
	CompleteIf(ctx context.Context, exec SQLExecutor, id int, at time.Time) error
	// ApplyTransition — ручной переход: игнорирует manual_override, но
	// по-прежнему проверяет ожидаемый исходный статус и фиксирует
	// actual_start/actual_end один раз.
	ApplyTransition(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus, at time.Time) error
	// SetPrizesDistributedIf защёлкивает prizes_distributed ровно один раз.
	SetPrizesDistributedIf(ctx context.Context, exec SQLExecutor, id int) error
	SetManualOverride(ctx context.Context, exec SQLExecutor, id int, frozen bool) error
	// ListDue возвращает нетерминальные турниры без ручной заморозки, для
	// которых по wall-clock пора выполнить автоматический переход.
	ListDue(ctx context.Context, exec SQLExecutor, now time.Time) ([]*models.Tournament, error)
	AddParticipant(ctx context.Context, exec SQLExecutor, tournamentID, userID int) error
	RemoveParticipant(ctx context.Context, exec SQLExecutor, tournamentID, userID int) error
	IsParticipant(ctx context.Context, exec SQLExecutor, tournamentID, userID int) (bool, error)
	ListParticipants(ctx context.Context, exec SQLExecutor, tournamentID int) ([]int, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `
	id, title, category, prize_type, prize_config, entry_fee, funding_method,
	organizer_id, status, start_at, timezone, duration_ms, manual_override,
	actual_start, actual_end, prizes_distributed, created_at`

func scanTournament(scan func(dest ...interface{}) error) (*models.Tournament, error) {
	t := &models.Tournament{}
	err := scan(
		&t.ID, &t.Title, &t.Category, &t.PrizeType, &t.PrizeConfig, &t.EntryFee, &t.FundingMethod,
		&t.OrganizerID, &t.Status, &t.StartAt, &t.Timezone, &t.DurationMs, &t.ManualOverride,
		&t.ActualStart, &t.ActualEnd, &t.PrizesDistributed, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *postgresTournamentRepository) Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tournaments (
			title, category, prize_type, prize_config, entry_fee, funding_method,
			organizer_id, status, start_at, timezone, duration_ms, manual_override
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		t.Title, t.Category, t.PrizeType, t.PrizeConfig, t.EntryFee, t.FundingMethod,
		t.OrganizerID, t.Status, t.StartAt, t.Timezone, t.DurationMs, t.ManualOverride,
	).Scan(&t.ID, &t.CreatedAt)

	return r.handleTournamentError(err)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`

	t, err := scanTournament(executor.QueryRowContext(ctx, query, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	executor := r.getExecutor(nil)
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE 1=1`

	args := []interface{}{}
	argID := 1

	if filter.OrganizerID != nil {
		query += fmt.Sprintf(" AND organizer_id = $%d", argID)
		args = append(args, *filter.OrganizerID)
		argID++
	}
	if filter.Category != nil {
		query += fmt.Sprintf(" AND category = $%d", argID)
		args = append(args, *filter.Category)
		argID++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}

	query += " ORDER BY start_at DESC, created_at DESC"

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

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		t, scanErr := scanTournament(rows.Scan)
		if scanErr != nil {
			return nil, scanErr
		}
		tournaments = append(tournaments, *t)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return tournaments, nil
}

func (r *postgresTournamentRepository) UpdateStatusIf(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET status = $1 WHERE id = $2 AND status = $3`
	result, err := executor.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentStatusConflict)
}

func (r *postgresTournamentRepository) ActivateIf(ctx context.Context, exec SQLExecutor, id int, at time.Time) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE tournaments
		SET status = $1, actual_start = COALESCE(actual_start, $2)
		WHERE id = $3 AND status = $4 AND manual_override = FALSE`
	result, err := executor.ExecContext(ctx, query, models.StatusActive, at, id, models.StatusUpcoming)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentStatusConflict)
}

func (r *postgresTournamentRepository) CompleteIf(ctx context.Context, exec SQLExecutor, id int, at time.Time) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE tournaments
		SET status = $1, actual_end = COALESCE(actual_end, $2)
		WHERE id = $3 AND status = $4 AND manual_override = FALSE`
	result, err := executor.ExecContext(ctx, query, models.StatusCompleted, at, id, models.StatusActive)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentStatusConflict)
}

func (r *postgresTournamentRepository) ApplyTransition(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus, at time.Time) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE tournaments
		SET status = $1,
		    actual_start = CASE WHEN $1 = 'active' THEN COALESCE(actual_start, $2) ELSE actual_start END,
		    actual_end = CASE WHEN $1 = 'completed' THEN COALESCE(actual_end, $2) ELSE actual_end END
		WHERE id = $3 AND status = $4`
	result, err := executor.ExecContext(ctx, query, to, at, id, from)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentStatusConflict)
}

func (r *postgresTournamentRepository) SetManualOverride(ctx context.Context, exec SQLExecutor, id int, frozen bool) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET manual_override = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, frozen, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) SetPrizesDistributedIf(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE tournaments SET prizes_distributed = TRUE
		WHERE id = $1 AND prizes_distributed = FALSE`
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTournamentStatusConflict)
}

func (r *postgresTournamentRepository) ListDue(ctx context.Context, exec SQLExecutor, now time.Time) ([]*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT` + tournamentColumns + `
		FROM tournaments
		WHERE manual_override = FALSE
		AND (
			(status = $1 AND start_at <= $3) OR
			(status = $2 AND start_at + (duration_ms * interval '1 millisecond') <= $3)
		)
		ORDER BY start_at`

	rows, err := executor.QueryContext(ctx, query, models.StatusUpcoming, models.StatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due tournaments: %w", err)
	}
	defer rows.Close()

	var tournaments []*models.Tournament
	for rows.Next() {
		t, scanErr := scanTournament(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan due tournament: %w", scanErr)
		}
		tournaments = append(tournaments, t)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return tournaments, nil
}

func (r *postgresTournamentRepository) AddParticipant(ctx context.Context, exec SQLExecutor, tournamentID, userID int) error {
	executor := r.getExecutor(exec)
	query := `INSERT INTO tournament_participants (tournament_id, user_id) VALUES ($1, $2)`
	_, err := executor.ExecContext(ctx, query, tournamentID, userID)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return ErrParticipantExists
	}
	return err
}

func (r *postgresTournamentRepository) RemoveParticipant(ctx context.Context, exec SQLExecutor, tournamentID, userID int) error {
	executor := r.getExecutor(exec)
	query := `DELETE FROM tournament_participants WHERE tournament_id = $1 AND user_id = $2`
	result, err := executor.ExecContext(ctx, query, tournamentID, userID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresTournamentRepository) IsParticipant(ctx context.Context, exec SQLExecutor, tournamentID, userID int) (bool, error) {
	executor := r.getExecutor(exec)
	query := `SELECT EXISTS (SELECT 1 FROM tournament_participants WHERE tournament_id = $1 AND user_id = $2)`
	var exists bool
	if err := executor.QueryRowContext(ctx, query, tournamentID, userID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *postgresTournamentRepository) ListParticipants(ctx context.Context, exec SQLExecutor, tournamentID int) ([]int, error) {
	executor := r.getExecutor(exec)
	query := `SELECT user_id FROM tournament_participants WHERE tournament_id = $1 ORDER BY user_id`
	rows, err := executor.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int, 0)
	for rows.Next() {
		var id int
		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, scanErr
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23503":
			if pqErr.Constraint == "tournaments_organizer_id_fkey" {
				return ErrTournamentInvalidOrg
			}
		}
	}
	return err
}
