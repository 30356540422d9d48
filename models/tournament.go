package models

import "time"

// TournamentStatus представляет статусы турнира, соответствующие ENUM в БД.
type TournamentStatus string

const (
	StatusUpcoming  TournamentStatus = "upcoming"
	StatusActive    TournamentStatus = "active"
	StatusCompleted TournamentStatus = "completed"
	StatusCancelled TournamentStatus = "cancelled"
)

// IsTerminal reports whether no further automatic transition may leave the status.
func (s TournamentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type PrizeType string

const (
	PrizeFixed      PrizeType = "fixed"
	PrizePercentage PrizeType = "percentage"
	PrizeSpecial    PrizeType = "special"
)

type FundingMethod string

const (
	FundingWallet FundingMethod = "wallet"
	FundingDirect FundingMethod = "direct"
	FundingTopup  FundingMethod = "topup"
)

// Tournament представляет турнир.
type Tournament struct {
	ID                int              `json:"id" db:"id"`
	Title             string           `json:"title" db:"title"`
	Category          string           `json:"category" db:"category"`
	PrizeType         PrizeType        `json:"prize_type" db:"prize_type"`
	PrizeConfig       PrizeConfig      `json:"prize_config" db:"prize_config"`
	EntryFee          int64            `json:"entry_fee" db:"entry_fee"`
	FundingMethod     FundingMethod    `json:"funding_method" db:"funding_method"`
	OrganizerID       int              `json:"organizer_id" db:"organizer_id"`
	Status            TournamentStatus `json:"status" db:"status"`
	StartAt           time.Time        `json:"start_at" db:"start_at"` // UTC instant
	Timezone          string           `json:"timezone" db:"timezone"` // IANA name as stored after fallback
	DurationMs        int64            `json:"duration_ms" db:"duration_ms"`
	ManualOverride    bool             `json:"manual_override" db:"manual_override"`
	ActualStart       *time.Time       `json:"actual_start,omitempty" db:"actual_start"`
	ActualEnd         *time.Time       `json:"actual_end,omitempty" db:"actual_end"`
	PrizesDistributed bool             `json:"prizes_distributed" db:"prizes_distributed"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`

	// Не мапится напрямую, заполняется отдельным запросом.
	Participants []int `json:"participants,omitempty" db:"-"`
}

// EndAt returns the scheduled end instant (start + duration).
func (t *Tournament) EndAt() time.Time {
	return t.StartAt.Add(time.Duration(t.DurationMs) * time.Millisecond)
}

// AcceptsMoney reports whether monetary mutations targeting the tournament are
// still permitted. Once cancelled or paid out, the tournament is frozen.
func (t *Tournament) AcceptsMoney() bool {
	return t.Status != StatusCancelled && !t.PrizesDistributed
}

// IsValidStatusTransition проверяет допустимость перехода статуса.
func IsValidStatusTransition(current, next TournamentStatus) bool {
	if current == next {
		return true
	}
	allowed := map[TournamentStatus][]TournamentStatus{
		StatusUpcoming:  {StatusActive, StatusCancelled},
		StatusActive:    {StatusCompleted, StatusCancelled},
		StatusCompleted: {},
		StatusCancelled: {},
	}
	for _, n := range allowed[current] {
		if next == n {
			return true
		}
	}
	return false
}

// RankedResult — одна строка итоговых результатов турнира, подаётся организатором.
// Position — место (1-based) для fixed/percentage, Category — метка для special
// призов и именованных дополнительных слотов.
type RankedResult struct {
	UserID   int    `json:"user_id"`
	Position int    `json:"position,omitempty"`
	Category string `json:"category,omitempty"`
}
