package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrTitleRequired        = errors.New("title is required")
	ErrInvalidPrizeType     = errors.New("prize type must be one of: fixed, percentage, special")
	ErrInvalidFundingMethod = errors.New("funding method must be one of: wallet, direct, topup")
	ErrNegativeEntryFee     = errors.New("entry fee must not be negative")
	ErrInvalidDuration      = errors.New("duration must be positive")
	ErrPrizeConfigShape     = errors.New("prize config must contain exactly the shape matching prize type")
	ErrStartInPast          = errors.New("start instant must be in the future")
)

// CreateTournamentPayload — сырое тело запроса создания турнира.
// Нормализуется в типизированный Tournament до любой бизнес-логики.
type CreateTournamentPayload struct {
	Title         string      `json:"title"`
	Category      string      `json:"category"`
	PrizeType     string      `json:"prize_type"`
	PrizeConfig   PrizeConfig `json:"prize_config"`
	EntryFee      int64       `json:"entry_fee"`
	FundingMethod string      `json:"funding_method"`
	StartDate     string      `json:"start_date"`
	StartTime     string      `json:"start_time"`
	Timezone      string      `json:"timezone"`
	DurationHours float64     `json:"duration_hours"`
}

// Normalize валидирует payload и возвращает доменную модель (без ID и статуса
// БД-полей). Второй результат — признак фолбэка таймзоны на UTC.
func (p CreateTournamentPayload) Normalize(now time.Time) (*Tournament, bool, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return nil, false, ErrTitleRequired
	}

	prizeType := PrizeType(strings.ToLower(strings.TrimSpace(p.PrizeType)))
	switch prizeType {
	case PrizeFixed, PrizePercentage, PrizeSpecial:
	default:
		return nil, false, ErrInvalidPrizeType
	}

	shape, ok := p.PrizeConfig.ActiveShape()
	if !ok || shape != prizeType {
		return nil, false, ErrPrizeConfigShape
	}

	funding := FundingMethod(strings.ToLower(strings.TrimSpace(p.FundingMethod)))
	switch funding {
	case FundingWallet, FundingDirect, FundingTopup:
	default:
		return nil, false, ErrInvalidFundingMethod
	}

	if p.EntryFee < 0 {
		return nil, false, ErrNegativeEntryFee
	}
	if p.DurationHours <= 0 {
		return nil, false, ErrInvalidDuration
	}

	startAt, tzFellBack, err := StartInstant(p.StartDate, p.StartTime, strings.TrimSpace(p.Timezone))
	if err != nil {
		return nil, false, err
	}
	if !startAt.After(now) {
		return nil, tzFellBack, fmt.Errorf("%w: %s", ErrStartInPast, startAt.Format(time.RFC3339))
	}

	tz := strings.TrimSpace(p.Timezone)
	if tzFellBack {
		tz = "UTC"
	}

	return &Tournament{
		Title:         title,
		Category:      strings.TrimSpace(p.Category),
		PrizeType:     prizeType,
		PrizeConfig:   p.PrizeConfig,
		EntryFee:      p.EntryFee,
		FundingMethod: funding,
		Status:        StatusUpcoming,
		StartAt:       startAt,
		Timezone:      tz,
		DurationMs:    int64(p.DurationHours * float64(time.Hour/time.Millisecond)),
	}, tzFellBack, nil
}
