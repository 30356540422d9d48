package prizes

import (
	"errors"
	"fmt"
	"strings"

	"github.com/questarena/tournament-finance/models"
	"github.com/shopspring/decimal"
)

var (
	ErrConfigShapeMismatch   = errors.New("prize config shape does not match prize type")
	ErrTooManyPositions      = errors.New("at most 5 positional prize slots are allowed")
	ErrNegativePrizeAmount   = errors.New("prize amounts must not be negative")
	ErrInvalidPercent        = errors.New("prize percentages must be between 0 and 100")
	ErrPercentSumExceeds     = errors.New("prize percentages must not sum above 100")
	ErrBasePoolRequired      = errors.New("base prize pool must be positive when percentages are used")
	ErrCategoryNameRequired  = errors.New("special prize categories must be named")
	ErrCategoryAmountPercent = errors.New("special prize category must set exactly one of amount or percent")
	ErrDistributionExceeds   = errors.New("computed distribution exceeds the declared prize pool")
	ErrDuplicatePosition     = errors.New("ranked results contain the same position twice")
	ErrDuplicateResultUser   = errors.New("ranked results contain the same user twice")
)

const maxPositions = 5

// Award — одна строка вычисленного распределения призов. Никогда не
// сохраняется сама по себе: её эффект — только строки транзакций.
type Award struct {
	UserID   int    `json:"user_id"`
	Position string `json:"position"`
	Amount   int64  `json:"amount"`
}

var ordinals = [...]string{"1st", "2nd", "3rd", "4th", "5th"}

// Compute — чистая функция: конфигурация призов + ранжированные результаты ->
// список выплат. Детерминирована, нулевые суммы опускаются, сумма выплат
// никогда не превышает объявленный призовой фонд.
func Compute(prizeType models.PrizeType, cfg models.PrizeConfig, results []models.RankedResult) ([]Award, error) {
	if err := ValidateConfig(prizeType, cfg); err != nil {
		return nil, err
	}
	if err := validateResults(results); err != nil {
		return nil, err
	}

	var awards []Award
	switch prizeType {
	case models.PrizeFixed:
		awards = computeFixed(cfg.Fixed, results)
	case models.PrizePercentage:
		awards = computePercentage(cfg.Percentage, results)
	case models.PrizeSpecial:
		awards = computeSpecial(cfg.Special, results)
	}

	pool, err := TotalPool(prizeType, cfg)
	if err != nil {
		return nil, err
	}
	var sum int64
	for _, a := range awards {
		sum += a.Amount
	}
	if sum > pool {
		return nil, fmt.Errorf("%w: %d > %d", ErrDistributionExceeds, sum, pool)
	}
	return awards, nil
}

// validateResults отклоняет дубликаты на входе: одна позиция и один
// пользователь могут заработать не больше одной строки выплаты.
func validateResults(results []models.RankedResult) error {
	seenUsers := make(map[int]struct{}, len(results))
	seenPositions := make(map[int]struct{}, len(results))
	for _, r := range results {
		if _, ok := seenUsers[r.UserID]; ok {
			return fmt.Errorf("%w: user %d", ErrDuplicateResultUser, r.UserID)
		}
		seenUsers[r.UserID] = struct{}{}
		if r.Position >= 1 {
			if _, ok := seenPositions[r.Position]; ok {
				return fmt.Errorf("%w: position %d", ErrDuplicatePosition, r.Position)
			}
			seenPositions[r.Position] = struct{}{}
		}
	}
	return nil
}

func computeFixed(cfg *models.FixedPrizeConfig, results []models.RankedResult) []Award {
	awards := make([]Award, 0, len(results))
	for _, r := range results {
		amount, label := int64(0), ""
		switch {
		case r.Position >= 1 && r.Position <= len(cfg.Positions):
			amount, label = cfg.Positions[r.Position-1], ordinals[r.Position-1]
		case r.Category != "":
			if v, ok := cfg.Additional[r.Category]; ok {
				amount, label = v, r.Category
			}
		}
		if amount > 0 {
			awards = append(awards, Award{UserID: r.UserID, Position: label, Amount: amount})
		}
	}
	return awards
}

func computePercentage(cfg *models.PercentagePrizeConfig, results []models.RankedResult) []Award {
	awards := make([]Award, 0, len(results))
	for _, r := range results {
		pct, label := 0.0, ""
		switch {
		case r.Position >= 1 && r.Position <= len(cfg.Positions):
			pct, label = cfg.Positions[r.Position-1], ordinals[r.Position-1]
		case r.Category != "":
			if v, ok := cfg.Additional[r.Category]; ok {
				pct, label = v, r.Category
			}
		}
		amount := percentOf(cfg.BasePrizePool, pct)
		if amount > 0 {
			awards = append(awards, Award{UserID: r.UserID, Position: label, Amount: amount})
		}
	}
	return awards
}

func computeSpecial(cfg *models.SpecialPrizeConfig, results []models.RankedResult) []Award {
	awards := make([]Award, 0, len(cfg.Categories))
	for _, cat := range cfg.Categories {
		r, ok := matchCategory(cat.Name, results)
		if !ok {
			continue
		}
		amount := cat.Amount
		if amount == 0 && cat.Percent > 0 {
			amount = percentOf(cfg.BasePrizePool, cat.Percent)
		}
		if amount > 0 {
			awards = append(awards, Award{UserID: r.UserID, Position: cat.Name, Amount: amount})
		}
	}
	return awards
}

// matchCategory находит первый результат, чья метка совпадает с именем
// категории точно либо содержит его как case-insensitive подстроку.
// Только в эту сторону: короткая метка результата не должна цеплять
// произвольные категории.
func matchCategory(name string, results []models.RankedResult) (models.RankedResult, bool) {
	needle := strings.ToLower(name)
	for _, r := range results {
		if r.Category == name {
			return r, true
		}
	}
	for _, r := range results {
		if r.Category == "" {
			continue
		}
		if strings.Contains(strings.ToLower(r.Category), needle) {
			return r, true
		}
	}
	return models.RankedResult{}, false
}

// percentOf возвращает pct% от base, округляя до минорной единицы
// (две десятичных основной валюты).
func percentOf(base int64, pct float64) int64 {
	if base <= 0 || pct <= 0 {
		return 0
	}
	return decimal.NewFromInt(base).
		Mul(decimal.NewFromFloat(pct)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}

// TotalPool возвращает объявленный суммарный призовой фонд конфигурации.
func TotalPool(prizeType models.PrizeType, cfg models.PrizeConfig) (int64, error) {
	if err := ValidateConfig(prizeType, cfg); err != nil {
		return 0, err
	}
	var total int64
	switch prizeType {
	case models.PrizeFixed:
		for _, v := range cfg.Fixed.Positions {
			total += v
		}
		for _, v := range cfg.Fixed.Additional {
			total += v
		}
	case models.PrizePercentage:
		for _, pct := range cfg.Percentage.Positions {
			total += percentOf(cfg.Percentage.BasePrizePool, pct)
		}
		for _, pct := range cfg.Percentage.Additional {
			total += percentOf(cfg.Percentage.BasePrizePool, pct)
		}
	case models.PrizeSpecial:
		for _, cat := range cfg.Special.Categories {
			if cat.Amount > 0 {
				total += cat.Amount
			} else {
				total += percentOf(cfg.Special.BasePrizePool, cat.Percent)
			}
		}
	}
	return total, nil
}

// ValidateConfig проверяет конфигурацию призов на этапе создания турнира.
func ValidateConfig(prizeType models.PrizeType, cfg models.PrizeConfig) error {
	shape, ok := cfg.ActiveShape()
	if !ok || shape != prizeType {
		return ErrConfigShapeMismatch
	}
	switch prizeType {
	case models.PrizeFixed:
		if len(cfg.Fixed.Positions) > maxPositions {
			return ErrTooManyPositions
		}
		for _, v := range cfg.Fixed.Positions {
			if v < 0 {
				return ErrNegativePrizeAmount
			}
		}
		for _, v := range cfg.Fixed.Additional {
			if v < 0 {
				return ErrNegativePrizeAmount
			}
		}
	case models.PrizePercentage:
		if len(cfg.Percentage.Positions) > maxPositions {
			return ErrTooManyPositions
		}
		var sum float64
		for _, pct := range cfg.Percentage.Positions {
			if pct < 0 || pct > 100 {
				return ErrInvalidPercent
			}
			sum += pct
		}
		for _, pct := range cfg.Percentage.Additional {
			if pct < 0 || pct > 100 {
				return ErrInvalidPercent
			}
			sum += pct
		}
		if sum > 100 {
			return ErrPercentSumExceeds
		}
		if sum > 0 && cfg.Percentage.BasePrizePool <= 0 {
			return ErrBasePoolRequired
		}
	case models.PrizeSpecial:
		usesPercent := false
		for _, cat := range cfg.Special.Categories {
			if strings.TrimSpace(cat.Name) == "" {
				return ErrCategoryNameRequired
			}
			hasAmount := cat.Amount > 0
			hasPercent := cat.Percent > 0
			if cat.Amount < 0 || cat.Percent < 0 || cat.Percent > 100 {
				return ErrInvalidPercent
			}
			if hasAmount == hasPercent {
				return ErrCategoryAmountPercent
			}
			if hasPercent {
				usesPercent = true
			}
		}
		if usesPercent && cfg.Special.BasePrizePool <= 0 {
			return ErrBasePoolRequired
		}
	}
	return nil
}
