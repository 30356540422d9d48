package prizes

import (
	"testing"

	"github.com/questarena/tournament-finance/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedConfig(positions []int64, additional map[string]int64) models.PrizeConfig {
	return models.PrizeConfig{Fixed: &models.FixedPrizeConfig{Positions: positions, Additional: additional}}
}

func percentageConfig(base int64, positions []float64, additional map[string]float64) models.PrizeConfig {
	return models.PrizeConfig{Percentage: &models.PercentagePrizeConfig{
		BasePrizePool: base,
		Positions:     positions,
		Additional:    additional,
	}}
}

func TestComputeFixed(t *testing.T) {
	cfg := fixedConfig([]int64{10_000, 5_000, 2_500}, map[string]int64{"mvp": 1_000})
	results := []models.RankedResult{
		{UserID: 1, Position: 1},
		{UserID: 2, Position: 2},
		{UserID: 3, Position: 3},
		{UserID: 4, Position: 7}, // вне призовых слотов
		{UserID: 5, Category: "mvp"},
	}

	awards, err := Compute(models.PrizeFixed, cfg, results)
	require.NoError(t, err)
	require.Len(t, awards, 4)
	assert.Equal(t, Award{UserID: 1, Position: "1st", Amount: 10_000}, awards[0])
	assert.Equal(t, Award{UserID: 3, Position: "3rd", Amount: 2_500}, awards[2])
	assert.Equal(t, Award{UserID: 5, Position: "mvp", Amount: 1_000}, awards[3])
}

func TestComputePercentageRoundsToMinorUnit(t *testing.T) {
	cfg := percentageConfig(10_001, []float64{50, 33.33}, nil)
	results := []models.RankedResult{
		{UserID: 1, Position: 1},
		{UserID: 2, Position: 2},
	}

	awards, err := Compute(models.PrizePercentage, cfg, results)
	require.NoError(t, err)
	require.Len(t, awards, 2)
	// 50% от 10001 = 5000.5 -> 5001 (Round округляет half away from zero).
	assert.Equal(t, int64(5_001), awards[0].Amount)
	// 33.33% от 10001 = 3333.3333 -> 3333.
	assert.Equal(t, int64(3_333), awards[1].Amount)
}

func TestComputePercentagePoolIndependentOfFees(t *testing.T) {
	// BasePrizePool задан явно: проценты считаются от него, а не от сборов.
	cfg := percentageConfig(100_000, []float64{10}, nil)
	awards, err := Compute(models.PrizePercentage, cfg, []models.RankedResult{{UserID: 1, Position: 1}})
	require.NoError(t, err)
	require.Len(t, awards, 1)
	assert.Equal(t, int64(10_000), awards[0].Amount)
}

func TestComputeSpecialCategories(t *testing.T) {
	cfg := models.PrizeConfig{Special: &models.SpecialPrizeConfig{
		BasePrizePool: 10_000,
		Categories: []models.SpecialCategory{
			{Name: "Best Defense", Amount: 2_000},
			{Name: "fair play", Percent: 25},
			{Name: "Rookie", Amount: 500},
		},
	}}
	results := []models.RankedResult{
		{UserID: 1, Category: "Best Defense"},
		{UserID: 2, Category: "FAIR PLAY award"}, // case-insensitive substring match
	}

	awards, err := Compute(models.PrizeSpecial, cfg, results)
	require.NoError(t, err)
	require.Len(t, awards, 2, "unmatched categories are skipped")
	assert.Equal(t, Award{UserID: 1, Position: "Best Defense", Amount: 2_000}, awards[0])
	assert.Equal(t, Award{UserID: 2, Position: "fair play", Amount: 2_500}, awards[1])
}

func TestComputeSpecialShortLabelDoesNotMatch(t *testing.T) {
	cfg := models.PrizeConfig{Special: &models.SpecialPrizeConfig{
		BasePrizePool: 10_000,
		Categories:    []models.SpecialCategory{{Name: "fair play", Percent: 25}},
	}}

	// Метка "a" — подстрока имени категории, но не наоборот: совпадения нет.
	awards, err := Compute(models.PrizeSpecial, cfg, []models.RankedResult{{UserID: 3, Category: "a"}})
	require.NoError(t, err)
	assert.Empty(t, awards)
}

func TestComputeRejectsDuplicateResults(t *testing.T) {
	cfg := fixedConfig([]int64{1_000, 500}, nil)

	_, err := Compute(models.PrizeFixed, cfg, []models.RankedResult{
		{UserID: 1, Position: 1},
		{UserID: 2, Position: 2},
		{UserID: 3, Position: 2},
	})
	assert.ErrorIs(t, err, ErrDuplicatePosition)

	_, err = Compute(models.PrizeFixed, cfg, []models.RankedResult{
		{UserID: 1, Position: 1},
		{UserID: 1, Position: 2},
	})
	assert.ErrorIs(t, err, ErrDuplicateResultUser)
}

func TestComputeOmitsZeroAwards(t *testing.T) {
	cfg := fixedConfig([]int64{1_000, 0}, nil)
	awards, err := Compute(models.PrizeFixed, cfg, []models.RankedResult{
		{UserID: 1, Position: 1},
		{UserID: 2, Position: 2},
	})
	require.NoError(t, err)
	require.Len(t, awards, 1)
	assert.Equal(t, 1, awards[0].UserID)
}

func TestComputeIsDeterministic(t *testing.T) {
	cfg := percentageConfig(99_999, []float64{33.33, 22.22, 11.11}, map[string]float64{"mvp": 5})
	results := []models.RankedResult{
		{UserID: 1, Position: 1},
		{UserID: 2, Position: 2},
		{UserID: 3, Position: 3},
		{UserID: 4, Category: "mvp"},
	}

	first, err := Compute(models.PrizePercentage, cfg, results)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Compute(models.PrizePercentage, cfg, results)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestTotalPool(t *testing.T) {
	pool, err := TotalPool(models.PrizeFixed, fixedConfig([]int64{10_000, 5_000}, map[string]int64{"mvp": 1_000}))
	require.NoError(t, err)
	assert.Equal(t, int64(16_000), pool)

	pool, err = TotalPool(models.PrizePercentage, percentageConfig(10_000, []float64{50, 25}, nil))
	require.NoError(t, err)
	assert.Equal(t, int64(7_500), pool)
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		name      string
		prizeType models.PrizeType
		cfg       models.PrizeConfig
		wantErr   error
	}{
		{
			"shape mismatch",
			models.PrizeFixed,
			percentageConfig(100, []float64{50}, nil),
			ErrConfigShapeMismatch,
		},
		{
			"two shapes filled",
			models.PrizeFixed,
			models.PrizeConfig{
				Fixed:      &models.FixedPrizeConfig{Positions: []int64{100}},
				Percentage: &models.PercentagePrizeConfig{BasePrizePool: 100},
			},
			ErrConfigShapeMismatch,
		},
		{
			"too many positions",
			models.PrizeFixed,
			fixedConfig([]int64{1, 2, 3, 4, 5, 6}, nil),
			ErrTooManyPositions,
		},
		{
			"negative amount",
			models.PrizeFixed,
			fixedConfig([]int64{-5}, nil),
			ErrNegativePrizeAmount,
		},
		{
			"percent above 100",
			models.PrizePercentage,
			percentageConfig(100, []float64{150}, nil),
			ErrInvalidPercent,
		},
		{
			"percent sum above 100",
			models.PrizePercentage,
			percentageConfig(100, []float64{60, 60}, nil),
			ErrPercentSumExceeds,
		},
		{
			"missing base pool",
			models.PrizePercentage,
			percentageConfig(0, []float64{50}, nil),
			ErrBasePoolRequired,
		},
		{
			"unnamed special category",
			models.PrizeSpecial,
			models.PrizeConfig{Special: &models.SpecialPrizeConfig{
				Categories: []models.SpecialCategory{{Name: " ", Amount: 100}},
			}},
			ErrCategoryNameRequired,
		},
		{
			"category with both amount and percent",
			models.PrizeSpecial,
			models.PrizeConfig{Special: &models.SpecialPrizeConfig{
				BasePrizePool: 100,
				Categories:    []models.SpecialCategory{{Name: "mvp", Amount: 100, Percent: 10}},
			}},
			ErrCategoryAmountPercent,
		},
		{
			"category with neither amount nor percent",
			models.PrizeSpecial,
			models.PrizeConfig{Special: &models.SpecialPrizeConfig{
				Categories: []models.SpecialCategory{{Name: "mvp"}},
			}},
			ErrCategoryAmountPercent,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateConfig(tc.prizeType, tc.cfg)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}
