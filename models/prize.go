package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// PrizeConfig — tagged union из трёх взаимоисключающих форм, ровно одна
// должна быть заполнена и соответствовать PrizeType турнира.
type PrizeConfig struct {
	Fixed      *FixedPrizeConfig      `json:"fixed,omitempty"`
	Percentage *PercentagePrizeConfig `json:"percentage,omitempty"`
	Special    *SpecialPrizeConfig    `json:"special,omitempty"`
}

// FixedPrizeConfig: позиции 1..5 с абсолютными суммами (минорные единицы)
// плюс опциональные именованные дополнительные слоты.
type FixedPrizeConfig struct {
	Positions  []int64          `json:"positions"`
	Additional map[string]int64 `json:"additional,omitempty"`
}

// PercentagePrizeConfig: те же слоты, но в процентах от BasePrizePool.
// BasePrizePool задаётся независимо от собранных entry fee.
type PercentagePrizeConfig struct {
	BasePrizePool int64              `json:"base_prize_pool"`
	Positions     []float64          `json:"positions"`
	Additional    map[string]float64 `json:"additional,omitempty"`
}

// SpecialPrizeConfig: именованные категории, каждая либо с фиксированной
// суммой, либо с процентом от BasePrizePool.
type SpecialPrizeConfig struct {
	BasePrizePool int64             `json:"base_prize_pool,omitempty"`
	Categories    []SpecialCategory `json:"categories"`
}

type SpecialCategory struct {
	Name    string  `json:"name"`
	Amount  int64   `json:"amount,omitempty"`
	Percent float64 `json:"percent,omitempty"`
}

// ActiveShape возвращает тип, которому соответствует заполненная форма,
// и признак того, что заполнена ровно одна.
func (c PrizeConfig) ActiveShape() (PrizeType, bool) {
	var (
		shape PrizeType
		count int
	)
	if c.Fixed != nil {
		shape, count = PrizeFixed, count+1
	}
	if c.Percentage != nil {
		shape, count = PrizePercentage, count+1
	}
	if c.Special != nil {
		shape, count = PrizeSpecial, count+1
	}
	return shape, count == 1
}

func (c PrizeConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *PrizeConfig) Scan(src interface{}) error {
	if src == nil {
		*c = PrizeConfig{}
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("prize config: unsupported scan type %T", src)
	}
	return json.Unmarshal(raw, c)
}
