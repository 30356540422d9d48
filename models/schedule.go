package models

import (
	"errors"
	"time"
)

var (
	ErrInvalidStartDate = errors.New("start date must be in YYYY-MM-DD format")
	ErrInvalidStartTime = errors.New("start time must be in HH:MM format")
)

const (
	startDateLayout = "2006-01-02"
	startTimeLayout = "15:04"
)

// StartInstant собирает дату, локальное время "HH:MM" и IANA-таймзону в один
// UTC-момент. Неизвестная таймзона не является ошибкой: применяется UTC, а
// второй результат сообщает вызывающему о фолбэке (он логируется выше —
// чаще всего это замаскированная ошибка конфигурации). Невалидный формат
// даты или времени — ошибка валидации на этапе создания.
func StartInstant(date, timeOfDay, timezone string) (time.Time, bool, error) {
	day, err := time.Parse(startDateLayout, date)
	if err != nil {
		return time.Time{}, false, ErrInvalidStartDate
	}
	tod, err := time.Parse(startTimeLayout, timeOfDay)
	if err != nil {
		return time.Time{}, false, ErrInvalidStartTime
	}

	fellBack := false
	loc := time.UTC
	if timezone != "" {
		if parsed, locErr := time.LoadLocation(timezone); locErr == nil {
			loc = parsed
		} else {
			fellBack = true
		}
	} else {
		fellBack = true
	}

	local := time.Date(day.Year(), day.Month(), day.Day(), tod.Hour(), tod.Minute(), 0, 0, loc)
	return local.UTC(), fellBack, nil
}
