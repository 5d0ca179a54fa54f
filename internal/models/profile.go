package models

import (
	"math"
	"time"
)

// CurrencyRates хранит курсы трёх отслеживаемых валют относительно базовой.
// Отсутствующий или нечитаемый курс хранится как NaN.
type CurrencyRates struct {
	USD       float64
	EUR       float64
	RUB       float64
	UpdatedAt time.Time
}

// HasRate сообщает, известен ли курс.
func HasRate(v float64) bool {
	return !math.IsNaN(v)
}

// PersonalData — профиль пользователя. Сервер является источником истины,
// локальная копия используется только для чтения.
type PersonalData struct {
	ID       int64
	FullName string
	Email    string
	Country  string
	PfpURL   string
	Language string
}
