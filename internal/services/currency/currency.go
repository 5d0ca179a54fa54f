// Package currency реализует репозиторий курсов валют: сохранённый курс
// отдаётся сразу, затем обновляется с сервера.
package currency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/magabrotheeeer/tourism-companion/internal/lib/live"
	"github.com/magabrotheeeer/tourism-companion/internal/lib/messages"
	"github.com/magabrotheeeer/tourism-companion/internal/lib/sl"
	"github.com/magabrotheeeer/tourism-companion/internal/models"
	"github.com/magabrotheeeer/tourism-companion/internal/resource"
	"github.com/magabrotheeeer/tourism-companion/internal/storage"
	"github.com/magabrotheeeer/tourism-companion/internal/tourismapi"
)

// Коды отслеживаемых валют.
const (
	USD = "USD"
	EUR = "EUR"
	RUB = "RUB"
)

// API — источник курсов валют.
type API interface {
	Currency(ctx context.Context) ([]tourismapi.CurrencyDTO, error)
}

// Languages отдаёт язык пользователя для текстов ошибок.
type Languages interface {
	Language(ctx context.Context) string
}

// Repository — репозиторий курсов валют.
type Repository struct {
	api   API
	store storage.Store
	langs Languages
	log   *slog.Logger
	now   func() time.Time
}

// New создаёт репозиторий курсов валют.
func New(api API, store storage.Store, langs Languages, log *slog.Logger) *Repository {
	return &Repository{
		api:   api,
		store: store,
		langs: langs,
		log:   log,
		now:   time.Now,
	}
}

// Rates отдаёт сохранённые курсы (если есть) и запрашивает свежие с сервера.
// Новые курсы приходят подписчику через хранилище. Ошибка сервера показывается,
// только если сохранённых курсов нет.
func (r *Repository) Rates(ctx context.Context) <-chan resource.Resource[models.CurrencyRates] {
	const op = "currency.Rates"
	log := r.log.With(slog.String("op", op))

	out := make(chan resource.Resource[models.CurrencyRates])
	go func() {
		defer close(out)
		lang := r.langs.Language(ctx)

		query := func(ctx context.Context) (models.CurrencyRates, error) {
			rates, err := r.store.CurrencyRates(ctx)
			if errors.Is(err, storage.ErrNotFound) {
				return models.CurrencyRates{}, live.ErrNoValue
			}
			return rates, err
		}
		mapErr := func(err error) string {
			log.Error("failed to read currency rates", sl.Err(err))
			return messages.Get(lang, messages.CacheError)
		}
		refresh := func(ctx context.Context, emit live.Emitter[models.CurrencyRates]) {
			_, cacheErr := r.store.CurrencyRates(ctx)
			err := r.Refresh(ctx)
			if err == nil || ctx.Err() != nil {
				return
			}
			log.Warn("failed to refresh currency rates", sl.Err(err))
			if errors.Is(cacheErr, storage.ErrNotFound) {
				emit(resource.NewError[models.CurrencyRates](tourismapi.UserMessage(err, lang)))
			}
		}

		live.Watch(ctx, r.store.Changes(), []live.Topic{live.Currency}, query, mapErr, out, refresh)
	}()
	return out
}

// Refresh загружает курсы с сервера и перезаписывает сохранённые.
func (r *Repository) Refresh(ctx context.Context) error {
	const op = "currency.Refresh"

	dtos, err := r.api.Currency(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rates := Extract(dtos)
	rates.UpdatedAt = r.now()

	if err := r.store.SetCurrencyRates(ctx, rates); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Extract находит курсы USD, EUR и RUB по коду без учёта регистра и пробелов.
// Отсутствующий курс равен NaN.
func Extract(dtos []tourismapi.CurrencyDTO) models.CurrencyRates {
	rates := models.CurrencyRates{
		USD: math.NaN(),
		EUR: math.NaN(),
		RUB: math.NaN(),
	}
	for _, d := range dtos {
		v := float64(d.Value)
		switch strings.ToUpper(strings.TrimSpace(d.CharCode)) {
		case USD:
			rates.USD = v
		case EUR:
			rates.EUR = v
		case RUB:
			rates.RUB = v
		}
	}
	return rates
}
