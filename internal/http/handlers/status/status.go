// Package status отдаёт состояние локального кеша: хэши категорий
// и время последнего обновления курсов валют.
package status

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/tourism-companion/internal/http/response"
	"github.com/magabrotheeeer/tourism-companion/internal/lib/sl"
	"github.com/magabrotheeeer/tourism-companion/internal/models"
	"github.com/magabrotheeeer/tourism-companion/internal/storage"
)

// Store — методы хранилища, которые читает обработчик.
type Store interface {
	Hashes(ctx context.Context) ([]models.CategoryHash, error)
	CurrencyRates(ctx context.Context) (models.CurrencyRates, error)
}

// Category — хэш одной категории в ответе.
type Category struct {
	Category string `json:"category"`
	Hash     string `json:"hash"`
}

// Status — тело успешного ответа.
type Status struct {
	Synced            bool       `json:"synced"`
	Categories        []Category `json:"categories"`
	CurrencyUpdatedAt *time.Time `json:"currency_updated_at,omitempty"`
}

// Handler обрабатывает GET /status.
type Handler struct {
	log   *slog.Logger
	store Store
}

// New создаёт обработчик.
func New(log *slog.Logger, store Store) *Handler {
	return &Handler{
		log:   log,
		store: store,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.status"
	log := sl.Op(h.log, op)

	hashes, err := h.store.Hashes(r.Context())
	if err != nil {
		log.Error("failed to read category hashes", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to read cache state"))
		return
	}

	res := Status{
		Synced:     len(hashes) > 0,
		Categories: make([]Category, 0, len(hashes)),
	}
	for _, hash := range hashes {
		res.Categories = append(res.Categories, Category{Category: hash.Category.String(), Hash: hash.Value})
	}

	rates, err := h.store.CurrencyRates(r.Context())
	switch {
	case err == nil:
		res.CurrencyUpdatedAt = &rates.UpdatedAt
	case !errors.Is(err, storage.ErrNotFound):
		log.Error("failed to read currency rates", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to read cache state"))
		return
	}

	render.JSON(w, r, response.OK(res))
}
