// Package storage описывает локальное хранилище путеводителя: места, отзывы,
// хэши категорий, курсы валют и персональные данные.
//
// Реализации: memory (в памяти процесса) и postgresql. Каждая зафиксированная
// запись увеличивает версии затронутых тем в Changes(), на этом построены живые запросы.
package storage

import (
	"context"
	"errors"

	"github.com/magabrotheeeer/tourism-companion/internal/lib/live"
	"github.com/magabrotheeeer/tourism-companion/internal/models"
)

// ErrNotFound возвращается, если запрошенной строки нет.
var ErrNotFound = errors.New("not found")

// Store — локальное хранилище.
type Store interface {
	// Hashes возвращает все сохранённые хэши категорий.
	Hashes(ctx context.Context) ([]models.CategoryHash, error)
	// Hash возвращает хэш категории или ErrNotFound.
	Hash(ctx context.Context, category models.Category) (string, error)
	PlacesByCategory(ctx context.Context, category models.Category) ([]models.PlaceShort, error)
	TopPlaces(ctx context.Context, category models.Category) ([]models.PlaceShort, error)
	// SearchPlaces ищет места, в названии которых есть query без учёта регистра.
	SearchPlaces(ctx context.Context, query string) ([]models.PlaceShort, error)
	// FavoritePlaces возвращает избранные места, в названии которых есть query.
	FavoritePlaces(ctx context.Context, query string) ([]models.PlaceShort, error)
	FavoriteIDs(ctx context.Context) ([]int64, error)
	// PlaceByID возвращает место вместе с отзывами или ErrNotFound.
	PlaceByID(ctx context.Context, id int64) (models.Place, error)
	CurrencyRates(ctx context.Context) (models.CurrencyRates, error)
	PersonalData(ctx context.Context) (models.PersonalData, error)

	// SetFavorite меняет флаг избранного у места. ErrNotFound, если места нет.
	SetFavorite(ctx context.Context, id int64, favorite bool) error
	SetCurrencyRates(ctx context.Context, rates models.CurrencyRates) error
	SetPersonalData(ctx context.Context, data models.PersonalData) error

	// WithTx выполняет fn в одной транзакции. Если fn вернула ошибку, изменения отменяются.
	// Подписчики узнают об изменениях один раз, после фиксации.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Changes() *live.Notifier
}

// Tx — операции, доступные внутри транзакции.
type Tx interface {
	FavoriteIDs(ctx context.Context) ([]int64, error)
	DeleteAllPlaces(ctx context.Context) error
	// DeletePlacesByCategory удаляет места категории и возвращает их идентификаторы.
	DeletePlacesByCategory(ctx context.Context, category models.Category) ([]int64, error)
	// InsertPlaces сохраняет места. Место с уже существующим ID перезаписывается,
	// его прежние отзывы удаляются.
	InsertPlaces(ctx context.Context, places []models.Place) error
	DeleteAllReviews(ctx context.Context) error
	DeleteReviewsByPlaces(ctx context.Context, placeIDs []int64) error
	InsertReviews(ctx context.Context, reviews []models.Review) error
	SetHashes(ctx context.Context, hashes ...models.CategoryHash) error
}
