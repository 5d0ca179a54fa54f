// Package places реализует репозиторий мест: первичную загрузку каталога,
// сверку категорий с сервером по хэшу и живые запросы к локальному хранилищу.
//
// Все методы, возвращающие канал, работают в собственной горутине до отмены ctx
// и закрывают канал при выходе. Ошибки не выходят за пределы resource.Resource:
// подписчик получает Error с текстом для пользователя.
package places

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/tourism-companion/internal/lib/live"
	"github.com/magabrotheeeer/tourism-companion/internal/lib/messages"
	"github.com/magabrotheeeer/tourism-companion/internal/lib/sl"
	"github.com/magabrotheeeer/tourism-companion/internal/metrics"
	"github.com/magabrotheeeer/tourism-companion/internal/models"
	"github.com/magabrotheeeer/tourism-companion/internal/resource"
	"github.com/magabrotheeeer/tourism-companion/internal/storage"
	"github.com/magabrotheeeer/tourism-companion/internal/tourismapi"
)

// API — методы удалённого API, которые нужны репозиторию.
type API interface {
	AllPlaces(ctx context.Context) (*tourismapi.AllPlacesDTO, error)
	PlacesByCategory(ctx context.Context, category models.Category) (*tourismapi.CategoryDTO, error)
	Favorites(ctx context.Context) ([]tourismapi.PlaceDTO, error)
}

// Languages отдаёт язык пользователя для текстов ошибок.
type Languages interface {
	Language(ctx context.Context) string
}

// BootstrapResult — итог первичной загрузки.
type BootstrapResult struct {
	Downloaded bool   // false, если данные уже были загружены раньше
	Places     int    // число сохранённых мест
	Message    string // текст для пользователя
}

// Repository — репозиторий мест.
type Repository struct {
	api     API
	store   storage.Store
	langs   Languages
	metrics *metrics.Metrics
	log     *slog.Logger
}

// New создаёт репозиторий мест. m может быть nil.
func New(api API, store storage.Store, langs Languages, m *metrics.Metrics, log *slog.Logger) *Repository {
	return &Repository{
		api:     api,
		store:   store,
		langs:   langs,
		metrics: m,
		log:     log,
	}
}

// DownloadAllIfFirstTime загружает весь каталог, если в хранилище ещё нет ни одного хэша.
// Поток конечен: Loading и затем Success или Error. Если данные уже есть,
// сразу приходит Success с Downloaded == false и сеть не используется.
func (r *Repository) DownloadAllIfFirstTime(ctx context.Context) <-chan resource.Resource[BootstrapResult] {
	out := make(chan resource.Resource[BootstrapResult])
	go func() {
		defer close(out)
		r.bootstrap(ctx, out)
	}()
	return out
}

func (r *Repository) bootstrap(ctx context.Context, out chan<- resource.Resource[BootstrapResult]) {
	const op = "places.DownloadAllIfFirstTime"
	log := r.log.With(slog.String("op", op))
	lang := r.langs.Language(ctx)
	send := func(res resource.Resource[BootstrapResult]) bool {
		return resource.Send(ctx.Done(), out, res)
	}

	hashes, err := r.store.Hashes(ctx)
	if err != nil {
		log.Error("failed to read category hashes", sl.Err(err))
		send(resource.NewError[BootstrapResult](r.message(lang, err)))
		return
	}
	if len(hashes) > 0 {
		send(resource.NewSuccess(BootstrapResult{Message: messages.Get(lang, messages.AlreadySynced)}))
		return
	}

	if !send(resource.NewLoading[BootstrapResult]()) {
		return
	}

	favorites := make(map[int64]bool)
	favs, err := r.api.Favorites(ctx)
	if err != nil {
		log.Warn("failed to fetch favorites, continuing without them", sl.Err(err))
	}
	for _, f := range favs {
		favorites[f.ID] = true
	}

	catalog, err := r.api.AllPlaces(ctx)
	if err != nil {
		log.Error("failed to fetch catalog", sl.Err(err))
		send(resource.NewError[BootstrapResult](r.message(lang, err)))
		return
	}

	var (
		places    []models.Place
		reviews   []models.Review
		newHashes []models.CategoryHash
	)
	for _, c := range models.Categories() {
		dtos, hash := catalog.ByCategory(c)
		p, rv, err := tourismapi.MapPlaces(dtos, c, favorites)
		if err != nil {
			log.Error("failed to map catalog", slog.String("category", c.String()), sl.Err(err))
			send(resource.NewError[BootstrapResult](r.message(lang, err)))
			return
		}
		places = append(places, p...)
		reviews = append(reviews, rv...)
		newHashes = append(newHashes, models.CategoryHash{Category: c, Value: hash})
	}

	err = r.store.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.DeleteAllPlaces(ctx); err != nil {
			return err
		}
		if err := tx.InsertPlaces(ctx, places); err != nil {
			return err
		}
		if err := tx.DeleteAllReviews(ctx); err != nil {
			return err
		}
		if err := tx.InsertReviews(ctx, reviews); err != nil {
			return err
		}
		return tx.SetHashes(ctx, newHashes...)
	})
	if err != nil {
		log.Error("failed to save catalog", sl.Err(err))
		send(resource.NewError[BootstrapResult](r.message(lang, err)))
		return
	}
	for _, c := range models.Categories() {
		r.metrics.ObserveReconcile(c.String(), metrics.OutcomeReplaced)
	}

	log.Info("catalog downloaded", slog.Int("places", len(places)), slog.Int("reviews", len(reviews)))
	send(resource.NewSuccess(BootstrapResult{
		Downloaded: true,
		Places:     len(places),
		Message:    messages.Get(lang, messages.GreatSuccess),
	}))
}

// PlacesByCategory отдаёт места категории из хранилища и сверяет категорию с сервером.
// Первое значение — текущее содержимое хранилища (возможно, пустое). Если хэш на сервере
// отличается, категория заменяется целиком и подписчик получает новый список один раз.
// Ошибка сети показывается только при первой загрузке категории, иначе остаётся сохранённый список.
func (r *Repository) PlacesByCategory(ctx context.Context, category models.Category) <-chan resource.Resource[[]models.PlaceShort] {
	const op = "places.PlacesByCategory"
	log := r.log.With(slog.String("op", op), slog.String("category", category.String()))

	if !category.Valid() {
		return single(ctx, resource.NewError[[]models.PlaceShort](
			messages.Get(r.langs.Language(ctx), messages.SomethingWrong)))
	}

	refresh := func(ctx context.Context, emit live.Emitter[[]models.PlaceShort]) {
		_, firstLoad, err := r.refresh(ctx, category)
		if err == nil || ctx.Err() != nil {
			return
		}
		log.Warn("failed to refresh category", sl.Err(err))
		if firstLoad {
			emit(resource.NewError[[]models.PlaceShort](r.message(r.langs.Language(ctx), err)))
		}
	}

	return watch(ctx, r, []live.Topic{live.Places}, func(ctx context.Context) ([]models.PlaceShort, error) {
		return r.store.PlacesByCategory(ctx, category)
	}, refresh)
}

// RefreshCategory сверяет категорию с сервером без подписки. Возвращает true,
// если содержимое категории было заменено.
func (r *Repository) RefreshCategory(ctx context.Context, category models.Category) (bool, error) {
	const op = "places.RefreshCategory"
	if !category.Valid() {
		return false, fmt.Errorf("%s: unknown category %d", op, int64(category))
	}
	replaced, _, err := r.refresh(ctx, category)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return replaced, nil
}

// refresh возвращает признак замены и признак первой загрузки (хэша категории в хранилище не было).
func (r *Repository) refresh(ctx context.Context, category models.Category) (bool, bool, error) {
	local, err := r.store.Hash(ctx, category)
	firstLoad := errors.Is(err, storage.ErrNotFound)
	if err != nil && !firstLoad {
		return false, false, err
	}

	remote, err := r.api.PlacesByCategory(ctx, category)
	if err != nil {
		r.metrics.ObserveReconcile(category.String(), metrics.OutcomeFailed)
		return false, firstLoad, err
	}
	if !firstLoad && remote.Hash == local {
		r.metrics.ObserveReconcile(category.String(), metrics.OutcomeUnchanged)
		return false, false, nil
	}

	err = r.store.WithTx(ctx, func(tx storage.Tx) error {
		ids, err := tx.FavoriteIDs(ctx)
		if err != nil {
			return err
		}
		favorites := make(map[int64]bool, len(ids))
		for _, id := range ids {
			favorites[id] = true
		}

		places, reviews, err := tourismapi.MapPlaces(remote.Data, category, favorites)
		if err != nil {
			return err
		}

		removed, err := tx.DeletePlacesByCategory(ctx, category)
		if err != nil {
			return err
		}
		if err := tx.InsertPlaces(ctx, places); err != nil {
			return err
		}
		affected := removed
		for _, p := range places {
			affected = append(affected, p.ID)
		}
		if err := tx.DeleteReviewsByPlaces(ctx, affected); err != nil {
			return err
		}
		if err := tx.InsertReviews(ctx, reviews); err != nil {
			return err
		}
		return tx.SetHashes(ctx, models.CategoryHash{Category: category, Value: remote.Hash})
	})
	if err != nil {
		r.metrics.ObserveReconcile(category.String(), metrics.OutcomeFailed)
		return false, firstLoad, err
	}

	r.metrics.ObserveReconcile(category.String(), metrics.OutcomeReplaced)
	r.log.Debug("category replaced",
		slog.String("category", category.String()),
		slog.Int("places", len(remote.Data)),
		slog.String("hash", remote.Hash),
	)
	return true, firstLoad, nil
}

// Search ищет места по подстроке в названии без учёта регистра. Сеть не используется.
func (r *Repository) Search(ctx context.Context, query string) <-chan resource.Resource[[]models.PlaceShort] {
	return watch(ctx, r, []live.Topic{live.Places}, func(ctx context.Context) ([]models.PlaceShort, error) {
		return r.store.SearchPlaces(ctx, query)
	}, nil)
}

// PlaceByID отдаёт место вместе с отзывами. Если места нет — Error.
func (r *Repository) PlaceByID(ctx context.Context, id int64) <-chan resource.Resource[models.Place] {
	return watch(ctx, r, []live.Topic{live.Places, live.Reviews}, func(ctx context.Context) (models.Place, error) {
		return r.store.PlaceByID(ctx, id)
	}, nil)
}

// Favorites отдаёт избранные места, название которых содержит query.
func (r *Repository) Favorites(ctx context.Context, query string) <-chan resource.Resource[[]models.PlaceShort] {
	return watch(ctx, r, []live.Topic{live.Places}, func(ctx context.Context) ([]models.PlaceShort, error) {
		return r.store.FavoritePlaces(ctx, query)
	}, nil)
}

// TopPlaces отдаёт лучшие места категории по флагу, рассчитанному сервером.
func (r *Repository) TopPlaces(ctx context.Context, category models.Category) <-chan resource.Resource[[]models.PlaceShort] {
	return watch(ctx, r, []live.Topic{live.Places}, func(ctx context.Context) ([]models.PlaceShort, error) {
		return r.store.TopPlaces(ctx, category)
	}, nil)
}

// SetFavorite меняет флаг избранного в хранилище. Подписчики получат обновлённые списки.
func (r *Repository) SetFavorite(ctx context.Context, id int64, favorite bool) error {
	const op = "places.SetFavorite"
	if err := r.store.SetFavorite(ctx, id, favorite); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Message переводит ошибку репозитория в текст для пользователя.
func (r *Repository) Message(ctx context.Context, err error) string {
	return r.message(r.langs.Language(ctx), err)
}

func (r *Repository) message(lang string, err error) string {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return messages.Get(lang, messages.PlaceNotFound)
	case tourismapi.IsRemote(err):
		return tourismapi.UserMessage(err, lang)
	default:
		return messages.Get(lang, messages.CacheError)
	}
}

func watch[T any](
	ctx context.Context,
	r *Repository,
	topics []live.Topic,
	query live.Query[T],
	then live.Step[T],
) <-chan resource.Resource[T] {
	out := make(chan resource.Resource[T])
	go func() {
		defer close(out)
		r.metrics.SubscriberStarted()
		defer r.metrics.SubscriberStopped()

		lang := r.langs.Language(ctx)
		mapErr := func(err error) string {
			r.log.Error("live query failed", slog.Any("topics", topics), sl.Err(err))
			return r.message(lang, err)
		}
		live.Watch(ctx, r.store.Changes(), topics, query, mapErr, out, then)
	}()
	return out
}

func single[T any](ctx context.Context, res resource.Resource[T]) <-chan resource.Resource[T] {
	out := make(chan resource.Resource[T])
	go func() {
		defer close(out)
		resource.Send(ctx.Done(), out, res)
	}()
	return out
}
