// Package memory реализует storage.Store в памяти процесса.
//
// Состояние неизменяемо: транзакция работает с копией и подменяет текущее
// состояние только при успешном завершении, поэтому читатели никогда не видят
// промежуточных результатов.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/magabrotheeeer/tourism-companion/internal/lib/live"
	"github.com/magabrotheeeer/tourism-companion/internal/models"
	"github.com/magabrotheeeer/tourism-companion/internal/storage"
)

type state struct {
	places   map[int64]models.Place
	reviews  map[int64]models.Review
	hashes   map[models.Category]string
	rates    *models.CurrencyRates
	personal *models.PersonalData
}

func newState() *state {
	return &state{
		places:  make(map[int64]models.Place),
		reviews: make(map[int64]models.Review),
		hashes:  make(map[models.Category]string),
	}
}

func (s *state) clone() *state {
	c := &state{
		places:   make(map[int64]models.Place, len(s.places)),
		reviews:  make(map[int64]models.Review, len(s.reviews)),
		hashes:   make(map[models.Category]string, len(s.hashes)),
		rates:    s.rates,
		personal: s.personal,
	}
	for k, v := range s.places {
		c.places[k] = v
	}
	for k, v := range s.reviews {
		c.reviews[k] = v
	}
	for k, v := range s.hashes {
		c.hashes[k] = v
	}
	return c
}

var _ storage.Store = (*Store)(nil)

// Store — хранилище в памяти.
type Store struct {
	mu      sync.RWMutex // защищает st
	write   sync.Mutex   // упорядочивает записи
	st      *state
	changes *live.Notifier
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		st:      newState(),
		changes: live.NewNotifier(),
	}
}

// Changes возвращает уведомитель об изменениях.
func (s *Store) Changes() *live.Notifier {
	return s.changes
}

func (s *Store) snapshot(ctx context.Context) (*state, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st, nil
}

func (s *Store) Hashes(ctx context.Context) ([]models.CategoryHash, error) {
	const op = "storage.memory.Hashes"
	st, err := s.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res := make([]models.CategoryHash, 0, len(st.hashes))
	for c, v := range st.hashes {
		res = append(res, models.CategoryHash{Category: c, Value: v})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Category < res[j].Category })
	return res, nil
}

func (s *Store) Hash(ctx context.Context, category models.Category) (string, error) {
	const op = "storage.memory.Hash"
	st, err := s.snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	v, ok := st.hashes[category]
	if !ok {
		return "", fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return v, nil
}

func (s *Store) PlacesByCategory(ctx context.Context, category models.Category) ([]models.PlaceShort, error) {
	const op = "storage.memory.PlacesByCategory"
	st, err := s.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return filterPlaces(st, func(p models.Place) bool { return p.Category == category }), nil
}

func (s *Store) TopPlaces(ctx context.Context, category models.Category) ([]models.PlaceShort, error) {
	const op = "storage.memory.TopPlaces"
	st, err := s.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return filterPlaces(st, func(p models.Place) bool { return p.Category == category && p.IsTop }), nil
}

func (s *Store) SearchPlaces(ctx context.Context, query string) ([]models.PlaceShort, error) {
	const op = "storage.memory.SearchPlaces"
	st, err := s.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return filterPlaces(st, func(p models.Place) bool { return nameContains(p.Name, query) }), nil
}

func (s *Store) FavoritePlaces(ctx context.Context, query string) ([]models.PlaceShort, error) {
	const op = "storage.memory.FavoritePlaces"
	st, err := s.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return filterPlaces(st, func(p models.Place) bool { return p.IsFavorite && nameContains(p.Name, query) }), nil
}

func (s *Store) FavoriteIDs(ctx context.Context) ([]int64, error) {
	const op = "storage.memory.FavoriteIDs"
	st, err := s.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return favoriteIDs(st), nil
}

func (s *Store) PlaceByID(ctx context.Context, id int64) (models.Place, error) {
	const op = "storage.memory.PlaceByID"
	st, err := s.snapshot(ctx)
	if err != nil {
		return models.Place{}, fmt.Errorf("%s: %w", op, err)
	}
	p, ok := st.places[id]
	if !ok {
		return models.Place{}, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	p.Reviews = nil
	for _, r := range st.reviews {
		if r.PlaceID == id {
			p.Reviews = append(p.Reviews, r)
		}
	}
	sort.Slice(p.Reviews, func(i, j int) bool { return p.Reviews[i].ID < p.Reviews[j].ID })
	return p, nil
}

func (s *Store) CurrencyRates(ctx context.Context) (models.CurrencyRates, error) {
	const op = "storage.memory.CurrencyRates"
	st, err := s.snapshot(ctx)
	if err != nil {
		return models.CurrencyRates{}, fmt.Errorf("%s: %w", op, err)
	}
	if st.rates == nil {
		return models.CurrencyRates{}, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return *st.rates, nil
}

func (s *Store) PersonalData(ctx context.Context) (models.PersonalData, error) {
	const op = "storage.memory.PersonalData"
	st, err := s.snapshot(ctx)
	if err != nil {
		return models.PersonalData{}, fmt.Errorf("%s: %w", op, err)
	}
	if st.personal == nil {
		return models.PersonalData{}, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return *st.personal, nil
}

func (s *Store) SetFavorite(ctx context.Context, id int64, favorite bool) error {
	const op = "storage.memory.SetFavorite"
	return s.update(ctx, op, func(st *state) ([]live.Topic, error) {
		p, ok := st.places[id]
		if !ok {
			return nil, storage.ErrNotFound
		}
		p.IsFavorite = favorite
		st.places[id] = p
		return []live.Topic{live.Places}, nil
	})
}

func (s *Store) SetCurrencyRates(ctx context.Context, rates models.CurrencyRates) error {
	const op = "storage.memory.SetCurrencyRates"
	return s.update(ctx, op, func(st *state) ([]live.Topic, error) {
		st.rates = &rates
		return []live.Topic{live.Currency}, nil
	})
}

func (s *Store) SetPersonalData(ctx context.Context, data models.PersonalData) error {
	const op = "storage.memory.SetPersonalData"
	return s.update(ctx, op, func(st *state) ([]live.Topic, error) {
		st.personal = &data
		return []live.Topic{live.Personal}, nil
	})
}

// WithTx выполняет fn над копией состояния и подменяет состояние, если fn завершилась без ошибки.
func (s *Store) WithTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	const op = "storage.memory.WithTx"
	return s.update(ctx, op, func(st *state) ([]live.Topic, error) {
		t := &tx{st: st, touched: make(map[live.Topic]struct{})}
		if err := fn(t); err != nil {
			return nil, err
		}
		topics := make([]live.Topic, 0, len(t.touched))
		for topic := range t.touched {
			topics = append(topics, topic)
		}
		return topics, nil
	})
}

func (s *Store) update(ctx context.Context, op string, fn func(st *state) ([]live.Topic, error)) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.write.Lock()
	defer s.write.Unlock()

	s.mu.RLock()
	next := s.st.clone()
	s.mu.RUnlock()

	topics, err := fn(next)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(topics) == 0 {
		return nil
	}

	s.mu.Lock()
	s.st = next
	s.mu.Unlock()

	s.changes.Notify(topics...)
	return nil
}

type tx struct {
	st      *state
	touched map[live.Topic]struct{}
}

func (t *tx) touch(topics ...live.Topic) {
	for _, topic := range topics {
		t.touched[topic] = struct{}{}
	}
}

func (t *tx) FavoriteIDs(ctx context.Context) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return favoriteIDs(t.st), nil
}

func (t *tx) DeleteAllPlaces(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.st.places = make(map[int64]models.Place)
	t.st.reviews = make(map[int64]models.Review)
	t.touch(live.Places, live.Reviews)
	return nil
}

func (t *tx) DeletePlacesByCategory(ctx context.Context, category models.Category) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var removed []int64
	for id, p := range t.st.places {
		if p.Category == category {
			removed = append(removed, id)
			delete(t.st.places, id)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	t.deleteReviews(removed)
	t.touch(live.Places, live.Reviews)
	return removed, nil
}

func (t *tx) InsertPlaces(ctx context.Context, places []models.Place) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, p := range places {
		if _, ok := t.st.places[p.ID]; ok {
			t.deleteReviews([]int64{p.ID})
			t.touch(live.Reviews)
		}
		p.Reviews = nil
		t.st.places[p.ID] = p
	}
	t.touch(live.Places)
	return nil
}

func (t *tx) DeleteAllReviews(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.st.reviews = make(map[int64]models.Review)
	t.touch(live.Reviews)
	return nil
}

func (t *tx) DeleteReviewsByPlaces(ctx context.Context, placeIDs []int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.deleteReviews(placeIDs)
	t.touch(live.Reviews)
	return nil
}

func (t *tx) deleteReviews(placeIDs []int64) {
	ids := make(map[int64]struct{}, len(placeIDs))
	for _, id := range placeIDs {
		ids[id] = struct{}{}
	}
	for id, r := range t.st.reviews {
		if _, ok := ids[r.PlaceID]; ok {
			delete(t.st.reviews, id)
		}
	}
}

func (t *tx) InsertReviews(ctx context.Context, reviews []models.Review) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, r := range reviews {
		if _, ok := t.st.places[r.PlaceID]; !ok {
			return fmt.Errorf("review %d references place %d: %w", r.ID, r.PlaceID, storage.ErrNotFound)
		}
		t.st.reviews[r.ID] = r
	}
	t.touch(live.Reviews)
	return nil
}

func (t *tx) SetHashes(ctx context.Context, hashes ...models.CategoryHash) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, h := range hashes {
		t.st.hashes[h.Category] = h.Value
	}
	t.touch(live.Hashes)
	return nil
}

func favoriteIDs(st *state) []int64 {
	ids := make([]int64, 0)
	for id, p := range st.places {
		if p.IsFavorite {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func filterPlaces(st *state, keep func(models.Place) bool) []models.PlaceShort {
	res := make([]models.PlaceShort, 0)
	for _, p := range st.places {
		if keep(p) {
			res = append(res, p.Short())
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func nameContains(name, query string) bool {
	return strings.Contains(strings.ToLower(name), strings.ToLower(query))
}
