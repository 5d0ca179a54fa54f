package places

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/tourism-companion/internal/lib/live"
	"github.com/magabrotheeeer/tourism-companion/internal/lib/messages"
	"github.com/magabrotheeeer/tourism-companion/internal/models"
	"github.com/magabrotheeeer/tourism-companion/internal/resource"
	"github.com/magabrotheeeer/tourism-companion/internal/storage"
	"github.com/magabrotheeeer/tourism-companion/internal/storage/memory"
	"github.com/magabrotheeeer/tourism-companion/internal/tourismapi"
)

type APIMock struct{ mock.Mock }

func (m *APIMock) AllPlaces(ctx context.Context) (*tourismapi.AllPlacesDTO, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tourismapi.AllPlacesDTO), args.Error(1)
}

func (m *APIMock) PlacesByCategory(ctx context.Context, category models.Category) (*tourismapi.CategoryDTO, error) {
	args := m.Called(ctx, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tourismapi.CategoryDTO), args.Error(1)
}

func (m *APIMock) Favorites(ctx context.Context) ([]tourismapi.PlaceDTO, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]tourismapi.PlaceDTO), args.Error(1)
}

type fixedLang string

func (l fixedLang) Language(context.Context) string { return string(l) }

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func newRepo(api *APIMock) (*Repository, *memory.Store) {
	store := memory.New()
	return New(api, store, fixedLang("en"), nil, newNoopLogger()), store
}

func receive[T any](t *testing.T, ch <-chan resource.Resource[T]) resource.Resource[T] {
	t.Helper()
	select {
	case r, ok := <-ch:
		require.True(t, ok, "stream closed unexpectedly")
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for emission")
	}
	return resource.Resource[T]{}
}

func assertSilent[T any](t *testing.T, ch <-chan resource.Resource[T]) {
	t.Helper()
	select {
	case r, ok := <-ch:
		if ok {
			t.Fatalf("unexpected emission: %+v", r)
		}
	case <-time.After(150 * time.Millisecond):
	}
}

func assertClosed[T any](t *testing.T, ch <-chan resource.Resource[T]) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream was not closed")
		}
	}
}

func ids(places []models.PlaceShort) []int64 {
	res := make([]int64, 0, len(places))
	for _, p := range places {
		res = append(res, p.ID)
	}
	return res
}

func dtoPlace(id int64, name string) tourismapi.PlaceDTO {
	return tourismapi.PlaceDTO{
		ID:      id,
		Name:    name,
		IsTop:   id%2 == 1,
		Reviews: []tourismapi.ReviewDTO{{ID: id * 100, Rating: 5, Comment: "review of " + name}},
	}
}

// catalog возвращает по perCategory мест в каждой из трёх категорий с последовательными ID.
func catalog(perCategory int) *tourismapi.AllPlacesDTO {
	var id int64
	next := func(prefix string) []tourismapi.PlaceDTO {
		var res []tourismapi.PlaceDTO
		for i := 0; i < perCategory; i++ {
			id++
			res = append(res, dtoPlace(id, fmt.Sprintf("%s %d", prefix, id)))
		}
		return res
	}
	return &tourismapi.AllPlacesDTO{
		Attractions:        next("Sight"),
		Restaurants:        next("Restaurant"),
		Accommodations:     next("Hotel"),
		AttractionsHash:    "hs",
		RestaurantsHash:    "hr",
		AccommodationsHash: "hh",
	}
}

func seed(t *testing.T, store *memory.Store, hash string, places ...models.Place) {
	t.Helper()
	ctx := context.Background()
	err := store.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.InsertPlaces(ctx, places); err != nil {
			return err
		}
		var reviews []models.Review
		for _, p := range places {
			reviews = append(reviews, models.Review{ID: p.ID*10 + 1, PlaceID: p.ID, Comment: "old"})
		}
		if err := tx.InsertReviews(ctx, reviews); err != nil {
			return err
		}
		if hash == "" {
			return nil
		}
		return tx.SetHashes(ctx, models.CategoryHash{Category: models.Sights, Value: hash})
	})
	require.NoError(t, err)
}

func TestDownloadAllIfFirstTime(t *testing.T) {
	tests := []struct {
		name        string
		setupMocks  func(api *APIMock)
		wantSuccess bool
		wantPlaces  int
		wantFavs    []int64
		wantMessage string
	}{
		{
			name: "first run downloads every category",
			setupMocks: func(api *APIMock) {
				api.On("Favorites", mock.Anything).Return([]tourismapi.PlaceDTO{{ID: 2}, {ID: 8}}, nil).Once()
				api.On("AllPlaces", mock.Anything).Return(catalog(6), nil).Once()
			},
			wantSuccess: true,
			wantPlaces:  18,
			wantFavs:    []int64{2, 8},
			wantMessage: messages.Get("en", messages.GreatSuccess),
		},
		{
			name: "favorites failure is not fatal",
			setupMocks: func(api *APIMock) {
				api.On("Favorites", mock.Anything).Return(nil, tourismapi.ErrServer).Once()
				api.On("AllPlaces", mock.Anything).Return(catalog(2), nil).Once()
			},
			wantSuccess: true,
			wantPlaces:  6,
			wantFavs:    []int64{},
			wantMessage: messages.Get("en", messages.GreatSuccess),
		},
		{
			name: "offline",
			setupMocks: func(api *APIMock) {
				api.On("Favorites", mock.Anything).Return(nil, tourismapi.ErrOffline).Once()
				api.On("AllPlaces", mock.Anything).Return(nil, fmt.Errorf("tourismapi.AllPlaces: %w", tourismapi.ErrOffline)).Once()
			},
			wantFavs:    []int64{},
			wantMessage: messages.Get("en", messages.NoNetwork),
		},
		{
			name: "mapping failure behaves like a network failure",
			setupMocks: func(api *APIMock) {
				broken := catalog(1)
				broken.Restaurants[0].ID = 0
				api.On("Favorites", mock.Anything).Return([]tourismapi.PlaceDTO{}, nil).Once()
				api.On("AllPlaces", mock.Anything).Return(broken, nil).Once()
			},
			wantFavs:    []int64{},
			wantMessage: messages.Get("en", messages.SomethingWrong),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &APIMock{}
			tt.setupMocks(api)
			repo, store := newRepo(api)
			ctx := context.Background()

			ch := repo.DownloadAllIfFirstTime(ctx)
			assert.True(t, receive(t, ch).IsLoading())

			res := receive(t, ch)
			assertClosed(t, ch)

			if tt.wantSuccess {
				require.True(t, res.IsSuccess(), res.Message)
				assert.True(t, res.Data.Downloaded)
				assert.Equal(t, tt.wantPlaces, res.Data.Places)
				assert.Equal(t, tt.wantMessage, res.Data.Message)

				all, err := store.SearchPlaces(ctx, "")
				require.NoError(t, err)
				assert.Len(t, all, tt.wantPlaces)

				hashes, err := store.Hashes(ctx)
				require.NoError(t, err)
				assert.Len(t, hashes, 3)

				place, err := store.PlaceByID(ctx, 1)
				require.NoError(t, err)
				assert.Len(t, place.Reviews, 1)
			} else {
				require.True(t, res.IsError())
				assert.Equal(t, tt.wantMessage, res.Message)

				hashes, err := store.Hashes(ctx)
				require.NoError(t, err)
				assert.Empty(t, hashes)
			}

			favs, err := store.FavoriteIDs(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFavs, favs)
			api.AssertExpectations(t)
		})
	}
}

func TestDownloadAllIfFirstTime_CategoryLayout(t *testing.T) {
	places := func(from int64, n int, prefix string) []tourismapi.PlaceDTO {
		var res []tourismapi.PlaceDTO
		for i := 0; i < n; i++ {
			id := from + int64(i)
			res = append(res, dtoPlace(id, fmt.Sprintf("%s %d", prefix, id)))
		}
		return res
	}
	api := &APIMock{}
	api.On("Favorites", mock.Anything).Return([]tourismapi.PlaceDTO{{ID: 2}}, nil).Once()
	api.On("AllPlaces", mock.Anything).Return(&tourismapi.AllPlacesDTO{
		Attractions:        places(1, 10, "Sight"),
		Restaurants:        places(101, 5, "Restaurant"),
		Accommodations:     places(201, 3, "Hotel"),
		AttractionsHash:    "h1",
		RestaurantsHash:    "h2",
		AccommodationsHash: "h3",
	}, nil).Once()
	repo, store := newRepo(api)
	ctx := context.Background()

	ch := repo.DownloadAllIfFirstTime(ctx)
	assert.True(t, receive(t, ch).IsLoading())
	res := receive(t, ch)
	assertClosed(t, ch)
	require.True(t, res.IsSuccess(), res.Message)
	assert.Equal(t, 18, res.Data.Places)

	tests := []struct {
		category models.Category
		hash     string
		ids      []int64
	}{
		{category: models.Sights, hash: "h1", ids: []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
		{category: models.Restaurants, hash: "h2", ids: []int64{101, 102, 103, 104, 105}},
		{category: models.Hotels, hash: "h3", ids: []int64{201, 202, 203}},
	}
	for _, tt := range tests {
		t.Run(tt.category.String(), func(t *testing.T) {
			hash, err := store.Hash(ctx, tt.category)
			require.NoError(t, err)
			assert.Equal(t, tt.hash, hash)

			got, err := store.PlacesByCategory(ctx, tt.category)
			require.NoError(t, err)
			assert.Equal(t, tt.ids, ids(got))
			for _, p := range got {
				assert.Equal(t, tt.category, p.Category)
				assert.Equal(t, p.ID == 2, p.IsFavorite, "place %d", p.ID)
			}
		})
	}

	favs, err := store.FavoriteIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, favs)
	api.AssertExpectations(t)
}

func TestDownloadAllIfFirstTime_AlreadyDownloaded(t *testing.T) {
	api := &APIMock{}
	repo, store := newRepo(api)
	seed(t, store, "hs", models.Place{ID: 1, Category: models.Sights, Name: "Red Square"})

	ch := repo.DownloadAllIfFirstTime(context.Background())
	res := receive(t, ch)
	require.True(t, res.IsSuccess())
	assert.False(t, res.Data.Downloaded)
	assert.Equal(t, messages.Get("en", messages.AlreadySynced), res.Data.Message)
	assertClosed(t, ch)

	api.AssertNotCalled(t, "AllPlaces", mock.Anything)
	api.AssertNotCalled(t, "Favorites", mock.Anything)
}

func TestPlacesByCategory_EqualHashWritesNothing(t *testing.T) {
	api := &APIMock{}
	repo, store := newRepo(api)
	seed(t, store, "h1",
		models.Place{ID: 1, Category: models.Sights, Name: "Red Square"},
		models.Place{ID: 2, Category: models.Sights, Name: "Bolshoi"},
	)

	called := make(chan struct{})
	api.On("PlacesByCategory", mock.Anything, models.Sights).
		Return(&tourismapi.CategoryDTO{Data: []tourismapi.PlaceDTO{dtoPlace(9, "Other")}, Hash: "h1"}, nil).
		Run(func(mock.Arguments) { close(called) }).
		Once()

	placesVersion := store.Changes().Version(live.Places)
	hashesVersion := store.Changes().Version(live.Hashes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := repo.PlacesByCategory(ctx, models.Sights)
	first := receive(t, ch)
	require.True(t, first.IsSuccess())
	assert.Equal(t, []int64{1, 2}, ids(first.Data))

	<-called
	assertSilent(t, ch)

	assert.Equal(t, placesVersion, store.Changes().Version(live.Places))
	assert.Equal(t, hashesVersion, store.Changes().Version(live.Hashes))
	api.AssertExpectations(t)
}

func TestPlacesByCategory_HashChangedReplacesCategory(t *testing.T) {
	api := &APIMock{}
	repo, store := newRepo(api)
	seed(t, store, "old",
		models.Place{ID: 1, Category: models.Sights, Name: "Red Square", IsFavorite: true},
		models.Place{ID: 2, Category: models.Sights, Name: "Bolshoi"},
	)
	api.On("PlacesByCategory", mock.Anything, models.Sights).
		Return(&tourismapi.CategoryDTO{
			Data: []tourismapi.PlaceDTO{dtoPlace(1, "Red Square"), dtoPlace(5, "Kremlin")},
			Hash: "new",
		}, nil).
		Once()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := repo.PlacesByCategory(ctx, models.Sights)
	first := receive(t, ch)
	assert.Equal(t, []int64{1, 2}, ids(first.Data))

	second := receive(t, ch)
	require.True(t, second.IsSuccess())
	assert.Equal(t, []int64{1, 5}, ids(second.Data))
	assert.True(t, second.Data[0].IsFavorite, "favorite flag must survive replacement")
	assert.False(t, second.Data[1].IsFavorite)

	assertSilent(t, ch)

	hash, err := store.Hash(ctx, models.Sights)
	require.NoError(t, err)
	assert.Equal(t, "new", hash)

	_, err = store.PlaceByID(ctx, 2)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	place, err := store.PlaceByID(ctx, 1)
	require.NoError(t, err)
	require.Len(t, place.Reviews, 1)
	assert.Equal(t, int64(100), place.Reviews[0].ID)
}

func TestPlacesByCategory_FailureKeepsSnapshot(t *testing.T) {
	api := &APIMock{}
	repo, store := newRepo(api)
	seed(t, store, "h1", models.Place{ID: 1, Category: models.Sights, Name: "Red Square"})

	api.On("PlacesByCategory", mock.Anything, models.Sights).Return(nil, tourismapi.ErrServer).Once()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := repo.PlacesByCategory(ctx, models.Sights)
	first := receive(t, ch)
	require.True(t, first.IsSuccess())
	assert.Equal(t, []int64{1}, ids(first.Data))

	assertSilent(t, ch)
}

func TestPlacesByCategory_FirstLoadFailureIsReported(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{name: "validation", err: &tourismapi.UserError{Message: "invalid"}, wantMsg: "invalid"},
		{name: "offline", err: tourismapi.ErrOffline, wantMsg: messages.Get("en", messages.NoNetwork)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &APIMock{}
			repo, _ := newRepo(api)
			api.On("PlacesByCategory", mock.Anything, models.Hotels).Return(nil, tt.err).Once()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			ch := repo.PlacesByCategory(ctx, models.Hotels)
			first := receive(t, ch)
			require.True(t, first.IsSuccess())
			assert.Empty(t, first.Data)

			second := receive(t, ch)
			require.True(t, second.IsError())
			assert.Equal(t, tt.wantMsg, second.Message)
		})
	}
}

func TestPlacesByCategory_CancelClosesStream(t *testing.T) {
	api := &APIMock{}
	repo, store := newRepo(api)
	seed(t, store, "h1", models.Place{ID: 1, Category: models.Sights, Name: "Red Square"})
	api.On("PlacesByCategory", mock.Anything, models.Sights).
		Return(&tourismapi.CategoryDTO{Hash: "h1"}, nil).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	ch := repo.PlacesByCategory(ctx, models.Sights)
	receive(t, ch)
	cancel()
	assertClosed(t, ch)
}

func TestPlacesByCategory_UnknownCategory(t *testing.T) {
	repo, _ := newRepo(&APIMock{})
	ch := repo.PlacesByCategory(context.Background(), models.Category(42))
	res := receive(t, ch)
	assert.True(t, res.IsError())
	assertClosed(t, ch)
}

func TestRefreshCategory(t *testing.T) {
	api := &APIMock{}
	repo, store := newRepo(api)
	api.On("PlacesByCategory", mock.Anything, models.Restaurants).
		Return(&tourismapi.CategoryDTO{Data: []tourismapi.PlaceDTO{dtoPlace(7, "Cafe")}, Hash: "r1"}, nil).
		Twice()
	ctx := context.Background()

	replaced, err := repo.RefreshCategory(ctx, models.Restaurants)
	require.NoError(t, err)
	assert.True(t, replaced)

	version := store.Changes().Version(live.Places)
	replaced, err = repo.RefreshCategory(ctx, models.Restaurants)
	require.NoError(t, err)
	assert.False(t, replaced)
	assert.Equal(t, version, store.Changes().Version(live.Places))

	_, err = repo.RefreshCategory(ctx, models.Category(0))
	assert.Error(t, err)
	api.AssertExpectations(t)
}

func TestFavorites_FollowsToggle(t *testing.T) {
	api := &APIMock{}
	repo, store := newRepo(api)
	seed(t, store, "h1",
		models.Place{ID: 1, Category: models.Sights, Name: "Red Square"},
		models.Place{ID: 2, Category: models.Sights, Name: "Bolshoi", IsFavorite: true},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := repo.Favorites(ctx, "")
	assert.Equal(t, []int64{2}, ids(receive(t, ch).Data))

	require.NoError(t, repo.SetFavorite(ctx, 1, true))
	assert.Equal(t, []int64{1, 2}, ids(receive(t, ch).Data))

	require.NoError(t, repo.SetFavorite(ctx, 2, false))
	assert.Equal(t, []int64{1}, ids(receive(t, ch).Data))

	err := repo.SetFavorite(ctx, 100, true)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, messages.Get("en", messages.PlaceNotFound), repo.Message(ctx, err))
}

func TestReadThroughQueries(t *testing.T) {
	api := &APIMock{}
	repo, store := newRepo(api)
	seed(t, store, "h1",
		models.Place{ID: 1, Category: models.Sights, Name: "Red Square", IsTop: true},
		models.Place{ID: 2, Category: models.Sights, Name: "Bolshoi Theatre"},
		models.Place{ID: 3, Category: models.Restaurants, Name: "Cafe Pushkin", IsFavorite: true},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.Equal(t, []int64{2}, ids(receive(t, repo.Search(ctx, "THEATRE")).Data))
	assert.Equal(t, []int64{3}, ids(receive(t, repo.Favorites(ctx, "cafe")).Data))
	assert.Empty(t, receive(t, repo.Favorites(ctx, "square")).Data)
	assert.Equal(t, []int64{1}, ids(receive(t, repo.TopPlaces(ctx, models.Sights)).Data))

	place := receive(t, repo.PlaceByID(ctx, 1))
	require.True(t, place.IsSuccess())
	assert.Equal(t, "Red Square", place.Data.Name)
	assert.Len(t, place.Data.Reviews, 1)

	missing := receive(t, repo.PlaceByID(ctx, 404))
	require.True(t, missing.IsError())
	assert.Equal(t, messages.Get("en", messages.PlaceNotFound), missing.Message)

	api.AssertNotCalled(t, "PlacesByCategory", mock.Anything, mock.Anything)
}
