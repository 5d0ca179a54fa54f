package postgresql

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/tourism-companion/internal/lib/live"
	"github.com/magabrotheeeer/tourism-companion/internal/models"
	"github.com/magabrotheeeer/tourism-companion/internal/storage"
)

func setupStorage(t *testing.T) *Storage {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := New(ctx, dsn)
	require.NoError(t, err, "failed to connect test db")
	t.Cleanup(s.Close)
	return s
}

func seed(t *testing.T, s *Storage) {
	t.Helper()
	ctx := context.Background()
	err := s.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.InsertPlaces(ctx, []models.Place{
			{ID: 1, Category: models.Sights, Name: "Red Square", IsTop: true, Gallery: []string{"a.jpg"}},
			{ID: 2, Category: models.Sights, Name: "100%_Theatre", IsFavorite: true},
			{ID: 3, Category: models.Restaurants, Name: "Cafe Pushkin", IsFavorite: true},
		}); err != nil {
			return err
		}
		if err := tx.InsertReviews(ctx, []models.Review{
			{ID: 10, PlaceID: 1, Comment: "great", Images: []string{"r.jpg"}},
			{ID: 11, PlaceID: 1, Comment: "crowded"},
			{ID: 12, PlaceID: 3, Comment: "tasty"},
		}); err != nil {
			return err
		}
		return tx.SetHashes(ctx,
			models.CategoryHash{Category: models.Sights, Value: "s1"},
			models.CategoryHash{Category: models.Restaurants, Value: "r1"},
		)
	})
	require.NoError(t, err)
}

func TestStorage(t *testing.T) {
	s := setupStorage(t)
	seed(t, s)
	ctx := context.Background()

	t.Run("reads", func(t *testing.T) {
		sights, err := s.PlacesByCategory(ctx, models.Sights)
		require.NoError(t, err)
		require.Len(t, sights, 2)
		assert.Equal(t, models.Sights, sights[0].Category)

		top, err := s.TopPlaces(ctx, models.Sights)
		require.NoError(t, err)
		require.Len(t, top, 1)
		assert.Equal(t, int64(1), top[0].ID)

		found, err := s.SearchPlaces(ctx, "pUsH")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, int64(3), found[0].ID)

		found, err = s.SearchPlaces(ctx, "%_")
		require.NoError(t, err)
		require.Len(t, found, 1, "LIKE wildcards in the query must match literally")
		assert.Equal(t, int64(2), found[0].ID)

		favs, err := s.FavoritePlaces(ctx, "")
		require.NoError(t, err)
		assert.Len(t, favs, 2)

		ids, err := s.FavoriteIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 3}, ids)

		place, err := s.PlaceByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.jpg"}, place.Gallery)
		require.Len(t, place.Reviews, 2)
		assert.Equal(t, []string{"r.jpg"}, place.Reviews[0].Images)

		_, err = s.PlaceByID(ctx, 404)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		hashes, err := s.Hashes(ctx)
		require.NoError(t, err)
		assert.Len(t, hashes, 2)

		_, err = s.Hash(ctx, models.Hotels)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("rollback", func(t *testing.T) {
		before := s.Changes().Version(live.Places)
		boom := errors.New("boom")
		err := s.WithTx(ctx, func(tx storage.Tx) error {
			if _, err := tx.DeletePlacesByCategory(ctx, models.Sights); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		sights, err := s.PlacesByCategory(ctx, models.Sights)
		require.NoError(t, err)
		assert.Len(t, sights, 2)
		assert.Equal(t, before, s.Changes().Version(live.Places))
	})

	t.Run("replace category", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx storage.Tx) error {
			removed, err := tx.DeletePlacesByCategory(ctx, models.Restaurants)
			if err != nil {
				return err
			}
			assert.ElementsMatch(t, []int64{3}, removed)
			if err := tx.InsertPlaces(ctx, []models.Place{{ID: 4, Category: models.Restaurants, Name: "Varenichnaya"}}); err != nil {
				return err
			}
			if err := tx.DeleteReviewsByPlaces(ctx, []int64{3, 4}); err != nil {
				return err
			}
			if err := tx.InsertReviews(ctx, []models.Review{{ID: 13, PlaceID: 4}}); err != nil {
				return err
			}
			return tx.SetHashes(ctx, models.CategoryHash{Category: models.Restaurants, Value: "r2"})
		})
		require.NoError(t, err)

		hash, err := s.Hash(ctx, models.Restaurants)
		require.NoError(t, err)
		assert.Equal(t, "r2", hash)

		_, err = s.PlaceByID(ctx, 3)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		place, err := s.PlaceByID(ctx, 4)
		require.NoError(t, err)
		assert.Len(t, place.Reviews, 1)
	})

	t.Run("place and reviews come from one snapshot", func(t *testing.T) {
		replaceHotel := func(version int) error {
			name := fmt.Sprintf("v%d", version)
			return s.WithTx(ctx, func(tx storage.Tx) error {
				if _, err := tx.DeletePlacesByCategory(ctx, models.Hotels); err != nil {
					return err
				}
				if err := tx.InsertPlaces(ctx, []models.Place{{ID: 50, Category: models.Hotels, Name: name}}); err != nil {
					return err
				}
				return tx.InsertReviews(ctx, []models.Review{
					{ID: 500, PlaceID: 50, Comment: name},
					{ID: 501, PlaceID: 50, Comment: name},
				})
			})
		}
		require.NoError(t, replaceHotel(0))

		done := make(chan error, 1)
		go func() {
			for i := 1; i <= 100; i++ {
				if err := replaceHotel(i); err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}()

		for {
			select {
			case err := <-done:
				require.NoError(t, err)
				place, err := s.PlaceByID(ctx, 50)
				require.NoError(t, err)
				assert.Equal(t, "v100", place.Name)
				return
			default:
			}
			place, err := s.PlaceByID(ctx, 50)
			require.NoError(t, err)
			require.Len(t, place.Reviews, 2)
			for _, r := range place.Reviews {
				require.Equal(t, place.Name, r.Comment, "reviews must belong to the same version of the place")
			}
		}
	})

	t.Run("favorite", func(t *testing.T) {
		require.NoError(t, s.SetFavorite(ctx, 1, true))
		place, err := s.PlaceByID(ctx, 1)
		require.NoError(t, err)
		assert.True(t, place.IsFavorite)

		assert.ErrorIs(t, s.SetFavorite(ctx, 999, true), storage.ErrNotFound)
	})

	t.Run("singletons", func(t *testing.T) {
		_, err := s.CurrencyRates(ctx)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		now := time.Now().UTC().Truncate(time.Microsecond)
		require.NoError(t, s.SetCurrencyRates(ctx, models.CurrencyRates{USD: 90, EUR: math.NaN(), RUB: 1, UpdatedAt: now}))
		require.NoError(t, s.SetCurrencyRates(ctx, models.CurrencyRates{USD: 91, EUR: math.NaN(), RUB: 1, UpdatedAt: now}))
		rates, err := s.CurrencyRates(ctx)
		require.NoError(t, err)
		assert.Equal(t, 91.0, rates.USD)
		assert.True(t, math.IsNaN(rates.EUR))
		assert.True(t, now.Equal(rates.UpdatedAt))

		require.NoError(t, s.SetPersonalData(ctx, models.PersonalData{ID: 7, FullName: "Ann", Email: "ann@example.com"}))
		pd, err := s.PersonalData(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(7), pd.ID)
		assert.Equal(t, "ann@example.com", pd.Email)
	})

	t.Run("delete all", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx storage.Tx) error {
			if err := tx.DeleteAllPlaces(ctx); err != nil {
				return err
			}
			return tx.DeleteAllReviews(ctx)
		})
		require.NoError(t, err)

		all, err := s.SearchPlaces(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

func TestLikePattern(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: "%%"},
		{in: "cafe", want: "%cafe%"},
		{in: "100%", want: `%100\%%`},
		{in: `a_b\c`, want: `%a\_b\\c%`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, likePattern(tt.in))
	}
}
