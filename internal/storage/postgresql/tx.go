package postgresql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/magabrotheeeer/tourism-companion/internal/lib/live"
	"github.com/magabrotheeeer/tourism-companion/internal/models"
)

type tx struct {
	tx      pgx.Tx
	touched map[live.Topic]struct{}
}

func (t *tx) touch(topics ...live.Topic) {
	for _, topic := range topics {
		t.touched[topic] = struct{}{}
	}
}

func (t *tx) FavoriteIDs(ctx context.Context) ([]int64, error) {
	const op = "storage.postgresql.tx.FavoriteIDs"

	ids, err := queryIDs(ctx, t.tx, `SELECT id FROM places WHERE is_favorite ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ids, nil
}

func (t *tx) DeleteAllPlaces(ctx context.Context) error {
	const op = "storage.postgresql.tx.DeleteAllPlaces"

	if _, err := t.tx.Exec(ctx, `DELETE FROM places`); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	t.touch(live.Places, live.Reviews)
	return nil
}

func (t *tx) DeletePlacesByCategory(ctx context.Context, category models.Category) ([]int64, error) {
	const op = "storage.postgresql.tx.DeletePlacesByCategory"

	ids, err := queryIDs(ctx, t.tx, `DELETE FROM places WHERE category_id = $1 RETURNING id`, int64(category))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	t.touch(live.Places, live.Reviews)
	return ids, nil
}

// InsertPlaces удаляет строки с теми же ID (вместе с их отзывами) и копирует новые через COPY.
func (t *tx) InsertPlaces(ctx context.Context, places []models.Place) error {
	const op = "storage.postgresql.tx.InsertPlaces"

	t.touch(live.Places, live.Reviews)
	if len(places) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(places))
	for _, p := range places {
		ids = append(ids, p.ID)
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM places WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"places"},
		[]string{"id", "category_id", "name", "excerpt", "description", "cover", "gallery",
			"latitude", "longitude", "rating", "is_top", "is_favorite"},
		pgx.CopyFromSlice(len(places), func(i int) ([]any, error) {
			p := places[i]
			return []any{p.ID, int64(p.Category), p.Name, p.Excerpt, p.Description, p.Cover, nonNil(p.Gallery),
				p.Latitude, p.Longitude, p.Rating, p.IsTop, p.IsFavorite}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (t *tx) DeleteAllReviews(ctx context.Context) error {
	const op = "storage.postgresql.tx.DeleteAllReviews"

	if _, err := t.tx.Exec(ctx, `DELETE FROM reviews`); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	t.touch(live.Reviews)
	return nil
}

func (t *tx) DeleteReviewsByPlaces(ctx context.Context, placeIDs []int64) error {
	const op = "storage.postgresql.tx.DeleteReviewsByPlaces"

	t.touch(live.Reviews)
	if len(placeIDs) == 0 {
		return nil
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM reviews WHERE place_id = ANY($1)`, placeIDs); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (t *tx) InsertReviews(ctx context.Context, reviews []models.Review) error {
	const op = "storage.postgresql.tx.InsertReviews"

	t.touch(live.Reviews)
	if len(reviews) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(reviews))
	for _, r := range reviews {
		ids = append(ids, r.ID)
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM reviews WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"reviews"},
		[]string{"id", "place_id", "rating", "comment", "author", "author_country", "author_pfp_url", "date", "images"},
		pgx.CopyFromSlice(len(reviews), func(i int) ([]any, error) {
			r := reviews[i]
			return []any{r.ID, r.PlaceID, r.Rating, r.Comment, r.Author, r.AuthorCountry, r.AuthorPfpURL,
				r.Date, nonNil(r.Images)}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (t *tx) SetHashes(ctx context.Context, hashes ...models.CategoryHash) error {
	const op = "storage.postgresql.tx.SetHashes"

	batch := &pgx.Batch{}
	for _, h := range hashes {
		batch.Queue(`
			INSERT INTO category_hashes (category_id, value) VALUES ($1, $2)
			ON CONFLICT (category_id) DO UPDATE SET value = EXCLUDED.value`,
			int64(h.Category), h.Value)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	t.touch(live.Hashes)
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
