// Package postgresql реализует storage.Store поверх PostgreSQL (pgx v5).
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	// Регистрация драйвера pgx для database/sql, через него применяются миграции.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/magabrotheeeer/tourism-companion/internal/lib/live"
	"github.com/magabrotheeeer/tourism-companion/internal/migrations"
	"github.com/magabrotheeeer/tourism-companion/internal/models"
	"github.com/magabrotheeeer/tourism-companion/internal/storage"
)

// querier — общее подмножество pgxpool.Pool и pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ storage.Store = (*Storage)(nil)

// Storage — хранилище в PostgreSQL.
type Storage struct {
	pool    *pgxpool.Pool
	changes *live.Notifier
}

// New применяет миграции и открывает пул соединений.
func New(ctx context.Context, storageConnectionString string) (*Storage, error) {
	const op = "storage.postgresql.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	err = migrations.Run(db)
	_ = db.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pool, err := pgxpool.New(ctx, storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		pool:    pool,
		changes: live.NewNotifier(),
	}, nil
}

// Close закрывает пул соединений.
func (s *Storage) Close() {
	s.pool.Close()
}

// Changes возвращает уведомитель об изменениях.
func (s *Storage) Changes() *live.Notifier {
	return s.changes
}

const placeShortColumns = `id, category_id, name, excerpt, cover, rating, is_favorite`

func scanPlaceShort(row pgx.CollectableRow) (models.PlaceShort, error) {
	var p models.PlaceShort
	var category int64
	err := row.Scan(&p.ID, &category, &p.Name, &p.Excerpt, &p.Cover, &p.Rating, &p.IsFavorite)
	p.Category = models.Category(category)
	return p, err
}

func queryPlaces(ctx context.Context, q querier, query string, args ...any) ([]models.PlaceShort, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanPlaceShort)
}

func queryIDs(ctx context.Context, q querier, query string, args ...any) ([]int64, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// likePattern экранирует спецсимволы LIKE, чтобы запрос искался как подстрока.
func likePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(query) + "%"
}

func (s *Storage) Hashes(ctx context.Context) ([]models.CategoryHash, error) {
	const op = "storage.postgresql.Hashes"

	rows, err := s.pool.Query(ctx, `SELECT category_id, value FROM category_hashes ORDER BY category_id`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.CategoryHash, error) {
		var h models.CategoryHash
		var category int64
		err := row.Scan(&category, &h.Value)
		h.Category = models.Category(category)
		return h, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func (s *Storage) Hash(ctx context.Context, category models.Category) (string, error) {
	const op = "storage.postgresql.Hash"

	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM category_hashes WHERE category_id = $1`, int64(category)).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return value, nil
}

func (s *Storage) PlacesByCategory(ctx context.Context, category models.Category) ([]models.PlaceShort, error) {
	const op = "storage.postgresql.PlacesByCategory"

	res, err := queryPlaces(ctx, s.pool,
		`SELECT `+placeShortColumns+` FROM places WHERE category_id = $1 ORDER BY id`, int64(category))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func (s *Storage) TopPlaces(ctx context.Context, category models.Category) ([]models.PlaceShort, error) {
	const op = "storage.postgresql.TopPlaces"

	res, err := queryPlaces(ctx, s.pool,
		`SELECT `+placeShortColumns+` FROM places WHERE category_id = $1 AND is_top ORDER BY id`, int64(category))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func (s *Storage) SearchPlaces(ctx context.Context, query string) ([]models.PlaceShort, error) {
	const op = "storage.postgresql.SearchPlaces"

	res, err := queryPlaces(ctx, s.pool,
		`SELECT `+placeShortColumns+` FROM places WHERE name ILIKE $1 ORDER BY id`, likePattern(query))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func (s *Storage) FavoritePlaces(ctx context.Context, query string) ([]models.PlaceShort, error) {
	const op = "storage.postgresql.FavoritePlaces"

	res, err := queryPlaces(ctx, s.pool,
		`SELECT `+placeShortColumns+` FROM places WHERE is_favorite AND name ILIKE $1 ORDER BY id`, likePattern(query))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func (s *Storage) FavoriteIDs(ctx context.Context) ([]int64, error) {
	const op = "storage.postgresql.FavoriteIDs"

	ids, err := queryIDs(ctx, s.pool, `SELECT id FROM places WHERE is_favorite ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ids, nil
}

// PlaceByID читает место и его отзывы из одного снимка базы (REPEATABLE READ),
// чтобы параллельная замена категории не смешала старое место с новыми отзывами.
func (s *Storage) PlaceByID(ctx context.Context, id int64) (models.Place, error) {
	const op = "storage.postgresql.PlaceByID"

	var p models.Place
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	}, func(tx pgx.Tx) error {
		var err error
		p, err = placeByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return models.Place{}, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

func placeByID(ctx context.Context, q querier, id int64) (models.Place, error) {
	var p models.Place
	var category int64
	err := q.QueryRow(ctx, `
		SELECT id, category_id, name, excerpt, description, cover, gallery,
		       latitude, longitude, rating, is_top, is_favorite
		FROM places WHERE id = $1`, id).
		Scan(&p.ID, &category, &p.Name, &p.Excerpt, &p.Description, &p.Cover, &p.Gallery,
			&p.Latitude, &p.Longitude, &p.Rating, &p.IsTop, &p.IsFavorite)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Place{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Place{}, err
	}
	p.Category = models.Category(category)

	rows, err := q.Query(ctx, `
		SELECT id, place_id, rating, comment, author, author_country, author_pfp_url, date, images
		FROM reviews WHERE place_id = $1 ORDER BY id`, id)
	if err != nil {
		return models.Place{}, err
	}
	reviews, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Review, error) {
		var r models.Review
		err := row.Scan(&r.ID, &r.PlaceID, &r.Rating, &r.Comment, &r.Author, &r.AuthorCountry,
			&r.AuthorPfpURL, &r.Date, &r.Images)
		return r, err
	})
	if err != nil {
		return models.Place{}, err
	}
	if len(reviews) > 0 {
		p.Reviews = reviews
	}
	return p, nil
}

func (s *Storage) CurrencyRates(ctx context.Context) (models.CurrencyRates, error) {
	const op = "storage.postgresql.CurrencyRates"

	var r models.CurrencyRates
	err := s.pool.QueryRow(ctx, `SELECT usd, eur, rub, updated_at FROM currency_rates WHERE id = 1`).
		Scan(&r.USD, &r.EUR, &r.RUB, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.CurrencyRates{}, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if err != nil {
		return models.CurrencyRates{}, fmt.Errorf("%s: %w", op, err)
	}
	return r, nil
}

func (s *Storage) PersonalData(ctx context.Context) (models.PersonalData, error) {
	const op = "storage.postgresql.PersonalData"

	var d models.PersonalData
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, full_name, email, country, pfp_url, language
		FROM personal_data WHERE id = 1`).
		Scan(&d.ID, &d.FullName, &d.Email, &d.Country, &d.PfpURL, &d.Language)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.PersonalData{}, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if err != nil {
		return models.PersonalData{}, fmt.Errorf("%s: %w", op, err)
	}
	return d, nil
}

func (s *Storage) SetFavorite(ctx context.Context, id int64, favorite bool) error {
	const op = "storage.postgresql.SetFavorite"

	tag, err := s.pool.Exec(ctx, `UPDATE places SET is_favorite = $1 WHERE id = $2`, favorite, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	s.changes.Notify(live.Places)
	return nil
}

func (s *Storage) SetCurrencyRates(ctx context.Context, rates models.CurrencyRates) error {
	const op = "storage.postgresql.SetCurrencyRates"

	_, err := s.pool.Exec(ctx, `
		INSERT INTO currency_rates (id, usd, eur, rub, updated_at) VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET usd = EXCLUDED.usd, eur = EXCLUDED.eur, rub = EXCLUDED.rub, updated_at = EXCLUDED.updated_at`,
		rates.USD, rates.EUR, rates.RUB, rates.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.changes.Notify(live.Currency)
	return nil
}

func (s *Storage) SetPersonalData(ctx context.Context, data models.PersonalData) error {
	const op = "storage.postgresql.SetPersonalData"

	_, err := s.pool.Exec(ctx, `
		INSERT INTO personal_data (id, user_id, full_name, email, country, pfp_url, language)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET user_id = EXCLUDED.user_id, full_name = EXCLUDED.full_name, email = EXCLUDED.email,
		    country = EXCLUDED.country, pfp_url = EXCLUDED.pfp_url, language = EXCLUDED.language`,
		data.ID, data.FullName, data.Email, data.Country, data.PfpURL, data.Language)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.changes.Notify(live.Personal)
	return nil
}

// WithTx выполняет fn в транзакции PostgreSQL и после фиксации уведомляет подписчиков.
func (s *Storage) WithTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	const op = "storage.postgresql.WithTx"

	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = pgTx.Rollback(ctx)
	}()

	t := &tx{tx: pgTx, touched: make(map[live.Topic]struct{})}
	if err := fn(t); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	topics := make([]live.Topic, 0, len(t.touched))
	for topic := range t.touched {
		topics = append(topics, topic)
	}
	s.changes.Notify(topics...)
	return nil
}
