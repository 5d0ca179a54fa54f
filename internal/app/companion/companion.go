// Package companion собирает приложение-путеводитель: хранилище, сессию,
// клиент API, репозитории и фоновую синхронизацию.
package companion

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/magabrotheeeer/tourism-companion/internal/cache"
	"github.com/magabrotheeeer/tourism-companion/internal/config"
	"github.com/magabrotheeeer/tourism-companion/internal/lib/sl"
	"github.com/magabrotheeeer/tourism-companion/internal/metrics"
	"github.com/magabrotheeeer/tourism-companion/internal/models"
	"github.com/magabrotheeeer/tourism-companion/internal/presentation"
	"github.com/magabrotheeeer/tourism-companion/internal/resource"
	"github.com/magabrotheeeer/tourism-companion/internal/services/currency"
	"github.com/magabrotheeeer/tourism-companion/internal/services/places"
	"github.com/magabrotheeeer/tourism-companion/internal/services/profile"
	"github.com/magabrotheeeer/tourism-companion/internal/session"
	"github.com/magabrotheeeer/tourism-companion/internal/storage"
	"github.com/magabrotheeeer/tourism-companion/internal/storage/memory"
	"github.com/magabrotheeeer/tourism-companion/internal/storage/postgresql"
	"github.com/magabrotheeeer/tourism-companion/internal/tourismapi"
)

const shutdownTimeout = 15 * time.Second

type sessionCache interface {
	session.Cache
	Close() error
}

// App — собранное приложение.
type App struct {
	server     *http.Server // nil, если адрес метрик не задан
	logger     *slog.Logger
	store      storage.Store
	closeStore func()
	cache      sessionCache
	session    *session.Session
	interval   time.Duration

	places   *places.Repository
	currency *currency.Repository
	profile  *profile.Repository
}

// New создаёт приложение по конфигу. Без строки подключения к Postgres
// используется хранилище в памяти, без адреса Redis сессия хранится в памяти процесса.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "companion.New"
	log := sl.Op(logger, op)

	var (
		store      storage.Store
		closeStore = func() {}
	)
	if cfg.StorageConnectionString != "" {
		db, err := postgresql.New(ctx, cfg.StorageConnectionString)
		if err != nil {
			return nil, err
		}
		store, closeStore = db, db.Close
		log.Info("using postgres storage")
	} else {
		store = memory.New()
		log.Info("using in-memory storage")
	}

	var sc sessionCache
	if cfg.AddressRedis != "" {
		cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			closeStore()
			return nil, err
		}
		sc = cacheRedis
		log.Info("using redis session cache", slog.String("address", cfg.AddressRedis))
	} else {
		sc = cache.NewMemory()
	}
	sess := session.New(sc, cfg.DefaultLanguage)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	api := tourismapi.NewClient(cfg.BaseURL, cfg.CurrencyURL, sess,
		tourismapi.WithTimeout(cfg.Timeout),
		tourismapi.WithRateLimit(cfg.RequestsPerSecond, cfg.Burst),
		tourismapi.WithMetrics(m),
	)

	a := &App{
		logger:     logger,
		store:      store,
		closeStore: closeStore,
		cache:      sc,
		session:    sess,
		interval:   cfg.Interval,
		places:     places.New(api, store, sess, m, logger),
		currency:   currency.New(api, store, sess, logger),
		profile:    profile.New(api, store, sess, logger),
	}

	if cfg.AddressMetrics != "" {
		router := chi.NewRouter()
		RegisterRoutes(router, logger, registry, store)
		a.server = &http.Server{
			Addr:              cfg.AddressMetrics,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return a, nil
}

// Session возвращает сессию пользователя.
func (a *App) Session() *session.Session { return a.session }

// Places возвращает репозиторий мест.
func (a *App) Places() *places.Repository { return a.places }

// Currency возвращает репозиторий курсов валют.
func (a *App) Currency() *currency.Repository { return a.currency }

// Profile возвращает репозиторий профиля.
func (a *App) Profile() *profile.Repository { return a.profile }

// CategoryViewModel создаёт view-model экрана категории.
func (a *App) CategoryViewModel(category models.Category, onChange func(resource.Resource[[]models.PlaceShort])) *presentation.CategoryViewModel {
	return presentation.NewCategoryViewModel(a.places, category, onChange)
}

// SearchViewModel создаёт view-model поиска мест.
func (a *App) SearchViewModel(onChange func(resource.Resource[[]models.PlaceShort])) *presentation.SearchViewModel {
	return presentation.NewSearchViewModel(a.places, onChange)
}

// ProfileViewModel создаёт view-model экрана профиля.
func (a *App) ProfileViewModel() *presentation.ProfileViewModel {
	return presentation.NewProfileViewModel(a.profile, a.currency)
}

// Run запускает первичную загрузку, периодическую синхронизацию и эндпоинт метрик.
// Возвращает управление после отмены ctx или при ошибке HTTP-сервера.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.bootstrap(ctx)
		a.syncLoop(ctx)
	}()

	errCh := make(chan error, 1)
	if a.server != nil {
		go func() {
			a.logger.Info("metrics server starting on", slog.String("address", a.server.Addr))
			err := a.server.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				errCh <- nil
			} else {
				errCh <- err
			}
		}()
	}

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		if a.server != nil {
			timeoutCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
			a.logger.Info("shutting down metrics server gracefully")
			err = a.server.Shutdown(timeoutCtx)
			stop()
		}
	}

	cancel()
	wg.Wait()
	a.close()
	return err
}

func (a *App) close() {
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("failed to close session cache", sl.Err(err))
	}
	a.closeStore()
}

// bootstrap дожидается окончания первичной загрузки каталога.
func (a *App) bootstrap(ctx context.Context) {
	const op = "companion.bootstrap"
	log := sl.Op(a.logger, op)

	for res := range a.places.DownloadAllIfFirstTime(ctx) {
		switch {
		case res.IsLoading():
			log.Info("downloading catalog")
		case res.IsSuccess():
			log.Info("catalog ready",
				slog.Bool("downloaded", res.Data.Downloaded),
				slog.Int("places", res.Data.Places),
				slog.String("message", res.Data.Message),
			)
		case res.IsError():
			log.Error("catalog download failed", slog.String("message", res.Message))
		}
	}
}

// syncLoop сверяет кеш с сервером раз в interval.
func (a *App) syncLoop(ctx context.Context) {
	if a.interval <= 0 {
		return
	}
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sync(ctx)
		}
	}
}

// sync выполняет один проход синхронизации: категории, курсы валют
// и профиль, если пользователь вошёл.
func (a *App) sync(ctx context.Context) {
	const op = "companion.sync"
	log := sl.Op(a.logger, op)

	for _, c := range models.Categories() {
		replaced, err := a.places.RefreshCategory(ctx, c)
		if err != nil {
			log.Warn("category sync failed", slog.String("category", c.String()), sl.Err(err))
			continue
		}
		log.Debug("category synced", slog.String("category", c.String()), slog.Bool("replaced", replaced))
	}

	if err := a.currency.Refresh(ctx); err != nil {
		log.Warn("currency sync failed", sl.Err(err))
	}

	token, err := a.session.Token(ctx)
	if err != nil {
		log.Warn("failed to read session token", sl.Err(err))
		return
	}
	if token == "" {
		return
	}
	if err := a.profile.Refresh(ctx); err != nil {
		log.Warn("profile sync failed", sl.Err(err))
	}
}
