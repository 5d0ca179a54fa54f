package companion

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/magabrotheeeer/tourism-companion/internal/http/handlers/status"
)

// RegisterRoutes регистрирует служебные маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, registry *prometheus.Registry, store status.Store) {
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
	)

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	r.Get("/status", status.New(logger, store).ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
