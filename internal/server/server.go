// Пакет server — HTTP-сервер tbc-ingest с graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bigkaa/tbc-ingest/internal/api/handlers"
	"github.com/bigkaa/tbc-ingest/internal/api/middleware"
	"github.com/bigkaa/tbc-ingest/internal/config"
)

// Handlers — обработчики API, подключаемые к маршрутам.
type Handlers struct {
	Health  *handlers.HealthHandler
	Catalog *handlers.CatalogHandler
	Ingest  *handlers.IngestHandler
	Archive *handlers.ArchiveHandler
	Pools   *handlers.StoragePoolsHandler
}

// Server — HTTP-сервер tbc-ingest.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными маршрутами и middleware.
// jwtAuth — JWT middleware (nil: аутентификация отключена).
func New(cfg *config.Config, logger *slog.Logger, h Handlers, jwtAuth *middleware.JWTAuth) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, h, jwtAuth),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.TaskTimeLimit + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger, cfg: cfg}
}

// NewRouter собирает chi-маршрутизатор.
func NewRouter(logger *slog.Logger, h Handlers, jwtAuth *middleware.JWTAuth) http.Handler {
	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	router.Use(chimw.Recoverer)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Health и metrics проверяются Kubernetes напрямую, без токена.
	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Get("/metrics", h.Health.GetMetrics)

	router.Route("/api", func(r chi.Router) {
		if jwtAuth != nil {
			r.Use(jwtAuthWithExclusions(jwtAuth, "/api/health", "/api/db-status"))
		}

		r.Get("/health", h.Health.APIHealth)
		r.Get("/db-status", h.Health.DBStatus)

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", h.Catalog.ListGroups)
			r.Post("/", h.Catalog.CreateGroup)
			r.Get("/{id}", h.Catalog.GetGroup)
			r.Put("/{id}", h.Catalog.UpdateGroup)
			r.Delete("/{id}", h.Catalog.DeleteGroup)
		})
		r.Route("/types", func(r chi.Router) {
			r.Get("/", h.Catalog.ListTypes)
			r.Post("/", h.Catalog.CreateType)
			r.Get("/{id}", h.Catalog.GetType)
			r.Put("/{id}", h.Catalog.UpdateType)
			r.Delete("/{id}", h.Catalog.DeleteType)
		})

		r.Route("/importer", func(r chi.Router) {
			r.Post("/ingest", h.Ingest.Ingest)
			r.Post("/progress", h.Ingest.Progress)
			r.Get("/status/{task_id}", h.Ingest.Status)
			r.Post("/import", h.Archive.Import)
		})
		r.Get("/books/{id}", h.Archive.Book)

		r.Get("/storage-pools", h.Pools.List)
		r.Post("/storage-pools", h.Pools.Create)
		r.Post("/storage-pools/{name}/activate", h.Pools.Activate)
	})

	return router
}

// jwtAuthWithExclusions оборачивает JWTAuth.Middleware(), пропуская указанные пути.
func jwtAuthWithExclusions(jwtAuth *middleware.JWTAuth, excludePaths ...string) func(http.Handler) http.Handler {
	jwtMiddleware := jwtAuth.Middleware()

	return func(next http.Handler) http.Handler {
		protected := jwtMiddleware(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range excludePaths {
				if strings.TrimSuffix(r.URL.Path, "/") == p {
					next.ServeHTTP(w, r)
					return
				}
			}
			protected.ServeHTTP(w, r)
		})
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен", slog.String("addr", s.httpServer.Addr))

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
