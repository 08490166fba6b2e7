// health.go — обработчики health endpoints tbc-ingest.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (PostgreSQL и Redis, если он используется)
// /api/health, /api/db-status — простые проверки для клиентов API
// /metrics — Prometheus метрики
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	apierrors "github.com/bigkaa/tbc-ingest/internal/api/errors"
	"github.com/bigkaa/tbc-ingest/internal/config"
)

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status string, message string)
}

// VersionFunc возвращает строку версии PostgreSQL.
type VersionFunc func(ctx context.Context) (string, error)

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	// checkers — проверяемые зависимости по имени
	checkers    map[string]ReadinessChecker
	dbVersion   VersionFunc
	promHandler http.Handler
	logger      *slog.Logger
}

// NewHealthHandler создаёт обработчик health endpoints.
// checkers — зависимости для readiness (nil-значение считается "fail"),
// dbVersion — запрос версии PostgreSQL для /api/db-status.
func NewHealthHandler(checkers map[string]ReadinessChecker, dbVersion VersionFunc, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		checkers:    checkers,
		dbVersion:   dbVersion,
		promHandler: promhttp.Handler(),
		logger:      logger.With(slog.String("component", "health_handler")),
	}
}

type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

type healthReadyResponse struct {
	Status    string                       `json:"status"`
	Timestamp string                       `json:"timestamp"`
	Version   string                       `json:"version"`
	Service   string                       `json:"service"`
	Checks    map[string]healthCheckResult `json:"checks"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "tbc-ingest",
	})
}

// HealthReady — readiness probe. Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "tbc-ingest",
		Checks:    make(map[string]healthCheckResult, len(h.checkers)),
	}

	statuses := make([]string, 0, len(h.checkers))
	for name, checker := range h.checkers {
		res := healthCheckResult{Status: "fail", Message: "не инициализирован"}
		if checker != nil {
			res.Status, res.Message = checker.CheckReady()
		}
		resp.Checks[name] = res
		statuses = append(statuses, res.Status)
	}
	resp.Status = overallStatus(statuses...)

	code := http.StatusOK
	if resp.Status == "fail" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// APIHealth — GET /api/health.
func (h *HealthHandler) APIHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// DBStatus — GET /api/db-status: версия PostgreSQL или 503.
func (h *HealthHandler) DBStatus(w http.ResponseWriter, r *http.Request) {
	if h.dbVersion == nil {
		apierrors.Unavailable(w, "База данных недоступна")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	version, err := h.dbVersion(ctx)
	if err != nil {
		h.logger.Warn("Ошибка подключения к базе данных", slog.String("error", err.Error()))
		apierrors.Unavailable(w, "База данных недоступна")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "postgres_version": version})
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
// Иначе — ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == "fail" {
			return "fail"
		}
		if s == "degraded" {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return "degraded"
	}
	return "ok"
}
