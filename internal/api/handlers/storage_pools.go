package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/tbc-ingest/internal/api/errors"
	"github.com/bigkaa/tbc-ingest/internal/domain/model"
	"github.com/bigkaa/tbc-ingest/internal/service"
)

// StoragePoolsHandler — обработчики /api/storage-pools.
type StoragePoolsHandler struct {
	svc    *service.StoragePoolService
	logger *slog.Logger
}

// NewStoragePoolsHandler создаёт обработчик пулов хранения.
func NewStoragePoolsHandler(svc *service.StoragePoolService, logger *slog.Logger) *StoragePoolsHandler {
	return &StoragePoolsHandler{svc: svc, logger: logger.With(slog.String("component", "pools_handler"))}
}

type poolResponse struct {
	Status string             `json:"status"`
	Pool   *model.StoragePool `json:"pool"`
}

// List — GET /api/storage-pools.
func (h *StoragePoolsHandler) List(w http.ResponseWriter, r *http.Request) {
	pools, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(pools))
}

// Create — POST /api/storage-pools.
func (h *StoragePoolsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.PoolInput
	if err := decodeJSON(w, r, &in, false); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}
	pool, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, poolResponse{Status: "created", Pool: pool})
}

// Activate — POST /api/storage-pools/{name}/activate.
func (h *StoragePoolsHandler) Activate(w http.ResponseWriter, r *http.Request) {
	pool, err := h.svc.Activate(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, poolResponse{Status: "activated", Pool: pool})
}
