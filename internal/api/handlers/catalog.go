// catalog.go — обработчики справочников групп и типов файлов.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/tbc-ingest/internal/api/errors"
	"github.com/bigkaa/tbc-ingest/internal/domain/model"
	"github.com/bigkaa/tbc-ingest/internal/service"
)

// CatalogHandler — CRUD групп (/api/groups) и типов (/api/types).
type CatalogHandler struct {
	groups *service.GroupService
	types  *service.TypeService
	logger *slog.Logger
}

// NewCatalogHandler создаёт обработчик справочников.
func NewCatalogHandler(groups *service.GroupService, types *service.TypeService, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		groups: groups,
		types:  types,
		logger: logger.With(slog.String("component", "catalog_handler")),
	}
}

type groupResponse struct {
	Status string           `json:"status"`
	Group  *model.FileGroup `json:"group"`
}

type typeResponse struct {
	Status string          `json:"status"`
	Type   *model.FileType `json:"type"`
}

// --- Группы ---

// ListGroups — GET /api/groups/.
func (h *CatalogHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(groups))
}

// GetGroup — GET /api/groups/{id}.
func (h *CatalogHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(r, "id")
	if !ok {
		apierrors.NotFound(w, "Группа не найдена")
		return
	}
	g, err := h.groups.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// CreateGroup — POST /api/groups/.
func (h *CatalogHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var in service.GroupInput
	if err := decodeJSON(w, r, &in, true); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}
	g, err := h.groups.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, groupResponse{Status: "created", Group: g})
}

// UpdateGroup — PUT /api/groups/{id}.
func (h *CatalogHandler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(r, "id")
	if !ok {
		apierrors.NotFound(w, "Группа не найдена")
		return
	}
	var in service.GroupInput
	if err := decodeJSON(w, r, &in, true); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}
	g, err := h.groups.Update(r.Context(), id, in)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, groupResponse{Status: "updated", Group: g})
}

// DeleteGroup — DELETE /api/groups/{id}.
func (h *CatalogHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(r, "id")
	if !ok {
		apierrors.NotFound(w, "Группа не найдена")
		return
	}
	if err := h.groups.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedResponse{Status: "deleted", ID: id})
}

// --- Типы ---

// ListTypes — GET /api/types/.
func (h *CatalogHandler) ListTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.types.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(types))
}

// GetType — GET /api/types/{id}.
func (h *CatalogHandler) GetType(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(r, "id")
	if !ok {
		apierrors.NotFound(w, "Тип не найден")
		return
	}
	t, err := h.types.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// CreateType — POST /api/types/.
func (h *CatalogHandler) CreateType(w http.ResponseWriter, r *http.Request) {
	var in service.TypeInput
	if err := decodeJSON(w, r, &in, true); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}
	t, err := h.types.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, typeResponse{Status: "created", Type: t})
}

// UpdateType — PUT /api/types/{id}.
func (h *CatalogHandler) UpdateType(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(r, "id")
	if !ok {
		apierrors.NotFound(w, "Тип не найден")
		return
	}
	var in service.TypeInput
	if err := decodeJSON(w, r, &in, true); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}
	t, err := h.types.Update(r.Context(), id, in)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, typeResponse{Status: "updated", Type: t})
}

// DeleteType — DELETE /api/types/{id}.
func (h *CatalogHandler) DeleteType(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(r, "id")
	if !ok {
		apierrors.NotFound(w, "Тип не найден")
		return
	}
	if err := h.types.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedResponse{Status: "deleted", ID: id})
}
