// archive.go — обработчики импорта файлов книг и чтения каталога.
package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/tbc-ingest/internal/api/errors"
	"github.com/bigkaa/tbc-ingest/internal/domain/model"
	"github.com/bigkaa/tbc-ingest/internal/importer"
	"github.com/bigkaa/tbc-ingest/internal/service"
)

// ArchiveHandler — /api/importer/import и /api/books/{id}.
type ArchiveHandler struct {
	svc    *service.ArchiveService
	logger *slog.Logger
}

// NewArchiveHandler создаёт обработчик архива.
func NewArchiveHandler(svc *service.ArchiveService, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{svc: svc, logger: logger.With(slog.String("component", "archive_handler"))}
}

// importRequest — параметры импорта и признак фонового выполнения.
type importRequest struct {
	importer.Params
	Async bool `json:"async"`
}

type importResponse struct {
	Status string      `json:"status"`
	Book   *model.Book `json:"book"`
}

// Import — POST /api/importer/import.
// Синхронный импорт отвечает 201 со строкой каталога, async — 202 с id задачи.
func (h *ArchiveHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}

	if req.Async {
		ar, err := h.svc.ImportAsync(r.Context(), req.Params)
		if err != nil {
			writeServiceError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusAccepted, newTaskQueuedResponse(ar))
		return
	}

	book, err := h.svc.Import(r.Context(), req.Params)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, importResponse{Status: "imported", Book: book})
}

// Book — GET /api/books/{id}.
func (h *ArchiveHandler) Book(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		apierrors.NotFound(w, "Книга не найдена")
		return
	}
	book, err := h.svc.Book(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}
