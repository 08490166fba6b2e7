// handler.go — общие помощники HTTP-обработчиков: JSON-ответы,
// разбор тела и параметров пути, отображение ошибок сервисного слоя в HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/tbc-ingest/internal/api/errors"
	"github.com/bigkaa/tbc-ingest/internal/importer"
	"github.com/bigkaa/tbc-ingest/internal/service"
)

// maxBodySize — предельный размер тела запроса.
const maxBodySize = 8 << 20

// listResponse — ответ со списком ресурсов.
type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func newListResponse[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Total: len(items)}
}

// deletedResponse — ответ на удаление ресурса.
type deletedResponse struct {
	Status string `json:"status"`
	ID     int    `json:"id"`
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает тело запроса в dst. Пустое тело допустимо,
// если allowEmpty; тогда dst остаётся нулевым.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// intParam разбирает целочисленный параметр пути.
func intParam(r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	return v, err == nil
}

// writeServiceError отображает ошибку сервисного слоя или импорта в HTTP-ответ.
// Неизвестные ошибки логируются и возвращаются как 500 без подробностей.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	// Повторное создание группы или типа считается ошибкой входных данных
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrConflict),
		errors.Is(err, importer.ErrInput),
		errors.Is(err, importer.ErrConfig):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrReferenced),
		errors.Is(err, importer.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrTasksUnavailable):
		apierrors.Unavailable(w, "Фоновые задачи не настроены")
	case errors.Is(err, importer.ErrPostCondition):
		logger.Error("Нарушено постусловие импорта", slog.String("error", err.Error()))
		apierrors.InternalError(w, err.Error())
	default:
		logger.Error("Внутренняя ошибка", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
