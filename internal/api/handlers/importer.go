// importer.go — обработчики приёма записей импорта и статуса задач:
// /api/importer/ingest, /api/importer/progress, /api/importer/status/{task_id}.
package handlers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/tbc-ingest/internal/api/errors"
	"github.com/bigkaa/tbc-ingest/internal/domain/model"
	"github.com/bigkaa/tbc-ingest/internal/service"
	"github.com/bigkaa/tbc-ingest/internal/tasks"
)

// statusPathPrefix — путь опроса состояния задачи.
const statusPathPrefix = "/api/importer/status/"

// IngestHandler — приём записей и статус фоновых задач.
type IngestHandler struct {
	svc    *service.IngestService
	logger *slog.Logger
}

// NewIngestHandler создаёт обработчик приёма записей.
func NewIngestHandler(svc *service.IngestService, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{svc: svc, logger: logger.With(slog.String("component", "ingest_handler"))}
}

type ingestResponse struct {
	Status   string                     `json:"status"`
	Source   string                     `json:"source"`
	Imported int                        `json:"imported"`
	Results  []service.NormalizedRecord `json:"results"`
}

type queuedResponse struct {
	Status      string                 `json:"status"`
	Source      string                 `json:"source"`
	QueuedTasks int                    `json:"queued_tasks"`
	Tasks       []service.QueuedRecord `json:"tasks"`
}

type taskQueuedResponse struct {
	Status    string          `json:"status"`
	TaskID    string          `json:"task_id"`
	StatusURL string          `json:"status_url"`
	Queue     string          `json:"queue"`
	Result    json.RawMessage `json:"result,omitempty"`
}

type taskStatusResponse struct {
	TaskID string          `json:"task_id"`
	State  string          `json:"state"`
	Meta   json.RawMessage `json:"meta,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *string         `json:"error,omitempty"`
}

// readObject читает тело запроса как JSON-объект.
func readObject(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var payload map[string]any
	if err := decodeJSON(w, r, &payload, false); err != nil || payload == nil {
		apierrors.ValidationError(w, "Тело запроса должно быть корректным JSON-объектом")
		return nil, false
	}
	return payload, true
}

// Ingest — POST /api/importer/ingest.
// Без enqueue записи нормализуются синхронно; с enqueue каждая запись
// ставится отдельной задачей.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	payload, ok := readObject(w, r)
	if !ok {
		return
	}

	source := "unspecified"
	if raw, present := payload["source"]; present {
		s, isString := raw.(string)
		if !isString {
			apierrors.ValidationError(w, "Поле 'source' должно быть строкой")
			return
		}
		source = s
	}

	records, err := service.ValidateRecords(payload["records"])
	if err != nil {
		h.logger.Warn("Записи импорта не прошли проверку", slog.String("error", err.Error()))
		writeServiceError(w, h.logger, err)
		return
	}

	if !truthy(payload["enqueue"]) {
		results := h.svc.Normalize(records)
		writeJSON(w, http.StatusOK, ingestResponse{
			Status:   "ok",
			Source:   source,
			Imported: len(results),
			Results:  results,
		})
		return
	}

	queued, err := h.svc.Enqueue(r.Context(), records)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, queuedResponse{
		Status:      "queued",
		Source:      source,
		QueuedTasks: len(queued),
		Tasks:       queued,
	})
}

// Progress — POST /api/importer/progress: одна задача на весь пакет
// с отчётом о прогрессе.
func (h *IngestHandler) Progress(w http.ResponseWriter, r *http.Request) {
	payload, ok := readObject(w, r)
	if !ok {
		return
	}
	records, err := service.ValidateRecords(payload["records"])
	if err != nil {
		h.logger.Warn("Пакет импорта не прошёл проверку", slog.String("error", err.Error()))
		writeServiceError(w, h.logger, err)
		return
	}

	ar, err := h.svc.EnqueueBatch(r.Context(), records)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newTaskQueuedResponse(ar))
}

// Status — GET /api/importer/status/{task_id}.
// Неизвестный идентификатор возвращает состояние PENDING.
func (h *IngestHandler) Status(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	res, err := h.svc.Status(r.Context(), taskID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newTaskStatusResponse(taskID, res))
}

func newTaskQueuedResponse(ar *tasks.AsyncResult) taskQueuedResponse {
	resp := taskQueuedResponse{
		Status:    "queued",
		TaskID:    ar.ID,
		StatusURL: statusPathPrefix + ar.ID,
		Queue:     ar.Queue,
	}
	if ar.Ready() {
		resp.Result = ar.Result
	}
	return resp
}

// newTaskStatusResponse собирает ответ статуса. meta — сведения о ходе
// выполнения; после завершения в meta попадает результат (объект) или
// {"details": ...} для прочих значений и ошибок.
func newTaskStatusResponse(taskID string, res *model.TaskResult) taskStatusResponse {
	resp := taskStatusResponse{TaskID: taskID, State: res.State}
	switch res.State {
	case tasks.StateSuccess:
		resp.Result = res.Result
		resp.Meta = infoMeta(res.Result)
	case tasks.StateFailure:
		resp.Error = res.Error
		if res.Error != nil {
			resp.Meta = detailsMeta(*res.Error)
		}
	default:
		if len(res.Meta) > 0 && !bytes.Equal(res.Meta, []byte("null")) {
			resp.Meta = res.Meta
		}
	}
	return resp
}

// infoMeta возвращает результат как meta: объект как есть, прочее в details.
// Пустые значения meta не дают.
func infoMeta(result json.RawMessage) json.RawMessage {
	var v any
	if len(result) == 0 || json.Unmarshal(result, &v) != nil || !truthy(v) {
		return nil
	}
	switch t := v.(type) {
	case map[string]any:
		return result
	case string:
		return detailsMeta(t)
	}
	return detailsMeta(string(result))
}

func detailsMeta(details string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"details": details})
	return data
}

// truthy — истинность JSON-значения: false, 0, "", пустые список и объект
// и null считаются ложью.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
