// ingest.go — приём записей импорта: проверка, нормализация,
// постановка в фоновые задачи и регистрация обработчиков задач.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bigkaa/tbc-ingest/internal/domain/model"
	"github.com/bigkaa/tbc-ingest/internal/importer"
	"github.com/bigkaa/tbc-ingest/internal/tasks"
)

// Имена фоновых задач.
const (
	TaskProcessRecord = "importer.process_record"
	TaskProcessBatch  = "importer.process_batch_with_progress"
	TaskImportFile    = "importer.import_file"
)

// Record — проверенная запись импорта.
type Record struct {
	ID      string `json:"id"`
	Payload string `json:"payload"`
}

// NormalizedRecord — результат нормализации записи.
type NormalizedRecord struct {
	ID                string `json:"id"`
	NormalizedPayload string `json:"normalized_payload"`
	OriginalLength    int    `json:"original_length"`
	TrimmedLength     int    `json:"trimmed_length"`
}

// QueuedRecord — запись, поставленная в очередь задач.
type QueuedRecord struct {
	RecordID string          `json:"record_id"`
	TaskID   string          `json:"task_id"`
	Result   json.RawMessage `json:"result,omitempty"`
}

// BatchResult — результат задачи пакетной нормализации.
type BatchResult struct {
	Processed int                `json:"processed"`
	Results   []NormalizedRecord `json:"results"`
}

// ValidateRecords проверяет поле records запроса: непустой список объектов
// с id и строковым payload. Значение raw — результат json-декодирования
// с UseNumber. Идентификаторы приводятся к строке.
func ValidateRecords(raw any) ([]Record, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: поле 'records' обязательно", ErrValidation)
	}
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("%w: поле 'records' должно быть непустым списком", ErrValidation)
	}

	records := make([]Record, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: запись %d должна быть объектом", ErrValidation, i)
		}
		id, ok := obj["id"]
		if !ok {
			return nil, fmt.Errorf("%w: в записи %d нет обязательного поля 'id'", ErrValidation, i)
		}
		payload, ok := obj["payload"]
		if !ok {
			return nil, fmt.Errorf("%w: в записи %d нет обязательного поля 'payload'", ErrValidation, i)
		}
		text, ok := payload.(string)
		if !ok {
			return nil, fmt.Errorf("%w: в записи %d payload должен быть строкой", ErrValidation, i)
		}
		records = append(records, Record{ID: stringifyID(id), Payload: text})
	}
	return records, nil
}

// stringifyID приводит идентификатор записи к строке.
func stringifyID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	case nil:
		return "None"
	case bool:
		if id {
			return "True"
		}
		return "False"
	default:
		data, err := json.Marshal(id)
		if err != nil {
			return fmt.Sprint(id)
		}
		return string(data)
	}
}

// NormalizeRecord обрезает пробелы и приводит payload к нижнему регистру.
// Длины считаются в символах.
func NormalizeRecord(r Record) NormalizedRecord {
	trimmed := strings.TrimSpace(r.Payload)
	return NormalizedRecord{
		ID:                r.ID,
		NormalizedPayload: strings.ToLower(trimmed),
		OriginalLength:    utf8.RuneCountInString(r.Payload),
		TrimmedLength:     utf8.RuneCountInString(trimmed),
	}
}

// IngestService — приём записей импорта.
type IngestService struct {
	dispatcher *tasks.Dispatcher
	logger     *slog.Logger
}

// NewIngestService создаёт сервис приёма записей. dispatcher может быть nil:
// тогда постановка в очередь возвращает ErrTasksUnavailable.
func NewIngestService(dispatcher *tasks.Dispatcher, logger *slog.Logger) *IngestService {
	return &IngestService{
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "ingest_service")),
	}
}

// Normalize нормализует записи синхронно.
func (s *IngestService) Normalize(records []Record) []NormalizedRecord {
	out := make([]NormalizedRecord, 0, len(records))
	for _, r := range records {
		out = append(out, NormalizeRecord(r))
	}
	return out
}

// Enqueue ставит каждую запись отдельной задачей importer.process_record.
func (s *IngestService) Enqueue(ctx context.Context, records []Record) ([]QueuedRecord, error) {
	if s.dispatcher == nil {
		return nil, ErrTasksUnavailable
	}
	queued := make([]QueuedRecord, 0, len(records))
	for _, r := range records {
		ar, err := s.dispatcher.Apply(ctx, TaskProcessRecord, r)
		if err != nil {
			return nil, fmt.Errorf("ошибка постановки записи %s в очередь: %w", r.ID, err)
		}
		q := QueuedRecord{RecordID: r.ID, TaskID: ar.ID}
		if ar.Ready() {
			q.Result = ar.Result
		}
		queued = append(queued, q)
	}
	s.logger.Info("Записи поставлены в очередь", slog.Int("count", len(queued)))
	return queued, nil
}

// EnqueueBatch ставит все записи одной задачей с отчётом о прогрессе.
func (s *IngestService) EnqueueBatch(ctx context.Context, records []Record) (*tasks.AsyncResult, error) {
	if s.dispatcher == nil {
		return nil, ErrTasksUnavailable
	}
	return s.dispatcher.Apply(ctx, TaskProcessBatch, records)
}

// Queue возвращает очередь задач по умолчанию.
func (s *IngestService) Queue() string {
	if s.dispatcher == nil {
		return ""
	}
	return s.dispatcher.Queue()
}

// Status возвращает состояние задачи.
func (s *IngestService) Status(ctx context.Context, taskID string) (*model.TaskResult, error) {
	if s.dispatcher == nil {
		return nil, ErrTasksUnavailable
	}
	return s.dispatcher.Status(ctx, taskID)
}

// RegisterTasks регистрирует обработчики фоновых задач импорта.
func RegisterTasks(registry *tasks.Registry, im *importer.Importer) error {
	handlers := map[string]tasks.Handler{
		TaskProcessRecord: processRecordTask,
		TaskProcessBatch:  processBatchTask,
		TaskImportFile:    importFileTask(im),
	}
	for name, h := range handlers {
		if err := registry.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}

func processRecordTask(_ context.Context, _ *tasks.TaskContext, payload json.RawMessage) (any, error) {
	var r Record
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("запись должна быть объектом: %w", err)
	}
	return NormalizeRecord(r), nil
}

func processBatchTask(ctx context.Context, tc *tasks.TaskContext, payload json.RawMessage) (any, error) {
	var records []Record
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("пакет должен быть списком записей: %w", err)
	}

	res := BatchResult{Results: make([]NormalizedRecord, 0, len(records))}
	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Results = append(res.Results, NormalizeRecord(r))
		res.Processed++
		if err := tc.Progress(ctx, i+1, len(records)); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func importFileTask(im *importer.Importer) tasks.Handler {
	return func(ctx context.Context, _ *tasks.TaskContext, payload json.RawMessage) (any, error) {
		if im == nil {
			return nil, fmt.Errorf("импорт файлов не настроен")
		}
		var p importer.Params
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("некорректные параметры импорта: %w", err)
		}
		return im.Import(ctx, p)
	}
}
