package model

import (
	"encoding/json"
	"time"
)

// TaskMessage — сообщение фоновой задачи, передаваемое через брокер.
type TaskMessage struct {
	// ID — UUID задачи
	ID string `json:"id"`
	// Name — зарегистрированное имя обработчика (importer.process_record)
	Name string `json:"name"`
	// Queue — имя очереди
	Queue string `json:"queue"`
	// Payload — аргументы задачи в JSON
	Payload json.RawMessage `json:"payload"`
	// EnqueuedAt — время постановки в очередь
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// TaskResult — состояние и результат фоновой задачи.
type TaskResult struct {
	TaskID string `db:"task_id" json:"task_id"`
	Name   string `db:"name" json:"name"`
	// State — PENDING, STARTED, PROGRESS, SUCCESS, FAILURE
	State  string          `db:"state" json:"state"`
	Meta   json.RawMessage `db:"meta" json:"meta,omitempty"`
	Result json.RawMessage `db:"result" json:"result,omitempty"`
	Error  *string         `db:"error" json:"error,omitempty"`
	// UpdatedAt — время последнего изменения состояния
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
