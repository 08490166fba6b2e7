package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/tbc-ingest/internal/config"
	"github.com/bigkaa/tbc-ingest/internal/database"
	"github.com/bigkaa/tbc-ingest/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool, закрываемый в t.Cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("books_test"),
		postgres.WithUsername("tbc"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}
	portNum, _ := strconv.Atoi(port.Port())

	db := config.DBConfig{
		Host: host, Port: portNum, Name: "books_test",
		User: "tbc", Password: "test-password", SSLMode: "disable",
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := database.Migrate(db, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, db, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

func strPtr(s string) *string { return &s }

// --- Построение SQL без БД ---

func TestBuildBookInsert(t *testing.T) {
	query, args, err := buildBookInsert([]model.Field{
		{Column: "id", Value: int64(1001)},
		{Column: "ths", Value: int64(1000)},
		{Column: "md5", Value: "abc"},
	})
	if err != nil {
		t.Fatalf("buildBookInsert() ошибка: %v", err)
	}
	want := "INSERT INTO books (id, ths, md5) VALUES ($1, $2, $3)"
	if query != want {
		t.Errorf("query = %q, хотели %q", query, want)
	}
	if len(args) != 3 || args[2] != "abc" {
		t.Errorf("args = %v", args)
	}
}

func TestBuildBookInsert_RejectsUnknownColumn(t *testing.T) {
	tests := []struct {
		name   string
		fields []model.Field
	}{
		{"пустой набор", nil},
		{"инъекция в имя", []model.Field{{Column: "title; DROP TABLE books", Value: "x"}}},
		{"неизвестная колонка", []model.Field{{Column: "created_at", Value: time.Now()}}},
		{"повтор колонки", []model.Field{{Column: "md5", Value: "a"}, {Column: "md5", Value: "b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := buildBookInsert(tt.fields)
			if !errors.Is(err, ErrIdentifier) {
				t.Errorf("ожидали ErrIdentifier, получили %v", err)
			}
		})
	}
}

func TestBuildBookUpdate(t *testing.T) {
	query, args, err := buildBookUpdate(42, []model.Field{
		{Column: "reload", Value: 0},
		{Column: "filename", Value: "book"},
	})
	if err != nil {
		t.Fatalf("buildBookUpdate() ошибка: %v", err)
	}
	want := "UPDATE books SET reload = $1, filename = $2 WHERE id = $3"
	if query != want {
		t.Errorf("query = %q, хотели %q", query, want)
	}
	if len(args) != 3 || args[2] != int64(42) {
		t.Errorf("args = %v", args)
	}

	// id и locator_id не переназначаются
	for _, col := range []string{"id", "locator_id"} {
		if _, _, err := buildBookUpdate(42, []model.Field{{Column: col, Value: "x"}}); !errors.Is(err, ErrIdentifier) {
			t.Errorf("колонка %s: ожидали ErrIdentifier, получили %v", col, err)
		}
	}
}

func TestNewPGQueue_AllowList(t *testing.T) {
	if _, err := NewPGQueue(nil, "task_queue", "id", "pgq_status", WithFilter("queue", "importer")); err != nil {
		t.Fatalf("допустимые идентификаторы отклонены: %v", err)
	}

	tests := []struct {
		name, table, id, status, filter string
	}{
		{"неизвестная таблица", "books", "id", "pgq_status", ""},
		{"неизвестная колонка id", "task_queue", "task_id", "pgq_status", ""},
		{"неизвестная колонка статуса", "task_queue", "id", "state", ""},
		{"неизвестная колонка фильтра", "task_queue", "id", "pgq_status", "1=1 OR queue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []QueueOption
			if tt.filter != "" {
				opts = append(opts, WithFilter(tt.filter, 1))
			}
			_, err := NewPGQueue(nil, tt.table, tt.id, tt.status, opts...)
			if !errors.Is(err, ErrIdentifier) {
				t.Errorf("ожидали ErrIdentifier, получили %v", err)
			}
		})
	}
}

func TestPGQueue_ClaimQueryParameterized(t *testing.T) {
	q, err := NewPGQueue(nil, "task_queue", "id", "pgq_status", WithFilter("queue", "importer"))
	if err != nil {
		t.Fatalf("NewPGQueue() ошибка: %v", err)
	}
	query, args := q.claimQuery()
	if len(args) != 3 || args[2] != "importer" {
		t.Errorf("args = %v, значение фильтра должно передаваться параметром", args)
	}
	for _, fragment := range []string{"FOR UPDATE SKIP LOCKED", "queue = $3", "RETURNING task_queue.id"} {
		if !strings.Contains(query, fragment) {
			t.Errorf("запрос не содержит %q:\n%s", fragment, query)
		}
	}
}

// --- Интеграционные тесты ---

func TestCatalogSession_FreshInsertAndPurge(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	pools := NewStoragePoolRepository(pool)
	if err := pools.Create(ctx, &model.StoragePool{Name: "pool1"}); err != nil {
		t.Fatalf("Create pool: %v", err)
	}
	if err := pools.SetActive(ctx, "pool1"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	store := NewCatalogStore(pool)
	session, err := store.Open(ctx)
	if err != nil {
		t.Fatalf("Open() ошибка: %v", err)
	}
	defer session.Close(ctx)

	id, err := session.NextID(ctx)
	if err != nil {
		t.Fatalf("NextID() ошибка: %v", err)
	}
	id2, err := session.NextID(ctx)
	if err != nil {
		t.Fatalf("NextID() ошибка: %v", err)
	}
	if id2 <= id {
		t.Errorf("NextID() не монотонен: %d, затем %d", id, id2)
	}

	locator, err := session.ActivePool(ctx)
	if err != nil || locator != "pool1" {
		t.Fatalf("ActivePool() = %q, %v", locator, err)
	}

	err = session.Insert(ctx, []model.Field{
		{Column: "id", Value: id},
		{Column: "ths", Value: model.ShardOf(id)},
		{Column: "locator_id", Value: locator},
		{Column: "md5", Value: "md5-fresh"},
		{Column: "filename", Value: "book"},
		{Column: "extension", Value: "pdf"},
		{Column: "flags", Value: json.RawMessage(`{"a":1}`)},
	})
	if err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}
	for _, bookID := range []int64{id, id2} {
		seedDerived(t, pool, bookID)
	}
	if err := session.UpdateFilename(ctx, id, "bo"); err != nil {
		t.Fatalf("UpdateFilename() ошибка: %v", err)
	}
	if err := session.Commit(ctx); err != nil {
		t.Fatalf("Commit() ошибка: %v", err)
	}

	book, err := session.CompleteByMD5(ctx, "md5-fresh")
	if err != nil {
		t.Fatalf("CompleteByMD5() ошибка: %v", err)
	}
	if book.ID != id || book.StoredName() != "bo.pdf" || book.Ths != model.ShardOf(id) {
		t.Errorf("книга прочитана неверно: id=%d name=%q ths=%d", book.ID, book.StoredName(), book.Ths)
	}

	if err := session.PurgeDerived(ctx, id); err != nil {
		t.Fatalf("PurgeDerived() ошибка: %v", err)
	}
	if err := session.ReleasePendingID(ctx, id); err != nil {
		t.Fatalf("ReleasePendingID() ошибка: %v", err)
	}
	if err := session.Commit(ctx); err != nil {
		t.Fatalf("Commit() ошибка: %v", err)
	}

	for table, key := range derivedKeys {
		if left := countRows(t, pool, table, key, id); left != 0 {
			t.Errorf("после очистки в %s осталось %d строк книги %d", table, left, id)
		}
		if kept := countRows(t, pool, table, key, id2); kept != 1 {
			t.Errorf("в %s затронуты строки книги %d: осталось %d, ожидали 1", table, id2, kept)
		}
	}

	// Повторная вставка того же md5 с reload = 0 — конфликт
	dup := []model.Field{
		{Column: "id", Value: id2}, {Column: "ths", Value: model.ShardOf(id2)},
		{Column: "locator_id", Value: locator}, {Column: "md5", Value: "md5-fresh"},
	}
	if err := session.Insert(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("ожидали ErrConflict, получили %v", err)
	}
}

// derivedKeys — таблицы, очищаемые при reload, и их колонка идентификатора книги.
var derivedKeys = map[string]string{
	"books_images":           "tbc_id",
	"books_images_cache":     "tbc_id",
	"books_textlayers":       "tbc_id",
	"books_textlayers_cache": "tbc_id",
	"finereader_queue":       "tbc_id",
	"books_ids_pool":         "id",
}

// seedDerived добавляет по одной строке производных данных книги
// и резервирует её идентификатор в books_ids_pool.
func seedDerived(t *testing.T, pool *pgxpool.Pool, id int64) {
	t.Helper()
	ctx := context.Background()
	stmts := []string{
		`INSERT INTO books_images (tbc_id, page) VALUES ($1, 1)`,
		`INSERT INTO books_images_cache (tbc_id, data) VALUES ($1, '{}')`,
		`INSERT INTO books_textlayers (tbc_id, page, body) VALUES ($1, 1, 'текст')`,
		`INSERT INTO books_textlayers_cache (tbc_id, data) VALUES ($1, '{}')`,
		`INSERT INTO finereader_queue (tbc_id) VALUES ($1)`,
		`INSERT INTO books_ids_pool (id, status) VALUES ($1, 1)`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt, id); err != nil {
			t.Fatalf("подготовка данных %q: %v", stmt, err)
		}
	}
}

func countRows(t *testing.T, pool *pgxpool.Pool, table, key string, id int64) int {
	t.Helper()
	var n int
	query := "SELECT count(*) FROM " + table + " WHERE " + key + " = $1"
	if err := pool.QueryRow(context.Background(), query, id).Scan(&n); err != nil {
		t.Fatalf("подсчёт %s: %v", table, err)
	}
	return n
}

func TestCatalogSession_CloseRollsBack(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	if _, err := pool.Exec(ctx, `INSERT INTO storage_pools (name, is_active) VALUES ('p', TRUE)`); err != nil {
		t.Fatalf("подготовка пула: %v", err)
	}

	store := NewCatalogStore(pool)
	session, err := store.Open(ctx)
	if err != nil {
		t.Fatalf("Open() ошибка: %v", err)
	}
	id, _ := session.NextID(ctx)
	err = session.Insert(ctx, []model.Field{
		{Column: "id", Value: id}, {Column: "ths", Value: model.ShardOf(id)},
		{Column: "locator_id", Value: "p"}, {Column: "md5", Value: "rolled-back"},
	})
	if err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}
	session.Close(ctx)

	if _, err := store.GetByID(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("после Close без Commit ожидали ErrNotFound, получили %v", err)
	}
}

func TestStoragePoolActivation(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewStoragePoolRepository(pool)

	for _, name := range []string{"a", "b"} {
		if err := repo.Create(ctx, &model.StoragePool{Name: name, Comment: strPtr("пул " + name)}); err != nil {
			t.Fatalf("Create(%s): %v", name, err)
		}
	}
	if err := repo.Create(ctx, &model.StoragePool{Name: "a"}); !errors.Is(err, ErrConflict) {
		t.Errorf("повторный Create: ожидали ErrConflict, получили %v", err)
	}

	tx := NewTxRunner(pool)
	for _, name := range []string{"a", "b"} {
		err := tx.RunInTx(ctx, func(tx pgx.Tx) error {
			r := NewStoragePoolRepository(tx)
			if err := r.DeactivateAll(ctx); err != nil {
				return err
			}
			return r.SetActive(ctx, name)
		})
		if err != nil {
			t.Fatalf("активация %s: %v", name, err)
		}
		active, err := repo.Active(ctx)
		if err != nil || active.Name != name {
			t.Fatalf("Active() = %+v, %v; хотели %s", active, err, name)
		}
	}

	list, err := repo.List(ctx)
	if err != nil || len(list) != 2 {
		t.Fatalf("List() = %d записей, %v", len(list), err)
	}
	if err := repo.SetActive(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetActive(missing): ожидали ErrNotFound, получили %v", err)
	}
}

func TestFileGroupsAndTypesCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	groups := NewFileGroupRepository(pool)
	types := NewFileTypeRepository(pool)

	if err := groups.Create(ctx, &model.FileGroup{ID: 1, Name: strPtr("Книги")}); err != nil {
		t.Fatalf("Create group: %v", err)
	}
	if err := groups.Create(ctx, &model.FileGroup{ID: 1}); !errors.Is(err, ErrConflict) {
		t.Errorf("повторный Create group: ожидали ErrConflict, получили %v", err)
	}

	if err := types.Create(ctx, &model.FileType{ID: 10, FileName: strPtr("pdf"), GroupID: 1}); err != nil {
		t.Fatalf("Create type: %v", err)
	}
	if err := types.Create(ctx, &model.FileType{ID: 11, GroupID: 99}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Create type с несуществующей группой: ожидали ErrNotFound, получили %v", err)
	}

	got, err := types.GetByID(ctx, 10)
	if err != nil {
		t.Fatalf("GetByID type: %v", err)
	}
	if got.GroupName == nil || *got.GroupName != "Книги" {
		t.Errorf("GroupName = %v, хотели Книги", got.GroupName)
	}

	if err := groups.Delete(ctx, 1); !errors.Is(err, ErrReferenced) {
		t.Errorf("Delete группы с типами: ожидали ErrReferenced, получили %v", err)
	}

	got.Comments = strPtr("документы")
	if err := types.Update(ctx, got); err != nil {
		t.Fatalf("Update type: %v", err)
	}
	if err := types.Delete(ctx, 10); err != nil {
		t.Fatalf("Delete type: %v", err)
	}
	if err := groups.Update(ctx, &model.FileGroup{ID: 1, Name: strPtr("Журналы")}); err != nil {
		t.Fatalf("Update group: %v", err)
	}
	if err := groups.Delete(ctx, 1); err != nil {
		t.Fatalf("Delete group: %v", err)
	}
	if _, err := groups.GetByID(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("после Delete ожидали ErrNotFound, получили %v", err)
	}
}

func TestTaskQueueAndResults(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	queue := NewTaskQueueRepository(pool)
	results := NewTaskResultRepository(pool)

	msg := &model.TaskMessage{
		ID: uuid.NewString(), Name: "importer.process_record", Queue: "importer",
		Payload: json.RawMessage(`{"id":"1","payload":"X"}`), EnqueuedAt: time.Now().UTC(),
	}
	if err := queue.Enqueue(ctx, msg); err != nil {
		t.Fatalf("Enqueue() ошибка: %v", err)
	}

	if _, _, err := queue.Claim(ctx, "other"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Claim(other): ожидали ErrNotFound, получили %v", err)
	}
	rowID, got, err := queue.Claim(ctx, "importer")
	if err != nil {
		t.Fatalf("Claim() ошибка: %v", err)
	}
	if got.ID != msg.ID || got.Name != msg.Name {
		t.Errorf("Claim() = %+v", got)
	}
	if _, _, err := queue.Claim(ctx, "importer"); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный Claim: ожидали ErrNotFound, получили %v", err)
	}
	if err := queue.Complete(ctx, rowID); err != nil {
		t.Fatalf("Complete() ошибка: %v", err)
	}

	res := &model.TaskResult{
		TaskID: msg.ID, Name: msg.Name, State: "SUCCESS",
		Result: json.RawMessage(`{"ok":true}`), UpdatedAt: time.Now().UTC(),
	}
	if err := results.Save(ctx, res); err != nil {
		t.Fatalf("Save() ошибка: %v", err)
	}
	loaded, err := results.Get(ctx, msg.ID, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if loaded.State != "SUCCESS" {
		t.Errorf("State = %q, хотели SUCCESS", loaded.State)
	}
	if _, err := results.Get(ctx, msg.ID, time.Now().Add(time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Errorf("устаревший результат: ожидали ErrNotFound, получили %v", err)
	}
	n, err := results.DeleteOlderThan(ctx, time.Now().Add(time.Hour))
	if err != nil || n != 1 {
		t.Errorf("DeleteOlderThan() = %d, %v", n, err)
	}
}
