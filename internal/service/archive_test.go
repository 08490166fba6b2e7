package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/bigkaa/tbc-ingest/internal/domain/model"
	"github.com/bigkaa/tbc-ingest/internal/importer"
	"github.com/bigkaa/tbc-ingest/internal/repository"
	"github.com/bigkaa/tbc-ingest/internal/tasks"
)

type fakeImporter struct {
	book  *model.Book
	err   error
	calls int
}

func (f *fakeImporter) Import(_ context.Context, _ importer.Params) (*model.Book, error) {
	f.calls++
	return f.book, f.err
}

type fakeBookReader map[int64]*model.Book

func (f fakeBookReader) GetByID(_ context.Context, id int64) (*model.Book, error) {
	b, ok := f[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return b, nil
}

func TestArchiveService_Import(t *testing.T) {
	ctx := context.Background()

	im := &fakeImporter{book: &model.Book{ID: 5}}
	svc := NewArchiveService(im, fakeBookReader{}, nil, testLogger())
	book, err := svc.Import(ctx, importer.Params{ImportFile: "/in/a.pdf", MD5: "m"})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if book.ID != 5 {
		t.Errorf("ID = %d, ожидали 5", book.ID)
	}

	im.err = importer.ErrConflict
	if _, err := svc.Import(ctx, importer.Params{}); !errors.Is(err, importer.ErrConflict) {
		t.Errorf("ожидали importer.ErrConflict, получили %v", err)
	}
}

func TestArchiveService_Book(t *testing.T) {
	svc := NewArchiveService(&fakeImporter{}, fakeBookReader{3: {ID: 3}}, nil, testLogger())

	if b, err := svc.Book(context.Background(), 3); err != nil || b.ID != 3 {
		t.Errorf("Book(3) = %v, %v", b, err)
	}
	if _, err := svc.Book(context.Background(), 4); !errors.Is(err, ErrNotFound) {
		t.Errorf("Book(4): ожидали ErrNotFound, получили %v", err)
	}
}

func TestArchiveService_ImportAsync(t *testing.T) {
	ctx := context.Background()

	t.Run("без диспетчера", func(t *testing.T) {
		svc := NewArchiveService(&fakeImporter{}, fakeBookReader{}, nil, testLogger())
		if _, err := svc.ImportAsync(ctx, importer.Params{ImportFile: "/a", MD5: "m"}); !errors.Is(err, ErrTasksUnavailable) {
			t.Errorf("ожидали ErrTasksUnavailable, получили %v", err)
		}
	})

	reg := tasks.NewRegistry()
	var got importer.Params
	if err := reg.Register(TaskImportFile, func(_ context.Context, _ *tasks.TaskContext, payload json.RawMessage) (any, error) {
		if err := json.Unmarshal(payload, &got); err != nil {
			return nil, err
		}
		return map[string]int64{"id": 1}, nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	d := tasks.NewDispatcher(reg, tasks.NewMemoryBroker(4), tasks.NewMemoryBackend(time.Hour),
		tasks.Options{Queue: "importer", AlwaysEager: true}, testLogger())
	svc := NewArchiveService(&fakeImporter{}, fakeBookReader{}, d, testLogger())

	t.Run("без md5", func(t *testing.T) {
		if _, err := svc.ImportAsync(ctx, importer.Params{ImportFile: "/a"}); !errors.Is(err, importer.ErrInput) {
			t.Errorf("ожидали importer.ErrInput, получили %v", err)
		}
	})
	t.Run("задача выполнена", func(t *testing.T) {
		ar, err := svc.ImportAsync(ctx, importer.Params{ImportFile: "/in/b.djvu", MD5: "abc", ImportType: importer.ImportCopy})
		if err != nil {
			t.Fatalf("ImportAsync: %v", err)
		}
		if ar.State != tasks.StateSuccess {
			t.Fatalf("State = %s, ошибка %q", ar.State, ar.Error)
		}
		if got.ImportFile != "/in/b.djvu" || got.MD5 != "abc" || got.ImportType != importer.ImportCopy {
			t.Errorf("параметры задачи = %+v", got)
		}
	})
}
