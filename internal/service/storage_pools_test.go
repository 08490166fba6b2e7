package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bigkaa/tbc-ingest/internal/domain/model"
	"github.com/bigkaa/tbc-ingest/internal/repository"
)

type fakePoolRepo struct {
	repository.StoragePoolRepository
	pools map[string]model.StoragePool
}

func (r *fakePoolRepo) Create(_ context.Context, p *model.StoragePool) error {
	if _, ok := r.pools[p.Name]; ok {
		return repository.ErrConflict
	}
	r.pools[p.Name] = *p
	return nil
}

type recordingDirs struct {
	paths []string
	err   error
}

func (d *recordingDirs) MkdirAll(path string) error {
	d.paths = append(d.paths, path)
	return d.err
}

func TestStoragePoolService_Create(t *testing.T) {
	ctx := context.Background()
	repo := &fakePoolRepo{pools: map[string]model.StoragePool{"pool0": {Name: "pool0"}}}
	dirs := &recordingDirs{}
	svc := NewStoragePoolService(repo, nil, dirs, "/srv/books", testLogger())

	p, err := svc.Create(ctx, PoolInput{Name: "pool1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.IsActive {
		t.Error("новый пул не должен быть активным")
	}
	if len(dirs.paths) != 1 || dirs.paths[0] != filepath.Join("/srv/books", "pool1") {
		t.Errorf("созданные каталоги = %v", dirs.paths)
	}

	tests := []struct {
		name    string
		in      PoolInput
		wantErr error
	}{
		{"пустое имя", PoolInput{}, ErrValidation},
		{"слэш в имени", PoolInput{Name: "a/b"}, ErrValidation},
		{"обратный слэш", PoolInput{Name: `a\b`}, ErrValidation},
		{"точка", PoolInput{Name: "."}, ErrValidation},
		{"две точки", PoolInput{Name: ".."}, ErrValidation},
		{"длинное имя", PoolInput{Name: strings.Repeat("p", 65)}, ErrValidation},
		{"дубликат", PoolInput{Name: "pool0"}, ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tt.in); !errors.Is(err, tt.wantErr) {
				t.Errorf("ожидали %v, получили %v", tt.wantErr, err)
			}
		})
	}
}

func TestStoragePoolService_CreateDirFailureIsNotFatal(t *testing.T) {
	repo := &fakePoolRepo{pools: map[string]model.StoragePool{}}
	svc := NewStoragePoolService(repo, nil, &recordingDirs{err: errors.New("read-only")}, "/srv/books", testLogger())

	if _, err := svc.Create(context.Background(), PoolInput{Name: "pool2"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok := repo.pools["pool2"]; !ok {
		t.Error("пул не зарегистрирован")
	}
}
