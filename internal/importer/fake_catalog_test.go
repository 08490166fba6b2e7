package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/bigkaa/tbc-ingest/internal/domain/model"
	"github.com/bigkaa/tbc-ingest/internal/repository"
)

// catalogState — транзакционная часть фейкового каталога.
type catalogState struct {
	rows    map[int64]model.Book
	derived map[int64]int
	pending map[int64]bool
}

func (s catalogState) clone() catalogState {
	return catalogState{
		rows:    maps.Clone(s.rows),
		derived: maps.Clone(s.derived),
		pending: maps.Clone(s.pending),
	}
}

// fakeCatalog — каталог в памяти. Последовательность нетранзакционна,
// как books_id_seq; остальное фиксируется только через Commit.
type fakeCatalog struct {
	committed  catalogState
	seq        int64
	activePool string
	opened     int
	commits    int
}

func newFakeCatalog(seq int64, activePool string) *fakeCatalog {
	return &fakeCatalog{
		committed: catalogState{
			rows:    map[int64]model.Book{},
			derived: map[int64]int{},
			pending: map[int64]bool{},
		},
		seq:        seq,
		activePool: activePool,
	}
}

func (c *fakeCatalog) Open(_ context.Context) (repository.BookCatalog, error) {
	c.opened++
	return &fakeSession{catalog: c}, nil
}

// row возвращает зафиксированную строку.
func (c *fakeCatalog) row(id int64) (model.Book, bool) {
	b, ok := c.committed.rows[id]
	return b, ok
}

type fakeSession struct {
	catalog *fakeCatalog
	working *catalogState
}

func (s *fakeSession) state() *catalogState {
	if s.working == nil {
		st := s.catalog.committed.clone()
		s.working = &st
	}
	return s.working
}

func (s *fakeSession) findByMD5(md5 string, completeOnly bool) (*model.Book, error) {
	var found *model.Book
	for _, b := range s.state().rows {
		if b.MD5 == nil || *b.MD5 != md5 || (completeOnly && b.Reload != 0) {
			continue
		}
		if found == nil || b.ID > found.ID {
			row := b
			found = &row
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

func (s *fakeSession) LatestByMD5(_ context.Context, md5 string) (*model.Book, error) {
	return s.findByMD5(md5, false)
}

func (s *fakeSession) CompleteByMD5(_ context.Context, md5 string) (*model.Book, error) {
	return s.findByMD5(md5, true)
}

func (s *fakeSession) GetByID(_ context.Context, id int64) (*model.Book, error) {
	b, ok := s.state().rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (s *fakeSession) NextID(_ context.Context) (int64, error) {
	s.catalog.seq++
	return s.catalog.seq, nil
}

func (s *fakeSession) ActivePool(_ context.Context) (string, error) {
	if s.catalog.activePool == "" {
		return "", repository.ErrNotFound
	}
	return s.catalog.activePool, nil
}

func (s *fakeSession) Insert(_ context.Context, fields []model.Field) error {
	var b model.Book
	for _, f := range fields {
		if err := applyField(&b, f); err != nil {
			return err
		}
	}
	st := s.state()
	if _, exists := st.rows[b.ID]; exists {
		return repository.ErrConflict
	}
	for _, other := range st.rows {
		if other.Reload == 0 && b.Reload == 0 && other.MD5 != nil && b.MD5 != nil && *other.MD5 == *b.MD5 {
			return repository.ErrConflict
		}
	}
	st.rows[b.ID] = b
	return nil
}

func (s *fakeSession) Update(_ context.Context, id int64, fields []model.Field) error {
	st := s.state()
	b, ok := st.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, f := range fields {
		if f.Column == "id" || f.Column == "locator_id" {
			return fmt.Errorf("%w: колонка %q", repository.ErrIdentifier, f.Column)
		}
		if err := applyField(&b, f); err != nil {
			return err
		}
	}
	st.rows[id] = b
	return nil
}

func (s *fakeSession) UpdateFilename(ctx context.Context, id int64, filename string) error {
	return s.Update(ctx, id, []model.Field{{Column: "filename", Value: filename}})
}

func (s *fakeSession) PurgeDerived(_ context.Context, id int64) error {
	delete(s.state().derived, id)
	return nil
}

func (s *fakeSession) ReleasePendingID(_ context.Context, id int64) error {
	delete(s.state().pending, id)
	return nil
}

func (s *fakeSession) Commit(_ context.Context) error {
	if s.working == nil {
		return nil
	}
	s.catalog.committed = *s.working
	s.working = nil
	s.catalog.commits++
	return nil
}

func (s *fakeSession) Close(_ context.Context) {
	s.working = nil
}

func strVal(v any) *string {
	s := v.(string)
	return &s
}

// applyField записывает значение колонки в строку.
func applyField(b *model.Book, f model.Field) error {
	switch f.Column {
	case "id":
		b.ID = f.Value.(int64)
	case "filesize":
		v := f.Value.(int64)
		b.Filesize = &v
	case "filename":
		b.Filename = strVal(f.Value)
	case "extension":
		b.Extension = strVal(f.Value)
	case "src_type":
		b.SrcType = strVal(f.Value)
	case "src_id":
		b.SrcID = strVal(f.Value)
	case "library":
		b.Library = strVal(f.Value)
	case "src_add_algorithm":
		b.SrcAddAlgorithm = strVal(f.Value)
	case "year":
		v := f.Value.(int)
		b.Year = &v
	case "num":
		b.Num = strVal(f.Value)
	case "book_type":
		b.BookType = strVal(f.Value)
	case "pages":
		b.Pages = strVal(f.Value)
	case "title":
		b.Title = strVal(f.Value)
	case "author":
		b.Author = strVal(f.Value)
	case "reload":
		b.Reload = f.Value.(int)
	case "md5":
		b.MD5 = strVal(f.Value)
	case "isbn":
		b.ISBN = strVal(f.Value)
	case "descr":
		b.Descr = strVal(f.Value)
	case "params_json":
		b.ParamsJSON = rawVal(f.Value)
	case "textlayer_enable":
		v := f.Value.(int)
		b.TextlayerEnable = &v
	case "textlayer_size":
		v := f.Value.(int64)
		b.TextlayerSize = &v
	case "cover_small":
		v := f.Value.(int)
		b.CoverSmall = &v
	case "flags":
		b.Flags = rawVal(f.Value)
	case "publisher":
		b.Publisher = strVal(f.Value)
	case "parent_id":
		v := f.Value.(int64)
		b.ParentID = &v
	case "locator_id":
		b.LocatorID = strVal(f.Value)
	case "ths":
		b.Ths = f.Value.(int64)
	case "download_hash":
		b.DownloadHash = strVal(f.Value)
	case "detected_lang":
		b.DetectedLang = strVal(f.Value)
	case "search_lang_regconfig":
		b.SearchLangRegconfig = strVal(f.Value)
	case "search_updated":
		b.SearchUpdated = f.Value.(int)
	default:
		return fmt.Errorf("%w: колонка %q", repository.ErrIdentifier, f.Column)
	}
	return nil
}

func rawVal(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	return v.(json.RawMessage)
}
