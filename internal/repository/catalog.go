// catalog.go — доступ к каталогу книг (таблица books) и связанным таблицам.
// CatalogStore выдаёт сессии импорта: одна сессия — одно выделенное
// соединение и ленивая транзакция, фиксируемая явным Commit.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/tbc-ingest/internal/domain/model"
)

// bookSelect — явный список колонок books в порядке model.Book.
const bookSelect = `
	SELECT id, filesize, filename, extension, src_type, src_id, library,
		src_add_algorithm, year, num, book_type, pages, title, author, reload,
		md5, isbn, descr, params_json, textlayer_enable, textlayer_size,
		cover_small, flags, publisher, parent_id, locator_id, ths,
		download_hash, detected_lang, search_lang_regconfig, search_updated,
		created_at
	FROM books`

// bookInsertColumns — белый список колонок, допустимых в INSERT.
var bookInsertColumns = map[string]bool{
	"id": true, "filesize": true, "filename": true, "extension": true,
	"src_type": true, "src_id": true, "library": true, "src_add_algorithm": true,
	"year": true, "num": true, "book_type": true, "pages": true, "title": true,
	"author": true, "reload": true, "md5": true, "isbn": true, "descr": true,
	"params_json": true, "textlayer_enable": true, "textlayer_size": true,
	"cover_small": true, "flags": true, "publisher": true, "parent_id": true,
	"locator_id": true, "ths": true, "download_hash": true, "detected_lang": true,
	"search_lang_regconfig": true, "search_updated": true,
}

// bookImmutableColumns — колонки, которые не переназначаются в UPDATE.
var bookImmutableColumns = map[string]bool{"id": true, "locator_id": true}

// derivedTables — таблицы производных данных, очищаемые при reload.
// Все ключуются по tbc_id.
var derivedTables = []string{
	"books_images",
	"books_images_cache",
	"books_textlayers",
	"books_textlayers_cache",
	"finereader_queue",
}

// BookCatalog — сессия каталога, принадлежащая одному вызову импорта.
// Все операции выполняются в одной транзакции, открываемой при первом
// обращении; Commit фиксирует её, следующая операция откроет новую.
type BookCatalog interface {
	// LatestByMD5 возвращает самую свежую строку с хэшем (независимо от reload)
	// и блокирует её до конца транзакции.
	LatestByMD5(ctx context.Context, md5 string) (*model.Book, error)
	// CompleteByMD5 возвращает строку с хэшем и reload = 0.
	CompleteByMD5(ctx context.Context, md5 string) (*model.Book, error)
	// GetByID возвращает строку по идентификатору.
	GetByID(ctx context.Context, id int64) (*model.Book, error)
	// NextID выделяет идентификатор из books_id_seq в текущей транзакции.
	NextID(ctx context.Context) (int64, error)
	// ActivePool возвращает имя активного пула хранения.
	ActivePool(ctx context.Context) (string, error)
	// Insert добавляет строку books.
	Insert(ctx context.Context, fields []model.Field) error
	// Update обновляет строку books по id.
	Update(ctx context.Context, id int64, fields []model.Field) error
	// UpdateFilename сохраняет укороченное имя файла.
	UpdateFilename(ctx context.Context, id int64, filename string) error
	// PurgeDerived удаляет производные данные книги.
	PurgeDerived(ctx context.Context, id int64) error
	// ReleasePendingID удаляет идентификатор из books_ids_pool.
	ReleasePendingID(ctx context.Context, id int64) error
	// Commit фиксирует текущую транзакцию.
	Commit(ctx context.Context) error
	// Close откатывает незафиксированную транзакцию и освобождает соединение.
	Close(ctx context.Context)
}

// CatalogStore — фабрика сессий каталога и чтение книг вне импорта.
type CatalogStore struct {
	pool *pgxpool.Pool
}

// NewCatalogStore создаёт хранилище каталога поверх пула подключений.
func NewCatalogStore(pool *pgxpool.Pool) *CatalogStore {
	return &CatalogStore{pool: pool}
}

// Open захватывает соединение из пула под сессию импорта.
func (s *CatalogStore) Open(ctx context.Context) (BookCatalog, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения соединения: %w", err)
	}
	return &catalogSession{conn: conn}, nil
}

// GetByID читает книгу по идентификатору вне сессии импорта.
func (s *CatalogStore) GetByID(ctx context.Context, id int64) (*model.Book, error) {
	return queryBook(ctx, s.pool, "WHERE id = $1", id)
}

// catalogSession — реализация BookCatalog.
type catalogSession struct {
	conn *pgxpool.Conn
	tx   pgx.Tx
}

// db возвращает текущую транзакцию, открывая её при необходимости.
func (s *catalogSession) db(ctx context.Context) (pgx.Tx, error) {
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	s.tx = tx
	return tx, nil
}

func (s *catalogSession) LatestByMD5(ctx context.Context, md5 string) (*model.Book, error) {
	tx, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	// Блокировка строки сериализует одновременные reload одного содержимого
	return queryBook(ctx, tx, "WHERE md5 = $1 ORDER BY id DESC LIMIT 1 FOR UPDATE", md5)
}

func (s *catalogSession) CompleteByMD5(ctx context.Context, md5 string) (*model.Book, error) {
	tx, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	return queryBook(ctx, tx, "WHERE md5 = $1 AND reload = 0 ORDER BY id DESC LIMIT 1", md5)
}

func (s *catalogSession) GetByID(ctx context.Context, id int64) (*model.Book, error) {
	tx, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	return queryBook(ctx, tx, "WHERE id = $1", id)
}

func (s *catalogSession) NextID(ctx context.Context) (int64, error) {
	tx, err := s.db(ctx)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRow(ctx, `SELECT nextval('books_id_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("ошибка получения идентификатора книги: %w", err)
	}
	return id, nil
}

func (s *catalogSession) ActivePool(ctx context.Context) (string, error) {
	tx, err := s.db(ctx)
	if err != nil {
		return "", err
	}
	var name string
	err = tx.QueryRow(ctx, `SELECT name FROM storage_pools WHERE is_active`).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: нет активного пула хранения", ErrNotFound)
		}
		return "", fmt.Errorf("ошибка получения активного пула: %w", err)
	}
	return name, nil
}

func (s *catalogSession) Insert(ctx context.Context, fields []model.Field) error {
	query, args, err := buildBookInsert(fields)
	if err != nil {
		return err
	}
	tx, err := s.db(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: книга с таким id или md5 уже есть в каталоге", ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: пул хранения не зарегистрирован", ErrNotFound)
		}
		return fmt.Errorf("ошибка добавления книги: %w", err)
	}
	return nil
}

func (s *catalogSession) Update(ctx context.Context, id int64, fields []model.Field) error {
	query, args, err := buildBookUpdate(id, fields)
	if err != nil {
		return err
	}
	tx, err := s.db(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: книга с таким md5 уже есть в каталоге", ErrConflict)
		}
		return fmt.Errorf("ошибка обновления книги %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *catalogSession) UpdateFilename(ctx context.Context, id int64, filename string) error {
	return s.Update(ctx, id, []model.Field{{Column: "filename", Value: filename}})
}

func (s *catalogSession) PurgeDerived(ctx context.Context, id int64) error {
	tx, err := s.db(ctx)
	if err != nil {
		return err
	}
	for _, table := range derivedTables {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE tbc_id = $1", id); err != nil {
			return fmt.Errorf("ошибка очистки %s для книги %d: %w", table, id, err)
		}
	}
	return nil
}

func (s *catalogSession) ReleasePendingID(ctx context.Context, id int64) error {
	tx, err := s.db(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM books_ids_pool WHERE id = $1`, id); err != nil {
		return fmt.Errorf("ошибка удаления %d из books_ids_pool: %w", id, err)
	}
	return nil
}

func (s *catalogSession) Commit(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

func (s *catalogSession) Close(ctx context.Context) {
	if s.tx != nil {
		_ = s.tx.Rollback(ctx)
		s.tx = nil
	}
	if s.conn != nil {
		s.conn.Release()
		s.conn = nil
	}
}

// queryBook выполняет bookSelect с условием cond и декодирует строку по именам колонок.
func queryBook(ctx context.Context, db DBTX, cond string, args ...any) (*model.Book, error) {
	rows, err := db.Query(ctx, bookSelect+" "+cond, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения книги: %w", err)
	}
	book, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.Book])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка декодирования книги: %w", err)
	}
	return book, nil
}

// buildBookInsert строит INSERT по белому списку колонок.
// Значения передаются только параметрами.
func buildBookInsert(fields []model.Field) (string, []any, error) {
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("%w: пустой набор колонок", ErrIdentifier)
	}
	cols := make([]string, 0, len(fields))
	placeholders := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	seen := make(map[string]bool, len(fields))

	for i, f := range fields {
		if !bookInsertColumns[f.Column] {
			return "", nil, fmt.Errorf("%w: колонка %q", ErrIdentifier, f.Column)
		}
		if seen[f.Column] {
			return "", nil, fmt.Errorf("%w: колонка %q указана дважды", ErrIdentifier, f.Column)
		}
		seen[f.Column] = true
		cols = append(cols, f.Column)
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, f.Value)
	}

	query := fmt.Sprintf("INSERT INTO books (%s) VALUES (%s)",
		strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	return query, args, nil
}

// buildBookUpdate строит UPDATE по белому списку колонок; id и locator_id
// не переназначаются.
func buildBookUpdate(id int64, fields []model.Field) (string, []any, error) {
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("%w: пустой набор колонок", ErrIdentifier)
	}
	sets := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	seen := make(map[string]bool, len(fields))

	for i, f := range fields {
		if !bookInsertColumns[f.Column] || bookImmutableColumns[f.Column] {
			return "", nil, fmt.Errorf("%w: колонка %q", ErrIdentifier, f.Column)
		}
		if seen[f.Column] {
			return "", nil, fmt.Errorf("%w: колонка %q указана дважды", ErrIdentifier, f.Column)
		}
		seen[f.Column] = true
		sets = append(sets, fmt.Sprintf("%s = $%d", f.Column, i+1))
		args = append(args, f.Value)
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE books SET %s WHERE id = $%d",
		strings.Join(sets, ", "), len(args))
	return query, args, nil
}
