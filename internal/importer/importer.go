// Пакет importer — импорт файла книги в архив: выделение идентификатора
// или переиспользование слота reload, вычисление шардированного каталога,
// запись строки каталога, размещение файла с ограничением длины пути
// и очистка производных данных при reload.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bigkaa/tbc-ingest/internal/domain/model"
	"github.com/bigkaa/tbc-ingest/internal/repository"
)

// DefaultPathMaxLen — бюджет длины полного пути файла книги.
const DefaultPathMaxLen = 100

// CatalogOpener открывает сессию каталога на время одного импорта.
type CatalogOpener interface {
	Open(ctx context.Context) (repository.BookCatalog, error)
}

// FileSystem — файловые операции импорта.
type FileSystem interface {
	Stat(path string) (os.FileInfo, error)
	MkdirAll(path string) error
	Move(src, dst string) error
	Copy(src, dst string) error
	IsFile(path string) bool
}

// LanguageDetector определяет язык текста.
type LanguageDetector interface {
	Detect(text string) (string, error)
}

// Options — параметры импортёра.
type Options struct {
	// StorageBase — корневой каталог пулов хранения
	StorageBase string
	// PathMaxLen — бюджет длины пути (по умолчанию DefaultPathMaxLen)
	PathMaxLen int
}

// searchLanguages — языки с конфигурацией полнотекстового поиска.
// Болгарский индексируется русской конфигурацией.
var searchLanguages = map[string]string{
	"russian":   "russian",
	"english":   "english",
	"bulgarian": "russian",
}

// Importer — импортёр архивных единиц.
type Importer struct {
	catalogs CatalogOpener
	files    FileSystem
	lang     LanguageDetector
	opts     Options
	logger   *slog.Logger
	newHash  func() (string, error)
}

// New создаёт импортёр.
func New(catalogs CatalogOpener, files FileSystem, lang LanguageDetector, opts Options, logger *slog.Logger) *Importer {
	if opts.PathMaxLen <= 0 {
		opts.PathMaxLen = DefaultPathMaxLen
	}
	return &Importer{
		catalogs: catalogs,
		files:    files,
		lang:     lang,
		opts:     opts,
		logger:   logger.With(slog.String("component", "importer")),
		newHash:  newDownloadHash,
	}
}

// Import импортирует один файл и возвращает строку каталога,
// перечитанную после последней фиксации.
func (im *Importer) Import(ctx context.Context, params Params) (*model.Book, error) {
	start := time.Now()
	book, reload, err := im.importFile(ctx, params)
	importDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		importTotal.WithLabelValues(kindFailed).Inc()
		return nil, err
	}
	if reload {
		importTotal.WithLabelValues(kindReload).Inc()
	} else {
		importTotal.WithLabelValues(kindFresh).Inc()
	}
	return book, nil
}

func (im *Importer) importFile(ctx context.Context, p Params) (*model.Book, bool, error) {
	info, mode, err := im.validate(&p)
	if err != nil {
		return nil, false, err
	}
	p.sanitize()

	session, err := im.catalogs.Open(ctx)
	if err != nil {
		return nil, false, err
	}
	defer session.Close(ctx)

	latest, err := session.LatestByMD5(ctx, p.MD5)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}
	reload := latest != nil && latest.Reload == 1

	// Идентификатор и пул хранения
	var (
		id      int64
		locator string
	)
	if reload {
		id = latest.ID
		if latest.LocatorID != nil {
			locator = *latest.LocatorID
		}
		if locator == "" {
			return nil, true, fmt.Errorf("%w: у слота reload %d не задан пул хранения", ErrConfig, id)
		}
	} else {
		if id, err = session.NextID(ctx); err != nil {
			return nil, false, err
		}
		locator, err = session.ActivePool(ctx)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, false, fmt.Errorf("%w: нет активного пула хранения", ErrConfig)
			}
			return nil, false, err
		}
	}
	location := bookLocation(im.opts.StorageBase, locator, id)

	log := im.logger.With(
		slog.Int64("id", id),
		slog.String("md5", p.MD5),
		slog.Bool("reload", reload),
	)

	// Значения по умолчанию для имени и расширения берутся из исходного файла
	srcStem, srcExt := splitSourceName(p.ImportFile)
	filename := srcStem
	if p.Filename != nil && *p.Filename != "" {
		filename = *p.Filename
	}
	extension := srcExt
	if p.Extension != nil {
		extension = normalizeExtension(*p.Extension)
	}

	hash, err := im.newHash()
	if err != nil {
		return nil, reload, err
	}

	var fields fieldSet
	fields.add("filesize", info.Size())
	if reload {
		fields.add("reload", 0)
	} else {
		fields.add("id", id)
	}
	fields.add("ths", model.ShardOf(id))
	if !reload {
		fields.add("locator_id", locator)
	}
	fields = append(fields, p.catalogFields(filename, extension)...)
	fields.add("download_hash", hash)
	im.addLanguage(&fields, &p, filename, log)

	if reload {
		err = session.Update(ctx, id, fields)
	} else {
		err = session.Insert(ctx, fields)
	}
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, reload, fmt.Errorf("%w: %v", ErrConflict, err)
		case errors.Is(err, repository.ErrNotFound) && !reload:
			return nil, reload, fmt.Errorf("%w: пул хранения %q не зарегистрирован", ErrConfig, locator)
		}
		return nil, reload, err
	}

	// Размещение файла
	if err := im.files.MkdirAll(location); err != nil {
		return nil, reload, err
	}
	stem, shortened, err := fitFilename(location, filename, extension, im.opts.PathMaxLen)
	if err != nil {
		return nil, reload, err
	}
	if shortened {
		if err := session.UpdateFilename(ctx, id, stem); err != nil {
			return nil, reload, err
		}
		if err := session.Commit(ctx); err != nil {
			return nil, reload, err
		}
		log.Debug("Имя файла укорочено", slog.String("filename", stem))
	}

	target := filepath.Join(location, storedName(stem, extension))
	switch mode {
	case ImportCopy:
		err = im.files.Copy(p.ImportFile, target)
	default:
		err = im.files.Move(p.ImportFile, target)
	}
	if err != nil {
		return nil, reload, fmt.Errorf("ошибка размещения файла книги %d: %w", id, err)
	}

	if p.CoverFile != "" {
		if err := im.files.Copy(p.CoverFile, filepath.Join(location, coverFileName)); err != nil {
			log.Warn("Обложка не скопирована",
				slog.String("cover_file", p.CoverFile),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := session.Commit(ctx); err != nil {
		return nil, reload, err
	}

	// Проверка постусловия по перечитанной строке
	row, err := session.CompleteByMD5(ctx, p.MD5)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, reload, fmt.Errorf("%w: строка с md5 %s не найдена после записи", ErrPostCondition, p.MD5)
		}
		return nil, reload, err
	}
	placed := filepath.Join(location, row.StoredName())
	if !im.files.IsFile(placed) {
		return nil, reload, fmt.Errorf("%w: файл %s отсутствует после размещения", ErrPostCondition, placed)
	}

	if reload {
		if err := session.PurgeDerived(ctx, id); err != nil {
			return nil, reload, err
		}
	}
	if err := session.ReleasePendingID(ctx, id); err != nil {
		return nil, reload, err
	}
	if err := session.Commit(ctx); err != nil {
		return nil, reload, err
	}

	book, err := session.GetByID(ctx, id)
	if err != nil {
		return nil, reload, err
	}
	log.Info("Книга импортирована",
		slog.String("locator_id", locator),
		slog.String("path", placed),
	)
	return book, reload, nil
}

// validate проверяет входные параметры до любых изменений и возвращает
// сведения об исходном файле и режим размещения.
func (im *Importer) validate(p *Params) (os.FileInfo, string, error) {
	if p.ImportFile == "" {
		return nil, "", fmt.Errorf("%w: не задан import_file", ErrInput)
	}
	info, err := im.files.Stat(p.ImportFile)
	if err != nil {
		return nil, "", fmt.Errorf("%w: исходный файл %s недоступен: %v", ErrInput, p.ImportFile, err)
	}
	if !info.Mode().IsRegular() {
		return nil, "", fmt.Errorf("%w: %s не является обычным файлом", ErrInput, p.ImportFile)
	}
	if p.MD5 == "" {
		return nil, "", fmt.Errorf("%w: не задан md5", ErrInput)
	}
	if p.Filename != nil && *p.Filename != "" {
		if err := checkNameComponent("filename", *p.Filename); err != nil {
			return nil, "", err
		}
	}
	_, extension := splitSourceName(p.ImportFile)
	if p.Extension != nil {
		extension = normalizeExtension(*p.Extension)
	}
	if extension != "" {
		if err := checkNameComponent("extension", extension); err != nil {
			return nil, "", err
		}
	}
	if utf8.RuneCountInString(extension) > maxExtensionLen {
		return nil, "", fmt.Errorf("%w: extension длиннее %d символов", ErrInput, maxExtensionLen)
	}

	mode := p.ImportType
	if mode == "" {
		mode = ImportMove
	}
	if mode != ImportMove && mode != ImportCopy {
		return nil, "", fmt.Errorf("%w: неизвестный import_type %q", ErrConfig, p.ImportType)
	}
	return info, mode, nil
}

// addLanguage дополняет набор колонок результатом определения языка.
// Ошибка определения не прерывает импорт.
func (im *Importer) addLanguage(fields *fieldSet, p *Params, filename string, log *slog.Logger) {
	if im.lang == nil {
		return
	}
	var text strings.Builder
	for _, v := range []*string{p.Title, p.Author, &filename} {
		if v != nil && *v != "" {
			text.WriteString(" ")
			text.WriteString(*v)
		}
	}

	lang, err := im.lang.Detect(text.String())
	if err != nil {
		log.Debug("Язык не определён", slog.String("error", err.Error()))
		return
	}
	fields.add("detected_lang", lang)
	regconfig, ok := searchLanguages[lang]
	if !ok {
		return
	}
	fields.add("search_lang_regconfig", regconfig)
	if regconfig == "russian" {
		fields.add("search_updated", 1)
	}
}
