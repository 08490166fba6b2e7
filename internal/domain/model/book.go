package model

import (
	"encoding/json"
	"time"
)

// Book — запись каталога архива (таблица books).
// Декодируется из строки по именам колонок (тег db), а не по позиции.
type Book struct {
	// ID — идентификатор книги из последовательности books_id_seq
	ID int64 `db:"id" json:"id"`
	// Filesize — размер исходного файла в байтах
	Filesize *int64 `db:"filesize" json:"filesize"`
	// Filename — имя файла без расширения (может быть укорочено)
	Filename *string `db:"filename" json:"filename"`
	// Extension — расширение без точки
	Extension       *string `db:"extension" json:"extension"`
	SrcType         *string `db:"src_type" json:"src_type"`
	SrcID           *string `db:"src_id" json:"src_id"`
	Library         *string `db:"library" json:"library"`
	SrcAddAlgorithm *string `db:"src_add_algorithm" json:"src_add_algorithm"`
	Year            *int    `db:"year" json:"year"`
	Num             *string `db:"num" json:"num"`
	BookType        *string `db:"book_type" json:"book_type"`
	Pages           *string `db:"pages" json:"pages"`
	Title           *string `db:"title" json:"title"`
	Author          *string `db:"author" json:"author"`
	// Reload — 1: слот под утерянную книгу, 0: импорт завершён
	Reload int `db:"reload" json:"reload"`
	// MD5 — хэш содержимого; уникален среди строк с reload = 0
	MD5             *string         `db:"md5" json:"md5"`
	ISBN            *string         `db:"isbn" json:"isbn"`
	Descr           *string         `db:"descr" json:"descr"`
	ParamsJSON      json.RawMessage `db:"params_json" json:"params_json"`
	TextlayerEnable *int            `db:"textlayer_enable" json:"textlayer_enable"`
	TextlayerSize   *int64          `db:"textlayer_size" json:"textlayer_size"`
	CoverSmall      *int            `db:"cover_small" json:"cover_small"`
	Flags           json.RawMessage `db:"flags" json:"flags"`
	Publisher       *string         `db:"publisher" json:"publisher"`
	ParentID        *int64          `db:"parent_id" json:"parent_id"`
	// LocatorID — имя пула хранения; не меняется при reload
	LocatorID *string `db:"locator_id" json:"locator_id"`
	// Ths — шард: floor(id/1000)*1000
	Ths                 int64     `db:"ths" json:"ths"`
	DownloadHash        *string   `db:"download_hash" json:"download_hash"`
	DetectedLang        *string   `db:"detected_lang" json:"detected_lang"`
	SearchLangRegconfig *string   `db:"search_lang_regconfig" json:"search_lang_regconfig"`
	SearchUpdated       int       `db:"search_updated" json:"search_updated"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// StoredName возвращает имя файла книги на диске: filename.extension
// или filename, если расширение пустое.
func (b *Book) StoredName() string {
	name := ""
	if b.Filename != nil {
		name = *b.Filename
	}
	if b.Extension == nil || *b.Extension == "" {
		return name
	}
	return name + "." + *b.Extension
}

// Field — пара «колонка — значение» для INSERT/UPDATE каталога.
// Имя колонки проверяется репозиторием по белому списку.
type Field struct {
	Column string
	Value  any
}

// ShardOf возвращает шард (ths) для идентификатора книги.
func ShardOf(id int64) int64 {
	return id / 1000 * 1000
}
