package importer

import (
	"bytes"
	"encoding/json"

	"github.com/bigkaa/tbc-ingest/internal/domain/model"
)

// Режимы размещения файла в хранилище.
const (
	ImportMove = "move"
	ImportCopy = "copy"
)

// Params — параметры импорта одного файла. Набор полей является белым
// списком: прочие ключи входного JSON игнорируются. Незаданные
// необязательные поля в каталог не записываются.
type Params struct {
	// ImportFile — путь к исходному файлу (обязательный)
	ImportFile string `json:"import_file"`
	// MD5 — хэш содержимого (обязательный)
	MD5 string `json:"md5"`

	Filename        *string         `json:"filename,omitempty"`
	Extension       *string         `json:"extension,omitempty"`
	SrcType         *string         `json:"src_type,omitempty"`
	SrcID           *string         `json:"src_id,omitempty"`
	Library         *string         `json:"library,omitempty"`
	SrcAddAlgorithm *string         `json:"src_add_algorithm,omitempty"`
	Year            *int            `json:"year,omitempty"`
	Num             *string         `json:"num,omitempty"`
	BookType        *string         `json:"book_type,omitempty"`
	Pages           *string         `json:"pages,omitempty"`
	Title           *string         `json:"title,omitempty"`
	Author          *string         `json:"author,omitempty"`
	ISBN            *string         `json:"isbn,omitempty"`
	Descr           *string         `json:"descr,omitempty"`
	ParamsJSON      json.RawMessage `json:"params_json,omitempty"`
	TextlayerEnable *int            `json:"textlayer_enable,omitempty"`
	TextlayerSize   *int64          `json:"textlayer_size,omitempty"`
	CoverSmall      *int            `json:"cover_small,omitempty"`
	Flags           json.RawMessage `json:"flags,omitempty"`
	Publisher       *string         `json:"publisher,omitempty"`
	ParentID        *int64          `json:"parent_id,omitempty"`

	// ImportType — move (по умолчанию) или copy
	ImportType string `json:"import_type,omitempty"`
	// CoverFile — путь к обложке, копируется как cover_small.jpg
	CoverFile string `json:"cover_file,omitempty"`
}

// fieldSet собирает колонки каталога в фиксированном порядке.
type fieldSet []model.Field

func (fs *fieldSet) add(column string, value any) {
	*fs = append(*fs, model.Field{Column: column, Value: value})
}

func (fs *fieldSet) addString(column string, v *string) {
	if v != nil {
		fs.add(column, *v)
	}
}

func (fs *fieldSet) addJSON(column string, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		fs.add(column, nil)
		return
	}
	fs.add(column, raw)
}

// catalogFields возвращает колонки из параметров после очистки.
// filename и extension передаются уже с подставленными значениями по умолчанию.
func (p *Params) catalogFields(filename, extension string) fieldSet {
	var fs fieldSet
	fs.add("filename", filename)
	fs.add("extension", extension)
	fs.addString("src_type", p.SrcType)
	fs.addString("src_id", p.SrcID)
	fs.addString("library", p.Library)
	fs.addString("src_add_algorithm", p.SrcAddAlgorithm)
	if p.Year != nil {
		fs.add("year", *p.Year)
	}
	fs.addString("num", p.Num)
	fs.addString("book_type", p.BookType)
	fs.addString("pages", p.Pages)
	fs.addString("title", p.Title)
	fs.addString("author", p.Author)
	fs.add("md5", p.MD5)
	fs.addString("isbn", p.ISBN)
	fs.addString("descr", p.Descr)
	fs.addJSON("params_json", p.ParamsJSON)
	if p.TextlayerEnable != nil {
		fs.add("textlayer_enable", *p.TextlayerEnable)
	}
	if p.TextlayerSize != nil {
		fs.add("textlayer_size", *p.TextlayerSize)
	}
	if p.CoverSmall != nil {
		fs.add("cover_small", *p.CoverSmall)
	}
	fs.addJSON("flags", p.Flags)
	fs.addString("publisher", p.Publisher)
	if p.ParentID != nil {
		fs.add("parent_id", *p.ParentID)
	}
	return fs
}
