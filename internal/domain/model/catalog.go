package model

import "time"

// StoragePool — именованный пул хранения файлов книг.
// Активным может быть только один пул; новые импорты попадают в него.
type StoragePool struct {
	Name      string    `db:"name" json:"name"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	Comment   *string   `db:"comment" json:"comment"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// FileGroup — группа типов файлов (таблица books_files_groups).
type FileGroup struct {
	ID      int     `db:"id" json:"id"`
	Name    *string `db:"name" json:"name"`
	Comment *string `db:"comment" json:"comment"`
}

// FileType — тип файла, ссылающийся на группу (таблица books_files_types).
type FileType struct {
	ID       int     `db:"id" json:"id"`
	FileName *string `db:"file_name" json:"file_name"`
	Comments *string `db:"comments" json:"comments"`
	GroupID  int     `db:"group_id" json:"group_id"`
	// GroupName — имя связанной группы (JOIN), только для чтения
	GroupName *string `db:"group_name" json:"group_name"`
}
