package importer

import "errors"

// Классы ошибок импорта. Конкретная ошибка оборачивает один из них,
// проверка через errors.Is.
var (
	// ErrInput — нет обязательного параметра или исходного файла.
	// Возникает до любых изменений.
	ErrInput = errors.New("некорректные параметры импорта")
	// ErrConfig — неизвестный режим размещения, нет активного пула,
	// бюджет длины пути недостижим.
	ErrConfig = errors.New("ошибка конфигурации импорта")
	// ErrConflict — нарушение уникальности при записи в каталог.
	ErrConflict = errors.New("конфликт записи в каталог")
	// ErrPostCondition — после размещения файла нет на месте или строка
	// каталога не найдена.
	ErrPostCondition = errors.New("нарушено постусловие импорта")
)
