// Пакет table — явное описание схемы таблицы и динамический CRUD по нему.
// Схема строится один раз на таблицу (интроспекция БД) и передаётся по
// ссылке; доступ к полям — поиск в map по имени колонки.
package table

import (
	"strings"
)

// FieldType — семантический тип колонки.
type FieldType string

const (
	TypeInt     FieldType = "int"
	TypeFloat   FieldType = "float"
	TypeText    FieldType = "text"
	TypeBool    FieldType = "bool"
	TypeTime    FieldType = "time"
	TypeBytes   FieldType = "bytes"
	TypeUnknown FieldType = "unknown"
)

// Field — описание одной колонки.
type Field struct {
	Name     string
	Type     FieldType
	Nullable bool
	// ReadOnly — вычисляемая колонка, не участвует в INSERT/UPDATE.
	ReadOnly bool
}

// Schema — описание таблицы.
type Schema struct {
	// Table — имя таблицы для SQL (может включать схему БД).
	Table string
	// IDColumn — колонка-идентификатор записи.
	IDColumn string
	// Identity — значения IDColumn генерируются базой данных.
	Identity bool
	// Fields — колонки в порядке объявления.
	Fields []Field
}

// Field возвращает описание колонки без учёта регистра имени.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}

// Has проверяет наличие колонки.
func (s *Schema) Has(name string) bool {
	_, ok := s.Field(name)
	return ok
}

// IsID проверяет, является ли колонка идентификатором.
func (s *Schema) IsID(name string) bool {
	return strings.EqualFold(s.IDColumn, name)
}

// Normalize возвращает копию значений с именами колонок в написании схемы.
// Неизвестные колонки отбрасываются.
func (s *Schema) Normalize(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if f, ok := s.Field(k); ok {
			out[f.Name] = v
		}
	}
	return out
}

// EmptyRow возвращает строку со всеми колонками схемы, равными nil (NULL).
func (s *Schema) EmptyRow() map[string]any {
	row := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		row[f.Name] = nil
	}
	return row
}

// classify сопоставляет тип колонки БД семантическому типу.
func classify(dbType string) FieldType {
	t := strings.ToLower(dbType)
	switch {
	case strings.Contains(t, "bool"):
		return TypeBool
	case strings.Contains(t, "int"), strings.Contains(t, "serial"):
		return TypeInt
	case strings.Contains(t, "time"), strings.Contains(t, "date"):
		return TypeTime
	case strings.Contains(t, "char"), strings.Contains(t, "text"), strings.Contains(t, "clob"):
		return TypeText
	case strings.Contains(t, "real"), strings.Contains(t, "floa"), strings.Contains(t, "doub"),
		strings.Contains(t, "numeric"), strings.Contains(t, "decimal"):
		return TypeFloat
	case strings.Contains(t, "blob"), strings.Contains(t, "bytea"), strings.Contains(t, "binary"):
		return TypeBytes
	}
	return TypeUnknown
}
