package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// timeLayouts — форматы, в которых драйверы и управляющие таблицы
// возвращают временные метки в текстовом виде.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Lookup возвращает значение колонки без учёта регистра имени.
// PostgreSQL возвращает имена в нижнем регистре, SQLite — как объявлены.
func Lookup(row map[string]any, column string) (any, bool) {
	if v, ok := row[column]; ok {
		return v, true
	}
	for k, v := range row {
		if strings.EqualFold(k, column) {
			return v, true
		}
	}
	return nil, false
}

// AsString приводит значение колонки к строке. nil → "".
func AsString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

// AsInt64 приводит значение колонки к int64. nil → 0.
func AsInt64(v any) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
	default:
		return 0, fmt.Errorf("значение %v (%T) не является целым числом", v, v)
	}
}

// AsBool приводит значение колонки к bool. nil → false.
func AsBool(v any) (bool, error) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case int:
		return x != 0, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	default:
		return false, fmt.Errorf("значение %v (%T) не является логическим", v, v)
	}
}

// AsTime приводит значение колонки к time.Time. nil → нулевое время.
func AsTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return x, nil
	case string:
		return ParseTime(x)
	case []byte:
		return ParseTime(string(x))
	default:
		return time.Time{}, fmt.Errorf("значение %v (%T) не является временем", v, v)
	}
}

// ParseTime разбирает временную метку в одном из поддерживаемых форматов.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	// time.Time.String() добавляет показания монотонных часов
	if i := strings.Index(s, " m="); i >= 0 {
		s = s[:i]
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("некорректная временная метка: %q", s)
}
