// Пакет sqlexec — выполнение параметризованного SQL против именованной
// логической базы данных. Результат запроса возвращается как набор строк
// "колонка → значение", что позволяет работать с таблицами, схема которых
// известна только во время выполнения.
package sqlexec

import (
	"context"
	"errors"
)

// ErrNoRows — запрос не вернул ни одной строки.
var ErrNoRows = errors.New("запрос не вернул строк")

// Row — строка результата: имя колонки → значение.
type Row map[string]any

// Result — результат запроса с сохранённым порядком колонок.
type Result struct {
	Columns []string
	Rows    []Row
}

// Executor — исполнитель SQL для одной логической базы данных.
type Executor interface {
	// Query выполняет запрос и возвращает все строки результата.
	Query(ctx context.Context, query string, args ...any) (*Result, error)
	// Exec выполняет запрос без результата и возвращает число затронутых строк.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	// Dialect возвращает SQL-диалект базы данных.
	Dialect() Dialect
	// Target идентифицирует текущее подключение. Смена значения означает,
	// что исполнитель теперь смотрит в другую базу данных.
	Target() string
}

// Scalar выполняет запрос и возвращает первую колонку первой строки.
// Возвращает ErrNoRows, если строк нет.
func Scalar(ctx context.Context, ex Executor, query string, args ...any) (any, error) {
	res, err := ex.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 || len(res.Columns) == 0 {
		return nil, ErrNoRows
	}
	return res.Rows[0][res.Columns[0]], nil
}
