package sqlexec

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLExecutor — Executor поверх database/sql (SQLite, PostgreSQL через
// pgx/stdlib и любые другие драйверы с известным диалектом).
type SQLExecutor struct {
	db      *sql.DB
	dialect Dialect
	target  string
}

// NewSQLExecutor создаёт исполнитель поверх *sql.DB.
func NewSQLExecutor(db *sql.DB, dialect Dialect, target string) *SQLExecutor {
	return &SQLExecutor{db: db, dialect: dialect, target: target}
}

// Query выполняет запрос и собирает строки в Result.
func (e *SQLExecutor) Query(ctx context.Context, query string, args ...any) (*Result, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("ошибка получения колонок: %w", err)
	}
	res := &Result{Columns: cols}

	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки: %w", err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результата: %w", err)
	}
	return res, nil
}

// Exec выполняет запрос и возвращает число затронутых строк.
func (e *SQLExecutor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	r, err := e.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("ошибка выполнения запроса: %w", err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ошибка получения числа строк: %w", err)
	}
	return n, nil
}

func (e *SQLExecutor) Dialect() Dialect { return e.dialect }
func (e *SQLExecutor) Target() string   { return e.target }
