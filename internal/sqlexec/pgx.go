package sqlexec

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX — интерфейс для выполнения SQL-запросов через pgx.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxExecutor — Executor поверх pgx (пул или транзакция).
type PgxExecutor struct {
	db     DBTX
	target string
}

// NewPgxExecutor создаёт исполнитель для PostgreSQL.
// target — идентификатор подключения (например, "server;database").
func NewPgxExecutor(db DBTX, target string) *PgxExecutor {
	return &PgxExecutor{db: db, target: target}
}

// Query выполняет запрос и собирает строки в Result.
func (e *PgxExecutor) Query(ctx context.Context, query string, args ...any) (*Result, error) {
	rows, err := e.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	res := &Result{Columns: make([]string, len(fields))}
	for i, f := range fields {
		res.Columns[i] = f.Name
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения строки: %w", err)
		}
		row := make(Row, len(vals))
		for i, v := range vals {
			row[res.Columns[i]] = v
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результата: %w", err)
	}
	return res, nil
}

// Exec выполняет запрос и возвращает число затронутых строк.
func (e *PgxExecutor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := e.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("ошибка выполнения запроса: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (e *PgxExecutor) Dialect() Dialect { return Postgres{} }
func (e *PgxExecutor) Target() string   { return e.target }
