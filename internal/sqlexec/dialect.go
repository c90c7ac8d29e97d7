package sqlexec

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect — различия SQL-диалектов, существенные для динамического CRUD.
type Dialect interface {
	// Name — имя диалекта ("postgres", "sqlite").
	Name() string
	// Placeholder возвращает плейсхолдер n-го параметра (с 1).
	Placeholder(n int) string
	// QuoteIdent экранирует идентификатор, в том числе составной (schema.table).
	QuoteIdent(name string) string
	// OverridingIdentity — фрагмент INSERT перед VALUES для явного значения
	// identity-колонки. Пустая строка — не требуется.
	OverridingIdentity() string
}

// Postgres — диалект PostgreSQL.
type Postgres struct{}

func (Postgres) Name() string             { return "postgres" }
func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }
func (Postgres) QuoteIdent(name string) string {
	return quoteParts(name, `"`)
}

// OverridingIdentity: явное значение identity-колонки задаётся в самом INSERT.
func (Postgres) OverridingIdentity() string { return "OVERRIDING SYSTEM VALUE" }

// SQLite — диалект SQLite. INTEGER PRIMARY KEY принимает явные значения.
type SQLite struct{}

func (SQLite) Name() string             { return "sqlite" }
func (SQLite) Placeholder(n int) string { return "?" + strconv.Itoa(n) }
func (SQLite) QuoteIdent(name string) string {
	return quoteParts(name, `"`)
}
func (SQLite) OverridingIdentity() string { return "" }

// DialectByName возвращает диалект по имени драйвера.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pgx", "pgx5":
		return Postgres{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	}
	return nil, fmt.Errorf("неизвестный SQL-диалект: %q", name)
}

// quoteParts экранирует каждую часть составного идентификатора.
func quoteParts(name, q string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = q + strings.ReplaceAll(p, q, q+q) + q
	}
	return strings.Join(parts, ".")
}
