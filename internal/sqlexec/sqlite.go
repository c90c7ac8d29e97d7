package sqlexec

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // драйвер SQLite (pure Go)
)

// OpenSQLite открывает базу SQLite и оборачивает её в Executor.
// Пул ограничен одним соединением: так ":memory:" остаётся одной базой,
// а запись в файл не упирается в блокировки.
func OpenSQLite(dsn, target string) (*SQLExecutor, *sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка открытия SQLite %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ошибка подключения к SQLite %s: %w", dsn, err)
	}
	return NewSQLExecutor(db, SQLite{}, target), db, nil
}
