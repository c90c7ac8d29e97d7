package database

import (
	"context"
	"fmt"

	"github.com/bigkaa/goartstore/archive-module/internal/sqlexec"
)

// SQLiteSchema — управляющие таблицы для SQLite (локальный режим и тесты).
// Совпадает по колонкам с миграциями PostgreSQL.
var SQLiteSchema = []string{
	`CREATE TABLE IF NOT EXISTS archive_config (
		id                     INTEGER PRIMARY KEY,
		server_name            TEXT NOT NULL,
		database_name          TEXT NOT NULL,
		table_name             TEXT NOT NULL,
		id_column              TEXT NOT NULL DEFAULT 'id',
		age_determining_column TEXT,
		record_archive_method  TEXT,
		column_archive_method  TEXT,
		record_archive_info    TEXT,
		column_archive_info    TEXT,
		record_age             INTEGER NOT NULL DEFAULT 0,
		column_age             INTEGER NOT NULL DEFAULT 0,
		record_disabled        DATETIME,
		column_disabled        DATETIME,
		column_list            TEXT NOT NULL DEFAULT '',
		is_compressed          TEXT NOT NULL DEFAULT '',
		is_squeezed            TEXT NOT NULL DEFAULT '',
		archive_count          INTEGER NOT NULL DEFAULT 0,
		UNIQUE (server_name, database_name, table_name)
	)`,
	`CREATE TABLE IF NOT EXISTS archive_control (
		id             INTEGER PRIMARY KEY,
		table_path     TEXT NOT NULL,
		archive_type   TEXT NOT NULL CHECK (archive_type IN ('R', 'C')),
		"range"        TEXT NOT NULL DEFAULT '',
		archive_method TEXT NOT NULL,
		archive_info   TEXT NOT NULL,
		is_compressed  BOOLEAN NOT NULL DEFAULT 0,
		is_squeezed    BOOLEAN NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS archive_payload (
		rec_id     INTEGER NOT NULL,
		control_id INTEGER NOT NULL,
		data       BLOB NOT NULL,
		PRIMARY KEY (rec_id, control_id)
	)`,
}

// ApplySQLiteSchema создаёт управляющие таблицы в базе SQLite.
func ApplySQLiteSchema(ctx context.Context, ex sqlexec.Executor) error {
	for _, stmt := range SQLiteSchema {
		if _, err := ex.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ошибка создания управляющих таблиц SQLite: %w", err)
		}
	}
	return nil
}
