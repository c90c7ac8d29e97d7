package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
	"github.com/bigkaa/goartstore/archive-module/internal/sqlexec"
	"github.com/bigkaa/goartstore/archive-module/internal/table"
)

// SQL — хранилище payload'ов в таблице реляционной базы данных.
// archive_info батча: "server;database;table".
//
// Blob-режим: таблица (rec_id, control_id, data), ключ (rec_id, control_id),
// так что одна запись может иметь независимые payload'ы в разных батчах.
// Hash-режим: таблица повторяет схему исходной, payload — обычная строка
// с ключом policy.IDColumn.
type SQL struct {
	batch    *model.ArchiveBatch
	policy   *model.ArchivePolicy
	server   string
	database string
	table    string

	locator sqlexec.Locator
	loader  *table.Loader
}

// ParseSQLInfo разбирает archive_info вида "server;database;table".
func ParseSQLInfo(info string) (server, database, tableName string, err error) {
	parts := strings.Split(info, ";")
	if len(parts) != 3 {
		return "", "", "", model.NewConfigurationError("некорректный archive_info %q: ожидается server;database;table", info)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return "", "", "", model.NewConfigurationError("некорректный archive_info %q: пустой элемент", info)
		}
	}
	return parts[0], parts[1], parts[2], nil
}

// NewSQL создаёт Sql-хранилище батча.
func NewSQL(batch *model.ArchiveBatch, policy *model.ArchivePolicy, locator sqlexec.Locator, loader *table.Loader) (*SQL, error) {
	server, database, tableName, err := ParseSQLInfo(batch.Info)
	if err != nil {
		return nil, err
	}
	return &SQL{
		batch:    batch,
		policy:   policy,
		server:   server,
		database: database,
		table:    tableName,
		locator:  locator,
		loader:   loader,
	}, nil
}

func (s *SQL) executor(ctx context.Context) (sqlexec.Executor, error) {
	return s.locator.Locate(ctx, s.server, s.database)
}

// Write записывает payload, предварительно удаляя прежний.
func (s *SQL) Write(ctx context.Context, id int64, data []byte) (err error) {
	start := time.Now()
	defer func() { err = observe(model.MethodSQL, "write", start, err) }()

	ex, err := s.executor(ctx)
	if err != nil {
		return err
	}
	if _, err := s.deleteBlob(ctx, ex, id); err != nil {
		return err
	}

	d := ex.Dialect()
	q := fmt.Sprintf("INSERT INTO %s (rec_id, control_id, data) VALUES (%s, %s, %s)",
		d.QuoteIdent(s.table), d.Placeholder(1), d.Placeholder(2), d.Placeholder(3))
	if _, err := ex.Exec(ctx, q, id, s.batch.ID, data); err != nil {
		return fmt.Errorf("ошибка записи payload id=%d в %s: %w", id, s.table, err)
	}
	return nil
}

// Read читает payload записи id.
func (s *SQL) Read(ctx context.Context, id int64) (data []byte, err error) {
	start := time.Now()
	defer func() { err = observe(model.MethodSQL, "read", start, err) }()

	ex, err := s.executor(ctx)
	if err != nil {
		return nil, err
	}
	d := ex.Dialect()
	q := fmt.Sprintf("SELECT data FROM %s WHERE rec_id = %s AND control_id = %s",
		d.QuoteIdent(s.table), d.Placeholder(1), d.Placeholder(2))

	res, err := ex.Query(ctx, q, id, s.batch.ID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения payload id=%d из %s: %w", id, s.table, err)
	}
	if len(res.Rows) == 0 {
		return nil, model.ErrNotFound
	}
	v, _ := model.Lookup(res.Rows[0], "data")
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	case nil:
		return nil, model.ErrNotFound
	}
	return nil, fmt.Errorf("payload id=%d: неожиданный тип данных %T", id, v)
}

// Delete удаляет payload записи id в этом батче.
func (s *SQL) Delete(ctx context.Context, id int64) (n int64, err error) {
	start := time.Now()
	defer func() { err = observe(model.MethodSQL, "delete", start, err) }()

	ex, err := s.executor(ctx)
	if err != nil {
		return 0, err
	}
	return s.deleteBlob(ctx, ex, id)
}

func (s *SQL) deleteBlob(ctx context.Context, ex sqlexec.Executor, id int64) (int64, error) {
	d := ex.Dialect()
	q := fmt.Sprintf("DELETE FROM %s WHERE rec_id = %s AND control_id = %s",
		d.QuoteIdent(s.table), d.Placeholder(1), d.Placeholder(2))
	n, err := ex.Exec(ctx, q, id, s.batch.ID)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления payload id=%d из %s: %w", id, s.table, err)
	}
	return n, nil
}

// mirror возвращает зеркальную таблицу hash-режима.
func (s *SQL) mirror(ctx context.Context) (*table.Table, error) {
	if s.policy == nil {
		return nil, model.NewConfigurationError("батч %d: hash-режим Sql требует политику таблицы", s.batch.ID)
	}
	ex, err := s.executor(ctx)
	if err != nil {
		return nil, err
	}
	schema, err := s.loader.Load(ctx, ex, s.table, s.idColumn())
	if err != nil {
		return nil, err
	}
	return table.New(ex, schema), nil
}

func (s *SQL) idColumn() string {
	if s.policy.IDColumn == "" {
		return "id"
	}
	return s.policy.IDColumn
}

// WriteHash записывает строку в зеркальную таблицу под идентификатором id.
// Колонка-идентификатор и NULL-значения из fields пропускаются.
func (s *SQL) WriteHash(ctx context.Context, id int64, fields map[string]any) (err error) {
	start := time.Now()
	defer func() { err = observe(model.MethodSQL, "write_hash", start, err) }()

	t, err := s.mirror(ctx)
	if err != nil {
		return err
	}
	if _, err := t.Delete(ctx, id); err != nil {
		return err
	}

	schema := t.Schema()
	values := make(map[string]any, len(fields)+1)
	for k, v := range schema.Normalize(fields) {
		if schema.IsID(k) || v == nil {
			continue
		}
		if f, _ := schema.Field(k); f.ReadOnly {
			continue
		}
		values[k] = v
	}
	values[schema.IDColumn] = id

	if _, err := t.InsertWithIdentity(ctx, values); err != nil {
		return err
	}
	return nil
}

// ReadHash читает строку из зеркальной таблицы. Для батча колонок
// колонка возраста удаляется: она хранится только для поиска.
func (s *SQL) ReadHash(ctx context.Context, id int64) (fields map[string]any, err error) {
	start := time.Now()
	defer func() { err = observe(model.MethodSQL, "read_hash", start, err) }()

	t, err := s.mirror(ctx)
	if err != nil {
		return nil, err
	}
	row, err := t.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.batch.Kind == model.KindColumn && s.policy.AgeDeterminingColumn != "" {
		if f, ok := t.Schema().Field(s.policy.AgeDeterminingColumn); ok {
			delete(row, f.Name)
		}
	}
	return row, nil
}

// DeleteHash удаляет строку из зеркальной таблицы.
func (s *SQL) DeleteHash(ctx context.Context, id int64) (n int64, err error) {
	start := time.Now()
	defer func() { err = observe(model.MethodSQL, "delete_hash", start, err) }()

	t, err := s.mirror(ctx)
	if err != nil {
		return 0, err
	}
	return t.Delete(ctx, id)
}
