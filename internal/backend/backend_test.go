package backend

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
	"github.com/bigkaa/goartstore/archive-module/internal/sqlexec"
	"github.com/bigkaa/goartstore/archive-module/internal/table"
)

func TestPayloadPath(t *testing.T) {
	tests := []struct {
		id   int64
		want string
	}{
		{50, filepath.Join("/arch", "7", "000", "0000", "50")},
		{123456789, filepath.Join("/arch", "7", "001", "2345", "123456789")},
		{98765432101, filepath.Join("/arch", "7", "987", "6543", "98765432101")},
		{123456789012, filepath.Join("/arch", "7", "1234", "5678", "123456789012")},
	}
	for _, tt := range tests {
		if got := PayloadPath("/arch", 7, tt.id); got != tt.want {
			t.Errorf("PayloadPath(%d) = %s, ожидалось %s", tt.id, got, tt.want)
		}
	}
}

func TestFileSystem_RoundTrip(t *testing.T) {
	root := t.TempDir()
	fs := NewFileSystem(&model.ArchiveBatch{ID: 3, Info: root, Method: model.MethodFileSystem})
	ctx := context.Background()

	if err := fs.Write(ctx, 42, []byte("первая версия")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fs.Write(ctx, 42, []byte("вторая")); err != nil {
		t.Fatalf("повторный Write: %v", err)
	}

	data, err := fs.Read(ctx, 42)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(data, []byte("вторая")) {
		t.Errorf("Read = %q, ожидалось %q", data, "вторая")
	}

	// Временных файлов не остаётся
	entries, err := os.ReadDir(filepath.Dir(PayloadPath(root, 3, 42)))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("остался временный файл %s", e.Name())
		}
	}
}

func TestFileSystem_NotFoundAndDelete(t *testing.T) {
	fs := NewFileSystem(&model.ArchiveBatch{ID: 1, Info: t.TempDir(), Method: model.MethodFileSystem})
	ctx := context.Background()

	if _, err := fs.Read(ctx, 7); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Read отсутствующего: ожидалась ErrNotFound, получено %v", err)
	}

	for i := 0; i < 2; i++ {
		n, err := fs.Delete(ctx, 7)
		if err != nil || n != 0 {
			t.Errorf("Delete отсутствующего #%d = %d, %v; ожидалось 0, nil", i+1, n, err)
		}
	}

	if err := fs.Write(ctx, 7, []byte{1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n, err := fs.Delete(ctx, 7); err != nil || n != 1 {
		t.Errorf("Delete = %d, %v; ожидалось 1, nil", n, err)
	}
	if n, err := fs.Delete(ctx, 7); err != nil || n != 0 {
		t.Errorf("повторный Delete = %d, %v; ожидалось 0, nil", n, err)
	}
}

func TestFileSystem_HashUnsupported(t *testing.T) {
	fs := NewFileSystem(&model.ArchiveBatch{ID: 1, Info: t.TempDir()})
	if _, err := fs.ReadHash(context.Background(), 1); !model.IsConfigurationError(err) {
		t.Errorf("ожидалась ошибка конфигурации, получено %v", err)
	}
}

func TestFileSystem_IOError(t *testing.T) {
	// Корень — файл, а не каталог: запись невозможна
	root := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(root, []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	fs := NewFileSystem(&model.ArchiveBatch{ID: 1, Info: root})

	err := fs.Write(context.Background(), 1, []byte("data"))
	var ioErr *model.BackendIOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("ожидалась BackendIOError, получено %v", err)
	}
	if ioErr.Op != "write" {
		t.Errorf("Op = %q, ожидалось write", ioErr.Op)
	}
	if ioErr.Method != model.MethodFileSystem {
		t.Errorf("Method = %q, ожидался %q", ioErr.Method, model.MethodFileSystem)
	}
}

// setupSQL создаёт базу "arch;store" с blob-таблицей и зеркальной таблицей.
func setupSQL(t *testing.T) *sqlexec.Registry {
	t.Helper()
	ex, db, err := sqlexec.OpenSQLite(":memory:", "arch;store")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for _, stmt := range []string{
		`create table payload (rec_id integer not null, control_id integer not null, data blob not null, primary key (rec_id, control_id))`,
		`create table orders_mirror (id integer primary key, customer text, note text, created_at datetime)`,
	} {
		if _, err := ex.Exec(ctx, stmt); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	reg := sqlexec.NewRegistry(nil)
	reg.Register("arch", "store", ex)
	return reg
}

func TestSQL_Blob(t *testing.T) {
	reg := setupSQL(t)
	f := NewFactory(reg, table.NewLoader(16, time.Minute))
	ctx := context.Background()

	b1, err := f.Open(&model.ArchiveBatch{ID: 1, Method: model.MethodSQL, Info: "arch;store;payload"}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b2, err := f.Open(&model.ArchiveBatch{ID: 2, Method: model.MethodSQL, Info: "arch;store;payload"}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := b1.Write(ctx, 10, []byte("one")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := b1.Write(ctx, 10, []byte("one-v2")); err != nil {
		t.Fatalf("повторный Write: %v", err)
	}
	if err := b2.Write(ctx, 10, []byte("two")); err != nil {
		t.Fatalf("Write b2: %v", err)
	}

	data, err := b1.Read(ctx, 10)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "one-v2" {
		t.Errorf("b1.Read = %q", data)
	}
	data, err = b2.Read(ctx, 10)
	if err != nil {
		t.Fatalf("Read b2: %v", err)
	}
	if string(data) != "two" {
		t.Errorf("b2.Read = %q", data)
	}

	if n, err := b1.Delete(ctx, 10); err != nil || n != 1 {
		t.Errorf("Delete = %d, %v", n, err)
	}
	if n, err := b1.Delete(ctx, 10); err != nil || n != 0 {
		t.Errorf("повторный Delete = %d, %v", n, err)
	}
	if _, err := b1.Read(ctx, 10); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Read после Delete: %v", err)
	}
	if _, err := b2.Read(ctx, 10); err != nil {
		t.Errorf("payload другого батча не должен удаляться: %v", err)
	}
}

func TestSQL_Hash(t *testing.T) {
	reg := setupSQL(t)
	f := NewFactory(reg, table.NewLoader(16, time.Minute))
	ctx := context.Background()

	policy := &model.ArchivePolicy{IDColumn: "id", AgeDeterminingColumn: "created_at"}
	created := time.Date(2020, 3, 15, 0, 0, 0, 0, time.UTC)

	colBatch, err := f.Open(&model.ArchiveBatch{ID: 5, Kind: model.KindColumn, Method: model.MethodSQL, Info: "arch;store;orders_mirror"}, policy)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	fields := map[string]any{"ID": int64(999), "customer": "ООО Ромашка", "note": nil, "created_at": created}
	if err := colBatch.WriteHash(ctx, 77, fields); err != nil {
		t.Fatalf("WriteHash: %v", err)
	}
	// Перезапись не нарушает первичный ключ
	if err := colBatch.WriteHash(ctx, 77, fields); err != nil {
		t.Fatalf("повторный WriteHash: %v", err)
	}

	got, err := colBatch.ReadHash(ctx, 77)
	if err != nil {
		t.Fatalf("ReadHash: %v", err)
	}
	if got["customer"] != "ООО Ромашка" {
		t.Errorf("customer = %v", got["customer"])
	}
	if id, _ := model.AsInt64(got["id"]); id != 77 {
		t.Errorf("id = %v, ожидалось 77", got["id"])
	}
	if _, ok := got["created_at"]; ok {
		t.Error("колонка возраста должна удаляться для батча колонок")
	}

	recBatch, err := f.Open(&model.ArchiveBatch{ID: 6, Kind: model.KindRecord, Method: model.MethodSQL, Info: "arch;store;orders_mirror"}, policy)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err = recBatch.ReadHash(ctx, 77)
	if err != nil {
		t.Fatalf("ReadHash: %v", err)
	}
	if _, ok := got["created_at"]; !ok {
		t.Error("для батча записей колонка возраста сохраняется")
	}

	if n, err := colBatch.DeleteHash(ctx, 77); err != nil || n != 1 {
		t.Errorf("DeleteHash = %d, %v", n, err)
	}
	if n, err := colBatch.DeleteHash(ctx, 77); err != nil || n != 0 {
		t.Errorf("повторный DeleteHash = %d, %v", n, err)
	}
	if _, err := colBatch.ReadHash(ctx, 77); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("ReadHash после удаления: %v", err)
	}
}

func TestFactory_Errors(t *testing.T) {
	f := NewFactory(sqlexec.NewRegistry(nil), table.NewLoader(4, time.Minute))

	if _, err := f.Open(&model.ArchiveBatch{ID: 1, Method: "Tape"}, nil); !model.IsConfigurationError(err) {
		t.Errorf("неизвестный метод: %v", err)
	}
	if _, err := f.Open(&model.ArchiveBatch{ID: 1, Method: model.MethodSQL, Info: "srv;db"}, nil); !model.IsConfigurationError(err) {
		t.Errorf("некорректный archive_info: %v", err)
	}

	m, err := f.Open(&model.ArchiveBatch{ID: 1, Method: model.MethodSQL, Info: "nowhere;db;t"}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := m.Read(context.Background(), 1); !model.IsConfigurationError(err) {
		t.Errorf("неизвестная база данных: %v", err)
	}
	if _, err := m.ReadHash(context.Background(), 1); !model.IsConfigurationError(err) {
		t.Errorf("hash-режим без политики: %v", err)
	}
}
