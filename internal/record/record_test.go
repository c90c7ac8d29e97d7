package record

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/archive-module/internal/accessor"
	"github.com/bigkaa/goartstore/archive-module/internal/backend"
	"github.com/bigkaa/goartstore/archive-module/internal/catalog"
	"github.com/bigkaa/goartstore/archive-module/internal/database"
	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
	"github.com/bigkaa/goartstore/archive-module/internal/sqlexec"
	"github.com/bigkaa/goartstore/archive-module/internal/table"
)

const tablePath = "srv.db.T"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// countingExecutor считает UPDATE-операторы живой таблицы.
type countingExecutor struct {
	sqlexec.Executor
	updates atomic.Int64
}

func (c *countingExecutor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "UPDATE") {
		c.updates.Add(1)
	}
	return c.Executor.Exec(ctx, query, args...)
}

type fixture struct {
	live *countingExecutor
	acc  *accessor.Accessor
	repo *Repository
	ctl  *sqlexec.SQLExecutor
	root string
}

var (
	ageLo   = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	ageHi   = time.Date(2020, 6, 30, 0, 0, 0, 0, time.UTC)
	created = time.Date(2020, 3, 15, 0, 0, 0, 0, time.UTC)
)

// newFixture создаёт живую таблицу T в базе "srv;db" и управляющую базу
// с политикой T, батчем записей [1, 100] и батчем колонок за первое
// полугодие 2020 года. Оба батча — в файловом хранилище. extra —
// дополнительные батчи управляющей таблицы.
func newFixture(t *testing.T, extra ...*model.ArchiveBatch) *fixture {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()

	liveEx, liveDB, err := sqlexec.OpenSQLite(":memory:", "srv;db")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { liveDB.Close() })
	if _, err := liveEx.Exec(ctx, `create table T (
		id integer primary key,
		customer text,
		note text,
		created_at datetime
	)`); err != nil {
		t.Fatalf("create T: %v", err)
	}

	ctl, ctlDB, err := sqlexec.OpenSQLite(":memory:", "local;control")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { ctlDB.Close() })
	if err := database.ApplySQLiteSchema(ctx, ctl); err != nil {
		t.Fatalf("ApplySQLiteSchema: %v", err)
	}
	if _, err := ctl.Exec(ctx, `INSERT INTO archive_config
		(server_name, database_name, table_name, id_column, age_determining_column,
		 record_archive_method, record_archive_info, record_age,
		 column_archive_method, column_archive_info, column_age, column_list, is_compressed, is_squeezed)
		VALUES ('srv', 'db', 'T', 'id', 'created_at', 'FileSystem', ?1, 30, 'FileSystem', ?1, 90, 'note', 'R', 'RC')`,
		root); err != nil {
		t.Fatalf("insert archive_config: %v", err)
	}
	for _, b := range append([]*model.ArchiveBatch{recordBatch(root), columnBatch(root)}, extra...) {
		if _, err := ctl.Exec(ctx,
			`INSERT INTO archive_control (id, table_path, archive_type, "range", archive_method, archive_info, is_compressed, is_squeezed)
			 VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8)`,
			b.ID, b.TablePath, b.Kind.String(), b.Range.Format(), string(b.Method), b.Info, b.Compressed, b.Squeezed); err != nil {
			t.Fatalf("insert archive_control: %v", err)
		}
	}

	live := &countingExecutor{Executor: liveEx}
	reg := sqlexec.NewRegistry(nil)
	reg.Register("srv", "db", live)
	reg.Register("local", "control", ctl)

	loader := table.NewLoader(16, time.Minute)
	acc := accessor.New(
		catalog.NewPolicyCatalog(ctl, time.Hour, testLogger()),
		catalog.NewArchiveCatalog(ctl, time.Hour, 2, testLogger()),
		backend.NewFactory(reg, loader),
		testLogger(),
	)
	repo, err := Open(ctx, tablePath, reg, loader, acc, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return &fixture{live: live, acc: acc, repo: repo, ctl: ctl, root: root}
}

func recordBatch(root string) *model.ArchiveBatch {
	return &model.ArchiveBatch{
		ID: 1, TablePath: tablePath, Kind: model.KindRecord, Range: model.RecordRange{Lo: 1, Hi: 100},
		Method: model.MethodFileSystem, Info: root, Compressed: true, Squeezed: true,
	}
}

func columnBatch(root string) *model.ArchiveBatch {
	return &model.ArchiveBatch{
		ID: 2, TablePath: tablePath, Kind: model.KindColumn, Range: model.ColumnRange{Lo: ageLo, Hi: ageHi},
		Method: model.MethodFileSystem, Info: root, Squeezed: true,
	}
}

// addLiveWithColumnArchive вставляет живую запись id с пустой колонкой note
// и кладёт значение note в колоночный архив.
func (f *fixture) addLiveWithColumnArchive(t *testing.T, id int64, note string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.live.Exec(ctx, `INSERT INTO T (id, customer, note, created_at) VALUES (?1, 'A', NULL, ?2)`, id, created); err != nil {
		t.Fatalf("insert T: %v", err)
	}
	if err := f.acc.Write(ctx, columnBatch(f.root), nil, id, map[string]any{"note": note, "created_at": created}); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestLoad_MergesColumnArchive(t *testing.T) {
	f := newFixture(t)
	f.addLiveWithColumnArchive(t, 7, "архивная заметка")

	e, err := f.repo.Load(context.Background(), 7)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v, _ := e.Get("note"); v != "архивная заметка" {
		t.Errorf("note = %v", v)
	}
	if v, _ := e.Get("customer"); v != "A" {
		t.Errorf("customer = %v (живое значение должно сохраниться)", v)
	}
	if e.ArchivedColumn() == nil || e.ArchivedRecord() != nil {
		t.Error("ожидалась только ссылка на колоночный архив")
	}
}

// TestUpdate_ScenarioC — обновление записи с колоночным архивом:
// два UPDATE, затем payload удаляется.
func TestUpdate_ScenarioC(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLiveWithColumnArchive(t, 7, "старая")

	e, err := f.repo.Load(ctx, 7)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := e.Set("customer", "B"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := e.Set("note", "новая"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	before := f.live.updates.Load()
	if err := e.Update(ctx); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := f.live.updates.Load() - before; got != 2 {
		t.Errorf("UPDATE: %d, ожидалось 2", got)
	}
	if e.ArchivedColumn() != nil {
		t.Error("ссылка на колоночный архив должна быть сброшена")
	}

	live := map[string]any{"created_at": created}
	if _, err := f.acc.ReadColumns(ctx, tablePath, 7, live); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("ReadColumns после обновления: ожидалась ErrNotFound, получено %v", err)
	}

	e2, err := f.repo.Load(ctx, 7)
	if err != nil {
		t.Fatalf("повторный Load: %v", err)
	}
	if v, _ := e2.Get("note"); v != "новая" {
		t.Errorf("note = %v", v)
	}
	if v, _ := e2.Get("customer"); v != "B" {
		t.Errorf("customer = %v", v)
	}
	if e2.ArchivedColumn() != nil {
		t.Error("архива больше нет")
	}
}

// hashColumnBatch — колоночный батч без сжатия и упаковки: payload
// хранится строкой таблицы T_arch той же схемы, что и T.
func hashColumnBatch() *model.ArchiveBatch {
	return &model.ArchiveBatch{
		ID: 3, TablePath: tablePath, Kind: model.KindColumn,
		Range:  model.ColumnRange{Lo: time.Date(2019, 7, 1, 0, 0, 0, 0, time.UTC), Hi: time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC)},
		Method: model.MethodSQL, Info: "srv;db;T_arch",
	}
}

// TestHashColumnArchive_KeepsLiveColumns проверяет, что колонки вне
// column_list из строки hash-архива (в ней они NULL) не затирают живые
// значения ни при Load, ни при Update.
func TestHashColumnArchive_KeepsLiveColumns(t *testing.T) {
	f := newFixture(t, hashColumnBatch())
	ctx := context.Background()
	createdAt := time.Date(2019, 9, 1, 0, 0, 0, 0, time.UTC)

	if _, err := f.live.Exec(ctx, `create table T_arch (
		id integer primary key,
		customer text,
		note text,
		created_at datetime
	)`); err != nil {
		t.Fatalf("create T_arch: %v", err)
	}
	if _, err := f.live.Exec(ctx, `INSERT INTO T (id, customer, note, created_at) VALUES (9, 'LIVE', NULL, ?1)`, createdAt); err != nil {
		t.Fatalf("insert T: %v", err)
	}
	policy, err := f.acc.Policies().Get(ctx, tablePath)
	if err != nil {
		t.Fatalf("Get policy: %v", err)
	}
	row := map[string]any{"id": int64(9), "customer": nil, "note": "архив", "created_at": createdAt}
	if err := f.acc.Write(ctx, hashColumnBatch(), policy, 9, row); err != nil {
		t.Fatalf("Write: %v", err)
	}

	e, err := f.repo.Load(ctx, 9)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if e.ArchivedColumn() == nil {
		t.Fatal("ожидалась ссылка на колоночный архив")
	}
	if _, ok := e.ArchivedColumn().Fields["customer"]; ok {
		t.Error("payload колоночного архива содержит колонку вне column_list")
	}
	if v, _ := e.Get("customer"); v != "LIVE" {
		t.Errorf("customer после Load = %v, ожидалось LIVE", v)
	}
	if v, _ := e.Get("note"); v != "архив" {
		t.Errorf("note после Load = %v", v)
	}

	if err := e.Set("note", "новая"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := e.Update(ctx); err != nil {
		t.Fatalf("Update: %v", err)
	}

	res, err := f.live.Query(ctx, `SELECT customer, note FROM T WHERE id = 9`)
	if err != nil {
		t.Fatalf("select T: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("строк: %d", len(res.Rows))
	}
	if v := model.AsString(res.Rows[0]["customer"]); v != "LIVE" {
		t.Errorf("customer в живой таблице = %q, ожидалось LIVE", v)
	}
	if v := model.AsString(res.Rows[0]["note"]); v != "новая" {
		t.Errorf("note в живой таблице = %q", v)
	}

	n, err := sqlexec.Scalar(ctx, f.live, `SELECT count(*) FROM T_arch WHERE id = 9`)
	if err != nil {
		t.Fatalf("count T_arch: %v", err)
	}
	if c, _ := model.AsInt64(n); c != 0 {
		t.Errorf("строка hash-архива должна быть удалена, осталось %d", c)
	}
}

func TestUpdate_NoChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLiveWithColumnArchive(t, 7, "x")

	e, err := f.repo.Load(ctx, 7)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// Значение присвоено, но не изменилось
	if err := e.Set("customer", "A"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	before := f.live.updates.Load()
	if err := e.Update(ctx); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := f.live.updates.Load() - before; got != 0 {
		t.Errorf("UPDATE без изменений: %d", got)
	}
	if e.ArchivedColumn() == nil {
		t.Error("без изменений архив не удаляется")
	}
}

func TestLoad_FromRecordArchive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fields := map[string]any{"id": int64(50), "customer": "Архивный", "note": "из архива", "legacy": "нет в таблице"}
	if err := f.acc.Write(ctx, recordBatch(f.root), nil, 50, fields); err != nil {
		t.Fatalf("Write: %v", err)
	}

	e, err := f.repo.Load(ctx, 50)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if e.ArchivedRecord() == nil {
		t.Fatal("ожидалась ссылка на архив записи")
	}
	if v, _ := e.Get("customer"); v != "Архивный" {
		t.Errorf("customer = %v", v)
	}
	if v, ok := e.Get("created_at"); !ok || v != nil {
		t.Errorf("created_at = %v, %v; ожидался NULL", v, ok)
	}
	if _, ok := e.Get("legacy"); ok {
		t.Error("колонки, которой нет в таблице, быть не должно")
	}

	// Запись из архива нельзя изменить до разархивирования
	if err := e.Set("customer", "X"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := e.Update(ctx); !errors.Is(err, model.ErrArchivedRecordWrite) {
		t.Errorf("ожидалась ErrArchivedRecordWrite, получено %v", err)
	}

	if _, err := f.repo.Load(ctx, 60); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Load(60): ожидалась ErrNotFound, получено %v", err)
	}
	if _, err := f.repo.Load(ctx, 500); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Load(500): ожидалась ErrNotFound, получено %v", err)
	}
}

func TestRemoveArchive_Record(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.acc.Write(ctx, recordBatch(f.root), nil, 50, map[string]any{"id": int64(50), "customer": "Архивный"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	e, err := f.repo.Load(ctx, 50)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	n, err := e.RemoveArchive(ctx)
	if err != nil {
		t.Fatalf("RemoveArchive: %v", err)
	}
	if n != 1 {
		t.Errorf("RemoveArchive = %d, ожидалось 1", n)
	}

	if _, err := f.acc.ReadRecord(ctx, tablePath, 50); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("payload должен быть удалён: %v", err)
	}
	e2, err := f.repo.Load(ctx, 50)
	if err != nil {
		t.Fatalf("Load после разархивирования: %v", err)
	}
	if e2.ArchivedRecord() != nil {
		t.Error("запись должна читаться из живой таблицы")
	}
	if e2.ID() != 50 {
		t.Errorf("ID = %d, ожидалось 50", e2.ID())
	}
	if v, _ := e2.Get("customer"); v != "Архивный" {
		t.Errorf("customer = %v", v)
	}
}

func TestRemoveArchive_Column(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLiveWithColumnArchive(t, 8, "вернуть")

	e, err := f.repo.Load(ctx, 8)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	before := f.live.updates.Load()
	n, err := e.RemoveArchive(ctx)
	if err != nil {
		t.Fatalf("RemoveArchive: %v", err)
	}
	if n != 1 {
		t.Errorf("RemoveArchive = %d, ожидалось 1", n)
	}
	if got := f.live.updates.Load() - before; got != 1 {
		t.Errorf("UPDATE: %d, ожидалось 1", got)
	}

	v, err := sqlexec.Scalar(ctx, f.live, "SELECT note FROM T WHERE id = ?1", int64(8))
	if err != nil {
		t.Fatalf("Scalar: %v", err)
	}
	if model.AsString(v) != "вернуть" {
		t.Errorf("note в таблице = %v", v)
	}
	if _, err := f.acc.ScanAllColumnArchives(ctx, tablePath, 8); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("колоночный архив должен быть удалён: %v", err)
	}
}

func TestDelete_PurgesArchives(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLiveWithColumnArchive(t, 9, "удалить")

	e, err := f.repo.Load(ctx, 9)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := e.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.repo.Load(ctx, 9); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Load после Delete: %v", err)
	}
	if _, err := f.acc.ScanAllColumnArchives(ctx, tablePath, 9); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("payload должен быть удалён: %v", err)
	}
}

func TestCreateAndClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.repo.New()
	if err := e.Set("customer", "Новый"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := e.Set("unknown", 1); err == nil {
		t.Error("ожидалась ошибка для неизвестной колонки")
	}
	if err := e.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if e.ID() <= 0 {
		t.Fatalf("ID = %d", e.ID())
	}

	got, err := f.repo.Load(ctx, e.ID())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v, _ := got.Get("customer"); v != "Новый" {
		t.Errorf("customer = %v", v)
	}

	got.Clear()
	if got.Exists() || got.ID() != 0 || got.ArchivedColumn() != nil || got.ArchivedRecord() != nil {
		t.Error("Clear должен сбросить запись и ссылки на архивы")
	}
}
