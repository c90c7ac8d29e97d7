package sqlexec

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
)

func openTestDB(t *testing.T, target string) *SQLExecutor {
	t.Helper()
	ex, db, err := OpenSQLite(":memory:", target)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return ex
}

// TestSQLExecutor_QueryExec проверяет выполнение запросов через database/sql.
func TestSQLExecutor_QueryExec(t *testing.T) {
	ctx := context.Background()
	ex := openTestDB(t, "local;test")

	if _, err := ex.Exec(ctx, `create table t (id integer primary key, name text)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	n, err := ex.Exec(ctx, `insert into t (id, name) values (?1, ?2), (?3, ?4)`, 1, "a", 2, "b")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if n != 2 {
		t.Errorf("затронуто строк: %d, ожидалось 2", n)
	}

	res, err := ex.Query(ctx, `select id, name from t order by id`)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(res.Columns) != 2 || res.Columns[0] != "id" || res.Columns[1] != "name" {
		t.Errorf("колонки: %v", res.Columns)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("строк: %d, ожидалось 2", len(res.Rows))
	}
	if res.Rows[1]["name"] != "b" {
		t.Errorf("name = %v, ожидалось b", res.Rows[1]["name"])
	}

	v, err := Scalar(ctx, ex, `select count(*) from t`)
	if err != nil {
		t.Fatalf("Scalar: %v", err)
	}
	if v != int64(2) {
		t.Errorf("count = %v (%T)", v, v)
	}

	if _, err := Scalar(ctx, ex, `select id from t where id = ?1`, 99); !errors.Is(err, ErrNoRows) {
		t.Errorf("ожидалась ErrNoRows, получено %v", err)
	}
}

// TestRegistry проверяет регистрацию и ленивое открытие баз данных.
func TestRegistry(t *testing.T) {
	ctx := context.Background()

	r := NewRegistry(nil)
	ex := openTestDB(t, "srv;db")
	r.Register("SRV", "Db", ex)

	got, err := r.Locate(ctx, "srv", "DB")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if got != Executor(ex) {
		t.Error("ожидался зарегистрированный исполнитель")
	}

	if _, err := r.Locate(ctx, "other", "db"); !model.IsConfigurationError(err) {
		t.Errorf("ожидалась ConfigurationError, получено %v", err)
	}

	opened := 0
	lazy := NewRegistry(func(_ context.Context, server, database string) (Executor, error) {
		opened++
		return openTestDB(t, TargetKey(server, database)), nil
	})
	for i := 0; i < 3; i++ {
		if _, err := lazy.Locate(ctx, "x", "y"); err != nil {
			t.Fatalf("Locate: %v", err)
		}
	}
	if opened != 1 {
		t.Errorf("открытий: %d, ожидалось 1", opened)
	}
}

// TestRegistry_OpenWithoutLock проверяет, что медленное открытие одной
// базы не блокирует поиск других и выполняется один раз.
func TestRegistry_OpenWithoutLock(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	var opened atomic.Int64

	r := NewRegistry(func(_ context.Context, server, database string) (Executor, error) {
		opened.Add(1)
		started <- struct{}{}
		<-release
		return openTestDB(t, TargetKey(server, database)), nil
	})
	r.Register("srv", "db", openTestDB(t, "srv;db"))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Locate(ctx, "slow", "db"); err != nil {
				t.Errorf("Locate(slow): %v", err)
			}
		}()
	}
	<-started

	done := make(chan error, 1)
	go func() {
		_, err := r.Locate(ctx, "srv", "db")
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Locate(srv): %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("поиск зарегистрированной базы ждёт открытия другой")
	}

	close(release)
	wg.Wait()
	if n := opened.Load(); n != 1 {
		t.Errorf("открытий: %d, ожидалось 1", n)
	}
}

// TestDialect проверяет плейсхолдеры и экранирование.
func TestDialect(t *testing.T) {
	if (Postgres{}).Placeholder(3) != "$3" {
		t.Error("Postgres placeholder")
	}
	if (SQLite{}).Placeholder(2) != "?2" {
		t.Error("SQLite placeholder")
	}
	if got := (Postgres{}).QuoteIdent(`public.my"t`); got != `"public"."my""t"` {
		t.Errorf("QuoteIdent = %s", got)
	}
	if _, err := DialectByName("oracle"); err == nil {
		t.Error("ожидалась ошибка для неизвестного диалекта")
	}
}
