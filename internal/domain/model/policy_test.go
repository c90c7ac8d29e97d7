package model

import (
	"testing"
	"time"
)

func policyRow() map[string]any {
	return map[string]any{
		"id":                     int64(1),
		"server_name":            "Srv",
		"database_name":          "Db",
		"table_name":             "Orders",
		"id_column":              "id",
		"age_determining_column": "created_at",
		"record_archive_method":  "FileSystem",
		"column_archive_method":  "Sql",
		"record_archive_info":    "/arch",
		"column_archive_info":    "srv;db;orders_cols",
		"record_age":             int64(30),
		"column_age":             int64(0),
		"record_disabled":        nil,
		"column_disabled":        "2024-01-01",
		"column_list":            "note, body  payload",
		"is_compressed":          "R",
		"is_squeezed":            "RC",
		"archive_count":          int64(3),
	}
}

// TestPolicyFromRow проверяет разбор строки archive_config.
func TestPolicyFromRow(t *testing.T) {
	p, err := PolicyFromRow(policyRow())
	if err != nil {
		t.Fatalf("PolicyFromRow: %v", err)
	}
	if p.TablePath() != "Srv.Db.Orders" {
		t.Errorf("TablePath = %q", p.TablePath())
	}
	if p.Key() != "srv.db.orders" {
		t.Errorf("Key = %q", p.Key())
	}
	want := []string{"note", "body", "payload"}
	if len(p.ColumnList) != len(want) {
		t.Fatalf("ColumnList = %v, ожидался %v", p.ColumnList, want)
	}
	for i := range want {
		if p.ColumnList[i] != want[i] {
			t.Errorf("ColumnList[%d] = %q, ожидался %q", i, p.ColumnList[i], want[i])
		}
	}
	if !p.Compressed(KindRecord) || p.Compressed(KindColumn) {
		t.Error("ожидалось сжатие только для записей")
	}
	if !p.Squeezed(KindRecord) || !p.Squeezed(KindColumn) {
		t.Error("ожидалась упаковка для обоих видов")
	}
	if p.IsRecordDisabled() || !p.IsColumnDisabled() {
		t.Error("ожидалось отключение только колоночного архива")
	}
	if p.Method(KindColumn) != MethodSQL || p.Info(KindColumn) != "srv;db;orders_cols" {
		t.Errorf("колоночный метод: %s %s", p.Method(KindColumn), p.Info(KindColumn))
	}
	if !p.HasColumn("BODY") {
		t.Error("HasColumn должен игнорировать регистр")
	}
}

// TestPolicyCutoff проверяет вычисление границ архивирования.
func TestPolicyCutoff(t *testing.T) {
	p, err := PolicyFromRow(policyRow())
	if err != nil {
		t.Fatalf("PolicyFromRow: %v", err)
	}
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	if got := p.RecordCutoff(now); !got.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("RecordCutoff = %v", got)
	}
	if got := p.ColumnCutoff(now); !got.IsZero() {
		t.Errorf("ColumnCutoff при пороге 0 должен быть нулевым, получен %v", got)
	}
}

// TestNewBatchFromPolicy проверяет копирование параметров политики в батч.
func TestNewBatchFromPolicy(t *testing.T) {
	p, _ := PolicyFromRow(policyRow())
	b := NewBatchFromPolicy(p, KindColumn, ColumnRange{})
	if b.Method != MethodSQL || b.Info != p.ColumnInfo || b.Compressed || !b.Squeezed {
		t.Errorf("неожиданный батч: %+v", b)
	}
	if b.TablePath != p.TablePath() {
		t.Errorf("TablePath = %q", b.TablePath)
	}
}

// TestConvertTablePathToFileName проверяет замену небезопасных символов.
func TestConvertTablePathToFileName(t *testing.T) {
	got := ConvertTablePathToFileName(`srv:db\dbo/"t'`)
	if got != "srv_db_dbo__t_" {
		t.Errorf("получено %q", got)
	}
}

func TestSplitTablePath(t *testing.T) {
	s, d, tbl, err := SplitTablePath("srv.db.public.orders")
	if err != nil {
		t.Fatalf("SplitTablePath: %v", err)
	}
	if s != "srv" || d != "db" || tbl != "public.orders" {
		t.Errorf("получено %q %q %q", s, d, tbl)
	}
	for _, bad := range []string{"", "srv.db", "srv..t", ".db.t"} {
		if _, _, _, err := SplitTablePath(bad); !IsConfigurationError(err) {
			t.Errorf("SplitTablePath(%q): ожидалась ошибка конфигурации, получено %v", bad, err)
		}
	}
}
