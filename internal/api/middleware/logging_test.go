package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

// TestRequestLogger_ArchiveAttrs проверяет, что в журнал попадают
// таблица и запись из маршрута, а уровень зависит от статуса.
func TestRequestLogger_ArchiveAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := chi.NewRouter()
	r.Use(RequestLogger(logger))
	r.Get("/api/v1/archive/{table}/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		path      string
		wantLevel string
		wantRoute string
		wantTable string
		wantID    float64
	}{
		{"/api/v1/archive/srv.db.orders/42", "WARN", "/api/v1/archive/{table}/{id}", "srv.db.orders", 42},
		{"/health/live", "INFO", "/health/live", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			buf.Reset()
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("запись журнала не JSON: %v (%s)", err, buf.String())
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("level = %v, ожидался %s", entry["level"], tt.wantLevel)
			}
			if entry["route"] != tt.wantRoute {
				t.Errorf("route = %v, ожидался %s", entry["route"], tt.wantRoute)
			}
			if tt.wantTable == "" {
				if _, ok := entry["table"]; ok {
					t.Errorf("лишнее поле table: %v", entry["table"])
				}
				return
			}
			if entry["table"] != tt.wantTable {
				t.Errorf("table = %v, ожидалась %s", entry["table"], tt.wantTable)
			}
			if entry["record_id"] != tt.wantID {
				t.Errorf("record_id = %v, ожидался %v", entry["record_id"], tt.wantID)
			}
		})
	}
}
