// dephealth_test.go — unit-тесты нормализации имён зависимостей.
package service

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNormalizeDepName проверяет нормализацию имён баз для dephealth.
func TestNormalizeDepName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"простое имя", "control-db", "control-db"},
		{"верхний регистр", "Control-DB", "control-db"},
		{"разделитель реестра", "srv;orders", "srv-orders"},
		{"спецсимволы коллапсируются", "srv@@prod..1", "srv-prod-1"},
		{"trim дефисов по краям", "--srv--", "srv"},
		{"начинается с цифры", "1c-base", "db-1c-base"},
		{"unicode заменяется", "база-1", "db-1"},
		{"пустая строка", "", "unknown-db"},
		{"только спецсимволы", "!!!", "unknown-db"},
		{
			"длинное имя обрезается без крайнего дефиса",
			"a-bcdefghijklmnopqrstuvwxyz-abcdefghijklmnopqrstuvwxyz-123456789",
			"a-bcdefghijklmnopqrstuvwxyz-abcdefghijklmnopqrstuvwxyz-12345678",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeDepName(tt.input); got != tt.expected {
				t.Errorf("NormalizeDepName(%q) = %q, ожидалось %q", tt.input, got, tt.expected)
			}
		})
	}
}

// TestNewDephealthService_NoDependencies — без зависимостей сервис не создаётся.
func TestNewDephealthService_NoDependencies(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	_, err := NewDephealthServiceWithRegisterer("archive-inspector", "artstore", nil, "",
		15*time.Second, logger, prometheus.NewRegistry())
	if err == nil {
		t.Fatal("ожидалась ошибка при пустом списке зависимостей")
	}
}

// TestNewDephealthService_JWKS — мониторинг одного JWKS endpoint.
func TestNewDephealthService_JWKS(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ds, err := NewDephealthServiceWithRegisterer("archive-inspector", "artstore", nil,
		"http://keycloak.test:8080/realms/artstore/protocol/openid-connect/certs",
		15*time.Second, logger, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewDephealthServiceWithRegisterer: %v", err)
	}
	if len(ds.names) != 1 || ds.names[0] != "jwks" {
		t.Errorf("зависимости: %v", ds.names)
	}
}
