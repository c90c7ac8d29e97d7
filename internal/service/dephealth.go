// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Инспектор архива мониторит:
//   - управляющую БД PostgreSQL — SQL checker через pgxpool (critical)
//   - логические базы PostgreSQL из AR_TARGETS (не critical)
//   - JWKS endpoint — HTTP checker, если включена JWT-аутентификация (critical)
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками.
package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для JWKS
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// maxDepNameLen — ограничение длины имени зависимости в метриках.
const maxDepNameLen = 63

// PostgresDependency — база PostgreSQL под мониторингом.
type PostgresDependency struct {
	// Name — имя зависимости в метриках (нормализуется).
	Name string
	// DB — *sql.DB, полученный из pgxpool через stdlib.OpenDBFromPool().
	DB *sql.DB
	// URL — адрес для лейблов метрик, не для подключения.
	URL string
	// Critical — отказ зависимости делает сервис неработоспособным.
	Critical bool
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	names  []string
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
// jwksURL пустой, если JWT-аутентификация выключена.
func NewDephealthService(
	serviceID string,
	group string,
	databases []PostgresDependency,
	jwksURL string,
	checkInterval time.Duration,
	logger *slog.Logger,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, databases, jwksURL, checkInterval, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	serviceID string,
	group string,
	databases []PostgresDependency,
	jwksURL string,
	checkInterval time.Duration,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, databases, jwksURL, checkInterval, logger,
		dephealth.WithRegisterer(registerer))
}

// newDephealthService — внутренний конструктор.
func newDephealthService(
	serviceID string,
	group string,
	databases []PostgresDependency,
	jwksURL string,
	checkInterval time.Duration,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	if len(databases) == 0 && jwksURL == "" {
		return nil, fmt.Errorf("нет зависимостей для мониторинга")
	}

	opts := make([]dephealth.Option, 0, 2+len(databases)+len(extraOpts))
	opts = append(opts, dephealth.WithLogger(logger))

	names := make([]string, 0, len(databases)+1)
	seen := make(map[string]bool)
	for _, d := range databases {
		name := NormalizeDepName(d.Name)
		if seen[name] {
			return nil, fmt.Errorf("повторное имя зависимости %q", name)
		}
		seen[name] = true
		names = append(names, name)

		// Connection pool mode: проверка через *sql.DB поверх pgxpool
		// обнаруживает и исчерпание пула.
		opts = append(opts, dephealth.AddDependency(name, dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(d.DB)),
			dephealth.FromURL(d.URL),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(d.Critical),
		))
	}

	if jwksURL != "" {
		// Путь самого JWKS URL подтверждает доступность realm.
		healthPath := "/health"
		if parsed, err := url.Parse(jwksURL); err == nil && parsed.Path != "" {
			healthPath = parsed.Path
		}
		names = append(names, "jwks")
		opts = append(opts, dephealth.HTTP("jwks",
			dephealth.FromURL(jwksURL),
			dephealth.WithHTTPHealthPath(healthPath),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(true),
		))
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		names:  names,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен",
		slog.String("dependencies", strings.Join(ds.names, ",")),
	)
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}

// NormalizeDepName приводит имя базы к виду, допустимому в метриках:
// нижний регистр, [a-z0-9-], без повторных и крайних дефисов,
// не длиннее 63 символов, начинается с буквы.
func NormalizeDepName(name string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}

	s := strings.Trim(b.String(), "-")
	if s == "" {
		return "unknown-db"
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "db-" + s
	}
	if len(s) > maxDepNameLen {
		s = strings.TrimRight(s[:maxDepNameLen], "-")
	}
	return s
}
