// Пакет database — подключение к PostgreSQL через pgxpool,
// применение миграций управляющих таблиц (golang-migrate),
// проверка готовности и открытие дополнительных баз данных.
package database

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/goartstore/archive-module/internal/config"
	"github.com/bigkaa/goartstore/archive-module/internal/sqlexec"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Connect создаёт пул подключений к PostgreSQL.
// Выполняет ping для проверки доступности.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	pool, err := connectDSN(ctx, cfg.DatabaseDSN())
	if err != nil {
		return nil, err
	}

	logger.Info("Подключение к PostgreSQL установлено",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
	)

	return pool, nil
}

func connectDSN(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула подключений: %w", err)
	}

	// Проверяем подключение
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка подключения к PostgreSQL: %w", err)
	}
	return pool, nil
}

// Migrate применяет SQL-миграции из embedded FS к базе данных.
// Использует golang-migrate с драйвером pgx5.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	// Создаём источник миграций из embedded FS
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка создания источника миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, cfg.DatabaseURL("pgx5"))
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()

	// Применяем все миграции
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Миграции применены",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)

	return nil
}

// Target — открытая дополнительная логическая база данных.
type Target struct {
	Executor sqlexec.Executor
	// Pool — пул PostgreSQL; nil для SQLite.
	Pool  *pgxpool.Pool
	close func()
}

// Close закрывает подключения базы.
func (t *Target) Close() { t.close() }

// OpenTarget открывает дополнительную логическую базу данных.
// DSN вида postgres:// или postgresql:// открывается через pgxpool,
// остальные DSN считаются путями SQLite.
func OpenTarget(ctx context.Context, t config.Target) (*Target, error) {
	key := sqlexec.TargetKey(t.Server, t.Database)

	if strings.HasPrefix(t.DSN, "postgres://") || strings.HasPrefix(t.DSN, "postgresql://") {
		pool, err := connectDSN(ctx, t.DSN)
		if err != nil {
			return nil, fmt.Errorf("база данных %s: %w", key, err)
		}
		return &Target{Executor: sqlexec.NewPgxExecutor(pool, key), Pool: pool, close: pool.Close}, nil
	}

	ex, db, err := sqlexec.OpenSQLite(t.DSN, key)
	if err != nil {
		return nil, fmt.Errorf("база данных %s: %w", key, err)
	}
	return &Target{Executor: ex, close: func() { _ = db.Close() }}, nil
}

// ReadinessChecker — проверка готовности управляющей базы данных для health endpoint.
// Реализует интерфейс handlers.ReadinessChecker.
type ReadinessChecker struct {
	ex sqlexec.Executor
}

// NewReadinessChecker создаёт проверку готовности.
func NewReadinessChecker(ex sqlexec.Executor) *ReadinessChecker {
	return &ReadinessChecker{ex: ex}
}

// CheckReady проверяет подключение пробным запросом.
// Возвращает статус ("ok", "fail") и сообщение.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := sqlexec.Scalar(ctx, c.ex, "SELECT 1"); err != nil {
		return "fail", fmt.Sprintf("управляющая БД недоступна: %v", err)
	}
	return "ok", "подключение активно"
}
