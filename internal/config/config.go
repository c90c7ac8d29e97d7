// Пакет config — загрузка и валидация конфигурации Archive Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Драйверы управляющей базы данных.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Target — дополнительная логическая база данных для реестра исполнителей.
type Target struct {
	Server   string
	Database string
	DSN      string
}

// Config содержит все параметры конфигурации Archive Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration

	// --- Управляющая база данных ---

	// ControlDriver — postgres или sqlite
	ControlDriver string
	// ControlSQLiteDSN — DSN файла SQLite (для ControlDriver = sqlite)
	ControlSQLiteDSN string

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// DBServerAlias — логическое имя сервера управляющей БД в реестре
	DBServerAlias string
	// Targets — дополнительные логические базы данных
	Targets []Target

	// --- Кэши ---

	PolicyCacheTTL          time.Duration
	ControlCacheTTL         time.Duration
	ControlCacheAllowErrors int
	SchemaCacheSize         int
	SchemaCacheTTL          time.Duration

	// --- JWT ---

	JWTEnabled          bool
	JWKSURL             string
	JWTIssuer           string
	JWKSClientTimeout   time.Duration
	JWKSRefreshInterval time.Duration
	JWTLeeway           time.Duration
	AdminGroups         []string
	ReadonlyGroups      []string

	// --- Мониторинг зависимостей ---

	DephealthEnabled       bool
	DephealthGroup         string
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// AR_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("AR_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("AR_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("AR_PORT: значение %d вне диапазона 1-65535", cfg.Port)
	}

	// AR_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("AR_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("AR_LOG_LEVEL: %w", err)
	}

	// AR_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("AR_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("AR_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	if cfg.HTTPReadTimeout, err = getEnvDuration("AR_HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("AR_HTTP_READ_TIMEOUT: %w", err)
	}
	if cfg.HTTPWriteTimeout, err = getEnvDuration("AR_HTTP_WRITE_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("AR_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("AR_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("AR_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// AR_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	if cfg.ShutdownTimeout, err = getEnvDuration("AR_SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("AR_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Управляющая база данных ---

	cfg.ControlDriver = getEnvDefault("AR_CONTROL_DRIVER", DriverPostgres)
	switch cfg.ControlDriver {
	case DriverPostgres:
		if err := loadPostgres(cfg); err != nil {
			return nil, err
		}
	case DriverSQLite:
		cfg.ControlSQLiteDSN, err = getEnvRequired("AR_CONTROL_SQLITE_DSN")
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("AR_CONTROL_DRIVER: недопустимое значение %q, допустимые: postgres, sqlite", cfg.ControlDriver)
	}

	// AR_DB_SERVER_ALIAS — логическое имя сервера управляющей БД (по умолчанию local)
	cfg.DBServerAlias = getEnvDefault("AR_DB_SERVER_ALIAS", "local")

	// AR_TARGETS — server;database=dsn через запятую
	cfg.Targets, err = parseTargets(os.Getenv("AR_TARGETS"))
	if err != nil {
		return nil, fmt.Errorf("AR_TARGETS: %w", err)
	}

	// --- Кэши ---

	if cfg.PolicyCacheTTL, err = getEnvDuration("AR_POLICY_CACHE_TTL", 180*time.Minute); err != nil {
		return nil, fmt.Errorf("AR_POLICY_CACHE_TTL: %w", err)
	}
	if cfg.ControlCacheTTL, err = getEnvDuration("AR_CONTROL_CACHE_TTL", 180*time.Minute); err != nil {
		return nil, fmt.Errorf("AR_CONTROL_CACHE_TTL: %w", err)
	}
	if cfg.ControlCacheAllowErrors, err = getEnvInt("AR_CONTROL_CACHE_ALLOW_ERRORS", 2); err != nil {
		return nil, fmt.Errorf("AR_CONTROL_CACHE_ALLOW_ERRORS: %w", err)
	}
	if cfg.ControlCacheAllowErrors < 0 {
		return nil, fmt.Errorf("AR_CONTROL_CACHE_ALLOW_ERRORS: значение не может быть отрицательным")
	}
	if cfg.SchemaCacheSize, err = getEnvInt("AR_SCHEMA_CACHE_SIZE", 256); err != nil {
		return nil, fmt.Errorf("AR_SCHEMA_CACHE_SIZE: %w", err)
	}
	if cfg.SchemaCacheSize < 1 {
		return nil, fmt.Errorf("AR_SCHEMA_CACHE_SIZE: значение должно быть положительным")
	}
	if cfg.SchemaCacheTTL, err = getEnvDuration("AR_SCHEMA_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, fmt.Errorf("AR_SCHEMA_CACHE_TTL: %w", err)
	}

	// --- JWT ---

	if cfg.JWTEnabled, err = getEnvBool("AR_JWT_ENABLED", false); err != nil {
		return nil, fmt.Errorf("AR_JWT_ENABLED: %w", err)
	}
	if cfg.JWTEnabled {
		if cfg.JWKSURL, err = getEnvRequired("AR_JWKS_URL"); err != nil {
			return nil, err
		}
	}
	cfg.JWTIssuer = os.Getenv("AR_JWT_ISSUER")
	if cfg.JWKSClientTimeout, err = getEnvDuration("AR_JWKS_CLIENT_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("AR_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	if cfg.JWKSRefreshInterval, err = getEnvDuration("AR_JWKS_REFRESH_INTERVAL", 15*time.Minute); err != nil {
		return nil, fmt.Errorf("AR_JWKS_REFRESH_INTERVAL: %w", err)
	}
	if cfg.JWTLeeway, err = getEnvDuration("AR_JWT_LEEWAY", 5*time.Second); err != nil {
		return nil, fmt.Errorf("AR_JWT_LEEWAY: %w", err)
	}
	cfg.AdminGroups = parseCSV(getEnvDefault("AR_ADMIN_GROUPS", "artstore-admins"))
	cfg.ReadonlyGroups = parseCSV(getEnvDefault("AR_READONLY_GROUPS", "artstore-viewers"))

	// --- Мониторинг зависимостей ---

	if cfg.DephealthEnabled, err = getEnvBool("AR_DEPHEALTH_ENABLED", true); err != nil {
		return nil, fmt.Errorf("AR_DEPHEALTH_ENABLED: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("AR_DEPHEALTH_GROUP", "artstore")
	if cfg.DephealthCheckInterval, err = getEnvDuration("AR_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("AR_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// loadPostgres читает параметры подключения к PostgreSQL.
func loadPostgres(cfg *Config) error {
	var err error

	// AR_DB_HOST — обязательный
	if cfg.DBHost, err = getEnvRequired("AR_DB_HOST"); err != nil {
		return err
	}
	if cfg.DBPort, err = getEnvInt("AR_DB_PORT", 5432); err != nil {
		return fmt.Errorf("AR_DB_PORT: %w", err)
	}
	cfg.DBName = getEnvDefault("AR_DB_NAME", "artstore")
	if cfg.DBUser, err = getEnvRequired("AR_DB_USER"); err != nil {
		return err
	}
	if cfg.DBPassword, err = getEnvRequired("AR_DB_PASSWORD"); err != nil {
		return err
	}

	// AR_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("AR_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return fmt.Errorf("AR_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}
	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL (для метрик и миграций).
func (c *Config) DatabaseURL(scheme string) string {
	return fmt.Sprintf("%s://%s:%s@%s:%d/%s?sslmode=%s",
		scheme, c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает значение длительности из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q", val)
	}
	return d, nil
}

// getEnvBool возвращает логическое значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, в срез без пустых элементов.
func parseCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseTargets разбирает список "server;database=dsn" через запятую.
func parseTargets(s string) ([]Target, error) {
	var out []Target
	for _, item := range parseCSV(s) {
		key, dsn, ok := strings.Cut(item, "=")
		if !ok || dsn == "" {
			return nil, fmt.Errorf("некорректный элемент %q, ожидается server;database=dsn", item)
		}
		server, database, ok := strings.Cut(key, ";")
		if !ok || server == "" || database == "" {
			return nil, fmt.Errorf("некорректный ключ %q, ожидается server;database", key)
		}
		out = append(out, Target{Server: server, Database: database, DSN: dsn})
	}
	return out, nil
}
