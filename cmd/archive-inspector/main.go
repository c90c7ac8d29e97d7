// Точка входа инспектора архива записей.
// Загружает конфигурацию, подключается к управляющей БД (PostgreSQL
// с миграциями либо SQLite), открывает логические базы из AR_TARGETS,
// создаёт каталоги политик и батчей, методы архивирования и API handlers,
// запускает topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/goartstore/archive-module/internal/accessor"
	"github.com/bigkaa/goartstore/archive-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/archive-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/archive-module/internal/backend"
	"github.com/bigkaa/goartstore/archive-module/internal/catalog"
	"github.com/bigkaa/goartstore/archive-module/internal/config"
	"github.com/bigkaa/goartstore/archive-module/internal/database"
	"github.com/bigkaa/goartstore/archive-module/internal/server"
	"github.com/bigkaa/goartstore/archive-module/internal/service"
	"github.com/bigkaa/goartstore/archive-module/internal/sqlexec"
	"github.com/bigkaa/goartstore/archive-module/internal/table"
)

// serviceID — имя вершины графа зависимостей.
const serviceID = "archive-inspector"

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Инспектор архива запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("control_driver", cfg.ControlDriver),
	)

	ctx := context.Background()

	// 3. Управляющая БД
	var (
		control      sqlexec.Executor
		controldb    string
		dependencies []service.PostgresDependency
	)
	switch cfg.ControlDriver {
	case config.DriverPostgres:
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
			os.Exit(1)
		}

		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()

		// Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
		pgDB := stdlib.OpenDBFromPool(pool)
		defer pgDB.Close()

		controldb = cfg.DBName
		control = sqlexec.NewPgxExecutor(pool, sqlexec.TargetKey(cfg.DBServerAlias, controldb))
		dependencies = append(dependencies, service.PostgresDependency{
			Name:     "postgresql",
			DB:       pgDB,
			URL:      cfg.DatabaseURL("postgres"),
			Critical: true,
		})

	case config.DriverSQLite:
		controldb = "control"
		ex, db, err := sqlexec.OpenSQLite(cfg.ControlSQLiteDSN, sqlexec.TargetKey(cfg.DBServerAlias, controldb))
		if err != nil {
			logger.Error("Ошибка открытия SQLite", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer db.Close()
		if err := database.ApplySQLiteSchema(ctx, ex); err != nil {
			logger.Error("Ошибка создания управляющих таблиц", slog.String("error", err.Error()))
			os.Exit(1)
		}
		control = ex
	}

	// 4. Реестр логических баз данных
	registry := sqlexec.NewRegistry(nil)
	registry.Register(cfg.DBServerAlias, controldb, control)
	for _, t := range cfg.Targets {
		target, err := database.OpenTarget(ctx, t)
		if err != nil {
			logger.Error("Ошибка подключения к базе данных",
				slog.String("server", t.Server),
				slog.String("database", t.Database),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		defer target.Close()
		registry.Register(t.Server, t.Database, target.Executor)

		if target.Pool != nil {
			db := stdlib.OpenDBFromPool(target.Pool)
			defer func(db *sql.DB) { _ = db.Close() }(db)
			dependencies = append(dependencies, service.PostgresDependency{
				Name: t.Server + "-" + t.Database,
				DB:   db,
				URL:  t.DSN,
			})
		}
		logger.Info("База данных зарегистрирована",
			slog.String("server", t.Server),
			slog.String("database", t.Database),
		)
	}

	// 5. Каталоги, методы архивирования, доступ к архиву
	loader := table.NewLoader(cfg.SchemaCacheSize, cfg.SchemaCacheTTL)
	policies := catalog.NewPolicyCatalog(control, cfg.PolicyCacheTTL, logger)
	batches := catalog.NewArchiveCatalog(control, cfg.ControlCacheTTL, cfg.ControlCacheAllowErrors, logger)
	archive := accessor.New(policies, batches, backend.NewFactory(registry, loader), logger)

	// Первая загрузка каталогов: битые управляющие таблицы видны сразу
	if _, err := policies.All(ctx); err != nil {
		logger.Error("Ошибка загрузки политик архивирования", slog.String("error", err.Error()))
		os.Exit(1)
	}
	tables, err := batches.Tables(ctx)
	if err != nil {
		logger.Error("Ошибка загрузки каталога батчей", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Каталог архива загружен", slog.Int("tables", len(tables)))

	// 6. JWT middleware (опционально)
	var (
		jwtAuth     *middleware.JWTAuth
		jwksChecker handlers.ReadinessChecker
		jwksURL     string
	)
	if cfg.JWTEnabled {
		jwtAuth, err = middleware.NewJWTAuth(
			cfg.JWKSURL,
			cfg.JWTIssuer,
			cfg.AdminGroups,
			cfg.ReadonlyGroups,
			cfg.JWKSClientTimeout,
			cfg.JWKSRefreshInterval,
			cfg.JWTLeeway,
			logger,
		)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		jwksChecker = middleware.NewJWKSReadinessChecker(cfg.JWKSURL, cfg.JWKSClientTimeout)
		jwksURL = cfg.JWKSURL
		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	} else {
		logger.Warn("JWT-аутентификация выключена (AR_JWT_ENABLED=false)")
	}

	// 7. topologymetrics — мониторинг зависимостей
	if cfg.DephealthEnabled && (len(dependencies) > 0 || jwksURL != "") {
		dephealthSvc, dhErr := service.NewDephealthService(
			serviceID,
			cfg.DephealthGroup,
			dependencies,
			jwksURL,
			cfg.DephealthCheckInterval,
			logger,
		)
		if dhErr != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", dhErr.Error()),
			)
		} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		} else {
			defer dephealthSvc.Stop()
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.Duration("check_interval", cfg.DephealthCheckInterval),
			)
		}
	}

	// 8. API handlers и HTTP-сервер
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(control), jwksChecker)
	archiveHandler := handlers.NewArchiveHandler(archive, registry, loader, logger)
	apiHandler := handlers.NewAPIHandler(healthHandler, archiveHandler)

	srv := server.New(cfg, logger, apiHandler, jwtAuth)

	// 9. Запуск сервера (блокирующий вызов с graceful shutdown)
	start := time.Now()
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Инспектор архива остановлен", slog.Duration("uptime", time.Since(start)))
}
