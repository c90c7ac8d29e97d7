package table

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
	"github.com/bigkaa/goartstore/archive-module/internal/sqlexec"
)

// Prometheus-метрики кэша схем.
var (
	schemaCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ar_schema_cache_hits_total",
		Help: "Общее количество попаданий в кэш схем таблиц.",
	})
	schemaCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ar_schema_cache_misses_total",
		Help: "Общее количество промахов кэша схем таблиц.",
	})
)

// Loader — загрузчик схем таблиц с LRU-кэшем и TTL.
type Loader struct {
	cache *expirable.LRU[string, *Schema]
}

// NewLoader создаёт загрузчик схем.
// maxSize — максимальное число схем в кэше, ttl — время жизни схемы.
func NewLoader(maxSize int, ttl time.Duration) *Loader {
	return &Loader{cache: expirable.NewLRU[string, *Schema](maxSize, nil, ttl)}
}

// Load возвращает схему таблицы, читая её из БД при промахе кэша.
// Ключ кэша учитывает Target исполнителя: одна и та же таблица в разных
// базах данных может иметь разную схему.
func (l *Loader) Load(ctx context.Context, ex sqlexec.Executor, tableName, idColumn string) (*Schema, error) {
	key := ex.Target() + "|" + strings.ToLower(tableName) + "|" + strings.ToLower(idColumn)
	if s, ok := l.cache.Get(key); ok {
		schemaCacheHitsTotal.Inc()
		return s, nil
	}
	schemaCacheMissesTotal.Inc()

	s, err := Introspect(ctx, ex, tableName, idColumn)
	if err != nil {
		return nil, err
	}
	l.cache.Add(key, s)
	return s, nil
}

// Invalidate удаляет схемы всех таблиц из кэша.
func (l *Loader) Invalidate() {
	l.cache.Purge()
}

// Introspect читает схему таблицы из каталога БД.
func Introspect(ctx context.Context, ex sqlexec.Executor, tableName, idColumn string) (*Schema, error) {
	var (
		fields   []Field
		identity bool
		err      error
	)
	switch ex.Dialect().Name() {
	case "postgres":
		fields, identity, err = introspectPostgres(ctx, ex, tableName, idColumn)
	case "sqlite":
		fields, identity, err = introspectSQLite(ctx, ex, tableName, idColumn)
	default:
		return nil, model.NewConfigurationError("интроспекция не поддерживается для диалекта %s", ex.Dialect().Name())
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения схемы таблицы %s: %w", tableName, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("таблица %s: %w", tableName, model.ErrNotFound)
	}

	s := &Schema{Table: tableName, Identity: identity, Fields: fields}
	f, ok := s.Field(idColumn)
	if !ok {
		return nil, model.NewConfigurationError("в таблице %s нет колонки-идентификатора %s", tableName, idColumn)
	}
	s.IDColumn = f.Name
	return s, nil
}

func introspectPostgres(ctx context.Context, ex sqlexec.Executor, tableName, idColumn string) ([]Field, bool, error) {
	schemaName, name := "public", tableName
	if i := strings.LastIndex(tableName, "."); i >= 0 {
		schemaName, name = tableName[:i], tableName[i+1:]
	}

	res, err := ex.Query(ctx, `
		SELECT column_name, data_type, is_nullable, is_identity, is_generated, column_default
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schemaName, name)
	if err != nil {
		return nil, false, err
	}

	identity := false
	fields := make([]Field, 0, len(res.Rows))
	for _, r := range res.Rows {
		f := Field{
			Name:     model.AsString(r["column_name"]),
			Type:     classify(model.AsString(r["data_type"])),
			Nullable: model.AsString(r["is_nullable"]) == "YES",
			ReadOnly: model.AsString(r["is_generated"]) == "ALWAYS",
		}
		if strings.EqualFold(f.Name, idColumn) {
			identity = model.AsString(r["is_identity"]) == "YES" ||
				strings.HasPrefix(model.AsString(r["column_default"]), "nextval(")
		}
		fields = append(fields, f)
	}
	return fields, identity, nil
}

func introspectSQLite(ctx context.Context, ex sqlexec.Executor, tableName, idColumn string) ([]Field, bool, error) {
	res, err := ex.Query(ctx, `SELECT name, type, "notnull", pk FROM pragma_table_info(?1)`, tableName)
	if err != nil {
		return nil, false, err
	}

	identity := false
	fields := make([]Field, 0, len(res.Rows))
	for _, r := range res.Rows {
		notNull, _ := model.AsInt64(r["notnull"])
		pk, _ := model.AsInt64(r["pk"])
		dbType := model.AsString(r["type"])
		f := Field{
			Name:     model.AsString(r["name"]),
			Type:     classify(dbType),
			Nullable: notNull == 0 && pk == 0,
		}
		if strings.EqualFold(f.Name, idColumn) && pk == 1 && strings.EqualFold(dbType, "integer") {
			identity = true
		}
		fields = append(fields, f)
	}
	return fields, identity, nil
}
