package catalog

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
	"github.com/bigkaa/goartstore/archive-module/internal/polledcache"
	"github.com/bigkaa/goartstore/archive-module/internal/sqlexec"
)

// ControlQuery — запрос загрузки батчей. Порядок id задаёт приоритет
// при пересечении диапазонов.
const ControlQuery = "SELECT * FROM archive_control ORDER BY id ASC"

// ArchiveCatalog — каталог батчей архива, сгруппированных по таблицам.
type ArchiveCatalog struct {
	cache   *polledcache.Cache
	indexes atomic.Pointer[map[string]*Index]
	logger  *slog.Logger
}

// NewArchiveCatalog создаёт каталог батчей. allowErrors — число
// последовательных ошибок обновления, после которого каталог недоступен.
func NewArchiveCatalog(ex sqlexec.Executor, ttl time.Duration, allowErrors int, logger *slog.Logger) *ArchiveCatalog {
	return newArchiveCatalog(ex, polledcache.Options{
		Name:        "archive_control",
		TTL:         ttl,
		AllowNoRows: true,
		AllowErrors: allowErrors,
	}, logger)
}

func newArchiveCatalog(ex sqlexec.Executor, opts polledcache.Options, logger *slog.Logger) *ArchiveCatalog {
	c := &ArchiveCatalog{logger: logger.With(slog.String("component", "archive_catalog"))}
	empty := map[string]*Index{}
	c.indexes.Store(&empty)
	c.cache = polledcache.New(ex, ControlQuery, c.rebuild, opts, logger)
	return c
}

// Refresh перечитывает управляющую таблицу, не дожидаясь истечения TTL.
// Вызывается после прогона архиватора.
func (c *ArchiveCatalog) Refresh(ctx context.Context) error {
	c.cache.Invalidate()
	return c.cache.CheckFresh(ctx)
}

// rebuild строит индексы всех таблиц заново и публикует их одним Store.
func (c *ArchiveCatalog) rebuild(rows []sqlexec.Row) error {
	batches := make([]*model.ArchiveBatch, 0, len(rows))
	for _, r := range rows {
		b, err := model.BatchFromRow(r)
		if err != nil {
			return err
		}
		batches = append(batches, b)
	}
	next := buildIndexes(batches, c.logger)
	c.indexes.Store(&next)
	c.logger.Debug("Каталог батчей перестроен",
		slog.Int("batches", len(batches)),
		slog.Int("tables", len(next)),
	)
	return nil
}

// Batches возвращает индекс батчей таблицы или model.ErrNotFound.
func (c *ArchiveCatalog) Batches(ctx context.Context, tablePath string) (*Index, error) {
	if err := c.cache.CheckFresh(ctx); err != nil {
		return nil, err
	}
	ix, ok := (*c.indexes.Load())[model.NormalizeTablePath(tablePath)]
	if !ok {
		return nil, model.ErrNotFound
	}
	return ix, nil
}

// Find возвращает батч записей, содержащий id.
func (c *ArchiveCatalog) Find(ctx context.Context, tablePath string, id int64) (*model.ArchiveBatch, error) {
	ix, err := c.Batches(ctx, tablePath)
	if err != nil {
		return nil, err
	}
	if b := ix.FindByID(id); b != nil {
		return b, nil
	}
	return nil, model.ErrNotFound
}

// FindByTime возвращает батч колонок, содержащий момент t.
func (c *ArchiveCatalog) FindByTime(ctx context.Context, tablePath string, t time.Time) (*model.ArchiveBatch, error) {
	ix, err := c.Batches(ctx, tablePath)
	if err != nil {
		return nil, err
	}
	if b := ix.FindByTime(t); b != nil {
		return b, nil
	}
	return nil, model.ErrNotFound
}

// FindByBackendInfo возвращает батч вида kind с указанным archive info.
// Используется архиватором, чтобы не архивировать повторно в то же хранилище.
func (c *ArchiveCatalog) FindByBackendInfo(ctx context.Context, tablePath, info string, kind model.Kind) (*model.ArchiveBatch, error) {
	ix, err := c.Batches(ctx, tablePath)
	if err != nil {
		return nil, err
	}
	return ix.FindByBackendInfo(info, kind)
}

// MostRecent возвращает батч вида kind с наибольшей верхней границей.
func (c *ArchiveCatalog) MostRecent(ctx context.Context, tablePath string, kind model.Kind) (*model.ArchiveBatch, error) {
	ix, err := c.Batches(ctx, tablePath)
	if err != nil {
		return nil, err
	}
	if b := ix.MostRecent(kind); b != nil {
		return b, nil
	}
	return nil, model.ErrNotFound
}

// Exists проверяет, есть ли у таблицы хотя бы один батч.
func (c *ArchiveCatalog) Exists(ctx context.Context, tablePath string) (bool, error) {
	if err := c.cache.CheckFresh(ctx); err != nil {
		return false, err
	}
	_, ok := (*c.indexes.Load())[model.NormalizeTablePath(tablePath)]
	return ok, nil
}

// Tables возвращает пути таблиц, у которых есть батчи.
func (c *ArchiveCatalog) Tables(ctx context.Context) ([]string, error) {
	if err := c.cache.CheckFresh(ctx); err != nil {
		return nil, err
	}
	m := *c.indexes.Load()
	out := make([]string, 0, len(m))
	for _, ix := range m {
		out = append(out, ix.TablePath())
	}
	sort.Strings(out)
	return out, nil
}
