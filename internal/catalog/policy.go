// Пакет catalog — кэшируемые каталоги политик архивирования и батчей архива.
// Каталоги создаются явно (без глобальных синглтонов) и обновляются
// через polledcache; состояние публикуется атомарной заменой снимка.
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

// PolicyQuery — запрос загрузки политик.
const PolicyQuery = "SELECT * FROM archive_config"

// PolicyCatalog — каталог политик архивирования по пути таблицы.
type PolicyCatalog struct {
	cache    *polledcache.Cache
	policies atomic.Pointer[map[string]*model.ArchivePolicy]
	logger   *slog.Logger
}

// NewPolicyCatalog создаёт каталог политик. Пустая таблица политик
// допустима: в системе может не быть архивируемых таблиц.
func NewPolicyCatalog(ex sqlexec.Executor, ttl time.Duration, logger *slog.Logger) *PolicyCatalog {
	return newPolicyCatalog(ex, polledcache.Options{Name: "archive_config", TTL: ttl, AllowNoRows: true}, logger)
}

func newPolicyCatalog(ex sqlexec.Executor, opts polledcache.Options, logger *slog.Logger) *PolicyCatalog {
	c := &PolicyCatalog{logger: logger.With(slog.String("component", "policy_catalog"))}
	empty := map[string]*model.ArchivePolicy{}
	c.policies.Store(&empty)
	c.cache = polledcache.New(ex, PolicyQuery, c.rebuild, opts, logger)
	return c
}

// Refresh перечитывает политики, не дожидаясь истечения TTL.
func (c *PolicyCatalog) Refresh(ctx context.Context) error {
	c.cache.Invalidate()
	return c.cache.CheckFresh(ctx)
}

// rebuild строит новую карту политик и публикует её.
func (c *PolicyCatalog) rebuild(rows []sqlexec.Row) error {
	next := make(map[string]*model.ArchivePolicy, len(rows))
	for _, r := range rows {
		p, err := model.PolicyFromRow(r)
		if err != nil {
			return err
		}
		next[p.Key()] = p
	}
	c.policies.Store(&next)
	return nil
}

// Get возвращает политику таблицы. Поиск без учёта регистра.
// Возвращает model.ErrNotFound, если политики нет.
func (c *PolicyCatalog) Get(ctx context.Context, tablePath string) (*model.ArchivePolicy, error) {
	if err := c.cache.CheckFresh(ctx); err != nil {
		return nil, err
	}
	p, ok := (*c.policies.Load())[model.NormalizeTablePath(tablePath)]
	if !ok {
		return nil, model.ErrNotFound
	}
	return p, nil
}

// All возвращает все политики, отсортированные по пути таблицы.
func (c *PolicyCatalog) All(ctx context.Context) ([]*model.ArchivePolicy, error) {
	if err := c.cache.CheckFresh(ctx); err != nil {
		return nil, err
	}
	m := *c.policies.Load()
	out := make([]*model.ArchivePolicy, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}
