// Пакет polledcache — кэш результата SQL-запроса с периодическим обновлением.
//
// CheckFresh выполняет запрос, только если истёк TTL или сменилось
// подключение исполнителя (Target). Результат целиком передаётся в
// callback, который заменяет своё состояние. Ошибки обновления после
// первой успешной загрузки терпимы: до AllowErrors подряд кэш продолжает
// отдавать прежние данные.
//
// Мьютекс защищает только решение "обновлять ли сейчас"; сам запрос
// выполняется без блокировки. Пока один вызывающий обновляет уже
// загруженный кэш, остальные сразу получают прежние данные. До первой
// загрузки вызывающие присоединяются к одной загрузке (singleflight).
package polledcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
	"github.com/bigkaa/goartstore/archive-module/internal/sqlexec"
)

// Prometheus-метрики кэшей.
var (
	refreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ar_cache_refresh_total",
			Help: "Количество обновлений кэша по результату (ok, tolerated, fatal).",
		},
		[]string{"cache", "result"},
	)
	loadedRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ar_cache_loaded_rows",
			Help: "Количество строк в последней успешной загрузке кэша.",
		},
		[]string{"cache"},
	)
)

// errNoRows — запрос вернул 0 строк при AllowNoRows = false.
var errNoRows = errors.New("запрос кэша не вернул строк")

// RefreshFunc получает полный результат запроса и заменяет состояние кэша.
type RefreshFunc func(rows []sqlexec.Row) error

// Options — параметры кэша.
type Options struct {
	// Name — имя кэша в логах и метриках.
	Name string
	// TTL — интервал между обновлениями; 0 — кэш не устаревает.
	TTL time.Duration
	// AllowNoRows — пустой результат считается успешной загрузкой.
	AllowNoRows bool
	// AllowErrors — допустимое число последовательных ошибок обновления;
	// 0 — ошибки после первой загрузки терпятся без ограничения.
	AllowErrors int
	// Now — источник времени (для тестов); по умолчанию time.Now.
	Now func() time.Time
}

// Cache — кэш результата запроса.
type Cache struct {
	ex        sqlexec.Executor
	query     string
	onRefresh RefreshFunc
	opts      Options
	logger    *slog.Logger

	mu          sync.Mutex
	loaded      bool
	refreshing  bool
	nextRefresh time.Time
	never       bool
	lastTarget  string
	errCount    int

	first singleflight.Group
}

// New создаёт кэш. Запрос не выполняется до первого CheckFresh.
func New(ex sqlexec.Executor, query string, onRefresh RefreshFunc, opts Options, logger *slog.Logger) *Cache {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Name == "" {
		opts.Name = query
	}
	return &Cache{
		ex:        ex,
		query:     query,
		onRefresh: onRefresh,
		opts:      opts,
		logger:    logger.With(slog.String("component", "polledcache"), slog.String("cache", opts.Name)),
	}
}

// CheckFresh гарантирует актуальность кэша перед использованием.
// Возвращает *model.CacheRefreshError, если кэш не удалось загрузить
// впервые или превышен порог последовательных ошибок.
func (c *Cache) CheckFresh(ctx context.Context) error {
	target := c.ex.Target()

	c.mu.Lock()
	now := c.opts.Now()
	if c.loaded && target == c.lastTarget && (c.never || now.Before(c.nextRefresh)) {
		c.mu.Unlock()
		return nil
	}
	if c.loaded && c.refreshing {
		// другой вызывающий уже обновляет кэш — отдаём прежние данные
		c.mu.Unlock()
		return nil
	}
	if !c.loaded {
		c.mu.Unlock()
		_, err, _ := c.first.Do("load", func() (any, error) {
			return nil, c.loadFirst(ctx)
		})
		return err
	}
	c.refreshing = true
	c.lastTarget = target
	c.mu.Unlock()

	return c.refresh(ctx)
}

// Loaded сообщает, была ли хотя бы одна успешная загрузка.
func (c *Cache) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Invalidate заставляет следующий CheckFresh выполнить запрос.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextRefresh = time.Time{}
	c.never = false
}

// loadFirst выполняет первую загрузку. Ошибка фатальна.
func (c *Cache) loadFirst(ctx context.Context) error {
	c.mu.Lock()
	if c.loaded {
		c.mu.Unlock()
		return nil
	}
	c.lastTarget = c.ex.Target()
	c.mu.Unlock()

	rows, err := c.fetch(ctx)
	if err != nil {
		refreshTotal.WithLabelValues(c.opts.Name, "fatal").Inc()
		c.logger.Error("Не удалось инициализировать кэш", slog.String("error", err.Error()))
		return &model.CacheRefreshError{Cache: c.opts.Name, Err: err}
	}

	if err := c.apply(rows); err != nil {
		return err
	}
	return nil
}

// refresh выполняет повторное обновление загруженного кэша.
func (c *Cache) refresh(ctx context.Context) error {
	rows, err := c.fetch(ctx)
	if err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.refreshing = false
		c.errCount++

		if c.opts.AllowErrors > 0 && c.errCount > c.opts.AllowErrors {
			refreshTotal.WithLabelValues(c.opts.Name, "fatal").Inc()
			c.logger.Error("Превышен порог ошибок обновления кэша",
				slog.Int("errors", c.errCount),
				slog.String("error", err.Error()),
			)
			return &model.CacheRefreshError{Cache: c.opts.Name, Attempts: c.errCount, Err: err}
		}

		// при TTL = 0 следующий вызов повторяет запрос
		c.never = false
		c.nextRefresh = c.opts.Now().Add(c.opts.TTL)
		refreshTotal.WithLabelValues(c.opts.Name, "tolerated").Inc()
		c.logger.Warn("Ошибка обновления кэша, используются прежние данные",
			slog.Int("errors", c.errCount),
			slog.String("error", err.Error()),
		)
		return nil
	}

	if err := c.apply(rows); err != nil {
		c.mu.Lock()
		c.refreshing = false
		c.mu.Unlock()
		return err
	}
	return nil
}

// fetch выполняет запрос кэша.
func (c *Cache) fetch(ctx context.Context) ([]sqlexec.Row, error) {
	res, err := c.ex.Query(ctx, c.query)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 && !c.opts.AllowNoRows {
		return nil, errNoRows
	}
	return res.Rows, nil
}

// apply передаёт строки в callback и планирует следующее обновление.
// Ошибка callback (например, битая строка управляющей таблицы)
// возвращается как есть и не сдвигает расписание.
func (c *Cache) apply(rows []sqlexec.Row) error {
	if err := c.onRefresh(rows); err != nil {
		refreshTotal.WithLabelValues(c.opts.Name, "fatal").Inc()
		return fmt.Errorf("ошибка обработки результата кэша %s: %w", c.opts.Name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.errCount = 0
	c.loaded = true
	c.refreshing = false
	if c.opts.TTL == 0 {
		c.never = true
	} else {
		c.never = false
		c.nextRefresh = c.opts.Now().Add(c.opts.TTL)
	}

	refreshTotal.WithLabelValues(c.opts.Name, "ok").Inc()
	loadedRows.WithLabelValues(c.opts.Name).Set(float64(len(rows)))
	c.logger.Debug("Кэш обновлён", slog.Int("rows", len(rows)))
	return nil
}
