// index.go — in-memory индекс батчей архива одной таблицы.
//
// Индекс строится целиком при каждом обновлении каталога и после
// публикации не изменяется: читатели работают с неизменяемым снимком,
// новый снимок подменяется атомарно (copy-on-write).
package catalog

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
)

// Метрики поиска по каталогу.
var (
	catalogLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ar_catalog_lookups_total",
			Help: "Поиски батча по id или времени: hit, miss, rejected (вне границ без сканирования).",
		},
		[]string{"kind", "result"},
	)
	catalogOverlaps = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ar_catalog_overlaps",
			Help: "Количество пар пересекающихся батчей одного вида по таблице.",
		},
		[]string{"table"},
	)
)

// Index — неизменяемый индекс батчей одной таблицы.
type Index struct {
	tablePath string
	// batches — в порядке id (порядок запроса каталога).
	batches []*model.ArchiveBatch

	idBounds   model.RecordRange
	hasID      bool
	timeBounds model.ColumnRange
	hasTime    bool

	overlaps int
}

// newIndex строит индекс по батчам одной таблицы.
func newIndex(tablePath string, batches []*model.ArchiveBatch) *Index {
	ix := &Index{tablePath: tablePath, batches: batches}
	for _, b := range batches {
		switch r := b.Range.(type) {
		case model.RecordRange:
			if !ix.hasID || r.Lo < ix.idBounds.Lo {
				ix.idBounds.Lo = r.Lo
			}
			if !ix.hasID || r.Hi > ix.idBounds.Hi {
				ix.idBounds.Hi = r.Hi
			}
			ix.hasID = true
		case model.ColumnRange:
			if !ix.hasTime || r.Lo.Before(ix.timeBounds.Lo) {
				ix.timeBounds.Lo = r.Lo
			}
			if !ix.hasTime || r.Hi.After(ix.timeBounds.Hi) {
				ix.timeBounds.Hi = r.Hi
			}
			ix.hasTime = true
		}
	}
	ix.overlaps = countOverlaps(batches)
	return ix
}

// TablePath возвращает путь таблицы индекса.
func (ix *Index) TablePath() string { return ix.tablePath }

// Batches возвращает копию списка батчей.
func (ix *Index) Batches() []*model.ArchiveBatch {
	out := make([]*model.ArchiveBatch, len(ix.batches))
	copy(out, ix.batches)
	return out
}

// ColumnBatches возвращает батчи вида Column в порядке id.
func (ix *Index) ColumnBatches() []*model.ArchiveBatch {
	var out []*model.ArchiveBatch
	for _, b := range ix.batches {
		if b.Kind == model.KindColumn {
			out = append(out, b)
		}
	}
	return out
}

// RecordBounds возвращает общие границы id батчей вида Record.
func (ix *Index) RecordBounds() (model.RecordRange, bool) { return ix.idBounds, ix.hasID }

// ColumnBounds возвращает общие границы времени батчей вида Column.
func (ix *Index) ColumnBounds() (model.ColumnRange, bool) { return ix.timeBounds, ix.hasTime }

// Overlaps возвращает число пар пересекающихся батчей.
func (ix *Index) Overlaps() int { return ix.overlaps }

// FindByID ищет батч записей, диапазон которого содержит id.
// При пересечении диапазонов побеждает батч с меньшим id.
func (ix *Index) FindByID(id int64) *model.ArchiveBatch {
	if !ix.hasID || !ix.idBounds.Contains(id) {
		catalogLookupsTotal.WithLabelValues("record", "rejected").Inc()
		return nil
	}
	for _, b := range ix.batches {
		if r, ok := b.RecordRange(); ok && r.Contains(id) {
			catalogLookupsTotal.WithLabelValues("record", "hit").Inc()
			return b
		}
	}
	catalogLookupsTotal.WithLabelValues("record", "miss").Inc()
	return nil
}

// FindByTime ищет батч колонок, диапазон которого содержит момент t.
func (ix *Index) FindByTime(t time.Time) *model.ArchiveBatch {
	if !ix.hasTime || !ix.timeBounds.Contains(t) {
		catalogLookupsTotal.WithLabelValues("column", "rejected").Inc()
		return nil
	}
	for _, b := range ix.batches {
		if r, ok := b.ColumnRange(); ok && r.Contains(t) {
			catalogLookupsTotal.WithLabelValues("column", "hit").Inc()
			return b
		}
	}
	catalogLookupsTotal.WithLabelValues("column", "miss").Inc()
	return nil
}

// FindByBackendInfo ищет батч вида kind с указанным archive info.
// Повторное использование archive info — UniquenessViolation.
func (ix *Index) FindByBackendInfo(info string, kind model.Kind) (*model.ArchiveBatch, error) {
	var found *model.ArchiveBatch
	for _, b := range ix.batches {
		if b.Kind != kind || b.Info != info {
			continue
		}
		if found != nil {
			return nil, &model.UniquenessViolation{TablePath: ix.tablePath, Kind: kind, Info: info}
		}
		found = b
	}
	if found == nil {
		return nil, model.ErrNotFound
	}
	return found, nil
}

// MostRecent возвращает батч вида kind с наибольшей верхней границей.
func (ix *Index) MostRecent(kind model.Kind) *model.ArchiveBatch {
	var found *model.ArchiveBatch
	for _, b := range ix.batches {
		if b.Kind != kind || b.Range == nil {
			continue
		}
		if found == nil || upperAfter(b, found) {
			found = b
		}
	}
	return found
}

func upperAfter(a, b *model.ArchiveBatch) bool {
	switch ra := a.Range.(type) {
	case model.RecordRange:
		rb, _ := b.RecordRange()
		return ra.Hi > rb.Hi
	case model.ColumnRange:
		rb, _ := b.ColumnRange()
		return ra.Hi.After(rb.Hi)
	}
	return false
}

// countOverlaps считает пары пересекающихся батчей одного вида.
func countOverlaps(batches []*model.ArchiveBatch) int {
	n := 0
	for i := 0; i < len(batches); i++ {
		for j := i + 1; j < len(batches); j++ {
			if overlap(batches[i], batches[j]) {
				n++
			}
		}
	}
	return n
}

func overlap(a, b *model.ArchiveBatch) bool {
	switch ra := a.Range.(type) {
	case model.RecordRange:
		rb, ok := b.RecordRange()
		return ok && ra.Overlaps(rb)
	case model.ColumnRange:
		rb, ok := b.ColumnRange()
		return ok && ra.Overlaps(rb)
	}
	return false
}

// buildIndexes группирует батчи по таблицам и строит индексы.
func buildIndexes(batches []*model.ArchiveBatch, logger *slog.Logger) map[string]*Index {
	grouped := make(map[string][]*model.ArchiveBatch)
	paths := make(map[string]string)
	for _, b := range batches {
		k := b.Key()
		grouped[k] = append(grouped[k], b)
		if _, ok := paths[k]; !ok {
			paths[k] = b.TablePath
		}
	}

	out := make(map[string]*Index, len(grouped))
	for k, list := range grouped {
		out[k] = newIndex(paths[k], list)
	}

	// таблицы, исчезнувшие из каталога, не должны оставлять старых значений
	catalogOverlaps.Reset()
	for k, ix := range out {
		catalogOverlaps.WithLabelValues(k).Set(float64(ix.overlaps))
		if ix.overlaps > 0 {
			logger.Warn("Пересекающиеся диапазоны батчей архива, используется первый по id",
				slog.String("table", paths[k]),
				slog.Int("overlaps", ix.overlaps),
			)
		}
	}
	return out
}
