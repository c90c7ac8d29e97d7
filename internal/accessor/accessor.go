// Пакет accessor — чтение архивных данных записи.
//
// Accessor находит батч через каталог, читает payload из хранилища батча
// и превращает его в набор полей. Отсутствие политики, батча или payload'а
// — обычный результат (model.ErrNotFound), а не сбой.
package accessor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bigkaa/goartstore/archive-module/internal/backend"
	"github.com/bigkaa/goartstore/archive-module/internal/catalog"
	"github.com/bigkaa/goartstore/archive-module/internal/codec"
	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
)

// controlTableMarkers — подстроки путей управляющих таблиц архива.
// Такие таблицы никогда не архивируются, иначе чтение каталога
// рекурсивно обращалось бы к самому себе.
var controlTableMarkers = []string{
	"archivecon", "archive_con", "archive_payload",
}

// IsControlTable проверяет, относится ли путь к управляющим таблицам архива.
func IsControlTable(tablePath string) bool {
	p := strings.ToLower(tablePath)
	for _, m := range controlTableMarkers {
		if strings.Contains(p, m) {
			return true
		}
	}
	return false
}

// Payload — прочитанные архивные данные одной записи.
type Payload struct {
	Batch  *model.ArchiveBatch
	ID     int64
	Fields map[string]any

	method backend.Method
}

// Delete удаляет payload из хранилища батча. Возвращает 0, если его уже нет.
func (p *Payload) Delete(ctx context.Context) (int64, error) {
	if p.Batch.HashMode() {
		return p.method.DeleteHash(ctx, p.ID)
	}
	return p.method.Delete(ctx, p.ID)
}

// Accessor — доступ к архивным данным.
type Accessor struct {
	policies *catalog.PolicyCatalog
	batches  *catalog.ArchiveCatalog
	backends *backend.Factory
	logger   *slog.Logger
}

// New создаёт Accessor.
func New(policies *catalog.PolicyCatalog, batches *catalog.ArchiveCatalog, backends *backend.Factory, logger *slog.Logger) *Accessor {
	return &Accessor{
		policies: policies,
		batches:  batches,
		backends: backends,
		logger:   logger.With(slog.String("component", "accessor")),
	}
}

// Policies возвращает каталог политик.
func (a *Accessor) Policies() *catalog.PolicyCatalog { return a.policies }

// Batches возвращает каталог батчей.
func (a *Accessor) Batches() *catalog.ArchiveCatalog { return a.batches }

// ReadRecord читает архив целой записи id.
func (a *Accessor) ReadRecord(ctx context.Context, tablePath string, id int64) (*Payload, error) {
	if IsControlTable(tablePath) {
		return nil, model.ErrNotFound
	}

	batch, err := a.batches.Find(ctx, tablePath, id)
	if err != nil {
		return nil, err
	}
	policy, err := a.optionalPolicy(ctx, tablePath)
	if err != nil {
		return nil, err
	}
	return a.read(ctx, batch, policy, id)
}

// ReadColumns читает колоночный архив живой записи. Батч выбирается
// по значению колонки возраста из политики таблицы.
func (a *Accessor) ReadColumns(ctx context.Context, tablePath string, id int64, liveRow map[string]any) (*Payload, error) {
	if IsControlTable(tablePath) {
		return nil, model.ErrNotFound
	}

	policy, err := a.policies.Get(ctx, tablePath)
	if err != nil {
		return nil, err
	}
	if policy.AgeDeterminingColumn == "" {
		return nil, model.ErrNotFound
	}

	v, ok := model.Lookup(liveRow, policy.AgeDeterminingColumn)
	if !ok {
		return nil, model.NewConfigurationError("в записи %s нет колонки возраста %s", tablePath, policy.AgeDeterminingColumn)
	}
	if v == nil {
		return nil, model.ErrNotFound
	}
	ts, err := model.AsTime(v)
	if err != nil {
		return nil, &model.ConfigurationError{What: fmt.Sprintf("колонка возраста %s", policy.AgeDeterminingColumn), Err: err}
	}

	batch, err := a.batches.FindByTime(ctx, tablePath, ts)
	if err != nil {
		return nil, err
	}
	return a.read(ctx, batch, policy, id)
}

// ScanAllColumnArchives ищет колоночный архив записи во всех батчах
// колонок таблицы. Используется, когда живой записи нет и колонку
// возраста взять неоткуда.
func (a *Accessor) ScanAllColumnArchives(ctx context.Context, tablePath string, id int64) (*Payload, error) {
	if IsControlTable(tablePath) {
		return nil, model.ErrNotFound
	}

	policy, err := a.policies.Get(ctx, tablePath)
	if err != nil {
		return nil, err
	}
	ix, err := a.batches.Batches(ctx, tablePath)
	if err != nil {
		return nil, err
	}

	for _, batch := range ix.ColumnBatches() {
		p, err := a.read(ctx, batch, policy, id)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, model.ErrNotFound
}

func (a *Accessor) optionalPolicy(ctx context.Context, tablePath string) (*model.ArchivePolicy, error) {
	p, err := a.policies.Get(ctx, tablePath)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// read читает payload записи id из хранилища батча.
// Сжатый батч: zlib → msgpack; упакованный без сжатия: msgpack;
// иначе — hash-режим хранилища.
func (a *Accessor) read(ctx context.Context, batch *model.ArchiveBatch, policy *model.ArchivePolicy, id int64) (*Payload, error) {
	method, err := a.backends.Open(batch, policy)
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if batch.HashMode() {
		fields, err = method.ReadHash(ctx, id)
		if err != nil {
			return nil, err
		}
	} else {
		data, err := method.Read(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, model.ErrNotFound
		}
		fields, err = codec.Decode(data, batch.Compressed)
		if err != nil {
			return nil, &model.BackendIOError{Method: batch.Method, Op: "decode", Err: err}
		}
	}
	if batch.Kind == model.KindColumn {
		fields = columnFields(fields, policy)
	}

	a.logger.Debug("Прочитан архив записи",
		slog.String("table", batch.TablePath),
		slog.Int64("batch_id", batch.ID),
		slog.Int64("id", id),
		slog.String("kind", batch.Kind.String()),
	)
	return &Payload{Batch: batch, ID: id, Fields: fields, method: method}, nil
}

// columnFields оставляет в payload колоночного архива только колонки
// из списка политики, без колонки возраста. В hash-режиме таблица архива
// повторяет исходную, и остальные её колонки содержат NULL.
func columnFields(fields map[string]any, policy *model.ArchivePolicy) map[string]any {
	if policy == nil {
		return fields
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if strings.EqualFold(k, policy.AgeDeterminingColumn) {
			continue
		}
		if len(policy.ColumnList) > 0 && !policy.HasColumn(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// Write записывает поля записи в хранилище батча в формате батча.
// Используется архиватором и тестами; каталог батчей не меняется.
func (a *Accessor) Write(ctx context.Context, batch *model.ArchiveBatch, policy *model.ArchivePolicy, id int64, fields map[string]any) error {
	method, err := a.backends.Open(batch, policy)
	if err != nil {
		return err
	}
	if batch.HashMode() {
		return method.WriteHash(ctx, id, fields)
	}
	data, err := codec.Encode(fields, batch.Compressed)
	if err != nil {
		return err
	}
	return method.Write(ctx, id, data)
}
