// Пакет backend — хранилища архивных payload'ов (archive methods).
//
// Каждый батч архива хранит свои данные в одном хранилище, которое
// определяется archive_method и archive_info батча:
//   - FileSystem — файлы в дереве каталогов, разбитом по id;
//   - Sql — вспомогательная таблица (blob) или зеркальная таблица (hash).
package backend

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
	"github.com/bigkaa/goartstore/archive-module/internal/sqlexec"
	"github.com/bigkaa/goartstore/archive-module/internal/table"
)

// Prometheus-метрики операций с хранилищами.
var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ar_backend_operations_total",
			Help: "Операции с хранилищами архива по методу, операции и результату.",
		},
		[]string{"method", "op", "result"},
	)
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ar_backend_operation_duration_seconds",
			Help:    "Длительность операций с хранилищами архива.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "op"},
	)
)

// Method — хранилище payload'ов одного батча.
//
// Blob-режим (Write/Read/Delete) хранит непрозрачные байты.
// Hash-режим (WriteHash/ReadHash/DeleteHash) хранит строку как набор полей
// и используется, когда батч не сжат и не упакован.
// Read и ReadHash возвращают model.ErrNotFound, если payload'а нет.
// Delete и DeleteHash возвращают число удалённых payload'ов (0 или 1)
// и не считают отсутствие ошибкой.
type Method interface {
	Write(ctx context.Context, id int64, data []byte) error
	Read(ctx context.Context, id int64) ([]byte, error)
	Delete(ctx context.Context, id int64) (int64, error)

	WriteHash(ctx context.Context, id int64, fields map[string]any) error
	ReadHash(ctx context.Context, id int64) (map[string]any, error)
	DeleteHash(ctx context.Context, id int64) (int64, error)
}

// Factory создаёт хранилища для батчей.
type Factory struct {
	locator sqlexec.Locator
	loader  *table.Loader
}

// NewFactory создаёт фабрику. locator находит базы данных Sql-хранилищ,
// loader кэширует схемы зеркальных таблиц hash-режима.
func NewFactory(locator sqlexec.Locator, loader *table.Loader) *Factory {
	return &Factory{locator: locator, loader: loader}
}

// Open возвращает хранилище батча. policy нужна hash-режиму Sql
// (колонка-идентификатор и колонка возраста) и может быть nil для blob-режима.
func (f *Factory) Open(batch *model.ArchiveBatch, policy *model.ArchivePolicy) (Method, error) {
	switch batch.Method {
	case model.MethodFileSystem:
		return NewFileSystem(batch), nil
	case model.MethodSQL:
		return NewSQL(batch, policy, f.locator, f.loader)
	}
	return nil, model.NewConfigurationError("неизвестный метод архивирования %q батча %d", batch.Method, batch.ID)
}

// observe фиксирует результат операции в метриках и оборачивает ошибку
// ввода-вывода в BackendIOError. Отсутствие данных и ошибки конфигурации
// проходят без обёртки.
func observe(method model.MethodType, op string, start time.Time, err error) error {
	operationDuration.WithLabelValues(string(method), op).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		operationsTotal.WithLabelValues(string(method), op, "ok").Inc()
		return nil
	case errors.Is(err, model.ErrNotFound):
		operationsTotal.WithLabelValues(string(method), op, "not_found").Inc()
		return err
	case model.IsConfigurationError(err):
		operationsTotal.WithLabelValues(string(method), op, "error").Inc()
		return err
	}
	operationsTotal.WithLabelValues(string(method), op, "error").Inc()
	var ioErr *model.BackendIOError
	if errors.As(err, &ioErr) {
		return err
	}
	return &model.BackendIOError{Method: method, Op: op, Err: err}
}
