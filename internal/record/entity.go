package record

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/bigkaa/goartstore/archive-module/internal/accessor"
	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
)

// Entity — одна запись таблицы.
// archivedRecord задан, если запись прочитана из архива записей;
// archivedColumn — если живая запись дополнена колоночным архивом.
type Entity struct {
	repo *Repository

	id     int64
	loaded bool
	data   map[string]any
	// changes — исходные значения изменённых колонок.
	changes map[string]any

	archivedRecord *accessor.Payload
	archivedColumn *accessor.Payload
}

func (e *Entity) load(ctx context.Context, id int64) error {
	schema := e.repo.table.Schema()
	e.Clear()

	row, err := e.repo.table.Get(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		p, err := e.repo.archive.ReadRecord(ctx, e.repo.tablePath, id)
		if err != nil {
			return err
		}
		// Форма строки — колонки живой таблицы, отсутствующие в архиве — NULL.
		row = schema.EmptyRow()
		for k, v := range schema.Normalize(p.Fields) {
			row[k] = v
		}
		row[schema.IDColumn] = id
		e.archivedRecord = p
	} else if err != nil {
		return err
	} else {
		p, err := e.repo.archive.ReadColumns(ctx, e.repo.tablePath, id, row)
		switch {
		case err == nil:
			for k, v := range schema.Normalize(p.Fields) {
				if !schema.IsID(k) {
					row[k] = v
				}
			}
			e.archivedColumn = p
		case !errors.Is(err, model.ErrNotFound):
			return err
		}
	}

	e.id = id
	e.data = row
	e.loaded = true
	return nil
}

// ID возвращает идентификатор записи (0 для ещё не созданной).
func (e *Entity) ID() int64 { return e.id }

// Exists сообщает, что запись прочитана или создана.
func (e *Entity) Exists() bool { return e.loaded }

// Get возвращает значение колонки.
func (e *Entity) Get(name string) (any, bool) {
	return model.Lookup(e.data, name)
}

// Data возвращает копию значений записи.
func (e *Entity) Data() map[string]any {
	out := make(map[string]any, len(e.data))
	for k, v := range e.data {
		out[k] = v
	}
	return out
}

// Set изменяет значение колонки. Идентификатор и вычисляемые колонки
// не изменяются.
func (e *Entity) Set(name string, value any) error {
	schema := e.repo.table.Schema()
	f, ok := schema.Field(name)
	if !ok {
		return fmt.Errorf("в таблице %s нет колонки %s", e.repo.tablePath, name)
	}
	if f.ReadOnly {
		return fmt.Errorf("колонка %s только для чтения", f.Name)
	}
	if schema.IsID(f.Name) && e.loaded {
		return fmt.Errorf("идентификатор существующей записи не изменяется")
	}
	if _, seen := e.changes[f.Name]; !seen {
		e.changes[f.Name] = e.data[f.Name]
	}
	e.data[f.Name] = value
	return nil
}

// ArchivedRecord возвращает архив записи, из которого прочитана запись.
func (e *Entity) ArchivedRecord() *accessor.Payload { return e.archivedRecord }

// ArchivedColumn возвращает колоночный архив, слитый с записью.
func (e *Entity) ArchivedColumn() *accessor.Payload { return e.archivedColumn }

// Clear сбрасывает запись, включая ссылки на архивы.
func (e *Entity) Clear() {
	e.id = 0
	e.loaded = false
	e.data = make(map[string]any)
	e.changes = make(map[string]any)
	e.archivedRecord = nil
	e.archivedColumn = nil
}

// Save создаёт новую запись или обновляет существующую.
func (e *Entity) Save(ctx context.Context) error {
	if !e.loaded {
		_, err := e.Create(ctx)
		return err
	}
	return e.Update(ctx)
}

// Create вставляет запись. Если идентификатор задан через Set,
// он вставляется явно, иначе генерируется базой данных.
func (e *Entity) Create(ctx context.Context) (int64, error) {
	if e.archivedRecord != nil {
		return 0, fmt.Errorf("%w: %s", model.ErrArchivedRecordWrite, e.repo.tablePath)
	}
	schema := e.repo.table.Schema()

	values := make(map[string]any, len(e.data))
	for k, v := range e.data {
		values[k] = v
	}
	idVal, _ := model.Lookup(values, schema.IDColumn)
	explicit, _ := model.AsInt64(idVal)

	var id int64
	var err error
	if explicit != 0 {
		id, err = e.repo.table.InsertWithIdentity(ctx, values)
	} else {
		delete(values, schema.IDColumn)
		id, err = e.repo.table.Insert(ctx, values, false)
	}
	if err != nil {
		return 0, err
	}

	e.id = id
	e.data[schema.IDColumn] = id
	e.loaded = true
	e.changes = make(map[string]any)
	return id, nil
}

// Update сохраняет изменённые колонки.
//
// При колоночном архиве колонки архива записываются отдельным UPDATE
// (некоторые СУБД не допускают обновление больших текстовых колонок
// вместе с колонками кластерного ключа), затем — остальные изменения.
// После успешных UPDATE payload колоночного архива удаляется: данные
// снова живут в таблице.
func (e *Entity) Update(ctx context.Context) error {
	return e.update(ctx, false)
}

func (e *Entity) update(ctx context.Context, force bool) error {
	if e.archivedRecord != nil {
		return fmt.Errorf("%w: %s", model.ErrArchivedRecordWrite, e.repo.tablePath)
	}
	if !e.loaded {
		return fmt.Errorf("запись %s не загружена", e.repo.tablePath)
	}

	changed := make(map[string]any, len(e.changes))
	for k, orig := range e.changes {
		if !valuesEqual(orig, e.data[k]) {
			changed[k] = e.data[k]
		}
	}
	if len(changed) == 0 && !force {
		return nil
	}

	schema := e.repo.table.Schema()
	if e.archivedColumn != nil {
		archived := make(map[string]any, len(e.archivedColumn.Fields))
		for k := range schema.Normalize(e.archivedColumn.Fields) {
			if schema.IsID(k) {
				continue
			}
			archived[k] = e.data[k]
			delete(changed, k)
		}
		if _, err := e.repo.table.Update(ctx, e.id, archived); err != nil {
			return err
		}
	}

	if len(changed) > 0 {
		if _, err := e.repo.table.Update(ctx, e.id, changed); err != nil {
			return err
		}
	}

	if e.archivedColumn != nil {
		if _, err := e.archivedColumn.Delete(ctx); err != nil {
			return err
		}
		e.repo.logger.Info("Колоночный архив записи удалён после обновления",
			slog.Int64("id", e.id),
			slog.Int64("batch_id", e.archivedColumn.Batch.ID),
		)
		e.archivedColumn = nil
	}

	e.changes = make(map[string]any)
	return nil
}

// Delete удаляет живую запись и payload'ы обоих архивов.
func (e *Entity) Delete(ctx context.Context) error {
	if !e.loaded {
		return fmt.Errorf("запись %s не загружена", e.repo.tablePath)
	}
	if _, err := e.repo.table.Delete(ctx, e.id); err != nil {
		return err
	}

	for _, p := range []*accessor.Payload{e.archivedColumn, e.archivedRecord} {
		if p == nil {
			continue
		}
		if _, err := p.Delete(ctx); err != nil {
			return err
		}
	}

	e.archivedColumn = nil
	e.archivedRecord = nil
	e.loaded = false
	return nil
}

// RemoveArchive возвращает архивные данные в живую таблицу.
// Архив записи: запись вставляется с исходным идентификатором, затем
// payload удаляется. Колоночный архив: выполняется обновление, которое
// переносит колонки в таблицу и удаляет payload.
// Возвращает число обработанных архивов.
func (e *Entity) RemoveArchive(ctx context.Context) (int, error) {
	if !e.loaded || e.id < 1 {
		return 0, nil
	}

	n := 0
	if p := e.archivedRecord; p != nil {
		e.archivedRecord = nil
		if _, err := e.repo.table.InsertWithIdentity(ctx, e.Data()); err != nil {
			e.archivedRecord = p
			return n, err
		}
		if _, err := p.Delete(ctx); err != nil {
			return n, err
		}
		e.repo.logger.Info("Запись восстановлена из архива",
			slog.Int64("id", e.id),
			slog.Int64("batch_id", p.Batch.ID),
		)
		e.changes = make(map[string]any)
		n++
	}

	if e.archivedColumn != nil {
		if err := e.update(ctx, true); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// valuesEqual сравнивает значения колонок.
func valuesEqual(a, b any) bool {
	switch x := a.(type) {
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	}
	return reflect.DeepEqual(a, b)
}
