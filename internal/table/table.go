package table

import (
	"context"
	"fmt"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
	"github.com/bigkaa/goartstore/archive-module/internal/sqlexec"
)

// Table — динамический CRUD одной таблицы по её схеме.
// Не обращается к архиву: слияние с архивными данными — задача record.Entity.
type Table struct {
	ex     sqlexec.Executor
	schema *Schema
}

// New создаёт Table для исполнителя и схемы.
func New(ex sqlexec.Executor, schema *Schema) *Table {
	return &Table{ex: ex, schema: schema}
}

// Schema возвращает схему таблицы.
func (t *Table) Schema() *Schema { return t.schema }

// Executor возвращает исполнитель таблицы.
func (t *Table) Executor() sqlexec.Executor { return t.ex }

// Get читает запись по идентификатору. Возвращает model.ErrNotFound,
// если записи нет.
func (t *Table) Get(ctx context.Context, id int64) (map[string]any, error) {
	st := SelectByID(t.ex.Dialect(), t.schema, id)
	res, err := t.ex.Query(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s id=%d: %w", t.schema.Table, id, err)
	}
	if len(res.Rows) == 0 {
		return nil, model.ErrNotFound
	}
	return t.schema.Normalize(res.Rows[0]), nil
}

// Insert вставляет запись и возвращает её идентификатор.
func (t *Table) Insert(ctx context.Context, values map[string]any, explicitID bool) (int64, error) {
	st, err := Insert(t.ex.Dialect(), t.schema, values, explicitID)
	if err != nil {
		return 0, err
	}
	v, err := sqlexec.Scalar(ctx, t.ex, st.SQL, st.Args...)
	if err != nil {
		return 0, fmt.Errorf("ошибка вставки в %s: %w", t.schema.Table, err)
	}
	id, err := model.AsInt64(v)
	if err != nil {
		return 0, fmt.Errorf("некорректный идентификатор новой записи %s: %w", t.schema.Table, err)
	}
	return id, nil
}

// InsertWithIdentity вставляет запись с явным значением identity-колонки.
func (t *Table) InsertWithIdentity(ctx context.Context, values map[string]any) (int64, error) {
	return t.Insert(ctx, values, true)
}

// Update обновляет подмножество колонок записи. Возвращает число строк.
func (t *Table) Update(ctx context.Context, id int64, values map[string]any) (int64, error) {
	st, err := Update(t.ex.Dialect(), t.schema, id, values)
	if err != nil {
		return 0, err
	}
	if st.SQL == "" {
		return 0, nil
	}
	n, err := t.ex.Exec(ctx, st.SQL, st.Args...)
	if err != nil {
		return 0, fmt.Errorf("ошибка обновления %s id=%d: %w", t.schema.Table, id, err)
	}
	return n, nil
}

// Delete удаляет запись. Возвращает число удалённых строк (0 или 1).
func (t *Table) Delete(ctx context.Context, id int64) (int64, error) {
	st := Delete(t.ex.Dialect(), t.schema, id)
	n, err := t.ex.Exec(ctx, st.SQL, st.Args...)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления %s id=%d: %w", t.schema.Table, id, err)
	}
	return n, nil
}
