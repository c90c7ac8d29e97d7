// Пакет record — запись живой таблицы с учётом архива.
//
// Repository связывает живую таблицу с архивом: загрузка сливает архивные
// данные с живой строкой, обновление разделяется на два UPDATE при
// наличии колоночного архива, удаление и разархивирование очищают
// payload'ы в хранилищах.
package record

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goartstore/archive-module/internal/accessor"
	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
	"github.com/bigkaa/goartstore/archive-module/internal/sqlexec"
	"github.com/bigkaa/goartstore/archive-module/internal/table"
)

// Repository — доступ к записям одной таблицы.
type Repository struct {
	tablePath string
	table     *table.Table
	archive   *accessor.Accessor
	logger    *slog.Logger
}

// Open создаёт Repository для таблицы "server.database.table".
// Колонка-идентификатор берётся из политики таблицы, без политики — "id".
func Open(
	ctx context.Context,
	tablePath string,
	locator sqlexec.Locator,
	loader *table.Loader,
	archive *accessor.Accessor,
	logger *slog.Logger,
) (*Repository, error) {
	server, database, tableName, err := model.SplitTablePath(tablePath)
	if err != nil {
		return nil, err
	}

	idColumn := "id"
	policy, err := archive.Policies().Get(ctx, tablePath)
	switch {
	case err == nil:
		if policy.IDColumn != "" {
			idColumn = policy.IDColumn
		}
	case !errors.Is(err, model.ErrNotFound):
		return nil, err
	}

	ex, err := locator.Locate(ctx, server, database)
	if err != nil {
		return nil, err
	}
	schema, err := loader.Load(ctx, ex, tableName, idColumn)
	if err != nil {
		return nil, fmt.Errorf("таблица %s: %w", tablePath, err)
	}

	return &Repository{
		tablePath: tablePath,
		table:     table.New(ex, schema),
		archive:   archive,
		logger:    logger.With(slog.String("component", "record"), slog.String("table", tablePath)),
	}, nil
}

// TablePath возвращает путь таблицы.
func (r *Repository) TablePath() string { return r.tablePath }

// Schema возвращает схему живой таблицы.
func (r *Repository) Schema() *table.Schema { return r.table.Schema() }

// New возвращает пустую запись для создания.
func (r *Repository) New() *Entity {
	return &Entity{repo: r, data: make(map[string]any), changes: make(map[string]any)}
}

// Load читает запись id. Сначала читается живая таблица; если записи
// там нет, ищется архив записи. Найденная живая запись дополняется
// колоночным архивом. Возвращает model.ErrNotFound, если записи нет
// ни в таблице, ни в архиве.
func (r *Repository) Load(ctx context.Context, id int64) (*Entity, error) {
	e := r.New()
	if err := e.load(ctx, id); err != nil {
		return nil, err
	}
	return e, nil
}
