// archive.go — обработчики просмотра и разархивирования записей.
package handlers

import (
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/archive-module/internal/accessor"
	apierrors "github.com/bigkaa/goartstore/archive-module/internal/api/errors"
	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
	"github.com/bigkaa/goartstore/archive-module/internal/record"
	"github.com/bigkaa/goartstore/archive-module/internal/sqlexec"
	"github.com/bigkaa/goartstore/archive-module/internal/table"
)

// ArchiveHandler — обработчики архива записей.
type ArchiveHandler struct {
	archive *accessor.Accessor
	locator sqlexec.Locator
	loader  *table.Loader
	logger  *slog.Logger
}

// NewArchiveHandler создаёт обработчики архива.
func NewArchiveHandler(archive *accessor.Accessor, locator sqlexec.Locator, loader *table.Loader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		archive: archive,
		locator: locator,
		loader:  loader,
		logger:  logger.With(slog.String("component", "archive_handler")),
	}
}

// batchResponse — описание батча в ответах API.
type batchResponse struct {
	ID         int64  `json:"id"`
	TablePath  string `json:"table_path"`
	Kind       string `json:"kind"`
	Range      string `json:"range"`
	Method     string `json:"method"`
	Info       string `json:"info"`
	Compressed bool   `json:"compressed"`
	Squeezed   bool   `json:"squeezed"`
}

// recordResponse — запись с учётом архива.
type recordResponse struct {
	TablePath      string         `json:"table_path"`
	ID             int64          `json:"id"`
	Data           map[string]any `json:"data"`
	ArchivedRecord *batchResponse `json:"archived_record"`
	ArchivedColumn *batchResponse `json:"archived_column"`
}

// unarchiveResponse — результат разархивирования.
type unarchiveResponse struct {
	TablePath string `json:"table_path"`
	ID        int64  `json:"id"`
	Restored  int    `json:"restored"`
}

// boundsResponse — общие границы диапазонов батчей таблицы.
type boundsResponse struct {
	Lo string `json:"lo"`
	Hi string `json:"hi"`
}

// catalogResponse — батчи таблицы.
type catalogResponse struct {
	TablePath    string          `json:"table_path"`
	Batches      []batchResponse `json:"batches"`
	RecordBounds *boundsResponse `json:"record_bounds"`
	ColumnBounds *boundsResponse `json:"column_bounds"`
	Overlaps     int             `json:"overlaps"`
}

// tableSummary — таблица с политикой и/или батчами.
type tableSummary struct {
	TablePath  string `json:"table_path"`
	HasPolicy  bool   `json:"has_policy"`
	HasArchive bool   `json:"has_archive"`
}

// catalogListResponse — список таблиц.
type catalogListResponse struct {
	Items []tableSummary `json:"items"`
	Total int            `json:"total"`
}

// refreshResponse — результат перечитывания каталогов.
type refreshResponse struct {
	Policies int `json:"policies"`
	Tables   int `json:"tables"`
}

func toBatchResponse(b *model.ArchiveBatch) *batchResponse {
	if b == nil {
		return nil
	}
	resp := &batchResponse{
		ID:         b.ID,
		TablePath:  b.TablePath,
		Kind:       b.Kind.String(),
		Method:     string(b.Method),
		Info:       b.Info,
		Compressed: b.Compressed,
		Squeezed:   b.Squeezed,
	}
	if b.Range != nil {
		resp.Range = b.Range.Format()
	}
	return resp
}

func payloadBatch(p *accessor.Payload) *batchResponse {
	if p == nil {
		return nil
	}
	return toBatchResponse(p.Batch)
}

// GetRecord — GET /api/v1/archive/{table}/{id}.
// Возвращает запись, собранную из живой таблицы и архива.
func (h *ArchiveHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	tablePath, id, ok := recordParams(w, r)
	if !ok {
		return
	}

	e, err := h.load(r, tablePath, id)
	if err != nil {
		h.writeError(w, "Ошибка чтения записи", tablePath, id, err)
		return
	}

	writeJSON(w, http.StatusOK, recordResponse{
		TablePath:      tablePath,
		ID:             id,
		Data:           e.Data(),
		ArchivedRecord: payloadBatch(e.ArchivedRecord()),
		ArchivedColumn: payloadBatch(e.ArchivedColumn()),
	})
}

// DisplayRecord — GET /api/v1/archive/{table}/{id}/display.
// Текстовый дамп архива записи и колоночного архива.
func (h *ArchiveHandler) DisplayRecord(w http.ResponseWriter, r *http.Request) {
	tablePath, id, ok := recordParams(w, r)
	if !ok {
		return
	}

	text, err := h.archive.Display(r.Context(), tablePath, id)
	if err != nil {
		h.writeError(w, "Ошибка чтения архива", tablePath, id, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

// UnarchiveRecord — POST /api/v1/archive/{table}/{id}/unarchive.
// Возвращает архивные данные записи в живую таблицу.
func (h *ArchiveHandler) UnarchiveRecord(w http.ResponseWriter, r *http.Request) {
	tablePath, id, ok := recordParams(w, r)
	if !ok {
		return
	}

	e, err := h.load(r, tablePath, id)
	if err != nil {
		h.writeError(w, "Ошибка чтения записи", tablePath, id, err)
		return
	}

	n, err := e.RemoveArchive(r.Context())
	if err != nil {
		h.writeError(w, "Ошибка разархивирования записи", tablePath, id, err)
		return
	}

	h.logger.Info("Запись разархивирована",
		slog.String("table", tablePath),
		slog.Int64("id", id),
		slog.Int("restored", n),
	)
	writeJSON(w, http.StatusOK, unarchiveResponse{TablePath: tablePath, ID: id, Restored: n})
}

// ListTables — GET /api/v1/catalog.
// Таблицы, у которых есть политика или батчи архива.
func (h *ArchiveHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	policies, err := h.archive.Policies().All(r.Context())
	if err != nil {
		h.writeError(w, "Ошибка чтения политик", "", 0, err)
		return
	}
	tables, err := h.archive.Batches().Tables(r.Context())
	if err != nil {
		h.writeError(w, "Ошибка чтения каталога", "", 0, err)
		return
	}

	byKey := make(map[string]*tableSummary)
	for _, p := range policies {
		byKey[p.Key()] = &tableSummary{TablePath: p.TablePath(), HasPolicy: true}
	}
	for _, t := range tables {
		key := model.NormalizeTablePath(t)
		if s, ok := byKey[key]; ok {
			s.HasArchive = true
			continue
		}
		byKey[key] = &tableSummary{TablePath: t, HasArchive: true}
	}

	items := make([]tableSummary, 0, len(byKey))
	for _, s := range byKey {
		items = append(items, *s)
	}
	sort.Slice(items, func(i, j int) bool {
		return model.NormalizeTablePath(items[i].TablePath) < model.NormalizeTablePath(items[j].TablePath)
	})

	writeJSON(w, http.StatusOK, catalogListResponse{Items: items, Total: len(items)})
}

// RefreshCatalog — POST /api/v1/refresh.
// Перечитывает политики и управляющую таблицу без ожидания TTL и
// сбрасывает кэш схем таблиц.
func (h *ArchiveHandler) RefreshCatalog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.archive.Policies().Refresh(ctx); err != nil {
		h.writeError(w, "Ошибка перечитывания политик", "", 0, err)
		return
	}
	if err := h.archive.Batches().Refresh(ctx); err != nil {
		h.writeError(w, "Ошибка перечитывания каталога", "", 0, err)
		return
	}
	h.loader.Invalidate()

	policies, err := h.archive.Policies().All(ctx)
	if err != nil {
		h.writeError(w, "Ошибка чтения политик", "", 0, err)
		return
	}
	tables, err := h.archive.Batches().Tables(ctx)
	if err != nil {
		h.writeError(w, "Ошибка чтения каталога", "", 0, err)
		return
	}

	h.logger.Info("Каталоги архива перечитаны",
		slog.Int("policies", len(policies)),
		slog.Int("tables", len(tables)),
	)
	writeJSON(w, http.StatusOK, refreshResponse{Policies: len(policies), Tables: len(tables)})
}

// GetCatalog — GET /api/v1/catalog/{table}.
// Батчи таблицы с общими границами и числом пересечений.
func (h *ArchiveHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	tablePath := chi.URLParam(r, "table")

	ix, err := h.archive.Batches().Batches(r.Context(), tablePath)
	if err != nil {
		h.writeError(w, "Ошибка чтения каталога", tablePath, 0, err)
		return
	}

	resp := catalogResponse{
		TablePath: ix.TablePath(),
		Overlaps:  ix.Overlaps(),
	}
	for _, b := range ix.Batches() {
		resp.Batches = append(resp.Batches, *toBatchResponse(b))
	}
	if rr, ok := ix.RecordBounds(); ok {
		resp.RecordBounds = &boundsResponse{
			Lo: strconv.FormatInt(rr.Lo, 10),
			Hi: strconv.FormatInt(rr.Hi, 10),
		}
	}
	if cr, ok := ix.ColumnBounds(); ok {
		resp.ColumnBounds = &boundsResponse{
			Lo: model.AsString(cr.Lo),
			Hi: model.AsString(cr.Hi),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// load открывает таблицу и загружает запись.
func (h *ArchiveHandler) load(r *http.Request, tablePath string, id int64) (*record.Entity, error) {
	repo, err := record.Open(r.Context(), tablePath, h.locator, h.loader, h.archive, h.logger)
	if err != nil {
		return nil, err
	}
	return repo.Load(r.Context(), id)
}

// writeError пишет ответ ошибки; серверные ошибки логируются.
func (h *ArchiveHandler) writeError(w http.ResponseWriter, msg, tablePath string, id int64, err error) {
	status := apierrors.FromDomain(w, err)
	if status < http.StatusInternalServerError {
		return
	}
	h.logger.Error(msg,
		slog.String("table", tablePath),
		slog.Int64("id", id),
		slog.String("error", err.Error()),
	)
}

// recordParams извлекает путь таблицы и id записи из URL.
func recordParams(w http.ResponseWriter, r *http.Request) (string, int64, bool) {
	tablePath := chi.URLParam(r, "table")
	if _, _, _, err := model.SplitTablePath(tablePath); err != nil {
		apierrors.ValidationError(w, "Некорректный путь таблицы: ожидается server.database.table")
		return "", 0, false
	}
	if accessor.IsControlTable(tablePath) {
		apierrors.ValidationError(w, "Управляющие таблицы архива не архивируются")
		return "", 0, false
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		apierrors.ValidationError(w, "Некорректный id записи: ожидается положительное целое число")
		return "", 0, false
	}
	return tablePath, id, true
}
