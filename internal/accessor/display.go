package accessor

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
)

// Display возвращает текстовый дамп архивов записи: сначала архив
// записи, затем колоночный архив (поиск по всем батчам колонок).
func (a *Accessor) Display(ctx context.Context, tablePath string, id int64) (string, error) {
	var sb strings.Builder

	p, err := a.ReadRecord(ctx, tablePath, id)
	if err := writeSection(&sb, "row", p, err); err != nil {
		return "", err
	}
	sb.WriteString("\n\n")

	p, err = a.ScanAllColumnArchives(ctx, tablePath, id)
	if err := writeSection(&sb, "column", p, err); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func writeSection(sb *strings.Builder, name string, p *Payload, err error) error {
	if errors.Is(err, model.ErrNotFound) {
		sb.WriteString("no " + name + " archive found\n")
		return nil
	}
	if err != nil {
		return err
	}

	sb.WriteString(strings.ToUpper(name[:1]) + name[1:] + " archive found " + p.Batch.Info + "\n")
	keys := make([]string, 0, len(p.Fields))
	for k := range p.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(k + ":" + model.AsString(p.Fields[k]) + "\n")
	}
	return nil
}
