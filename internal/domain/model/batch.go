package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind — вид архива.
type Kind byte

const (
	// KindRecord — архив целых записей по диапазону id.
	KindRecord Kind = 'R'
	// KindColumn — архив группы колонок по диапазону времени.
	KindColumn Kind = 'C'
)

// String возвращает однобуквенный код вида, как в archive_control.
func (k Kind) String() string { return string(rune(k)) }

// ParseKind разбирает вид архива из строки archive_type.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, NewConfigurationError("пустой archive_type")
	}
	switch Kind(strings.ToUpper(s)[0]) {
	case KindRecord:
		return KindRecord, nil
	case KindColumn:
		return KindColumn, nil
	}
	return 0, NewConfigurationError("неизвестный archive_type %q", s)
}

// Range — диапазон батча. Реализации: RecordRange и ColumnRange.
type Range interface {
	Kind() Kind
	// Format возвращает строковое представление "lo|hi".
	Format() string
	isRange()
}

// RecordRange — диапазон id записей [Lo, Hi].
type RecordRange struct {
	Lo, Hi int64
}

func (RecordRange) Kind() Kind { return KindRecord }
func (RecordRange) isRange()   {}

func (r RecordRange) Format() string {
	return strconv.FormatInt(r.Lo, 10) + "|" + strconv.FormatInt(r.Hi, 10)
}

// Contains проверяет попадание id в диапазон (границы включительно).
func (r RecordRange) Contains(id int64) bool { return id >= r.Lo && id <= r.Hi }

// Overlaps проверяет пересечение двух диапазонов.
func (r RecordRange) Overlaps(o RecordRange) bool { return r.Lo <= o.Hi && o.Lo <= r.Hi }

// ColumnRange — диапазон времени [Lo, Hi].
type ColumnRange struct {
	Lo, Hi time.Time
}

func (ColumnRange) Kind() Kind { return KindColumn }
func (ColumnRange) isRange()   {}

func (r ColumnRange) Format() string {
	return r.Lo.Format(time.RFC3339Nano) + "|" + r.Hi.Format(time.RFC3339Nano)
}

// Contains проверяет попадание момента времени в диапазон (границы включительно).
func (r ColumnRange) Contains(t time.Time) bool { return !t.Before(r.Lo) && !t.After(r.Hi) }

// Overlaps проверяет пересечение двух диапазонов.
func (r ColumnRange) Overlaps(o ColumnRange) bool { return !r.Lo.After(o.Hi) && !o.Lo.After(r.Hi) }

// ParseRange разбирает строку "lo|hi" для указанного вида.
// Пустая строка — диапазон не задан (nil, nil).
func ParseRange(kind Kind, s string) (Range, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, "|")
	if len(parts) != 2 {
		return nil, NewConfigurationError("некорректный диапазон %q", s)
	}

	switch kind {
	case KindRecord:
		lo, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, &ConfigurationError{What: fmt.Sprintf("некорректная нижняя граница %q", parts[0]), Err: err}
		}
		hi, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			return nil, &ConfigurationError{What: fmt.Sprintf("некорректная верхняя граница %q", parts[1]), Err: err}
		}
		return RecordRange{Lo: lo, Hi: hi}, nil
	case KindColumn:
		lo, err := ParseTime(parts[0])
		if err != nil {
			return nil, &ConfigurationError{What: "некорректная нижняя граница", Err: err}
		}
		hi, err := ParseTime(parts[1])
		if err != nil {
			return nil, &ConfigurationError{What: "некорректная верхняя граница", Err: err}
		}
		return ColumnRange{Lo: lo, Hi: hi}, nil
	}
	return nil, NewConfigurationError("неизвестный вид архива %q", kind)
}

// ArchiveBatch — управляющая запись батча архива (строка archive_control).
type ArchiveBatch struct {
	// ID — стабильный идентификатор, вторичный ключ в хранилищах.
	ID        int64
	TablePath string
	Kind      Kind
	// Range — nil, если диапазон ещё не заполнен архиватором.
	Range      Range
	Method     MethodType
	Info       string
	Compressed bool
	Squeezed   bool
}

// Key — ключ таблицы батча в каталоге.
func (b *ArchiveBatch) Key() string { return NormalizeTablePath(b.TablePath) }

// RecordRange возвращает диапазон id, если батч вида Record с заданным диапазоном.
func (b *ArchiveBatch) RecordRange() (RecordRange, bool) {
	r, ok := b.Range.(RecordRange)
	return r, ok
}

// ColumnRange возвращает диапазон времени, если батч вида Column с заданным диапазоном.
func (b *ArchiveBatch) ColumnRange() (ColumnRange, bool) {
	r, ok := b.Range.(ColumnRange)
	return r, ok
}

// HashMode — payload хранится как обычная строка, а не как blob.
func (b *ArchiveBatch) HashMode() bool { return !b.Compressed && !b.Squeezed }

// BatchFromRow строит батч из строки archive_control.
func BatchFromRow(row map[string]any) (*ArchiveBatch, error) {
	get := func(col string) any {
		v, _ := Lookup(row, col)
		return v
	}

	b := &ArchiveBatch{}
	var err error
	if b.ID, err = AsInt64(get("id")); err != nil {
		return nil, fmt.Errorf("archive_control.id: %w", err)
	}
	b.TablePath = AsString(get("table_path"))
	if b.Kind, err = ParseKind(AsString(get("archive_type"))); err != nil {
		return nil, fmt.Errorf("archive_control %d: %w", b.ID, err)
	}
	if b.Range, err = ParseRange(b.Kind, AsString(get("range"))); err != nil {
		return nil, fmt.Errorf("archive_control %d: %w", b.ID, err)
	}
	b.Method = MethodType(AsString(get("archive_method")))
	b.Info = AsString(get("archive_info"))
	if b.Compressed, err = AsBool(get("is_compressed")); err != nil {
		return nil, fmt.Errorf("archive_control %d is_compressed: %w", b.ID, err)
	}
	if b.Squeezed, err = AsBool(get("is_squeezed")); err != nil {
		return nil, fmt.Errorf("archive_control %d is_squeezed: %w", b.ID, err)
	}
	return b, nil
}

// NewBatchFromPolicy создаёт батч указанного вида, копируя метод,
// archive info и флаги из политики. Используется внешним архиватором.
func NewBatchFromPolicy(p *ArchivePolicy, kind Kind, r Range) *ArchiveBatch {
	return &ArchiveBatch{
		TablePath:  p.TablePath(),
		Kind:       kind,
		Range:      r,
		Method:     p.Method(kind),
		Info:       p.Info(kind),
		Compressed: p.Compressed(kind),
		Squeezed:   p.Squeezed(kind),
	}
}
