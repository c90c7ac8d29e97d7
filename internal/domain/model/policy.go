// Пакет model — доменные типы подсистемы архивирования:
// политика архивирования таблицы, управляющая запись батча и диапазоны.
package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MethodType — тип метода архивирования (хранилища payload).
type MethodType string

const (
	// MethodFileSystem — файловое хранилище с шардированием по id.
	MethodFileSystem MethodType = "FileSystem"
	// MethodSQL — побочная таблица в реляционной БД.
	MethodSQL MethodType = "Sql"
)

// ArchivePolicy — политика архивирования одной таблицы (строка archive_config).
type ArchivePolicy struct {
	ID           int64
	ServerName   string
	DatabaseName string
	TableName    string

	// IDColumn — имя колонки-идентификатора записи.
	IDColumn string
	// AgeDeterminingColumn — колонка, по которой выбирается батч колоночного архива.
	AgeDeterminingColumn string

	RecordMethod MethodType
	ColumnMethod MethodType
	RecordInfo   string
	ColumnInfo   string

	// Пороги в днях, 0 — архивирование выключено.
	RecordAgeDays int
	ColumnAgeDays int

	// Даты отключения архивирования, нулевое время — не отключено.
	RecordDisabled time.Time
	ColumnDisabled time.Time

	// ColumnList — архивируемые колонки.
	ColumnList []string

	RecordCompressed bool
	ColumnCompressed bool
	RecordSqueezed   bool
	ColumnSqueezed   bool

	ArchiveCount int64
}

// TablePath возвращает полный путь таблицы: server.database.table.
func (p *ArchivePolicy) TablePath() string {
	return JoinTablePath(p.ServerName, p.DatabaseName, p.TableName)
}

// Key — ключ политики в каталоге (путь в нижнем регистре).
func (p *ArchivePolicy) Key() string {
	return NormalizeTablePath(p.TablePath())
}

// IsRecordDisabled — архивирование записей отключено.
func (p *ArchivePolicy) IsRecordDisabled() bool { return !p.RecordDisabled.IsZero() }

// IsColumnDisabled — архивирование колонок отключено.
func (p *ArchivePolicy) IsColumnDisabled() bool { return !p.ColumnDisabled.IsZero() }

// RecordCutoff возвращает границу архивирования записей (now − порог).
// Нулевое время — архивирование записей выключено.
func (p *ArchivePolicy) RecordCutoff(now time.Time) time.Time {
	return cutoff(now, p.RecordAgeDays)
}

// ColumnCutoff возвращает границу архивирования колонок (now − порог).
func (p *ArchivePolicy) ColumnCutoff(now time.Time) time.Time {
	return cutoff(now, p.ColumnAgeDays)
}

func cutoff(now time.Time, days int) time.Time {
	if days == 0 {
		return time.Time{}
	}
	return now.AddDate(0, 0, -days)
}

// Method возвращает тип метода архивирования для вида архива.
func (p *ArchivePolicy) Method(kind Kind) MethodType {
	if kind == KindColumn {
		return p.ColumnMethod
	}
	return p.RecordMethod
}

// Info возвращает archive info для вида архива.
func (p *ArchivePolicy) Info(kind Kind) string {
	if kind == KindColumn {
		return p.ColumnInfo
	}
	return p.RecordInfo
}

// Compressed — сжимается ли payload указанного вида.
func (p *ArchivePolicy) Compressed(kind Kind) bool {
	if kind == KindColumn {
		return p.ColumnCompressed
	}
	return p.RecordCompressed
}

// Squeezed — упаковываются ли колонки указанного вида в одно значение.
func (p *ArchivePolicy) Squeezed(kind Kind) bool {
	if kind == KindColumn {
		return p.ColumnSqueezed
	}
	return p.RecordSqueezed
}

// HasColumn проверяет, входит ли колонка в список архивируемых.
func (p *ArchivePolicy) HasColumn(name string) bool {
	for _, c := range p.ColumnList {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// PolicyFromRow строит политику из строки таблицы archive_config.
func PolicyFromRow(row map[string]any) (*ArchivePolicy, error) {
	p := &ArchivePolicy{}
	var err error

	get := func(col string) any {
		v, _ := Lookup(row, col)
		return v
	}

	if p.ID, err = AsInt64(get("id")); err != nil {
		return nil, fmt.Errorf("archive_config.id: %w", err)
	}
	p.ServerName = AsString(get("server_name"))
	p.DatabaseName = AsString(get("database_name"))
	p.TableName = AsString(get("table_name"))
	p.IDColumn = AsString(get("id_column"))
	p.AgeDeterminingColumn = AsString(get("age_determining_column"))
	p.RecordMethod = MethodType(AsString(get("record_archive_method")))
	p.ColumnMethod = MethodType(AsString(get("column_archive_method")))
	p.RecordInfo = AsString(get("record_archive_info"))
	p.ColumnInfo = AsString(get("column_archive_info"))

	recordAge, err := AsInt64(get("record_age"))
	if err != nil {
		return nil, fmt.Errorf("archive_config.record_age: %w", err)
	}
	p.RecordAgeDays = int(recordAge)
	columnAge, err := AsInt64(get("column_age"))
	if err != nil {
		return nil, fmt.Errorf("archive_config.column_age: %w", err)
	}
	p.ColumnAgeDays = int(columnAge)

	if p.RecordDisabled, err = AsTime(get("record_disabled")); err != nil {
		return nil, fmt.Errorf("archive_config.record_disabled: %w", err)
	}
	if p.ColumnDisabled, err = AsTime(get("column_disabled")); err != nil {
		return nil, fmt.Errorf("archive_config.column_disabled: %w", err)
	}

	p.ColumnList = SplitColumnList(AsString(get("column_list")))

	compressed := strings.ToUpper(AsString(get("is_compressed")))
	p.RecordCompressed = strings.Contains(compressed, "R")
	p.ColumnCompressed = strings.Contains(compressed, "C")
	squeezed := strings.ToUpper(AsString(get("is_squeezed")))
	p.RecordSqueezed = strings.Contains(squeezed, "R")
	p.ColumnSqueezed = strings.Contains(squeezed, "C")

	if p.ArchiveCount, err = AsInt64(get("archive_count")); err != nil {
		return nil, fmt.Errorf("archive_config.archive_count: %w", err)
	}

	if p.TableName == "" {
		return nil, NewConfigurationError("политика %d без имени таблицы", p.ID)
	}
	return p, nil
}

// SplitColumnList разбирает список колонок, разделённых пробелами и запятыми.
func SplitColumnList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
}

// JoinTablePath собирает путь таблицы из непустых частей через точку.
func JoinTablePath(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ".")
}

// NormalizeTablePath приводит путь таблицы к ключу каталога.
func NormalizeTablePath(path string) string {
	return strings.ToLower(strings.TrimSpace(path))
}

var fileNameUnsafe = regexp.MustCompile(`[:\\/"']`)

// ConvertTablePathToFileName заменяет символы, недопустимые в имени файла.
func ConvertTablePathToFileName(path string) string {
	return fileNameUnsafe.ReplaceAllString(path, "_")
}

// SplitTablePath разбирает путь "server.database.table". Имя таблицы
// может содержать точки (схема БД): всё после второй точки — таблица.
func SplitTablePath(path string) (server, database, table string, err error) {
	parts := strings.SplitN(strings.TrimSpace(path), ".", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", NewConfigurationError("некорректный путь таблицы %q: ожидается server.database.table", path)
	}
	return parts[0], parts[1], parts[2], nil
}
