package table

import (
	"fmt"
	"strings"

	"github.com/bigkaa/goartstore/archive-module/internal/sqlexec"
)

// Statement — SQL-оператор с параметрами.
type Statement struct {
	SQL  string
	Args []any
}

// SelectByID строит SELECT всех колонок записи по идентификатору.
func SelectByID(d sqlexec.Dialect, s *Schema, id int64) Statement {
	return Statement{
		SQL:  fmt.Sprintf("SELECT * FROM %s WHERE %s = %s", d.QuoteIdent(s.Table), d.QuoteIdent(s.IDColumn), d.Placeholder(1)),
		Args: []any{id},
	}
}

// Insert строит INSERT для значений, присутствующих в values.
// explicitID — вставить идентификатор из values (иначе он генерируется БД).
// Возвращает идентификатор через RETURNING.
func Insert(d sqlexec.Dialect, s *Schema, values map[string]any, explicitID bool) (Statement, error) {
	var cols, ph []string
	var args []any

	for _, f := range s.Fields {
		if f.ReadOnly {
			continue
		}
		v, ok := lookup(values, f.Name)
		if !ok {
			continue
		}
		if s.IsID(f.Name) && !explicitID {
			continue
		}
		args = append(args, v)
		cols = append(cols, d.QuoteIdent(f.Name))
		ph = append(ph, d.Placeholder(len(args)))
	}
	if err := checkUnknown(s, values); err != nil {
		return Statement{}, err
	}

	overriding := ""
	if explicitID && s.Identity && d.OverridingIdentity() != "" {
		overriding = " " + d.OverridingIdentity()
	}

	var sql string
	if len(cols) == 0 {
		sql = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", d.QuoteIdent(s.Table), d.QuoteIdent(s.IDColumn))
	} else {
		sql = fmt.Sprintf("INSERT INTO %s (%s)%s VALUES (%s) RETURNING %s",
			d.QuoteIdent(s.Table), strings.Join(cols, ", "), overriding, strings.Join(ph, ", "), d.QuoteIdent(s.IDColumn))
	}
	return Statement{SQL: sql, Args: args}, nil
}

// Update строит UPDATE для подмножества колонок. Порядок колонок — порядок схемы.
// Идентификатор и вычисляемые колонки не обновляются.
// Возвращает пустой Statement, если обновлять нечего.
func Update(d sqlexec.Dialect, s *Schema, id int64, values map[string]any) (Statement, error) {
	if err := checkUnknown(s, values); err != nil {
		return Statement{}, err
	}

	var sets []string
	var args []any
	for _, f := range s.Fields {
		if f.ReadOnly || s.IsID(f.Name) {
			continue
		}
		v, ok := lookup(values, f.Name)
		if !ok {
			continue
		}
		args = append(args, v)
		sets = append(sets, d.QuoteIdent(f.Name)+" = "+d.Placeholder(len(args)))
	}
	if len(sets) == 0 {
		return Statement{}, nil
	}

	args = append(args, id)
	return Statement{
		SQL: fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
			d.QuoteIdent(s.Table), strings.Join(sets, ", "), d.QuoteIdent(s.IDColumn), d.Placeholder(len(args))),
		Args: args,
	}, nil
}

// Delete строит DELETE записи по идентификатору.
func Delete(d sqlexec.Dialect, s *Schema, id int64) Statement {
	return Statement{
		SQL:  fmt.Sprintf("DELETE FROM %s WHERE %s = %s", d.QuoteIdent(s.Table), d.QuoteIdent(s.IDColumn), d.Placeholder(1)),
		Args: []any{id},
	}
}

func lookup(values map[string]any, name string) (any, bool) {
	if v, ok := values[name]; ok {
		return v, true
	}
	for k, v := range values {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

func checkUnknown(s *Schema, values map[string]any) error {
	for k := range values {
		if !s.Has(k) {
			return fmt.Errorf("в таблице %s нет колонки %s", s.Table, k)
		}
	}
	return nil
}
