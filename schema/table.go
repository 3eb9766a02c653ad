package schema

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/Konsultn-Engineering/pgprovider/cache"
)

// Table is the commented description of a relation.
type Table struct {
	Schema  string
	Name    string
	Comment string
	Columns []ColumnComment
}

type ColumnComment struct {
	Name    string
	Comment string
}

// Column returns the comment of the named column, if any.
func (t *Table) Column(name string) (string, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c.Comment, c.Comment != ""
		}
	}
	return "", false
}

// TableQuery returns the catalog query for a table and its column comments.
// An empty schema matches the table in any schema.
func TableQuery(schemaName, table string) (string, []any, error) {
	b := psql.
		Select(
			"n.nspname",
			"c.relname",
			"coalesce(obj_description(c.oid, 'pg_class'), '')",
			"a.attname",
			"coalesce(col_description(c.oid, a.attnum), '')",
		).
		From("pg_catalog.pg_class c").
		Join("pg_catalog.pg_namespace n on n.oid = c.relnamespace").
		Join("pg_catalog.pg_attribute a on a.attrelid = c.oid and a.attnum > 0 and not a.attisdropped").
		Where(sq.Eq{"c.relname": table})
	if schemaName != "" {
		b = b.Where(sq.Eq{"n.nspname": schemaName})
	}
	return b.OrderBy("n.nspname", "a.attnum").ToSql()
}

// Catalog reads table metadata and keeps it in a bounded cache.
type Catalog struct {
	q      Querier
	tables cache.Store[string, *Table]
}

func NewCatalog(q Querier, size int) *Catalog {
	return &Catalog{
		q:      q,
		tables: cache.NewLRU[string, *Table](size),
	}
}

// Table returns the metadata of schema.table, or nil when the catalog does
// not know it.
func (c *Catalog) Table(ctx context.Context, schemaName, table string) (*Table, error) {
	key := schemaName + "." + table
	if t, ok := c.tables.Get(key); ok {
		return t, nil
	}

	sql, args, err := TableQuery(schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("build table query: %w", err)
	}
	var t *Table
	err = c.q.QueryRows(ctx, sql, args, func(rows pgx.Rows) error {
		for rows.Next() {
			var nsp, rel, comment, col, colComment string
			if err := rows.Scan(&nsp, &rel, &comment, &col, &colComment); err != nil {
				return fmt.Errorf("scan table: %w", err)
			}
			if t == nil {
				t = &Table{Schema: nsp, Name: rel, Comment: comment}
			}
			// Without a schema the first one found wins.
			if nsp != t.Schema {
				continue
			}
			t.Columns = append(t.Columns, ColumnComment{Name: col, Comment: colComment})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query table %s: %w", key, err)
	}

	c.tables.Set(key, t)
	return t, nil
}

// Reset drops every cached table.
func (c *Catalog) Reset() {
	c.tables.Reset()
}
