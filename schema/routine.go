package schema

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/Konsultn-Engineering/pgprovider/dialect"
)

type Mode string

const (
	ModeIn    Mode = "IN"
	ModeOut   Mode = "OUT"
	ModeInOut Mode = "INOUT"
)

// Parameter is one declared argument of a stored routine.
type Parameter struct {
	Name     string
	DataType string
	Mode     Mode
	Required bool
}

// Bindable reports whether the parameter can be passed by name in a call.
func (p Parameter) Bindable() bool {
	return p.Name != "" && p.Mode != ModeOut
}

// Querier runs sql and hands the rows to read before closing them.
type Querier interface {
	QueryRows(ctx context.Context, sql string, args []any, read func(pgx.Rows) error) error
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// RoutineParamsQuery returns the catalog query listing the parameters of a
// "schema.name" routine in declaration order. Overloads share a name and are
// matched through their specific_name suffix.
func RoutineParamsQuery(routine string) (string, []any, error) {
	schemaName, name := dialect.SplitRoutine(routine)
	return psql.
		Select(
			"t.parameter_name",
			"t.udt_name",
			"t.parameter_mode",
			"case when t.parameter_default is null and t.parameter_mode in ('IN','INOUT') then true else false end as required",
		).
		From("information_schema.parameters t").
		Join("pg_namespace tpn on tpn.nspname = t.udt_schema").
		Join("pg_type tp on (tp.typnamespace = tpn.oid and tp.typname = t.udt_name)").
		Where(sq.Eq{"t.specific_schema": schemaName}).
		Where(sq.Expr("t.specific_name ~ ?", "^"+name+"_[0-9]+$")).
		OrderBy("t.ordinal_position").
		ToSql()
}

// RoutineParams reads the parameter list of routine. A routine without
// parameters, or one the catalog does not know, yields an empty list.
func RoutineParams(ctx context.Context, q Querier, routine string) ([]Parameter, error) {
	sql, args, err := RoutineParamsQuery(routine)
	if err != nil {
		return nil, fmt.Errorf("build routine params query: %w", err)
	}
	params := make([]Parameter, 0)
	err = q.QueryRows(ctx, sql, args, func(rows pgx.Rows) error {
		for rows.Next() {
			var (
				name, udt *string
				mode      *string
				p         Parameter
			)
			if err := rows.Scan(&name, &udt, &mode, &p.Required); err != nil {
				return fmt.Errorf("scan routine param: %w", err)
			}
			if name != nil {
				p.Name = *name
			}
			if udt != nil {
				p.DataType = *udt
			}
			p.Mode = ModeIn
			if mode != nil {
				p.Mode = Mode(*mode)
			}
			params = append(params, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query routine params of %s: %w", routine, err)
	}
	return params, nil
}
