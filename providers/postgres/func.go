package postgres

import (
	"context"
	"fmt"

	"github.com/Konsultn-Engineering/pgprovider/connector"
	"github.com/Konsultn-Engineering/pgprovider/database"
	"github.com/Konsultn-Engineering/pgprovider/dberror"
	"github.com/Konsultn-Engineering/pgprovider/query"
	"github.com/Konsultn-Engineering/pgprovider/schema"
)

const defaultCompletionLimit = 50

// Func calls the stored routine schema.name with params bound by parameter
// name. The routine's signature is read from the catalog once per provider.
func (p *Provider) Func(ctx context.Context, conn *connector.Conn, routine string, params map[string]any) (*Result, error) {
	timing := dberror.NewTiming()
	debug := p.newDebug(routine, params, nil, timing)

	if !p.dialect.ValidRoutine(routine) {
		return nil, dberror.Validation(fmt.Sprintf("invalid routine name %q", routine), debug)
	}

	done := timing.Track("signature")
	sig, err := p.signature(ctx, conn, routine)
	done()
	if err != nil {
		return nil, p.execError(ctx, err, debug)
	}

	call, missing := query.BuildCallWith(p.dialect, routine, sig, params)
	if debug != nil {
		debug.ExecQuery = call.SQL
		debug.ExecParams = call.Args
	}
	if len(missing) > 0 {
		return nil, dberror.MissingParams(missing, debug)
	}

	var rs *database.ResultSet
	done = timing.Track("execute")
	err = conn.Do(ctx, func(ctx context.Context, d connector.Driver) error {
		rows, err := d.Query(ctx, call.SQL, p.rawTypes.QueryArgs(call.Args)...)
		if err != nil {
			return err
		}
		rs, err = database.Collect(rows, database.RowModeObject, p.rawTypes)
		return err
	})
	done()
	if err != nil {
		return nil, p.execError(ctx, err, debug)
	}
	p.logger.DebugContext(ctx, "rows", "provider", p.name, "routine", routine, "count", rs.Len())
	return shape(rs, &query.Built{}, QueryOptions{RowMode: database.RowModeObject}, debug), nil
}

func (p *Provider) signature(ctx context.Context, conn *connector.Conn, routine string) ([]schema.Parameter, error) {
	if sig, ok := p.signatures.Get(routine); ok {
		return sig, nil
	}
	sig, err := schema.RoutineParams(ctx, conn, routine)
	if err != nil {
		return nil, err
	}
	p.signatures.Set(routine, sig)
	p.logger.DebugContext(ctx, "routine signature", "provider", p.name, "routine", routine, "params", len(sig))
	return sig, nil
}

// Complete returns meta-completion candidates for an editor: schemas,
// relations and routines, or columns, depending on component and prefix.
// An unknown component yields no rows.
func (p *Provider) Complete(ctx context.Context, conn *connector.Conn, component, prefix, table string, limit int) (*Result, error) {
	sql := schema.CompletionStatement(component, prefix, table)
	if sql == "" {
		return &Result{RowMode: database.RowModeObject, Data: []map[string]any{}}, nil
	}
	if limit <= 0 {
		limit = defaultCompletionLimit
	}
	params := map[string]any{"prefix": prefix, "limit": limit}
	if table != "" {
		params["tableName"] = table
	}
	return p.Query(ctx, conn, sql, params, QueryOptions{RowMode: database.RowModeObject}, nil)
}
