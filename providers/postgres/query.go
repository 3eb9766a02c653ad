package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/Konsultn-Engineering/pgprovider/connector"
	"github.com/Konsultn-Engineering/pgprovider/database"
	"github.com/Konsultn-Engineering/pgprovider/dberror"
	"github.com/Konsultn-Engineering/pgprovider/query"
)

// rowNumberField is the extra column ReturnRN adds.
const rowNumberField = "_rn"

// QueryOptions shape the result of Query.
type QueryOptions struct {
	RowMode     database.RowMode
	ReturnRN    bool
	ReturnFirst bool
}

// Result is what a query or routine call returns to the calling layer.
// Data holds [][]any in array mode and []map[string]any in object mode.
// With ReturnFirst in object mode it is the single map[string]any, or nil.
// A paged result is encoded with "chunk": true next to "chunk_start" and
// "chunk_end".
type Result struct {
	MetaData []database.Column `json:"metaData"`
	RowMode  database.RowMode  `json:"rowMode"`
	Data     any               `json:"data"`
	Located  *int              `json:"located,omitempty"`
	Chunk    *query.Window     `json:"-"`
	Debug    *dberror.Debug    `json:"debug,omitempty"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	out := struct {
		plain
		Chunk      bool `json:"chunk,omitempty"`
		ChunkStart *int `json:"chunk_start,omitempty"`
		ChunkEnd   *int `json:"chunk_end,omitempty"`
	}{plain: plain(r)}
	if r.Chunk != nil {
		out.Chunk = true
		out.ChunkStart = &r.Chunk.Start
		out.ChunkEnd = &r.Chunk.End
	}
	return json.Marshal(out)
}

// Arrays returns the rows of an array mode result.
func (r *Result) Arrays() [][]any {
	rows, _ := r.Data.([][]any)
	return rows
}

// Objects returns the rows of an object mode result.
func (r *Result) Objects() []map[string]any {
	switch v := r.Data.(type) {
	case []map[string]any:
		return v
	case map[string]any:
		return []map[string]any{v}
	}
	return nil
}

// Query applies control to the sql template, binds params and runs the
// statement on conn. Missing parameters are reported before anything is
// sent. A canceled ctx stops the statement and yields a cancellation error.
func (p *Provider) Query(ctx context.Context, conn *connector.Conn, sql string, params map[string]any, opts QueryOptions, control *query.Control) (*Result, error) {
	if opts.RowMode == "" {
		opts.RowMode = database.RowModeArray
	}
	timing := dberror.NewTiming()
	debug := p.newDebug(sql, params, control, timing)

	done := timing.Track("control")
	built, err := p.builder.Build(ctx, sql, params, control, p.locator(conn))
	done()
	if err != nil {
		return nil, p.buildError(ctx, err, debug)
	}

	tr := query.TranslateWith(p.dialect, built.SQL, built.Params)
	if debug != nil {
		debug.Query = built.SQL
		debug.Params = built.Params
		debug.LocateQuery = built.LocateSQL
		debug.ExecQuery = tr.SQL
		debug.ExecParams = tr.Args
	}
	if len(tr.Missing) > 0 {
		return nil, dberror.MissingParams(tr.Missing, debug)
	}

	p.logger.DebugContext(ctx, "dispatch", "provider", p.name, "conn", conn.ID.String(), "args", len(tr.Args))
	var rs *database.ResultSet
	done = timing.Track("execute")
	err = conn.Do(ctx, func(ctx context.Context, d connector.Driver) error {
		rows, err := d.Query(ctx, tr.SQL, p.rawTypes.QueryArgs(tr.Args)...)
		if err != nil {
			return err
		}
		rs, err = database.Collect(rows, opts.RowMode, p.rawTypes)
		return err
	})
	done()
	if err != nil {
		return nil, p.execError(ctx, err, debug)
	}
	p.logger.DebugContext(ctx, "rows", "provider", p.name, "conn", conn.ID.String(), "count", rs.Len())
	return shape(rs, built, opts, debug), nil
}

func (p *Provider) newDebug(sql string, params map[string]any, control *query.Control, timing *dberror.Timing) *dberror.Debug {
	if !p.debug {
		return nil
	}
	return &dberror.Debug{
		InitQuery:  sql,
		InitParams: params,
		Control:    control,
		Timing:     timing,
	}
}

// buildError keeps rejected controls apart from failures of the locate
// round trip.
func (p *Provider) buildError(ctx context.Context, err error, debug *dberror.Debug) error {
	switch {
	case errors.Is(err, query.ErrInvalidIdentifier),
		errors.Is(err, query.ErrUnsupportedOperator),
		errors.Is(err, query.ErrNoLocator):
		e := dberror.Validation("parse query failed: "+err.Error(), debug)
		e.Cause = err
		return e
	}
	return p.execError(ctx, err, debug)
}

// locator runs locate statements on conn ahead of the main query.
func (p *Provider) locator(conn *connector.Conn) query.Locator {
	return query.LocatorFunc(func(ctx context.Context, sql string, params map[string]any) (int, bool, error) {
		tr := query.TranslateWith(p.dialect, sql, params)
		if len(tr.Missing) > 0 {
			return 0, false, dberror.MissingParams(tr.Missing, nil)
		}
		var (
			pos   int64
			found bool
		)
		err := conn.QueryRows(ctx, tr.SQL, tr.Args, func(rows pgx.Rows) error {
			if !rows.Next() {
				return nil
			}
			found = true
			return rows.Scan(&pos)
		})
		if err != nil {
			return 0, false, err
		}
		p.logger.DebugContext(ctx, "locate", "provider", p.name, "conn", conn.ID.String(), "found", found, "pos", pos)
		return int(pos), found, nil
	})
}

// shape turns rows into a Result: first row only, then row numbers counted
// from the real start of the window.
func shape(rs *database.ResultSet, built *query.Built, opts QueryOptions, debug *dberror.Debug) *Result {
	res := &Result{
		MetaData: rs.Columns,
		RowMode:  opts.RowMode,
		Located:  built.Located,
		Chunk:    built.Window,
		Debug:    debug,
	}
	rnStart := 0
	if built.Window != nil {
		rnStart = built.Window.RealStart
	}
	if opts.ReturnRN {
		res.MetaData = append(res.MetaData, database.Column{Name: rowNumberField, DataType: database.PrimitiveNumb})
	}

	if opts.RowMode == database.RowModeObject {
		rows := rs.Objects
		if rows == nil {
			rows = []map[string]any{}
		}
		if opts.ReturnRN {
			for i, row := range rows {
				row[rowNumberField] = rnStart + i
			}
		}
		if opts.ReturnFirst {
			if len(rows) > 0 {
				res.Data = rows[0]
			}
			return res
		}
		res.Data = rows
		return res
	}

	rows := rs.Arrays
	if rows == nil {
		rows = [][]any{}
	}
	if opts.ReturnFirst && len(rows) > 1 {
		rows = rows[:1]
	}
	if opts.ReturnRN {
		for i := range rows {
			rows[i] = append(rows[i], rnStart+i)
		}
	}
	res.Data = rows
	return res
}
