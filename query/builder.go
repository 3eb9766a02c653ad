package query

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/Konsultn-Engineering/pgprovider/dialect"
)

// Locator resolves the zero based position of the row a locate request
// points at. It runs sql, which carries :name parameters, on the same
// connection the main query will use.
type Locator interface {
	Locate(ctx context.Context, sql string, params map[string]any) (pos int, found bool, err error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context, sql string, params map[string]any) (int, bool, error)

func (f LocatorFunc) Locate(ctx context.Context, sql string, params map[string]any) (int, bool, error) {
	return f(ctx, sql, params)
}

const (
	defaultAmount = 10

	paramLimit       = "lmt_limit_"
	paramOffset      = "lmt_offset_"
	paramLocateValue = "locate_value_"
	paramTreePrefix  = "fltr_tm_"
)

// Built is the outcome of applying a Control to a template.
type Built struct {
	RawSQL    string
	SQL       string
	MainSQL   string
	LocateSQL string
	Params    map[string]any
	Located   *int
	Window    *Window
}

// Builder compiles select templates and controls into executable SQL.
type Builder struct {
	dialect dialect.Dialect
	strict  bool
}

type BuilderOption func(*Builder)

// WithStrict makes the builder fail on filters, sorts and identifiers it
// would otherwise drop.
func WithStrict(strict bool) BuilderOption {
	return func(b *Builder) { b.strict = strict }
}

func WithDialect(d dialect.Dialect) BuilderOption {
	return func(b *Builder) { b.dialect = d }
}

func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{dialect: dialect.NewPostgresDialect()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// state is the working copy of one build.
type state struct {
	dialect dialect.Dialect
	strict  bool
	control *Control

	sql       string
	mainSQL   string
	params    map[string]any
	sortExpr  []string
	noRange   bool
	locateSQL string
	located   *int
	window    *Window
}

func (s *state) drop(err error) error {
	if s.strict {
		return err
	}
	return nil
}

// Build applies control to sql. The caller's params are never modified. When
// a locate is requested, loc runs one extra statement before Build returns.
func (b *Builder) Build(ctx context.Context, sql string, params map[string]any, control *Control, loc Locator) (*Built, error) {
	s := &state{
		dialect: b.dialect,
		strict:  b.strict,
		control: control,
		sql:     sql,
		params:  maps.Clone(params),
	}
	if s.params == nil {
		s.params = make(map[string]any)
	}

	built := &Built{RawSQL: sql}
	if control != nil {
		if err := s.apply(ctx, loc); err != nil {
			return nil, err
		}
	}

	built.SQL = s.sql
	built.MainSQL = s.mainSQL
	if built.MainSQL == "" {
		built.MainSQL = s.sql
	}
	built.Params = s.params
	built.LocateSQL = s.locateSQL
	built.Located = s.located
	built.Window = s.window
	return built, nil
}

func (s *state) apply(ctx context.Context, loc Locator) error {
	if err := s.applyFilters(); err != nil {
		return err
	}
	if s.control.Count {
		s.sql = "select count(*) as _count_ from (" + s.sql + ") as c"
		s.mainSQL = s.sql
		return nil
	}
	s.mainSQL = s.sql
	if err := s.applySort(); err != nil {
		return err
	}
	if s.noRange {
		return nil
	}
	return s.applyRange(ctx, loc, s.mainSQL)
}

func (s *state) applyFilters() error {
	clauses, err := s.compileFilters()
	if err != nil {
		return err
	}
	if s.control.TreeMode != nil {
		return s.applyTree(clauses)
	}
	if len(clauses) > 0 {
		s.sql = SelectFrom("flt.*", Subquery(s.sql, "flt"), clauses)
	}
	return nil
}

// applyTree wraps the statement for hierarchical output. Without ordinary
// filters it is a single level select with an optional children flag. With
// filters it returns the filtered rows plus all of their ancestors.
func (s *state) applyTree(clauses []string) error {
	tm := s.control.TreeMode
	if !s.dialect.ValidIdentifier(tm.KeyField) || !s.dialect.ValidIdentifier(tm.HidField) {
		return s.drop(fmt.Errorf("%w: tree fields %q, %q", ErrInvalidIdentifier, tm.KeyField, tm.HidField))
	}
	if tm.HasChildField != "" && !s.dialect.ValidIdentifier(tm.HasChildField) {
		return s.drop(fmt.Errorf("%w: tree child flag %q", ErrInvalidIdentifier, tm.HasChildField))
	}

	var treeWhere []string
	if tm.HasHidValue() {
		if tm.HidValue == nil {
			treeWhere = append(treeWhere, tm.HidField+" is null")
		} else {
			name := paramTreePrefix + tm.HidField
			treeWhere = append(treeWhere, tm.HidField+" = :"+name)
			s.params[name] = tm.HidValue
		}
	}

	childrenFlag := func(source string) string {
		if tm.HasChildField != "" {
			return ""
		}
		return ", exists (" + SelectFrom("1", source+" q", []string{"q." + tm.HidField + " = flt." + tm.KeyField}) + ") as _hasChildren"
	}

	if len(clauses) == 0 {
		s.sql = SelectFrom("flt.*"+childrenFlag("("+s.sql+")"), Subquery(s.sql, "flt"), treeWhere)
		return nil
	}

	w := NewWith(true).
		AddNotMaterialized("main", s.sql).
		Add("filtered", SelectFrom("*", "main flt", clauses)).
		Add("paths", "select f.* from filtered f union "+
			SelectFrom("m.*", "main m, paths p", []string{"p." + tm.HidField + " = m." + tm.KeyField}))

	if tm.FilterByHid {
		s.sql = w.Select(SelectFrom("flt.*"+childrenFlag("paths"), "paths flt", treeWhere))
		return nil
	}
	// The ancestor closure must come back whole, so it is never paged.
	s.sql = w.Select(SelectFrom("flt.*"+childrenFlag("paths"), "paths flt", nil))
	s.noRange = true
	return nil
}

func (s *state) applySort() error {
	for _, srt := range s.control.Sorts {
		if !s.dialect.ValidIdentifier(srt.Field) {
			if err := s.drop(fmt.Errorf("%w: sort field %q", ErrInvalidIdentifier, srt.Field)); err != nil {
				return err
			}
			continue
		}
		expr := srt.Field
		if srt.Direction == Desc {
			expr += " desc nulls last"
		}
		s.sortExpr = append(s.sortExpr, expr)
	}
	switch {
	case len(s.sortExpr) > 0:
		s.sql += " order by " + strings.Join(s.sortExpr, ",")
	case s.control.DataMode == DataModeScroll || s.control.DataMode == DataModeTree:
		s.sql += " order by 1"
	}
	return nil
}

// applyRange appends the limit/offset window. The window starts one row
// before the requested start so the caller can see the preceding row.
func (s *state) applyRange(ctx context.Context, loc Locator, main string) error {
	r := s.control.Range
	if r == nil || r.ChunkStart == nil || *r.ChunkStart < 0 {
		return nil
	}
	s.sql += " limit :" + paramLimit + " offset :" + paramOffset

	amount := defaultAmount
	if r.Amount != nil && *r.Amount != 0 {
		amount = *r.Amount
	}

	var start, end int
	located, err := s.locate(ctx, loc, main)
	if err != nil {
		return err
	}
	switch {
	case located != nil && *located >= 0:
		s.located = located
		start = *located
		end = start + amount - 1
	case located != nil:
		start = 0
		end = amount - 1
	default:
		start = *r.ChunkStart
		if r.ChunkEnd != nil && *r.ChunkEnd != 0 {
			end = *r.ChunkEnd
		} else {
			end = start + amount - 1
		}
	}

	realStart := 0
	if start > 0 {
		realStart = start - 1
	}
	s.params[paramLimit] = end - realStart + 2
	s.params[paramOffset] = realStart
	s.window = &Window{Start: start, End: end, RealStart: realStart}
	return nil
}

// locate returns nil when no locate applies, a pointer to -1 when the row
// was not found, and its position otherwise.
func (s *state) locate(ctx context.Context, loc Locator, main string) (*int, error) {
	l := s.control.Locate
	if l == nil || l.Field == "" || !l.Locating {
		return nil, nil
	}
	if !s.dialect.ValidIdentifier(l.Field) {
		return nil, s.drop(fmt.Errorf("%w: locate field %q", ErrInvalidIdentifier, l.Field))
	}
	if loc == nil {
		return nil, ErrNoLocator
	}

	order := "1"
	if len(s.sortExpr) > 0 {
		order = strings.Join(s.sortExpr, ",")
	}
	s.locateSQL = "select pos - 1 as pos from (select row_number() over (order by " + order + ") pos, " +
		l.Field + " from (" + main + ") main) rn where " + l.Field + " = :" + paramLocateValue

	params := maps.Clone(s.params)
	params[paramLocateValue] = l.Value
	pos, found, err := loc.Locate(ctx, s.locateSQL, params)
	if err != nil {
		return nil, fmt.Errorf("locate row: %w", err)
	}
	if !found {
		pos = -1
	}
	return &pos, nil
}
