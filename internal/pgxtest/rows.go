// Package pgxtest holds in-memory stand-ins for pgx result types used by
// tests that run without a database.
package pgxtest

import (
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Rows is a canned pgx.Rows.
type Rows struct {
	Fields []pgconn.FieldDescription
	Data   [][]any
	Raw    [][][]byte
	Tag    string
	Error  error

	idx    int
	closed bool
}

// NewRows builds rows with one field per name, all of the given OIDs.
func NewRows(names []string, oids []uint32, data ...[]any) *Rows {
	fields := make([]pgconn.FieldDescription, len(names))
	for i, n := range names {
		fields[i] = pgconn.FieldDescription{Name: n, DataTypeOID: oids[i]}
	}
	return &Rows{Fields: fields, Data: data, Tag: fmt.Sprintf("SELECT %d", len(data))}
}

func (r *Rows) Close() { r.closed = true }

func (r *Rows) Closed() bool { return r.closed }

func (r *Rows) Err() error { return r.Error }

func (r *Rows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag(r.Tag) }

func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return r.Fields }

func (r *Rows) Next() bool {
	if r.closed || r.idx >= len(r.Data) {
		return false
	}
	r.idx++
	return true
}

func (r *Rows) Scan(dest ...any) error {
	row := r.Data[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(row))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if row[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		v := reflect.ValueOf(row[i])
		switch {
		case target.Kind() == reflect.Pointer && v.Type().ConvertibleTo(target.Type().Elem()):
			p := reflect.New(target.Type().Elem())
			p.Elem().Set(v.Convert(target.Type().Elem()))
			target.Set(p)
		case v.Type().ConvertibleTo(target.Type()):
			target.Set(v.Convert(target.Type()))
		default:
			return fmt.Errorf("scan: cannot assign %T to %s", row[i], target.Type())
		}
	}
	return nil
}

func (r *Rows) Values() ([]any, error) {
	row := r.Data[r.idx-1]
	out := make([]any, len(row))
	copy(out, row)
	return out, nil
}

func (r *Rows) RawValues() [][]byte {
	if r.Raw == nil {
		return nil
	}
	return r.Raw[r.idx-1]
}

func (r *Rows) Conn() *pgx.Conn { return nil }

var _ pgx.Rows = (*Rows)(nil)
