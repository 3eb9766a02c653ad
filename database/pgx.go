package database

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// ResultSet holds everything read from one statement.
type ResultSet struct {
	Fields  []pgconn.FieldDescription
	Columns []Column
	Arrays  [][]any
	Objects []map[string]any
	Tag     pgconn.CommandTag
}

// Len returns the number of rows read.
func (r *ResultSet) Len() int {
	if r.Objects != nil {
		return len(r.Objects)
	}
	return len(r.Arrays)
}

// RawTypes lists type OIDs whose values are returned as their text form
// instead of being decoded.
type RawTypes map[uint32]bool

func NewRawTypes(oids []uint32) RawTypes {
	if len(oids) == 0 {
		return nil
	}
	rt := make(RawTypes, len(oids))
	for _, oid := range oids {
		rt[oid] = true
	}
	return rt
}

// QueryArgs prefixes args with the result format override the raw types
// need. It must be the first query argument.
func (rt RawTypes) QueryArgs(args []any) []any {
	if len(rt) == 0 {
		return args
	}
	formats := make(pgx.QueryResultFormatsByOID, len(rt))
	for oid := range rt {
		formats[oid] = pgtype.TextFormatCode
	}
	return append([]any{formats}, args...)
}

// Collect reads and closes rows.
func Collect(rows pgx.Rows, mode RowMode, raw RawTypes) (*ResultSet, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	rs := &ResultSet{
		Fields:  fields,
		Columns: ColumnsOf(fields),
	}
	if mode == RowModeObject {
		rs.Objects = make([]map[string]any, 0)
	} else {
		rs.Arrays = make([][]any, 0)
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		if len(raw) > 0 {
			rawValues := rows.RawValues()
			for i, fd := range fields {
				if raw[fd.DataTypeOID] && i < len(rawValues) && rawValues[i] != nil {
					values[i] = string(rawValues[i])
				}
			}
		}
		if mode == RowModeObject {
			obj := make(map[string]any, len(fields))
			for i, fd := range fields {
				obj[fd.Name] = values[i]
			}
			rs.Objects = append(rs.Objects, obj)
		} else {
			rs.Arrays = append(rs.Arrays, values)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rs.Tag = rows.CommandTag()
	return rs, nil
}
