package database

import (
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// Primitive is the database agnostic column category consumers see.
type Primitive string

const (
	PrimitiveText Primitive = "text"
	PrimitiveNumb Primitive = "numb"
	PrimitiveBool Primitive = "bool"
	PrimitiveDate Primitive = "date"
	PrimitiveJSON Primitive = "json"
)

// Column is the metadata of one result column.
type Column struct {
	Name        string    `json:"name"`
	DataType    Primitive `json:"dataType"`
	DataSubType string    `json:"dataSubType,omitempty"`
}

type portableType struct {
	primitive Primitive
	sub       string
}

// oidTypeMap lists every native type that is not plain text. Anything missing
// maps to text.
var oidTypeMap = map[uint32]portableType{
	pgtype.Int2OID:        {primitive: PrimitiveNumb},
	pgtype.Int4OID:        {primitive: PrimitiveNumb},
	pgtype.Int8OID:        {primitive: PrimitiveNumb},
	pgtype.NumericOID:     {primitive: PrimitiveNumb},
	pgtype.Float4OID:      {primitive: PrimitiveNumb},
	pgtype.Float8OID:      {primitive: PrimitiveNumb},
	pgtype.BoolOID:        {primitive: PrimitiveBool},
	pgtype.DateOID:        {primitive: PrimitiveDate, sub: "date"},
	pgtype.TimestampOID:   {primitive: PrimitiveDate, sub: "timestamp"},
	pgtype.TimestamptzOID: {primitive: PrimitiveDate, sub: "timestamptz"},
	pgtype.JSONOID:        {primitive: PrimitiveJSON},
	pgtype.JSONBOID:       {primitive: PrimitiveJSON},
}

// PortableType maps a type OID to its primitive and optional subtype.
func PortableType(oid uint32) (Primitive, string) {
	if t, ok := oidTypeMap[oid]; ok {
		return t.primitive, t.sub
	}
	return PrimitiveText, ""
}

// ColumnsOf converts field descriptions into portable column metadata.
func ColumnsOf(fields []pgconn.FieldDescription) []Column {
	cols := make([]Column, len(fields))
	for i, fd := range fields {
		p, sub := PortableType(fd.DataTypeOID)
		cols[i] = Column{Name: fd.Name, DataType: p, DataSubType: sub}
	}
	return cols
}
