// Package database reads pgx results into the shapes the provider returns.
package database

// RowMode selects how rows are handed back.
type RowMode string

const (
	RowModeArray  RowMode = "array"
	RowModeObject RowMode = "object"
)
