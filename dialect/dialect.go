package dialect

// Dialect renders the few textual pieces the query layer is allowed to embed:
// positional placeholders and validated identifiers.
type Dialect interface {
	QuoteIdentifier(name string) string
	Placeholder(n int) string
	ValidIdentifier(name string) bool
	ValidRoutine(name string) bool
}
