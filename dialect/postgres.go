package dialect

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

var (
	identifierRe = regexp.MustCompile(`(?i)^[a-z0-9_]+$`)
	routineRe    = regexp.MustCompile(`(?i)^[a-z0-9_]+\.[a-z0-9_]+$`)
)

type Postgres struct{}

func NewPostgresDialect() Dialect {
	return &Postgres{}
}

// QuoteIdentifier returns name unchanged when it is a plain identifier and a
// sanitized quoted identifier otherwise.
func (p Postgres) QuoteIdentifier(name string) string {
	if identifierRe.MatchString(name) {
		return name
	}
	return pgx.Identifier{name}.Sanitize()
}

func (p Postgres) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func (p Postgres) ValidIdentifier(name string) bool {
	return identifierRe.MatchString(name)
}

// ValidRoutine reports whether name is a schema qualified routine name.
func (p Postgres) ValidRoutine(name string) bool {
	return routineRe.MatchString(name)
}

// SplitRoutine splits "schema.name" into its parts.
func SplitRoutine(name string) (schema, routine string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "public", name
}
