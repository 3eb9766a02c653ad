package query

import "strings"

// Fragment is a named sub-block of a WITH query.
type Fragment struct {
	Name            string
	Body            string
	NotMaterialized bool
}

// WithBuilder assembles a WITH [RECURSIVE] statement from named fragments.
// Only validated identifiers and other fragments ever reach the text; values
// stay behind :name parameters.
type WithBuilder struct {
	recursive bool
	fragments []Fragment
}

func NewWith(recursive bool) *WithBuilder {
	return &WithBuilder{recursive: recursive}
}

func (w *WithBuilder) Add(name, body string) *WithBuilder {
	w.fragments = append(w.fragments, Fragment{Name: name, Body: body})
	return w
}

func (w *WithBuilder) AddNotMaterialized(name, body string) *WithBuilder {
	w.fragments = append(w.fragments, Fragment{Name: name, Body: body, NotMaterialized: true})
	return w
}

// Select renders the statement with the given final select.
func (w *WithBuilder) Select(final string) string {
	var sb strings.Builder
	sb.WriteString("with ")
	if w.recursive {
		sb.WriteString("recursive ")
	}
	for i, f := range w.fragments {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.Name)
		sb.WriteString(" as ")
		if f.NotMaterialized {
			sb.WriteString("not materialized ")
		}
		sb.WriteString("(")
		sb.WriteString(f.Body)
		sb.WriteString(")")
	}
	sb.WriteString(" ")
	sb.WriteString(final)
	return sb.String()
}

// SelectFrom renders "select <projection> from <source> [where a and b]".
func SelectFrom(projection, source string, where []string) string {
	var sb strings.Builder
	sb.WriteString("select ")
	sb.WriteString(projection)
	sb.WriteString(" from ")
	sb.WriteString(source)
	if len(where) > 0 {
		sb.WriteString(" where ")
		sb.WriteString(strings.Join(where, " and "))
	}
	return sb.String()
}

// Subquery renders "(<sql>) as <alias>".
func Subquery(sql, alias string) string {
	return "(" + sql + ") as " + alias
}
