package query

import (
	"fmt"
	"regexp"
	"strings"
)

var castRe = regexp.MustCompile(`(?i)^(left-|right-)?[:a-z0-9\[\]]+$`)

// allowedOperators is the full set of comparison operators a filter may
// produce. Anything else drops the filter.
var allowedOperators = map[string]bool{
	"~": true, "~*": true, ">": true, "<": true, "=": true, "!=": true, "<>": true,
	">=": true, "<=": true, "like": true, "ilike": true, "@>": true, "<@": true,
}

const (
	opLikeBoth = "like_both"

	nullSentinel    = "()"
	notNullSentinel = "!()"
)

// One character prefixes and the operators they stand for, by position.
var (
	prefixOne   = []string{"~", ">", "<", "=", "!", "[", "]"}
	prefixOneOp = []string{"~", ">", "<", "=", "!=", ">=", "<="}
	prefixTwo   = []string{">=", "<=", "!=", "!~"}
)

// filterExpr is the working state of one filter while the inference rules
// and shaping steps run over it.
type filterExpr struct {
	field    string
	operator string
	value    any
	cast     string

	fieldB, fieldE string
	paramB, paramE string

	// clause is set when a rule resolved the filter to a parameterless clause.
	clause string
}

// filterRule inspects and possibly resolves the operator of a filter. It
// returns true when no later rule should run.
type filterRule func(*filterExpr) bool

// inferenceRules run in order until one of them claims the filter.
var inferenceRules = []filterRule{
	sentinelRule,
	prefixOneRule,
	prefixTwoRule,
	defaultLikeRule,
}

func sentinelRule(f *filterExpr) bool {
	if f.operator != "" {
		return false
	}
	switch v := f.value.(type) {
	case nil:
		f.clause = "flt." + f.field + " is null"
	case string:
		switch v {
		case nullSentinel:
			f.clause = "flt." + f.field + " is null"
		case notNullSentinel:
			f.clause = "flt." + f.field + " is not null"
		default:
			return false
		}
	default:
		return false
	}
	return true
}

func prefixOneRule(f *filterExpr) bool {
	s, ok := f.value.(string)
	if f.operator != "" || !ok || s == "" {
		return false
	}
	for i, p := range prefixOne {
		if s[:1] == p {
			f.operator = prefixOneOp[i]
			f.value = s[1:]
			return true
		}
	}
	return false
}

func prefixTwoRule(f *filterExpr) bool {
	s, ok := f.value.(string)
	if f.operator != "" || !ok || len(s) < 2 {
		return false
	}
	for _, p := range prefixTwo {
		if s[:2] == p {
			f.operator = p
			f.value = s[2:]
			return true
		}
	}
	return false
}

// defaultLikeRule turns an operator-less filter into a case-insensitive
// prefix match, or a contains match for like_both.
func defaultLikeRule(f *filterExpr) bool {
	if f.operator != "" && f.operator != opLikeBoth {
		return false
	}
	f.cast = "lower"
	f.fieldE = "::text"
	if f.operator == opLikeBoth {
		f.paramB = "'%'||"
	}
	f.operator = "like"
	f.paramE = "::text||'%'"
	return true
}

// shapeFieldType adjusts the parameter side to the declared field type.
func shapeFieldType(f *filterExpr, ft FieldType) {
	switch ft {
	case FieldNumeric:
		f.paramE = "::numeric"
	case FieldDate:
		f.paramB = "to_date("
		f.paramE = "::text, 'dd.mm.yyyy'::text)"
	}
}

// applyCast wraps the field side, the parameter side or both. A cast starting
// with :: is a type cast suffix, anything else a function name.
func applyCast(f *filterExpr) {
	cast := f.cast
	if cast == "" {
		return
	}
	left, right := true, true
	switch {
	case strings.HasPrefix(cast, "right-"):
		cast, left = cast[len("right-"):], false
	case strings.HasPrefix(cast, "left-"):
		cast, right = cast[len("left-"):], false
	}
	typeCast := strings.HasPrefix(cast, "::")
	if left {
		if typeCast {
			f.fieldE += cast
		} else {
			f.fieldB = cast + "(" + f.fieldB
			f.fieldE += ")"
		}
	}
	if right {
		if typeCast {
			f.paramE += cast
		} else {
			f.paramB = cast + "(" + f.paramB
			f.paramE += ")"
		}
	}
}

// compileFilter turns one filter into a where clause. The returned param name
// is empty when the clause binds nothing. A nil error with an empty clause
// means the filter was dropped.
func (s *state) compileFilter(index int, flt Filter) (clause, param string, err error) {
	if flt.Cast != "" && !castRe.MatchString(flt.Cast) {
		return "", "", s.drop(fmt.Errorf("%w: cast %q", ErrInvalidIdentifier, flt.Cast))
	}
	if !s.dialect.ValidIdentifier(flt.Field) {
		return "", "", s.drop(fmt.Errorf("%w: filter field %q", ErrInvalidIdentifier, flt.Field))
	}

	f := &filterExpr{
		field:    flt.Field,
		operator: flt.Operator,
		value:    flt.Value,
		cast:     flt.Cast,
	}
	for _, rule := range inferenceRules {
		if rule(f) {
			break
		}
	}
	if f.clause != "" {
		return f.clause, "", nil
	}
	if !allowedOperators[f.operator] {
		return "", "", s.drop(fmt.Errorf("%w: %q on field %q", ErrUnsupportedOperator, f.operator, f.field))
	}

	shapeFieldType(f, flt.FieldType)
	applyCast(f)
	if (f.operator == "like" || f.operator == "ilike") && !strings.Contains(f.paramE, "'%'") {
		f.paramE += "||'%'"
	}

	if (f.operator == "=" || f.operator == "!=") && f.value == nil {
		if f.operator == "=" {
			return "flt." + f.field + " is null", "", nil
		}
		return "flt." + f.field + " is not null", "", nil
	}

	param = fmt.Sprintf("fltr%d_%s", index, f.field)
	s.params[param] = f.value
	clause = f.fieldB + "flt." + f.field + f.fieldE + " " + f.operator + " " + f.paramB + ":" + param + f.paramE
	return clause, param, nil
}

// compileFilters returns the clauses of all usable filters in order.
func (s *state) compileFilters() ([]string, error) {
	var clauses []string
	index := 0
	for _, flt := range s.control.Filters {
		if flt.Field == "" {
			continue
		}
		clause, _, err := s.compileFilter(index, flt)
		index++
		if err != nil {
			return nil, err
		}
		if clause != "" {
			clauses = append(clauses, clause)
		}
	}
	return clauses, nil
}
