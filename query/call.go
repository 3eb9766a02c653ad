package query

import (
	"strings"

	"github.com/Konsultn-Engineering/pgprovider/dialect"
	"github.com/Konsultn-Engineering/pgprovider/schema"
)

const routineParamPrefix = "p_"

// Call is a routine invocation ready for positional execution.
type Call struct {
	SQL  string
	Args []any
}

// BuildCall binds caller params to the declared parameters of routine by
// name. A declared parameter matches the caller key of the same name or, for
// "p_x", the key "x". Required parameters left unmatched are returned in
// declaration order and the call should not be run.
func BuildCall(routine string, sig []schema.Parameter, params map[string]any) (Call, []string) {
	return BuildCallWith(dialect.NewPostgresDialect(), routine, sig, params)
}

func BuildCallWith(d dialect.Dialect, routine string, sig []schema.Parameter, params map[string]any) (Call, []string) {
	var (
		call    Call
		args    []string
		missing []string
	)
	for _, p := range sig {
		if !p.Bindable() {
			continue
		}
		value, ok := lookupArg(p.Name, params)
		if !ok {
			if p.Required {
				missing = append(missing, p.Name)
			}
			continue
		}
		call.Args = append(call.Args, value)
		args = append(args, p.Name+":="+d.Placeholder(len(call.Args))+"::"+d.QuoteIdentifier(p.DataType))
	}
	call.SQL = "select * from " + routine + "(" + strings.Join(args, ",") + ") result"
	return call, missing
}

func lookupArg(name string, params map[string]any) (any, bool) {
	if v, ok := params[name]; ok {
		return v, true
	}
	if key, ok := strings.CutPrefix(name, routineParamPrefix); ok {
		v, ok := params[key]
		return v, ok
	}
	return nil, false
}
