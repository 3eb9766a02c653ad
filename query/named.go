package query

import (
	"strings"

	"github.com/Konsultn-Engineering/pgprovider/dialect"
)

// Translated is a statement ready for positional execution.
type Translated struct {
	SQL     string
	Args    []any
	Missing []string
}

// Translate rewrites :name tokens into positional placeholders. Tokens inside
// single-quoted literals and the second colon of ::casts are left alone. A
// name used more than once shares one position. Names absent from params are
// reported in Missing and left in the text.
func Translate(sql string, params map[string]any) Translated {
	return TranslateWith(dialect.NewPostgresDialect(), sql, params)
}

func TranslateWith(d dialect.Dialect, sql string, params map[string]any) Translated {
	var (
		out       strings.Builder
		res       Translated
		positions = make(map[string]string, len(params))
		missing   = make(map[string]bool)
		inQuote   bool
	)
	out.Grow(len(sql) + 8)

	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		if ch == '\'' {
			inQuote = !inQuote
			out.WriteByte(ch)
			continue
		}
		if ch != ':' || inQuote || (i > 0 && sql[i-1] == ':') {
			out.WriteByte(ch)
			continue
		}
		end := i + 1
		for end < len(sql) && isWordByte(sql[end]) {
			end++
		}
		if end == i+1 {
			out.WriteByte(ch)
			continue
		}
		name := sql[i+1 : end]
		value, known := params[name]
		switch {
		case !known:
			if !missing[name] {
				missing[name] = true
				res.Missing = append(res.Missing, name)
			}
			out.WriteString(sql[i:end])
		case positions[name] != "":
			out.WriteString(positions[name])
		default:
			res.Args = append(res.Args, value)
			positions[name] = d.Placeholder(len(res.Args))
			out.WriteString(positions[name])
		}
		i = end - 1
	}

	res.SQL = out.String()
	return res
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
