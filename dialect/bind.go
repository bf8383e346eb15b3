package dialect

import (
	"strconv"
	"strings"
)

// scan walks query outside quoted strings, identifiers and comments and
// calls fn at every placeholder of the given style. fn receives the byte
// offset and length of the token.
func scan(query string, style ParamStyle, fn func(start, size int)) {
	for i := 0; i < len(query); i++ {
		switch c := query[i]; {
		case c == '\'' || c == '"' || c == '`':
			i = skipQuoted(query, i, c)
		case c == '-' && i+1 < len(query) && query[i+1] == '-':
			for i < len(query) && query[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(query) && query[i+1] == '*':
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				return
			}
			i += end + 3
		case style == ParamQmark && c == '?':
			fn(i, 1)
		case style == ParamFormat && c == '%' && i+1 < len(query):
			switch query[i+1] {
			case 's':
				fn(i, 2)
				i++
			case '%':
				i++
			}
		case style == ParamNumeric && c == '$':
			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}
			if j > i+1 {
				fn(i, j-i)
				i = j - 1
			}
		}
	}
}

// skipQuoted returns the index of the quote closing the region opened at i.
// Doubled quotes are treated as escapes.
func skipQuoted(query string, i int, q byte) int {
	for j := i + 1; j < len(query); j++ {
		if query[j] == q {
			if j+1 < len(query) && query[j+1] == q {
				j++
				continue
			}
			return j
		}
	}
	return len(query)
}

// CountPlaceholders returns the number of placeholders of the given style in
// query, ignoring quoted regions and comments.
func CountPlaceholders(query string, style ParamStyle) int {
	n := 0
	scan(query, style, func(int, int) { n++ })
	return n
}

// Rebind rewrites the placeholders of query from one style to another.
// Numeric placeholders are numbered from 1 in order of appearance.
func Rebind(query string, from, to ParamStyle) string {
	if from == to {
		return query
	}
	var (
		b    strings.Builder
		last int
		n    int
	)
	b.Grow(len(query) + 8)
	scan(query, from, func(start, size int) {
		b.WriteString(unescape(query[last:start], from))
		n++
		switch to {
		case ParamQmark:
			b.WriteByte('?')
		case ParamFormat:
			b.WriteString("%s")
		case ParamNumeric:
			b.WriteString("$" + strconv.Itoa(n))
		}
		last = start + size
	})
	b.WriteString(unescape(query[last:], from))
	return b.String()
}

// unescape turns the "%%" escape of format-style SQL into a literal percent.
func unescape(s string, from ParamStyle) string {
	if from != ParamFormat {
		return s
	}
	return strings.ReplaceAll(s, "%%", "%")
}
