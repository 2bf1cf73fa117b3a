package sparql

import (
	"fmt"
	"strings"
	"time"
)

var stringEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// EscapeString renders a Go string as a quoted SPARQL string literal.
func EscapeString(s string) string {
	return `"` + stringEscaper.Replace(s) + `"`
}

// EscapeURI renders a URI reference. Characters that would terminate or
// corrupt the IRIREF token are percent-escaped.
func EscapeURI(uri string) string {
	var b strings.Builder
	b.WriteByte('<')
	for _, r := range uri {
		switch r {
		case '<', '>', '"', '{', '}', '|', '^', '`', '\\':
			fmt.Fprintf(&b, "%%%02X", r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('>')
	return b.String()
}

// EscapeDateTime renders a timestamp as an xsd:dateTime typed literal.
func EscapeDateTime(t time.Time) string {
	return fmt.Sprintf(`"%s"^^<http://www.w3.org/2001/XMLSchema#dateTime>`, t.Format(time.RFC3339))
}

// EscapeInt renders an integer as an xsd:integer typed literal.
func EscapeInt(i int) string {
	return fmt.Sprintf(`"%d"^^<http://www.w3.org/2001/XMLSchema#integer>`, i)
}

// EscapeBool renders a boolean as an xsd:boolean typed literal.
func EscapeBool(v bool) string {
	return fmt.Sprintf(`"%t"^^<http://www.w3.org/2001/XMLSchema#boolean>`, v)
}
