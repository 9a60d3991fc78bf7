// Package sqlrepo implements the threat, scan error and analysis
// repositories on database/sql. Queries are written with "?" placeholders
// and rebound per dialect.
package sqlrepo

import (
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between the supported drivers.
type Dialect struct {
	Name string
	// Numbered switches "?" placeholders to $1, $2, ...
	Numbered bool
	// Returning fetches generated ids with RETURNING instead of LastInsertId.
	Returning bool
}

var (
	SQLite   = Dialect{Name: "sqlite"}
	MySQL    = Dialect{Name: "mysql"}
	Postgres = Dialect{Name: "postgres", Numbered: true, Returning: true}
)

// Rebind rewrites "?" placeholders for the dialect.
func (d Dialect) Rebind(q string) string {
	if !d.Numbered {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
