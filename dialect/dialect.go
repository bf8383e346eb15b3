package dialect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/KipianiNikoloz/blazeorm/schema/field"
)

// Dialect names.
const (
	SQLite   = "sqlite"
	Postgres = "postgres"
	MySQL    = "mysql"
)

// ParamStyle is the placeholder syntax of a dialect or driver.
type ParamStyle uint8

// Placeholder styles.
const (
	ParamQmark   ParamStyle = iota + 1 // ?
	ParamFormat                        // %s
	ParamNumeric                       // $1, $2, ...
)

// String returns the style name.
func (s ParamStyle) String() string {
	switch s {
	case ParamQmark:
		return "qmark"
	case ParamFormat:
		return "format"
	case ParamNumeric:
		return "numeric"
	}
	return "ParamStyle(" + strconv.Itoa(int(s)) + ")"
}

// Capabilities lists optional backend features.
type Capabilities struct {
	Returning        bool
	Savepoints       bool
	PartialIndexes   bool
	SchemaNamespaces bool
}

// Reference is a foreign key target.
type Reference struct {
	Table  string
	Column string
}

// ColumnDef is the input of Dialect.RenderColumn.
type ColumnDef struct {
	Name       string
	Type       field.Type
	Size       int
	Nullable   bool
	PrimaryKey bool
	Unique     bool
	References *Reference
}

// Dialect renders the backend-specific parts of SQL.
type Dialect interface {
	// Name returns one of SQLite, Postgres or MySQL.
	Name() string
	// QuoteIdent quotes a single identifier.
	QuoteIdent(string) string
	// FormatTable quotes a possibly schema-qualified table name.
	FormatTable(string) string
	// Placeholder renders the placeholder of the n-th parameter, starting at 1.
	Placeholder(n int) string
	// ParamStyle reports the placeholder syntax produced by Placeholder.
	ParamStyle() ParamStyle
	// LimitOffset renders the pagination clause, or "" if both are nil.
	LimitOffset(limit, offset *int) string
	// ColumnType renders the column type of a field.
	ColumnType(t field.Type, size int) string
	// RenderColumn renders a column definition with its constraints.
	RenderColumn(ColumnDef) string
	// Capabilities reports optional features.
	Capabilities() Capabilities
}

// Get returns the dialect registered under name.
func Get(name string) (Dialect, error) {
	switch name {
	case SQLite:
		return sqliteDialect{}, nil
	case Postgres:
		return postgresDialect{}, nil
	case MySQL:
		return mysqlDialect{}, nil
	}
	return nil, fmt.Errorf("dialect: unsupported dialect %q", name)
}

// MustGet is like Get but panics on unknown names.
func MustGet(name string) Dialect {
	d, err := Get(name)
	if err != nil {
		panic(err)
	}
	return d
}

// WithoutSavepoints returns d with savepoint support switched off.
func WithoutSavepoints(d Dialect) Dialect {
	return capsOverride{Dialect: d, fn: func(c Capabilities) Capabilities {
		c.Savepoints = false
		return c
	}}
}

type capsOverride struct {
	Dialect
	fn func(Capabilities) Capabilities
}

func (c capsOverride) Capabilities() Capabilities {
	return c.fn(c.Dialect.Capabilities())
}

func quote(ident string, q byte) string {
	qs := string(q)
	return qs + strings.ReplaceAll(ident, qs, qs+qs) + qs
}

func formatQualified(d Dialect, table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return d.QuoteIdent(schema) + "." + d.QuoteIdent(name)
	}
	return d.QuoteIdent(table)
}

// limitOffset renders LIMIT/OFFSET. noLimit is the LIMIT value the dialect
// requires in front of a bare OFFSET, or "" if OFFSET may stand alone.
func limitOffset(limit, offset *int, noLimit string) string {
	var parts []string
	switch {
	case limit != nil:
		parts = append(parts, "LIMIT "+strconv.Itoa(*limit))
	case offset != nil && noLimit != "":
		parts = append(parts, "LIMIT "+noLimit)
	}
	if offset != nil {
		parts = append(parts, "OFFSET "+strconv.Itoa(*offset))
	}
	return strings.Join(parts, " ")
}

// renderColumn renders the constraints shared by all dialects. autoPK is the
// dialect's primary key suffix for auto-increment keys.
func renderColumn(d Dialect, c ColumnDef, autoPK string) string {
	var b strings.Builder
	b.WriteString(d.QuoteIdent(c.Name))
	b.WriteByte(' ')
	b.WriteString(d.ColumnType(c.Type, c.Size))
	if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if c.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
		if c.Type == field.TypeAutoID && autoPK != "" {
			b.WriteString(" " + autoPK)
		}
	} else if c.Unique {
		b.WriteString(" UNIQUE")
	}
	if r := c.References; r != nil {
		b.WriteString(" REFERENCES " + d.FormatTable(r.Table) + " (" + d.QuoteIdent(r.Column) + ")")
	}
	return b.String()
}
