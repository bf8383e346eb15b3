package dialect

import "github.com/KipianiNikoloz/blazeorm/schema/field"

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return SQLite }

func (sqliteDialect) QuoteIdent(s string) string { return quote(s, '"') }

// FormatTable does not split on dots; SQLite has no schema namespaces.
func (d sqliteDialect) FormatTable(s string) string { return d.QuoteIdent(s) }

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) ParamStyle() ParamStyle { return ParamQmark }

// LimitOffset uses LIMIT -1 for an offset without a limit.
func (sqliteDialect) LimitOffset(limit, offset *int) string {
	return limitOffset(limit, offset, "-1")
}

func (sqliteDialect) ColumnType(t field.Type, _ int) string {
	switch t {
	case field.TypeInt, field.TypeAutoID:
		return "INTEGER"
	case field.TypeFloat:
		return "REAL"
	case field.TypeBool:
		return "BOOLEAN"
	case field.TypeTime:
		return "DATETIME"
	}
	return "TEXT"
}

func (d sqliteDialect) RenderColumn(c ColumnDef) string {
	return renderColumn(d, c, "AUTOINCREMENT")
}

func (sqliteDialect) Capabilities() Capabilities {
	return Capabilities{Savepoints: true, PartialIndexes: true}
}
