package dialect

import (
	"strconv"

	"github.com/KipianiNikoloz/blazeorm/schema/field"
)

type postgresDialect struct{}

func (postgresDialect) Name() string { return Postgres }

func (postgresDialect) QuoteIdent(s string) string { return quote(s, '"') }

func (d postgresDialect) FormatTable(s string) string { return formatQualified(d, s) }

// Placeholder returns the format-style token; the adapter rebinds it to $n.
func (postgresDialect) Placeholder(int) string { return "%s" }

func (postgresDialect) ParamStyle() ParamStyle { return ParamFormat }

func (postgresDialect) LimitOffset(limit, offset *int) string {
	return limitOffset(limit, offset, "")
}

func (postgresDialect) ColumnType(t field.Type, size int) string {
	switch t {
	case field.TypeInt:
		return "BIGINT"
	case field.TypeAutoID:
		return "BIGSERIAL"
	case field.TypeFloat:
		return "DOUBLE PRECISION"
	case field.TypeBool:
		return "BOOLEAN"
	case field.TypeTime:
		return "TIMESTAMP WITH TIME ZONE"
	}
	if size > 0 {
		return "VARCHAR(" + strconv.Itoa(size) + ")"
	}
	return "TEXT"
}

func (d postgresDialect) RenderColumn(c ColumnDef) string {
	return renderColumn(d, c, "")
}

func (postgresDialect) Capabilities() Capabilities {
	return Capabilities{Returning: true, Savepoints: true, PartialIndexes: true, SchemaNamespaces: true}
}
