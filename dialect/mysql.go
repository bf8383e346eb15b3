package dialect

import (
	"strconv"

	"github.com/KipianiNikoloz/blazeorm/schema/field"
)

// mysqlNoLimit is the largest LIMIT MySQL accepts, used for a bare OFFSET.
const mysqlNoLimit = "18446744073709551615"

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return MySQL }

func (mysqlDialect) QuoteIdent(s string) string { return quote(s, '`') }

func (d mysqlDialect) FormatTable(s string) string { return formatQualified(d, s) }

func (mysqlDialect) Placeholder(int) string { return "%s" }

func (mysqlDialect) ParamStyle() ParamStyle { return ParamFormat }

func (mysqlDialect) LimitOffset(limit, offset *int) string {
	return limitOffset(limit, offset, mysqlNoLimit)
}

func (mysqlDialect) ColumnType(t field.Type, size int) string {
	switch t {
	case field.TypeInt, field.TypeAutoID:
		return "BIGINT"
	case field.TypeFloat:
		return "DOUBLE"
	case field.TypeBool:
		return "BOOLEAN"
	case field.TypeTime:
		return "DATETIME(6)"
	}
	if size > 0 {
		return "VARCHAR(" + strconv.Itoa(size) + ")"
	}
	return "TEXT"
}

// RenderColumn bounds indexed text columns, which MySQL cannot index as TEXT.
func (d mysqlDialect) RenderColumn(c ColumnDef) string {
	if c.Type == field.TypeString && c.Size == 0 && (c.Unique || c.PrimaryKey || c.References != nil) {
		c.Size = 255
	}
	return renderColumn(d, c, "AUTO_INCREMENT")
}

func (mysqlDialect) Capabilities() Capabilities {
	return Capabilities{Savepoints: true, SchemaNamespaces: true}
}
