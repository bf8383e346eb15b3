// Package dialect holds the per-backend SQL rendering rules and the adapter
// contract the engine executes statements through.
//
// # Supported Dialects
//
//	dialect.SQLite   = "sqlite"    ?  placeholders, "quoted" identifiers
//	dialect.Postgres = "postgres"  %s placeholders, "quoted" identifiers
//	dialect.MySQL    = "mysql"     %s placeholders, `quoted` identifiers
//
// A Dialect is stateless; every component that renders SQL routes quoting,
// placeholders, LIMIT/OFFSET and column types through it:
//
//	d := dialect.MustGet(dialect.Postgres)
//	d.QuoteIdent("user")           // "user"
//	d.Placeholder(1)               // %s
//	d.LimitOffset(ptr(5), nil)     // LIMIT 5
//
// # Adapter
//
// Adapter executes SQL written in its dialect's placeholder style and reports
// rows as plain values. Package dialect/sql implements it over database/sql.
// Adapters that can create savepoints also implement Savepointer.
package dialect
