// Package sql implements dialect.Adapter on top of database/sql.
//
// A Driver pins one connection of a *sql.DB for its lifetime, so a session
// built on it observes its own transaction and savepoints:
//
//	drv, err := sql.OpenDSN("postgres://app:secret@db:5432/app?sslmode=disable")
//	if err != nil {
//		return err
//	}
//	defer drv.Close()
//
// Statements are compiled in the placeholder style of the dialect and
// rebound to the style of the underlying database/sql driver before they
// are sent. Values wrapped in redact.Secret reach the database unchanged
// but are masked in logs and errors.
//
// StatsAdapter and DebugAdapter decorate any dialect.Adapter with query
// statistics, slow query reporting and statement logging:
//
//	stats := sql.NewStatsAdapter(drv, sql.WithSlowQueryLog(logger))
//	a := sql.NewDebugAdapter(stats, sql.DebugWithLogger(logger))
//
// Constraint violations of all supported drivers are classified by
// IsUniqueConstraintError and its siblings.
package sql
