package dialect

import "context"

// Result is the outcome of one statement.
type Result struct {
	Columns      []string
	Rows         [][]any
	RowsAffected int64
	LastInsertID int64
}

// Maps returns every row keyed by column name.
func (r *Result) Maps() []map[string]any {
	out := make([]map[string]any, len(r.Rows))
	for i, row := range r.Rows {
		m := make(map[string]any, len(r.Columns))
		for j, c := range r.Columns {
			if j < len(row) {
				m[c] = row[j]
			}
		}
		out[i] = m
	}
	return out
}

// Adapter executes statements against one logical connection. SQL passed
// to an adapter uses the placeholder style of its Dialect, and adapters
// reject statements whose argument count differs from the placeholder count
// before contacting the backend.
type Adapter interface {
	// Dialect returns the dialect statements must be compiled with.
	Dialect() Dialect
	// Query runs a statement that returns rows.
	Query(ctx context.Context, query string, args []any) (*Result, error)
	// Exec runs a statement that does not return rows.
	Exec(ctx context.Context, query string, args []any) (*Result, error)
	// ExecMany runs the statement once per argument set.
	ExecMany(ctx context.Context, query string, argSets [][]any) (*Result, error)
	// Begin starts a transaction.
	Begin(ctx context.Context) error
	// Commit commits the current transaction.
	Commit(ctx context.Context) error
	// Rollback aborts the current transaction.
	Rollback(ctx context.Context) error
	// LastInsertID returns the key generated by the last insert.
	LastInsertID() (int64, error)
	// Close releases the connection.
	Close() error
}

// Savepointer is implemented by adapters that can manage savepoints.
type Savepointer interface {
	Savepoint(ctx context.Context, name string) error
	ReleaseSavepoint(ctx context.Context, name string) error
	RollbackToSavepoint(ctx context.Context, name string) error
}

// SupportsSavepoints reports if nested transactions on a can use savepoints.
func SupportsSavepoints(a Adapter) bool {
	_, ok := a.(Savepointer)
	return ok && a.Dialect().Capabilities().Savepoints
}
