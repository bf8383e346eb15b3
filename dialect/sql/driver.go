package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/KipianiNikoloz/blazeorm"
	"github.com/KipianiNikoloz/blazeorm/dialect"
	"github.com/KipianiNikoloz/blazeorm/internal/redact"
)

// validIdentifierRe validates SQL identifiers (alphanumeric, underscores, dots for schema.name)
var validIdentifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// isValidIdentifier checks if the string is a valid SQL identifier.
func isValidIdentifier(s string) bool {
	return s != "" && len(s) <= 128 && validIdentifierRe.MatchString(s)
}

// escapeStringValue escapes a string value for safe use in SQL.
// It escapes both single quotes (by doubling) and backslashes (for MySQL compatibility).
func escapeStringValue(s string) string {
	if !strings.ContainsAny(s, `'\`) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", "''")
	return s
}

// ExecQuerier wraps the standard Exec, Query and Prepare methods shared by
// *sql.Conn and *sql.Tx.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Driver is a dialect.Adapter over database/sql. Every statement of a
// Driver runs on one pinned connection, so a Driver is the connection of a
// single session and must not be shared between sessions.
type Driver struct {
	db      *sql.DB
	owned   bool
	dialect dialect.Dialect
	native  dialect.ParamStyle

	mu      sync.Mutex
	conn    *sql.Conn
	tx      *sql.Tx
	lastID  int64
	lastErr error
}

// Option configures a Driver.
type Option func(*Driver)

// WithDialect replaces the dialect of the driver, for example with one
// returned by dialect.WithoutSavepoints.
func WithDialect(d dialect.Dialect) Option {
	return func(drv *Driver) {
		drv.dialect = d
	}
}

// WithParamStyle overrides the placeholder style the database driver
// expects.
func WithParamStyle(s dialect.ParamStyle) Option {
	return func(drv *Driver) {
		drv.native = s
	}
}

// NativeParamStyle returns the placeholder style of the database/sql driver
// registered for the dialect.
func NativeParamStyle(name string) dialect.ParamStyle {
	if name == dialect.Postgres {
		return dialect.ParamNumeric
	}
	return dialect.ParamQmark
}

// Open opens a database with the driver registered for the dialect name
// and returns a Driver owning it.
func Open(name, source string, opts ...Option) (*Driver, error) {
	if _, err := dialect.Get(name); err != nil {
		return nil, err
	}
	db, err := sql.Open(name, source)
	if err != nil {
		return nil, err
	}
	drv, err := OpenDB(name, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	drv.owned = true
	return drv, nil
}

// OpenDB wraps the given database/sql.DB with a Driver. The Driver does not
// close db.
func OpenDB(name string, db *sql.DB, opts ...Option) (*Driver, error) {
	d, err := dialect.Get(name)
	if err != nil {
		return nil, err
	}
	drv := &Driver{db: db, dialect: d, native: NativeParamStyle(name)}
	for _, opt := range opts {
		opt(drv)
	}
	return drv, nil
}

// DB returns the underlying *sql.DB instance.
func (d *Driver) DB() *sql.DB { return d.db }

// Dialect implements dialect.Adapter.
func (d *Driver) Dialect() dialect.Dialect { return d.dialect }

// InTx reports if a transaction is open.
func (d *Driver) InTx() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tx != nil
}

// pin returns the pinned connection, acquiring it on first use.
func (d *Driver) pin(ctx context.Context) (*sql.Conn, error) {
	if d.conn != nil {
		return d.conn, nil
	}
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	d.conn = conn
	return conn, nil
}

func (d *Driver) execer(ctx context.Context) (ExecQuerier, error) {
	if d.tx != nil {
		return d.tx, nil
	}
	return d.pin(ctx)
}

// prepare checks the argument count and rewrites the placeholders for the
// database driver.
func (d *Driver) prepare(query string, args []any) (string, []any, error) {
	style := d.dialect.ParamStyle()
	if n := dialect.CountPlaceholders(query, style); n != len(args) {
		return "", nil, blazeorm.NewAdapterExecutionError(query, args,
			fmt.Errorf("dialect/sql: statement has %d placeholders but %d arguments", n, len(args)))
	}
	return dialect.Rebind(query, style, d.native), redact.UnwrapAll(args), nil
}

// wrap classifies a driver failure and attaches the statement.
func (d *Driver) wrap(query string, args []any, err error) error {
	if kind := constraintKind(err); kind != "" {
		err = blazeorm.NewConstraintError(kind, err)
	}
	return blazeorm.NewAdapterExecutionError(query, args, err)
}

// Query implements dialect.Adapter.
func (d *Driver) Query(ctx context.Context, query string, args []any) (res *dialect.Result, rerr error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, argv, err := d.prepare(query, args)
	if err != nil {
		return nil, err
	}
	ex, err := d.execer(ctx)
	if err != nil {
		return nil, d.wrap(query, args, err)
	}
	cf, err := d.maySetVars(ctx, ex)
	if err != nil {
		return nil, d.wrap(query, args, fmt.Errorf("set session vars: %w", err))
	}
	defer func() { rerr = errors.Join(rerr, cf()) }()
	rows, err := ex.QueryContext(ctx, q, argv...)
	if err != nil {
		return nil, d.wrap(query, args, err)
	}
	defer rows.Close()
	res, err = scanRows(rows)
	if err != nil {
		return nil, d.wrap(query, args, err)
	}
	return res, nil
}

// Exec implements dialect.Adapter.
func (d *Driver) Exec(ctx context.Context, query string, args []any) (res *dialect.Result, rerr error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, argv, err := d.prepare(query, args)
	if err != nil {
		return nil, err
	}
	ex, err := d.execer(ctx)
	if err != nil {
		return nil, d.wrap(query, args, err)
	}
	cf, err := d.maySetVars(ctx, ex)
	if err != nil {
		return nil, d.wrap(query, args, fmt.Errorf("set session vars: %w", err))
	}
	defer func() { rerr = errors.Join(rerr, cf()) }()
	r, err := ex.ExecContext(ctx, q, argv...)
	if err != nil {
		return nil, d.wrap(query, args, err)
	}
	return d.result(r), nil
}

// ExecMany implements dialect.Adapter. The statement is prepared once and
// the affected row counts are summed.
func (d *Driver) ExecMany(ctx context.Context, query string, argSets [][]any) (*dialect.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(argSets) == 0 {
		return &dialect.Result{}, nil
	}
	var q string
	sets := make([][]any, len(argSets))
	for i, args := range argSets {
		rq, argv, err := d.prepare(query, args)
		if err != nil {
			return nil, err
		}
		q, sets[i] = rq, argv
	}
	ex, err := d.execer(ctx)
	if err != nil {
		return nil, d.wrap(query, nil, err)
	}
	stmt, err := ex.PrepareContext(ctx, q)
	if err != nil {
		return nil, d.wrap(query, nil, err)
	}
	defer stmt.Close()
	total := &dialect.Result{}
	for i, argv := range sets {
		r, err := stmt.ExecContext(ctx, argv...)
		if err != nil {
			return nil, d.wrap(query, argSets[i], err)
		}
		res := d.result(r)
		total.RowsAffected += res.RowsAffected
		total.LastInsertID = res.LastInsertID
	}
	return total, nil
}

func (d *Driver) result(r sql.Result) *dialect.Result {
	res := &dialect.Result{}
	if n, err := r.RowsAffected(); err == nil {
		res.RowsAffected = n
	}
	d.lastID, d.lastErr = r.LastInsertId()
	if d.lastErr == nil {
		res.LastInsertID = d.lastID
	}
	return res
}

// LastInsertID implements dialect.Adapter.
func (d *Driver) LastInsertID() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastErr != nil {
		return 0, d.lastErr
	}
	if d.lastID == 0 {
		return 0, errors.New("dialect/sql: no insert id available")
	}
	return d.lastID, nil
}

// Begin implements dialect.Adapter.
func (d *Driver) Begin(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx != nil {
		return &blazeorm.TransactionStateError{Op: "begin", State: "active"}
	}
	conn, err := d.pin(ctx)
	if err != nil {
		return d.wrap("BEGIN", nil, err)
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return d.wrap("BEGIN", nil, err)
	}
	d.tx = tx
	return nil
}

// Commit implements dialect.Adapter.
func (d *Driver) Commit(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx == nil {
		return &blazeorm.TransactionStateError{Op: "commit", State: "idle"}
	}
	tx := d.tx
	d.tx = nil
	if err := tx.Commit(); err != nil {
		return d.wrap("COMMIT", nil, err)
	}
	return nil
}

// Rollback implements dialect.Adapter.
func (d *Driver) Rollback(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx == nil {
		return &blazeorm.TransactionStateError{Op: "rollback", State: "idle"}
	}
	tx := d.tx
	d.tx = nil
	if err := tx.Rollback(); err != nil {
		return d.wrap("ROLLBACK", nil, err)
	}
	return nil
}

// Savepoint implements dialect.Savepointer.
func (d *Driver) Savepoint(ctx context.Context, name string) error {
	return d.savepoint(ctx, "SAVEPOINT ", name)
}

// ReleaseSavepoint implements dialect.Savepointer.
func (d *Driver) ReleaseSavepoint(ctx context.Context, name string) error {
	return d.savepoint(ctx, "RELEASE SAVEPOINT ", name)
}

// RollbackToSavepoint implements dialect.Savepointer.
func (d *Driver) RollbackToSavepoint(ctx context.Context, name string) error {
	return d.savepoint(ctx, "ROLLBACK TO SAVEPOINT ", name)
}

func (d *Driver) savepoint(ctx context.Context, stmt, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !isValidIdentifier(name) {
		return fmt.Errorf("dialect/sql: invalid savepoint name %q", name)
	}
	if d.tx == nil {
		return &blazeorm.TransactionStateError{Op: strings.ToLower(strings.TrimSpace(stmt)), State: "idle"}
	}
	if _, err := d.tx.ExecContext(ctx, stmt+name); err != nil {
		return d.wrap(stmt+name, nil, err)
	}
	return nil
}

// Close rolls back an open transaction, releases the pinned connection and
// closes the database if the driver opened it.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	if d.tx != nil {
		if err := d.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			errs = append(errs, err)
		}
		d.tx = nil
	}
	if d.conn != nil {
		if err := d.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			errs = append(errs, err)
		}
		d.conn = nil
	}
	if d.owned {
		errs = append(errs, d.db.Close())
	}
	return errors.Join(errs...)
}

// scanRows reads every row as driver values.
func scanRows(rows *sql.Rows) (*dialect.Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &dialect.Result{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// ctxVarsKey is the key used for attaching and reading the context variables.
type ctxVarsKey struct{}

// sessionVars holds sessions/transactions variables to set before every statement.
type sessionVars struct {
	vars []struct{ k, v string }
}

// WithVar returns a new context that holds the session variable to be executed before every statement.
func WithVar(ctx context.Context, name, value string) context.Context {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	sv.vars = append(sv.vars[:len(sv.vars):len(sv.vars)], struct {
		k, v string
	}{
		k: name,
		v: value,
	})
	return context.WithValue(ctx, ctxVarsKey{}, sv)
}

// VarFromContext returns the session variable value from the context.
func VarFromContext(ctx context.Context, name string) (string, bool) {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	for i := len(sv.vars) - 1; i >= 0; i-- {
		if sv.vars[i].k == name {
			return sv.vars[i].v, true
		}
	}
	return "", false
}

// WithIntVar calls WithVar with the string representation of the value.
func WithIntVar(ctx context.Context, name string, value int) context.Context {
	return WithVar(ctx, name, strconv.Itoa(value))
}

// maySetVars sets the session variables of ctx before a statement. Outside a
// transaction the returned function resets them, so the pinned connection
// does not carry them into later statements.
func (d *Driver) maySetVars(ctx context.Context, ex ExecQuerier) (func() error, error) {
	nop := func() error { return nil }
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	if len(sv.vars) == 0 {
		return nop, nil
	}
	if d.dialect.Name() == dialect.SQLite {
		return nil, errors.New("session variables are not supported by sqlite")
	}
	var (
		reset []string
		seen  = make(map[string]struct{}, len(sv.vars))
	)
	for _, s := range sv.vars {
		if !isValidIdentifier(s.k) {
			return nil, fmt.Errorf("invalid session variable name: %q", s.k)
		}
		if _, ok := seen[s.k]; !ok {
			switch d.dialect.Name() {
			case dialect.Postgres:
				reset = append(reset, fmt.Sprintf("RESET %s", s.k))
			case dialect.MySQL:
				reset = append(reset, fmt.Sprintf("SET %s = NULL", s.k))
			}
			seen[s.k] = struct{}{}
		}
		if _, err := ex.ExecContext(ctx, fmt.Sprintf("SET %s = '%s'", s.k, escapeStringValue(s.v))); err != nil {
			return nil, err
		}
	}
	if d.tx != nil {
		return nop, nil
	}
	// The reset runs on a fresh context so it completes even if ctx was canceled.
	return func() error {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, q := range reset {
			if _, err := ex.ExecContext(cleanupCtx, q); err != nil {
				return err
			}
		}
		return nil
	}, nil
}

var (
	_ dialect.Adapter     = (*Driver)(nil)
	_ dialect.Savepointer = (*Driver)(nil)
)
