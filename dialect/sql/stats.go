package sql

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KipianiNikoloz/blazeorm/dialect"
	"github.com/KipianiNikoloz/blazeorm/internal/redact"
)

// QueryStats holds query execution statistics.
type QueryStats struct {
	// TotalQueries is the total number of queries executed.
	TotalQueries atomic.Int64
	// TotalExecs is the total number of exec statements executed.
	TotalExecs atomic.Int64
	// TotalDuration is the total time spent executing queries.
	TotalDuration atomic.Int64 // nanoseconds
	// SlowQueries is the count of queries exceeding the slow threshold.
	SlowQueries atomic.Int64
	// Errors is the count of query errors.
	Errors atomic.Int64
}

// Stats returns a snapshot of the current statistics.
func (s *QueryStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		TotalQueries:  s.TotalQueries.Load(),
		TotalExecs:    s.TotalExecs.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowQueries:   s.SlowQueries.Load(),
		Errors:        s.Errors.Load(),
	}
}

// Reset resets all statistics to zero.
func (s *QueryStats) Reset() {
	s.TotalQueries.Store(0)
	s.TotalExecs.Store(0)
	s.TotalDuration.Store(0)
	s.SlowQueries.Store(0)
	s.Errors.Store(0)
}

// StatsSnapshot is a point-in-time snapshot of query statistics.
type StatsSnapshot struct {
	TotalQueries  int64
	TotalExecs    int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
}

// AvgQueryDuration returns the average query duration.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	total := s.TotalQueries + s.TotalExecs
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

// String returns a human-readable summary of the statistics.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d duration=%s avg=%s slow=%d errors=%d",
		s.TotalQueries, s.TotalExecs, s.TotalDuration, s.AvgQueryDuration(),
		s.SlowQueries, s.Errors,
	)
}

// SlowQueryHook is a function called when a slow query is detected. Args
// are redacted.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// DefaultSlowThreshold is the slow query threshold of a new StatsAdapter.
const DefaultSlowThreshold = 100 * time.Millisecond

// StatsAdapter wraps an adapter with query statistics collection.
type StatsAdapter struct {
	dialect.Adapter
	stats         *QueryStats
	slowThreshold time.Duration
	slowHook      SlowQueryHook
	mu            sync.RWMutex
}

// StatsOption configures the StatsAdapter.
type StatsOption func(*StatsAdapter)

// WithSlowThreshold sets the threshold for slow query detection.
// Statements taking longer than this duration are counted as slow.
// Default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsAdapter) {
		s.slowThreshold = d
	}
}

// WithSlowQueryHook sets a callback function for slow queries.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsAdapter) {
		s.slowHook = hook
	}
}

// WithSlowQueryLog logs slow queries to logger, or to the default logger
// if it is nil.
func WithSlowQueryLog(logger *slog.Logger) StatsOption {
	return WithSlowQueryHook(func(ctx context.Context, query string, args []any, duration time.Duration) {
		l := logger
		if l == nil {
			l = slog.Default()
		}
		l.WarnContext(ctx, "slow query detected", "duration", duration, "query", query, "args", args)
	})
}

// WithStats shares stats between adapters, e.g. all the sessions of an
// application.
func WithStats(stats *QueryStats) StatsOption {
	return func(s *StatsAdapter) {
		s.stats = stats
	}
}

// NewStatsAdapter wraps an adapter with statistics collection.
//
// Example:
//
//	drv, _ := sql.OpenDSN("postgres://localhost/app")
//	stats := sql.NewStatsAdapter(drv,
//	    sql.WithSlowThreshold(200*time.Millisecond),
//	    sql.WithSlowQueryLog(nil),
//	)
//	s, _ := session.New(stats, registry)
//
//	// Later, check statistics:
//	fmt.Println(stats.QueryStats().Stats())
func NewStatsAdapter(a dialect.Adapter, opts ...StatsOption) *StatsAdapter {
	s := &StatsAdapter{
		Adapter:       a,
		stats:         &QueryStats{},
		slowThreshold: DefaultSlowThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryStats returns the underlying QueryStats for reading statistics.
func (s *StatsAdapter) QueryStats() *QueryStats {
	return s.stats
}

// SlowThreshold returns the current slow query threshold.
func (s *StatsAdapter) SlowThreshold() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slowThreshold
}

// SetSlowThreshold updates the slow query threshold.
func (s *StatsAdapter) SetSlowThreshold(threshold time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slowThreshold = threshold
}

// Dialect implements dialect.Adapter. Savepoints are reported only when the
// wrapped adapter can manage them.
func (s *StatsAdapter) Dialect() dialect.Dialect {
	return wrappedDialect(s.Adapter)
}

// Query executes a query and records statistics.
func (s *StatsAdapter) Query(ctx context.Context, query string, args []any) (*dialect.Result, error) {
	start := time.Now()
	res, err := s.Adapter.Query(ctx, query, args)
	s.record(ctx, query, args, start, err, true)
	return res, err
}

// Exec executes a statement and records statistics.
func (s *StatsAdapter) Exec(ctx context.Context, query string, args []any) (*dialect.Result, error) {
	start := time.Now()
	res, err := s.Adapter.Exec(ctx, query, args)
	s.record(ctx, query, args, start, err, false)
	return res, err
}

// ExecMany executes a statement per argument set and records it as one
// exec.
func (s *StatsAdapter) ExecMany(ctx context.Context, query string, argSets [][]any) (*dialect.Result, error) {
	start := time.Now()
	res, err := s.Adapter.ExecMany(ctx, query, argSets)
	s.record(ctx, query, nil, start, err, false)
	return res, err
}

func (s *StatsAdapter) record(ctx context.Context, query string, args []any, start time.Time, err error, isQuery bool) {
	duration := time.Since(start)
	if isQuery {
		s.stats.TotalQueries.Add(1)
	} else {
		s.stats.TotalExecs.Add(1)
	}
	s.stats.TotalDuration.Add(int64(duration))

	if err != nil {
		s.stats.Errors.Add(1)
	}

	s.mu.RLock()
	threshold := s.slowThreshold
	hook := s.slowHook
	s.mu.RUnlock()

	if duration > threshold {
		s.stats.SlowQueries.Add(1)
		if hook != nil {
			hook(ctx, query, redact.Args(args), duration)
		}
	}
}

// Savepoint implements dialect.Savepointer.
func (s *StatsAdapter) Savepoint(ctx context.Context, name string) error {
	sp, err := savepointer(s.Adapter)
	if err != nil {
		return err
	}
	return sp.Savepoint(ctx, name)
}

// ReleaseSavepoint implements dialect.Savepointer.
func (s *StatsAdapter) ReleaseSavepoint(ctx context.Context, name string) error {
	sp, err := savepointer(s.Adapter)
	if err != nil {
		return err
	}
	return sp.ReleaseSavepoint(ctx, name)
}

// RollbackToSavepoint implements dialect.Savepointer.
func (s *StatsAdapter) RollbackToSavepoint(ctx context.Context, name string) error {
	sp, err := savepointer(s.Adapter)
	if err != nil {
		return err
	}
	return sp.RollbackToSavepoint(ctx, name)
}

// DebugAdapter wraps an adapter with debug logging.
type DebugAdapter struct {
	dialect.Adapter
	log func(context.Context, string, ...any)
}

// DebugOption configures the DebugAdapter.
type DebugOption func(*DebugAdapter)

// DebugWithLog sets a custom log function. It receives a message and
// slog-style attributes; statement args are redacted.
func DebugWithLog(logFunc func(context.Context, string, ...any)) DebugOption {
	return func(d *DebugAdapter) {
		d.log = logFunc
	}
}

// DebugWithLogger logs to logger at debug level.
func DebugWithLogger(logger *slog.Logger) DebugOption {
	return DebugWithLog(logger.DebugContext)
}

// NewDebugAdapter wraps an adapter with debug logging.
//
// Example:
//
//	drv, _ := sql.OpenDSN("sqlite:///app.db")
//	dbg := sql.NewDebugAdapter(drv, sql.DebugWithLogger(logger))
//	s, _ := session.New(dbg, registry)
func NewDebugAdapter(a dialect.Adapter, opts ...DebugOption) *DebugAdapter {
	d := &DebugAdapter{
		Adapter: a,
		log: func(ctx context.Context, msg string, args ...any) {
			slog.InfoContext(ctx, msg, args...)
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dialect implements dialect.Adapter.
func (d *DebugAdapter) Dialect() dialect.Dialect {
	return wrappedDialect(d.Adapter)
}

// Query executes a query and logs it.
func (d *DebugAdapter) Query(ctx context.Context, query string, args []any) (*dialect.Result, error) {
	d.log(ctx, "query", "sql", query, "args", redact.Args(args))
	return d.Adapter.Query(ctx, query, args)
}

// Exec executes a statement and logs it.
func (d *DebugAdapter) Exec(ctx context.Context, query string, args []any) (*dialect.Result, error) {
	d.log(ctx, "exec", "sql", query, "args", redact.Args(args))
	return d.Adapter.Exec(ctx, query, args)
}

// ExecMany executes a statement per argument set and logs it.
func (d *DebugAdapter) ExecMany(ctx context.Context, query string, argSets [][]any) (*dialect.Result, error) {
	d.log(ctx, "exec many", "sql", query, "sets", len(argSets))
	return d.Adapter.ExecMany(ctx, query, argSets)
}

// Begin starts a transaction and logs it.
func (d *DebugAdapter) Begin(ctx context.Context) error {
	d.log(ctx, "begin transaction")
	return d.Adapter.Begin(ctx)
}

// Commit commits the transaction and logs it.
func (d *DebugAdapter) Commit(ctx context.Context) error {
	d.log(ctx, "commit transaction")
	return d.Adapter.Commit(ctx)
}

// Rollback rolls back the transaction and logs it.
func (d *DebugAdapter) Rollback(ctx context.Context) error {
	d.log(ctx, "rollback transaction")
	return d.Adapter.Rollback(ctx)
}

// Savepoint implements dialect.Savepointer.
func (d *DebugAdapter) Savepoint(ctx context.Context, name string) error {
	d.log(ctx, "savepoint", "name", name)
	sp, err := savepointer(d.Adapter)
	if err != nil {
		return err
	}
	return sp.Savepoint(ctx, name)
}

// ReleaseSavepoint implements dialect.Savepointer.
func (d *DebugAdapter) ReleaseSavepoint(ctx context.Context, name string) error {
	d.log(ctx, "release savepoint", "name", name)
	sp, err := savepointer(d.Adapter)
	if err != nil {
		return err
	}
	return sp.ReleaseSavepoint(ctx, name)
}

// RollbackToSavepoint implements dialect.Savepointer.
func (d *DebugAdapter) RollbackToSavepoint(ctx context.Context, name string) error {
	d.log(ctx, "rollback to savepoint", "name", name)
	sp, err := savepointer(d.Adapter)
	if err != nil {
		return err
	}
	return sp.RollbackToSavepoint(ctx, name)
}

func savepointer(a dialect.Adapter) (dialect.Savepointer, error) {
	sp, ok := a.(dialect.Savepointer)
	if !ok {
		return nil, fmt.Errorf("dialect/sql: %T does not support savepoints", a)
	}
	return sp, nil
}

// wrappedDialect returns the dialect of a, without savepoints if a cannot
// manage them.
func wrappedDialect(a dialect.Adapter) dialect.Dialect {
	if dialect.SupportsSavepoints(a) || !a.Dialect().Capabilities().Savepoints {
		return a.Dialect()
	}
	return dialect.WithoutSavepoints(a.Dialect())
}

// Ensure interfaces are implemented.
var (
	_ dialect.Adapter     = (*StatsAdapter)(nil)
	_ dialect.Savepointer = (*StatsAdapter)(nil)
	_ dialect.Adapter     = (*DebugAdapter)(nil)
	_ dialect.Savepointer = (*DebugAdapter)(nil)
)

// OpenWithStats opens a connection URL with statistics collection enabled.
//
// Example:
//
//	stats, err := sql.OpenWithStats("postgres://localhost/app",
//	    sql.WithSlowThreshold(100*time.Millisecond),
//	    sql.WithSlowQueryLog(nil),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go func() {
//	    for range time.Tick(time.Minute) {
//	        log.Printf("query stats: %s", stats.QueryStats().Stats())
//	    }
//	}()
func OpenWithStats(dsn string, opts ...StatsOption) (*StatsAdapter, error) {
	drv, err := OpenDSN(dsn)
	if err != nil {
		return nil, err
	}
	return NewStatsAdapter(drv, opts...), nil
}
