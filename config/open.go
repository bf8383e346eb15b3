package config

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/KipianiNikoloz/blazeorm/cache"
	"github.com/KipianiNikoloz/blazeorm/dialect"
	"github.com/KipianiNikoloz/blazeorm/dialect/sql"
	"github.com/KipianiNikoloz/blazeorm/schema"
	"github.com/KipianiNikoloz/blazeorm/session"
)

// DB is a database opened from a Config: the driver, its statistics and
// debug wrappers, and the shared second-level cache.
type DB struct {
	driver   *sql.Driver
	stats    *sql.StatsAdapter
	adapter  dialect.Adapter
	registry *schema.Registry
	cache    *cache.Memory
	logger   *slog.Logger
	cfg      *Config
	slow     atomic.Int64
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	driverOpts []sql.Option
}

// WithLogger sets the logger of the adapters and sessions.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithDriverOptions passes options to the sql driver.
func WithDriverOptions(opts ...sql.Option) Option {
	return func(o *options) {
		o.driverOpts = append(o.driverOpts, opts...)
	}
}

// Open connects to cfg.DSN and wraps the driver with statistics and, in
// debug mode, statement logging.
func Open(cfg *Config, reg *schema.Registry, opts ...Option) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	drv, err := sql.OpenDSN(cfg.DSN, o.driverOpts...)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", sql.Redacted(cfg.DSN), err)
	}
	db := &DB{
		driver:   drv,
		registry: reg,
		logger:   o.logger,
		cfg:      cfg,
	}
	db.slow.Store(int64(cfg.SlowQuery))
	db.stats = sql.NewStatsAdapter(drv,
		sql.WithSlowThreshold(cfg.SlowQuery.Std()),
		sql.WithSlowQueryLog(o.logger),
	)
	db.adapter = db.stats
	if cfg.Debug {
		db.adapter = sql.NewDebugAdapter(db.stats, sql.DebugWithLogger(o.logger))
	}
	if cfg.Cache.Enabled {
		var copts []cache.MemoryOption
		if cfg.Cache.MaxEntries > 0 {
			copts = append(copts, cache.WithMaxEntries(cfg.Cache.MaxEntries))
		}
		db.cache = cache.NewMemory(copts...)
	}
	o.logger.Debug("database opened", "config", cfg)
	return db, nil
}

// Session opens a session on the database. The configured thresholds and
// cache apply first; opts may override them. Sessions of one DB share its
// connection and must not run concurrently.
func (db *DB) Session(opts ...session.Option) (*session.Session, error) {
	base := []session.Option{
		session.WithLogger(db.logger),
		session.WithSlowQueryThreshold(db.SlowThreshold()),
	}
	if db.cfg.NPlusOne > 0 {
		base = append(base, session.WithNPlusOneThreshold(db.cfg.NPlusOne))
	}
	if db.cache != nil {
		base = append(base, session.WithCache(db.cache))
		if db.cfg.Cache.TTL > 0 {
			base = append(base, session.WithCacheTTL(db.cfg.Cache.TTL.Std()))
		}
	}
	return session.New(db.adapter, db.registry, append(base, opts...)...)
}

// SlowThreshold returns the current slow query threshold.
func (db *DB) SlowThreshold() time.Duration {
	return time.Duration(db.slow.Load())
}

// SetSlowThreshold updates the slow query threshold of the statistics
// adapter and of the sessions opened afterwards.
func (db *DB) SetSlowThreshold(d time.Duration) {
	db.slow.Store(int64(d))
	db.stats.SetSlowThreshold(d)
}

// Adapter returns the outermost adapter sessions execute on.
func (db *DB) Adapter() dialect.Adapter { return db.adapter }

// Stats returns the statistics adapter.
func (db *DB) Stats() *sql.StatsAdapter { return db.stats }

// Driver returns the underlying sql driver.
func (db *DB) Driver() *sql.Driver { return db.driver }

// Cache returns the shared cache, or nil when caching is disabled.
func (db *DB) Cache() *cache.Memory { return db.cache }

// Close closes the driver.
func (db *DB) Close() error {
	return db.driver.Close()
}
