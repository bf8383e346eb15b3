// Package session reconciles query results into one live instance per
// primary key, tracks pending writes and runs them in dependency order
// inside transactions and savepoints.
//
//	s, err := session.New(drv, reg, session.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	err = s.Run(ctx, func(ctx context.Context, s *session.Session) error {
//		authors, err := s.Query(author).Filter("name__startswith", "A").Prefetch("books").All(ctx)
//		...
//	})
//
// A Session is meant for one logical unit of work used sequentially. Its
// identity map and unit of work are guarded against accidental concurrent
// use, not designed for it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KipianiNikoloz/blazeorm"
	"github.com/KipianiNikoloz/blazeorm/cache"
	"github.com/KipianiNikoloz/blazeorm/dialect"
	"github.com/KipianiNikoloz/blazeorm/internal/batch"
	"github.com/KipianiNikoloz/blazeorm/internal/redact"
	"github.com/KipianiNikoloz/blazeorm/query"
	"github.com/KipianiNikoloz/blazeorm/schema"
	"github.com/KipianiNikoloz/blazeorm/schema/field"
)

// DefaultSlowQueryThreshold is the default duration above which statements
// are logged as slow.
const DefaultSlowQueryThreshold = 100 * time.Millisecond

// Session is bound to one adapter, its dialect and a frozen registry.
type Session struct {
	id       string
	adapter  dialect.Adapter
	dialect  dialect.Dialect
	registry *schema.Registry
	identity *IdentityMap
	uow      *UnitOfWork
	tx       *TxManager
	hooks    Hooks
	logger   *slog.Logger
	perf     *perfTracker

	cache    blazeorm.Cache
	cacheTTL time.Duration
	codec    cache.Codec
	loader   *cache.Loader

	slow        time.Duration
	nPlusOne    int
	entityOrder map[*schema.Entity]int

	mu        sync.Mutex
	closed    bool
	persisted []persisted
}

// persisted is an instance written in the current transaction, reported
// to PostCommit hooks once the transaction commits.
type persisted struct {
	inst *Instance
	op   Op
	seq  int
}

// Option configures a Session.
type Option func(*Session)

// WithCache sets the second-level cache consulted by Get.
func WithCache(c blazeorm.Cache) Option {
	return func(s *Session) {
		s.cache = c
	}
}

// WithCacheTTL sets the expiration of cache entries. Zero never expires.
func WithCacheTTL(d time.Duration) Option {
	return func(s *Session) {
		s.cacheTTL = d
	}
}

// WithCodec sets the codec of cache entries. Defaults to cache.MsgPack.
func WithCodec(c cache.Codec) Option {
	return func(s *Session) {
		s.codec = c
	}
}

// WithHooks sets the lifecycle hook dispatcher.
func WithHooks(h Hooks) Option {
	return func(s *Session) {
		s.hooks = h
	}
}

// WithLogger sets the logger. Records carry the session id.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithSlowQueryThreshold sets the duration above which statements are
// logged as slow. Zero disables slow query logging.
func WithSlowQueryThreshold(d time.Duration) Option {
	return func(s *Session) {
		s.slow = d
	}
}

// WithNPlusOneThreshold sets how many executions of one SQL text with
// different arguments are reported as a possible N+1 pattern. Zero
// disables detection.
func WithNPlusOneThreshold(n int) Option {
	return func(s *Session) {
		s.nPlusOne = n
	}
}

// WithID sets the session id. Defaults to a random UUID.
func WithID(id string) Option {
	return func(s *Session) {
		s.id = id
	}
}

// New returns a session executing statements through a. The registry must
// be frozen.
func New(a dialect.Adapter, reg *schema.Registry, opts ...Option) (*Session, error) {
	if a == nil {
		return nil, errors.New("session: nil adapter")
	}
	if reg == nil || !reg.Frozen() {
		return nil, errors.New("session: registry must be frozen")
	}
	s := &Session{
		adapter:  a,
		dialect:  a.Dialect(),
		registry: reg,
		identity: NewIdentityMap(),
		uow:      NewUnitOfWork(),
		hooks:    noHooks{},
		logger:   slog.Default(),
		codec:    cache.MsgPack,
		slow:     DefaultSlowQueryThreshold,
		nPlusOne: DefaultNPlusOneThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	s.logger = s.logger.With("session_id", s.id)
	s.tx = NewTxManager(a, WithTracker(s), WithTxLogger(s.logger))
	s.perf = newPerfTracker(s.nPlusOne, s.logger)
	if s.cache != nil {
		s.loader = cache.NewLoader(s.cache, s.cacheTTL)
	}
	s.entityOrder = dependencyOrder(reg)
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Dialect returns the dialect statements of this session are compiled with.
func (s *Session) Dialect() dialect.Dialect { return s.dialect }

// Registry returns the registry of the session.
func (s *Session) Registry() *schema.Registry { return s.registry }

// IdentityMap returns the identity map of the session.
func (s *Session) IdentityMap() *IdentityMap { return s.identity }

// UnitOfWork returns the pending writes of the session.
func (s *Session) UnitOfWork() *UnitOfWork { return s.uow }

// Tx returns the transaction manager of the session.
func (s *Session) Tx() *TxManager { return s.tx }

// Logger returns the session logger.
func (s *Session) Logger() *slog.Logger { return s.logger }

// QueryStats returns the number of executions per SQL text.
func (s *Session) QueryStats() map[string]int { return s.perf.snapshot() }

// Entity returns the registered entity with the given name.
func (s *Session) Entity(name string) (*schema.Entity, error) {
	e, ok := s.registry.Entity(name)
	if !ok {
		return nil, blazeorm.NewUnknownFieldError("registry", name)
	}
	return e, nil
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return blazeorm.ErrSessionClosed
	}
	return nil
}

// Execute runs a statement that returns rows. The statement must have been
// compiled with the session dialect.
func (s *Session) Execute(ctx context.Context, st *query.Statement) (*dialect.Result, error) {
	return s.run(ctx, st, true)
}

// Exec runs a statement that does not return rows.
func (s *Session) Exec(ctx context.Context, st *query.Statement) (*dialect.Result, error) {
	return s.run(ctx, st, false)
}

func (s *Session) run(ctx context.Context, st *query.Statement, rows bool) (*dialect.Result, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if st.Dialect != s.dialect.Name() {
		return nil, blazeorm.NewDialectMismatchError(st.Dialect, s.dialect.Name())
	}
	start := time.Now()
	var (
		res *dialect.Result
		err error
	)
	if rows {
		res, err = s.adapter.Query(ctx, st.SQL, st.Args)
	} else {
		res, err = s.adapter.Exec(ctx, st.SQL, st.Args)
	}
	s.record(ctx, st.SQL, st.Args, time.Since(start), err)
	return res, err
}

func (s *Session) execMany(ctx context.Context, sql string, argSets [][]any) (*dialect.Result, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := s.adapter.ExecMany(ctx, sql, argSets)
	var args []any
	if len(argSets) > 0 {
		args = argSets[0]
	}
	s.record(ctx, sql, args, time.Since(start), err)
	return res, err
}

func (s *Session) record(ctx context.Context, sql string, args []any, d time.Duration, err error) {
	s.perf.record(sql, args)
	attrs := []any{"sql", sql, "args", redact.Args(args), "duration", d}
	switch {
	case err != nil:
		s.logger.DebugContext(ctx, "statement failed", append(attrs, "error", err)...)
	case s.slow > 0 && d >= s.slow:
		s.logger.WarnContext(ctx, "slow query detected", attrs...)
	default:
		s.logger.DebugContext(ctx, "statement", attrs...)
	}
}

// Materialize returns the instance of e for a row keyed by column name.
// An instance already in the identity map is returned after its clean
// fields were refreshed from the row; otherwise a new persistent instance
// is registered.
func (s *Session) Materialize(e *schema.Entity, row map[string]any) (*Instance, error) {
	values := make(map[string]any, len(row))
	for col, raw := range row {
		fd, ok := e.FieldByColumn(col)
		if !ok {
			continue
		}
		v, err := field.Coerce(fd.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("session: materialize %s.%s: %w", e.Name, fd.Name, err)
		}
		values[fd.Name] = v
	}
	pk := values[e.PK().Name]
	if pk == nil {
		return nil, fmt.Errorf("session: materialize %s: row has no primary key %q", e.Name, e.PK().Column)
	}
	if inst, ok := s.identity.Get(e, pk); ok {
		inst.refresh(values)
		return inst, nil
	}
	inst := NewInstance(e)
	for _, fd := range e.Fields() {
		inst.values[fd.Name] = values[fd.Name]
	}
	inst.session = s
	inst.state = Persistent
	if err := s.identity.Add(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// MaterializeAll materializes every row of res.
func (s *Session) MaterializeAll(e *schema.Entity, res *dialect.Result) ([]*Instance, error) {
	out := make([]*Instance, 0, len(res.Rows))
	for _, row := range res.Maps() {
		inst, err := s.Materialize(e, row)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// New creates a pending instance of e with the given field values.
func (s *Session) New(e *schema.Entity, values map[string]any) (*Instance, error) {
	inst := NewInstance(e)
	for name, v := range values {
		if err := inst.Set(name, v); err != nil {
			return nil, err
		}
	}
	if err := s.Add(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// Add schedules the insert of a transient instance.
func (s *Session) Add(inst *Instance) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	switch {
	case inst.session != nil && inst.session != s:
		return fmt.Errorf("session: %s belongs to another session", inst)
	case inst.state == Deleted, s.uow.IsDeleted(inst):
		return blazeorm.ErrInstanceDeleted
	case inst.state == Persistent:
		return nil
	}
	if err := s.uow.RegisterNew(inst); err != nil {
		return err
	}
	inst.session = s
	inst.state = Pending
	return nil
}

// MarkDirty schedules the update of a persistent instance.
func (s *Session) MarkDirty(inst *Instance) error {
	if err := s.owns(inst); err != nil {
		return err
	}
	if inst.state == Deleted {
		return blazeorm.ErrInstanceDeleted
	}
	return s.uow.MarkDirty(inst)
}

// Delete schedules the delete of inst. Deleting a pending instance cancels
// its insert.
func (s *Session) Delete(inst *Instance) error {
	if err := s.owns(inst); err != nil {
		return err
	}
	if inst.state == Deleted {
		return nil
	}
	s.uow.MarkDeleted(inst)
	if inst.state == Pending {
		inst.state = Transient
		inst.session = nil
	}
	return nil
}

func (s *Session) owns(inst *Instance) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if inst.session != s {
		return fmt.Errorf("session: %s is not attached to this session", inst)
	}
	return nil
}

// Get returns the instance of e with key pk from the identity map, the
// second-level cache or the database, in that order.
func (s *Session) Get(ctx context.Context, e *schema.Entity, pk any) (*Instance, error) {
	key, err := field.Coerce(e.PK().Type, pk)
	if err != nil || key == nil {
		return nil, fmt.Errorf("session: invalid key %v for %s", pk, e.Name)
	}
	if inst, ok := s.identity.Get(e, key); ok {
		if inst.Deleted() {
			return nil, blazeorm.NewNotFoundErrorWithID(e.Name, key)
		}
		return inst, nil
	}
	if s.loader == nil {
		insts, err := s.fetchByKeys(ctx, e, []any{key})
		if err != nil {
			return nil, err
		}
		if len(insts) == 0 {
			return nil, blazeorm.NewNotFoundErrorWithID(e.Name, key)
		}
		return insts[0], nil
	}
	ck := blazeorm.CacheKey{Entity: e.Name, PK: key}.String()
	data, err := s.loader.Load(ctx, ck, func(ctx context.Context) ([]byte, error) {
		res, err := s.selectByKeys(ctx, e, []any{key})
		if err != nil || len(res.Rows) == 0 {
			return nil, err
		}
		return cache.EncodeValues(s.codec, res.Maps()[0])
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, blazeorm.NewNotFoundErrorWithID(e.Name, key)
	}
	row, err := cache.DecodeValues(s.codec, data)
	if err != nil {
		return nil, err
	}
	return s.Materialize(e, row)
}

// GetMany returns the instances of e with the given keys, in key order,
// with one query for the keys missing from the identity map. Missing rows
// are reported by a NotFoundError.
func (s *Session) GetMany(ctx context.Context, e *schema.Entity, pks ...any) ([]*Instance, error) {
	keys := make([]any, len(pks))
	var missing []any
	for i, pk := range pks {
		k, err := field.Coerce(e.PK().Type, pk)
		if err != nil || k == nil {
			return nil, fmt.Errorf("session: invalid key %v for %s", pk, e.Name)
		}
		keys[i] = k
		if _, ok := s.identity.Get(e, k); !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		if _, err := s.fetchByKeys(ctx, e, missing); err != nil {
			return nil, err
		}
	}
	var found []*Instance
	for _, k := range keys {
		if inst, ok := s.identity.Get(e, k); ok && !inst.Deleted() {
			found = append(found, inst)
		}
	}
	ordered, errs := batch.OrderByKeys(keys, found, func(i *Instance) any { return i.PK() })
	for i, err := range errs {
		if err != nil {
			return nil, blazeorm.NewNotFoundErrorWithID(e.Name, keys[i])
		}
	}
	return ordered, nil
}

func (s *Session) selectByKeys(ctx context.Context, e *schema.Entity, keys []any) (*dialect.Result, error) {
	st, err := query.Compile(query.Select(e).Where(query.PK(e).In(keys...)), s.dialect)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, st)
}

func (s *Session) fetchByKeys(ctx context.Context, e *schema.Entity, keys []any) ([]*Instance, error) {
	res, err := s.selectByKeys(ctx, e, keys)
	if err != nil {
		return nil, err
	}
	return s.MaterializeAll(e, res)
}

// Begin starts a transaction, or a nested scope inside the active one.
// Work pending in the enclosing scope is flushed before a nested scope
// opens, so rolling the nested scope back never reverts it.
func (s *Session) Begin(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.tx.State() == TxActive {
		if err := s.Flush(ctx); err != nil {
			return err
		}
	}
	return s.tx.Begin(ctx)
}

// Commit flushes pending work and commits the innermost scope. When the
// outer transaction commits, PostCommit hooks fire for every instance
// written in it. Hook failures are logged.
func (s *Session) Commit(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if st := s.tx.State(); st != TxActive {
		return s.tx.Commit(ctx)
	}
	if err := s.Flush(ctx); err != nil {
		return err
	}
	if err := s.tx.Commit(ctx); err != nil {
		return err
	}
	if s.tx.Depth() > 0 {
		return nil
	}
	s.mu.Lock()
	done := s.persisted
	s.persisted = nil
	s.mu.Unlock()
	for _, p := range done {
		if err := s.hooks.Fire(ctx, PostCommit, s, p.inst); err != nil {
			s.logger.ErrorContext(ctx, "post commit hook failed", "instance", p.inst.String(), "error", err)
		}
	}
	return nil
}

// Rollback rolls back the innermost scope. Rolling back the outer
// transaction discards all pending work and evicts the instances inserted
// in it. Field values already assigned to instances are not restored.
func (s *Session) Rollback(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	outer := s.tx.Depth() == 1
	if err := s.tx.Rollback(ctx); err != nil {
		return err
	}
	if outer {
		s.DiscardSince(0, true)
	}
	return nil
}

// Mark implements Tracker.
func (s *Session) Mark() int { return s.uow.Mark() }

// DiscardSince implements Tracker. Pending instances registered inside the
// scope return to transient. When the database reverted the scope,
// instances inserted inside it leave the identity map and return to
// transient.
func (s *Session) DiscardSince(mark int, reverted bool) {
	for _, inst := range s.uow.DiscardSince(mark) {
		if inst.state == Pending {
			inst.state = Transient
			inst.session = nil
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.persisted[:0]
	for _, p := range s.persisted {
		if p.seq <= mark {
			kept = append(kept, p)
			continue
		}
		if !reverted {
			kept = append(kept, p)
			continue
		}
		if p.op == OpInsert {
			s.identity.Remove(p.inst)
			p.inst.state = Transient
			p.inst.session = nil
		}
	}
	s.persisted = kept
}

func (s *Session) discardPending() {
	for _, inst := range s.uow.Instances(OpInsert) {
		inst.state = Transient
		inst.session = nil
	}
	s.uow.Clear()
}

// Close rolls back an open transaction, resets the transaction state and
// drops every tracked instance. The adapter is not closed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.persisted = nil
	s.mu.Unlock()
	var err error
	if s.tx.State() == TxActive {
		err = s.adapter.Rollback(context.Background())
	}
	s.tx.Reset()
	s.discardPending()
	s.identity.Clear()
	return err
}

// Run runs fn in a transaction with s bound to the context passed to fn.
// The transaction commits when fn returns nil and rolls back when fn fails
// or panics. Nested calls use nested scopes.
func (s *Session) Run(ctx context.Context, fn func(ctx context.Context, s *Session) error) (err error) {
	if err := s.Begin(ctx); err != nil {
		return err
	}
	defer func() {
		if v := recover(); v != nil {
			_ = s.Rollback(ctx)
			panic(v)
		}
	}()
	if err := fn(NewContext(ctx, s), s); err != nil {
		if rerr := s.Rollback(ctx); rerr != nil {
			return fmt.Errorf("%w: %w", err, &blazeorm.RollbackError{Err: rerr})
		}
		return err
	}
	if err := s.Commit(ctx); err != nil {
		if s.tx.State() == TxActive {
			if rerr := s.Rollback(ctx); rerr != nil {
				return fmt.Errorf("%w: %w", err, &blazeorm.RollbackError{Err: rerr})
			}
		}
		return err
	}
	return nil
}

// Query returns a query set over e bound to s.
func (s *Session) Query(e *schema.Entity) *QuerySet {
	return newQuerySet(s, e)
}

// Related returns the instances of the named relation of inst, loading the
// relation with one query if it is not loaded.
func (s *Session) Related(ctx context.Context, inst *Instance, name string) ([]*Instance, error) {
	rel, ok := inst.entity.Relation(name)
	if !ok {
		return nil, blazeorm.NewUnknownFieldError(inst.entity.Name, name)
	}
	if rs, ok := inst.Related(name); ok {
		return rs, nil
	}
	if err := s.loadLevel(ctx, rel, []*Instance{inst}); err != nil {
		return nil, err
	}
	rs, _ := inst.Related(name)
	return rs, nil
}

// Refresh reloads the clean fields of inst from the database.
func (s *Session) Refresh(ctx context.Context, inst *Instance) error {
	if err := s.owns(inst); err != nil {
		return err
	}
	if inst.PK() == nil || inst.state != Persistent {
		return fmt.Errorf("session: %s is not persistent", inst)
	}
	insts, err := s.fetchByKeys(ctx, inst.entity, []any{inst.PK()})
	if err != nil {
		return err
	}
	if len(insts) == 0 {
		return blazeorm.NewNotFoundErrorWithID(inst.entity.Name, inst.PK())
	}
	return nil
}

var _ Tracker = (*Session)(nil)
