package session

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/KipianiNikoloz/blazeorm"
	"github.com/KipianiNikoloz/blazeorm/dialect"
)

// TxState is the state of a TxManager.
type TxState uint8

// Transaction states.
const (
	TxIdle TxState = iota
	TxActive
	// TxFailed is entered when the adapter fails to begin, commit or roll
	// back. Only Reset leaves it.
	TxFailed
)

func (s TxState) String() string {
	switch s {
	case TxIdle:
		return "idle"
	case TxActive:
		return "active"
	case TxFailed:
		return "failed"
	}
	return "TxState(" + strconv.Itoa(int(s)) + ")"
}

// Tracker is notified of nested transaction scopes so work registered
// inside a scope can be discarded when the scope rolls back.
type Tracker interface {
	// Mark returns the position at which a nested scope starts.
	Mark() int
	// DiscardSince drops the work registered after mark. reverted reports
	// if the database also reverted the statements executed since mark.
	DiscardSince(mark int, reverted bool)
}

type frame struct {
	savepoint string // empty for logical frames
	mark      int
}

// TxManager sequences begin, commit and rollback against an adapter. The
// outermost scope is a real transaction. Nested scopes are savepoints
// named sp_<n> when the adapter supports them and logical frames
// otherwise.
type TxManager struct {
	mu         sync.Mutex
	adapter    dialect.Adapter
	savepoints bool
	tracker    Tracker
	logger     *slog.Logger
	state      TxState
	frames     []frame
	seq        int
	err        error
}

// TxOption configures a TxManager.
type TxOption func(*TxManager)

// WithTracker sets the tracker of nested scopes.
func WithTracker(t Tracker) TxOption {
	return func(m *TxManager) {
		m.tracker = t
	}
}

// WithTxLogger sets the logger used for warnings.
func WithTxLogger(l *slog.Logger) TxOption {
	return func(m *TxManager) {
		m.logger = l
	}
}

// NewTxManager returns an idle manager for a.
func NewTxManager(a dialect.Adapter, opts ...TxOption) *TxManager {
	m := &TxManager{
		adapter:    a,
		savepoints: dialect.SupportsSavepoints(a),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *TxManager) State() TxState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Depth returns the nesting depth: 0 when idle, 1 inside the outer
// transaction and one more per nested scope.
func (m *TxManager) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != TxActive {
		return 0
	}
	return len(m.frames) + 1
}

// Savepoints reports if nested scopes use savepoints.
func (m *TxManager) Savepoints() bool { return m.savepoints }

// Begin starts the outer transaction, or a nested scope if one is active.
func (m *TxManager) Begin(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case TxFailed:
		return m.failedErr("begin")
	case TxIdle:
		if err := m.adapter.Begin(ctx); err != nil {
			return m.fail(err)
		}
		m.state = TxActive
		return nil
	}
	f := frame{}
	if m.tracker != nil {
		f.mark = m.tracker.Mark()
	}
	if m.savepoints {
		m.seq++
		f.savepoint = "sp_" + strconv.Itoa(m.seq)
		if err := m.adapter.(dialect.Savepointer).Savepoint(ctx, f.savepoint); err != nil {
			return m.fail(err)
		}
	}
	m.frames = append(m.frames, f)
	return nil
}

// Commit commits the innermost scope. Releasing a savepoint or popping a
// logical frame keeps the outer transaction open.
func (m *TxManager) Commit(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("commit"); err != nil {
		return err
	}
	if n := len(m.frames); n > 0 {
		f := m.frames[n-1]
		if f.savepoint != "" {
			if err := m.adapter.(dialect.Savepointer).ReleaseSavepoint(ctx, f.savepoint); err != nil {
				return m.fail(err)
			}
		}
		m.frames = m.frames[:n-1]
		return nil
	}
	if err := m.adapter.Commit(ctx); err != nil {
		return m.fail(err)
	}
	m.state = TxIdle
	return nil
}

// Rollback rolls back the innermost scope. Rolling back a logical frame
// only discards the work tracked inside it: statements it already executed
// stay part of the outer transaction.
func (m *TxManager) Rollback(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("rollback"); err != nil {
		return err
	}
	if n := len(m.frames); n > 0 {
		f := m.frames[n-1]
		if f.savepoint != "" {
			sp := m.adapter.(dialect.Savepointer)
			if err := sp.RollbackToSavepoint(ctx, f.savepoint); err != nil {
				return m.fail(err)
			}
			if err := sp.ReleaseSavepoint(ctx, f.savepoint); err != nil {
				return m.fail(err)
			}
		} else {
			m.logger.WarnContext(ctx, "nested rollback without savepoint support; statements already executed in the scope are kept",
				"depth", n+1)
		}
		m.frames = m.frames[:n-1]
		if m.tracker != nil {
			m.tracker.DiscardSince(f.mark, f.savepoint != "")
		}
		return nil
	}
	if err := m.adapter.Rollback(ctx); err != nil {
		return m.fail(err)
	}
	m.state = TxIdle
	return nil
}

// Reset returns a manager to idle, dropping every scope and failure. It
// does not talk to the adapter.
func (m *TxManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = TxIdle
	m.frames = nil
	m.err = nil
}

// check must be called with mu held.
func (m *TxManager) check(op string) error {
	switch m.state {
	case TxFailed:
		return m.failedErr(op)
	case TxIdle:
		return &blazeorm.TransactionStateError{Op: op, State: TxIdle.String()}
	}
	return nil
}

func (m *TxManager) fail(err error) error {
	m.state = TxFailed
	m.err = err
	return err
}

func (m *TxManager) failedErr(op string) error {
	return &blazeorm.TransactionStateError{Op: op, State: TxFailed.String(), Err: m.err}
}
