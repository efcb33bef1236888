// Package query implements revision-tracked memoization. Inputs are written
// by a single writer that bumps a global revision; derived queries record the
// inputs and queries they read and are re-validated against those
// dependencies instead of being recomputed.
package query

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Revision is a monotonically increasing write counter. Revision 1 is the
// state of a freshly created Runtime.
type Revision uint64

// ErrCancelled is returned by any query whose transaction observed a write
// (or a cancelled context) after it started. Callers must not use partial
// results and should retry after the edit settles.
var ErrCancelled = errors.New("query: cancelled")

// DefaultCapacity bounds each memo table unless WithCapacity overrides it.
const DefaultCapacity = 1 << 16

// EventKind classifies what a memo table did for a key.
type EventKind int

const (
	// EventExecuted means the query function ran.
	EventExecuted EventKind = iota
	// EventValidated means the cached value was confirmed without running.
	EventValidated
)

func (k EventKind) String() string {
	switch k {
	case EventExecuted:
		return "executed"
	case EventValidated:
		return "validated"
	}
	return "unknown"
}

// Event describes one memo table action.
type Event struct {
	Query    string
	Key      any
	Kind     EventKind
	Revision Revision
}

// sweeper is implemented by every memo table so the Runtime can drop stale
// entries.
type sweeper interface {
	sweep(current Revision) int
}

// Runtime owns the revision counter and the write lock. All tables created
// against a Runtime share its revision.
type Runtime struct {
	mu       sync.RWMutex // held for writing by Input.Set/Remove
	revision atomic.Uint64

	capacity int
	hook     func(Event)

	tablesMu sync.Mutex
	tables   []sweeper
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithEventHook registers fn to observe memo executions and validations.
// fn may be called from several goroutines at once.
func WithEventHook(fn func(Event)) Option {
	return func(rt *Runtime) {
		rt.hook = fn
	}
}

// WithCapacity bounds the number of keys each memo table retains. Evicted
// entries are recomputed on demand.
func WithCapacity(n int) Option {
	return func(rt *Runtime) {
		if n > 0 {
			rt.capacity = n
		}
	}
}

// NewRuntime creates a Runtime at revision 1.
func NewRuntime(opts ...Option) *Runtime {
	rt := &Runtime{capacity: DefaultCapacity}
	rt.revision.Store(1)
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Revision returns the current revision.
func (rt *Runtime) Revision() Revision {
	return Revision(rt.revision.Load())
}

// Sweep drops every memoized entry that was not verified at the current
// revision and returns how many were removed.
func (rt *Runtime) Sweep() int {
	current := rt.Revision()
	rt.tablesMu.Lock()
	tables := append([]sweeper(nil), rt.tables...)
	rt.tablesMu.Unlock()

	removed := 0
	for _, t := range tables {
		removed += t.sweep(current)
	}
	return removed
}

func (rt *Runtime) register(t sweeper) {
	rt.tablesMu.Lock()
	rt.tables = append(rt.tables, t)
	rt.tablesMu.Unlock()
}

// bump must be called with rt.mu held for writing.
func (rt *Runtime) bump() Revision {
	return Revision(rt.revision.Add(1))
}

func (rt *Runtime) emit(e Event) {
	if rt.hook != nil {
		rt.hook(e)
	}
}
