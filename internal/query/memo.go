package query

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Memo is a table of derived values keyed by K. Values are computed on first
// use and re-validated, not recomputed, while their dependencies are
// unchanged. Published values are never mutated.
type Memo[K comparable, V any] struct {
	rt      *Runtime
	name    string
	compute func(tx *Tx, key K) (V, error)
	equal   func(a, b V) bool

	mu    sync.Mutex // guards slot creation
	slots *lru.Cache[K, *slot[V]]
}

type slot[V any] struct {
	mu   sync.Mutex
	memo *memo[V]
}

type memo[V any] struct {
	value      V
	verifiedAt Revision
	changedAt  Revision
	deps       []dep
}

// NewMemo creates a memo table named name. When equal is non-nil and a
// recomputation yields a value equal to the previous one, the previous value
// is kept together with its old change revision, so dependants are not
// invalidated.
func NewMemo[K comparable, V any](rt *Runtime, name string, compute func(tx *Tx, key K) (V, error), equal func(a, b V) bool) *Memo[K, V] {
	slots, err := lru.New[K, *slot[V]](rt.capacity)
	if err != nil {
		panic(fmt.Sprintf("query: memo %s: %v", name, err))
	}
	m := &Memo[K, V]{
		rt:      rt,
		name:    name,
		compute: compute,
		equal:   equal,
		slots:   slots,
	}
	rt.register(m)
	return m
}

// Name returns the table name used in events.
func (m *Memo[K, V]) Name() string {
	return m.name
}

// Get returns the value for key as of tx's revision, computing or
// re-validating it as needed, and records the dependency in the caller.
func (m *Memo[K, V]) Get(tx *Tx, key K) (V, error) {
	var zero V
	if err := tx.Check(); err != nil {
		return zero, err
	}
	mm, err := m.fetch(tx, key)
	if err != nil {
		return zero, err
	}
	tx.record(memoDep[K, V]{m: m, key: key})
	return mm.value, nil
}

// Len returns the number of keys currently held.
func (m *Memo[K, V]) Len() int {
	return m.slots.Len()
}

func (m *Memo[K, V]) slotFor(key K) *slot[V] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.slots.Get(key); ok {
		return s
	}
	s := &slot[V]{}
	m.slots.Add(key, s)
	return s
}

func (m *Memo[K, V]) fetch(tx *Tx, key K) (*memo[V], error) {
	tx.push(activeKey{table: m, key: key})
	defer tx.pop()

	s := m.slotFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.memo
	if old != nil {
		if old.verifiedAt == tx.revision {
			return old, nil
		}
		if old.verifiedAt > tx.revision {
			// A newer transaction already replaced this entry.
			return nil, ErrCancelled
		}
		changed, err := m.depsChanged(tx, old)
		if err != nil {
			return nil, err
		}
		if !changed {
			nm := &memo[V]{value: old.value, verifiedAt: tx.revision, changedAt: old.changedAt, deps: old.deps}
			s.memo = nm
			m.rt.emit(Event{Query: m.name, Key: key, Kind: EventValidated, Revision: tx.revision})
			return nm, nil
		}
	}

	value, err := m.compute(tx, key)
	// A computation that observed a done context or a newer write may have
	// produced a partial value or a foreign error; neither is published.
	if cerr := tx.Check(); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		return nil, err
	}
	f := tx.top()
	changedAt := tx.revision
	if old != nil && m.equal != nil && m.equal(old.value, value) {
		value = old.value
		changedAt = old.changedAt
	}
	nm := &memo[V]{
		value:      value,
		verifiedAt: tx.revision,
		changedAt:  changedAt,
		deps:       append([]dep(nil), f.deps...),
	}
	s.memo = nm
	m.rt.emit(Event{Query: m.name, Key: key, Kind: EventExecuted, Revision: tx.revision})
	return nm, nil
}

func (m *Memo[K, V]) depsChanged(tx *Tx, old *memo[V]) (bool, error) {
	for _, d := range old.deps {
		if err := tx.Check(); err != nil {
			return false, err
		}
		changed, err := d.changedAfter(tx, old.verifiedAt)
		if err != nil {
			return false, err
		}
		if changed {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memo[K, V]) sweep(current Revision) int {
	removed := 0
	for _, key := range m.slots.Keys() {
		s, ok := m.slots.Peek(key)
		if !ok {
			continue
		}
		s.mu.Lock()
		stale := s.memo == nil || s.memo.verifiedAt < current
		s.mu.Unlock()
		if stale && m.slots.Remove(key) {
			removed++
		}
	}
	return removed
}

type memoDep[K comparable, V any] struct {
	m   *Memo[K, V]
	key K
}

func (d memoDep[K, V]) changedAfter(tx *Tx, rev Revision) (bool, error) {
	mm, err := d.m.fetch(tx, d.key)
	if err != nil {
		return false, err
	}
	return mm.changedAt > rev, nil
}
