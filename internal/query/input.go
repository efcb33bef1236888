package query

// dep is one recorded dependency of a memoized value.
type dep interface {
	// changedAfter reports whether the dependency's value changed in a
	// revision later than rev, as seen by tx.
	changedAfter(tx *Tx, rev Revision) (bool, error)
}

// Input is a table of base values. Only Set and Remove mutate it, and each
// call advances the runtime's revision.
type Input[K comparable, V any] struct {
	rt      *Runtime
	name    string
	equal   func(a, b V) bool
	entries map[K]*inputEntry[V] // guarded by rt.mu
}

type inputEntry[V any] struct {
	value     V
	present   bool
	changedAt Revision
}

// NewInput creates an input table. When equal is non-nil, setting a value
// equal to the current one advances the revision without marking the key
// changed.
func NewInput[K comparable, V any](rt *Runtime, name string, equal func(a, b V) bool) *Input[K, V] {
	return &Input[K, V]{
		rt:      rt,
		name:    name,
		equal:   equal,
		entries: make(map[K]*inputEntry[V]),
	}
}

// Set replaces the value for key and returns the new revision.
func (in *Input[K, V]) Set(key K, value V) Revision {
	in.rt.mu.Lock()
	defer in.rt.mu.Unlock()

	rev := in.rt.bump()
	if e, ok := in.entries[key]; ok && e.present && in.equal != nil && in.equal(e.value, value) {
		return rev
	}
	in.entries[key] = &inputEntry[V]{value: value, present: true, changedAt: rev}
	return rev
}

// Remove deletes the value for key and returns the new revision.
func (in *Input[K, V]) Remove(key K) Revision {
	in.rt.mu.Lock()
	defer in.rt.mu.Unlock()

	rev := in.rt.bump()
	if e, ok := in.entries[key]; ok && e.present {
		in.entries[key] = &inputEntry[V]{changedAt: rev}
	}
	return rev
}

// Get reads the value for key inside tx and records the dependency. The
// boolean is false when the key was never set or has been removed.
func (in *Input[K, V]) Get(tx *Tx, key K) (V, bool, error) {
	var zero V
	e, err := in.load(tx, key)
	if err != nil {
		return zero, false, err
	}
	tx.record(inputDep[K, V]{in: in, key: key})
	if e == nil || !e.present {
		return zero, false, nil
	}
	return e.value, true, nil
}

// Keys returns every key currently present. The result is unordered.
func (in *Input[K, V]) Keys() []K {
	in.rt.mu.RLock()
	defer in.rt.mu.RUnlock()
	keys := make([]K, 0, len(in.entries))
	for k, e := range in.entries {
		if e.present {
			keys = append(keys, k)
		}
	}
	return keys
}

func (in *Input[K, V]) load(tx *Tx, key K) (*inputEntry[V], error) {
	in.rt.mu.RLock()
	defer in.rt.mu.RUnlock()
	if in.rt.Revision() != tx.revision {
		return nil, ErrCancelled
	}
	return in.entries[key], nil
}

type inputDep[K comparable, V any] struct {
	in  *Input[K, V]
	key K
}

func (d inputDep[K, V]) changedAfter(tx *Tx, rev Revision) (bool, error) {
	e, err := d.in.load(tx, d.key)
	if err != nil {
		return false, err
	}
	if e == nil {
		return false, nil
	}
	return e.changedAt > rev, nil
}
