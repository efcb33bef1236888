package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects executed events per query name.
type recorder struct {
	mu       sync.Mutex
	executed map[string]int
}

func newRecorder() *recorder {
	return &recorder{executed: make(map[string]int)}
}

func (r *recorder) hook(e Event) {
	if e.Kind != EventExecuted {
		return
	}
	r.mu.Lock()
	r.executed[e.Query]++
	r.mu.Unlock()
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.executed[name]
}

type testDB struct {
	rt     *Runtime
	text   *Input[string, string]
	length *Memo[string, int]
	upper  *Memo[string, string]
	total  *Memo[string, int]
}

func newTestDB(t *testing.T, rec *recorder) *testDB {
	t.Helper()
	db := &testDB{rt: NewRuntime(WithEventHook(rec.hook))}
	db.text = NewInput[string, string](db.rt, "text", func(a, b string) bool { return a == b })
	db.length = NewMemo(db.rt, "length", func(tx *Tx, key string) (int, error) {
		s, _, err := db.text.Get(tx, key)
		if err != nil {
			return 0, err
		}
		return len(strings.TrimSpace(s)), nil
	}, func(a, b int) bool { return a == b })
	db.upper = NewMemo(db.rt, "upper", func(tx *Tx, key string) (string, error) {
		s, _, err := db.text.Get(tx, key)
		if err != nil {
			return "", err
		}
		return strings.ToUpper(s), nil
	}, nil)
	db.total = NewMemo(db.rt, "total", func(tx *Tx, keys string) (int, error) {
		sum := 0
		for _, k := range strings.Split(keys, ",") {
			n, err := db.length.Get(tx, k)
			if err != nil {
				return 0, err
			}
			sum += n
		}
		return sum, nil
	}, nil)
	return db
}

func TestMemo_ComputesOnceAtRevision(t *testing.T) {
	t.Parallel()
	rec := newRecorder()
	db := newTestDB(t, rec)
	db.text.Set("a", "hello")

	tx := db.rt.Begin(context.Background())
	for range 3 {
		n, err := db.length.Get(tx, "a")
		require.NoError(t, err)
		assert.Equal(t, 5, n)
	}
	assert.Equal(t, 1, rec.count("length"))
}

func TestMemo_UnrelatedInputOnlyValidates(t *testing.T) {
	t.Parallel()
	rec := newRecorder()
	db := newTestDB(t, rec)
	db.text.Set("a", "hello")
	db.text.Set("b", "world!")

	_, err := db.total.Get(db.rt.Begin(context.Background()), "a,b")
	require.NoError(t, err)

	db.text.Set("c", "unrelated")
	n, err := db.total.Get(db.rt.Begin(context.Background()), "a,b")
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, 1, rec.count("total"))
	assert.Equal(t, 2, rec.count("length"))
}

func TestMemo_BackdatingStopsPropagation(t *testing.T) {
	t.Parallel()
	rec := newRecorder()
	db := newTestDB(t, rec)
	db.text.Set("a", "hello")

	_, err := db.total.Get(db.rt.Begin(context.Background()), "a")
	require.NoError(t, err)

	// Same trimmed length: length re-executes but its value is unchanged, so
	// total is only validated.
	db.text.Set("a", "  hello  ")
	n, err := db.total.Get(db.rt.Begin(context.Background()), "a")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 2, rec.count("length"))
	assert.Equal(t, 1, rec.count("total"))

	db.text.Set("a", "hello there")
	n, err = db.total.Get(db.rt.Begin(context.Background()), "a")
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, 2, rec.count("total"))
}

func TestInput_SetEqualValueKeepsDependants(t *testing.T) {
	t.Parallel()
	rec := newRecorder()
	db := newTestDB(t, rec)
	db.text.Set("a", "x")

	first, err := db.upper.Get(db.rt.Begin(context.Background()), "a")
	require.NoError(t, err)

	before := db.rt.Revision()
	db.text.Set("a", "x")
	assert.Greater(t, db.rt.Revision(), before)

	second, err := db.upper.Get(db.rt.Begin(context.Background()), "a")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, rec.count("upper"))
}

func TestInput_RemoveInvalidates(t *testing.T) {
	t.Parallel()
	rec := newRecorder()
	db := newTestDB(t, rec)
	db.text.Set("a", "abc")

	_, err := db.upper.Get(db.rt.Begin(context.Background()), "a")
	require.NoError(t, err)

	db.text.Remove("a")
	tx := db.rt.Begin(context.Background())
	got, err := db.upper.Get(tx, "a")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	_, ok, err := db.text.Get(tx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, db.text.Keys())
}

func TestTx_CancelledByWrite(t *testing.T) {
	t.Parallel()
	db := newTestDB(t, newRecorder())
	db.text.Set("a", "abc")

	tx := db.rt.Begin(context.Background())
	db.text.Set("a", "abcd")

	_, err := db.length.Get(tx, "a")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.ErrorIs(t, tx.Check(), ErrCancelled)
}

func TestTx_CancelledByContext(t *testing.T) {
	t.Parallel()
	db := newTestDB(t, newRecorder())
	db.text.Set("a", "abc")

	ctx, cancel := context.WithCancel(context.Background())
	tx := db.rt.Begin(ctx)
	cancel()

	_, err := db.length.Get(tx, "a")
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemo_CancelledComputationIsNotStored(t *testing.T) {
	t.Parallel()
	rec := newRecorder()
	rt := NewRuntime(WithEventHook(rec.hook))
	text := NewInput[string, string](rt, "text", nil)
	text.Set("a", "v1")

	var interrupt bool
	m := NewMemo(rt, "slow", func(tx *Tx, key string) (string, error) {
		if interrupt {
			interrupt = false
			text.Set("a", "v2")
		}
		s, _, err := text.Get(tx, key)
		return s, err
	}, nil)

	interrupt = true
	_, err := m.Get(rt.Begin(context.Background()), "a")
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 0, rec.count("slow"))

	got, err := m.Get(rt.Begin(context.Background()), "a")
	require.NoError(t, err)
	assert.Equal(t, "v2", got)
}

func TestMemo_ValueComputedUnderDoneContextIsNotStored(t *testing.T) {
	t.Parallel()
	rec := newRecorder()
	rt := NewRuntime(WithEventHook(rec.hook))
	text := NewInput[string, string](rt, "text", nil)
	text.Set("a", "full")

	// Like an expander that gives up once its context is done: the
	// computation returns a degraded value without an error.
	ctx, cancel := context.WithCancel(context.Background())
	m := NewMemo(rt, "expand", func(tx *Tx, key string) (string, error) {
		s, _, err := text.Get(tx, key)
		if err != nil {
			return "", err
		}
		if tx.Context() == ctx {
			cancel()
			return "", nil
		}
		return s, nil
	}, nil)

	_, err := m.Get(rt.Begin(ctx), "a")
	require.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, rec.count("expand"))

	got, err := m.Get(rt.Begin(context.Background()), "a")
	require.NoError(t, err)
	assert.Equal(t, "full", got)
	assert.Equal(t, 1, rec.count("expand"))
}

func TestMemo_ContextErrorReportedAsCancelled(t *testing.T) {
	t.Parallel()
	rt := NewRuntime()
	ctx, cancel := context.WithCancel(context.Background())
	m := NewMemo(rt, "parse", func(tx *Tx, key string) (int, error) {
		cancel()
		return 0, fmt.Errorf("syntax: parse: %w", tx.Context().Err())
	}, nil)

	_, err := m.Get(rt.Begin(ctx), "a")
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemo_CyclePanics(t *testing.T) {
	t.Parallel()
	rt := NewRuntime()
	var m *Memo[int, int]
	m = NewMemo(rt, "cyclic", func(tx *Tx, key int) (int, error) {
		return m.Get(tx, key)
	}, nil)

	assert.Panics(t, func() {
		_, _ = m.Get(rt.Begin(context.Background()), 1)
	})
}

func TestRuntime_SweepDropsStaleEntries(t *testing.T) {
	t.Parallel()
	db := newTestDB(t, newRecorder())
	db.text.Set("a", "abc")
	db.text.Set("b", "de")

	_, err := db.length.Get(db.rt.Begin(context.Background()), "a")
	require.NoError(t, err)
	db.text.Set("b", "def")
	_, err = db.length.Get(db.rt.Begin(context.Background()), "b")
	require.NoError(t, err)

	assert.Equal(t, 2, db.length.Len())
	assert.Equal(t, 1, db.rt.Sweep())
	assert.Equal(t, 1, db.length.Len())
}

func TestMemo_CapacityEvicts(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(WithCapacity(2))
	m := NewMemo(rt, "square", func(_ *Tx, key int) (int, error) {
		return key * key, nil
	}, nil)

	tx := rt.Begin(context.Background())
	for i := range 5 {
		v, err := m.Get(tx, i)
		require.NoError(t, err)
		assert.Equal(t, i*i, v)
	}
	assert.Equal(t, 2, m.Len())
}

func TestMemo_ConcurrentReaders(t *testing.T) {
	t.Parallel()
	rec := newRecorder()
	db := newTestDB(t, rec)
	db.text.Set("a", "hello")
	db.text.Set("b", "hi")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := db.total.Get(db.rt.Begin(context.Background()), "a,b")
			assert.NoError(t, err)
			assert.Equal(t, 7, n)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, rec.count("total"))
}

func TestEventKind_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "executed", EventExecuted.String())
	assert.Equal(t, "validated", EventValidated.String())
	assert.Equal(t, "unknown", EventKind(9).String())
}
