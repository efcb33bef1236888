package query

import (
	"context"
	"fmt"
)

// Tx is one request's view of the database, pinned to the revision at which
// it began. A Tx is not safe for concurrent use; concurrent requests each
// begin their own.
type Tx struct {
	rt       *Runtime
	ctx      context.Context
	revision Revision
	stack    []*frame
}

type activeKey struct {
	table any
	key   any
}

type frame struct {
	id   activeKey
	deps []dep
}

// Begin starts a transaction at the current revision.
func (rt *Runtime) Begin(ctx context.Context) *Tx {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Tx{rt: rt, ctx: ctx, revision: rt.Revision()}
}

// Context returns the context the transaction was started with.
func (tx *Tx) Context() context.Context {
	return tx.ctx
}

// Revision returns the revision the transaction is pinned to.
func (tx *Tx) Revision() Revision {
	return tx.revision
}

// Check returns ErrCancelled if a write happened since the transaction began
// or its context is done. Long loops call it once per iteration.
func (tx *Tx) Check() error {
	if err := tx.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	if tx.rt.Revision() != tx.revision {
		return ErrCancelled
	}
	return nil
}

func (tx *Tx) push(id activeKey) {
	for _, f := range tx.stack {
		if f.id == id {
			panic(fmt.Sprintf("query: cycle detected evaluating %v", id.key))
		}
	}
	tx.stack = append(tx.stack, &frame{id: id})
}

func (tx *Tx) pop() {
	tx.stack = tx.stack[:len(tx.stack)-1]
}

func (tx *Tx) top() *frame {
	return tx.stack[len(tx.stack)-1]
}

// record adds d to the dependencies of the query currently executing, if any.
func (tx *Tx) record(d dep) {
	if n := len(tx.stack); n > 0 {
		f := tx.stack[n-1]
		f.deps = append(f.deps, d)
	}
}
