package sapling

import (
	"context"
	"runtime"

	"github.com/jward/sapling/internal/hir"
	"github.com/jward/sapling/internal/nameres"
	"golang.org/x/sync/errgroup"
)

// Prefetch parses and indexes files concurrently so later requests find
// their trees memoized. Each worker reads through its own snapshot.
func (db *Database) Prefetch(ctx context.Context, files []hir.FileID) error {
	if len(files) == 0 {
		return nil
	}
	rev := db.Revision()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(runtime.NumCPU(), len(files)))
	for _, f := range files {
		g.Go(func() error {
			s := db.Snapshot(gctx)
			if s.Revision() != rev {
				return ErrCancelled
			}
			_, err := s.Items(hir.PhysicalFile(f))
			return err
		})
	}
	return g.Wait()
}

// PrefetchUnit collects the raw items of every module of unit concurrently
// and then resolves the unit's item map.
func (db *Database) PrefetchUnit(ctx context.Context, unit hir.UnitID) (*nameres.ItemMap, error) {
	s := db.Snapshot(ctx)
	tree, err := s.ModuleTree(unit)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, id := range tree.IDs() {
		g.Go(func() error {
			ws := db.Snapshot(gctx)
			if ws.Revision() != s.Revision() {
				return ErrCancelled
			}
			_, err := ws.RawModuleItems(unit, id)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return s.ItemMap(unit)
}
