package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/jward/sapling"
	"github.com/jward/sapling/internal/config"
	macros "github.com/jward/sapling/internal/runtime"
	"github.com/jward/sapling/internal/store"
	"github.com/jward/sapling/internal/vfs"
)

// unit is the only compilation unit the CLI analyzes.
const unit sapling.UnitID = 1

// errRootRemoved stops a watch: without its root file the crate has no
// module tree.
var errRootRemoved = errors.New("crate root was removed")

// executions counts memo executions per query since the last reset.
type executions struct {
	mu     sync.Mutex
	counts map[string]int
}

func (e *executions) hook(ev sapling.Event) {
	if ev.Kind != sapling.EventExecuted {
		return
	}
	e.mu.Lock()
	e.counts[ev.Query]++
	e.mu.Unlock()
}

// take returns the counts as sorted "query=n" attributes and resets them.
func (e *executions) take() []any {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.counts))
	for n := range e.counts {
		names = append(names, n)
	}
	sort.Strings(names)
	attrs := make([]any, 0, 2*len(names))
	for _, n := range names {
		attrs = append(attrs, n, e.counts[n])
	}
	e.counts = make(map[string]int)
	return attrs
}

// session ties a crate directory to an analysis database.
type session struct {
	dir      string
	loader   *vfs.Loader
	db       *sapling.Database
	expander *macros.Expander
	execs    *executions
	log      *slog.Logger

	root  sapling.FileID
	paths map[sapling.FileID]string
}

func newSession(dir string, c *config.Config, log *slog.Logger) (*session, error) {
	loader, err := vfs.NewLoader(dir,
		vfs.WithExcludes(c.Exclude...),
		vfs.WithRootFile(c.RootFile),
		vfs.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	s := &session{
		dir:    dir,
		loader: loader,
		execs:  &executions{counts: make(map[string]int)},
		log:    log,
		paths:  make(map[sapling.FileID]string),
	}
	opts := []sapling.Option{
		sapling.WithLogger(log),
		sapling.WithEventHook(s.execs.hook),
	}
	if c.Capacity > 0 {
		opts = append(opts, sapling.WithCapacity(c.Capacity))
	}
	if c.Scripts != "" {
		scripts := c.Scripts
		if !filepath.IsAbs(scripts) {
			scripts = filepath.Join(dir, scripts)
		}
		exp, err := macros.NewExpander(macros.NewRuntime(scripts, macros.WithLogger(log)), 0)
		if err != nil {
			return nil, err
		}
		s.expander = exp
		opts = append(opts, sapling.WithMacroExpander(exp))
	}
	s.db = sapling.New(opts...)
	return s, nil
}

// load reads every source file and declares the unit.
func (s *session) load() error {
	crate, err := s.loader.Load()
	if err != nil {
		return err
	}
	for _, f := range crate.Files {
		s.db.SetText(f.ID, f.Text)
		s.paths[f.ID] = f.Path
	}
	s.root = crate.Root
	s.db.SetSourceRoot(unit, crate.SourceRoot())
	return nil
}

// apply feeds one watcher batch into the database. The source root is only
// replaced when the set of files changed.
func (s *session) apply(b vfs.Batch) error {
	changedSet := false
	for _, ch := range b.Changes {
		if !ch.Removed {
			text, err := s.loader.Read(ch.Path)
			switch {
			case err == nil:
				id := s.loader.ID(ch.Path)
				s.db.SetText(id, text)
				if _, ok := s.paths[id]; !ok {
					s.paths[id] = ch.Path
					changedSet = true
				}
				continue
			case !errors.Is(err, fs.ErrNotExist):
				return err
			}
		}
		id, ok := s.loader.Lookup(ch.Path)
		if !ok {
			continue
		}
		if id == s.root {
			return fmt.Errorf("%w: %s", errRootRemoved, ch.Path)
		}
		s.db.RemoveFile(id)
		if _, ok := s.paths[id]; ok {
			delete(s.paths, id)
			changedSet = true
		}
	}
	if changedSet {
		s.db.SetSourceRoot(unit, sapling.NewSourceRoot(s.root, s.paths))
	}
	return nil
}

// reloadScripts makes edited macro scripts take effect.
func (s *session) reloadScripts() {
	if s.expander == nil {
		return
	}
	s.expander.Reset()
	s.db.SetMacroExpander(s.expander)
}

// resolve computes the unit's item map and flattens it for the store.
func (s *session) resolve(ctx context.Context) (*store.Snapshot, error) {
	if err := s.db.Prefetch(ctx, s.db.Files()); err != nil {
		return nil, err
	}
	if _, err := s.db.PrefetchUnit(ctx, unit); err != nil {
		return nil, err
	}
	return s.db.Snapshot(ctx).Export(unit)
}

// openIndex opens (and migrates) the index database, creating its directory.
func openIndex(dbPath string) (*store.Store, error) {
	if err := mkdirFor(dbPath); err != nil {
		return nil, err
	}
	st, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrating store: %w", err)
	}
	return st, nil
}
