package sapling

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/jward/sapling/internal/hir"
	"github.com/jward/sapling/internal/nameres"
	"github.com/jward/sapling/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// events records memo activity by query name.
type events struct {
	mu  sync.Mutex
	all []Event
}

func (e *events) hook(ev Event) {
	e.mu.Lock()
	e.all = append(e.all, ev)
	e.mu.Unlock()
}

func (e *events) reset() {
	e.mu.Lock()
	e.all = nil
	e.mu.Unlock()
}

// executed returns the keys query was executed for.
func (e *events) executed(query string) []any {
	e.mu.Lock()
	defer e.mu.Unlock()
	var keys []any
	for _, ev := range e.all {
		if ev.Query == query && ev.Kind == EventExecuted {
			keys = append(keys, ev.Key)
		}
	}
	return keys
}

const unit UnitID = 1

// newCrate loads files (relative path to text) into a fresh database as
// unit 1. src/lib.rs is the root and gets FileID 1.
func newCrate(t *testing.T, files map[string]string, opts ...Option) (*Database, map[string]FileID) {
	t.Helper()
	db := New(opts...)
	ids := loadFiles(db, files)
	root, ok := ids["src/lib.rs"]
	require.True(t, ok, "crate needs src/lib.rs")
	paths := make(map[FileID]string, len(ids))
	for p, id := range ids {
		paths[id] = p
	}
	db.SetSourceRoot(unit, NewSourceRoot(root, paths))
	return db, ids
}

func loadFiles(db *Database, files map[string]string) map[string]FileID {
	names := make([]string, 0, len(files))
	for p := range files {
		if p != "src/lib.rs" {
			names = append(names, p)
		}
	}
	sort.Strings(names)
	names = append([]string{"src/lib.rs"}, names...)

	ids := make(map[string]FileID, len(names))
	for i, p := range names {
		text, ok := files[p]
		if !ok {
			continue
		}
		ids[p] = FileID(i + 1)
		db.SetText(FileID(i+1), text)
	}
	return ids
}

func moduleNamed(t *testing.T, s *Snapshot, path ...string) ModuleID {
	t.Helper()
	tree, err := s.ModuleTree(unit)
	require.NoError(t, err)
	id := RootModule
	for _, name := range path {
		var ok bool
		id, ok = tree.Child(id, name)
		require.True(t, ok, "module %s", name)
	}
	return id
}

func rawItem(t *testing.T, s *Snapshot, module ModuleID, name string) hir.RawItem {
	t.Helper()
	raw, err := s.RawModuleItems(unit, module)
	require.NoError(t, err)
	for _, it := range raw.Items {
		if it.Name == name {
			return it
		}
	}
	t.Fatalf("no item %s", name)
	return hir.RawItem{}
}

func TestItemMap_ImportFromSibling(t *testing.T) {
	t.Parallel()
	db, _ := newCrate(t, map[string]string{
		"src/lib.rs": "mod a; mod b;",
		"src/a.rs":   "pub struct Point { pub x: i32, pub y: i32 }",
		"src/b.rs":   "use crate::a::Point;",
	})
	s := db.Snapshot(context.Background())
	a, b := moduleNamed(t, s, "a"), moduleNamed(t, s, "b")

	m, err := s.ItemMap(unit)
	require.NoError(t, err)
	def, ok := m.Lookup(a, "Point")
	require.True(t, ok)
	got, ok := m.Lookup(b, "Point")
	require.True(t, ok)
	assert.Equal(t, def.Def, got.Def)
	assert.Equal(t, nameres.Explicit, got.Kind)
	assert.Equal(t, hir.DefStruct, db.DefLoc(got.Def).Kind)

	shape, err := s.StructShape(got.Def)
	require.NoError(t, err)
	assert.Equal(t, "Point", shape.Name)
	assert.Len(t, shape.Fields, 2)
}

func TestItemMap_GlobReexport(t *testing.T) {
	t.Parallel()
	db, _ := newCrate(t, map[string]string{
		"src/lib.rs": "mod a; mod b;",
		"src/a.rs":   "pub use crate::b::*;",
		"src/b.rs":   "pub fn f() {}",
	})
	s := db.Snapshot(context.Background())
	a, b := moduleNamed(t, s, "a"), moduleNamed(t, s, "b")

	m, err := s.ItemMap(unit)
	require.NoError(t, err)
	f := rawItem(t, s, b, "f")
	got, ok := m.Lookup(a, "f")
	require.True(t, ok)
	assert.Equal(t, f.Def, got.Def)
	assert.Equal(t, nameres.Glob, got.Kind)
	require.Len(t, m.Reexports, 1)
	assert.True(t, m.Reexports[0].Glob)
}

func TestEdit_InvalidatesOnlyEditedModule(t *testing.T) {
	t.Parallel()
	ev := &events{}
	db, ids := newCrate(t, map[string]string{
		"src/lib.rs": "mod a; mod b; mod c;",
		"src/a.rs":   "pub fn f() {}\npub struct Point;",
		"src/b.rs":   "use crate::a::Point;",
		"src/c.rs":   "pub struct Q { v: u8 }\nfn g() { let x = 1; }",
	}, WithEventHook(ev.hook))

	s := db.Snapshot(context.Background())
	a, c := moduleNamed(t, s, "a"), moduleNamed(t, s, "c")
	_, err := s.ItemMap(unit)
	require.NoError(t, err)
	q, g := rawItem(t, s, c, "Q"), rawItem(t, s, c, "g")
	shape, err := s.StructShape(q.Def)
	require.NoError(t, err)
	scopes, err := s.FunctionScopes(g.Def)
	require.NoError(t, err)

	ev.reset()
	db.SetText(ids["src/a.rs"], "pub struct Point;")
	s = db.Snapshot(context.Background())

	m, err := s.ItemMap(unit)
	require.NoError(t, err)
	_, ok := m.Lookup(a, "f")
	assert.False(t, ok)
	assert.Equal(t, []any{moduleKey{Unit: unit, Module: a}}, ev.executed("raw_module_items"))
	assert.Empty(t, ev.executed("module_tree"))

	shape2, err := s.StructShape(q.Def)
	require.NoError(t, err)
	scopes2, err := s.FunctionScopes(g.Def)
	require.NoError(t, err)
	assert.Same(t, shape, shape2)
	assert.Same(t, scopes, scopes2)
	assert.Empty(t, ev.executed("struct_shape"))
	assert.Empty(t, ev.executed("function_scopes"))
}

func TestEdit_WhitespaceKeepsItemMap(t *testing.T) {
	t.Parallel()
	ev := &events{}
	db, ids := newCrate(t, map[string]string{
		"src/lib.rs": "mod a;",
		"src/a.rs":   "pub fn f() {}",
	}, WithEventHook(ev.hook))

	s := db.Snapshot(context.Background())
	m1, err := s.ItemMap(unit)
	require.NoError(t, err)

	ev.reset()
	db.SetText(ids["src/a.rs"], "pub   fn f()   {}\n")
	m2, err := db.Snapshot(context.Background()).ItemMap(unit)
	require.NoError(t, err)
	assert.Same(t, m1, m2)
	assert.Empty(t, ev.executed("item_map"))
}

func TestSetText_SameTextInvalidatesNothing(t *testing.T) {
	t.Parallel()
	ev := &events{}
	db, ids := newCrate(t, map[string]string{"src/lib.rs": "fn main() {}"}, WithEventHook(ev.hook))

	_, err := db.Snapshot(context.Background()).ItemMap(unit)
	require.NoError(t, err)
	before := db.Revision()

	ev.reset()
	after := db.SetText(ids["src/lib.rs"], "fn main() {}")
	assert.Greater(t, after, before)
	_, err = db.Snapshot(context.Background()).ItemMap(unit)
	require.NoError(t, err)
	assert.Empty(t, ev.executed("tree"))
	assert.Empty(t, ev.executed("item_map"))
}

func TestMacro_NoExpansionGivesEmptyModule(t *testing.T) {
	t.Parallel()
	db, _ := newCrate(t, map[string]string{
		"src/lib.rs": "mod gen;",
		"src/gen.rs": "make_items!(Point);",
	})
	s := db.Snapshot(context.Background())
	g := moduleNamed(t, s, "gen")

	m, err := s.ItemMap(unit)
	require.NoError(t, err)
	assert.Empty(t, m.Names(g))

	raw, err := s.RawModuleItems(unit, g)
	require.NoError(t, err)
	require.Len(t, raw.Macros, 1)
	tree, err := s.Tree(hir.MacroFile(raw.Macros[0]))
	require.NoError(t, err)
	assert.False(t, tree.HasErrors)
	assert.Empty(t, tree.Root.NamedChildren())
}

func TestMacro_CancelledExpansionIsNotCached(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	expander := hir.ExpanderFunc(func(ctx context.Context, call hir.MacroCall) (string, bool) {
		if ctx.Err() != nil {
			return "", false
		}
		return "pub struct " + call.Input + ";", true
	})
	interrupting := hir.ExpanderFunc(func(c context.Context, call hir.MacroCall) (string, bool) {
		if c == ctx {
			cancel()
		}
		return expander(c, call)
	})
	db, _ := newCrate(t, map[string]string{
		"src/lib.rs": "mod gen;",
		"src/gen.rs": "make_items!(Point);",
	}, WithMacroExpander(interrupting))
	rev := db.Revision()

	_, err := db.Snapshot(ctx).ItemMap(unit)
	require.ErrorIs(t, err, ErrCancelled)

	s := db.Snapshot(context.Background())
	require.Equal(t, rev, s.Revision())
	m, err := s.ItemMap(unit)
	require.NoError(t, err)
	assert.Equal(t, []string{"Point"}, m.Names(moduleNamed(t, s, "gen")))
}

func TestMacro_ExpanderChange(t *testing.T) {
	t.Parallel()
	expander := hir.ExpanderFunc(func(_ context.Context, call hir.MacroCall) (string, bool) {
		if call.Name != "make_items" {
			return "", false
		}
		return "pub struct " + call.Input + ";", true
	})
	db, _ := newCrate(t, map[string]string{
		"src/lib.rs": "mod gen; use crate::gen::Point;",
		"src/gen.rs": "make_items!(Point);",
	})

	m, err := db.Snapshot(context.Background()).ItemMap(unit)
	require.NoError(t, err)
	r, ok := m.Lookup(RootModule, "Point")
	require.True(t, ok)
	assert.Equal(t, nameres.Unresolved, r.Kind)

	db.SetMacroExpander(expander)
	s := db.Snapshot(context.Background())
	m, err = s.ItemMap(unit)
	require.NoError(t, err)
	r, ok = m.Lookup(RootModule, "Point")
	require.True(t, ok)
	assert.Equal(t, nameres.Explicit, r.Kind)
	loc := db.DefLoc(r.Def)
	call, ok := loc.Source.File.Macro()
	require.True(t, ok)
	assert.Equal(t, "make_items", db.MacroCallLoc(call).Name)
}

func TestSnapshot_CancelledByWrite(t *testing.T) {
	t.Parallel()
	db, ids := newCrate(t, map[string]string{"src/lib.rs": "fn main() {}"})
	s := db.Snapshot(context.Background())
	db.SetText(ids["src/lib.rs"], "fn main() { let x = 1; }")

	_, err := s.ItemMap(unit)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.ErrorIs(t, s.Check(), ErrCancelled)

	_, err = db.Snapshot(context.Background()).ItemMap(unit)
	assert.NoError(t, err)
}

func TestSnapshot_CancelledByContext(t *testing.T) {
	t.Parallel()
	db, _ := newCrate(t, map[string]string{"src/lib.rs": "fn main() {}"})
	ctx, cancel := context.WithCancel(context.Background())
	s := db.Snapshot(ctx)
	cancel()

	_, err := s.ModuleTree(unit)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestSnapshot_UnknownUnit(t *testing.T) {
	t.Parallel()
	db := New()
	_, err := db.Snapshot(context.Background()).ItemMap(42)
	assert.ErrorContains(t, err, "unknown unit 42")
}

func TestFunctionScopes_WrongKindPanics(t *testing.T) {
	t.Parallel()
	db, _ := newCrate(t, map[string]string{"src/lib.rs": "struct S;"})
	s := db.Snapshot(context.Background())
	def := rawItem(t, s, RootModule, "S").Def
	assert.Panics(t, func() { _, _ = s.FunctionScopes(def) })
}

func TestDiagnosticsSink(t *testing.T) {
	t.Parallel()
	c := NewDiagnosticsCollector()
	db, ids := newCrate(t, map[string]string{
		"src/lib.rs": "mod missing; use crate::nowhere::X;",
	}, WithDiagnosticsSink(c))

	_, err := db.Snapshot(context.Background()).ItemMap(unit)
	require.NoError(t, err)
	diags := c.Unit(unit)
	require.Len(t, diags, 2)
	for _, d := range diags {
		assert.Equal(t, SeverityError, d.Severity)
		assert.Equal(t, "crate", d.Module)
	}
	assert.Equal(t, "missing", diags[0].Name)

	db.SetText(ids["src/lib.rs"], "fn main() {}")
	_, err = db.Snapshot(context.Background()).ItemMap(unit)
	require.NoError(t, err)
	assert.Empty(t, c.Unit(unit))
}

func TestPrefetch(t *testing.T) {
	t.Parallel()
	ev := &events{}
	db, _ := newCrate(t, map[string]string{
		"src/lib.rs": "mod a; mod b;",
		"src/a.rs":   "pub fn f() {}",
		"src/b.rs":   "pub use crate::a::f;",
	}, WithEventHook(ev.hook))

	require.NoError(t, db.Prefetch(context.Background(), db.Files()))
	assert.Len(t, ev.executed("items"), 3)

	m, err := db.PrefetchUnit(context.Background(), unit)
	require.NoError(t, err)
	assert.Len(t, ev.executed("raw_module_items"), 3)
	assert.Len(t, ev.executed("item_map"), 1)
	_, ok := m.Lookup(2, "f")
	assert.True(t, ok)
}

func TestCollect(t *testing.T) {
	t.Parallel()
	db, ids := newCrate(t, map[string]string{
		"src/lib.rs": "mod a;",
		"src/a.rs":   "pub fn f() {}",
	})
	_, err := db.Snapshot(context.Background()).ItemMap(unit)
	require.NoError(t, err)

	db.RemoveFile(ids["src/a.rs"])
	db.SetSourceRoot(unit, NewSourceRoot(ids["src/lib.rs"], map[FileID]string{ids["src/lib.rs"]: "src/lib.rs"}))
	_, err = db.Snapshot(context.Background()).ItemMap(unit)
	require.NoError(t, err)
	assert.Positive(t, db.Collect())
	assert.Zero(t, db.Collect())
}

func TestExport_ReplaceSnapshot(t *testing.T) {
	t.Parallel()
	db, _ := newCrate(t, map[string]string{
		"src/lib.rs": "mod a; mod b { pub use crate::a::*; }",
		"src/a.rs":   "pub struct Point;\npub fn origin() {}",
	})
	snap, err := db.Snapshot(context.Background()).Export(unit)
	require.NoError(t, err)
	assert.Len(t, snap.Files, 2)
	require.Len(t, snap.Modules, 3)
	assert.Equal(t, "crate::b", snap.Modules[2].Path)
	assert.True(t, snap.Modules[2].Inline)

	st, err := store.NewStore(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate())
	require.NoError(t, st.ReplaceSnapshot(snap))

	bs, err := st.BindingsByName("Point")
	require.NoError(t, err)
	require.Len(t, bs, 2)
	for _, b := range bs {
		assert.Equal(t, "struct", b.DefKind)
		assert.Equal(t, "crate::a", b.TargetPath)
	}
	root, err := st.GetMetadata("root")
	require.NoError(t, err)
	assert.Equal(t, "src/lib.rs", root)
}
