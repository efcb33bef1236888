package hir

import (
	"context"
	"sort"
	"testing"

	"github.com/jward/sapling/internal/syntax"
	"github.com/stretchr/testify/require"
)

// testDB is an unmemoized DB over an in-memory file set.
type testDB struct {
	t        *testing.T
	paths    map[FileID]string
	text     map[FileID]string
	expand   map[string]string
	trees    map[LogicalFile]*syntax.Tree
	items    map[LogicalFile]*ItemIndex
	defs     *Interner[DefLoc, DefID]
	macros   *Interner[MacroCallLoc, MacroCallID]
	cancelAt int
	checks   int
}

func newTestDB(t *testing.T, files map[string]string) *testDB {
	t.Helper()
	db := &testDB{
		t:      t,
		paths:  make(map[FileID]string),
		text:   make(map[FileID]string),
		expand: make(map[string]string),
		trees:  make(map[LogicalFile]*syntax.Tree),
		items:  make(map[LogicalFile]*ItemIndex),
		defs:   NewInterner[DefLoc, DefID](),
		macros: NewInterner[MacroCallLoc, MacroCallID](),
	}
	// lib.rs gets ID 1, the rest follow in path order.
	var names []string
	for p := range files {
		if p != "lib.rs" {
			names = append(names, p)
		}
	}
	sort.Strings(names)
	if _, ok := files["lib.rs"]; ok {
		names = append([]string{"lib.rs"}, names...)
	}
	for i, p := range names {
		id := FileID(i + 1)
		db.paths[id] = p
		db.text[id] = files[p]
	}
	return db
}

func (db *testDB) file(p string) FileID {
	for id, path := range db.paths {
		if path == p {
			return id
		}
	}
	db.t.Fatalf("no file %s", p)
	return 0
}

func (db *testDB) Tree(lf LogicalFile) (*syntax.Tree, error) {
	if t, ok := db.trees[lf]; ok {
		return t, nil
	}
	var text string
	if f, ok := lf.File(); ok {
		text = db.text[f]
	} else {
		call, _ := lf.Macro()
		loc := db.macros.Lookup(call)
		exp, ok := db.expand[loc.Name]
		if !ok {
			db.trees[lf] = syntax.Empty()
			return db.trees[lf], nil
		}
		text = exp
	}
	tree, err := syntax.Parse(context.Background(), text)
	if err != nil {
		return nil, err
	}
	db.trees[lf] = tree
	return tree, nil
}

func (db *testDB) Items(lf LogicalFile) (*ItemIndex, error) {
	if idx, ok := db.items[lf]; ok {
		return idx, nil
	}
	tree, err := db.Tree(lf)
	if err != nil {
		return nil, err
	}
	idx := NewItemIndex(lf, tree)
	db.items[lf] = idx
	return idx, nil
}

func (db *testDB) FileItem(id SourceItemID) (*syntax.Node, error) {
	return ResolveItem(db, id)
}

func (db *testDB) Submodules(src ModuleSource) ([]Submodule, error) {
	return CollectSubmodules(db, src)
}

func (db *testDB) ModuleTree(unit UnitID) (*ModuleTree, error) {
	return BuildModuleTree(db, unit)
}

func (db *testDB) SourceRoot(UnitID) (*SourceRoot, error) {
	return NewSourceRoot(db.file("lib.rs"), db.paths), nil
}

func (db *testDB) InternDef(loc DefLoc) DefID {
	return db.defs.Intern(loc)
}

func (db *testDB) InternMacroCall(loc MacroCallLoc) MacroCallID {
	return db.macros.Intern(loc)
}

var errTestCancelled = context.Canceled

func (db *testDB) Check() error {
	db.checks++
	if db.cancelAt > 0 && db.checks >= db.cancelAt {
		return errTestCancelled
	}
	return nil
}

func parseNode(t *testing.T, src string) *syntax.Node {
	t.Helper()
	tree, err := syntax.Parse(context.Background(), src)
	require.NoError(t, err)
	return tree.Root
}
