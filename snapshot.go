package sapling

import (
	"fmt"
	"reflect"
	"time"

	"github.com/jward/sapling/internal/hir"
	"github.com/jward/sapling/internal/nameres"
	"github.com/jward/sapling/internal/query"
	"github.com/jward/sapling/internal/syntax"
)

// Snapshot is one request's consistent view of a Database. Every query
// returns ErrCancelled (possibly wrapped) once a write has happened since
// the snapshot began or its context is done. A Snapshot must not be shared
// between goroutines; take one per goroutine instead.
type Snapshot struct {
	db *Database
	tx *query.Tx
}

var _ hir.DB = (*Snapshot)(nil)

func (db *Database) at(tx *query.Tx) *Snapshot {
	return &Snapshot{db: db, tx: tx}
}

// Revision returns the revision the snapshot reads.
func (s *Snapshot) Revision() Revision {
	return s.tx.Revision()
}

// Check is the cancellation primitive for long-running callers.
func (s *Snapshot) Check() error {
	return s.tx.Check()
}

// Text returns file's current content.
func (s *Snapshot) Text(file hir.FileID) (string, bool, error) {
	return s.db.texts.Get(s.tx, file)
}

// SourceRoot returns the file set of unit.
func (s *Snapshot) SourceRoot(unit hir.UnitID) (*hir.SourceRoot, error) {
	sr, ok, err := s.db.roots.Get(s.tx, unit)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("sapling: unknown unit %d", unit)
	}
	return sr, nil
}

// Tree returns the syntax tree of a logical file.
func (s *Snapshot) Tree(lf hir.LogicalFile) (*syntax.Tree, error) {
	return s.db.trees.Get(s.tx, lf)
}

// Items returns the item index of a logical file.
func (s *Snapshot) Items(lf hir.LogicalFile) (*hir.ItemIndex, error) {
	return s.db.items.Get(s.tx, lf)
}

// FileItem returns the node addressed by id.
func (s *Snapshot) FileItem(id hir.SourceItemID) (*syntax.Node, error) {
	return s.db.fileItems.Get(s.tx, id)
}

// FunctionScopes returns the scope tree of a function definition.
func (s *Snapshot) FunctionScopes(def hir.DefID) (*hir.FnScopes, error) {
	return s.db.scopes.Get(s.tx, def)
}

// StructShape returns the fields of a struct definition.
func (s *Snapshot) StructShape(def hir.DefID) (*hir.StructShape, error) {
	return s.db.structs.Get(s.tx, def)
}

// EnumShape returns the variants of an enum definition.
func (s *Snapshot) EnumShape(def hir.DefID) (*hir.EnumShape, error) {
	return s.db.enums.Get(s.tx, def)
}

// Submodules lists the mod items of a module source.
func (s *Snapshot) Submodules(src hir.ModuleSource) ([]hir.Submodule, error) {
	return s.db.submodules.Get(s.tx, src)
}

// ModuleTree returns unit's module hierarchy.
func (s *Snapshot) ModuleTree(unit hir.UnitID) (*hir.ModuleTree, error) {
	return s.db.moduleTree.Get(s.tx, unit)
}

// RawModuleItems returns a module's unresolved declarations.
func (s *Snapshot) RawModuleItems(unit hir.UnitID, module hir.ModuleID) (*hir.RawModuleItems, error) {
	return s.db.rawItems.Get(s.tx, moduleKey{Unit: unit, Module: module})
}

// ItemMap returns unit's resolved item map.
func (s *Snapshot) ItemMap(unit hir.UnitID) (*nameres.ItemMap, error) {
	return s.db.itemMaps.Get(s.tx, unit)
}

// InternDef returns the ID of a definition location.
func (s *Snapshot) InternDef(loc hir.DefLoc) hir.DefID {
	return s.db.defs.Intern(loc)
}

// InternMacroCall returns the ID of a macro call location.
func (s *Snapshot) InternMacroCall(loc hir.MacroCallLoc) hir.MacroCallID {
	return s.db.macros.Intern(loc)
}

func (db *Database) computeTree(tx *query.Tx, lf hir.LogicalFile) (*syntax.Tree, error) {
	s := db.at(tx)
	if file, ok := lf.File(); ok {
		text, _, err := s.Text(file)
		if err != nil {
			return nil, err
		}
		return parse(tx, text)
	}

	call, _ := lf.Macro()
	loc := db.macros.Lookup(call)
	site, err := s.FileItem(loc.Site)
	if err != nil {
		return nil, err
	}
	expander, ok, err := db.expanders.Get(tx, struct{}{})
	if err != nil {
		return nil, err
	}
	if !ok || expander == nil {
		return syntax.Empty(), nil
	}
	text, ok := expander.Expand(tx.Context(), hir.NewMacroCall(loc.Name, site))
	// Expanders give up when the context is done; that is not "no expansion".
	if err := tx.Check(); err != nil {
		return nil, err
	}
	if !ok {
		db.logger.Debug("no macro expansion", "macro", loc.Name, "site", loc.Site)
		return syntax.Empty(), nil
	}
	return parse(tx, text)
}

// parse reports a parse interrupted by cancellation as ErrCancelled.
func parse(tx *query.Tx, text string) (*syntax.Tree, error) {
	tree, err := syntax.Parse(tx.Context(), text)
	if err != nil {
		if cerr := tx.Check(); cerr != nil {
			return nil, cerr
		}
		return nil, err
	}
	return tree, nil
}

func (db *Database) computeItems(tx *query.Tx, lf hir.LogicalFile) (*hir.ItemIndex, error) {
	tree, err := db.at(tx).Tree(lf)
	if err != nil {
		return nil, err
	}
	return hir.NewItemIndex(lf, tree), nil
}

func (db *Database) computeFileItem(tx *query.Tx, id hir.SourceItemID) (*syntax.Node, error) {
	return hir.ResolveItem(db.at(tx), id)
}

// defNode loads the node of def, panicking if def is not of kind.
func (db *Database) defNode(tx *query.Tx, def hir.DefID, kind hir.DefKind) (*syntax.Node, error) {
	loc := db.defs.Lookup(def)
	if loc.Kind != kind {
		panic(fmt.Sprintf("sapling: definition %d is a %s, not a %s", def, loc.Kind, kind))
	}
	return db.at(tx).FileItem(loc.Source)
}

func (db *Database) computeFunctionScopes(tx *query.Tx, def hir.DefID) (*hir.FnScopes, error) {
	n, err := db.defNode(tx, def, hir.DefFunction)
	if err != nil {
		return nil, err
	}
	return hir.NewFnScopes(n), nil
}

func (db *Database) computeStructShape(tx *query.Tx, def hir.DefID) (*hir.StructShape, error) {
	n, err := db.defNode(tx, def, hir.DefStruct)
	if err != nil {
		return nil, err
	}
	return hir.NewStructShape(n), nil
}

func (db *Database) computeEnumShape(tx *query.Tx, def hir.DefID) (*hir.EnumShape, error) {
	n, err := db.defNode(tx, def, hir.DefEnum)
	if err != nil {
		return nil, err
	}
	return hir.NewEnumShape(n), nil
}

func (db *Database) computeSubmodules(tx *query.Tx, src hir.ModuleSource) ([]hir.Submodule, error) {
	return hir.CollectSubmodules(db.at(tx), src)
}

func (db *Database) computeModuleTree(tx *query.Tx, unit hir.UnitID) (*hir.ModuleTree, error) {
	return hir.BuildModuleTree(db.at(tx), unit)
}

func (db *Database) computeRawItems(tx *query.Tx, key moduleKey) (*hir.RawModuleItems, error) {
	return hir.CollectRawItems(db.at(tx), key.Unit, key.Module)
}

func (db *Database) computeItemMap(tx *query.Tx, unit hir.UnitID) (*nameres.ItemMap, error) {
	start := time.Now()
	s := db.at(tx)
	tree, err := s.ModuleTree(unit)
	if err != nil {
		return nil, err
	}
	in := nameres.Input{Tree: tree, Raw: make([]*hir.RawModuleItems, len(tree.Modules))}
	for _, id := range tree.IDs() {
		if in.Raw[id], err = s.RawModuleItems(unit, id); err != nil {
			return nil, err
		}
	}
	m, err := nameres.Resolve(in, tx.Check)
	if err != nil {
		return nil, err
	}
	db.logger.Debug("item_map",
		"unit", unit,
		"modules", len(tree.Modules),
		"passes", m.Passes,
		"unresolved", len(m.Unresolved),
		"elapsed", time.Since(start),
	)
	if db.sink != nil {
		db.sink.Report(unit, collectDiagnostics(tree, m))
	}
	return m, nil
}

func samePtr[T any](a, b *T) bool {
	return a == b
}

func deepEqual[T any](a, b T) bool {
	return reflect.DeepEqual(a, b)
}
