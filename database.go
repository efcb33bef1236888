package sapling

import (
	"context"
	"io"
	"log/slog"
	"sort"

	"github.com/jward/sapling/internal/hir"
	"github.com/jward/sapling/internal/nameres"
	"github.com/jward/sapling/internal/query"
	"github.com/jward/sapling/internal/syntax"
)

// Database holds the current source text of every file and the memoized
// derivations over it. Writes are serialized and each one advances the
// revision; reads happen through Snapshots.
type Database struct {
	rt     *query.Runtime
	logger *slog.Logger
	sink   DiagnosticsSink

	defs   *hir.Interner[hir.DefLoc, hir.DefID]
	macros *hir.Interner[hir.MacroCallLoc, hir.MacroCallID]

	texts     *query.Input[hir.FileID, string]
	roots     *query.Input[hir.UnitID, *hir.SourceRoot]
	expanders *query.Input[struct{}, hir.MacroExpander]

	trees      *query.Memo[hir.LogicalFile, *syntax.Tree]
	items      *query.Memo[hir.LogicalFile, *hir.ItemIndex]
	fileItems  *query.Memo[hir.SourceItemID, *syntax.Node]
	scopes     *query.Memo[hir.DefID, *hir.FnScopes]
	structs    *query.Memo[hir.DefID, *hir.StructShape]
	enums      *query.Memo[hir.DefID, *hir.EnumShape]
	submodules *query.Memo[hir.ModuleSource, []hir.Submodule]
	moduleTree *query.Memo[hir.UnitID, *hir.ModuleTree]
	rawItems   *query.Memo[moduleKey, *hir.RawModuleItems]
	itemMaps   *query.Memo[hir.UnitID, *nameres.ItemMap]
}

type moduleKey struct {
	Unit   hir.UnitID
	Module hir.ModuleID
}

type config struct {
	logger   *slog.Logger
	sink     DiagnosticsSink
	expander hir.MacroExpander
	runtime  []query.Option
}

// Option configures a Database.
type Option func(*config)

// WithLogger sets the structured logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithEventHook observes every memo execution and validation.
func WithEventHook(fn func(Event)) Option {
	return func(c *config) {
		c.runtime = append(c.runtime, query.WithEventHook(fn))
	}
}

// WithCapacity bounds how many keys each memo table keeps.
func WithCapacity(n int) Option {
	return func(c *config) {
		c.runtime = append(c.runtime, query.WithCapacity(n))
	}
}

// WithDiagnosticsSink receives resolution diagnostics each time a unit's
// item map is recomputed.
func WithDiagnosticsSink(s DiagnosticsSink) Option {
	return func(c *config) {
		c.sink = s
	}
}

// WithMacroExpander installs the initial macro expander.
func WithMacroExpander(e hir.MacroExpander) Option {
	return func(c *config) {
		c.expander = e
	}
}

// New creates an empty Database.
func New(opts ...Option) *Database {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	rt := query.NewRuntime(cfg.runtime...)
	db := &Database{
		rt:     rt,
		logger: cfg.logger,
		sink:   cfg.sink,
		defs:   hir.NewInterner[hir.DefLoc, hir.DefID](),
		macros: hir.NewInterner[hir.MacroCallLoc, hir.MacroCallID](),
	}
	db.texts = query.NewInput[hir.FileID](rt, "text", func(a, b string) bool { return a == b })
	db.roots = query.NewInput[hir.UnitID](rt, "source_root", (*hir.SourceRoot).Equal)
	db.expanders = query.NewInput[struct{}, hir.MacroExpander](rt, "macro_expander", nil)

	db.trees = query.NewMemo(rt, "tree", db.computeTree, syntax.Same)
	db.items = query.NewMemo(rt, "items", db.computeItems, nil)
	db.fileItems = query.NewMemo(rt, "file_item", db.computeFileItem, samePtr[syntax.Node])
	db.scopes = query.NewMemo(rt, "function_scopes", db.computeFunctionScopes, nil)
	db.structs = query.NewMemo(rt, "struct_shape", db.computeStructShape, deepEqual[*hir.StructShape])
	db.enums = query.NewMemo(rt, "enum_shape", db.computeEnumShape, deepEqual[*hir.EnumShape])
	db.submodules = query.NewMemo(rt, "submodules", db.computeSubmodules, deepEqual[[]hir.Submodule])
	db.moduleTree = query.NewMemo(rt, "module_tree", db.computeModuleTree, (*hir.ModuleTree).Equal)
	db.rawItems = query.NewMemo(rt, "raw_module_items", db.computeRawItems, (*hir.RawModuleItems).Equal)
	db.itemMaps = query.NewMemo(rt, "item_map", db.computeItemMap, (*nameres.ItemMap).Equal)

	if cfg.expander != nil {
		db.expanders.Set(struct{}{}, cfg.expander)
	}
	return db
}

// SetText replaces the content of file and returns the new revision.
// Setting identical text advances the revision without invalidating
// anything.
func (db *Database) SetText(file hir.FileID, text string) Revision {
	return db.texts.Set(file, text)
}

// RemoveFile deletes file's content.
func (db *Database) RemoveFile(file hir.FileID) Revision {
	return db.texts.Remove(file)
}

// SetSourceRoot declares the files and root file of unit.
func (db *Database) SetSourceRoot(unit hir.UnitID, root *hir.SourceRoot) Revision {
	return db.roots.Set(unit, root)
}

// RemoveSourceRoot forgets unit.
func (db *Database) RemoveSourceRoot(unit hir.UnitID) Revision {
	return db.roots.Remove(unit)
}

// SetMacroExpander replaces the macro expander. Every expansion is redone.
func (db *Database) SetMacroExpander(e hir.MacroExpander) Revision {
	return db.expanders.Set(struct{}{}, e)
}

// Revision returns the current revision.
func (db *Database) Revision() Revision {
	return db.rt.Revision()
}

// Files returns every file with content, sorted.
func (db *Database) Files() []hir.FileID {
	files := db.texts.Keys()
	sort.Slice(files, func(i, j int) bool { return files[i] < files[j] })
	return files
}

// Units returns every declared unit, sorted.
func (db *Database) Units() []hir.UnitID {
	units := db.roots.Keys()
	sort.Slice(units, func(i, j int) bool { return units[i] < units[j] })
	return units
}

// Collect drops memoized entries not verified at the current revision and
// returns how many were dropped.
func (db *Database) Collect() int {
	n := db.rt.Sweep()
	db.logger.Debug("collected memo entries", "removed", n, "revision", db.rt.Revision())
	return n
}

// Snapshot begins a read at the current revision. A write made after this
// call cancels the snapshot's in-flight and future queries.
func (db *Database) Snapshot(ctx context.Context) *Snapshot {
	return &Snapshot{db: db, tx: db.rt.Begin(ctx)}
}

// DefLoc returns the structural location of def.
func (db *Database) DefLoc(def hir.DefID) hir.DefLoc {
	return db.defs.Lookup(def)
}

// MacroCallLoc returns the location of a macro call.
func (db *Database) MacroCallLoc(call hir.MacroCallID) hir.MacroCallLoc {
	return db.macros.Lookup(call)
}
