package hir

import (
	"fmt"
	"path"
	"reflect"
	"sort"
	"strings"

	"github.com/jward/sapling/internal/syntax"
)

// ModuleSource is the syntax backing a module: a whole physical file (Item is
// RootItem) or the mod item of an inline module.
type ModuleSource struct {
	File FileID
	Item ItemSlot
}

// FileModule returns the source for a module backed by a whole file.
func FileModule(f FileID) ModuleSource {
	return ModuleSource{File: f, Item: RootItem}
}

// SourceItem returns the address of the backing node.
func (s ModuleSource) SourceItem() SourceItemID {
	return SourceItemID{File: PhysicalFile(s.File), Item: s.Item}
}

// Container returns the node whose children are the module's declarations:
// the file root or the inline module's declaration list.
func (s ModuleSource) Container(db DB) (*syntax.Node, error) {
	n, err := db.FileItem(s.SourceItem())
	if err != nil {
		return nil, err
	}
	if s.Item == RootItem {
		return n, nil
	}
	mustKind(n, "mod_item")
	return n.ChildByField("body"), nil
}

// SubmoduleKind tells apart `mod x;` and `mod x { ... }`.
type SubmoduleKind uint8

const (
	// Declaration has its body in another file.
	Declaration SubmoduleKind = iota + 1
	// Definition carries its body inline.
	Definition
)

func (k SubmoduleKind) String() string {
	if k == Definition {
		return "definition"
	}
	return "declaration"
}

// Submodule is one mod item found while scanning a module. Source is only
// set for definitions.
type Submodule struct {
	Name   string
	Kind   SubmoduleKind
	Source ModuleSource
	Def    DefID
}

// CollectSubmodules scans src's declarations for mod items, in declaration
// order. Duplicate names are kept.
func CollectSubmodules(db DB, src ModuleSource) ([]Submodule, error) {
	if err := db.Check(); err != nil {
		return nil, err
	}
	container, err := src.Container(db)
	if err != nil {
		return nil, err
	}
	lf := PhysicalFile(src.File)
	idx, err := db.Items(lf)
	if err != nil {
		return nil, err
	}

	var subs []Submodule
	for _, decl := range Declarations(container) {
		if decl.Kind != "mod_item" {
			continue
		}
		name := nameOf(decl)
		slot, ok := idx.SlotOf(decl)
		if name == "" || !ok {
			continue
		}
		sub := Submodule{
			Name: name,
			Kind: Declaration,
			Def:  db.InternDef(DefLoc{Kind: DefModule, Source: SourceItemID{File: lf, Item: slot}}),
		}
		if decl.ChildByField("body") != nil {
			sub.Kind = Definition
			sub.Source = ModuleSource{File: src.File, Item: slot}
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// SourceRoot is the set of files forming one compilation unit, with the
// unit's root file. Paths are slash-separated and relative to the unit.
type SourceRoot struct {
	Root  FileID
	paths map[FileID]string
	files map[string]FileID
}

// NewSourceRoot builds a source root from a path table.
func NewSourceRoot(root FileID, paths map[FileID]string) *SourceRoot {
	sr := &SourceRoot{
		Root:  root,
		paths: make(map[FileID]string, len(paths)),
		files: make(map[string]FileID, len(paths)),
	}
	for id, p := range paths {
		p = path.Clean(p)
		sr.paths[id] = p
		sr.files[p] = id
	}
	return sr
}

// Path returns the relative path of f.
func (sr *SourceRoot) Path(f FileID) (string, bool) {
	p, ok := sr.paths[f]
	return p, ok
}

// FileByPath looks up a file by relative path.
func (sr *SourceRoot) FileByPath(p string) (FileID, bool) {
	f, ok := sr.files[path.Clean(p)]
	return f, ok
}

// Files returns every file of the unit, sorted by ID.
func (sr *SourceRoot) Files() []FileID {
	ids := make([]FileID, 0, len(sr.paths))
	for id := range sr.paths {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Equal reports whether two source roots describe the same files.
func (sr *SourceRoot) Equal(other *SourceRoot) bool {
	if sr == nil || other == nil {
		return sr == other
	}
	return sr.Root == other.Root && reflect.DeepEqual(sr.paths, other.paths)
}

// ModuleID indexes ModuleTree.Modules. The crate root is RootModule.
type ModuleID uint32

const RootModule ModuleID = 0

// ModuleChild is a named edge to a child module.
type ModuleChild struct {
	Name string
	ID   ModuleID
}

// ModuleData is one node of the module tree. Def is the mod item's
// definition, or the root file's definition for the crate root.
type ModuleData struct {
	Name     string
	Source   ModuleSource
	Parent   ModuleID
	Def      DefID
	Children []ModuleChild
	dir      string
}

// ModuleProblem records a declared module that could not be attached.
type ModuleProblem struct {
	Module     ModuleID
	Name       string
	Message    string
	Candidates []string
}

// ModuleTree is the module hierarchy of one unit.
type ModuleTree struct {
	Unit     UnitID
	Modules  []ModuleData
	Problems []ModuleProblem
}

// IDs returns every module ID in tree order.
func (t *ModuleTree) IDs() []ModuleID {
	ids := make([]ModuleID, len(t.Modules))
	for i := range t.Modules {
		ids[i] = ModuleID(i)
	}
	return ids
}

// Child returns the first child of m named name.
func (t *ModuleTree) Child(m ModuleID, name string) (ModuleID, bool) {
	for _, c := range t.Modules[m].Children {
		if c.Name == name {
			return c.ID, true
		}
	}
	return 0, false
}

// Path renders m as crate::a::b.
func (t *ModuleTree) Path(m ModuleID) string {
	var parts []string
	for id := m; id != RootModule; id = t.Modules[id].Parent {
		parts = append(parts, t.Modules[id].Name)
	}
	parts = append(parts, "crate")
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "::")
}

// ModuleForDef returns the module whose Def is def.
func (t *ModuleTree) ModuleForDef(def DefID) (ModuleID, bool) {
	for i, m := range t.Modules {
		if m.Def == def {
			return ModuleID(i), true
		}
	}
	return 0, false
}

// Equal compares two trees structurally.
func (t *ModuleTree) Equal(other *ModuleTree) bool {
	return reflect.DeepEqual(t, other)
}

// BuildModuleTree materializes the module hierarchy of unit, breadth first
// from its root file. `mod x;` is located at dir/x.rs or dir/x/mod.rs where
// dir is the declaring module's directory.
func BuildModuleTree(db DB, unit UnitID) (*ModuleTree, error) {
	sr, err := db.SourceRoot(unit)
	if err != nil {
		return nil, err
	}
	rootPath, _ := sr.Path(sr.Root)
	tree := &ModuleTree{Unit: unit}
	tree.Modules = append(tree.Modules, ModuleData{
		Source: FileModule(sr.Root),
		Def:    db.InternDef(DefLoc{Kind: DefModule, Source: FileModule(sr.Root).SourceItem()}),
		dir:    path.Dir(rootPath),
	})
	used := map[FileID]bool{sr.Root: true}

	for next := 0; next < len(tree.Modules); next++ {
		if err := db.Check(); err != nil {
			return nil, err
		}
		parent := ModuleID(next)
		subs, err := db.Submodules(tree.Modules[parent].Source)
		if err != nil {
			return nil, err
		}
		dir := tree.Modules[parent].dir
		for _, sub := range subs {
			child := ModuleData{Name: sub.Name, Parent: parent, Def: sub.Def, dir: path.Join(dir, sub.Name)}
			switch sub.Kind {
			case Definition:
				child.Source = sub.Source
			case Declaration:
				candidates := []string{
					path.Join(dir, sub.Name+syntax.Extension),
					path.Join(dir, sub.Name, "mod"+syntax.Extension),
				}
				file, found := FileID(0), false
				for _, c := range candidates {
					if f, ok := sr.FileByPath(c); ok {
						file, found = f, true
						break
					}
				}
				if !found {
					tree.Problems = append(tree.Problems, ModuleProblem{
						Module: parent, Name: sub.Name, Message: "file for module not found", Candidates: candidates,
					})
					continue
				}
				if used[file] {
					p, _ := sr.Path(file)
					tree.Problems = append(tree.Problems, ModuleProblem{
						Module: parent, Name: sub.Name, Message: fmt.Sprintf("file %s already backs another module", p),
					})
					continue
				}
				used[file] = true
				child.Source = FileModule(file)
			}
			id := ModuleID(len(tree.Modules))
			tree.Modules = append(tree.Modules, child)
			tree.Modules[parent].Children = append(tree.Modules[parent].Children, ModuleChild{Name: sub.Name, ID: id})
		}
	}
	return tree, nil
}
