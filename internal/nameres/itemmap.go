// Package nameres resolves the raw items of every module in a compilation
// unit into a unit-wide item map, iterating import resolution to a fixed
// point.
package nameres

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/jward/sapling/internal/hir"
)

// BindingKind ranks how a name came into a module's scope.
type BindingKind uint8

const (
	// Direct bindings are declared in the module itself.
	Direct BindingKind = iota + 1
	// Explicit bindings come from a named import.
	Explicit
	// Glob bindings come from a `*` import and yield to everything else.
	Glob
	// Unresolved marks a name whose import never resolved.
	Unresolved
)

func (k BindingKind) String() string {
	switch k {
	case Direct:
		return "direct"
	case Explicit:
		return "import"
	case Glob:
		return "glob"
	case Unresolved:
		return "unresolved"
	}
	return "unknown"
}

// Resolution is the binding of one name in one module. Import is the index
// of the binding import, or -1 for direct definitions.
type Resolution struct {
	Def    hir.DefID
	Kind   BindingKind
	Import int
}

// ConflictKind classifies a name clash.
type ConflictKind uint8

const (
	// DuplicateDefinition is two direct definitions of one name.
	DuplicateDefinition ConflictKind = iota + 1
	// ImportShadowsDefinition is an explicit import of a directly defined name.
	ImportShadowsDefinition
	// DuplicateImport is two explicit imports binding different definitions.
	DuplicateImport
	// GlobAmbiguity is two glob imports offering different definitions.
	GlobAmbiguity
)

func (k ConflictKind) String() string {
	switch k {
	case DuplicateDefinition:
		return "duplicate definition"
	case ImportShadowsDefinition:
		return "import shadows definition"
	case DuplicateImport:
		return "duplicate import"
	case GlobAmbiguity:
		return "ambiguous glob imports"
	}
	return "unknown"
}

// Conflict records a clash. Kept is the binding left in the map.
type Conflict struct {
	Module hir.ModuleID
	Name   string
	Kind   ConflictKind
	Kept   hir.DefID
	Other  hir.DefID
}

// UnresolvedImport is an import still pending when resolution stopped.
type UnresolvedImport struct {
	Module hir.ModuleID
	Import hir.Import
}

// Reexport is an edge created by a pub import: Module exposes Name (or,
// for globs, every name) from From.
type Reexport struct {
	Module hir.ModuleID
	From   hir.ModuleID
	Name   string
	Def    hir.DefID
	Glob   bool
}

// ItemMap is the resolved scope of every module in a unit. It is immutable
// once returned.
type ItemMap struct {
	Unit       hir.UnitID
	Paths      []string
	Scopes     []map[string]Resolution
	Unresolved []UnresolvedImport
	Conflicts  []Conflict
	Reexports  []Reexport
	Passes     int

	modules map[hir.DefID]hir.ModuleID
	tree    *hir.ModuleTree
}

// Lookup returns the binding of name in module.
func (m *ItemMap) Lookup(module hir.ModuleID, name string) (Resolution, bool) {
	if int(module) >= len(m.Scopes) {
		return Resolution{}, false
	}
	r, ok := m.Scopes[module][name]
	return r, ok
}

// Names returns the names bound in module, sorted.
func (m *ItemMap) Names(module hir.ModuleID) []string {
	names := make([]string, 0, len(m.Scopes[module]))
	for n := range m.Scopes[module] {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ModuleOf returns the module a definition denotes, if it is one.
func (m *ItemMap) ModuleOf(def hir.DefID) (hir.ModuleID, bool) {
	id, ok := m.modules[def]
	return id, ok
}

// ResolvePath resolves p as if imported from module, against the final map.
func (m *ItemMap) ResolvePath(module hir.ModuleID, p hir.Path) (Resolution, bool) {
	w := walker{tree: m.tree, modules: m.modules, lookup: func(mod hir.ModuleID, name string) (Resolution, bool) {
		r, ok := m.Lookup(mod, name)
		if ok && r.Kind == Unresolved {
			return Resolution{}, false
		}
		return r, ok
	}}
	r, _, ok := w.resolve(module, p)
	return r, ok
}

// Equal compares two maps structurally.
func (m *ItemMap) Equal(other *ItemMap) bool {
	return reflect.DeepEqual(m, other)
}

// Dump renders the map as deterministic text: one block per module with its
// names sorted, followed by unresolved imports, conflicts and re-exports.
func (m *ItemMap) Dump() string {
	var b strings.Builder
	for id, path := range m.Paths {
		fmt.Fprintf(&b, "%s\n", path)
		for _, name := range m.Names(hir.ModuleID(id)) {
			r := m.Scopes[id][name]
			fmt.Fprintf(&b, "  %s: %s %d\n", name, r.Kind, r.Def)
		}
	}
	for _, u := range m.Unresolved {
		fmt.Fprintf(&b, "unresolved %s: %s\n", m.Paths[u.Module], u.Import)
	}
	for _, c := range m.Conflicts {
		fmt.Fprintf(&b, "conflict %s::%s: %s (kept %d, other %d)\n", m.Paths[c.Module], c.Name, c.Kind, c.Kept, c.Other)
	}
	for _, r := range m.Reexports {
		if r.Glob {
			fmt.Fprintf(&b, "reexport %s: %s::*\n", m.Paths[r.Module], m.Paths[r.From])
			continue
		}
		fmt.Fprintf(&b, "reexport %s: %s::%s %d\n", m.Paths[r.Module], m.Paths[r.From], r.Name, r.Def)
	}
	return b.String()
}

// Diagnostic is a user-facing resolution problem. Ambiguous globs are only
// warnings; everything else is an error.
type Diagnostic struct {
	Module  hir.ModuleID
	Path    string
	Name    string
	Message string
	Error   bool
}

// Diagnostics lists unresolved imports and conflicts in map order.
func (m *ItemMap) Diagnostics() []Diagnostic {
	var out []Diagnostic
	for _, u := range m.Unresolved {
		out = append(out, Diagnostic{
			Module:  u.Module,
			Path:    m.Paths[u.Module],
			Name:    u.Import.Name(),
			Message: fmt.Sprintf("unresolved import %s", u.Import),
			Error:   true,
		})
	}
	for _, c := range m.Conflicts {
		out = append(out, Diagnostic{
			Module:  c.Module,
			Path:    m.Paths[c.Module],
			Name:    c.Name,
			Message: fmt.Sprintf("%s: %s", c.Kind, c.Name),
			Error:   c.Kind != GlobAmbiguity,
		})
	}
	return out
}
