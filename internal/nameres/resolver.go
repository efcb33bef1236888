package nameres

import (
	"fmt"
	"sort"

	"github.com/jward/sapling/internal/hir"
)

// Input is everything the resolver reads: the module tree and the raw items
// of each module, indexed by ModuleID.
type Input struct {
	Tree *hir.ModuleTree
	Raw  []*hir.RawModuleItems
}

// Resolve computes the item map of a unit. check is polled between modules
// and its error is returned unchanged.
func Resolve(in Input, check func() error) (*ItemMap, error) {
	order := make([]hir.ModuleID, len(in.Tree.Modules))
	for i := range order {
		order[i] = hir.ModuleID(i)
	}
	return resolve(in, check, order, passLimit(in))
}

// passLimit bounds the number of passes. Each productive pass resolves an
// import or moves a binding, so the bound is only reached by an accounting
// error.
func passLimit(in Input) int {
	imports := 0
	for _, raw := range in.Raw {
		imports += len(raw.Imports)
	}
	return len(in.Raw) + 1 + imports
}

type resolver struct {
	in      Input
	walker  walker
	scopes  []map[string]Resolution
	prev    []map[string]Resolution
	done    [][]bool
	globs   map[globKey]bool
	result  *ItemMap
	current hir.ModuleID
}

type globKey struct {
	module hir.ModuleID
	name   string
	def    hir.DefID
}

// resolve runs at most guard passes over order. Imports still pending when
// the guard is hit become unresolved markers.
func resolve(in Input, check func() error, order []hir.ModuleID, guard int) (*ItemMap, error) {
	if len(in.Raw) != len(in.Tree.Modules) {
		panic(fmt.Sprintf("nameres: %d raw item lists for %d modules", len(in.Raw), len(in.Tree.Modules)))
	}
	r := &resolver{
		in:     in,
		scopes: make([]map[string]Resolution, len(in.Raw)),
		done:   make([][]bool, len(in.Raw)),
		globs:  make(map[globKey]bool),
		result: &ItemMap{Unit: in.Tree.Unit, modules: make(map[hir.DefID]hir.ModuleID), tree: in.Tree},
	}
	for id, data := range in.Tree.Modules {
		r.result.modules[data.Def] = hir.ModuleID(id)
		r.result.Paths = append(r.result.Paths, in.Tree.Path(hir.ModuleID(id)))
	}
	r.walker = walker{tree: in.Tree, modules: r.result.modules, lookup: r.lookup}

	for id, raw := range in.Raw {
		r.scopes[id] = make(map[string]Resolution)
		r.done[id] = make([]bool, len(raw.Imports))
		r.seed(hir.ModuleID(id))
	}

	for r.result.Passes < guard {
		r.result.Passes++
		r.prev = cloneScopes(r.scopes)
		changed := false
		for _, m := range order {
			if err := check(); err != nil {
				return nil, err
			}
			if r.resolveModule(m) {
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	r.finish()
	return r.result, nil
}

func cloneScopes(scopes []map[string]Resolution) []map[string]Resolution {
	out := make([]map[string]Resolution, len(scopes))
	for i, s := range scopes {
		c := make(map[string]Resolution, len(s))
		for k, v := range s {
			c[k] = v
		}
		out[i] = c
	}
	return out
}

// seed enters the module's own definitions. They never change afterwards.
func (r *resolver) seed(m hir.ModuleID) {
	scope := r.scopes[m]
	for _, item := range r.in.Raw[m].Items {
		if old, ok := scope[item.Name]; ok {
			r.conflict(m, item.Name, DuplicateDefinition, old.Def, item.Def)
			continue
		}
		scope[item.Name] = Resolution{Def: item.Def, Kind: Direct, Import: -1}
	}
}

// lookup reads the module being resolved from the live scopes and every
// other module from the previous pass, so a pass does not depend on the
// order modules are visited in.
func (r *resolver) lookup(m hir.ModuleID, name string) (Resolution, bool) {
	if m == r.current {
		res, ok := r.scopes[m][name]
		return res, ok
	}
	res, ok := r.prev[m][name]
	return res, ok
}

// resolveModule applies m's imports until they stop making progress and
// reports whether anything changed.
func (r *resolver) resolveModule(m hir.ModuleID) bool {
	r.current = m
	changed := false
	for {
		progress := false
		for i, imp := range r.in.Raw[m].Imports {
			if imp.Glob {
				if r.applyGlob(m, i, imp) {
					progress = true
				}
				continue
			}
			if r.applyExplicit(m, i, imp) {
				progress = true
			}
		}
		if !progress {
			return changed
		}
		changed = true
	}
}

// applyExplicit binds an explicit import once its path resolves. A resolved
// import is walked again on every pass, since its path may run through a glob
// binding that later moves or is replaced by an explicit one.
func (r *resolver) applyExplicit(m hir.ModuleID, i int, imp hir.Import) bool {
	res, from, ok := r.walker.resolve(m, imp.Path)
	if !ok {
		return false
	}
	name := imp.Name()
	if r.done[m][i] {
		return r.rebind(m, i, name, res.Def, from)
	}
	r.done[m][i] = true
	if name == "_" || name == "" {
		return true
	}
	if imp.Visibility == hir.Public {
		r.result.Reexports = append(r.result.Reexports, Reexport{Module: m, From: from, Name: name, Def: res.Def})
	}
	scope := r.scopes[m]
	if old, ok := scope[name]; ok {
		switch old.Kind {
		case Direct:
			r.conflict(m, name, ImportShadowsDefinition, old.Def, res.Def)
			return true
		case Explicit:
			if old.Def != res.Def {
				r.conflict(m, name, DuplicateImport, old.Def, res.Def)
			}
			return true
		}
	}
	scope[name] = Resolution{Def: res.Def, Kind: Explicit, Import: i}
	return true
}

// rebind moves the binding made by import i of m to def. Bindings the import
// lost to a conflict stay as they are.
func (r *resolver) rebind(m hir.ModuleID, i int, name string, def hir.DefID, from hir.ModuleID) bool {
	if name == "_" || name == "" {
		return false
	}
	old, ok := r.scopes[m][name]
	if !ok || old.Kind != Explicit || old.Import != i || old.Def == def {
		return false
	}
	r.scopes[m][name] = Resolution{Def: def, Kind: Explicit, Import: i}
	for k := range r.result.Reexports {
		e := &r.result.Reexports[k]
		if e.Module == m && !e.Glob && e.Name == name && e.Def == old.Def {
			e.From, e.Def = from, def
		}
	}
	return true
}

// applyGlob copies every name currently known in the target module. A name
// bound by this same glob follows the target if the target's binding moved.
func (r *resolver) applyGlob(m hir.ModuleID, i int, imp hir.Import) bool {
	target, ok := r.walker.module(m, imp.Path)
	if !ok {
		return false
	}
	if target == m {
		// use self::* brings nothing into scope.
		r.done[m][i] = true
		return false
	}
	if !r.done[m][i] {
		r.done[m][i] = true
		if imp.Visibility == hir.Public {
			r.result.Reexports = append(r.result.Reexports, Reexport{Module: m, From: target, Glob: true})
		}
	}
	names := make([]string, 0, len(r.prev[target]))
	for name := range r.prev[target] {
		names = append(names, name)
	}
	sort.Strings(names)

	scope := r.scopes[m]
	changed := false
	for _, name := range names {
		offered := r.prev[target][name]
		old, ok := scope[name]
		switch {
		case !ok:
			scope[name] = Resolution{Def: offered.Def, Kind: Glob, Import: i}
			changed = true
		case old.Kind != Glob || old.Def == offered.Def:
		case old.Import == i:
			scope[name] = Resolution{Def: offered.Def, Kind: Glob, Import: i}
			changed = true
		default:
			key := globKey{module: m, name: name, def: offered.Def}
			if !r.globs[key] {
				r.globs[key] = true
				r.conflict(m, name, GlobAmbiguity, old.Def, offered.Def)
			}
		}
	}
	return changed
}

func (r *resolver) conflict(m hir.ModuleID, name string, kind ConflictKind, kept, other hir.DefID) {
	r.result.Conflicts = append(r.result.Conflicts, Conflict{Module: m, Name: name, Kind: kind, Kept: kept, Other: other})
}

// finish turns leftover imports into unresolved markers and sorts the
// side tables so the map does not depend on visitation order.
func (r *resolver) finish() {
	for id, raw := range r.in.Raw {
		m := hir.ModuleID(id)
		for i, imp := range raw.Imports {
			if r.done[m][i] {
				continue
			}
			r.result.Unresolved = append(r.result.Unresolved, UnresolvedImport{Module: m, Import: imp})
			name := imp.Name()
			if name == "" || name == "_" {
				continue
			}
			if _, ok := r.scopes[m][name]; !ok {
				r.scopes[m][name] = Resolution{Kind: Unresolved, Import: i}
			}
		}
	}
	r.result.Scopes = r.scopes

	sort.SliceStable(r.result.Conflicts, func(i, j int) bool {
		a, b := r.result.Conflicts[i], r.result.Conflicts[j]
		if a.Module != b.Module {
			return a.Module < b.Module
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Other < b.Other
	})
	sort.SliceStable(r.result.Reexports, func(i, j int) bool {
		a, b := r.result.Reexports[i], r.result.Reexports[j]
		if a.Module != b.Module {
			return a.Module < b.Module
		}
		if a.Glob != b.Glob {
			return !a.Glob
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.From < b.From
	})
}

// walker follows import paths through module scopes.
type walker struct {
	tree    *hir.ModuleTree
	modules map[hir.DefID]hir.ModuleID
	lookup  func(hir.ModuleID, string) (Resolution, bool)
}

// start returns the module a path is relative to.
func (w walker) start(from hir.ModuleID, p hir.Path) (hir.ModuleID, bool) {
	switch p.Kind {
	case hir.SelfPath:
		return from, true
	case hir.SuperPath:
		m := from
		for i := 0; i < p.Super; i++ {
			if m == hir.RootModule {
				return 0, false
			}
			m = w.tree.Modules[m].Parent
		}
		return m, true
	}
	return hir.RootModule, true
}

// module resolves p to a module.
func (w walker) module(from hir.ModuleID, p hir.Path) (hir.ModuleID, bool) {
	m, ok := w.start(from, p)
	if !ok {
		return 0, false
	}
	for _, seg := range p.Segments {
		res, ok := w.lookup(m, seg)
		if !ok {
			return 0, false
		}
		if m, ok = w.modules[res.Def]; !ok {
			return 0, false
		}
	}
	return m, true
}

// resolve resolves p to a binding and the module it was found in. A path
// with no segments denotes its start module.
func (w walker) resolve(from hir.ModuleID, p hir.Path) (Resolution, hir.ModuleID, bool) {
	if len(p.Segments) == 0 {
		m, ok := w.start(from, p)
		if !ok {
			return Resolution{}, 0, false
		}
		return Resolution{Def: w.tree.Modules[m].Def, Kind: Explicit}, m, true
	}
	last := len(p.Segments) - 1
	m, ok := w.module(from, hir.Path{Kind: p.Kind, Super: p.Super, Segments: p.Segments[:last]})
	if !ok {
		return Resolution{}, 0, false
	}
	res, ok := w.lookup(m, p.Segments[last])
	return res, m, ok
}
