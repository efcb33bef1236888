package hir

import (
	"crypto/sha256"
	"fmt"
	"reflect"
	"strings"

	"github.com/jward/sapling/internal/syntax"
)

// MaxMacroDepth bounds nested expansion of item-position macros.
const MaxMacroDepth = 8

// RawItem is a directly declared, named item.
type RawItem struct {
	Name       string
	Kind       DefKind
	Def        DefID
	Visibility Visibility
}

// PathKind is where an import path starts.
type PathKind uint8

const (
	// PlainPath starts at the crate root.
	PlainPath PathKind = iota
	CratePath
	SelfPath
	SuperPath
)

// Path is an unresolved import path. Super counts leading `super` segments.
type Path struct {
	Kind     PathKind
	Super    int
	Segments []string
}

func (p Path) String() string {
	var parts []string
	switch p.Kind {
	case CratePath:
		parts = append(parts, "crate")
	case SelfPath:
		parts = append(parts, "self")
	case SuperPath:
		for i := 0; i < p.Super; i++ {
			parts = append(parts, "super")
		}
	}
	return strings.Join(append(parts, p.Segments...), "::")
}

// newPath classifies the leading keyword segments of segs.
func newPath(segs []string) (Path, bool) {
	var p Path
	switch {
	case len(segs) > 0 && segs[0] == "crate":
		p.Kind, segs = CratePath, segs[1:]
	case len(segs) > 0 && segs[0] == "self":
		p.Kind, segs = SelfPath, segs[1:]
	default:
		for len(segs) > 0 && segs[0] == "super" {
			p.Kind = SuperPath
			p.Super++
			segs = segs[1:]
		}
	}
	for _, s := range segs {
		if s == "crate" || s == "self" || s == "super" || s == "" {
			return Path{}, false
		}
	}
	p.Segments = segs
	return p, true
}

// Import is one flattened use tree leaf, kept verbatim.
type Import struct {
	Path       Path
	Alias      string
	Glob       bool
	Visibility Visibility
	Source     SourceItemID
	Index      int
}

// Name returns the name the import binds; empty for globs.
func (imp Import) Name() string {
	if imp.Glob {
		return ""
	}
	if imp.Alias != "" {
		return imp.Alias
	}
	if n := len(imp.Path.Segments); n > 0 {
		return imp.Path.Segments[n-1]
	}
	return ""
}

func (imp Import) String() string {
	s := imp.Path.String()
	switch {
	case imp.Glob:
		if s == "" {
			return "*"
		}
		s += "::*"
	case imp.Alias != "":
		s += " as " + imp.Alias
	}
	return s
}

// RawModuleItems is one module's unresolved declarations. Items and Imports
// are in declaration order, with expanded macro items following the
// invocation that produced them.
type RawModuleItems struct {
	Items   []RawItem
	Imports []Import
	Macros  []MacroCallID
}

// Fingerprint hashes the module's items and imports. Positions do not
// contribute beyond slot identity.
func (r *RawModuleItems) Fingerprint() string {
	h := sha256.New()
	for _, it := range r.Items {
		fmt.Fprintf(h, "item:%s:%s:%d:%s\n", it.Name, it.Kind, it.Def, it.Visibility)
	}
	for _, imp := range r.Imports {
		fmt.Fprintf(h, "import:%s:%v:%s:%s\n", imp, imp.Glob, imp.Visibility, imp.Source)
	}
	for _, m := range r.Macros {
		fmt.Fprintf(h, "macro:%d\n", m)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Equal compares two item lists structurally.
func (r *RawModuleItems) Equal(other *RawModuleItems) bool {
	return reflect.DeepEqual(r, other)
}

// CollectRawItems classifies the declarations of module in unit. Unnamed and
// malformed declarations are skipped.
func CollectRawItems(db DB, unit UnitID, module ModuleID) (*RawModuleItems, error) {
	tree, err := db.ModuleTree(unit)
	if err != nil {
		return nil, err
	}
	if int(module) >= len(tree.Modules) {
		panic(fmt.Sprintf("hir: module %d not in unit %d", module, unit))
	}
	src := tree.Modules[module].Source
	container, err := src.Container(db)
	if err != nil {
		return nil, err
	}
	c := &collector{db: db, out: &RawModuleItems{}}
	if err := c.collect(container, PhysicalFile(src.File), 0); err != nil {
		return nil, err
	}
	return c.out, nil
}

type collector struct {
	db  DB
	out *RawModuleItems
}

var itemKinds = map[string]DefKind{
	"function_item": DefFunction,
	"struct_item":   DefStruct,
	"enum_item":     DefEnum,
	"mod_item":      DefModule,
}

func (c *collector) collect(container *syntax.Node, lf LogicalFile, depth int) error {
	idx, err := c.db.Items(lf)
	if err != nil {
		return err
	}
	_, physical := lf.File()
	for _, decl := range Declarations(container) {
		slot, ok := idx.SlotOf(decl)
		if !ok {
			continue
		}
		site := SourceItemID{File: lf, Item: slot}
		switch decl.Kind {
		case "use_declaration":
			var imports []Import
			flattenUse(decl.ChildByField("argument"), nil, &imports)
			vis := visibilityOf(decl)
			for _, imp := range imports {
				imp.Visibility = vis
				imp.Source = site
				imp.Index = len(c.out.Imports)
				c.out.Imports = append(c.out.Imports, imp)
			}
		case "macro_invocation":
			if depth >= MaxMacroDepth {
				continue
			}
			name := MacroName(decl)
			if name == "" {
				continue
			}
			call := c.db.InternMacroCall(MacroCallLoc{Site: site, Name: name})
			c.out.Macros = append(c.out.Macros, call)
			expansion, err := c.db.Tree(MacroFile(call))
			if err != nil {
				return err
			}
			if err := c.collect(expansion.Root, MacroFile(call), depth+1); err != nil {
				return err
			}
		default:
			kind, ok := itemKinds[decl.Kind]
			if !ok {
				continue
			}
			// Modules from expansions have no place in the module tree.
			if kind == DefModule && !physical {
				continue
			}
			name := nameOf(decl)
			if name == "" {
				continue
			}
			c.out.Items = append(c.out.Items, RawItem{
				Name:       name,
				Kind:       kind,
				Def:        c.db.InternDef(DefLoc{Kind: kind, Source: site}),
				Visibility: visibilityOf(decl),
			})
		}
	}
	return nil
}

// flattenUse expands a use tree into one Import per leaf.
func flattenUse(n *syntax.Node, prefix []string, out *[]Import) {
	if n == nil {
		return
	}
	switch n.Kind {
	case "use_as_clause":
		segs, ok := pathSegments(n.ChildByField("path"))
		alias := n.ChildByField("alias")
		if !ok || alias == nil {
			return
		}
		addImport(out, join(prefix, segs), alias.Text(), false)
	case "use_wildcard":
		var segs []string
		if p := n.FirstNamedChild(); p != nil {
			var ok bool
			if segs, ok = pathSegments(p); !ok {
				return
			}
		}
		addImport(out, join(prefix, segs), "", true)
	case "scoped_use_list":
		segs, ok := []string(nil), true
		if p := n.ChildByField("path"); p != nil {
			segs, ok = pathSegments(p)
		}
		if ok {
			flattenUse(n.ChildByField("list"), join(prefix, segs), out)
		}
	case "use_list":
		for _, c := range n.NamedChildren() {
			flattenUse(c, prefix, out)
		}
	default:
		segs, ok := pathSegments(n)
		if !ok {
			return
		}
		// `a::{self}` imports a itself.
		if len(segs) == 1 && segs[0] == "self" && len(prefix) > 0 {
			segs = nil
		}
		addImport(out, join(prefix, segs), "", false)
	}
}

func addImport(out *[]Import, segs []string, alias string, glob bool) {
	p, ok := newPath(segs)
	if !ok {
		return
	}
	if !glob && len(p.Segments) == 0 && alias == "" {
		return
	}
	*out = append(*out, Import{Path: p, Alias: alias, Glob: glob})
}

func pathSegments(n *syntax.Node) ([]string, bool) {
	if n == nil {
		return nil, false
	}
	switch n.Kind {
	case "identifier", "crate", "self", "super":
		return []string{n.Text()}, true
	case "scoped_identifier":
		var segs []string
		if p := n.ChildByField("path"); p != nil {
			var ok bool
			if segs, ok = pathSegments(p); !ok {
				return nil, false
			}
		}
		name := n.ChildByField("name")
		if name == nil {
			return nil, false
		}
		return append(segs, name.Text()), true
	}
	return nil, false
}

func join(prefix, segs []string) []string {
	out := make([]string, 0, len(prefix)+len(segs))
	return append(append(out, prefix...), segs...)
}
