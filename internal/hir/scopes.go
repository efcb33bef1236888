package hir

import (
	"fmt"

	"github.com/jward/sapling/internal/syntax"
)

// ScopeID indexes FnScopes.Scopes. NoScope marks the root's parent.
type ScopeID int

const NoScope ScopeID = -1

// ScopeEntry is one local binding.
type ScopeEntry struct {
	Name string
	Node *syntax.Node // the binding identifier
}

// ScopeData is one lexical scope. A let statement opens a scope that starts
// after the statement and ends with the enclosing block.
type ScopeData struct {
	Parent  ScopeID
	Start   uint32
	End     uint32
	Entries []ScopeEntry
}

// FnScopes is the scope tree of one function: parameters in the root scope,
// then blocks, lets, closures, loops, conditional lets and match arms.
type FnScopes struct {
	Scopes []ScopeData
}

// NewFnScopes builds the scope tree for a function_item node.
func NewFnScopes(fn *syntax.Node) *FnScopes {
	if fn == nil || fn.Kind != "function_item" {
		kind := "<nil>"
		if fn != nil {
			kind = fn.Kind
		}
		panic(fmt.Sprintf("hir: function scopes requested for %s node", kind))
	}
	s := &FnScopes{}
	root := s.newScope(NoScope, fn.Start, fn.End)
	if params := fn.ChildByField("parameters"); params != nil {
		for _, p := range params.NamedChildren() {
			switch p.Kind {
			case "parameter":
				s.bindPattern(p.ChildByField("pattern"), root)
			case "self_parameter":
				if self := p.ChildOfKind("self"); self != nil {
					s.add(root, "self", self)
				}
			}
		}
	}
	s.expr(fn.ChildByField("body"), root)
	return s
}

// Root returns the parameter scope.
func (s *FnScopes) Root() ScopeID {
	return 0
}

// Entries returns the bindings introduced directly by scope.
func (s *FnScopes) Entries(scope ScopeID) []ScopeEntry {
	return s.Scopes[scope].Entries
}

// ScopeAt returns the innermost scope containing offset, or the root scope
// when none is narrower.
func (s *FnScopes) ScopeAt(offset uint32) ScopeID {
	best := s.Root()
	for i := 1; i < len(s.Scopes); i++ {
		sc := s.Scopes[i]
		if offset < sc.Start || offset >= sc.End {
			continue
		}
		b := s.Scopes[best]
		if sc.End-sc.Start <= b.End-b.Start {
			best = ScopeID(i)
		}
	}
	return best
}

// Chain returns scope followed by its ancestors up to the root.
func (s *FnScopes) Chain(scope ScopeID) []ScopeID {
	var chain []ScopeID
	for id := scope; id != NoScope; id = s.Scopes[id].Parent {
		chain = append(chain, id)
	}
	return chain
}

// Resolve finds the binding of name visible at offset.
func (s *FnScopes) Resolve(name string, offset uint32) (ScopeEntry, bool) {
	for _, id := range s.Chain(s.ScopeAt(offset)) {
		entries := s.Scopes[id].Entries
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].Name == name {
				return entries[i], true
			}
		}
	}
	return ScopeEntry{}, false
}

func (s *FnScopes) newScope(parent ScopeID, start, end uint32) ScopeID {
	s.Scopes = append(s.Scopes, ScopeData{Parent: parent, Start: start, End: end})
	return ScopeID(len(s.Scopes) - 1)
}

func (s *FnScopes) add(scope ScopeID, name string, node *syntax.Node) {
	s.Scopes[scope].Entries = append(s.Scopes[scope].Entries, ScopeEntry{Name: name, Node: node})
}

// nestedItems do not share the function's locals.
var nestedItems = map[string]bool{
	"function_item": true,
	"struct_item":   true,
	"enum_item":     true,
	"mod_item":      true,
	"impl_item":     true,
	"trait_item":    true,
	"const_item":    true,
	"static_item":   true,
}

func (s *FnScopes) block(n *syntax.Node, parent ScopeID) {
	cur := s.newScope(parent, n.Start, n.End)
	for _, stmt := range n.NamedChildren() {
		if stmt.Kind != "let_declaration" {
			s.expr(stmt, cur)
			continue
		}
		s.expr(stmt.ChildByField("value"), cur)
		if alt := stmt.ChildByField("alternative"); alt != nil {
			s.expr(alt, cur)
		}
		cur = s.newScope(cur, stmt.End, n.End)
		s.bindPattern(stmt.ChildByField("pattern"), cur)
	}
}

func (s *FnScopes) expr(n *syntax.Node, scope ScopeID) {
	if n == nil || nestedItems[n.Kind] {
		return
	}
	switch n.Kind {
	case "block":
		s.block(n, scope)
	case "closure_expression":
		inner := s.newScope(scope, n.Start, n.End)
		if params := n.ChildByField("parameters"); params != nil {
			for _, p := range params.NamedChildren() {
				if p.Kind == "parameter" {
					s.bindPattern(p.ChildByField("pattern"), inner)
				} else {
					s.bindPattern(p, inner)
				}
			}
		}
		s.expr(n.ChildByField("body"), inner)
	case "for_expression":
		s.expr(n.ChildByField("value"), scope)
		body := n.ChildByField("body")
		if body == nil {
			return
		}
		inner := s.newScope(scope, body.Start, body.End)
		s.bindPattern(n.ChildByField("pattern"), inner)
		s.expr(body, inner)
	case "if_expression", "while_expression":
		s.conditional(n, scope)
	case "match_expression":
		s.expr(n.ChildByField("value"), scope)
		body := n.ChildByField("body")
		if body == nil {
			return
		}
		for _, arm := range body.NamedChildren() {
			if arm.Kind != "match_arm" {
				continue
			}
			inner := s.newScope(scope, arm.Start, arm.End)
			if mp := arm.ChildByField("pattern"); mp != nil {
				if pat := mp.FirstNamedChild(); pat != nil {
					s.bindPattern(pat, inner)
				}
				s.expr(mp.ChildByField("condition"), inner)
			}
			s.expr(arm.ChildByField("value"), inner)
		}
	default:
		for _, c := range n.NamedChildren() {
			s.expr(c, scope)
		}
	}
}

// conditional handles if/while, where `let` conditions bind into the
// consequence only.
func (s *FnScopes) conditional(n *syntax.Node, scope ScopeID) {
	cond := n.ChildByField("condition")
	body := n.ChildByField("consequence")
	if body == nil {
		body = n.ChildByField("body")
	}
	var lets []*syntax.Node
	if cond != nil {
		switch cond.Kind {
		case "let_condition":
			lets = append(lets, cond)
		case "let_chain":
			for _, c := range cond.NamedChildren() {
				if c.Kind == "let_condition" {
					lets = append(lets, c)
				} else {
					s.expr(c, scope)
				}
			}
		default:
			s.expr(cond, scope)
		}
	}
	inner := scope
	if len(lets) > 0 && body != nil {
		for _, l := range lets {
			s.expr(l.ChildByField("value"), scope)
		}
		inner = s.newScope(scope, body.Start, body.End)
		for _, l := range lets {
			s.bindPattern(l.ChildByField("pattern"), inner)
		}
	}
	s.expr(body, inner)
	s.expr(n.ChildByField("alternative"), scope)
}

func (s *FnScopes) bindPattern(p *syntax.Node, scope ScopeID) {
	if p == nil {
		return
	}
	switch p.Kind {
	case "identifier":
		s.add(scope, p.Text(), p)
	case "self":
		s.add(scope, "self", p)
	case "tuple_struct_pattern":
		for _, c := range p.NamedChildren() {
			if c.Field != "type" {
				s.bindPattern(c, scope)
			}
		}
	case "struct_pattern":
		for _, fp := range p.NamedChildren() {
			if fp.Kind != "field_pattern" {
				continue
			}
			if sub := fp.ChildByField("pattern"); sub != nil {
				s.bindPattern(sub, scope)
			} else if name := fp.ChildByField("name"); name != nil {
				s.add(scope, name.Text(), name)
			}
		}
	case "mut_pattern", "ref_pattern", "reference_pattern", "tuple_pattern",
		"slice_pattern", "or_pattern", "captured_pattern", "parenthesized_pattern":
		for _, c := range p.NamedChildren() {
			s.bindPattern(c, scope)
		}
	}
}
