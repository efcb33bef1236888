// Package syntax parses Rust source with tree-sitter and converts the result
// into an immutable Go tree that is safe to share across goroutines.
package syntax

import (
	"strings"
)

// Point is a zero-based row/column position.
type Point struct {
	Row    uint32
	Column uint32
}

// Node is one node of an immutable syntax tree. Anonymous tokens (such as
// ";" or "*") are kept so callers can distinguish forms that differ only in
// punctuation.
type Node struct {
	Kind     string
	Field    string // field name in the parent, "" if none
	Named    bool
	Start    uint32 // byte offsets into the tree's source
	End      uint32
	Pos      Point
	Children []*Node

	src string
}

// Text returns the source text covered by the node.
func (n *Node) Text() string {
	return n.src[n.Start:n.End]
}

// ChildByField returns the first child stored under field, or nil.
func (n *Node) ChildByField(field string) *Node {
	for _, c := range n.Children {
		if c.Field == field {
			return c
		}
	}
	return nil
}

// ChildrenByField returns every child stored under field.
func (n *Node) ChildrenByField(field string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Field == field {
			out = append(out, c)
		}
	}
	return out
}

// NamedChildren returns the named children in source order.
func (n *Node) NamedChildren() []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Named {
			out = append(out, c)
		}
	}
	return out
}

// FirstNamedChild returns the first named child, or nil.
func (n *Node) FirstNamedChild() *Node {
	for _, c := range n.Children {
		if c.Named {
			return c
		}
	}
	return nil
}

// ChildOfKind returns the first child whose kind is one of kinds.
func (n *Node) ChildOfKind(kinds ...string) *Node {
	for _, c := range n.Children {
		for _, k := range kinds {
			if c.Kind == k {
				return c
			}
		}
	}
	return nil
}

// HasToken reports whether an anonymous child with the given text exists.
func (n *Node) HasToken(tok string) bool {
	for _, c := range n.Children {
		if !c.Named && c.Kind == tok {
			return true
		}
	}
	return false
}

// Contains reports whether offset lies within the node's byte range.
func (n *Node) Contains(offset uint32) bool {
	return offset >= n.Start && offset < n.End
}

// Walk visits n and its descendants in pre-order. Returning false from fn
// skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// String renders the named structure as an s-expression, mainly for tests.
func (n *Node) String() string {
	var b strings.Builder
	n.sexp(&b)
	return b.String()
}

func (n *Node) sexp(b *strings.Builder) {
	b.WriteByte('(')
	if n.Field != "" {
		b.WriteString(n.Field)
		b.WriteString(": ")
	}
	b.WriteString(n.Kind)
	for _, c := range n.Children {
		if !c.Named {
			continue
		}
		b.WriteByte(' ')
		c.sexp(b)
	}
	b.WriteByte(')')
}

// Tree is an immutable parse result. Two trees with equal Fingerprint have
// the same shape and token text.
type Tree struct {
	Root        *Node
	Source      string
	Fingerprint uint64
	HasErrors   bool
}

// Empty returns a valid tree with no declarations.
func Empty() *Tree {
	root := &Node{Kind: "source_file", Named: true}
	return &Tree{Root: root, Fingerprint: fingerprint(root)}
}

// Same reports whether a and b are structurally identical.
func Same(a, b *Tree) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.Fingerprint == b.Fingerprint && a.HasErrors == b.HasErrors
}
