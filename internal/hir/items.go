package hir

import (
	"fmt"

	"github.com/jward/sapling/internal/syntax"
)

// declarationKinds are the node kinds that occupy an ItemIndex slot.
var declarationKinds = map[string]bool{
	"function_item":            true,
	"function_signature_item":  true,
	"struct_item":              true,
	"enum_item":                true,
	"union_item":               true,
	"mod_item":                 true,
	"use_declaration":          true,
	"macro_invocation":         true,
	"macro_definition":         true,
	"trait_item":               true,
	"impl_item":                true,
	"const_item":               true,
	"static_item":              true,
	"type_item":                true,
	"extern_crate_declaration": true,
	"foreign_mod_item":         true,
}

// Declarations returns the declaration children of a source_file or
// declaration_list node in source order. A top-level `foo!(...);` parses as
// an expression statement; its macro_invocation is returned instead.
func Declarations(container *syntax.Node) []*syntax.Node {
	if container == nil {
		return nil
	}
	var out []*syntax.Node
	for _, c := range container.Children {
		if !c.Named {
			continue
		}
		if declarationKinds[c.Kind] {
			out = append(out, c)
			continue
		}
		if c.Kind == "expression_statement" {
			if m := c.FirstNamedChild(); m != nil && m.Kind == "macro_invocation" {
				out = append(out, m)
			}
		}
	}
	return out
}

// ItemIndex maps small integer slots to a logical file's declaration nodes.
// Slots follow declaration order in the text; the body of an inline module
// is indexed immediately after its mod item.
type ItemIndex struct {
	File  LogicalFile
	nodes []*syntax.Node
	slots map[*syntax.Node]ItemSlot
}

// NewItemIndex indexes tree, which must be the current tree for lf.
func NewItemIndex(lf LogicalFile, tree *syntax.Tree) *ItemIndex {
	idx := &ItemIndex{File: lf, slots: make(map[*syntax.Node]ItemSlot)}
	idx.add(tree.Root)
	return idx
}

func (idx *ItemIndex) add(container *syntax.Node) {
	for _, item := range Declarations(container) {
		idx.slots[item] = ItemSlot(len(idx.nodes))
		idx.nodes = append(idx.nodes, item)
		if item.Kind == "mod_item" {
			idx.add(item.ChildByField("body"))
		}
	}
}

// Len returns the number of slots.
func (idx *ItemIndex) Len() int {
	return len(idx.nodes)
}

// Node returns the node in slot. An out-of-range slot is a stale or forged
// address and panics.
func (idx *ItemIndex) Node(slot ItemSlot) *syntax.Node {
	if slot < 0 || int(slot) >= len(idx.nodes) {
		panic(fmt.Sprintf("hir: slot %d out of range for %s (%d items)", slot, idx.File, len(idx.nodes)))
	}
	return idx.nodes[slot]
}

// SlotOf returns the slot holding n.
func (idx *ItemIndex) SlotOf(n *syntax.Node) (ItemSlot, bool) {
	slot, ok := idx.slots[n]
	return slot, ok
}

// Kinds lists the node kind of every slot, in slot order.
func (idx *ItemIndex) Kinds() []string {
	kinds := make([]string, len(idx.nodes))
	for i, n := range idx.nodes {
		kinds[i] = n.Kind
	}
	return kinds
}

// ResolveItem returns the node addressed by id, or the file root for
// RootItem.
func ResolveItem(db DB, id SourceItemID) (*syntax.Node, error) {
	if id.Item == RootItem {
		tree, err := db.Tree(id.File)
		if err != nil {
			return nil, err
		}
		return tree.Root, nil
	}
	idx, err := db.Items(id.File)
	if err != nil {
		return nil, err
	}
	return idx.Node(id.Item), nil
}

// Visibility is an item's declared visibility.
type Visibility uint8

const (
	Private Visibility = iota
	Public
)

func (v Visibility) String() string {
	if v == Public {
		return "pub"
	}
	return "private"
}

func visibilityOf(n *syntax.Node) Visibility {
	if n.ChildOfKind("visibility_modifier") != nil {
		return Public
	}
	return Private
}

func nameOf(n *syntax.Node) string {
	if name := n.ChildByField("name"); name != nil {
		return name.Text()
	}
	return ""
}
