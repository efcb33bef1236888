package hir

import (
	"fmt"

	"github.com/jward/sapling/internal/syntax"
)

// ShapeKind is the syntactic form of a struct or variant body.
type ShapeKind uint8

const (
	UnitShape ShapeKind = iota
	TupleShape
	RecordShape
)

func (k ShapeKind) String() string {
	switch k {
	case TupleShape:
		return "tuple"
	case RecordShape:
		return "record"
	}
	return "unit"
}

// FieldData is one field. Tuple fields are named by position ("0", "1", ...).
type FieldData struct {
	Name       string
	Type       string
	Visibility Visibility
}

// StructShape describes a struct's fields.
type StructShape struct {
	Name   string
	Kind   ShapeKind
	Fields []FieldData
}

// VariantData describes one enum variant and its payload.
type VariantData struct {
	Name   string
	Kind   ShapeKind
	Fields []FieldData
}

// EnumShape describes an enum's variants in declaration order.
type EnumShape struct {
	Name     string
	Variants []VariantData
}

// NewStructShape reads a struct_item node. Any other kind is an invariant
// violation and panics.
func NewStructShape(n *syntax.Node) *StructShape {
	mustKind(n, "struct_item")
	kind, fields := fieldsOf(n.ChildByField("body"))
	return &StructShape{Name: nameOf(n), Kind: kind, Fields: fields}
}

// NewEnumShape reads an enum_item node. Any other kind panics.
func NewEnumShape(n *syntax.Node) *EnumShape {
	mustKind(n, "enum_item")
	shape := &EnumShape{Name: nameOf(n)}
	body := n.ChildByField("body")
	if body == nil {
		return shape
	}
	for _, v := range body.NamedChildren() {
		if v.Kind != "enum_variant" {
			continue
		}
		kind, fields := fieldsOf(v.ChildByField("body"))
		shape.Variants = append(shape.Variants, VariantData{Name: nameOf(v), Kind: kind, Fields: fields})
	}
	return shape
}

func fieldsOf(body *syntax.Node) (ShapeKind, []FieldData) {
	if body == nil {
		return UnitShape, nil
	}
	var fields []FieldData
	switch body.Kind {
	case "field_declaration_list":
		for _, f := range body.NamedChildren() {
			if f.Kind != "field_declaration" {
				continue
			}
			fields = append(fields, FieldData{
				Name:       nameOf(f),
				Type:       typeText(f.ChildByField("type")),
				Visibility: visibilityOf(f),
			})
		}
		return RecordShape, fields
	case "ordered_field_declaration_list":
		vis := Private
		for _, c := range body.NamedChildren() {
			switch {
			case c.Kind == "visibility_modifier":
				vis = Public
			case c.Kind == "attribute_item":
			case c.Field == "type" || c.Field == "":
				fields = append(fields, FieldData{
					Name:       fmt.Sprint(len(fields)),
					Type:       typeText(c),
					Visibility: vis,
				})
				vis = Private
			}
		}
		return TupleShape, fields
	}
	return UnitShape, nil
}

func typeText(n *syntax.Node) string {
	if n == nil {
		return ""
	}
	return n.Text()
}

func mustKind(n *syntax.Node, kind string) {
	if n == nil {
		panic(fmt.Sprintf("hir: expected %s, got no node", kind))
	}
	if n.Kind != kind {
		panic(fmt.Sprintf("hir: expected %s, got %s", kind, n.Kind))
	}
}
