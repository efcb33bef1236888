package syntax

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/minio/highwayhash"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

// Extension is the file extension of parseable source files.
const Extension = ".rs"

var fingerprintKey = []byte("sapling-syntax-fingerprint-key-1")

// IsSourceFile reports whether path names a parseable source file.
func IsSourceFile(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == Extension
}

// Parse parses text. tree-sitter recovers from syntax errors, so the only
// failure is ctx being done; the error then wraps ctx.Err().
func Parse(ctx context.Context, text string) (*Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(rust.GetLanguage())

	src := []byte(text)
	raw, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("syntax: parse: %w", ctxErr)
		}
		return Empty(), nil
	}
	defer raw.Close()

	root := convert(raw.RootNode(), "", text)
	return &Tree{
		Root:        root,
		Source:      text,
		Fingerprint: fingerprint(root),
		HasErrors:   raw.RootNode().HasError(),
	}, nil
}

func convert(n *sitter.Node, field, src string) *Node {
	start := n.StartPoint()
	out := &Node{
		Kind:  n.Type(),
		Field: field,
		Named: n.IsNamed(),
		Start: n.StartByte(),
		End:   n.EndByte(),
		Pos:   Point{Row: start.Row, Column: start.Column},
		src:   src,
	}
	count := int(n.ChildCount())
	if count == 0 {
		return out
	}
	out.Children = make([]*Node, 0, count)
	for i := 0; i < count; i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		out.Children = append(out.Children, convert(child, n.FieldNameForChild(i), src))
	}
	return out
}

// fingerprint hashes node kinds, field names and leaf text in pre-order.
// Byte positions are excluded, so whitespace-only edits keep the fingerprint.
func fingerprint(root *Node) uint64 {
	h, err := highwayhash.New64(fingerprintKey)
	if err != nil {
		panic(fmt.Sprintf("syntax: fingerprint key: %v", err))
	}
	root.Walk(func(n *Node) bool {
		h.Write([]byte(n.Kind))
		h.Write([]byte{0})
		h.Write([]byte(n.Field))
		h.Write([]byte{0})
		if len(n.Children) == 0 {
			h.Write([]byte(n.Text()))
		}
		h.Write([]byte{1})
		return true
	})
	return h.Sum64()
}
