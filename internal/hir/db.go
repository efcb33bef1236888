package hir

import (
	"context"

	"github.com/jward/sapling/internal/syntax"
)

// DB is the query surface the derivations in this package need. It is
// implemented by the memoizing database; every method may return a
// cancellation error which callers must propagate unchanged.
type DB interface {
	Tree(lf LogicalFile) (*syntax.Tree, error)
	Items(lf LogicalFile) (*ItemIndex, error)
	FileItem(id SourceItemID) (*syntax.Node, error)
	Submodules(src ModuleSource) ([]Submodule, error)
	ModuleTree(unit UnitID) (*ModuleTree, error)
	SourceRoot(unit UnitID) (*SourceRoot, error)
	InternDef(loc DefLoc) DefID
	InternMacroCall(loc MacroCallLoc) MacroCallID
	Check() error
}

// MacroCall is what an expander receives: the macro's name and the text of
// its token tree without the outer delimiters.
type MacroCall struct {
	Name  string
	Input string
}

// MacroExpander produces source text for a macro invocation. It must be a
// pure function of its input; ok is false when no expansion is available.
type MacroExpander interface {
	Expand(ctx context.Context, call MacroCall) (text string, ok bool)
}

// ExpanderFunc adapts a function to MacroExpander.
type ExpanderFunc func(ctx context.Context, call MacroCall) (string, bool)

// Expand calls f.
func (f ExpanderFunc) Expand(ctx context.Context, call MacroCall) (string, bool) {
	return f(ctx, call)
}

// NewMacroCall extracts the call description from a macro_invocation node.
func NewMacroCall(name string, node *syntax.Node) MacroCall {
	call := MacroCall{Name: name}
	if node == nil {
		return call
	}
	tt := node.ChildOfKind("token_tree")
	if tt == nil {
		return call
	}
	text := tt.Text()
	if len(text) >= 2 {
		text = text[1 : len(text)-1]
	}
	call.Input = text
	return call
}

// MacroName returns the invoked macro's name as written.
func MacroName(node *syntax.Node) string {
	if m := node.ChildByField("macro"); m != nil {
		return m.Text()
	}
	return ""
}
