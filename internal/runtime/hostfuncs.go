package runtime

import (
	"context"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

// scriptEnv is the state behind the host functions of one evaluation.
// go-tree-sitter nodes do not expose their tree, so every tree parse_src
// produces is kept under its root node pointer and a node's source is found
// by walking Parent() up to that root.
type scriptEnv struct {
	mu    sync.Mutex
	trees map[uintptr]parsed
}

type parsed struct {
	tree *sitter.Tree
	src  []byte
}

func newScriptEnv() *scriptEnv {
	return &scriptEnv{trees: make(map[uintptr]parsed)}
}

func rootKey(n *sitter.Node) uintptr {
	for n.Parent() != nil {
		n = n.Parent()
	}
	return uintptr(unsafe.Pointer(n))
}

func (e *scriptEnv) track(tree *sitter.Tree, src []byte) {
	e.mu.Lock()
	e.trees[rootKey(tree.RootNode())] = parsed{tree: tree, src: src}
	e.mu.Unlock()
}

func (e *scriptEnv) source(n *sitter.Node) ([]byte, bool) {
	e.mu.Lock()
	p, ok := e.trees[rootKey(n)]
	e.mu.Unlock()
	return p.src, ok
}

// close releases the trees. Nodes handed to the script are invalid after.
func (e *scriptEnv) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, p := range e.trees {
		p.tree.Close()
		delete(e.trees, k)
	}
}

// builtins returns the host functions bound to e.
//
//	parse_src(source)      → Tree
//	node_text(node)        → string
//	node_child(node, name) → Node or nil
//	query(pattern, node)   → [{capture: Node}]
func (e *scriptEnv) builtins() map[string]any {
	return map[string]any{
		"parse_src":  object.NewBuiltin("parse_src", e.parseSrc),
		"node_text":  object.NewBuiltin("node_text", e.nodeText),
		"node_child": object.NewBuiltin("node_child", nodeChild),
		"query":      object.NewBuiltin("query", e.query),
	}
}

func (e *scriptEnv) parseSrc(ctx context.Context, args ...object.Object) object.Object {
	if len(args) != 1 {
		return object.NewArgsError("parse_src", 1, len(args))
	}
	text, errObj := stringArg("parse_src", "source", args[0])
	if errObj != nil {
		return errObj
	}

	src := []byte(text)
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(rust.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return object.Errorf("parse_src: %v", err)
	}
	e.track(tree, src)
	return proxy("parse_src", tree)
}

// nodeText exists because proxies cannot turn a Risor string into the
// []byte that Node.Content wants.
func (e *scriptEnv) nodeText(ctx context.Context, args ...object.Object) object.Object {
	if len(args) != 1 {
		return object.NewArgsError("node_text", 1, len(args))
	}
	n, errObj := nodeArg("node_text", args[0])
	if errObj != nil {
		return errObj
	}
	src, ok := e.source(n)
	if !ok {
		return object.Errorf("node_text: node does not belong to a tree from parse_src")
	}
	return object.NewString(n.Content(src))
}

// nodeChild wraps ChildByFieldName so a missing field is Risor nil rather
// than a proxied nil pointer.
func nodeChild(ctx context.Context, args ...object.Object) object.Object {
	if len(args) != 2 {
		return object.NewArgsError("node_child", 2, len(args))
	}
	n, errObj := nodeArg("node_child", args[0])
	if errObj != nil {
		return errObj
	}
	field, errObj := stringArg("node_child", "field", args[1])
	if errObj != nil {
		return errObj
	}
	child := n.ChildByFieldName(field)
	if child == nil {
		return object.Nil
	}
	return proxy("node_child", child)
}

func (e *scriptEnv) query(ctx context.Context, args ...object.Object) object.Object {
	if len(args) != 2 {
		return object.NewArgsError("query", 2, len(args))
	}
	pattern, errObj := stringArg("query", "pattern", args[0])
	if errObj != nil {
		return errObj
	}
	n, errObj := nodeArg("query", args[1])
	if errObj != nil {
		return errObj
	}
	src, ok := e.source(n)
	if !ok {
		return object.Errorf("query: node does not belong to a tree from parse_src")
	}

	q, err := sitter.NewQuery([]byte(pattern), rust.GetLanguage())
	if err != nil {
		return object.Errorf("query: invalid pattern: %v", err)
	}
	defer q.Close()
	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(q, n)

	matches := []object.Object{}
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		match = cursor.FilterPredicates(match, src)
		captures := make(map[string]object.Object, len(match.Captures))
		for _, c := range match.Captures {
			name := q.CaptureNameForId(c.Index)
			p := proxy("query", c.Node)
			if errObj, isErr := p.(*object.Error); isErr {
				return errObj
			}
			captures[name] = p
		}
		matches = append(matches, object.NewMap(captures))
	}
	return object.NewList(matches)
}

func nodeArg(fn string, arg object.Object) (*sitter.Node, object.Object) {
	p, ok := arg.(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: expected a node, got %s", fn, arg.Type())
	}
	n, ok := p.Interface().(*sitter.Node)
	if !ok {
		return nil, object.Errorf("%s: expected a node, got %T", fn, p.Interface())
	}
	return n, nil
}

func stringArg(fn, what string, arg object.Object) (string, object.Object) {
	s, ok := arg.(*object.String)
	if !ok {
		return "", object.Errorf("%s: %s must be a string, got %s", fn, what, arg.Type())
	}
	return s.Value(), nil
}

func proxy(fn string, v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		return object.Errorf("%s: proxy error: %v", fn, err)
	}
	return p
}

// scriptLog is the log global. Messages are tagged with the script that
// logged them.
type scriptLog struct {
	logger *slog.Logger
	script string
}

func (l *scriptLog) Debug(msg string) { l.logger.Debug(msg, "script", l.script) }
func (l *scriptLog) Info(msg string)  { l.logger.Info(msg, "script", l.script) }
func (l *scriptLog) Warn(msg string)  { l.logger.Warn(msg, "script", l.script) }
func (l *scriptLog) Error(msg string) { l.logger.Error(msg, "script", l.script) }
