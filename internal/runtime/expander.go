package runtime

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/risor-io/risor/object"

	"github.com/jward/sapling/internal/hir"
)

// DefaultCacheSize bounds how many expansions an Expander remembers.
const DefaultCacheSize = 4096

type expansion struct {
	text string
	ok   bool
}

// Expander implements hir.MacroExpander with Risor scripts. The script for
// macro name sees two globals, name and input, and must evaluate to a
// string or a list of strings (joined with newlines).
type Expander struct {
	rt *Runtime

	mu      sync.Mutex
	scripts map[string]string
	missing map[string]bool

	cache *lru.Cache[hir.MacroCall, expansion]
}

var _ hir.MacroExpander = (*Expander)(nil)

// NewExpander creates an Expander over rt's scripts. size <= 0 selects
// DefaultCacheSize.
func NewExpander(rt *Runtime, size int) (*Expander, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[hir.MacroCall, expansion](size)
	if err != nil {
		return nil, fmt.Errorf("runtime: expansion cache: %w", err)
	}
	return &Expander{
		rt:      rt,
		scripts: make(map[string]string),
		missing: make(map[string]bool),
		cache:   cache,
	}, nil
}

// Expand runs the script for call.Name. A missing script, a script error or
// a result of the wrong type yields ok=false.
func (e *Expander) Expand(ctx context.Context, call hir.MacroCall) (string, bool) {
	if got, ok := e.cache.Get(call); ok {
		return got.text, got.ok
	}

	src, found, err := e.script(call.Name)
	if err != nil {
		e.rt.logger.Warn("loading macro script failed", "macro", call.Name, "error", err)
		return "", false
	}
	if !found {
		e.cache.Add(call, expansion{})
		return "", false
	}

	text, err := e.run(ctx, call, src)
	if err != nil {
		if ctx.Err() != nil {
			return "", false
		}
		e.rt.logger.Warn("macro expansion failed", "macro", call.Name, "error", err)
		e.cache.Add(call, expansion{})
		return "", false
	}
	e.rt.logger.Debug("expanded macro", "macro", call.Name, "bytes", len(text))
	e.cache.Add(call, expansion{text: text, ok: true})
	return text, true
}

func (e *Expander) run(ctx context.Context, call hir.MacroCall, src string) (string, error) {
	result, err := e.rt.eval(ctx, src, MacroScriptPath(call.Name), map[string]any{
		"name":  object.NewString(call.Name),
		"input": object.NewString(call.Input),
	})
	if err != nil {
		return "", err
	}
	switch v := result.(type) {
	case *object.String:
		return v.Value(), nil
	case *object.List:
		parts := make([]string, 0, len(v.Value()))
		for _, item := range v.Value() {
			s, ok := item.(*object.String)
			if !ok {
				return "", fmt.Errorf("runtime: macro %s: list element is %s, not a string", call.Name, item.Type())
			}
			parts = append(parts, s.Value())
		}
		return strings.Join(parts, "\n"), nil
	case nil:
		return "", fmt.Errorf("runtime: macro %s produced no value", call.Name)
	default:
		return "", fmt.Errorf("runtime: macro %s returned %s, not a string", call.Name, result.Type())
	}
}

// script returns the cached source of name's script, loading it on first use.
func (e *Expander) script(name string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if src, ok := e.scripts[name]; ok {
		return src, true, nil
	}
	if e.missing[name] {
		return "", false, nil
	}

	src, err := e.rt.LoadScript(MacroScriptPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, os.ErrNotExist) {
			e.missing[name] = true
			return "", false, nil
		}
		return "", false, err
	}
	e.scripts[name] = src
	return src, true, nil
}

// Reset forgets loaded scripts and cached expansions, so edited scripts are
// picked up. Callers must also install the Expander again on the database,
// since every earlier expansion may now be stale.
func (e *Expander) Reset() {
	e.mu.Lock()
	e.scripts = make(map[string]string)
	e.missing = make(map[string]bool)
	e.mu.Unlock()
	e.cache.Purge()
}
