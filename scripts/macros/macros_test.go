package macros_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/sapling"
	"github.com/jward/sapling/internal/hir"
	"github.com/jward/sapling/internal/runtime"
)

// findModuleRoot walks up from the working directory to the directory
// holding go.mod.
func findModuleRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find module root")
		}
		dir = parent
	}
}

func newExpander(t *testing.T) *runtime.Expander {
	t.Helper()
	rt := runtime.NewRuntime(filepath.Join(findModuleRoot(t), "scripts"))
	exp, err := runtime.NewExpander(rt, 0)
	require.NoError(t, err)
	return exp
}

func TestBundledMacros_Listed(t *testing.T) {
	t.Parallel()
	rt := runtime.NewRuntime(filepath.Join(findModuleRoot(t), "scripts"))
	names, err := rt.Macros()
	require.NoError(t, err)
	assert.Equal(t, []string{"derive_ctor", "newtype"}, names)
}

func TestNewtype(t *testing.T) {
	t.Parallel()
	text, ok := newExpander(t).Expand(context.Background(), hir.MacroCall{Name: "newtype", Input: "UserId"})
	require.True(t, ok)
	assert.Equal(t, "pub struct UserId(pub u64);", text)
}

func TestDeriveCtor(t *testing.T) {
	t.Parallel()
	exp := newExpander(t)

	text, ok := exp.Expand(context.Background(), hir.MacroCall{
		Name:  "derive_ctor",
		Input: "pub struct Point { x: i32, y: i32 }",
	})
	require.True(t, ok)
	assert.Equal(t, "pub struct Point { x: i32, y: i32 }\npub fn make_Point() -> Point { todo!() }", text)

	_, ok = exp.Expand(context.Background(), hir.MacroCall{Name: "derive_ctor", Input: "fn not_a_struct() {}"})
	assert.False(t, ok)
}

func TestBundledMacros_ResolveThroughDatabase(t *testing.T) {
	t.Parallel()
	db := sapling.New(sapling.WithMacroExpander(newExpander(t)))
	db.SetText(1, `newtype!(OrderId);
derive_ctor!(pub struct Config { verbose: bool });
`)
	db.SetSourceRoot(1, sapling.NewSourceRoot(1, map[sapling.FileID]string{1: "src/lib.rs"}))

	snap := db.Snapshot(context.Background())
	m, err := snap.ItemMap(1)
	require.NoError(t, err)
	for _, name := range []string{"OrderId", "Config", "make_Config"} {
		_, ok := m.Lookup(hir.RootModule, name)
		assert.True(t, ok, name)
	}
}
