package sapling

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	macros "github.com/jward/sapling/internal/runtime"
	"github.com/jward/sapling/internal/store"
	"github.com/jward/sapling/internal/vfs"
)

// Golden test format.
type goldenFile struct {
	Modules     []string         `json:"modules"`
	Bindings    []goldenBinding  `json:"bindings,omitempty"`
	Absent      []goldenName     `json:"absent,omitempty"`
	Diagnostics []goldenDiagnose `json:"diagnostics,omitempty"`
}

type goldenBinding struct {
	Module  string `json:"module"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	DefKind string `json:"def_kind,omitempty"`
	Target  string `json:"target,omitempty"`
}

type goldenName struct {
	Module string `json:"module"`
	Name   string `json:"name"`
}

type goldenDiagnose struct {
	Module   string `json:"module"`
	Name     string `json:"name"`
	Severity string `json:"severity"`
}

// TestGolden walks testdata/crates/ and checks each crate's resolved item
// map against its golden.json. A crate with a scripts/ directory gets a
// macro expander backed by it.
func TestGolden(t *testing.T) {
	root := filepath.Join("testdata", "crates")
	levels, err := os.ReadDir(root)
	if err != nil {
		t.Skip("no testdata directory found")
	}

	for _, level := range levels {
		if !level.IsDir() {
			continue
		}
		crateDir := filepath.Join(root, level.Name())
		goldenPath := filepath.Join(crateDir, "golden.json")
		if _, err := os.Stat(goldenPath); err != nil {
			continue
		}
		t.Run(level.Name(), func(t *testing.T) {
			t.Parallel()
			runGoldenTest(t, crateDir, goldenPath)
		})
	}
}

func runGoldenTest(t *testing.T, crateDir, goldenPath string) {
	t.Helper()

	goldenData, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	var golden goldenFile
	require.NoError(t, json.Unmarshal(goldenData, &golden))

	var opts []Option
	scriptsDir := filepath.Join(crateDir, "scripts")
	if _, err := os.Stat(scriptsDir); err == nil {
		exp, err := macros.NewExpander(macros.NewRuntime(scriptsDir), 0)
		require.NoError(t, err)
		opts = append(opts, WithMacroExpander(exp))
	}

	loader, err := vfs.NewLoader(crateDir)
	require.NoError(t, err)
	crate, err := loader.Load()
	require.NoError(t, err)

	db := New(opts...)
	for _, f := range crate.Files {
		db.SetText(f.ID, f.Text)
	}
	db.SetSourceRoot(unit, crate.SourceRoot())

	snap, err := db.Snapshot(context.Background()).Export(unit)
	require.NoError(t, err)

	t.Run("modules", func(t *testing.T) {
		var paths []string
		for _, m := range snap.Modules {
			paths = append(paths, m.Path)
		}
		assert.Equal(t, golden.Modules, paths)
	})

	modPath := make(map[int64]string, len(snap.Modules))
	for _, m := range snap.Modules {
		modPath[m.ID] = m.Path
	}
	actual := make(map[goldenName]*store.Binding)
	for _, b := range snap.Bindings {
		actual[goldenName{Module: modPath[b.ModuleID], Name: b.Name}] = b
	}

	if len(golden.Bindings) > 0 {
		t.Run("bindings", func(t *testing.T) {
			for _, exp := range golden.Bindings {
				b, ok := actual[goldenName{Module: exp.Module, Name: exp.Name}]
				if !assert.True(t, ok, "missing binding: %+v", exp) {
					continue
				}
				got := goldenBinding{Module: exp.Module, Name: b.Name, Kind: b.Kind, DefKind: b.DefKind, Target: b.TargetPath}
				assert.Equal(t, exp, got)
			}
		})
	}

	if len(golden.Absent) > 0 {
		t.Run("absent", func(t *testing.T) {
			for _, exp := range golden.Absent {
				_, ok := actual[exp]
				assert.False(t, ok, "unexpected binding: %+v", exp)
			}
		})
	}

	t.Run("diagnostics", func(t *testing.T) {
		var got []goldenDiagnose
		for _, d := range snap.Diagnostics {
			got = append(got, goldenDiagnose{Module: d.ModulePath, Name: d.Name, Severity: d.Severity})
		}
		assert.ElementsMatch(t, golden.Diagnostics, got)
	})
}
