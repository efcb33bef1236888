package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/sapling/internal/store"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the index",
	Long:  "Read modules, items, resolved bindings and diagnostics from an indexed crate. Modules are named by crate path, e.g. crate::net::tcp.",
}

func init() {
	queryCmd.AddCommand(modulesCmd)
	queryCmd.AddCommand(itemsCmd)
	queryCmd.AddCommand(mapCmd)
	queryCmd.AddCommand(importsCmd)
	queryCmd.AddCommand(reexportsCmd)
	queryCmd.AddCommand(diagnosticsCmd)
	queryCmd.AddCommand(lookupCmd)
}

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List every module",
	Args:  cobra.NoArgs,
	RunE: runQuery("modules", func(ix *index, _ []string) (any, error) {
		return ix.modules()
	}),
}

var itemsCmd = &cobra.Command{
	Use:   "items [module]",
	Short: "List directly declared items, optionally of one module",
	Args:  cobra.MaximumNArgs(1),
	RunE: runQuery("items", func(ix *index, args []string) (any, error) {
		return ix.items(args)
	}),
}

var mapCmd = &cobra.Command{
	Use:   "map [module]",
	Short: "Show resolved names, optionally of one module",
	Args:  cobra.MaximumNArgs(1),
	RunE: runQuery("map", func(ix *index, args []string) (any, error) {
		return ix.bindings(args)
	}),
}

var importsCmd = &cobra.Command{
	Use:   "imports [module]",
	Short: "List use declarations, optionally of one module",
	Args:  cobra.MaximumNArgs(1),
	RunE: runQuery("imports", func(ix *index, args []string) (any, error) {
		return ix.imports(args)
	}),
}

var reexportsCmd = &cobra.Command{
	Use:   "reexports",
	Short: "List names re-exported by pub use",
	Args:  cobra.NoArgs,
	RunE: runQuery("reexports", func(ix *index, _ []string) (any, error) {
		return ix.reexports()
	}),
}

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics",
	Short: "List unresolved imports, conflicts and missing module files",
	Args:  cobra.NoArgs,
	RunE: runQuery("diagnostics", func(ix *index, _ []string) (any, error) {
		return ix.diagnostics()
	}),
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <name>",
	Short: "Show every module where name is bound",
	Args:  cobra.ExactArgs(1),
	RunE: runQuery("lookup", func(ix *index, args []string) (any, error) {
		return ix.lookup(args[0])
	}),
}

// runQuery opens the index, runs fn and prints its result.
func runQuery(command string, fn func(*index, []string) (any, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return outputError(command, err)
		}
		defer st.Close()

		ix, err := newIndex(st)
		if err != nil {
			return outputError(command, err)
		}
		results, err := fn(ix, args)
		if err != nil {
			return outputError(command, err)
		}
		return writeResult(os.Stdout, CLIResult{Command: command, Results: results})
	}
}

// openStore opens the Store from the --db flag path (or default).
func openStore() (*store.Store, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	dbPath := resolveDBPath(findRepoRoot(cwd))

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'sapling index' first)", dbPath)
	}
	return store.NewStore(dbPath)
}

// writeResult marshals a CLIResult to w in the selected format.
func writeResult(w io.Writer, result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(w, result)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// index wraps a Store with the module and file names needed to render rows.
type index struct {
	st      *store.Store
	mods    []*store.Module
	modPath map[int64]string
	file    map[int64]string
}

func newIndex(st *store.Store) (*index, error) {
	mods, err := st.Modules()
	if err != nil {
		return nil, err
	}
	files, err := st.Files()
	if err != nil {
		return nil, err
	}
	ix := &index{
		st:      st,
		mods:    mods,
		modPath: make(map[int64]string, len(mods)),
		file:    make(map[int64]string, len(files)),
	}
	for _, m := range mods {
		ix.modPath[m.ID] = m.Path
	}
	for _, f := range files {
		ix.file[f.ID] = f.Path
	}
	return ix, nil
}

// selected returns the IDs of the module named in args, or of every module.
func (ix *index) selected(args []string) ([]int64, error) {
	if len(args) == 0 {
		ids := make([]int64, len(ix.mods))
		for i, m := range ix.mods {
			ids[i] = m.ID
		}
		return ids, nil
	}
	m, err := ix.st.ModuleByPath(args[0])
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("no module %s", args[0])
	}
	return []int64{m.ID}, nil
}

func (ix *index) modules() ([]CLIModule, error) {
	out := make([]CLIModule, 0, len(ix.mods))
	for _, m := range ix.mods {
		out = append(out, CLIModule{ID: m.ID, Path: m.Path, Name: m.Name, File: ix.file[m.FileID], Inline: m.Inline})
	}
	return out, nil
}

func (ix *index) items(args []string) ([]CLIItem, error) {
	ids, err := ix.selected(args)
	if err != nil {
		return nil, err
	}
	out := []CLIItem{}
	for _, id := range ids {
		items, err := ix.st.ItemsByModule(id)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			row := CLIItem{
				Module:     ix.modPath[it.ModuleID],
				Name:       it.Name,
				Kind:       it.Kind,
				Visibility: it.Visibility,
				DefID:      it.DefID,
				Macro:      it.Macro,
			}
			if it.FileID != nil {
				row.File = ix.file[*it.FileID]
			}
			out = append(out, row)
		}
	}
	return out, nil
}

func (ix *index) bindingRows(bs []*store.Binding) []CLIBinding {
	out := make([]CLIBinding, 0, len(bs))
	for _, b := range bs {
		out = append(out, CLIBinding{
			Module:  ix.modPath[b.ModuleID],
			Name:    b.Name,
			Kind:    b.Kind,
			DefID:   b.DefID,
			DefKind: b.DefKind,
			Target:  b.TargetPath,
		})
	}
	return out
}

func (ix *index) bindings(args []string) ([]CLIBinding, error) {
	ids, err := ix.selected(args)
	if err != nil {
		return nil, err
	}
	bs, err := ix.st.BindingsByModules(ids...)
	if err != nil {
		return nil, err
	}
	return ix.bindingRows(bs), nil
}

func (ix *index) lookup(name string) ([]CLIBinding, error) {
	bs, err := ix.st.BindingsByName(name)
	if err != nil {
		return nil, err
	}
	return ix.bindingRows(bs), nil
}

func (ix *index) imports(args []string) ([]CLIImport, error) {
	ids, err := ix.selected(args)
	if err != nil {
		return nil, err
	}
	out := []CLIImport{}
	for _, id := range ids {
		imps, err := ix.st.ImportsByModule(id)
		if err != nil {
			return nil, err
		}
		for _, imp := range imps {
			out = append(out, CLIImport{
				Module:     ix.modPath[imp.ModuleID],
				Path:       imp.Path,
				Alias:      imp.Alias,
				Glob:       imp.Glob,
				Visibility: imp.Visibility,
			})
		}
	}
	return out, nil
}

func (ix *index) reexports() ([]CLIReexport, error) {
	rs, err := ix.st.Reexports()
	if err != nil {
		return nil, err
	}
	out := make([]CLIReexport, 0, len(rs))
	for _, r := range rs {
		out = append(out, CLIReexport{
			Module: ix.modPath[r.ModuleID],
			From:   ix.modPath[r.FromModuleID],
			Name:   r.Name,
			DefID:  r.DefID,
			Glob:   r.Glob,
		})
	}
	return out, nil
}

func (ix *index) diagnostics() ([]CLIDiagnostic, error) {
	ds, err := ix.st.Diagnostics()
	if err != nil {
		return nil, err
	}
	out := make([]CLIDiagnostic, 0, len(ds))
	for _, d := range ds {
		out = append(out, CLIDiagnostic{Module: d.ModulePath, Name: d.Name, Severity: d.Severity, Message: d.Message})
	}
	return out, nil
}
