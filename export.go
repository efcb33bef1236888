package sapling

import (
	"strconv"
	"time"

	"github.com/jward/sapling/internal/hir"
	"github.com/jward/sapling/internal/store"
)

// Export flattens unit's module tree, raw items and item map into rows for
// the snapshot store.
func (s *Snapshot) Export(unit hir.UnitID) (*store.Snapshot, error) {
	sr, err := s.SourceRoot(unit)
	if err != nil {
		return nil, err
	}
	tree, err := s.ModuleTree(unit)
	if err != nil {
		return nil, err
	}
	m, err := s.ItemMap(unit)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := &store.Snapshot{Metadata: make(map[string]string)}
	for _, f := range sr.Files() {
		text, _, err := s.Text(f)
		if err != nil {
			return nil, err
		}
		p, _ := sr.Path(f)
		out.Files = append(out.Files, &store.File{ID: int64(f), Path: p, Hash: store.ContentHash(text), LastIndexed: now})
	}

	home := make(map[hir.DefID]string)
	for _, id := range tree.IDs() {
		data := tree.Modules[id]
		row := &store.Module{
			ID:     int64(id),
			Path:   tree.Path(id),
			Name:   data.Name,
			FileID: int64(data.Source.File),
			Inline: data.Source.Item != hir.RootItem,
		}
		if id != hir.RootModule {
			parent := int64(data.Parent)
			row.ParentID = &parent
		}
		out.Modules = append(out.Modules, row)

		raw, err := s.RawModuleItems(unit, id)
		if err != nil {
			return nil, err
		}
		for _, it := range raw.Items {
			home[it.Def] = row.Path
			out.Items = append(out.Items, s.db.itemRow(id, it))
		}
		for _, imp := range raw.Imports {
			out.Imports = append(out.Imports, &store.Import{
				ModuleID:   int64(id),
				Path:       pathText(imp),
				Alias:      imp.Alias,
				Glob:       imp.Glob,
				Visibility: imp.Visibility.String(),
			})
		}
	}

	for _, id := range tree.IDs() {
		for _, name := range m.Names(id) {
			r, _ := m.Lookup(id, name)
			b := &store.Binding{ModuleID: int64(id), Name: name, Kind: r.Kind.String(), DefID: int64(r.Def)}
			if r.Def != hir.NoDef {
				b.DefKind = s.db.DefLoc(r.Def).Kind.String()
				b.TargetPath = home[r.Def]
			}
			out.Bindings = append(out.Bindings, b)
		}
	}
	for _, r := range m.Reexports {
		out.Reexports = append(out.Reexports, &store.Reexport{
			ModuleID:     int64(r.Module),
			FromModuleID: int64(r.From),
			Name:         r.Name,
			DefID:        int64(r.Def),
			Glob:         r.Glob,
		})
	}
	for _, d := range collectDiagnostics(tree, m) {
		out.Diagnostics = append(out.Diagnostics, &store.Diagnostic{
			ModulePath: d.Module,
			Name:       d.Name,
			Severity:   d.Severity.String(),
			Message:    d.Message,
		})
	}

	rootPath, _ := sr.Path(sr.Root)
	out.Metadata["unit"] = strconv.FormatUint(uint64(unit), 10)
	out.Metadata["root"] = rootPath
	out.Metadata["revision"] = strconv.FormatUint(uint64(s.Revision()), 10)
	out.Metadata["passes"] = strconv.Itoa(m.Passes)
	return out, nil
}

func (db *Database) itemRow(module hir.ModuleID, it hir.RawItem) *store.Item {
	loc := db.DefLoc(it.Def)
	row := &store.Item{
		ModuleID:   int64(module),
		Name:       it.Name,
		Kind:       it.Kind.String(),
		Visibility: it.Visibility.String(),
		DefID:      int64(it.Def),
		Slot:       int(loc.Source.Item),
	}
	if f, ok := loc.Source.File.File(); ok {
		id := int64(f)
		row.FileID = &id
	} else if call, ok := loc.Source.File.Macro(); ok {
		row.Macro = db.MacroCallLoc(call).Name + "!"
	}
	return row
}

func pathText(imp hir.Import) string {
	if imp.Glob {
		return imp.String()
	}
	return imp.Path.String()
}
