package store

import (
	"database/sql"
	"fmt"
)

// --- File operations ---

func (s *Store) Files() ([]*File, error) {
	rows, err := s.db.Query("SELECT id, path, hash, last_indexed FROM files ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f := &File{}
		var indexed sql.NullTime
		if err := rows.Scan(&f.ID, &f.Path, &f.Hash, &indexed); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		f.LastIndexed = indexed.Time
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *Store) FileByPath(path string) (*File, error) {
	f := &File{}
	var indexed sql.NullTime
	err := s.db.QueryRow(
		"SELECT id, path, hash, last_indexed FROM files WHERE path = ?", path,
	).Scan(&f.ID, &f.Path, &f.Hash, &indexed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	f.LastIndexed = indexed.Time
	return f, nil
}

// --- Module operations ---

const moduleColumns = "id, path, name, parent_id, file_id, inline"

func scanModule(scanner interface{ Scan(...any) error }) (*Module, error) {
	m := &Module{}
	var parent sql.NullInt64
	if err := scanner.Scan(&m.ID, &m.Path, &m.Name, &parent, &m.FileID, &m.Inline); err != nil {
		return nil, err
	}
	if parent.Valid {
		m.ParentID = &parent.Int64
	}
	return m, nil
}

func (s *Store) Modules() ([]*Module, error) {
	rows, err := s.db.Query("SELECT " + moduleColumns + " FROM modules ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("modules: %w", err)
	}
	defer rows.Close()
	var mods []*Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		mods = append(mods, m)
	}
	return mods, rows.Err()
}

// ModuleByPath looks a module up by its crate path ("crate::a::b").
func (s *Store) ModuleByPath(path string) (*Module, error) {
	m, err := scanModule(s.db.QueryRow("SELECT "+moduleColumns+" FROM modules WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("module by path: %w", err)
	}
	return m, nil
}

// --- Item operations ---

const itemColumns = "id, module_id, name, kind, visibility, def_id, file_id, slot, macro"

func (s *Store) queryItems(query string, args ...any) ([]*Item, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		it := &Item{}
		var file sql.NullInt64
		var macro sql.NullString
		if err := rows.Scan(&it.ID, &it.ModuleID, &it.Name, &it.Kind, &it.Visibility, &it.DefID, &file, &it.Slot, &macro); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if file.Valid {
			it.FileID = &file.Int64
		}
		it.Macro = macro.String
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) ItemsByModule(moduleID int64) ([]*Item, error) {
	return s.queryItems("SELECT "+itemColumns+" FROM items WHERE module_id = ? ORDER BY id", moduleID)
}

func (s *Store) ItemsByName(name string) ([]*Item, error) {
	return s.queryItems("SELECT "+itemColumns+" FROM items WHERE name = ? ORDER BY id", name)
}

// --- Import operations ---

const importColumns = "id, module_id, path, alias, glob, visibility"

func (s *Store) queryImports(query string, args ...any) ([]*Import, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query imports: %w", err)
	}
	defer rows.Close()
	var imps []*Import
	for rows.Next() {
		imp := &Import{}
		var alias sql.NullString
		if err := rows.Scan(&imp.ID, &imp.ModuleID, &imp.Path, &alias, &imp.Glob, &imp.Visibility); err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		imp.Alias = alias.String
		imps = append(imps, imp)
	}
	return imps, rows.Err()
}

func (s *Store) ImportsByModule(moduleID int64) ([]*Import, error) {
	return s.queryImports("SELECT "+importColumns+" FROM imports WHERE module_id = ? ORDER BY id", moduleID)
}

// --- Binding operations ---

const bindingColumns = "id, module_id, name, kind, def_id, def_kind, target_path"

func (s *Store) queryBindings(query string, args ...any) ([]*Binding, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bindings: %w", err)
	}
	defer rows.Close()
	var out []*Binding
	for rows.Next() {
		b := &Binding{}
		var defKind, target sql.NullString
		if err := rows.Scan(&b.ID, &b.ModuleID, &b.Name, &b.Kind, &b.DefID, &defKind, &target); err != nil {
			return nil, fmt.Errorf("scan binding: %w", err)
		}
		b.DefKind = defKind.String
		b.TargetPath = target.String
		out = append(out, b)
	}
	return out, rows.Err()
}

// BindingsByModules returns the bindings of the given modules, ordered by
// module then name.
func (s *Store) BindingsByModules(moduleIDs ...int64) ([]*Binding, error) {
	if len(moduleIDs) == 0 {
		return nil, nil
	}
	return s.queryBindings(
		"SELECT "+bindingColumns+" FROM bindings WHERE module_id IN ("+placeholderList(len(moduleIDs))+") ORDER BY module_id, name",
		int64sToArgs(moduleIDs)...,
	)
}

// BindingsByName returns every binding of name across modules.
func (s *Store) BindingsByName(name string) ([]*Binding, error) {
	return s.queryBindings("SELECT "+bindingColumns+" FROM bindings WHERE name = ? ORDER BY module_id", name)
}

// --- Re-exports, diagnostics, metadata ---

func (s *Store) Reexports() ([]*Reexport, error) {
	rows, err := s.db.Query("SELECT id, module_id, from_module_id, name, def_id, glob FROM reexports ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("reexports: %w", err)
	}
	defer rows.Close()
	var out []*Reexport
	for rows.Next() {
		r := &Reexport{}
		var name sql.NullString
		var def sql.NullInt64
		if err := rows.Scan(&r.ID, &r.ModuleID, &r.FromModuleID, &name, &def, &r.Glob); err != nil {
			return nil, fmt.Errorf("scan reexport: %w", err)
		}
		r.Name = name.String
		r.DefID = def.Int64
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Diagnostics() ([]*Diagnostic, error) {
	rows, err := s.db.Query("SELECT id, module_path, name, severity, message FROM diagnostics ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("diagnostics: %w", err)
	}
	defer rows.Close()
	var out []*Diagnostic
	for rows.Next() {
		d := &Diagnostic{}
		var name sql.NullString
		if err := rows.Scan(&d.ID, &d.ModulePath, &name, &d.Severity, &d.Message); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		d.Name = name.String
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetMetadata returns the value stored under key, or "" if absent.
func (s *Store) GetMetadata(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata: %w", err)
	}
	return v, nil
}

// SetMetadata stores value under key.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec("INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value", key, value)
	if err != nil {
		return fmt.Errorf("set metadata: %w", err)
	}
	return nil
}
