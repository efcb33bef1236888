package store

import (
	"database/sql"
	"fmt"
)

// ReplaceSnapshot deletes the previous export and writes snap within a
// single transaction. Rows are inserted in foreign-key order:
//  1. Files
//  2. Modules (parents before children, as exported)
//  3. Items, imports, bindings and re-exports
//  4. Diagnostics and metadata
func (s *Store) ReplaceSnapshot(snap *Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("replace snapshot: begin: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"diagnostics", "reexports", "bindings", "imports", "items", "modules", "files", "metadata"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("replace snapshot: clear %s: %w", table, err)
		}
	}

	for _, f := range snap.Files {
		if _, err := tx.Exec(
			"INSERT INTO files (id, path, hash, last_indexed) VALUES (?, ?, ?, ?)",
			f.ID, f.Path, f.Hash, f.LastIndexed,
		); err != nil {
			return fmt.Errorf("replace snapshot: file %q: %w", f.Path, err)
		}
	}
	for _, m := range snap.Modules {
		if _, err := tx.Exec(
			"INSERT INTO modules (id, path, name, parent_id, file_id, inline) VALUES (?, ?, ?, ?, ?, ?)",
			m.ID, m.Path, m.Name, m.ParentID, m.FileID, m.Inline,
		); err != nil {
			return fmt.Errorf("replace snapshot: module %q: %w", m.Path, err)
		}
	}
	for _, it := range snap.Items {
		id, err := insertReturningID(tx,
			"INSERT INTO items (module_id, name, kind, visibility, def_id, file_id, slot, macro) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			it.ModuleID, it.Name, it.Kind, it.Visibility, it.DefID, it.FileID, it.Slot, nullString(it.Macro),
		)
		if err != nil {
			return fmt.Errorf("replace snapshot: item %q: %w", it.Name, err)
		}
		it.ID = id
	}
	for _, imp := range snap.Imports {
		id, err := insertReturningID(tx,
			"INSERT INTO imports (module_id, path, alias, glob, visibility) VALUES (?, ?, ?, ?, ?)",
			imp.ModuleID, imp.Path, nullString(imp.Alias), imp.Glob, imp.Visibility,
		)
		if err != nil {
			return fmt.Errorf("replace snapshot: import %q: %w", imp.Path, err)
		}
		imp.ID = id
	}
	for _, b := range snap.Bindings {
		id, err := insertReturningID(tx,
			"INSERT INTO bindings (module_id, name, kind, def_id, def_kind, target_path) VALUES (?, ?, ?, ?, ?, ?)",
			b.ModuleID, b.Name, b.Kind, b.DefID, nullString(b.DefKind), nullString(b.TargetPath),
		)
		if err != nil {
			return fmt.Errorf("replace snapshot: binding %q: %w", b.Name, err)
		}
		b.ID = id
	}
	for _, r := range snap.Reexports {
		id, err := insertReturningID(tx,
			"INSERT INTO reexports (module_id, from_module_id, name, def_id, glob) VALUES (?, ?, ?, ?, ?)",
			r.ModuleID, r.FromModuleID, nullString(r.Name), r.DefID, r.Glob,
		)
		if err != nil {
			return fmt.Errorf("replace snapshot: reexport: %w", err)
		}
		r.ID = id
	}
	for _, d := range snap.Diagnostics {
		id, err := insertReturningID(tx,
			"INSERT INTO diagnostics (module_path, name, severity, message) VALUES (?, ?, ?, ?)",
			d.ModulePath, nullString(d.Name), d.Severity, d.Message,
		)
		if err != nil {
			return fmt.Errorf("replace snapshot: diagnostic: %w", err)
		}
		d.ID = id
	}
	for k, v := range snap.Metadata {
		if _, err := tx.Exec("INSERT INTO metadata (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("replace snapshot: metadata %q: %w", k, err)
		}
	}
	return tx.Commit()
}

func insertReturningID(tx *sql.Tx, query string, args ...any) (int64, error) {
	res, err := tx.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LoadSnapshot reads the whole export back.
func (s *Store) LoadSnapshot() (*Snapshot, error) {
	snap := &Snapshot{Metadata: make(map[string]string)}
	var err error
	if snap.Files, err = s.Files(); err != nil {
		return nil, err
	}
	if snap.Modules, err = s.Modules(); err != nil {
		return nil, err
	}
	if snap.Items, err = s.queryItems("SELECT " + itemColumns + " FROM items ORDER BY id"); err != nil {
		return nil, err
	}
	if snap.Imports, err = s.queryImports("SELECT " + importColumns + " FROM imports ORDER BY id"); err != nil {
		return nil, err
	}
	if snap.Bindings, err = s.queryBindings("SELECT " + bindingColumns + " FROM bindings ORDER BY id"); err != nil {
		return nil, err
	}
	if snap.Reexports, err = s.Reexports(); err != nil {
		return nil, err
	}
	if snap.Diagnostics, err = s.Diagnostics(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query("SELECT key, value FROM metadata")
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		snap.Metadata[k] = v
	}
	return snap, rows.Err()
}
