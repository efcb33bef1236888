package store

import "time"

type File struct {
	ID          int64
	Path        string
	Hash        string
	LastIndexed time.Time
}

type Module struct {
	ID       int64
	Path     string
	Name     string
	ParentID *int64
	FileID   int64
	Inline   bool
}

type Item struct {
	ID         int64
	ModuleID   int64
	Name       string
	Kind       string
	Visibility string
	DefID      int64
	FileID     *int64
	Slot       int
	Macro      string // set when the item came from a macro expansion
}

type Import struct {
	ID         int64
	ModuleID   int64
	Path       string
	Alias      string
	Glob       bool
	Visibility string
}

type Binding struct {
	ID         int64
	ModuleID   int64
	Name       string
	Kind       string
	DefID      int64
	DefKind    string
	TargetPath string // module path of the bound definition's home, if known
}

type Reexport struct {
	ID           int64
	ModuleID     int64
	FromModuleID int64
	Name         string
	DefID        int64
	Glob         bool
}

type Diagnostic struct {
	ID         int64
	ModulePath string
	Name       string
	Severity   string
	Message    string
}

// Snapshot is one complete export of a unit's analysis. Module, file and
// definition IDs are the analysis IDs, so rows reference each other
// directly.
type Snapshot struct {
	Files       []*File
	Modules     []*Module
	Items       []*Item
	Imports     []*Import
	Bindings    []*Binding
	Reexports   []*Reexport
	Diagnostics []*Diagnostic
	Metadata    map[string]string
}
