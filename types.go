package sapling

import (
	"github.com/jward/sapling/internal/hir"
	"github.com/jward/sapling/internal/nameres"
	"github.com/jward/sapling/internal/query"
)

// Public aliases for the internal types that appear in the Database and
// Snapshot API.

type (
	Revision    = query.Revision
	Event       = query.Event
	EventKind   = query.EventKind
	FileID      = hir.FileID
	UnitID      = hir.UnitID
	DefID       = hir.DefID
	DefKind     = hir.DefKind
	DefLoc      = hir.DefLoc
	LogicalFile = hir.LogicalFile
	ModuleID    = hir.ModuleID
	SourceRoot  = hir.SourceRoot
	MacroCall   = hir.MacroCall
	ItemMap     = nameres.ItemMap
	Resolution  = nameres.Resolution
)

const (
	EventExecuted  = query.EventExecuted
	EventValidated = query.EventValidated
	RootModule     = hir.RootModule
)

// ErrCancelled is returned, possibly wrapped, by queries on a snapshot that
// a write or its context has invalidated.
var ErrCancelled = query.ErrCancelled

// NewSourceRoot describes a unit: its root file and the relative path of
// every file in it.
func NewSourceRoot(root FileID, paths map[FileID]string) *SourceRoot {
	return hir.NewSourceRoot(root, paths)
}

// PhysicalFile returns the logical file for a physical file.
func PhysicalFile(f FileID) LogicalFile {
	return hir.PhysicalFile(f)
}
