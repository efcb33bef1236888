// Package hir derives semantic facts from syntax: stable definition
// identities, item indexes, per-definition shapes, the module tree and each
// module's raw, unresolved item list.
package hir

import (
	"fmt"
	"sync"
)

// FileID is an opaque handle for one physical file. It stays the same across
// edits of the file's text.
type FileID uint32

// UnitID identifies one compilation unit (a crate).
type UnitID uint32

// MacroCallID is an interned handle for a MacroCallLoc. Zero means none.
type MacroCallID uint32

// DefID is an interned handle for a DefLoc. Zero means none.
type DefID uint32

// NoDef is the zero DefID, used for unresolved bindings.
const NoDef DefID = 0

// ItemSlot addresses one entry of an ItemIndex.
type ItemSlot int32

// RootItem addresses a file's root node rather than one of its items.
const RootItem ItemSlot = -1

// LogicalFile is either a physical file or the synthesized source of one
// macro expansion. Both are parsed and indexed the same way.
type LogicalFile struct {
	file  FileID
	macro MacroCallID
}

// PhysicalFile returns the logical file for a physical file.
func PhysicalFile(f FileID) LogicalFile {
	return LogicalFile{file: f}
}

// MacroFile returns the logical file holding the expansion of call.
func MacroFile(call MacroCallID) LogicalFile {
	return LogicalFile{macro: call}
}

// File returns the physical file, if lf is one.
func (lf LogicalFile) File() (FileID, bool) {
	return lf.file, lf.macro == 0
}

// Macro returns the macro call, if lf is an expansion.
func (lf LogicalFile) Macro() (MacroCallID, bool) {
	return lf.macro, lf.macro != 0
}

func (lf LogicalFile) String() string {
	if lf.macro != 0 {
		return fmt.Sprintf("macro#%d", lf.macro)
	}
	return fmt.Sprintf("file#%d", lf.file)
}

// SourceItemID addresses a declaration node: a slot in a logical file's
// ItemIndex, or the file's root when Item is RootItem.
type SourceItemID struct {
	File LogicalFile
	Item ItemSlot
}

func (id SourceItemID) String() string {
	if id.Item == RootItem {
		return id.File.String()
	}
	return fmt.Sprintf("%s[%d]", id.File, id.Item)
}

// DefKind is the closed set of definition kinds.
type DefKind uint8

const (
	DefFunction DefKind = iota + 1
	DefStruct
	DefEnum
	DefModule
)

func (k DefKind) String() string {
	switch k {
	case DefFunction:
		return "function"
	case DefStruct:
		return "struct"
	case DefEnum:
		return "enum"
	case DefModule:
		return "module"
	}
	return "unknown"
}

// DefLoc is the structural location of a definition. Its identity follows the
// slot position, not the text at that position.
type DefLoc struct {
	Kind   DefKind
	Source SourceItemID
}

// MacroCallLoc is the structural location of a macro invocation.
type MacroCallLoc struct {
	Site SourceItemID
	Name string
}

// Interner assigns dense, never-reused IDs (starting at 1) to locations.
type Interner[L comparable, ID ~uint32] struct {
	mu   sync.RWMutex
	ids  map[L]ID
	locs []L
}

// NewInterner creates an empty interner.
func NewInterner[L comparable, ID ~uint32]() *Interner[L, ID] {
	return &Interner[L, ID]{ids: make(map[L]ID)}
}

// Intern returns the ID for loc, allocating one on first sight.
func (in *Interner[L, ID]) Intern(loc L) ID {
	in.mu.RLock()
	id, ok := in.ids[loc]
	in.mu.RUnlock()
	if ok {
		return id
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.ids[loc]; ok {
		return id
	}
	in.locs = append(in.locs, loc)
	id = ID(len(in.locs))
	in.ids[loc] = id
	return id
}

// Lookup returns the location for id. It panics on an ID that was never
// handed out, which can only come from a programming error.
func (in *Interner[L, ID]) Lookup(id ID) L {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if id == 0 || int(id) > len(in.locs) {
		panic(fmt.Sprintf("hir: unknown interned id %d", id))
	}
	return in.locs[id-1]
}

// Len returns the number of interned locations.
func (in *Interner[L, ID]) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.locs)
}
