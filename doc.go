// Package sapling is an incremental semantic-analysis database for Rust
// crates built on tree-sitter. It derives syntax trees, item indexes,
// per-definition shapes, module trees and resolved item maps from source
// text, and re-derives only what an edit actually affects.
//
// # Pipeline
//
// Every derived fact is a memoized query over two kinds of input: the text
// of each file and the source root of each unit. Queries record what they
// read, so after an edit only the queries whose inputs really changed are
// re-executed, and a recomputed value equal to the previous one stops
// invalidation from spreading further ("backdating").
//
//  1. Syntax: each logical file (a physical file or one macro expansion) is
//     parsed into a [syntax.Tree].
//  2. Items: top-level declarations are indexed by slot and interned into
//     stable [DefID] values. Function scopes and struct and enum shapes are
//     derived per definition.
//  3. Modules: `mod` declarations are attached to files to form the
//     [hir.ModuleTree], and each module's raw items and imports are
//     collected, expanding item-position macros.
//  4. Names: imports are resolved to a fixed point into an [ItemMap].
//
// # Usage
//
//	db := sapling.New(sapling.WithLogger(logger))
//	db.SetText(1, "mod a; use a::Point;")
//	db.SetText(2, "pub struct Point;")
//	db.SetSourceRoot(1, sapling.NewSourceRoot(1, map[sapling.FileID]string{
//		1: "src/lib.rs",
//		2: "src/a.rs",
//	}))
//
//	snap := db.Snapshot(ctx)
//	m, err := snap.ItemMap(1)
//	if err != nil { ... }
//	r, ok := m.Lookup(sapling.RootModule, "Point")
//
// # Cancellation
//
// A [Snapshot] reads at the revision current when it was taken. Any later
// write cancels it: its queries return [ErrCancelled] and the caller should
// take a new snapshot. Cancelling the snapshot's context has the same effect.
//
// # Persistence
//
// [Snapshot.Export] flattens a unit into rows that internal/store writes to
// SQLite, so resolved bindings can be queried without keeping the database
// in memory.
package sapling
