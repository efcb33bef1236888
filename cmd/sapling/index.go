package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/sapling/internal/store"
)

var flagForce bool

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a crate",
	Long:  "Loads the crate's .rs files, builds its module tree, resolves every module's names and writes the result to the SQLite database.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "delete database and reindex from scratch")
}

// indexStats summarizes one index run.
type indexStats struct {
	Files       int
	Modules     int
	Bindings    int
	Diagnostics int
	Passes      int
	Load        time.Duration
	Resolve     time.Duration
}

func runIndex(cmd *cobra.Command, args []string) error {
	start := time.Now()

	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	repoRoot := findRepoRoot(targetDir)
	dbPath := resolveDBPath(repoRoot)

	if flagForce {
		if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing database for --force: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Cleared database: %s\n", dbPath)
	}

	st, err := openIndex(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := indexDir(cmd.Context(), targetDir, st)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Indexed %s in %s (load: %s, resolve: %s)\n",
		targetDir,
		time.Since(start).Round(time.Millisecond),
		stats.Load.Round(time.Millisecond),
		stats.Resolve.Round(time.Millisecond),
	)
	fmt.Fprintf(os.Stderr, "%d files, %d modules, %d bindings, %d diagnostics, %d passes\n",
		stats.Files, stats.Modules, stats.Bindings, stats.Diagnostics, stats.Passes)
	fmt.Fprintf(os.Stderr, "Database: %s\n", dbPath)
	return nil
}

// indexDir loads the crate at dir, resolves it and replaces the store's
// contents with the result.
func indexDir(ctx context.Context, dir string, st *store.Store) (*indexStats, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sess, err := newSession(dir, cfg, logger)
	if err != nil {
		return nil, err
	}

	loadStart := time.Now()
	if err := sess.load(); err != nil {
		return nil, fmt.Errorf("loading: %w", err)
	}
	loadDuration := time.Since(loadStart)

	resolveStart := time.Now()
	snap, err := sess.resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving: %w", err)
	}
	if err := st.ReplaceSnapshot(snap); err != nil {
		return nil, fmt.Errorf("writing index: %w", err)
	}

	passes, _ := strconv.Atoi(snap.Metadata["passes"])
	return &indexStats{
		Files:       len(snap.Files),
		Modules:     len(snap.Modules),
		Bindings:    len(snap.Bindings),
		Diagnostics: len(snap.Diagnostics),
		Passes:      passes,
		Load:        loadDuration,
		Resolve:     time.Since(resolveStart),
	}, nil
}

func mkdirFor(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}
