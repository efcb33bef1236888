package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/sapling/internal/config"
)

var (
	flagDB      string
	flagFormat  string
	flagConfig  string
	flagVerbose bool
)

// cfg and logger are set by the root command before any subcommand runs.
var (
	cfg    *config.Config
	logger *slog.Logger
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "sapling",
	Short:         "Incremental name resolution for Rust crates",
	Long:          "Sapling parses a crate with tree-sitter, builds its module tree, resolves imports to a fixed point and writes the result to a SQLite database for queries.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		opts := []config.Option{config.WithFlags(cmd.Flags())}
		if flagConfig != "" {
			opts = append(opts, config.WithFile(flagConfig))
		}
		loaded, err := config.Load(opts...)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = newLogger(cfg.Verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: .sapling/index.db relative to repo root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: ./.sapling.yaml or ~/.config/sapling/.sapling.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log debug output to stderr")
	rootCmd.PersistentFlags().String("root-file", "", "crate root file relative to path (default: src/lib.rs or src/main.rs)")
	rootCmd.PersistentFlags().StringSlice("exclude", nil, "glob patterns of paths to skip (default: target, .git, .sapling)")
	rootCmd.PersistentFlags().String("scripts", "", "directory containing macros/*.risor expansion scripts")
	rootCmd.PersistentFlags().Int("capacity", 0, "maximum cached entries per query (0: unbounded)")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(initCmd)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// resolveTargetDir returns the absolute path of the directory to index.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	} else if cfg != nil && cfg.Root != "" {
		dir = cfg.Root
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the configured database path, anchored at repoRoot.
func resolveDBPath(repoRoot string) string {
	if cfg == nil {
		return filepath.Join(repoRoot, ".sapling", "index.db")
	}
	return cfg.DBPath(repoRoot)
}
