// Package vfs loads a crate's source files from a filesystem and watches
// them for changes. It supplies the text and source-root inputs of the
// analysis database; it never parses anything itself.
package vfs

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"github.com/spf13/afero"

	"github.com/jward/sapling/internal/hir"
	"github.com/jward/sapling/internal/syntax"
)

var (
	// ErrNoRoot is returned when no crate root file can be found.
	ErrNoRoot = errors.New("vfs: no crate root file")

	// ErrInvalidPattern indicates an exclude pattern could not be compiled.
	ErrInvalidPattern = errors.New("vfs: invalid exclude pattern")
)

// RootCandidates are tried in order when no root file is configured.
var RootCandidates = []string{"src/lib.rs", "src/main.rs", "lib.rs", "main.rs"}

// DefaultExcludes skips build output and VCS metadata.
var DefaultExcludes = []string{"target", ".git", ".sapling"}

// File is one loaded source file. Path is relative to the loader root and
// slash-separated.
type File struct {
	ID   hir.FileID
	Path string
	Text string
}

// Crate is the result of one full load.
type Crate struct {
	Root  hir.FileID
	Files []File
}

// SourceRoot describes the crate for the analysis database.
func (c *Crate) SourceRoot() *hir.SourceRoot {
	paths := make(map[hir.FileID]string, len(c.Files))
	for _, f := range c.Files {
		paths[f.ID] = f.Path
	}
	return hir.NewSourceRoot(c.Root, paths)
}

// Loader reads source files under a root directory. FileIDs are assigned
// on first sight of a path and never change for the loader's lifetime.
type Loader struct {
	fs       afero.Fs
	root     string
	rootFile string
	excludes []glob.Glob
	logger   *slog.Logger

	mu   sync.Mutex
	ids  map[string]hir.FileID
	next hir.FileID
}

// Option configures a Loader.
type Option func(*loaderConfig)

type loaderConfig struct {
	fs       afero.Fs
	rootFile string
	excludes []string
	logger   *slog.Logger
}

// WithFs reads from fs instead of the operating system.
func WithFs(fs afero.Fs) Option {
	return func(c *loaderConfig) {
		c.fs = fs
	}
}

// WithRootFile fixes the crate root file, relative to the loader root.
func WithRootFile(path string) Option {
	return func(c *loaderConfig) {
		c.rootFile = path
	}
}

// WithExcludes replaces DefaultExcludes. Patterns are gobwas globs matched
// against the relative path, each of its suffixes and the base name.
func WithExcludes(patterns ...string) Option {
	return func(c *loaderConfig) {
		c.excludes = patterns
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *loaderConfig) {
		c.logger = l
	}
}

// NewLoader creates a Loader for the directory root.
func NewLoader(root string, opts ...Option) (*Loader, error) {
	cfg := &loaderConfig{excludes: DefaultExcludes}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.fs == nil {
		cfg.fs = afero.NewOsFs()
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	excludes, err := compileExcludes(cfg.excludes)
	if err != nil {
		return nil, err
	}
	return &Loader{
		fs:       cfg.fs,
		root:     filepath.Clean(root),
		rootFile: filepath.ToSlash(cfg.rootFile),
		excludes: excludes,
		logger:   cfg.logger,
		ids:      make(map[string]hir.FileID),
	}, nil
}

func compileExcludes(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.Join(ErrInvalidPattern, fmt.Errorf("%q: %w", p, err))
		}
		out = append(out, g)
	}
	return out, nil
}

// Root returns the directory the loader reads.
func (l *Loader) Root() string {
	return l.root
}

// Load walks the root and reads every source file that is not excluded.
func (l *Loader) Load() (*Crate, error) {
	var paths []string
	err := afero.Walk(l.fs, l.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, ok := l.rel(p)
		if !ok {
			return nil
		}
		if rel != "." && l.Excluded(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.IsDir() && syntax.IsSourceFile(rel) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("vfs: walk %s: %w", l.root, err)
	}
	sort.Strings(paths)

	crate := &Crate{}
	for _, rel := range paths {
		text, err := l.Read(rel)
		if err != nil {
			return nil, err
		}
		crate.Files = append(crate.Files, File{ID: l.ID(rel), Path: rel, Text: text})
	}

	rootPath, err := l.findRoot(paths)
	if err != nil {
		return nil, err
	}
	crate.Root = l.ID(rootPath)
	l.logger.Debug("loaded crate", "root", l.root, "files", len(crate.Files), "root_file", rootPath)
	return crate, nil
}

func (l *Loader) findRoot(paths []string) (string, error) {
	have := make(map[string]bool, len(paths))
	for _, p := range paths {
		have[p] = true
	}
	if l.rootFile != "" {
		if !have[l.rootFile] {
			return "", fmt.Errorf("%w: %s", ErrNoRoot, l.rootFile)
		}
		return l.rootFile, nil
	}
	for _, c := range RootCandidates {
		if have[c] {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w under %s", ErrNoRoot, l.root)
}

// Read returns the text of the file at the relative path rel.
func (l *Loader) Read(rel string) (string, error) {
	data, err := afero.ReadFile(l.fs, filepath.Join(l.root, filepath.FromSlash(rel)))
	if err != nil {
		return "", fmt.Errorf("vfs: read %s: %w", rel, err)
	}
	return string(data), nil
}

// ID returns the FileID of rel, assigning the next one on first use.
func (l *Loader) ID(rel string) hir.FileID {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id, ok := l.ids[rel]; ok {
		return id
	}
	l.next++
	l.ids[rel] = l.next
	return l.next
}

// Lookup returns the FileID of rel if one was assigned.
func (l *Loader) Lookup(rel string) (hir.FileID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.ids[rel]
	return id, ok
}

// Rel converts a path under the root into the relative, slash-separated
// form used for FileIDs. ok is false for paths outside the root, excluded
// paths and non-source files.
func (l *Loader) Rel(p string) (string, bool) {
	rel, ok := l.rel(p)
	if !ok || rel == "." || l.Excluded(rel) || !syntax.IsSourceFile(rel) {
		return "", false
	}
	return rel, true
}

func (l *Loader) rel(p string) (string, bool) {
	rel, err := filepath.Rel(l.root, filepath.Clean(p))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Excluded reports whether the relative path rel matches an exclude
// pattern.
func (l *Loader) Excluded(rel string) bool {
	for _, g := range l.excludes {
		if matches(rel, g) {
			return true
		}
	}
	return false
}

// matches checks rel, each of its prefixes and suffixes, and each single
// component.
func matches(rel string, g glob.Glob) bool {
	if g.Match(rel) {
		return true
	}
	parts := strings.Split(rel, "/")
	for i := range parts {
		if g.Match(parts[i]) || g.Match(strings.Join(parts[i:], "/")) || g.Match(strings.Join(parts[:i+1], "/")) {
			return true
		}
	}
	return false
}
