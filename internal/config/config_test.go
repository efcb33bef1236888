package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memOpts(fs afero.Fs) []Option {
	return []Option{WithFs(fs), WithDir("/work"), WithHome("/home/dev")}
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(memOpts(afero.NewMemMapFs())...)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(".sapling", "index.db"), cfg.DB)
	assert.Equal(t, []string{"target", ".git", ".sapling"}, cfg.Exclude)
	assert.Equal(t, 100*time.Millisecond, cfg.Debounce)
	assert.Zero(t, cfg.Capacity)
	assert.False(t, cfg.Verbose)
}

func TestLoad_WorkingDirFile(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/work/.sapling.yaml", []byte(`
root_file: crates/core/lib.rs
exclude:
  - target
  - "**/generated_*.rs"
scripts: tools/macros
capacity: 512
debounce: 250ms
verbose: true
`), 0o644))

	cfg, err := Load(memOpts(fs)...)
	require.NoError(t, err)
	assert.Equal(t, "crates/core/lib.rs", cfg.RootFile)
	assert.Equal(t, []string{"target", "**/generated_*.rs"}, cfg.Exclude)
	assert.Equal(t, "tools/macros", cfg.Scripts)
	assert.Equal(t, 512, cfg.Capacity)
	assert.Equal(t, 250*time.Millisecond, cfg.Debounce)
	assert.True(t, cfg.Verbose)
}

func TestLoad_HomeConfigDir(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/home/dev/.config/sapling/.sapling.yaml", []byte("db: /var/cache/sapling.db\n"), 0o644))

	cfg, err := Load(memOpts(fs)...)
	require.NoError(t, err)
	assert.Equal(t, "/var/cache/sapling.db", cfg.DB)
	assert.Equal(t, "/var/cache/sapling.db", cfg.DBPath("/repo"))
}

func TestLoad_ExplicitFileMustExist(t *testing.T) {
	t.Parallel()
	opts := append(memOpts(afero.NewMemMapFs()), WithFile("/nowhere/custom.yaml"))
	_, err := Load(opts...)
	assert.ErrorContains(t, err, "config: read")
}

func TestLoad_InvalidCapacity(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/work/.sapling.yaml", []byte("capacity: -1\n"), 0o644))
	_, err := Load(memOpts(fs)...)
	assert.ErrorContains(t, err, "capacity must be non-negative")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/work/.sapling.yaml", []byte("scripts: from-file\nverbose: false\n"), 0o644))
	t.Setenv("SAPLING_SCRIPTS", "from-env")
	t.Setenv("SAPLING_VERBOSE", "true")

	cfg, err := Load(memOpts(fs)...)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Scripts)
	assert.True(t, cfg.Verbose)
}

func TestLoad_FlagsOverrideEverything(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/work/.sapling.yaml", []byte("db: file.db\nroot_file: src/lib.rs\n"), 0o644))
	t.Setenv("SAPLING_DB", "env.db")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("db", "", "")
	flags.String("root-file", "", "")
	flags.Bool("verbose", false, "")
	flags.String("format", "json", "")
	require.NoError(t, flags.Parse([]string{"--db", "flag.db"}))

	cfg, err := Load(append(memOpts(fs), WithFlags(flags))...)
	require.NoError(t, err)
	assert.Equal(t, "flag.db", cfg.DB)
	assert.Equal(t, "src/lib.rs", cfg.RootFile, "unset flags keep the file value")
	assert.Equal(t, filepath.Join("/repo", "flag.db"), cfg.DBPath("/repo"))
}

func TestSave_RoundTrip(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	want := &Config{
		RootFile: "src/main.rs",
		DB:       "out/index.db",
		Exclude:  []string{"vendor"},
		Scripts:  "macros",
		Capacity: 64,
		Debounce: time.Second,
		Verbose:  true,
	}
	path, err := Save(want, memOpts(fs)...)
	require.NoError(t, err)
	assert.Equal(t, "/work/.sapling.yaml", path)

	got, err := Load(memOpts(fs)...)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
