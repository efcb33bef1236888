// Package config loads sapling's settings from .sapling.yaml, SAPLING_*
// environment variables and command-line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FileName is the config file name without extension.
const FileName = ".sapling"

// Config holds the settings shared by every command.
type Config struct {
	// Root is the crate directory. Empty means the working directory.
	Root string `mapstructure:"root"`
	// RootFile overrides crate root detection (src/lib.rs, src/main.rs).
	RootFile string `mapstructure:"root_file"`
	// DB is the index path; relative paths are joined to the repo root.
	DB string `mapstructure:"db"`
	// Exclude holds glob patterns of paths never loaded.
	Exclude []string `mapstructure:"exclude"`
	// Scripts is the directory holding macros/*.risor.
	Scripts string `mapstructure:"scripts"`
	// Capacity bounds each memo table; zero means unbounded.
	Capacity int           `mapstructure:"capacity"`
	Debounce time.Duration `mapstructure:"debounce"`
	Verbose  bool          `mapstructure:"verbose"`
}

type options struct {
	fs    afero.Fs
	dir   string
	home  string
	file  string
	flags *pflag.FlagSet
}

// Option configures Load.
type Option func(*options)

// WithFs reads config files from fs.
func WithFs(fs afero.Fs) Option {
	return func(o *options) {
		o.fs = fs
	}
}

// WithDir searches dir instead of the working directory.
func WithDir(dir string) Option {
	return func(o *options) {
		o.dir = dir
	}
}

// WithHome overrides the home directory used for ~/.config/sapling.
func WithHome(home string) Option {
	return func(o *options) {
		o.home = home
	}
}

// WithFile reads exactly path; it must exist.
func WithFile(path string) Option {
	return func(o *options) {
		o.file = path
	}
}

// WithFlags lets set flags override file and environment values. Flag
// names use dashes where keys use underscores.
func WithFlags(fs *pflag.FlagSet) Option {
	return func(o *options) {
		o.flags = fs
	}
}

func newViper(o *options) (*viper.Viper, error) {
	v := viper.New()
	v.SetFs(o.fs)
	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(o.dir)
	v.AddConfigPath(filepath.Join(o.home, ".config", "sapling"))

	v.SetEnvPrefix("SAPLING")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("root", "")
	v.SetDefault("root_file", "")
	v.SetDefault("db", filepath.Join(".sapling", "index.db"))
	v.SetDefault("exclude", []string{"target", ".git", ".sapling"})
	v.SetDefault("scripts", "")
	v.SetDefault("capacity", 0)
	v.SetDefault("debounce", 100*time.Millisecond)
	v.SetDefault("verbose", false)

	if o.flags != nil {
		for _, key := range keys {
			f := o.flags.Lookup(strings.ReplaceAll(key, "_", "-"))
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("config: bind flag %s: %w", f.Name, err)
			}
		}
	}
	return v, nil
}

var keys = []string{"root", "root_file", "db", "exclude", "scripts", "capacity", "debounce", "verbose"}

// Load reads the configuration. A missing config file is not an error
// unless WithFile named it.
func Load(opts ...Option) (*Config, error) {
	o, err := resolve(opts)
	if err != nil {
		return nil, err
	}
	v, err := newViper(o)
	if err != nil {
		return nil, err
	}
	if o.file != "" {
		v.SetConfigFile(o.file)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if cfg.Capacity < 0 {
		return nil, fmt.Errorf("config: capacity must be non-negative, got %d", cfg.Capacity)
	}
	return cfg, nil
}

// Save writes cfg as YAML to dir/.sapling.yaml.
func Save(cfg *Config, opts ...Option) (string, error) {
	o, err := resolve(opts)
	if err != nil {
		return "", err
	}
	v := viper.New()
	v.SetFs(o.fs)
	v.Set("root", cfg.Root)
	v.Set("root_file", cfg.RootFile)
	v.Set("db", cfg.DB)
	v.Set("exclude", cfg.Exclude)
	v.Set("scripts", cfg.Scripts)
	v.Set("capacity", cfg.Capacity)
	v.Set("debounce", cfg.Debounce.String())
	v.Set("verbose", cfg.Verbose)

	if err := o.fs.MkdirAll(o.dir, 0o755); err != nil {
		return "", fmt.Errorf("config: save: %w", err)
	}
	path := filepath.Join(o.dir, FileName+".yaml")
	if err := v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("config: save: %w", err)
	}
	return path, nil
}

func resolve(opts []Option) (*options, error) {
	o := &options{dir: "."}
	for _, opt := range opts {
		opt(o)
	}
	if o.fs == nil {
		o.fs = afero.NewOsFs()
	}
	if o.home == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("config: home directory: %w", err)
		}
		o.home = home
	}
	return o, nil
}

// DBPath returns cfg.DB resolved against repoRoot.
func (c *Config) DBPath(repoRoot string) string {
	if filepath.IsAbs(c.DB) {
		return c.DB
	}
	return filepath.Join(repoRoot, c.DB)
}
