// Package config loads prosa settings from prosa.toml, prosa.yaml or the
// editor's JSON settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"prosa/internal/chunk"
	"prosa/internal/diag"
	"prosa/internal/profile"
	"prosa/internal/style"
)

// Config mirrors the configuration file. Every key is optional.
type Config struct {
	Dictionary           map[string][]string `toml:"dictionary" yaml:"dictionary" json:"dictionary"`
	DictionaryIgnoreCase bool                `toml:"dictionary_ignore_case" yaml:"dictionary_ignore_case" json:"dictionary_ignore_case"`
	DisabledChecks       map[string][]string `toml:"disabled_checks" yaml:"disabled_checks" json:"disabled_checks"`
	Languages            []string            `toml:"languages" yaml:"languages" json:"languages"`

	Bundled     bool     `toml:"bundled" yaml:"bundled" json:"bundled"`
	BundledDir  string   `toml:"bundled_dir" yaml:"bundled_dir" json:"bundled_dir"`
	JarLocation string   `toml:"jar_location" yaml:"jar_location" json:"jar_location"`
	Java        string   `toml:"java" yaml:"java" json:"java"`
	Host        string   `toml:"host" yaml:"host" json:"host"`
	Port        int      `toml:"port" yaml:"port" json:"port"`
	Timeout     Duration `toml:"timeout" yaml:"timeout" json:"timeout"`
	Retries     *int     `toml:"retries" yaml:"retries" json:"retries"`
	Concurrency int      `toml:"concurrency" yaml:"concurrency" json:"concurrency"`

	ChunkSize int       `toml:"chunk_size" yaml:"chunk_size" json:"chunk_size"`
	Lookback  int       `toml:"lookback" yaml:"lookback" json:"lookback"`
	OnChange  *Duration `toml:"on_change" yaml:"on_change" json:"on_change"`

	Spellcheck *bool                       `toml:"spellcheck" yaml:"spellcheck" json:"spellcheck"`
	Rules      map[string]style.RuleConfig `toml:"rules" yaml:"rules" json:"rules"`
	Severity   string                      `toml:"severity" yaml:"severity" json:"severity"`

	Root string `toml:"root" yaml:"root" json:"root"`
	Main string `toml:"main" yaml:"main" json:"main"`

	CacheDir  string `toml:"cache_dir" yaml:"cache_dir" json:"cache_dir"`
	DiskCache bool   `toml:"disk_cache" yaml:"disk_cache" json:"disk_cache"`

	LogLevel  string `toml:"log_level" yaml:"log_level" json:"log_level"`
	LogFormat string `toml:"log_format" yaml:"log_format" json:"log_format"`

	// Path is the file the configuration was read from, if any.
	Path string `toml:"-" yaml:"-" json:"-"`
	// BaseDir replaces the directory of Path for settings that did not come
	// from a file.
	BaseDir string `toml:"-" yaml:"-" json:"-"`
}

const (
	DefaultRetries     = 3
	DefaultConcurrency = 4
	DefaultLang        = "en"
)

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{}
}

// Dir returns the directory relative paths are resolved against.
func (c *Config) Dir() string {
	if c.Path != "" {
		return filepath.Dir(c.Path)
	}
	if c.BaseDir != "" {
		return c.BaseDir
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// Resolve fills Main and Root for a check of checked. Main defaults to the
// checked path, Root to Main's directory; relative values are taken
// relative to the configuration file.
func (c *Config) Resolve(checked string) error {
	base := c.Dir()
	abs := func(p string) (string, error) {
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		return filepath.Abs(p)
	}
	var err error
	switch {
	case c.Main != "":
		c.Main, err = abs(c.Main)
	case checked != "":
		c.Main, err = filepath.Abs(checked)
	}
	if err != nil {
		return fmt.Errorf("main: %w", err)
	}
	if c.Root == "" {
		if c.Main != "" {
			c.Root = filepath.Dir(c.Main)
		}
		return nil
	}
	if c.Root, err = abs(c.Root); err != nil {
		return fmt.Errorf("root: %w", err)
	}
	return nil
}

// Target resolves main and root for checked without modifying c.
func (c *Config) Target(checked string) (main, root string, err error) {
	cp := *c
	if err := cp.Resolve(checked); err != nil {
		return "", "", err
	}
	if cp.Main == "" {
		return "", "", fmt.Errorf("no main file")
	}
	return cp.Main, cp.Root, nil
}

// SpellcheckEnabled defaults to true.
func (c *Config) SpellcheckEnabled() bool {
	return c.Spellcheck == nil || *c.Spellcheck
}

// RetryCount defaults to DefaultRetries.
func (c *Config) RetryCount() int {
	if c.Retries == nil {
		return DefaultRetries
	}
	return max(*c.Retries, 0)
}

// Workers is the number of languages checked in parallel.
func (c *Config) Workers() int {
	if c.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return c.Concurrency
}

// Debounce returns the on_change delay; zero disables automatic checks.
func (c *Config) Debounce() time.Duration {
	if c.OnChange == nil {
		return 0
	}
	return c.OnChange.Duration
}

// ChunkOptions returns the chunker settings.
func (c *Config) ChunkOptions() chunk.Options {
	size := c.ChunkSize
	if size <= 0 {
		size = chunk.DefaultMaxSize
	}
	return chunk.Options{MaxSize: size, Lookback: max(c.Lookback, 0)}
}

// Preferences parses the languages list.
func (c *Config) Preferences() (profile.Preferences, error) {
	return profile.ParsePreferences(c.Languages)
}

// ProfileSettings assembles per-language settings.
func (c *Config) ProfileSettings() (profile.Settings, error) {
	prefs, err := c.Preferences()
	if err != nil {
		return profile.Settings{}, err
	}
	return profile.Settings{
		Dictionary: c.Dictionary,
		Disabled:   c.DisabledChecks,
		IgnoreCase: c.DictionaryIgnoreCase,
		Prefs:      prefs,
	}, nil
}

// RuleTable resolves the style table.
func (c *Config) RuleTable() (style.Table, error) {
	return style.Resolve(c.SpellcheckEnabled(), c.Rules)
}

// SeverityLevel parses the severity key.
func (c *Config) SeverityLevel() (diag.Severity, error) {
	return diag.ParseSeverity(c.Severity)
}

// Validate checks values that can be checked without touching the system.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port: %d out of range", c.Port)
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("chunk_size: must not be negative")
	}
	if c.Bundled && c.JarLocation != "" {
		return fmt.Errorf("bundled and jar_location are mutually exclusive")
	}
	if _, err := c.Preferences(); err != nil {
		return err
	}
	if _, err := c.RuleTable(); err != nil {
		return err
	}
	if _, err := c.SeverityLevel(); err != nil {
		return fmt.Errorf("severity: %w", err)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format: unknown format %q", c.LogFormat)
	}
	return nil
}
