package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"prosa/internal/cache"
	"prosa/internal/config"
	"prosa/internal/logging"
)

// loadConfig reads the --config file, or the configuration found upwards
// from checked. Unknown keys are returned as warnings.
func loadConfig(cmd *cobra.Command, checked string) (*config.Config, []string, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	var (
		cfg      *config.Config
		warnings []string
	)
	if path != "" {
		cfg, warnings, err = config.Load(path)
	} else {
		start := "."
		if checked != "" {
			start = filepath.Dir(checked)
		}
		cfg, warnings, err = config.Discover(start)
	}
	if err != nil {
		return nil, warnings, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, warnings, err
	}
	return cfg, warnings, nil
}

// newLogger builds the stderr logger; flags win over the configuration.
func newLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	flags := cmd.Root().PersistentFlags()
	level, err := flags.GetString("log-level")
	if err != nil {
		return nil, fmt.Errorf("failed to get log-level flag: %w", err)
	}
	format, err := flags.GetString("log-format")
	if err != nil {
		return nil, fmt.Errorf("failed to get log-format flag: %w", err)
	}
	if level == "" && cfg != nil {
		level = cfg.LogLevel
	}
	if format == "" && cfg != nil {
		format = cfg.LogFormat
	}
	return logging.New(os.Stderr, level, format)
}

// setup loads the configuration and logger for a command working on checked.
func setup(cmd *cobra.Command, checked string) (*config.Config, *slog.Logger, error) {
	cfg, warnings, err := loadConfig(cmd, checked)
	log, logErr := newLogger(cmd, cfg)
	if logErr != nil {
		return nil, nil, logErr
	}
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		return nil, nil, err
	}
	if err := applyColor(cmd); err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func applyColor(cmd *cobra.Command) error {
	value, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return fmt.Errorf("failed to get color flag: %w", err)
	}
	mode, err := readUIMode("color", value)
	if err != nil {
		return err
	}
	color.NoColor = !enabledFor(mode, os.Stdout)
	return nil
}

// openDisk returns the persistent result cache when the configuration asks
// for one. A cache that cannot be opened is logged and skipped.
func openDisk(cfg *config.Config, log *slog.Logger) *cache.Disk {
	if !cfg.DiskCache {
		return nil
	}
	dir := cfg.CacheDir
	if dir != "" && !filepath.IsAbs(dir) {
		dir = filepath.Join(cfg.Dir(), dir)
	}
	disk, err := cache.OpenDisk(dir)
	if err != nil {
		log.Warn("disk cache disabled", "err", err)
		return nil
	}
	log.Debug("disk cache", "dir", disk.Dir())
	return disk
}
