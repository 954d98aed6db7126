package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// FileNames are searched in this order in every directory.
var FileNames = []string{"prosa.toml", "prosa.yaml", "prosa.yml"}

// Find walks up from startDir to locate a configuration file.
func Find(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	if info, statErr := os.Stat(dir); statErr == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	for {
		for _, name := range FileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, true, nil
			} else if !errors.Is(err, os.ErrNotExist) {
				return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Discover finds and loads the configuration for startDir, falling back to
// Default when there is none.
func Discover(startDir string) (*Config, []string, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return Default(), nil, nil
	}
	return Load(path)
}

// Load reads a configuration file. The returned warnings name keys that
// were not recognised.
func Load(path string) (*Config, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var (
		cfg      *Config
		warnings []string
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		cfg, warnings, err = decodeTOML(data)
	case ".yaml", ".yml":
		cfg, warnings, err = decodeYAML(data)
	case ".json":
		cfg, warnings, err = FromJSON(data)
	default:
		return nil, nil, fmt.Errorf("%s: unsupported configuration format", path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, warnings, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, warnings, nil
}

func decodeTOML(data []byte) (*Config, []string, error) {
	cfg := Default()
	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	var warnings []string
	for _, key := range meta.Undecoded() {
		warnings = append(warnings, unknownKey(key.String()))
	}
	return cfg, warnings, nil
}

func decodeYAML(data []byte) (*Config, []string, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, unknownKeys(raw), nil
}

// FromJSON decodes editor settings. A top-level "prosa" object is
// unwrapped, so both {"prosa": {...}} and the bare object work.
func FromJSON(data []byte) (*Config, []string, error) {
	cfg := Default()
	warnings, err := MergeJSON(cfg, data)
	if err != nil {
		return nil, nil, err
	}
	return cfg, warnings, nil
}

// MergeJSON overrides the keys of cfg present in data.
func MergeJSON(cfg *Config, data []byte) ([]string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if inner, ok := raw["prosa"]; ok {
		data = inner
		raw = nil
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse settings: %w", err)
		}
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	keys := make(map[string]any, len(raw))
	for k := range raw {
		keys[k] = nil
	}
	return unknownKeys(keys), nil
}

// HasSettings reports whether data holds any settings at all.
func HasSettings(data []byte) bool {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return false
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return true
	}
	if inner, ok := raw["prosa"]; ok {
		return HasSettings(inner)
	}
	return len(raw) > 0
}

func unknownKey(key string) string {
	return fmt.Sprintf("unknown configuration key %q", key)
}

func unknownKeys(raw map[string]any) []string {
	known := knownKeys()
	var out []string
	for k := range raw {
		if _, ok := known[k]; !ok {
			out = append(out, unknownKey(k))
		}
	}
	sort.Strings(out)
	return out
}

func knownKeys() map[string]struct{} {
	t := reflect.TypeOf(Config{})
	out := make(map[string]struct{}, t.NumField())
	for i := range t.NumField() {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("toml"), ",")
		if name != "" && name != "-" {
			out[name] = struct{}{}
		}
	}
	return out
}
