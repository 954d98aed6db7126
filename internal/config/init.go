package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Template is written by `prosa init`.
const Template = `# prosa configuration

# Preferred language-region pairs; the first entry for a language wins.
languages = ["en-US", "de-DE"]

# Checker selection: a LanguageTool server at host/port (default),
# bundled = true with bundled_dir, or jar_location for an external checker.
host = "localhost"
port = 8081
timeout = "30s"
retries = 3

chunk_size = 1000
# Check automatically this long after the last edit. Omit to check on save only.
# on_change = "500ms"

spellcheck = true
severity = "info"

[dictionary]
en = []

[disabled_checks]
en = ["WHITESPACE_RULE"]

# Per node kind overrides: identity, drop, unwrap, rewrite, paginate-before.
# [rules.raw]
# effect = "rewrite"
# token = "code"
`

// WriteTemplate creates prosa.toml in dir. An existing file is left alone.
func WriteTemplate(dir string) (string, error) {
	path := filepath.Join(dir, FileNames[0])
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return path, fmt.Errorf("%s already exists", path)
		}
		return path, err
	}
	if _, err := f.WriteString(Template); err != nil {
		_ = f.Close()
		return path, err
	}
	return path, f.Close()
}
