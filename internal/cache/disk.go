package cache

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"prosa/internal/backend"
)

// Current schema version - increment when diskPayload format changes
const diskSchemaVersion uint16 = 1

// Disk хранит ответы движка на диске, по одному файлу на ключ.
// Thread-safe for concurrent access.
type Disk struct {
	mu  sync.RWMutex
	dir string
}

type diskPayload struct {
	Schema  uint16
	Matches []backend.Match
}

// OpenDisk opens a cache in dir; an empty dir selects
// $XDG_CACHE_HOME/prosa (or ~/.cache/prosa).
func OpenDisk(dir string) (*Disk, error) {
	if dir == "" {
		base := os.Getenv("XDG_CACHE_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			base = filepath.Join(home, ".cache")
		}
		dir = filepath.Join(base, "prosa")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Disk{dir: dir}, nil
}

// Dir returns the cache directory.
func (d *Disk) Dir() string { return d.dir }

func (d *Disk) pathFor(k Key) string {
	hexKey := k.String()
	// подкаталог по первым двум символам, чтобы не держать тысячи файлов в одном
	return filepath.Join(d.dir, "matches", hexKey[:2], hexKey+".mp")
}

// Put serializes and writes matches.
func (d *Disk) Put(k Key, matches []backend.Match) error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	p := d.pathFor(k)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if err := msgpack.NewEncoder(f).Encode(&diskPayload{Schema: diskSchemaVersion, Matches: matches}); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// Атомарная замена
	return os.Rename(f.Name(), p)
}

// Get reads matches for k. A missing entry or an entry with another schema
// is a miss.
func (d *Disk) Get(k Key) ([]backend.Match, bool, error) {
	if d == nil {
		return nil, false, nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	f, err := os.Open(d.pathFor(k))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()
	var payload diskPayload
	if err := msgpack.NewDecoder(f).Decode(&payload); err != nil {
		return nil, false, err
	}
	if payload.Schema != diskSchemaVersion {
		return nil, false, nil
	}
	return payload.Matches, true, nil
}

// DropAll invalidates the cache.
func (d *Disk) DropAll() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	// тривиально: переименуем каталог и удалим
	old := d.dir + ".old-" + time.Now().Format("20060102150405.000000000")
	if err := os.Rename(d.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return err
	}
	return os.RemoveAll(old)
}
