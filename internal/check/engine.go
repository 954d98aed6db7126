// Package check runs one check of a document: compile, extract, chunk,
// send to the backend per language and map the answers back to source.
package check

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"prosa/internal/backend"
	"prosa/internal/backend/bundled"
	"prosa/internal/backend/external"
	"prosa/internal/backend/remote"
	"prosa/internal/chunk"
	"prosa/internal/config"
	"prosa/internal/diag"
	"prosa/internal/logging"
	"prosa/internal/profile"
	"prosa/internal/style"
)

// Engine is everything a run needs that comes from configuration. It is
// immutable; configuration changes build a new Engine.
type Engine struct {
	Config   *config.Config
	Backend  backend.Backend
	Profiles *profile.Set
	Rules    style.Table
	Chunk    chunk.Options
	Severity diag.Severity
	Workers  int

	// id separates cache entries of different backends.
	id string
}

// NewEngine validates cfg and opens the selected backend.
func NewEngine(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &backend.ConfigError{Msg: "invalid configuration", Err: err}
	}
	be, err := OpenBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	eng, err := NewEngineWith(cfg, be)
	if err != nil {
		_ = be.Close()
		return nil, err
	}
	eng.id = backendID(cfg)
	return eng, nil
}

// NewEngineWith builds an engine around an already opened backend.
func NewEngineWith(cfg *config.Config, be backend.Backend) (*Engine, error) {
	settings, err := cfg.ProfileSettings()
	if err != nil {
		return nil, err
	}
	rules, err := cfg.RuleTable()
	if err != nil {
		return nil, err
	}
	sev, err := cfg.SeverityLevel()
	if err != nil {
		return nil, err
	}
	return &Engine{
		Config:   cfg,
		Backend:  be,
		Profiles: profile.NewSet(settings),
		Rules:    rules,
		Chunk:    cfg.ChunkOptions(),
		Severity: sev,
		Workers:  cfg.Workers(),
		id:       be.Capabilities().Name,
	}, nil
}

// Target resolves the main file and root for a check of checked.
func (e *Engine) Target(checked string) (main, root string, err error) {
	return e.Config.Target(checked)
}

// Close releases the backend.
func (e *Engine) Close() error {
	if e == nil || e.Backend == nil {
		return nil
	}
	return e.Backend.Close()
}

// OpenBackend starts the backend variant cfg selects: an external artifact
// when jar_location is set, the bundled server when bundled is set, and the
// remote service otherwise.
func OpenBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (backend.Backend, error) {
	log = logging.OrDiscard(log)
	switch {
	case cfg.JarLocation != "":
		log.Info("starting external checker", "artifact", cfg.JarLocation)
		return external.Open(ctx, external.Options{
			Artifact: configPath(cfg, cfg.JarLocation),
			Java:     cfg.Java,
			Timeout:  cfg.Timeout.Duration,
			Logger:   log.With("backend", "external"),
		})
	case cfg.Bundled:
		log.Info("starting bundled server", "dir", cfg.BundledDir)
		return bundled.Open(ctx, bundled.Options{
			Dir:  configPath(cfg, cfg.BundledDir),
			Java: cfg.Java,
			Remote: remote.Options{
				Timeout:     cfg.Timeout.Duration,
				Retries:     cfg.RetryCount(),
				Concurrency: cfg.Workers(),
			},
			Logger: log.With("backend", "bundled"),
		})
	default:
		endpoint := remote.Endpoint(cfg.Host, cfg.Port)
		log.Debug("using remote checker", "endpoint", endpoint)
		return remote.New(remote.Options{
			Endpoint:    endpoint,
			Timeout:     cfg.Timeout.Duration,
			Retries:     cfg.RetryCount(),
			Concurrency: cfg.Workers(),
			Logger:      log.With("backend", "remote"),
		})
	}
}

func backendID(cfg *config.Config) string {
	switch {
	case cfg.JarLocation != "":
		return "external:" + configPath(cfg, cfg.JarLocation)
	case cfg.Bundled:
		return "bundled:" + configPath(cfg, cfg.BundledDir)
	}
	return "remote:" + remote.Endpoint(cfg.Host, cfg.Port)
}

// configPath makes p absolute relative to the configuration file.
func configPath(cfg *config.Config, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cfg.Dir(), p)
}

// Host owns the current engine. Runs hold a read lock for their whole
// duration, so a swap waits for them and applies to the next run only.
type Host struct {
	mu  sync.RWMutex
	eng *Engine
	err error
}

// NewHost wraps eng, which may be nil until the first successful open.
func NewHost(eng *Engine) *Host {
	return &Host{eng: eng}
}

// Acquire returns the current engine and a release func. The engine is nil
// when the last configuration failed; err then says why.
func (h *Host) Acquire() (*Engine, func(), error) {
	h.mu.RLock()
	if h.eng == nil {
		err := h.err
		h.mu.RUnlock()
		if err == nil {
			err = errors.New("no checker configured")
		}
		return nil, func() {}, err
	}
	return h.eng, h.mu.RUnlock, nil
}

// Swap installs eng and closes the previous engine once no run uses it.
func (h *Host) Swap(eng *Engine) error {
	h.mu.Lock()
	old := h.eng
	h.eng, h.err = eng, nil
	h.mu.Unlock()
	if err := old.Close(); err != nil {
		return fmt.Errorf("close previous backend: %w", err)
	}
	return nil
}

// Fail records a configuration failure and drops the current engine.
func (h *Host) Fail(err error) error {
	h.mu.Lock()
	old := h.eng
	h.eng, h.err = nil, err
	h.mu.Unlock()
	return old.Close()
}

// Current returns the engine without locking it for a run.
func (h *Host) Current() *Engine {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.eng
}

// Close closes the current engine.
func (h *Host) Close() error {
	return h.Fail(backend.ErrClosed)
}
