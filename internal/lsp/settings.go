package lsp

import (
	"context"
	"os"

	"prosa/internal/config"
)

func (s *Server) handleDidChangeConfiguration(msg *rpcMessage) error {
	params, err := decodeParams[didChangeConfigurationParams](msg)
	if err != nil || len(params.Settings) == 0 {
		s.log.Warn("ignoring configuration change", "err", err)
		return nil
	}
	s.mu.Lock()
	s.settings = params.Settings
	s.mu.Unlock()
	s.reconfigure(s.baseCtx)
	return nil
}

// loadConfig reads prosa.toml/prosa.yaml from the workspace and applies
// the editor settings on top.
func (s *Server) loadConfig() (*config.Config, []string, error) {
	s.mu.Lock()
	raw := s.settings
	root := s.workspaceRoot
	s.mu.Unlock()
	if root == "" {
		if wd, err := os.Getwd(); err == nil {
			root = wd
		}
	}
	cfg, warnings, err := config.Discover(root)
	if err != nil {
		return nil, warnings, err
	}
	if cfg.Path == "" {
		cfg.BaseDir = root
	}
	if config.HasSettings(raw) {
		more, err := config.MergeJSON(cfg, raw)
		warnings = append(warnings, more...)
		if err != nil {
			return nil, warnings, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, warnings, err
		}
	}
	return cfg, warnings, nil
}

// reconfigure rebuilds the engine. Running checks finish with the old one;
// a failure leaves no engine and every target reports an error status.
func (s *Server) reconfigure(ctx context.Context) {
	s.reconfMu.Lock()
	defer s.reconfMu.Unlock()

	cfg, warnings, err := s.loadConfig()
	for _, w := range warnings {
		s.log.Warn(w)
	}
	if err != nil {
		s.failEngine(err)
		return
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	eng, err := s.openEngine(ctx, cfg, s.log)
	if err != nil {
		s.failEngine(err)
		return
	}
	if err := s.host.Swap(eng); err != nil {
		s.log.Warn("swap engine", "err", err)
	}
	s.log.Info("checker ready", "backend", eng.Backend.Capabilities().Name)
	s.retarget()
}

func (s *Server) failEngine(err error) {
	s.log.Error("configuration failed", "err", err)
	if cerr := s.host.Fail(err); cerr != nil {
		s.log.Warn("close backend", "err", cerr)
	}
	s.retarget()
}
