package lsp

import (
	"context"
	"path/filepath"

	"prosa/internal/check"
	"prosa/internal/markup"
	"prosa/internal/scheduler"
)

// document is an open editor buffer.
type document struct {
	uri     string
	path    string
	text    string
	version int
	// main is the entry point the buffer is checked through.
	main string
}

// target is one main file with its own scheduler and cache. Buffers of
// included files share the target of their main file.
type target struct {
	main, root string
	uri        string
	refs       int
	sched      *scheduler.Scheduler
	pipe       *check.Pipeline
	// published is owned by the scheduler's run; s.mu guards swaps.
	published map[string][]published
}

// published remembers which language produced a diagnostic, so that a
// failed language keeps its previous results.
type published struct {
	lang string
	diag lspDiagnostic
}

// attachLocked binds doc to the target of its main file, creating it when
// needed. Callers hold s.mu.
func (s *Server) attachLocked(doc *document) *target {
	main, root, err := s.cfg.Target(doc.path)
	if err != nil {
		main, root = doc.path, filepath.Dir(doc.path)
	}
	doc.main = main
	if t, ok := s.targets[main]; ok {
		t.refs++
		return t
	}
	t := &target{
		main:      main,
		root:      root,
		uri:       pathToURI(main),
		refs:      1,
		pipe:      check.NewPipeline(s.host, s.disk, s.log.With("main", main)),
		published: make(map[string][]published),
	}
	t.sched = scheduler.New(scheduler.Options{
		Debounce: s.cfg.Debounce(),
		Run:      s.runTarget(t),
		OnState: func(st scheduler.State) {
			if st == scheduler.Checking {
				s.sendStatus(t.uri, statusChecking, "")
			}
		},
	})
	s.targets[main] = t
	return t
}

// detachLocked drops doc's reference and returns its target when that was
// the last one. The caller stops the returned target after unlocking.
func (s *Server) detachLocked(doc *document) *target {
	t, ok := s.targets[doc.main]
	if !ok {
		return nil
	}
	t.refs--
	if t.refs > 0 {
		return nil
	}
	delete(s.targets, doc.main)
	return t
}

// stopTarget waits for a running check and clears what the target published.
func (s *Server) stopTarget(t *target) {
	t.sched.Close()
	s.mu.Lock()
	uris := make([]string, 0, len(t.published))
	for uri := range t.published {
		uris = append(uris, uri)
	}
	t.published = nil
	s.mu.Unlock()
	for _, uri := range uris {
		if err := s.sendPublish(uri, nil); err != nil {
			s.log.Warn("clear diagnostics", "uri", uri, "err", err)
		}
	}
}

// overlay snapshots every open buffer.
func (s *Server) overlay() markup.Overlay {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(markup.Overlay, len(s.docs))
	for _, doc := range s.docs {
		if doc.path != "" {
			out[overlayKey(doc.path)] = []byte(doc.text)
		}
	}
	return out
}

func (s *Server) runTarget(t *target) func(context.Context) {
	return func(ctx context.Context) {
		res, err := t.pipe.Run(ctx, check.Request{Main: t.main, Root: t.root, Overlay: s.overlay()})
		if err != nil {
			s.log.Error("check failed", "main", t.main, "err", err)
			s.sendStatus(t.uri, statusError, err.Error())
			return
		}
		s.publishResult(t, res)
		for _, inc := range res.Inconsistencies {
			s.log.Debug("inconsistent match", "main", t.main, "err", inc.Error())
		}
		if err := res.Err(); err != nil {
			s.sendStatus(t.uri, statusError, err.Error())
			return
		}
		s.sendStatus(t.uri, statusIdle, "")
	}
}

// retarget rebuilds every target after a configuration change and queues
// a check for each.
func (s *Server) retarget() {
	s.mu.Lock()
	old := make([]*target, 0, len(s.targets))
	for _, t := range s.targets {
		old = append(old, t)
	}
	s.targets = make(map[string]*target)
	fresh := make(map[*target]struct{})
	for _, doc := range s.docs {
		fresh[s.attachLocked(doc)] = struct{}{}
	}
	s.mu.Unlock()

	for _, t := range old {
		s.stopTarget(t)
	}
	for t := range fresh {
		t.sched.Notify(scheduler.Request)
	}
}

// closeAll stops every target and the engine.
func (s *Server) closeAll() {
	s.mu.Lock()
	old := make([]*target, 0, len(s.targets))
	for _, t := range s.targets {
		old = append(old, t)
	}
	s.targets = make(map[string]*target)
	s.mu.Unlock()
	for _, t := range old {
		s.stopTarget(t)
	}
	if err := s.host.Close(); err != nil {
		s.log.Warn("close backend", "err", err)
	}
}
