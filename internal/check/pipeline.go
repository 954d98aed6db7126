package check

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"prosa/internal/backend"
	"prosa/internal/cache"
	"prosa/internal/chunk"
	"prosa/internal/config"
	"prosa/internal/diag"
	"prosa/internal/extract"
	"prosa/internal/logging"
	"prosa/internal/mapper"
	"prosa/internal/markup"
	"prosa/internal/observ"
	"prosa/internal/profile"
	"prosa/internal/source"
)

// Request describes one run.
type Request struct {
	// Main is the document entry point; Root bounds includes.
	Main, Root string
	Overlay    markup.Overlay
	Sink       ProgressSink
	Timer      *observ.Timer
}

// LangResult is the outcome for one checkable text.
type LangResult struct {
	Key   extract.Key
	Tag   string
	Bytes int
	// Chunks were sent or answered from the cache.
	Chunks, Cached int
	Stats          mapper.Stats
	Err            error
}

// Result of one run. Diagnostics of failed languages are absent; callers
// that publish incrementally keep their previous ones.
type Result struct {
	ID        uuid.UUID
	FileSet   *source.FileSet
	Bag       *diag.Bag
	Warnings  []extract.Warning
	Languages []LangResult
	// Inconsistencies are logged; they never become diagnostics.
	Inconsistencies []mapper.Inconsistency
	Elapsed         time.Duration
}

// Failed returns the languages whose check did not complete.
func (r *Result) Failed() []LangResult {
	var out []LangResult
	for _, l := range r.Languages {
		if l.Err != nil {
			out = append(out, l)
		}
	}
	return out
}

// Err joins the per-language failures.
func (r *Result) Err() error {
	var errs []error
	for _, l := range r.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", l.Tag, l.Err))
	}
	return errors.Join(errs...)
}

// Pipeline checks one document. It keeps the result cache across runs, so
// a document gets its own Pipeline.
type Pipeline struct {
	host  *Host
	cache *cache.Cache
	log   *slog.Logger
}

// NewPipeline returns a pipeline using the host's engine. disk may be nil.
func NewPipeline(host *Host, disk *cache.Disk, log *slog.Logger) *Pipeline {
	log = logging.OrDiscard(log)
	return &Pipeline{host: host, cache: cache.New(disk, log), log: log}
}

// Cache exposes the result cache.
func (p *Pipeline) Cache() *cache.Cache { return p.cache }

// Run performs one check. The error is non-nil only when nothing could be
// checked: no engine, or an unreadable main file. Per-language failures are
// in Result.Languages.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	eng, release, err := p.host.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	started := time.Now()
	res := &Result{ID: uuid.New(), FileSet: source.NewFileSet(), Bag: diag.NewBag(0)}
	ctx = logging.WithRun(ctx, res.ID.String())
	log := logging.FromContext(ctx, p.log)
	sink := req.Sink
	if sink == nil {
		sink = nopSink{}
	}
	timer := req.Timer

	// compile
	sink.OnEvent(Event{Stage: StageCompile, Status: StatusWorking})
	idx := timer.Begin(observ.PhaseCompile)
	doc, problems, err := markup.Compile(res.FileSet, req.Main, markup.Options{
		Root:        req.Root,
		Overlay:     req.Overlay,
		DefaultLang: config.DefaultLang,
	})
	timer.End(idx, "")
	if err != nil {
		sink.OnEvent(Event{Stage: StageCompile, Status: StatusError, Err: err})
		return nil, err
	}
	sink.OnEvent(Event{Stage: StageCompile, Status: StatusDone})

	// extract
	idx = timer.Begin(observ.PhaseExtract)
	extracted := extract.Extract(doc, extract.Options{
		Rules:       &eng.Rules,
		Prefs:       eng.Profiles.Prefs(),
		DefaultLang: config.DefaultLang,
	})
	res.Warnings = append(extract.CompileWarnings(problems), extracted.Warnings...)
	timer.End(idx, fmt.Sprintf("%d texts", len(extracted.Texts)))
	for _, w := range res.Warnings {
		res.Bag.Add(diag.NewWarning(diag.WarningCode(w.Code), w.Span, w.Message))
	}

	// check + map, one goroutine per text
	res.Languages = make([]LangResult, len(extracted.Texts))
	found := make([][]diag.Diagnostic, len(extracted.Texts))
	var (
		mu       sync.Mutex
		inconsis []mapper.Inconsistency
	)
	for _, txt := range extracted.Texts {
		sink.OnEvent(Event{Item: txt.Key.String(), Stage: StageCheck, Status: StatusQueued})
	}
	var g errgroup.Group
	g.SetLimit(max(eng.Workers, 1))
	for i, txt := range extracted.Texts {
		g.Go(func() error {
			lr, out := p.checkText(ctx, eng, txt, sink, timer)
			res.Languages[i] = lr
			if out == nil {
				return nil
			}
			found[i] = out.Diagnostics
			if len(out.Inconsistencies) > 0 {
				mu.Lock()
				inconsis = append(inconsis, out.Inconsistencies...)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, ds := range found {
		for _, d := range ds {
			res.Bag.Add(d)
		}
	}
	res.Bag.Sort()
	res.Bag.Dedup()
	res.Inconsistencies = inconsis
	for _, inc := range inconsis {
		log.Warn("dropped unmappable match", "rule", inc.RuleID, "start", inc.Start, "end", inc.End, "reason", inc.Reason)
	}
	p.cache.Rotate()
	res.Elapsed = time.Since(started)

	hits, misses := p.cache.Stats()
	log.Debug("check finished",
		"texts", len(extracted.Texts),
		"diagnostics", res.Bag.Len(),
		"failed", len(res.Failed()),
		"cache_hits", hits, "cache_misses", misses,
		"elapsed", res.Elapsed)
	return res, nil
}

// checkText sends the chunks of txt in order and maps the answers. A
// failed chunk fails the whole text; its siblings continue.
func (p *Pipeline) checkText(ctx context.Context, eng *Engine, txt *extract.Text, sink ProgressSink, timer *observ.Timer) (LangResult, *mapper.Output) {
	var prof *profile.Profile
	if txt.Unresolved {
		prof = eng.Profiles.Unresolved(txt.Key.Lang)
	} else {
		prof = eng.Profiles.Lookup(txt.Key.Lang, txt.Key.Region)
	}
	lr := LangResult{Key: txt.Key, Tag: prof.Tag(), Bytes: len(txt.Body)}
	item := txt.Key.String()
	log := logging.FromContext(ctx, p.log).With("lang", lr.Tag)

	caps := eng.Backend.Capabilities()
	var sendDisabled []string
	if caps.ServerSideDisabling {
		sendDisabled = prof.DisabledRules()
	}
	chunks := chunk.Split(txt.Body, eng.Chunk)
	lr.Chunks = len(chunks)

	started := time.Now()
	idx := timer.Begin(observ.PhaseCheck)
	sink.OnEvent(Event{Item: item, Stage: StageCheck, Status: StatusWorking, Total: len(chunks)})
	var matches []backend.Match
	for n, c := range chunks {
		key := cache.KeyFor(eng.id, prof.Tag(), sendDisabled, c.Text)
		got, ok := p.cache.Get(key)
		if ok {
			lr.Cached++
		} else {
			req := backend.Request{Text: c.Text, Lang: prof.Lang, Region: prof.Region, DisabledRules: sendDisabled}
			if prof.Unresolved {
				req.Lang, req.Region = profile.AutoLang, ""
			}
			var err error
			got, err = eng.Backend.Check(ctx, req)
			if err != nil {
				timer.End(idx, "failed")
				lr.Err = err
				log.Warn("check failed", "chunk", n, "err", err)
				sink.OnEvent(Event{Item: item, Stage: StageCheck, Status: StatusError, Err: err, Elapsed: time.Since(started)})
				return lr, nil
			}
			p.cache.Put(key, got)
		}
		for _, m := range got {
			if !c.Owns(m.Start) {
				continue
			}
			m.Start += c.Base
			m.End += c.Base
			matches = append(matches, m)
		}
		sink.OnEvent(Event{Item: item, Stage: StageCheck, Status: StatusWorking, Done: n + 1, Total: len(chunks)})
	}
	timer.End(idx, "")

	idx = timer.Begin(observ.PhaseMap)
	out := mapper.Map(mapper.Input{
		Text:           txt,
		Matches:        matches,
		HardSplits:     chunk.HardSplits(chunks),
		Profile:        prof,
		ServerFiltered: caps.ServerSideDisabling,
		Severity:       eng.Severity,
	})
	timer.End(idx, "")
	lr.Stats = out.Stats
	if out.Stats.DisabledLeaked > 0 {
		log.Debug("backend returned disabled rules", "count", out.Stats.DisabledLeaked)
	}

	status := StatusDone
	if lr.Chunks > 0 && lr.Cached == lr.Chunks {
		status = StatusCached
	}
	sink.OnEvent(Event{Item: item, Stage: StageCheck, Status: status, Elapsed: time.Since(started), Done: len(chunks), Total: len(chunks)})
	return lr, &out
}
