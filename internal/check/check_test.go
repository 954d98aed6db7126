package check

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"prosa/internal/backend"
	"prosa/internal/config"
	"prosa/internal/diag"
	"prosa/internal/observ"
)

// fakeBackend flags every occurrence of word.
type fakeBackend struct {
	word     string
	failLang string
	serverOK bool

	mu     sync.Mutex
	calls  int
	reqs   []backend.Request
	closed bool
}

func (f *fakeBackend) Check(_ context.Context, req backend.Request) ([]backend.Match, error) {
	f.mu.Lock()
	f.calls++
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if req.Lang == f.failLang {
		return nil, &backend.ConnectionError{Endpoint: "fake", Attempts: 1, Err: errors.New("connection refused")}
	}
	var out []backend.Match
	for off := 0; ; {
		i := strings.Index(req.Text[off:], f.word)
		if i < 0 {
			break
		}
		start := off + i
		out = append(out, backend.Match{
			Start:        start,
			End:          start + len(f.word),
			RuleID:       "TYPO",
			Message:      "Possible typo",
			Replacements: []string{"the"},
			Spelling:     true,
		})
		off = start + len(f.word)
	}
	return out, nil
}

func (f *fakeBackend) Capabilities() backend.Capabilities {
	return backend.Capabilities{Name: "fake", ServerSideDisabling: f.serverOK, MaxConcurrent: 4}
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func setup(t *testing.T, cfg *config.Config, be *fakeBackend) *Pipeline {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	eng, err := NewEngineWith(cfg, be)
	if err != nil {
		t.Fatalf("NewEngineWith: %v", err)
	}
	return NewPipeline(NewHost(eng), nil, nil)
}

func writeMain(t *testing.T, src string) string {
	t.Helper()
	main := filepath.Join(t.TempDir(), "main.typ")
	if err := os.WriteFile(main, []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}
	return main
}

func run(t *testing.T, p *Pipeline, main string) *Result {
	t.Helper()
	res, err := p.Run(context.Background(), Request{Main: main})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func TestRunProjectsMatches(t *testing.T) {
	cfg := config.Default()
	cfg.Languages = []string{"de-DE"}
	be := &fakeBackend{word: "the"}
	p := setup(t, cfg, be)

	res := run(t, p, writeMain(t, `#set text(lang:"de") Der the Hund ist schön.`))
	items := res.Bag.Items()
	if len(items) != 1 {
		t.Fatalf("diagnostics = %+v", items)
	}
	d := items[0]
	if d.Primary.Start != 25 || d.Primary.End != 28 || d.Lang != "de-DE" || d.Severity != diag.SevInfo {
		t.Fatalf("diagnostic = %+v", d)
	}
	if got := d.Replacements(); !slices.Equal(got, []string{"the"}) {
		t.Fatalf("replacements = %v", got)
	}
	if be.reqs[0].LanguageTag() != "de-DE" {
		t.Fatalf("request language = %s", be.reqs[0].LanguageTag())
	}
}

func TestRunAcrossChunks(t *testing.T) {
	cfg := config.Default()
	cfg.ChunkSize = 16
	be := &fakeBackend{word: "teh"}
	p := setup(t, cfg, be)

	res := run(t, p, writeMain(t, "First teh line.\n\nSecond teh line."))
	if res.Languages[0].Chunks < 2 {
		t.Fatalf("expected several chunks, got %+v", res.Languages[0])
	}
	var starts []uint32
	for _, d := range res.Bag.Items() {
		if got := res.FileSet.Text(d.Primary); got != "teh" {
			t.Fatalf("diagnostic covers %q", got)
		}
		starts = append(starts, d.Primary.Start)
	}
	if !slices.Equal(starts, []uint32{6, 24}) {
		t.Fatalf("starts = %v", starts)
	}
}

// longWordBackend flags every whitespace-separated token longer than limit.
type longWordBackend struct {
	fakeBackend
	limit int
}

func (b *longWordBackend) Check(_ context.Context, req backend.Request) ([]backend.Match, error) {
	var out []backend.Match
	start := -1
	for i := 0; i <= len(req.Text); i++ {
		if i < len(req.Text) && req.Text[i] != ' ' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start > b.limit {
			out = append(out, backend.Match{Start: start, End: i, RuleID: "LONG", Message: "Long word"})
		}
		start = -1
	}
	return out, nil
}

func TestWordLongerThanChunkNotReportedInPieces(t *testing.T) {
	cfg := config.Default()
	cfg.ChunkSize = 16
	eng, err := NewEngineWith(cfg, &longWordBackend{limit: 3})
	if err != nil {
		t.Fatalf("NewEngineWith: %v", err)
	}
	p := NewPipeline(NewHost(eng), nil, nil)

	res := run(t, p, writeMain(t, "Hi "+strings.Repeat("x", 40)+" okay"))
	lr := res.Languages[0]
	if lr.Chunks != 4 || lr.Stats.Straddling != 3 {
		t.Fatalf("language result = %+v", lr)
	}
	items := res.Bag.Items()
	if len(items) != 1 || res.FileSet.Text(items[0].Primary) != "okay" || items[0].Primary.Start != 44 {
		t.Fatalf("diagnostics = %+v", items)
	}
}

func TestFailedLanguageDoesNotStopOthers(t *testing.T) {
	be := &fakeBackend{word: "teh", failLang: "fr"}
	p := setup(t, nil, be)

	res := run(t, p, writeMain(t, `Hello teh #text(lang: "fr")[Bonjour teh] world`))
	failed := res.Failed()
	if len(failed) != 1 || failed[0].Tag != "fr" {
		t.Fatalf("failed = %+v", failed)
	}
	var ce *backend.ConnectionError
	if !errors.As(res.Err(), &ce) {
		t.Fatalf("Err() = %v", res.Err())
	}
	items := res.Bag.Items()
	if len(items) != 1 || items[0].Lang != "en" || items[0].Primary.Start != 6 {
		t.Fatalf("diagnostics = %+v", items)
	}
}

func TestCacheSkipsUnchangedText(t *testing.T) {
	be := &fakeBackend{word: "teh"}
	p := setup(t, nil, be)
	main := writeMain(t, "A teh sentence.")

	first := run(t, p, main)
	second := run(t, p, main)
	if be.callCount() != 1 {
		t.Fatalf("backend called %d times", be.callCount())
	}
	if second.Languages[0].Cached != 1 || second.Bag.Len() != first.Bag.Len() {
		t.Fatalf("second run = %+v", second.Languages[0])
	}

	if err := os.WriteFile(main, []byte("Another teh sentence."), 0o600); err != nil {
		t.Fatal(err)
	}
	run(t, p, main)
	if be.callCount() != 2 {
		t.Fatalf("changed text not rechecked: %d calls", be.callCount())
	}
}

func TestDisabledRules(t *testing.T) {
	cfg := config.Default()
	cfg.DisabledChecks = map[string][]string{"en": {"TYPO"}}

	local := &fakeBackend{word: "teh"}
	res := run(t, setup(t, cfg, local), writeMain(t, "A teh sentence."))
	if res.Bag.Len() != 0 || res.Languages[0].Stats.Disabled != 1 {
		t.Fatalf("disabled rule surfaced: %+v", res.Languages[0].Stats)
	}
	if len(local.reqs[0].DisabledRules) != 0 {
		t.Fatalf("rules sent to backend without support: %v", local.reqs[0].DisabledRules)
	}

	server := &fakeBackend{word: "teh", serverOK: true}
	res = run(t, setup(t, cfg, server), writeMain(t, "A teh sentence."))
	if !slices.Equal(server.reqs[0].DisabledRules, []string{"TYPO"}) {
		t.Fatalf("disabled rules = %v", server.reqs[0].DisabledRules)
	}
	if res.Languages[0].Stats.DisabledLeaked != 1 || res.Bag.Len() != 0 {
		t.Fatalf("stats = %+v", res.Languages[0].Stats)
	}
}

func TestUnresolvedLanguageSentAsAuto(t *testing.T) {
	be := &fakeBackend{word: "teh"}
	res := run(t, setup(t, nil, be), writeMain(t, `Intro #text(lang: "elvish")[teh]`))
	var langs []string
	for _, r := range be.reqs {
		langs = append(langs, r.LanguageTag())
	}
	slices.Sort(langs)
	if !slices.Equal(langs, []string{"auto", "en"}) {
		t.Fatalf("languages = %v", langs)
	}
	var warned bool
	for _, d := range res.Bag.Items() {
		if d.Code == diag.ExtUnresolvedLanguage && d.Severity == diag.SevWarning {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("no unresolved-language warning in %+v", res.Bag.Items())
	}
}

func TestWarningsBecomeDiagnostics(t *testing.T) {
	res := run(t, setup(t, nil, &fakeBackend{word: "zzz"}), writeMain(t, "a\n#include \"gone.typ\"\nb"))
	items := res.Bag.Items()
	if len(items) != 1 || items[0].Code != diag.ExtIncludeMissing {
		t.Fatalf("diagnostics = %+v", items)
	}
}

func TestProgressAndTimings(t *testing.T) {
	ch := make(chan Event, 64)
	timer := observ.NewTimer()
	p := setup(t, nil, &fakeBackend{word: "teh"})
	_, err := p.Run(context.Background(), Request{
		Main:  writeMain(t, `Hello #text(lang: "fr")[Bonjour]`),
		Sink:  ChannelSink{Ch: ch},
		Timer: timer,
	})
	if err != nil {
		t.Fatal(err)
	}
	close(ch)
	done := map[string]bool{}
	for ev := range ch {
		if ev.Stage == StageCheck && ev.Status == StatusDone {
			done[ev.Item] = true
		}
	}
	if !done["en"] || !done["fr"] {
		t.Fatalf("done events = %v", done)
	}
	phases := timer.Report().Phases
	if len(phases) != 4 || phases[2].Name != observ.PhaseCheck || phases[2].Count != 2 {
		t.Fatalf("phases = %+v", phases)
	}
}

func TestMissingMainIsError(t *testing.T) {
	p := setup(t, nil, &fakeBackend{word: "x"})
	if _, err := p.Run(context.Background(), Request{Main: filepath.Join(t.TempDir(), "nope.typ")}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestHostSwapClosesPrevious(t *testing.T) {
	old := &fakeBackend{word: "x"}
	eng, err := NewEngineWith(config.Default(), old)
	if err != nil {
		t.Fatal(err)
	}
	h := NewHost(eng)

	_, release, err := h.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	swapped := make(chan struct{})
	next := &fakeBackend{word: "y"}
	nextEng, _ := NewEngineWith(config.Default(), next)
	go func() {
		_ = h.Swap(nextEng)
		close(swapped)
	}()
	select {
	case <-swapped:
		t.Fatalf("swap did not wait for the running check")
	default:
	}
	release()
	<-swapped
	if !old.closed || h.Current() != nextEng {
		t.Fatalf("swap incomplete")
	}

	boom := errors.New("bad config")
	if err := h.Fail(boom); err != nil {
		t.Fatal(err)
	}
	if _, _, err := h.Acquire(); !errors.Is(err, boom) {
		t.Fatalf("Acquire err = %v", err)
	}
	if !next.closed {
		t.Fatalf("failed host kept the backend open")
	}
}

func TestTarget(t *testing.T) {
	dir := t.TempDir()
	eng, err := NewEngineWith(config.Default(), &fakeBackend{})
	if err != nil {
		t.Fatal(err)
	}
	main, root, err := eng.Target(filepath.Join(dir, "doc.typ"))
	if err != nil || main != filepath.Join(dir, "doc.typ") || root != dir {
		t.Fatalf("Target = %s, %s, %v", main, root, err)
	}
	if eng.Config.Main != "" {
		t.Fatalf("Target mutated the engine configuration")
	}
}
