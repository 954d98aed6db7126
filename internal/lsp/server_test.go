package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"prosa/internal/backend"
	"prosa/internal/check"
	"prosa/internal/config"
	"prosa/internal/diag"
	"prosa/internal/source"
)

// typoBackend flags every "teh".
type typoBackend struct {
	mu    sync.Mutex
	calls int
}

func (b *typoBackend) Check(_ context.Context, req backend.Request) ([]backend.Match, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	var out []backend.Match
	for off := 0; ; {
		i := strings.Index(req.Text[off:], "teh")
		if i < 0 {
			return out, nil
		}
		start := off + i
		out = append(out, backend.Match{
			Start:        start,
			End:          start + 3,
			RuleID:       "TYPO",
			Message:      "Possible typo",
			Replacements: []string{"the", "tech"},
		})
		off = start + 3
	}
}

func (b *typoBackend) Capabilities() backend.Capabilities {
	return backend.Capabilities{Name: "typo", MaxConcurrent: 1}
}

func (b *typoBackend) Close() error { return nil }

// syncBuffer collects server output written from scheduler goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) messages(t *testing.T) []rpcMessage {
	t.Helper()
	b.mu.Lock()
	data := append([]byte(nil), b.buf.Bytes()...)
	b.mu.Unlock()
	reader := bufio.NewReader(bytes.NewReader(data))
	var out []rpcMessage
	for {
		payload, err := readMessage(reader)
		if err != nil {
			return out
		}
		var msg rpcMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		out = append(out, msg)
	}
}

// waitFor polls the output until ok accepts a message.
func (b *syncBuffer) waitFor(t *testing.T, ok func(rpcMessage) bool) rpcMessage {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, msg := range b.messages(t) {
			if ok(msg) {
				return msg
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("message not seen; got %d messages", len(b.messages(t)))
	return rpcMessage{}
}

func newTestServer(t *testing.T, open EngineFunc) (*Server, *syncBuffer, string) {
	t.Helper()
	if open == nil {
		open = func(_ context.Context, cfg *config.Config, _ *slog.Logger) (*check.Engine, error) {
			return check.NewEngineWith(cfg, &typoBackend{})
		}
	}
	out := &syncBuffer{}
	server := NewServer(bytes.NewReader(nil), out, ServerOptions{OpenEngine: open})
	root := t.TempDir()
	server.workspaceRoot = root
	t.Cleanup(server.closeAll)
	return server, out, root
}

func openDoc(t *testing.T, server *Server, uri, text string) {
	t.Helper()
	payload, _ := json.Marshal(didOpenTextDocumentParams{
		TextDocument: textDocumentItem{URI: uri, Version: 1, Text: text},
	})
	if err := server.handleDidOpen(&rpcMessage{Method: "textDocument/didOpen", Params: payload}); err != nil {
		t.Fatalf("didOpen: %v", err)
	}
}

func isPublish(uri string, n int) func(rpcMessage) bool {
	return func(msg rpcMessage) bool {
		if msg.Method != "textDocument/publishDiagnostics" {
			return false
		}
		var params publishDiagnosticsParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return false
		}
		return params.URI == uri && len(params.Diagnostics) == n
	}
}

func isStatus(status string) func(rpcMessage) bool {
	return func(msg rpcMessage) bool {
		if msg.Method != "prosa/status" {
			return false
		}
		var params statusParams
		return json.Unmarshal(msg.Params, &params) == nil && params.Status == status
	}
}

func TestPublishDiagnosticsMapping(t *testing.T) {
	server, out, root := newTestServer(t, nil)
	server.reconfigure(context.Background())

	uri := pathToURI(filepath.Join(root, "main.typ"))
	openDoc(t, server, uri, "One line.\nSee teh $x$ here.\n")

	msg := out.waitFor(t, isPublish(uri, 1))
	var params publishDiagnosticsParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		t.Fatal(err)
	}
	got := params.Diagnostics[0]
	if got.Range.Start.Line != 1 || got.Range.Start.Character != 4 || got.Range.End.Character != 7 {
		t.Fatalf("unexpected range: %+v", got.Range)
	}
	if got.Code != "TYPO" || got.Source != "prosa" || got.Severity != 3 {
		t.Fatalf("unexpected diagnostic: %+v", got)
	}
	if len(got.Data) != 2 || got.Data[0] != "the" {
		t.Fatalf("replacements = %v", got.Data)
	}
	out.waitFor(t, isStatus(statusIdle))
}

func TestConfigErrorReportsStatus(t *testing.T) {
	server, out, root := newTestServer(t, func(context.Context, *config.Config, *slog.Logger) (*check.Engine, error) {
		return nil, errors.New("java not found")
	})
	server.reconfigure(context.Background())
	openDoc(t, server, pathToURI(filepath.Join(root, "main.typ")), "text")

	msg := out.waitFor(t, isStatus(statusError))
	var params statusParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(params.Message, "java not found") {
		t.Fatalf("status message = %q", params.Message)
	}
}

func TestFailedLanguageKeepsDiagnostics(t *testing.T) {
	server, out, root := newTestServer(t, nil)
	path := filepath.Join(root, "main.typ")
	uri := pathToURI(path)
	tg := &target{main: path, uri: uri, published: make(map[string][]published)}

	result := func(langs map[string]error, diags ...diag.Diagnostic) *check.Result {
		fs := source.NewFileSet()
		id := fs.AddVirtual(path, []byte("Hello teh.\nBonjour teh.\n"))
		bag := diag.NewBag(0)
		for _, d := range diags {
			d.Primary.File = id
			bag.Add(d)
		}
		res := &check.Result{FileSet: fs, Bag: bag}
		for tag, err := range langs {
			res.Languages = append(res.Languages, check.LangResult{Tag: tag, Err: err})
		}
		return res
	}
	en := diag.Diagnostic{RuleID: "EN", Lang: "en", Message: "en", Primary: source.Span{Start: 6, End: 9}}
	fr := diag.Diagnostic{RuleID: "FR", Lang: "fr", Message: "fr", Primary: source.Span{Start: 19, End: 22}}

	server.publishResult(tg, result(map[string]error{"en": nil, "fr": nil}, en, fr))
	out.waitFor(t, isPublish(uri, 2))

	// fr fails and en is clean
	server.publishResult(tg, result(map[string]error{"en": nil, "fr": errors.New("timeout")}))
	msgs := out.messages(t)
	var last publishDiagnosticsParams
	if err := json.Unmarshal(msgs[len(msgs)-1].Params, &last); err != nil {
		t.Fatal(err)
	}
	if len(last.Diagnostics) != 1 || last.Diagnostics[0].Code != "FR" {
		t.Fatalf("diagnostics after failure = %+v", last.Diagnostics)
	}

	// fr recovers clean
	server.publishResult(tg, result(map[string]error{"en": nil, "fr": nil}))
	out.waitFor(t, isPublish(uri, 0))
}

func TestCodeActionQuickFix(t *testing.T) {
	server, out, _ := newTestServer(t, nil)
	rng := lspRange{Start: position{Line: 1, Character: 4}, End: position{Line: 1, Character: 7}}
	params := codeActionParams{
		TextDocument: textDocumentIdentifier{URI: "file:///doc/main.typ"},
		Range:        rng,
		Context: codeActionContext{Diagnostics: []lspDiagnostic{
			{Range: rng, Source: "prosa", Code: "TYPO", Message: "typo", Data: []string{"the", "tech"}},
			{Range: rng, Source: "other", Data: []string{"ignored"}},
		}},
	}
	payload, _ := json.Marshal(params)
	if err := server.handleCodeAction(&rpcMessage{ID: json.RawMessage(`7`), Method: "textDocument/codeAction", Params: payload}); err != nil {
		t.Fatalf("codeAction: %v", err)
	}
	msg := out.waitFor(t, func(m rpcMessage) bool { return string(m.ID) == "7" })
	var actions []codeAction
	if err := json.Unmarshal(msg.Result, &actions); err != nil {
		t.Fatal(err)
	}
	if len(actions) != 2 {
		t.Fatalf("actions = %+v", actions)
	}
	if actions[0].Title != `Replace with "the"` || !actions[0].IsPreferred || actions[1].IsPreferred {
		t.Fatalf("unexpected actions: %+v", actions)
	}
	edits := actions[1].Edit.Changes["file:///doc/main.typ"]
	if len(edits) != 1 || edits[0].NewText != "tech" || edits[0].Range != rng {
		t.Fatalf("edits = %+v", edits)
	}
}

func TestInitializeShutdownExit(t *testing.T) {
	var in bytes.Buffer
	for _, m := range []string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"rootUri":"file:///tmp/ws"}}`,
		`{"jsonrpc":"2.0","id":2,"method":"textDocument/hover","params":{}}`,
		`{"jsonrpc":"2.0","id":3,"method":"shutdown"}`,
		`{"jsonrpc":"2.0","method":"exit"}`,
	} {
		if err := writeMessage(&in, []byte(m)); err != nil {
			t.Fatal(err)
		}
	}
	out := &syncBuffer{}
	server := NewServer(&in, out, ServerOptions{Version: "1.2.3"})
	if err := server.Run(context.Background()); !errors.Is(err, ErrExit) {
		t.Fatalf("Run = %v, want ErrExit", err)
	}
	msgs := out.messages(t)
	if len(msgs) != 3 {
		t.Fatalf("got %d messages", len(msgs))
	}
	var init initializeResult
	if err := json.Unmarshal(msgs[0].Result, &init); err != nil {
		t.Fatal(err)
	}
	if init.ServerInfo.Version != "1.2.3" || init.Capabilities.CodeActionProvider == nil || init.Capabilities.TextDocumentSync.Change != 2 {
		t.Fatalf("initialize result = %+v", init)
	}
	if msgs[1].Error == nil || msgs[1].Error.Code != -32601 {
		t.Fatalf("hover answered with %+v", msgs[1])
	}
	if server.workspaceRoot != filepath.FromSlash("/tmp/ws") {
		t.Fatalf("workspace root = %q", server.workspaceRoot)
	}
}

func TestExitWithoutShutdown(t *testing.T) {
	var in bytes.Buffer
	if err := writeMessage(&in, []byte(`{"jsonrpc":"2.0","method":"exit"}`)); err != nil {
		t.Fatal(err)
	}
	server := NewServer(&in, &syncBuffer{}, ServerOptions{})
	if err := server.Run(context.Background()); !errors.Is(err, ErrExitWithoutShutdown) {
		t.Fatalf("Run = %v", err)
	}
}

func TestURIRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dir with space", "ch 1.typ")
	uri := pathToURI(path)
	if !strings.Contains(uri, "dir%20with%20space") {
		t.Fatalf("uri not escaped: %s", uri)
	}
	if got := uriToPath(uri); got != path {
		t.Fatalf("uriToPath = %q, want %q", got, path)
	}
	if canonicalURI("untitled:Untitled-1") != "" {
		t.Fatalf("non-file uri accepted")
	}
}

func TestRangeForSpanUTF16(t *testing.T) {
	fs := source.NewFileSet()
	id := fs.AddVirtual("x.typ", []byte("a😀b\nschön teh"))
	file := fs.Get(id)
	r := rangeForSpan(file, source.Span{File: id, Start: 5, End: 6})
	if r.Start.Character != 3 || r.End.Character != 4 || r.Start.Line != 0 {
		t.Fatalf("emoji line range = %+v", r)
	}
	r = rangeForSpan(file, source.Span{File: id, Start: 14, End: 17})
	if r.Start.Line != 1 || r.Start.Character != 6 || r.End.Character != 9 {
		t.Fatalf("umlaut line range = %+v", r)
	}
}
