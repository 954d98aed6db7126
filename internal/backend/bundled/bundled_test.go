package bundled

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"prosa/internal/backend"
	"prosa/internal/backend/proc"
	"prosa/internal/backend/remote"
)

// With PROSA_FAKE_LT set the test binary stands in for the java runtime
// and serves a minimal LanguageTool API.
func TestMain(m *testing.M) {
	if os.Getenv("PROSA_FAKE_LT") == "" {
		os.Exit(m.Run())
	}
	os.Exit(fakeServer(os.Args[1:]))
}

func fakeServer(args []string) int {
	port := ""
	for i, a := range args {
		if a == "--port" && i+1 < len(args) {
			port = args[i+1]
		}
	}
	if len(args) < 3 || args[0] != "-cp" || args[2] != ServerClass || port == "" {
		fmt.Fprintln(os.Stderr, "unexpected arguments:", args)
		return 2
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/languages", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"English","code":"en","longCode":"en-US"}]`))
	})
	mux.HandleFunc("/v2/check", func(w http.ResponseWriter, r *http.Request) {
		text := r.FormValue("text")
		if text == "CRASH" {
			os.Exit(1)
		}
		var matches []string
		for i := 0; ; {
			j := strings.Index(text[i:], "teh")
			if j < 0 {
				break
			}
			matches = append(matches, fmt.Sprintf(`{"message":"typo","offset":%d,"length":3,"replacements":[{"value":"the"}],"rule":{"id":"MORFOLOGIK_RULE_EN_US","issueType":"misspelling"}}`, i+j))
			i += j + 3
		}
		_, _ = fmt.Fprintf(w, `{"matches":[%s]}`, strings.Join(matches, ","))
	})
	if err := http.ListenAndServe("127.0.0.1:"+port, mux); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func distribution(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ServerJar), []byte("PK"), 0o600); err != nil {
		t.Fatal(err)
	}
	return dir
}

func openFake(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(context.Background(), Options{
		Dir:     distribution(t),
		Java:    os.Args[0],
		Env:     []string{"PROSA_FAKE_LT=1"},
		Startup: 10 * time.Second,
		Remote:  remote.Options{Retries: 1, RetryInterval: time.Millisecond},
		Launch:  proc.LaunchOptions{Attempts: 2, Interval: 10 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestOpenRequiresDistribution(t *testing.T) {
	_, err := Open(context.Background(), Options{Dir: t.TempDir(), Java: os.Args[0]})
	if !backend.IsConfig(err) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
	if _, err := Open(context.Background(), Options{}); !backend.IsConfig(err) {
		t.Fatalf("empty dir: err = %v", err)
	}
}

func TestOpenRequiresJava(t *testing.T) {
	_, err := Open(context.Background(), Options{Dir: distribution(t), Java: filepath.Join(t.TempDir(), "java")})
	if !backend.IsConfig(err) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
}

func TestCheckThroughChildServer(t *testing.T) {
	b := openFake(t)
	matches, err := b.Check(context.Background(), backend.Request{Text: "fix teh bug", Lang: "en", Region: "US"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(matches) != 1 || matches[0].Start != 4 || !matches[0].Spelling {
		t.Fatalf("matches = %+v", matches)
	}
	if caps := b.Capabilities(); caps.Name != "bundled" || !caps.ServerSideDisabling {
		t.Fatalf("caps = %+v", caps)
	}
}

func TestRestartAfterUnexpectedExit(t *testing.T) {
	b := openFake(t)
	first := b.Pid()
	if first == 0 {
		t.Fatalf("no child running")
	}
	if _, err := b.Check(context.Background(), backend.Request{Text: "CRASH", Lang: "en"}); !backend.IsConnection(err) {
		t.Fatalf("crash request err = %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for b.Pid() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("child did not exit")
		}
		time.Sleep(10 * time.Millisecond)
	}
	matches, err := b.Check(context.Background(), backend.Request{Text: "teh", Lang: "en"})
	if err != nil {
		t.Fatalf("Check after restart: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %+v", matches)
	}
	if pid := b.Pid(); pid == 0 || pid == first {
		t.Fatalf("pid after restart = %d (was %d)", pid, first)
	}
}

func TestCloseStopsChild(t *testing.T) {
	b := openFake(t)
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if b.Pid() != 0 {
		t.Fatalf("child still running")
	}
	if _, err := b.Check(context.Background(), backend.Request{Text: "x", Lang: "en"}); !errors.Is(err, backend.ErrClosed) {
		t.Fatalf("err = %v", err)
	}
}
