// Package external drives a user-supplied checker artifact over
// line-delimited JSON on its standard streams.
package external

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"prosa/internal/backend"
	"prosa/internal/backend/proc"
)

const (
	DefaultTimeout   = 60 * time.Second
	HandshakeTimeout = 30 * time.Second
	maxLine          = 16 << 20
)

// Options configure the external backend.
type Options struct {
	// Artifact is an executable or a .jar file.
	Artifact string
	// Java overrides runtime discovery for .jar artifacts.
	Java string
	Args []string
	Env  []string
	// Timeout bounds one request.
	Timeout time.Duration
	Launch  proc.LaunchOptions
	Logger  *slog.Logger
}

// conn is one running artifact.
type conn struct {
	p     *proc.Process
	lines chan []byte
	quit  chan struct{}
	hello hello
}

func newConn(p *proc.Process) *conn {
	c := &conn{p: p, lines: make(chan []byte, 1), quit: make(chan struct{})}
	go readLines(p.Stdout, c.lines, c.quit)
	return c
}

func (c *conn) close() {
	close(c.quit)
	_ = c.p.Stdout.Close()
}

// Backend serializes requests to a single child.
type Backend struct {
	opts Options
	cmd  proc.Command
	log  *slog.Logger

	// mu keeps one request in flight.
	mu     sync.Mutex
	cur    *conn
	nextID uint64
	closed bool

	// caps читаются без mu: Check держит mu всё время запроса.
	caps atomic.Pointer[backend.Capabilities]
}

// Open checks the artifact and starts it. Missing artifacts and runtimes
// are configuration errors.
func Open(ctx context.Context, opts Options) (*Backend, error) {
	cmd, err := command(opts)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if opts.Launch.Logger == nil {
		opts.Launch.Logger = log
	}
	b := &Backend{opts: opts, cmd: cmd, log: log}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.start(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func command(opts Options) (proc.Command, error) {
	if opts.Artifact == "" {
		return proc.Command{}, &backend.ConfigError{Field: "jar_location", Msg: "no checker artifact configured"}
	}
	info, err := os.Stat(opts.Artifact)
	if err != nil {
		return proc.Command{}, &backend.ConfigError{Field: "jar_location", Msg: "checker artifact not found", Err: err}
	}
	if info.IsDir() {
		return proc.Command{}, &backend.ConfigError{Field: "jar_location", Msg: opts.Artifact + " is a directory"}
	}
	cmd := proc.Command{Dir: filepath.Dir(opts.Artifact), Env: opts.Env, Pipes: true}
	if strings.EqualFold(filepath.Ext(opts.Artifact), ".jar") {
		java, err := proc.Java(opts.Java)
		if err != nil {
			return proc.Command{}, err
		}
		cmd.Path = java
		cmd.Args = append([]string{"-jar", opts.Artifact}, opts.Args...)
		return cmd, nil
	}
	if info.Mode()&0o111 == 0 {
		return proc.Command{}, &backend.ConfigError{Field: "jar_location", Msg: opts.Artifact + " is not executable"}
	}
	cmd.Path = opts.Artifact
	cmd.Args = opts.Args
	return cmd, nil
}

// start launches the child and reads its hello. Callers hold b.mu.
func (b *Backend) start(ctx context.Context) error {
	var c *conn
	launch := b.opts.Launch
	launch.Ready = func(ctx context.Context, p *proc.Process) error {
		candidate := newConn(p)
		if err := candidate.handshake(ctx); err != nil {
			candidate.close()
			return err
		}
		c = candidate
		return nil
	}
	if _, err := proc.Launch(ctx, b.cmd, launch); err != nil {
		return err
	}
	b.cur = c
	b.caps.Store(&backend.Capabilities{
		Name:                "external:" + c.hello.Name,
		ServerSideDisabling: c.hello.DisableRules,
		MaxConcurrent:       1,
	})
	b.log.Info("external checker ready", "name", c.hello.Name, "version", c.hello.Version, "disable_rules", c.hello.DisableRules)
	return nil
}

func readLines(r io.Reader, out chan<- []byte, quit <-chan struct{}) {
	defer close(out)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		select {
		case out <- append([]byte(nil), line...):
		case <-quit:
			return
		}
	}
}

func (c *conn) handshake(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HandshakeTimeout)
	defer cancel()
	line, err := c.next(ctx)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	if err := json.Unmarshal(line, &c.hello); err != nil || c.hello.Type != "hello" {
		return fmt.Errorf("handshake: expected hello, got %.80q", line)
	}
	return nil
}

// errExited marks a child that went away mid-conversation.
var errExited = errors.New("checker exited")

func (c *conn) next(ctx context.Context) ([]byte, error) {
	select {
	case line, ok := <-c.lines:
		if !ok {
			<-c.p.Done()
			return nil, fmt.Errorf("%w: %v", errExited, c.p.Err())
		}
		return line, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// roundTrip sends req and waits for the response with the same id. Stale
// responses of abandoned requests are skipped.
func (c *conn) roundTrip(ctx context.Context, req request) (response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return response{}, err
	}
	data = append(data, '\n')
	if _, err := c.p.Stdin.Write(data); err != nil {
		return response{}, fmt.Errorf("%w: %v", errExited, err)
	}
	for {
		line, err := c.next(ctx)
		if err != nil {
			return response{}, err
		}
		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			return response{}, fmt.Errorf("malformed response %.80q: %w", line, err)
		}
		if resp.ID == req.ID {
			return resp, nil
		}
	}
}

// Check implements backend.Backend. A child that exits mid-request is
// restarted and the request is sent once more.
func (b *Backend) Check(ctx context.Context, req backend.Request) ([]backend.Match, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, backend.ErrClosed
	}

	attempts := 0
	for {
		attempts++
		matches, err := b.checkOnce(ctx, req)
		if err == nil {
			return matches, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if backend.IsLaunch(err) || backend.IsConfig(err) {
			return nil, err
		}
		if !errors.Is(err, errExited) || attempts > 1 {
			return nil, &backend.ConnectionError{Endpoint: b.cmd.String(), Attempts: attempts, Err: err}
		}
		b.log.Warn("external checker exited, restarting", "err", err)
	}
}

func (b *Backend) checkOnce(ctx context.Context, req backend.Request) ([]backend.Match, error) {
	if b.cur == nil || b.cur.p.Exited() {
		b.drop()
		if err := b.start(ctx); err != nil {
			return nil, err
		}
	}
	b.nextID++
	wire := request{ID: b.nextID, Type: "check", Text: req.Text, Language: req.LanguageTag()}
	if b.Capabilities().ServerSideDisabling {
		wire.DisabledRules = req.DisabledRules
	}

	rctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()
	resp, err := b.cur.roundTrip(rctx, wire)
	if err != nil {
		if errors.Is(err, errExited) {
			b.drop()
		}
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("checker: %s", resp.Error)
	}
	return backend.DecodeLT(req.Text, bytes.NewReader(resp.Result))
}

// drop forgets the current child. Callers hold b.mu.
func (b *Backend) drop() {
	if b.cur == nil {
		return
	}
	_ = b.cur.p.Stop(proc.StopGrace)
	b.cur.close()
	b.cur = nil
}

// Capabilities implements backend.Backend.
func (b *Backend) Capabilities() backend.Capabilities {
	if caps := b.caps.Load(); caps != nil {
		return *caps
	}
	return backend.Capabilities{MaxConcurrent: 1}
}

// Close stops the child.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.drop()
	return nil
}
