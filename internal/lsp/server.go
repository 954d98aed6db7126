// Package lsp serves prosa diagnostics to editors over the Language Server
// Protocol (Content-Length framed JSON-RPC on stdio).
package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"prosa/internal/cache"
	"prosa/internal/check"
	"prosa/internal/config"
	"prosa/internal/logging"
	"prosa/internal/scheduler"
)

var (
	// ErrExit signals a graceful shutdown after receiving "exit".
	ErrExit = errors.New("lsp exit")
	// ErrExitWithoutShutdown signals an "exit" without a preceding "shutdown".
	ErrExitWithoutShutdown = errors.New("lsp exit without shutdown")
)

const (
	statusIdle     = "idle"
	statusChecking = "checking"
	statusError    = "error"

	commandCheck = "prosa.check"
)

// JSON-RPC error codes.
const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// EngineFunc builds an engine for a configuration.
type EngineFunc func(ctx context.Context, cfg *config.Config, log *slog.Logger) (*check.Engine, error)

// ServerOptions configures LSP server behavior.
type ServerOptions struct {
	// OpenEngine defaults to check.NewEngine.
	OpenEngine EngineFunc
	// Disk is the shared on-disk result cache; nil disables it.
	Disk    *cache.Disk
	Logger  *slog.Logger
	Version string
}

// Server handles stdio JSON-RPC for prosa.
type Server struct {
	in     *bufio.Reader
	out    *bufio.Writer
	sendMu sync.Mutex
	mu     sync.Mutex
	// reconfMu serialises engine rebuilds.
	reconfMu sync.Mutex
	log      *slog.Logger

	host       *check.Host
	openEngine EngineFunc
	disk       *cache.Disk
	version    string
	handlers   map[string]func(*rpcMessage) error

	docs    map[string]*document
	targets map[string]*target
	cfg     *config.Config

	workspaceRoot     string
	settings          json.RawMessage
	shutdownRequested bool
	baseCtx           context.Context
}

// NewServer constructs a new LSP server.
func NewServer(in io.Reader, out io.Writer, opts ServerOptions) *Server {
	s := &Server{
		in:         bufio.NewReader(in),
		out:        bufio.NewWriter(out),
		log:        logging.OrDiscard(opts.Logger),
		host:       check.NewHost(nil),
		openEngine: opts.OpenEngine,
		disk:       opts.Disk,
		version:    opts.Version,
		docs:       make(map[string]*document),
		targets:    make(map[string]*target),
		cfg:        config.Default(),
		baseCtx:    context.Background(),
	}
	if s.openEngine == nil {
		s.openEngine = check.NewEngine
	}
	s.handlers = map[string]func(*rpcMessage) error{
		"initialize":                       s.handleInitialize,
		"initialized":                      func(*rpcMessage) error { s.reconfigure(s.baseCtx); return nil },
		"shutdown":                         s.handleShutdown,
		"exit":                             s.handleExit,
		"workspace/didChangeConfiguration": s.handleDidChangeConfiguration,
		"workspace/executeCommand":         s.handleExecuteCommand,
		"textDocument/didOpen":             s.handleDidOpen,
		"textDocument/didChange":           s.handleDidChange,
		"textDocument/didSave":             s.handleDidSave,
		"textDocument/didClose":            s.handleDidClose,
		"textDocument/codeAction":          s.handleCodeAction,
	}
	return s
}

// Run serves LSP requests until exit or end of input.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx
	defer s.closeAll()
	for {
		payload, err := readMessage(s.in)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		var msg rpcMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.log.Warn("malformed message", "err", err)
			continue
		}
		if msg.Method == "" {
			continue
		}
		if err := s.dispatch(&msg); err != nil {
			return err
		}
	}
}

func (s *Server) dispatch(msg *rpcMessage) error {
	if h, ok := s.handlers[msg.Method]; ok {
		return h(msg)
	}
	// неизвестные уведомления молча игнорируем
	if len(msg.ID) > 0 {
		return s.sendError(msg.ID, codeMethodNotFound, "method not found")
	}
	return nil
}

// decodeParams unmarshals msg.Params into a fresh T.
func decodeParams[T any](msg *rpcMessage) (T, error) {
	var params T
	if len(msg.Params) == 0 {
		return params, nil
	}
	err := json.Unmarshal(msg.Params, &params)
	return params, err
}

func (s *Server) handleInitialize(msg *rpcMessage) error {
	params, err := decodeParams[initializeParams](msg)
	if err != nil {
		return s.sendError(msg.ID, codeInvalidParams, "invalid params")
	}
	root := uriToPath(params.RootURI)
	if root == "" {
		root = params.RootPath
	}
	if root == "" && len(params.WorkspaceFolders) > 0 {
		root = uriToPath(params.WorkspaceFolders[0].URI)
	}
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}
	s.mu.Lock()
	s.workspaceRoot = root
	s.settings = params.InitializationOptions
	s.mu.Unlock()

	return s.sendResponse(msg.ID, initializeResult{
		Capabilities: serverCapabilities{
			// 2 = incremental sync
			TextDocumentSync:       textDocumentSyncOptions{OpenClose: true, Change: 2, Save: saveOptions{IncludeText: true}},
			CodeActionProvider:     &codeActionOptions{CodeActionKinds: []string{"quickfix"}},
			ExecuteCommandProvider: &executeCommandOptions{Commands: []string{commandCheck}},
		},
		ServerInfo: serverInfo{Name: "prosa", Version: s.version},
	})
}

func (s *Server) handleShutdown(msg *rpcMessage) error {
	s.mu.Lock()
	s.shutdownRequested = true
	s.mu.Unlock()
	s.closeAll()
	return s.sendResponse(msg.ID, nil)
}

func (s *Server) handleExit(*rpcMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdownRequested {
		return ErrExit
	}
	return ErrExitWithoutShutdown
}

func (s *Server) handleDidOpen(msg *rpcMessage) error {
	params, err := decodeParams[didOpenTextDocumentParams](msg)
	if err != nil {
		return err
	}
	uri := canonicalURI(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	doc := &document{
		uri:     uri,
		path:    uriToPath(uri),
		text:    params.TextDocument.Text,
		version: params.TextDocument.Version,
	}
	s.mu.Lock()
	var stale *target
	if old, ok := s.docs[uri]; ok {
		stale = s.detachLocked(old)
	}
	s.docs[uri] = doc
	t := s.attachLocked(doc)
	s.mu.Unlock()
	if stale != nil && stale != t {
		s.stopTarget(stale)
	}
	t.sched.Notify(scheduler.Open)
	return nil
}

// editDoc runs fn on the open buffer for uri under s.mu and returns the
// target that must be notified, if any.
func (s *Server) editDoc(rawURI string, fn func(*document)) *target {
	uri := canonicalURI(rawURI)
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uri]
	if !ok {
		return nil
	}
	fn(doc)
	return s.targets[doc.main]
}

func (s *Server) handleDidChange(msg *rpcMessage) error {
	params, err := decodeParams[didChangeTextDocumentParams](msg)
	if err != nil {
		return err
	}
	t := s.editDoc(params.TextDocument.URI, func(doc *document) {
		doc.text = applyChanges(doc.text, params.ContentChanges)
		doc.version = params.TextDocument.Version
	})
	if t != nil {
		t.sched.Notify(scheduler.Change)
	}
	return nil
}

func (s *Server) handleDidSave(msg *rpcMessage) error {
	params, err := decodeParams[didSaveTextDocumentParams](msg)
	if err != nil {
		return err
	}
	t := s.editDoc(params.TextDocument.URI, func(doc *document) {
		if params.Text != nil {
			doc.text = *params.Text
		}
	})
	if t != nil {
		t.sched.Notify(scheduler.Save)
	}
	return nil
}

func (s *Server) handleDidClose(msg *rpcMessage) error {
	params, err := decodeParams[didCloseTextDocumentParams](msg)
	if err != nil {
		return err
	}
	uri := canonicalURI(params.TextDocument.URI)
	s.mu.Lock()
	doc, ok := s.docs[uri]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.docs, uri)
	closed := s.detachLocked(doc)
	remaining := s.targets[doc.main]
	s.mu.Unlock()

	if closed != nil {
		s.stopTarget(closed)
		return nil
	}
	if remaining != nil {
		// the buffer no longer shadows the file on disk
		remaining.sched.Notify(scheduler.Change)
	}
	return nil
}

func (s *Server) handleExecuteCommand(msg *rpcMessage) error {
	params, err := decodeParams[executeCommandParams](msg)
	if err != nil {
		return s.sendError(msg.ID, codeInvalidParams, "invalid params")
	}
	if params.Command != commandCheck {
		return s.sendError(msg.ID, codeInvalidParams, fmt.Sprintf("unknown command %q", params.Command))
	}

	s.mu.Lock()
	picked := make(map[*target]struct{})
	for _, arg := range params.Arguments {
		var uri string
		if json.Unmarshal(arg, &uri) != nil {
			continue
		}
		if doc, ok := s.docs[canonicalURI(uri)]; ok && s.targets[doc.main] != nil {
			picked[s.targets[doc.main]] = struct{}{}
		}
	}
	// без аргументов проверяем все открытые документы
	if len(params.Arguments) == 0 {
		for _, t := range s.targets {
			picked[t] = struct{}{}
		}
	}
	s.mu.Unlock()

	for t := range picked {
		t.sched.Notify(scheduler.Request)
	}
	return s.sendResponse(msg.ID, nil)
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
}

type rpcErrorResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   rpcError        `json:"error"`
}

type rpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

func (s *Server) sendResponse(id json.RawMessage, result any) error {
	return s.send(rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) sendError(id json.RawMessage, code int, message string) error {
	return s.send(rpcErrorResponse{JSONRPC: "2.0", ID: id, Error: rpcError{Code: code, Message: message}})
}

func (s *Server) sendNotification(method string, params any) error {
	return s.send(rpcNotification{JSONRPC: "2.0", Method: method, Params: params})
}

func (s *Server) sendPublish(uri string, list []lspDiagnostic) error {
	if list == nil {
		list = []lspDiagnostic{}
	}
	return s.sendNotification("textDocument/publishDiagnostics", publishDiagnosticsParams{URI: uri, Diagnostics: list})
}

func (s *Server) sendStatus(uri, status, message string) {
	err := s.sendNotification("prosa/status", statusParams{URI: uri, Status: status, Message: message})
	if err != nil {
		s.log.Warn("send status", "uri", uri, "err", err)
	}
}

func (s *Server) send(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := writeMessage(s.out, payload); err != nil {
		return err
	}
	return s.out.Flush()
}
