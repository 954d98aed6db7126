// Package backend defines the check operation shared by every grammar
// checking engine and the errors its variants report.
//
// Variants live in subpackages: remote (HTTP service), bundled (child
// server from a bundled distribution) and external (user-supplied
// artifact over stdio). All of them are safe for concurrent Check calls.
package backend

import (
	"context"
)

// Request is one check call.
type Request struct {
	Text   string
	Lang   string
	Region string
	// DisabledRules are suppressed server-side when the backend supports it.
	DisabledRules []string
}

// LanguageTag returns the language code sent to the engine, e.g. "de-DE".
func (r Request) LanguageTag() string {
	if r.Region == "" {
		return r.Lang
	}
	return r.Lang + "-" + r.Region
}

// Match is a finding in request-local byte offsets.
type Match struct {
	Start        int
	End          int
	RuleID       string
	Category     string
	Message      string
	Replacements []string
	Spelling     bool
}

// Capabilities describe what a backend does on its own.
type Capabilities struct {
	Name string
	// ServerSideDisabling is true when DisabledRules are honoured by the engine.
	ServerSideDisabling bool
	// MaxConcurrent is the number of requests the backend processes in parallel.
	MaxConcurrent int
}

// Backend is a grammar checking engine.
type Backend interface {
	Check(ctx context.Context, req Request) ([]Match, error)
	Capabilities() Capabilities
	Close() error
}
