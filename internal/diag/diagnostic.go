package diag

import (
	"prosa/internal/source"
)

type Note struct {
	Span source.Span
	Msg  string
}

type FixEdit struct {
	Span    source.Span
	NewText string
}

type Fix struct {
	Title       string
	IsPreferred bool
	Edits       []FixEdit
}

type Diagnostic struct {
	Severity Severity
	Code     Code
	// RuleID is the checking engine's rule, e.g. MORFOLOGIK_RULE_EN_US.
	RuleID   string
	Category string
	// Lang is the language-region tag the text was checked with.
	Lang    string
	Message string
	Primary source.Span
	Notes   []Note
	Fixes   []Fix
}

// Label returns the short identifier shown to users: the rule id when the
// diagnostic comes from the checker, the code id otherwise.
func (d *Diagnostic) Label() string {
	if d.RuleID != "" {
		return d.RuleID
	}
	return d.Code.ID()
}

// Replacements returns the replacement texts of the fixes in order.
func (d *Diagnostic) Replacements() []string {
	out := make([]string, 0, len(d.Fixes))
	for _, f := range d.Fixes {
		if len(f.Edits) == 1 {
			out = append(out, f.Edits[0].NewText)
		}
	}
	return out
}
