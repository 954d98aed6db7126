// Package mapper turns checker matches on a checkable text into source
// diagnostics: it filters by profile, drops matches that do not correspond
// to one contiguous stretch of source, and projects the rest through the
// coordinate map.
package mapper

import (
	"fmt"
	"strings"

	"prosa/internal/backend"
	"prosa/internal/coordmap"
	"prosa/internal/diag"
	"prosa/internal/extract"
	"prosa/internal/profile"
)

// Input is everything known about one checkable text after checking.
type Input struct {
	Text *extract.Text
	// Matches are in text-absolute offsets, in text order.
	Matches []backend.Match
	// HardSplits are text offsets where the chunker cut without a boundary.
	HardSplits []int
	Profile    *profile.Profile
	// ServerFiltered is set when the backend already applied disabled rules.
	ServerFiltered bool
	Severity       diag.Severity
}

// Inconsistency is a match that could not be projected. It indicates a bug
// in chunking or mapping and is logged, never shown to users.
type Inconsistency struct {
	RuleID string
	Start  int
	End    int
	Reason string
}

func (i Inconsistency) Error() string {
	return fmt.Sprintf("match %s at %d..%d: %s", i.RuleID, i.Start, i.End, i.Reason)
}

// Stats count why matches were dropped.
type Stats struct {
	Matches     int
	Dictionary  int
	Disabled    int
	Straddling  int
	Placeholder int
	// DisabledLeaked counts disabled-rule matches returned by a backend that
	// claimed to filter them.
	DisabledLeaked int
}

// Output of Map.
type Output struct {
	Diagnostics     []diag.Diagnostic
	Inconsistencies []Inconsistency
	Stats           Stats
}

// Map filters and projects in.Matches.
func Map(in Input) Output {
	var out Output
	body := ""
	var cm *coordmap.Map
	if in.Text != nil {
		body, cm = in.Text.Body, in.Text.Map
	}
	for _, m := range in.Matches {
		out.Stats.Matches++
		if m.Start < 0 || m.End > len(body) || m.Start >= m.End {
			out.Inconsistencies = append(out.Inconsistencies, Inconsistency{m.RuleID, m.Start, m.End, "span outside checkable text"})
			continue
		}
		// 1. allowed words
		if m.Spelling && in.Profile.Allows(strings.TrimSpace(body[m.Start:m.End])) {
			out.Stats.Dictionary++
			continue
		}
		// 2. disabled rules
		if in.Profile.IsDisabled(m.RuleID) {
			out.Stats.Disabled++
			if in.ServerFiltered {
				out.Stats.DisabledLeaked++
			}
			continue
		}
		// 3. separators and forced cuts
		if straddles(m.Start, m.End, in.HardSplits) || !cm.Covered(m.Start, m.End) {
			out.Stats.Straddling++
			continue
		}
		// 4. projection
		entries := cm.Overlapping(m.Start, m.End)
		if onlyPlaceholders(entries) {
			out.Stats.Placeholder++
			continue
		}
		spans := cm.Project(m.Start, m.End)
		if len(spans) == 0 {
			out.Inconsistencies = append(out.Inconsistencies, Inconsistency{m.RuleID, m.Start, m.End, "no source range"})
			continue
		}
		// 5. one diagnostic per range
		replacements := usableReplacements(m.Replacements, placeholderTokens(body, entries))
		code := diag.CheckGrammar
		if m.Spelling {
			code = diag.CheckSpelling
		}
		for i, sp := range spans {
			d := diag.New(in.Severity, code, sp, m.Message)
			d.RuleID = m.RuleID
			d.Category = m.Category
			if in.Profile != nil {
				d.Lang = in.Profile.Tag()
			}
			for j, other := range spans {
				if j != i {
					d = d.WithNote(other, "continues here")
				}
			}
			// a replacement only makes sense for one contiguous range
			if len(spans) == 1 {
				for _, r := range replacements {
					d = d.WithReplacement(r)
				}
			}
			out.Diagnostics = append(out.Diagnostics, d)
		}
	}
	return out
}

// straddles reports whether a match touches a forced cut. Each side of a
// cut was checked without the other, so a match ending or starting at the
// cut only saw a fragment of the word.
func straddles(start, end int, cuts []int) bool {
	for _, c := range cuts {
		if start <= c && c <= end {
			return true
		}
	}
	return false
}

func onlyPlaceholders(entries []coordmap.Entry) bool {
	if len(entries) == 0 {
		return false
	}
	for _, e := range entries {
		if !e.Placeholder {
			return false
		}
	}
	return true
}

func placeholderTokens(body string, entries []coordmap.Entry) []string {
	var out []string
	for _, e := range entries {
		if e.Placeholder {
			if tok := strings.TrimSpace(body[e.Start:e.End]); tok != "" {
				out = append(out, tok)
			}
		}
	}
	return out
}

// usableReplacements drops suggestions that mention a placeholder token.
func usableReplacements(in, tokens []string) []string {
	if len(tokens) == 0 {
		return in
	}
	out := make([]string, 0, len(in))
next:
	for _, r := range in {
		for _, tok := range tokens {
			if strings.Contains(r, tok) {
				continue next
			}
		}
		out = append(out, r)
	}
	return out
}
