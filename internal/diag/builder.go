package diag

import (
	"strconv"

	"prosa/internal/source"
)

func New(sev Severity, code Code, primary source.Span, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Primary:  primary,
		Message:  msg,
		Notes:    nil,
		Fixes:    nil,
	}
}

func NewWarning(code Code, primary source.Span, msg string) Diagnostic {
	return New(SevWarning, code, primary, msg)
}

func (d Diagnostic) WithNote(sp source.Span, msg string) Diagnostic {
	d.Notes = append(d.Notes, Note{Span: sp, Msg: msg})
	return d
}

func (d Diagnostic) WithFix(title string, edits ...FixEdit) Diagnostic {
	d.Fixes = append(d.Fixes, Fix{Title: title, Edits: edits})
	return d
}

// WithReplacement adds a quick fix replacing the primary span. The first
// replacement is marked preferred.
func (d Diagnostic) WithReplacement(text string) Diagnostic {
	d.Fixes = append(d.Fixes, Fix{
		Title:       "Replace with " + strconv.Quote(text),
		IsPreferred: len(d.Fixes) == 0,
		Edits:       []FixEdit{{Span: d.Primary, NewText: text}},
	})
	return d
}
