package lsp

import (
	"fmt"
	"sort"

	"prosa/internal/check"
	"prosa/internal/diag"
	"prosa/internal/source"
)

// publishResult replaces what t published. Languages that failed in res
// keep their previous diagnostics.
func (s *Server) publishResult(t *target, res *check.Result) {
	next := make(map[string][]published)
	for _, d := range res.Bag.Items() {
		file := res.FileSet.Get(d.Primary.File)
		uri := pathToURI(file.Path)
		next[uri] = append(next[uri], published{lang: d.Lang, diag: toLSPDiagnostic(res.FileSet, &d)})
	}
	failed := make(map[string]bool)
	for _, l := range res.Failed() {
		failed[l.Tag] = true
	}

	s.mu.Lock()
	if t.published == nil {
		// target was stopped while the check ran
		s.mu.Unlock()
		return
	}
	prev := t.published
	for uri, items := range prev {
		for _, p := range items {
			if p.lang != "" && failed[p.lang] {
				next[uri] = append(next[uri], p)
			}
		}
	}
	t.published = next
	s.mu.Unlock()

	uris := make([]string, 0, len(next)+len(prev))
	for uri := range next {
		uris = append(uris, uri)
	}
	for uri := range prev {
		if _, ok := next[uri]; !ok {
			uris = append(uris, uri)
		}
	}
	sort.Strings(uris)
	for _, uri := range uris {
		items := next[uri]
		list := make([]lspDiagnostic, 0, len(items))
		for _, p := range items {
			list = append(list, p.diag)
		}
		if err := s.sendPublish(uri, list); err != nil {
			s.log.Warn("publish diagnostics", "uri", uri, "err", err)
		}
	}
}

func toLSPDiagnostic(fs *source.FileSet, d *diag.Diagnostic) lspDiagnostic {
	file := fs.Get(d.Primary.File)
	out := lspDiagnostic{
		Range:    rangeForSpan(file, d.Primary),
		Severity: lspSeverity(d.Severity),
		Code:     d.Label(),
		Source:   "prosa",
		Message:  d.Message,
	}
	if repl := d.Replacements(); len(repl) > 0 {
		out.Data = repl
	}
	for _, n := range d.Notes {
		nf := fs.Get(n.Span.File)
		out.RelatedInformation = append(out.RelatedInformation, relatedInformation{
			Location: location{URI: pathToURI(nf.Path), Range: rangeForSpan(nf, n.Span)},
			Message:  n.Msg,
		})
	}
	return out
}

// lspSeverity maps to DiagnosticSeverity: 1 error, 2 warning, 3 information.
func lspSeverity(sev diag.Severity) int {
	switch sev {
	case diag.SevError:
		return 1
	case diag.SevWarning:
		return 2
	}
	return 3
}

func (s *Server) handleCodeAction(msg *rpcMessage) error {
	params, err := decodeParams[codeActionParams](msg)
	if err != nil {
		return s.sendError(msg.ID, codeInvalidParams, "invalid params")
	}
	uri := canonicalURI(params.TextDocument.URI)
	if uri == "" {
		uri = params.TextDocument.URI
	}
	return s.sendResponse(msg.ID, buildCodeActions(uri, params.Context.Diagnostics))
}

// buildCodeActions offers one quick fix per suggested replacement; the
// first suggestion of each diagnostic is preferred.
func buildCodeActions(uri string, diags []lspDiagnostic) []codeAction {
	actions := make([]codeAction, 0)
	for _, d := range diags {
		if d.Source != "prosa" {
			continue
		}
		for i, repl := range d.Data {
			actions = append(actions, codeAction{
				Title:       fmt.Sprintf("Replace with \"%s\"", repl),
				Kind:        "quickfix",
				Diagnostics: []lspDiagnostic{d},
				IsPreferred: i == 0,
				Edit: &workspaceEdit{Changes: map[string][]textEdit{
					uri: {{Range: d.Range, NewText: repl}},
				}},
			})
		}
	}
	return actions
}
