package diag

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"prosa/internal/source"
)

// shortEntry is one output line of the short format.
type shortEntry struct {
	kind  string
	label string
	path  string
	pos   source.LineCol
	msg   string
}

// WriteShort prints one `kind LABEL path:line:col message` line per
// diagnostic, and per note when withNotes is set. Lines are sorted by
// location so the output is stable between runs; paths are relative to
// the FileSet base directory.
func WriteShort(w io.Writer, diags []Diagnostic, fs *source.FileSet, withNotes bool) error {
	if fs == nil {
		return nil
	}
	entries := make([]shortEntry, 0, len(diags))
	for i := range diags {
		d := &diags[i]
		label := d.Label()
		if e, ok := shortAt(fs, d.Primary); ok {
			e.kind, e.label, e.msg = strings.ToLower(d.Severity.String()), label, oneLine(d.Message)
			entries = append(entries, e)
		}
		if !withNotes {
			continue
		}
		for _, n := range d.Notes {
			if e, ok := shortAt(fs, n.Span); ok {
				e.kind, e.label, e.msg = "note", label, oneLine(n.Msg)
				entries = append(entries, e)
			}
		}
	}

	slices.SortStableFunc(entries, func(a, b shortEntry) int {
		return cmp.Or(
			cmp.Compare(a.path, b.path),
			cmp.Compare(a.pos.Line, b.pos.Line),
			cmp.Compare(a.pos.Col, b.pos.Col),
		)
	})

	bw := bufio.NewWriter(w)
	for _, e := range entries {
		fmt.Fprintf(bw, "%s %s %s:%d:%d %s\n", e.kind, e.label, e.path, e.pos.Line, e.pos.Col, e.msg)
	}
	return bw.Flush()
}

func shortAt(fs *source.FileSet, span source.Span) (shortEntry, bool) {
	if int(span.File) >= fs.Len() {
		return shortEntry{}, false
	}
	path := fs.Get(span.File).FormatPath("relative", fs.BaseDir())
	start, _ := fs.Resolve(span)
	return shortEntry{path: strings.TrimPrefix(filepath.ToSlash(path), "./"), pos: start}, true
}

// oneLine collapses line breaks so that every entry stays on its own line.
func oneLine(msg string) string {
	return strings.TrimSpace(strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(msg))
}
