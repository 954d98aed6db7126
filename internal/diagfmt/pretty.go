package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"prosa/internal/diag"
	"prosa/internal/source"
)

type palette struct {
	err, warn, info, code, caret, gutter, help *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		err:    color.New(color.FgRed, color.Bold),
		warn:   color.New(color.FgYellow, color.Bold),
		info:   color.New(color.FgCyan, color.Bold),
		code:   color.New(color.Bold),
		caret:  color.New(color.FgGreen, color.Bold),
		gutter: color.New(color.FgBlue),
		help:   color.New(color.FgGreen),
	}
	for _, c := range []*color.Color{p.err, p.warn, p.info, p.code, p.caret, p.gutter, p.help} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) severity(sev diag.Severity) *color.Color {
	switch sev {
	case diag.SevError:
		return p.err
	case diag.SevWarning:
		return p.warn
	}
	return p.info
}

// Pretty форматирует диагностики в человекочитаемый вид.
// Идёт по bag.Items() (ожидается bag.Sort() заранее).
// Для каждого diag печатает:
// <path>:<line>:<col>: <SEV> <CODE>: <Message> [<lang>]
// затем строку контекста с подчёркиванием ^~~~ по Span, затем Notes и замены.
func Pretty(w io.Writer, bag *diag.Bag, fs *source.FileSet, opts PrettyOpts) {
	pal := newPalette(opts.Color)
	items := bag.Items()
	for i := range items {
		d := &items[i]
		if i > 0 {
			fmt.Fprintln(w)
		}
		prettyOne(w, d, fs, opts, pal)
	}
}

func prettyOne(w io.Writer, d *diag.Diagnostic, fs *source.FileSet, opts PrettyOpts, pal palette) {
	file := fs.Get(d.Primary.File)
	start, end := fs.Resolve(d.Primary)
	header := fmt.Sprintf("%s:%d:%d: %s %s: %s",
		displayPath(fs, file, opts.PathMode), start.Line, start.Col,
		pal.severity(d.Severity).Sprint(d.Severity.String()),
		pal.code.Sprint(d.Label()),
		d.Message)
	if d.Lang != "" {
		header += " [" + d.Lang + "]"
	}
	fmt.Fprintln(w, header)

	line := file.GetLine(start.Line)
	endCol := end.Col
	if end.Line != start.Line {
		endCol = uint32(len(line)) + 1
	}
	writeContext(w, line, start.Line, start.Col, endCol, opts.Width, pal)

	if opts.ShowNotes {
		for _, n := range d.Notes {
			nf := fs.Get(n.Span.File)
			ns, _ := fs.Resolve(n.Span)
			fmt.Fprintf(w, "  = note: %s:%d:%d: %s\n", displayPath(fs, nf, opts.PathMode), ns.Line, ns.Col, n.Msg)
		}
	}
	if opts.ShowFixes {
		if repl := d.Replacements(); len(repl) > 0 {
			quoted := make([]string, len(repl))
			for i, r := range repl {
				quoted[i] = fmt.Sprintf("%q", r)
			}
			fmt.Fprintf(w, "  = %s: replace with %s\n", pal.help.Sprint("help"), strings.Join(quoted, ", "))
		}
	}
}

// writeContext prints the source line and a caret underline. Columns are
// 1-based byte columns; the underline is aligned by display width.
func writeContext(w io.Writer, line string, lineNo, col, endCol uint32, width int, pal palette) {
	startByte := clampCol(line, col)
	endByte := max(clampCol(line, endCol), startByte)

	pad := displayWidth(line[:startByte])
	under := max(displayWidth(line[startByte:endByte]), 1)

	shown := expandTabs(line)
	if width > 0 && runewidth.StringWidth(shown) > width {
		shown = runewidth.Truncate(shown, width, "...")
	}
	gutter := fmt.Sprintf("%4d", lineNo)
	fmt.Fprintf(w, "%s %s %s\n", pal.gutter.Sprint(gutter), pal.gutter.Sprint("|"), shown)
	marker := "^" + strings.Repeat("~", under-1)
	fmt.Fprintf(w, "%s %s %s%s\n", strings.Repeat(" ", len(gutter)), pal.gutter.Sprint("|"), strings.Repeat(" ", pad), pal.caret.Sprint(marker))
}

func clampCol(line string, col uint32) int {
	if col == 0 {
		return 0
	}
	return min(int(col-1), len(line))
}

func expandTabs(s string) string {
	return strings.ReplaceAll(s, "\t", "    ")
}

func displayWidth(s string) int {
	return runewidth.StringWidth(expandTabs(s))
}
