package diagfmt

import (
	"bytes"
	"strings"
	"testing"

	"prosa/internal/diag"
	"prosa/internal/source"
)

func typoDiag(file source.FileID, start, end uint32) diag.Diagnostic {
	d := diag.New(diag.SevWarning, diag.CheckSpelling, source.Span{File: file, Start: start, End: end}, "Possible spelling mistake found.")
	d.RuleID = "MORFOLOGIK_RULE_DE_DE"
	d.Lang = "de-DE"
	return d.WithReplacement("the").WithReplacement("tee")
}

// TestPathModes проверяет различные режимы форматирования путей
func TestPathModes(t *testing.T) {
	fs := source.NewFileSetWithBase("/home/user/thesis")
	fileID := fs.AddVirtual("/home/user/thesis/chapters/intro.typ", []byte("Der teh Hund.\n"))

	bag := diag.NewBag(10)
	bag.Add(typoDiag(fileID, 4, 7))

	tests := []struct {
		name     string
		mode     PathMode
		contains string
	}{
		{"Absolute path", PathModeAbsolute, "/home/user/thesis/chapters/intro.typ:1:5"},
		{"Relative path", PathModeRelative, "chapters/intro.typ:1:5"},
		{"Basename only", PathModeBasename, "intro.typ:1:5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Pretty(&buf, bag, fs, PrettyOpts{PathMode: tt.mode})
			output := buf.String()

			if !strings.Contains(output, tt.contains) {
				t.Errorf("Expected output to contain %q, got:\n%s", tt.contains, output)
			}
			for _, want := range []string{"WARNING", "MORFOLOGIK_RULE_DE_DE", "Possible spelling mistake", "[de-DE]"} {
				if !strings.Contains(output, want) {
					t.Errorf("Expected %q in output:\n%s", want, output)
				}
			}
		})
	}
}

func TestPrettyCaretUsesDisplayWidth(t *testing.T) {
	fs := source.NewFileSet()
	fileID := fs.AddVirtual("a.typ", []byte("first\nschön teh\n"))
	bag := diag.NewBag(0)
	bag.Add(typoDiag(fileID, 13, 16))

	var buf bytes.Buffer
	Pretty(&buf, bag, fs, PrettyOpts{PathMode: PathModeBasename})
	lines := strings.Split(buf.String(), "\n")
	if len(lines) < 3 {
		t.Fatalf("output:\n%s", buf.String())
	}
	if lines[1] != "   2 | schön teh" {
		t.Fatalf("context line = %q", lines[1])
	}
	if lines[2] != "     |       ^~~" {
		t.Fatalf("caret line = %q", lines[2])
	}
}

func TestPrettyNotesAndFixes(t *testing.T) {
	fs := source.NewFileSet()
	fileID := fs.AddVirtual("test.typ", []byte("Der teh Hund.\n"))

	d := typoDiag(fileID, 4, 7).WithNote(source.Span{File: fileID, Start: 8, End: 12}, "checked as de-DE")
	bag := diag.NewBag(4)
	bag.Add(d)

	var buf bytes.Buffer
	Pretty(&buf, bag, fs, PrettyOpts{PathMode: PathModeBasename, ShowNotes: true, ShowFixes: true})
	output := buf.String()

	if !strings.Contains(output, "note: test.typ:1:9: checked as de-DE") {
		t.Fatalf("expected note with location, got:\n%s", output)
	}
	if !strings.Contains(output, `help: replace with "the", "tee"`) {
		t.Fatalf("expected replacements, got:\n%s", output)
	}
}

func TestPrettyColorToggle(t *testing.T) {
	fs := source.NewFileSet()
	fileID := fs.AddVirtual("c.typ", []byte("teh\n"))
	bag := diag.NewBag(0)
	bag.Add(typoDiag(fileID, 0, 3))

	var plain, colored bytes.Buffer
	Pretty(&plain, bag, fs, PrettyOpts{})
	Pretty(&colored, bag, fs, PrettyOpts{Color: true})
	if strings.Contains(plain.String(), "\x1b[") {
		t.Fatalf("plain output has escapes:\n%q", plain.String())
	}
	if !strings.Contains(colored.String(), "\x1b[") {
		t.Fatalf("colored output has no escapes:\n%q", colored.String())
	}
}

func TestPrettyTruncatesWideLines(t *testing.T) {
	fs := source.NewFileSet()
	fileID := fs.AddVirtual("w.typ", []byte("teh "+strings.Repeat("x", 100)+"\n"))
	bag := diag.NewBag(0)
	bag.Add(typoDiag(fileID, 0, 3))

	var buf bytes.Buffer
	Pretty(&buf, bag, fs, PrettyOpts{Width: 20})
	ctx := strings.Split(buf.String(), "\n")[1]
	if !strings.HasSuffix(ctx, "...") || len(ctx) > len("   1 | ")+20 {
		t.Fatalf("context line not truncated: %q", ctx)
	}
}
