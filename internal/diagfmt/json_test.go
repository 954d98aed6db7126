package diagfmt

import (
	"bytes"
	"encoding/json"
	"reflect"
	"testing"

	"prosa/internal/diag"
	"prosa/internal/source"
)

// TestJSONBasic проверяет базовое JSON форматирование
func TestJSONBasic(t *testing.T) {
	fs := source.NewFileSet()
	fileID := fs.AddVirtual("test.typ", []byte("= Titel\nDer teh Hund.\n"))

	bag := diag.NewBag(10)
	bag.Add(typoDiag(fileID, 12, 15))

	var buf bytes.Buffer
	opts := JSONOpts{
		IncludePositions: true,
		PathMode:         PathModeBasename,
		IncludeNotes:     true,
		IncludeFixes:     true,
		IncludePreviews:  true,
	}
	if err := JSON(&buf, bag, fs, opts); err != nil {
		t.Fatalf("JSON() error: %v", err)
	}

	var output DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &output); err != nil {
		t.Fatalf("Invalid JSON output: %v\nOutput: %s", err, buf.String())
	}
	if output.Count != 1 || output.Total != 1 {
		t.Fatalf("count=%d total=%d", output.Count, output.Total)
	}

	got := output.Diagnostics[0]
	if got.Severity != "WARNING" || got.Code != "CHK1002" || got.Rule != "MORFOLOGIK_RULE_DE_DE" || got.Lang != "de-DE" {
		t.Errorf("unexpected header fields: %+v", got)
	}
	want := LocationJSON{File: "test.typ", StartByte: 12, EndByte: 15, StartLine: 2, StartCol: 5, EndLine: 2, EndCol: 8}
	if got.Location != want {
		t.Errorf("location = %+v, want %+v", got.Location, want)
	}
	if !reflect.DeepEqual(got.Replacements, []string{"the", "tee"}) {
		t.Errorf("replacements = %v", got.Replacements)
	}
	if len(got.Fixes) != 2 || !got.Fixes[0].IsPreferred {
		t.Fatalf("fixes = %+v", got.Fixes)
	}
	edit := got.Fixes[0].Edits[0]
	if edit.OldText != "teh" || edit.NewText != "the" {
		t.Errorf("edit = %+v", edit)
	}
	if !reflect.DeepEqual(edit.BeforeLines, []string{"Der teh Hund."}) || !reflect.DeepEqual(edit.AfterLines, []string{"Der the Hund."}) {
		t.Errorf("preview = %v -> %v", edit.BeforeLines, edit.AfterLines)
	}
}

// TestJSONMax проверяет обрезку вывода
func TestJSONMax(t *testing.T) {
	fs := source.NewFileSet()
	fileID := fs.AddVirtual("m.typ", []byte("teh teh teh\n"))
	bag := diag.NewBag(0)
	for i := uint32(0); i < 3; i++ {
		bag.Add(typoDiag(fileID, i*4, i*4+3))
	}
	out := BuildDiagnosticsOutput(bag, fs, JSONOpts{Max: 2})
	if out.Count != 2 || out.Total != 3 {
		t.Fatalf("count=%d total=%d", out.Count, out.Total)
	}
	if out.Diagnostics[0].Fixes != nil || out.Diagnostics[0].Location.StartLine != 0 {
		t.Fatalf("fixes or positions included without asking: %+v", out.Diagnostics[0])
	}
}

func TestSarif(t *testing.T) {
	fs := source.NewFileSet()
	fileID := fs.AddVirtual("/work/doc/main.typ", []byte("Der teh Hund.\n"))
	bag := diag.NewBag(0)
	bag.Add(typoDiag(fileID, 4, 7))
	bag.Add(diag.NewWarning(diag.ExtIncludeMissing, source.Span{File: fileID, Start: 0, End: 3}, "cannot read include"))

	var buf bytes.Buffer
	if err := Sarif(&buf, bag, fs, SarifRunMeta{ToolName: "prosa", ToolVersion: "0.1.0", InvocationArgs: []string{"check", "main.typ"}}); err != nil {
		t.Fatal(err)
	}
	var log sarifLog
	if err := json.Unmarshal(buf.Bytes(), &log); err != nil {
		t.Fatalf("invalid SARIF: %v", err)
	}
	if log.Version != "2.1.0" || len(log.Runs) != 1 {
		t.Fatalf("log = %+v", log)
	}
	run := log.Runs[0]
	if len(run.Tool.Driver.Rules) != 2 || len(run.Results) != 2 {
		t.Fatalf("rules=%d results=%d", len(run.Tool.Driver.Rules), len(run.Results))
	}
	res := run.Results[0]
	if res.RuleID != "MORFOLOGIK_RULE_DE_DE" || res.Level != "warning" {
		t.Fatalf("result = %+v", res)
	}
	loc := res.Locations[0].PhysicalLocation
	if loc.ArtifactLocation.URI != "file:///work/doc/main.typ" || loc.Region.StartColumn != 5 || loc.Region.EndColumn != 8 {
		t.Fatalf("location = %+v", loc)
	}
	if len(res.Fixes) != 2 || res.Fixes[0].ArtifactChanges[0].Replacements[0].InsertedContent.Text != "the" {
		t.Fatalf("fixes = %+v", res.Fixes)
	}
	if run.Results[1].RuleID != "EXT2002" {
		t.Fatalf("second rule = %q", run.Results[1].RuleID)
	}
}
