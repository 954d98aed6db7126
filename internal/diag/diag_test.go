package diag

import (
	"strings"
	"testing"

	"prosa/internal/source"
)

func TestWriteShort(t *testing.T) {
	fs := source.NewFileSetWithBase("/workspace")
	main := fs.Add("/workspace/thesis/main.typ", []byte("a teh\nb\n"), 0)
	chapter := fs.Add("/workspace/thesis/ch1.typ", []byte("x\n"), 0)

	diags := []Diagnostic{
		New(SevWarning, ExtIncludeMissing, source.Span{File: chapter, Start: 0, End: 1}, "cannot read\ninclude"),
		{
			Severity: SevInfo,
			Code:     CheckSpelling,
			RuleID:   "MORFOLOGIK_RULE_EN_US",
			Message:  "Possible spelling mistake",
			Primary:  source.Span{File: main, Start: 2, End: 5},
			Notes:    []Note{{Span: source.Span{File: main, Start: 6, End: 7}, Msg: "continues here"}},
		},
	}

	expected := "warning EXT2002 thesis/ch1.typ:1:1 cannot read include\n" +
		"info MORFOLOGIK_RULE_EN_US thesis/main.typ:1:3 Possible spelling mistake\n" +
		"note MORFOLOGIK_RULE_EN_US thesis/main.typ:2:1 continues here\n"

	var sb strings.Builder
	if err := WriteShort(&sb, diags, fs, true); err != nil {
		t.Fatal(err)
	}
	if got := sb.String(); got != expected {
		t.Fatalf("unexpected short diagnostics:\nwant:\n%s\n\ngot:\n%s", expected, got)
	}

	sb.Reset()
	if err := WriteShort(&sb, diags, fs, false); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(sb.String(), "note ") {
		t.Fatalf("notes printed without withNotes:\n%s", sb.String())
	}
}

func TestBagSortAndDedup(t *testing.T) {
	b := NewBag(0)
	sp := func(start, end uint32) source.Span { return source.Span{File: 1, Start: start, End: end} }
	b.Add(Diagnostic{Code: CheckGrammar, RuleID: "B", Primary: sp(5, 6)})
	b.Add(Diagnostic{Code: CheckSpelling, RuleID: "A", Primary: sp(1, 2)})
	b.Add(Diagnostic{Code: CheckGrammar, RuleID: "B", Primary: sp(5, 6)})
	b.Add(Diagnostic{Severity: SevWarning, Code: ExtUnclosed, Primary: sp(1, 2)})
	b.Add(Diagnostic{Code: CheckGrammar, RuleID: "B", Primary: sp(5, 6), Message: "other text"})
	b.Sort()
	b.Dedup()
	if b.Len() != 4 {
		t.Fatalf("len = %d", b.Len())
	}
	items := b.Items()
	if items[0].Code != ExtUnclosed || items[1].RuleID != "A" || items[2].RuleID != "B" || items[3].Message != "other text" {
		t.Fatalf("order = %+v", items)
	}
	if b.HasErrors() {
		t.Fatalf("no error expected")
	}
}

func TestBagLimitAndFilter(t *testing.T) {
	b := NewBag(2)
	for i := range 3 {
		b.Add(Diagnostic{RuleID: string(rune('a' + i))})
	}
	if b.Len() != 2 || b.Dropped() != 1 {
		t.Fatalf("limit not applied: len %d dropped %d", b.Len(), b.Dropped())
	}
	b.Filter(func(d *Diagnostic) bool { return d.RuleID == "b" })
	if b.Len() != 1 || b.Items()[0].RuleID != "b" {
		t.Fatalf("filter = %+v", b.Items())
	}
}

func TestWithReplacement(t *testing.T) {
	d := New(SevInfo, CheckSpelling, source.Span{File: 1, Start: 4, End: 7}, "typo").
		WithReplacement("the").
		WithReplacement("then")
	if len(d.Fixes) != 2 || !d.Fixes[0].IsPreferred || d.Fixes[1].IsPreferred {
		t.Fatalf("fixes = %+v", d.Fixes)
	}
	if d.Fixes[0].Title != `Replace with "the"` || d.Fixes[0].Edits[0].Span != d.Primary {
		t.Fatalf("fix = %+v", d.Fixes[0])
	}
	if got := d.Replacements(); len(got) != 2 || got[1] != "then" {
		t.Fatalf("replacements = %v", got)
	}
}

func TestParseSeverity(t *testing.T) {
	tests := map[string]Severity{"": SevInfo, "Info": SevInfo, "warning": SevWarning, "error": SevError}
	for in, want := range tests {
		got, err := ParseSeverity(in)
		if err != nil || got != want {
			t.Errorf("ParseSeverity(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseSeverity("fatal"); err == nil {
		t.Errorf("expected error")
	}
}

func TestCodeIDs(t *testing.T) {
	if CheckSpelling.ID() != "CHK1002" || WarningCode("include-cycle").ID() != "EXT2003" || BackendFailed.ID() != "BCK3001" {
		t.Fatalf("ids: %s %s %s", CheckSpelling.ID(), WarningCode("include-cycle").ID(), BackendFailed.ID())
	}
}
