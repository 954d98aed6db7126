package backend

import (
	"strings"
	"testing"
)

func TestDecodeLTConvertsUTF16Offsets(t *testing.T) {
	// "😀" is two UTF-16 units and four bytes; "ö" is one unit and two bytes.
	text := "😀 schön teh end"
	body := `{"matches":[{"message":"Possible typo","offset":9,"length":3,
		"replacements":[{"value":"the"},{"value":"ten"}],
		"rule":{"id":"GERMAN_SPELLER_RULE","issueType":"misspelling","category":{"id":"TYPOS"}}}]}`
	matches, err := DecodeLT(text, strings.NewReader(body))
	if err != nil {
		t.Fatalf("DecodeLT: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %+v", matches)
	}
	m := matches[0]
	if got := text[m.Start:m.End]; got != "teh" {
		t.Fatalf("match covers %q (%d..%d)", got, m.Start, m.End)
	}
	if !m.Spelling || m.Category != "TYPOS" || m.RuleID != "GERMAN_SPELLER_RULE" {
		t.Fatalf("match = %+v", m)
	}
	if len(m.Replacements) != 2 || m.Replacements[0] != "the" {
		t.Fatalf("replacements = %v", m.Replacements)
	}
}

func TestDecodeLTRejectsOutOfRange(t *testing.T) {
	body := `{"matches":[{"offset":2,"length":10,"rule":{"id":"X"}}]}`
	if _, err := DecodeLT("short", strings.NewReader(body)); err == nil {
		t.Fatalf("expected range error")
	}
}

func TestDecodeLTCapsReplacements(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`{"matches":[{"offset":0,"length":1,"rule":{"id":"R"},"replacements":[`)
	for i := range 20 {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(`{"value":"x"}`)
	}
	sb.WriteString(`]}]}`)
	matches, err := DecodeLT("a", strings.NewReader(sb.String()))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches[0].Replacements) != MaxReplacements {
		t.Fatalf("kept %d replacements", len(matches[0].Replacements))
	}
}

func TestIsSpellingRule(t *testing.T) {
	tests := []struct {
		id, issue, cat string
		want           bool
	}{
		{"MORFOLOGIK_RULE_EN_US", "", "", true},
		{"GERMAN_SPELLER_RULE", "", "", true},
		{"X", "misspelling", "", true},
		{"X", "", "TYPOS", true},
		{"UPPERCASE_SENTENCE_START", "typographical", "CASING", false},
	}
	for _, tt := range tests {
		t.Run(tt.id+tt.issue+tt.cat, func(t *testing.T) {
			if got := IsSpellingRule(tt.id, tt.issue, tt.cat); got != tt.want {
				t.Fatalf("got %v", got)
			}
		})
	}
}

func TestRequestLanguageTag(t *testing.T) {
	if got := (Request{Lang: "de", Region: "DE"}).LanguageTag(); got != "de-DE" {
		t.Fatalf("tag = %q", got)
	}
	if got := (Request{Lang: "fr"}).LanguageTag(); got != "fr" {
		t.Fatalf("tag = %q", got)
	}
}

func TestErrorKinds(t *testing.T) {
	var err error = &ConnectionError{Endpoint: "http://x", Attempts: 3, Err: ErrClosed}
	if !IsConnection(err) || IsLaunch(err) || IsConfig(err) {
		t.Fatalf("kind detection wrong for %v", err)
	}
	if !strings.Contains(err.Error(), "3 attempt") {
		t.Fatalf("message = %q", err.Error())
	}
	if !IsConfig(&ConfigError{Field: "jar_location", Msg: "missing"}) {
		t.Fatalf("config error not detected")
	}
}
