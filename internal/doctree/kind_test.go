package doctree_test

import (
	"testing"

	"prosa/internal/doctree"
	"prosa/internal/source"
)

func TestKindNamesRoundTrip(t *testing.T) {
	for _, k := range doctree.Kinds() {
		name := k.String()
		if name == "" || name == "invalid" {
			t.Fatalf("kind %d has no name", k)
		}
		got, ok := doctree.ParseKind(name)
		if !ok || got != k {
			t.Fatalf("ParseKind(%q) = %v,%v; want %v", name, got, ok, k)
		}
	}
	if _, ok := doctree.ParseKind("paragraph-ish"); ok {
		t.Fatalf("unknown name must not parse")
	}
	if doctree.NumKinds.String() != "invalid" {
		t.Fatalf("sentinel must not have a name")
	}
}

func TestWalkSkipsChildren(t *testing.T) {
	span := source.Span{}
	root := &doctree.Node{Kind: doctree.Document, Span: span, Children: []*doctree.Node{
		{Kind: doctree.Text, Text: "Der ", Span: span},
		{Kind: doctree.Code, Span: span, Children: []*doctree.Node{{Kind: doctree.Text, Text: "hidden"}}},
		{Kind: doctree.Text, Text: "Hund", Span: span},
	}}

	var seen []doctree.Kind
	doctree.Walk(root, func(n *doctree.Node) bool {
		seen = append(seen, n.Kind)
		return n.Kind != doctree.Code
	})
	if len(seen) != 4 {
		t.Fatalf("visited %v, want 4 nodes", seen)
	}
	if got := root.PlainText(); got != "Der hiddenHund" {
		t.Fatalf("PlainText = %q", got)
	}
}
