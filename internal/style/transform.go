// Package style turns document tree nodes into checkable segments according
// to a rule table. Transform is pure: the same tree and table always yield
// the same segments.
package style

import (
	"strings"

	"prosa/internal/doctree"
	"prosa/internal/source"
)

// Segment is a run of checkable text with its provenance.
type Segment struct {
	Text        string
	Span        source.Span
	Lang        string
	Region      string
	Verbatim    bool
	Placeholder bool
	// Separator segments carry no text and no source; extraction turns
	// them into paragraph breaks.
	Separator bool
}

// Transform renders node and its descendants in document order.
// Whitespace next to a separator or at either end is dropped.
func Transform(node *doctree.Node, table *Table) []Segment {
	var out []Segment
	transform(node, table, &out)
	return trimBlank(out)
}

func trimBlank(segs []Segment) []Segment {
	out := segs[:0]
	for i, s := range segs {
		if blank(s) {
			prevSep := len(out) == 0 || out[len(out)-1].Separator
			nextSep := i+1 == len(segs) || segs[i+1].Separator
			if prevSep || nextSep {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

func blank(s Segment) bool {
	return !s.Separator && !s.Placeholder && strings.TrimSpace(s.Text) == ""
}

func transform(n *doctree.Node, table *Table, out *[]Segment) {
	if n == nil {
		return
	}
	rule := table.Rule(n.Kind)
	switch rule.Effect {
	case Drop:
		return
	case Rewrite:
		block := n.Kind.IsBlock()
		if block {
			separate(n, out)
		}
		*out = append(*out, Segment{
			Text:        rule.Token,
			Span:        n.Span,
			Lang:        n.Lang,
			Region:      n.Region,
			Placeholder: true,
		})
		if block {
			separate(n, out)
		}
	case Unwrap:
		for _, c := range n.Children {
			transform(c, table, out)
		}
	case PaginateBefore:
		if n.Level >= 1 && n.Level <= rule.Level {
			separate(n, out)
		}
		identity(n, table, out)
	default:
		identity(n, table, out)
	}
}

func identity(n *doctree.Node, table *Table, out *[]Segment) {
	switch n.Kind {
	case doctree.Parbreak, doctree.Pagebreak:
		separate(n, out)
		return
	}

	block := n.Kind.IsBlock()
	if block {
		separate(n, out)
	}
	if n.Text != "" {
		*out = append(*out, Segment{
			Text:     n.Text,
			Span:     n.Span,
			Lang:     n.Lang,
			Region:   n.Region,
			Verbatim: n.Verbatim,
		})
	}
	for _, c := range n.Children {
		transform(c, table, out)
	}
	if block {
		separate(n, out)
	}
}

func separate(n *doctree.Node, out *[]Segment) {
	if k := len(*out); k > 0 && (*out)[k-1].Separator {
		return
	}
	*out = append(*out, Segment{Separator: true, Lang: n.Lang, Region: n.Region})
}
