package doctree

import (
	"strings"

	"prosa/internal/source"
)

// Node is one element of the resolved document tree.
type Node struct {
	Kind     Kind
	Span     source.Span
	Text     string // отрисованный текст для листьев
	Verbatim bool
	Level    int // уровень заголовка
	Lang     string
	Region   string
	Children []*Node
}

// Walk visits n and its descendants depth-first in document order.
// Returning false from fn skips the node's children.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}

// PlainText concatenates the Text of every leaf below n.
func (n *Node) PlainText() string {
	var sb strings.Builder
	Walk(n, func(c *Node) bool {
		if len(c.Children) == 0 {
			sb.WriteString(c.Text)
		}
		return true
	})
	return sb.String()
}

// Dump renders the tree as an indented outline; used by tests.
func Dump(n *Node) string {
	var sb strings.Builder
	var rec func(*Node, int)
	rec = func(c *Node, depth int) {
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(c.Kind.String())
		if c.Lang != "" {
			sb.WriteString(" [")
			sb.WriteString(c.Lang)
			if c.Region != "" {
				sb.WriteByte('-')
				sb.WriteString(c.Region)
			}
			sb.WriteByte(']')
		}
		if c.Text != "" {
			sb.WriteString(" ")
			sb.WriteString(quote(c.Text))
		}
		sb.WriteString(" @")
		sb.WriteString(c.Span.String())
		sb.WriteByte('\n')
		for _, ch := range c.Children {
			rec(ch, depth+1)
		}
	}
	if n != nil {
		rec(n, 0)
	}
	return sb.String()
}

func quote(s string) string {
	r := strings.NewReplacer("\n", `\n`, "\"", `\"`)
	return "\"" + r.Replace(s) + "\""
}
