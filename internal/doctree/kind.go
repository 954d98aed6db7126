package doctree

// Kind is the closed set of node kinds the front end produces.
type Kind uint8

const (
	// Document is the root node of a compiled document.
	Document Kind = iota
	// Text is a run of words; Text holds the source slice.
	Text
	// Space is inter-word whitespace inside a paragraph.
	Space
	// Linebreak is an explicit `\` line break.
	Linebreak
	// Parbreak separates paragraphs.
	Parbreak
	// Symbol is an escape or shorthand rendered to a different string.
	Symbol
	// Heading is `= Title`; Level counts the `=`.
	Heading
	// Strong is `*...*`.
	Strong
	// Emph is `_..._`.
	Emph
	// Raw is inline or block `raw` text.
	Raw
	// MathInline is `$x$` without surrounding whitespace.
	MathInline
	// MathBlock is `$ x $` with surrounding whitespace.
	MathBlock
	// Citation is an `@key` reference.
	Citation
	// Label is `<name>`.
	Label
	// ListItem is a `-` or `+` item.
	ListItem
	// Bibliography is `#bibliography(...)`.
	Bibliography
	// Pagebreak is `#pagebreak()`.
	Pagebreak
	// Code is a function call without a content body.
	Code
	// Func is a function call with a content body.
	Func
	// Include wraps the tree of an included file.
	Include

	// NumKinds is the number of kinds; it is not a kind itself.
	NumKinds
)

var kindNames = [NumKinds]string{
	Document:     "document",
	Text:         "text",
	Space:        "space",
	Linebreak:    "linebreak",
	Parbreak:     "parbreak",
	Symbol:       "symbol",
	Heading:      "heading",
	Strong:       "strong",
	Emph:         "emph",
	Raw:          "raw",
	MathInline:   "math-inline",
	MathBlock:    "math-block",
	Citation:     "citation",
	Label:        "label",
	ListItem:     "list-item",
	Bibliography: "bibliography",
	Pagebreak:    "pagebreak",
	Code:         "code",
	Func:         "func",
	Include:      "include",
}

func (k Kind) String() string {
	if k < NumKinds {
		return kindNames[k]
	}
	return "invalid"
}

// ParseKind maps a configuration name back to its Kind.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), true
		}
	}
	return 0, false
}

// IsBlock reports whether the kind starts its own paragraph.
func (k Kind) IsBlock() bool {
	switch k {
	case Heading, ListItem, MathBlock, Bibliography, Include:
		return true
	default:
		return false
	}
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, NumKinds)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}
