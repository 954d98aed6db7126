package markup

import (
	"strings"

	"prosa/internal/doctree"
)

// hash parses a `#` expression. Set rules mutate sc for the rest of the
// enclosing content block.
func (p *parser) hash(sc *scope) []*doctree.Node {
	m := p.cur.Mark()
	p.cur.Bump()
	name := p.ident()

	switch name {
	case "set":
		p.setRule(sc)
		return nil
	case "include":
		return []*doctree.Node{p.include(m, *sc)}
	case "let", "import", "show":
		p.skipLine()
		return []*doctree.Node{p.node(doctree.Code, m, *sc)}
	}

	var args Args
	argsOK := true
	argText, hasArgs := "", false
	if p.cur.Peek() == '(' {
		argText, hasArgs = p.balanced('(', ')')
		if hasArgs {
			var err error
			args, err = parseArgs(argText)
			argsOK = err == nil
		}
	}

	inner := *sc
	if name == "text" && hasArgs {
		if !argsOK {
			p.problem("bad-args", "cannot parse text arguments", p.cur.SpanFrom(m))
		}
		applyLang(&inner, args)
	}

	var children []*doctree.Node
	hasBody := false
	for p.cur.Peek() == '[' {
		hasBody = true
		children = appendNode(children, p.contentBlock(inner)...)
	}

	var kind doctree.Kind
	switch {
	case name == "bibliography":
		kind = doctree.Bibliography
	case name == "pagebreak" || name == "colbreak":
		kind = doctree.Pagebreak
	case name == "parbreak":
		kind = doctree.Parbreak
	case name == "linebreak":
		n := p.node(doctree.Linebreak, m, *sc)
		n.Text = "\n"
		return []*doctree.Node{n}
	case hasBody:
		kind = doctree.Func
	default:
		kind = doctree.Code
	}
	n := p.node(kind, m, inner)
	n.Children = children
	if kind == doctree.Bibliography || kind == doctree.Pagebreak || kind == doctree.Parbreak {
		n.Lang, n.Region = sc.lang, sc.region
	}
	return []*doctree.Node{n}
}

// ident reads a dotted identifier; a trailing dot belongs to the sentence.
func (p *parser) ident() string {
	m := p.cur.Mark()
	for isWordByte(p.cur.Peek()) || p.cur.Peek() == '-' || p.cur.Peek() == '.' {
		if p.cur.Peek() == '.' && !isIdentStart(p.cur.PeekAt(1)) {
			break
		}
		p.cur.Bump()
	}
	return p.cur.TextFrom(m)
}

func (p *parser) setRule(sc *scope) {
	m := p.cur.Mark()
	p.cur.SkipBlanks()
	target := p.ident()
	if p.cur.Peek() != '(' {
		p.skipLine()
		return
	}
	argText, ok := p.balanced('(', ')')
	if !ok || target != "text" {
		return
	}
	args, err := parseArgs(argText)
	if err != nil {
		p.problem("bad-args", "cannot parse text arguments: "+err.Error(), p.cur.SpanFrom(m))
		return
	}
	applyLang(sc, args)
}

// applyLang copies lang/region arguments into sc. A region set without a
// language keeps the current language.
func applyLang(sc *scope, args Args) {
	if lang, ok := args.Named["lang"]; ok {
		lang, region, _ := strings.Cut(lang, "-")
		sc.lang = strings.ToLower(lang)
		sc.region = strings.ToUpper(region)
	}
	if region, ok := args.Named["region"]; ok {
		sc.region = strings.ToUpper(region)
	}
}

func (p *parser) include(m Mark, sc scope) *doctree.Node {
	p.cur.SkipBlanks()
	if p.cur.Peek() != '"' {
		p.skipLine()
		p.problem("include-malformed", "include expects a string path", p.cur.SpanFrom(m))
		return nil
	}
	lit, ok := p.stringLit()
	if !ok {
		p.problem("include-malformed", "unterminated include path", p.cur.SpanFrom(m))
		return nil
	}
	return p.c.include(p.cur.File, lit, p.cur.SpanFrom(m), sc)
}

// stringLit reads a double-quoted string with backslash escapes.
func (p *parser) stringLit() (string, bool) {
	p.cur.Bump()
	var sb strings.Builder
	for !p.cur.EOF() {
		b := p.cur.Bump()
		switch b {
		case '"':
			return sb.String(), true
		case '\\':
			sb.WriteByte(p.cur.Bump())
		case '\n':
			return sb.String(), false
		default:
			sb.WriteByte(b)
		}
	}
	return sb.String(), false
}

// balanced consumes a bracketed group and returns its inner text.
// Strings inside the group may contain the brackets.
func (p *parser) balanced(open, closing byte) (string, bool) {
	m := p.cur.Mark()
	p.cur.Bump()
	body := p.cur.Mark()
	depth := 1
	for !p.cur.EOF() {
		switch b := p.cur.Peek(); b {
		case '"':
			p.stringLit()
			continue
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				inner := p.cur.TextFrom(body)
				p.cur.Bump()
				return inner, true
			}
		}
		p.cur.Bump()
	}
	p.problem("unclosed", "unclosed argument list", p.cur.SpanFrom(m))
	return "", false
}

func (p *parser) skipLine() {
	for !p.cur.EOF() && p.cur.Peek() != '\n' {
		p.cur.Bump()
	}
}
