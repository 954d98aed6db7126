package markup

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"prosa/internal/doctree"
	"prosa/internal/source"
)

// scope is the language context in force while parsing a content block.
type scope struct {
	lang   string
	region string
}

type parser struct {
	c   *compiler
	cur Cursor
}

func (p *parser) node(kind doctree.Kind, m Mark, sc scope) *doctree.Node {
	return &doctree.Node{Kind: kind, Span: p.cur.SpanFrom(m), Lang: sc.lang, Region: sc.region}
}

func (p *parser) problem(code, msg string, span source.Span) {
	p.c.report(Problem{Code: code, Message: msg, Span: span})
}

// parseContent parses markup until EOF or one of the stop bytes. The stop
// byte itself is left for the caller. Inline containers also stop before a
// paragraph break.
func (p *parser) parseContent(floor uint32, stops string, sc scope, inline bool) []*doctree.Node {
	var nodes []*doctree.Node
	for !p.cur.EOF() {
		b := p.cur.Peek()
		if strings.IndexByte(stops, b) >= 0 {
			return nodes
		}
		switch {
		case isBlank(b) || b == '\n':
			ws := p.whitespace(stops, sc)
			if ws.Kind == doctree.Parbreak && inline {
				p.cur.Reset(Mark(ws.Span.Start))
				return nodes
			}
			nodes = appendNode(nodes, ws)
		case b == '\\':
			nodes = appendNode(nodes, p.escape(sc))
		case b == '/' && p.cur.PeekAt(1) == '/' && p.cur.Prev() != ':':
			p.lineComment()
		case b == '/' && p.cur.PeekAt(1) == '*':
			p.blockComment()
		case b == '=' && p.cur.AtLineStart(floor) && p.headingMarker() > 0:
			nodes = appendNode(nodes, p.heading(floor, stops, sc))
		case (b == '-' || b == '+') && p.cur.PeekAt(1) == ' ' && p.cur.AtLineStart(floor):
			nodes = appendNode(nodes, p.listItem(floor, stops, sc))
		case b == '*':
			nodes = appendNode(nodes, p.delimited(doctree.Strong, '*', floor, stops, sc))
		case b == '_':
			nodes = appendNode(nodes, p.delimited(doctree.Emph, '_', floor, stops, sc))
		case b == '`':
			nodes = appendNode(nodes, p.raw(sc))
		case b == '$':
			nodes = appendNode(nodes, p.math(sc))
		case b == '@' && isWordByte(p.cur.PeekAt(1)) && !isWordByte(p.cur.Prev()):
			nodes = appendNode(nodes, p.citation(sc))
		case b == '<' && p.labelLen() > 0:
			nodes = appendNode(nodes, p.label(sc))
		case b == '#' && isIdentStart(p.cur.PeekAt(1)):
			nodes = appendNode(nodes, p.hash(&sc)...)
		case b == '[':
			nodes = appendNode(nodes, p.brackets(sc)...)
		case b == '~':
			nodes = appendNode(nodes, p.symbol(1, "\u00a0", sc))
		case p.cur.HasPrefix("---"):
			nodes = appendNode(nodes, p.symbol(3, "—", sc))
		case p.cur.HasPrefix("--"):
			nodes = appendNode(nodes, p.symbol(2, "–", sc))
		case p.cur.HasPrefix("..."):
			nodes = appendNode(nodes, p.symbol(3, "…", sc))
		default:
			nodes = appendNode(nodes, p.text(stops, sc))
		}
	}
	return nodes
}

// appendNode merges consecutive whitespace nodes. Only comments can sit
// between two of them, so the merged span may cover a comment.
func appendNode(nodes []*doctree.Node, add ...*doctree.Node) []*doctree.Node {
	for _, n := range add {
		if n == nil {
			continue
		}
		if k := len(nodes); k > 0 {
			last := nodes[k-1]
			lastWS := last.Kind == doctree.Space || last.Kind == doctree.Parbreak
			if lastWS && (n.Kind == doctree.Space || n.Kind == doctree.Parbreak) && last.Span.File == n.Span.File {
				merged := *last
				merged.Span = last.Span.Cover(n.Span)
				if n.Kind == doctree.Parbreak {
					merged.Kind = doctree.Parbreak
					merged.Text = ""
				}
				merged.Verbatim = false
				nodes[k-1] = &merged
				continue
			}
		}
		nodes = append(nodes, n)
	}
	return nodes
}

func (p *parser) whitespace(stops string, sc scope) *doctree.Node {
	m := p.cur.Mark()
	newlines := 0
	for !p.cur.EOF() {
		b := p.cur.Peek()
		if b == '\n' {
			if strings.IndexByte(stops, '\n') >= 0 {
				break
			}
			newlines++
		} else if !isBlank(b) {
			break
		}
		p.cur.Bump()
	}
	if newlines >= 2 {
		return p.node(doctree.Parbreak, m, sc)
	}
	n := p.node(doctree.Space, m, sc)
	n.Text = " "
	n.Verbatim = p.cur.TextFrom(m) == " "
	return n
}

func (p *parser) escape(sc scope) *doctree.Node {
	m := p.cur.Mark()
	p.cur.Bump()
	next := p.cur.Peek()
	switch {
	case p.cur.EOF() || next == '\n' || isBlank(next):
		n := p.node(doctree.Linebreak, m, sc)
		n.Text = "\n"
		return n
	case next == 'u' && p.cur.PeekAt(1) == '{':
		p.cur.Advance(2)
		hm := p.cur.Mark()
		for !p.cur.EOF() && p.cur.Peek() != '}' {
			p.cur.Bump()
		}
		code, err := strconv.ParseUint(p.cur.TextFrom(hm), 16, 32)
		p.cur.Eat('}')
		if err != nil || !utf8.ValidRune(rune(code)) {
			p.problem("bad-escape", "invalid unicode escape", p.cur.SpanFrom(m))
			return nil
		}
		n := p.node(doctree.Symbol, m, sc)
		n.Text = string(rune(code))
		return n
	default:
		r, size := utf8.DecodeRune(p.cur.File.Content[p.cur.Off:p.cur.Limit])
		p.cur.Advance(uint32(size)) //nolint:gosec // размер руны не больше 4
		n := p.node(doctree.Symbol, m, sc)
		n.Text = string(r)
		return n
	}
}

func (p *parser) lineComment() {
	for !p.cur.EOF() && p.cur.Peek() != '\n' {
		p.cur.Bump()
	}
}

func (p *parser) blockComment() {
	m := p.cur.Mark()
	p.cur.Advance(2)
	depth := 1
	for !p.cur.EOF() && depth > 0 {
		switch {
		case p.cur.EatPrefix("/*"):
			depth++
		case p.cur.EatPrefix("*/"):
			depth--
		default:
			p.cur.Bump()
		}
	}
	if depth > 0 {
		p.problem("unclosed", "unclosed block comment", p.cur.SpanFrom(m))
	}
}

// headingMarker returns the heading level at the cursor, or 0.
func (p *parser) headingMarker() int {
	level := 0
	for p.cur.PeekAt(uint32(level)) == '=' { //nolint:gosec // уровень заголовка мал
		level++
	}
	next := p.cur.PeekAt(uint32(level)) //nolint:gosec // уровень заголовка мал
	if next == ' ' || next == '\t' || next == '\n' || next == 0 {
		return level
	}
	return 0
}

func (p *parser) heading(floor uint32, stops string, sc scope) *doctree.Node {
	m := p.cur.Mark()
	level := p.headingMarker()
	p.cur.Advance(uint32(level)) //nolint:gosec // уровень заголовка мал
	p.cur.SkipBlanks()
	children := p.parseContent(floor, stops+"\n", sc, true)
	n := p.node(doctree.Heading, m, sc)
	n.Level = level
	n.Children = trimSpace(children)
	return n
}

func (p *parser) listItem(floor uint32, stops string, sc scope) *doctree.Node {
	m := p.cur.Mark()
	p.cur.Advance(2)
	children := p.parseContent(floor, stops+"\n", sc, true)
	n := p.node(doctree.ListItem, m, sc)
	n.Children = trimSpace(children)
	return n
}

func (p *parser) delimited(kind doctree.Kind, delim byte, floor uint32, stops string, sc scope) *doctree.Node {
	m := p.cur.Mark()
	p.cur.Bump()
	children := p.parseContent(floor, stops+string(delim), sc, true)
	if !p.cur.Eat(delim) {
		p.problem("unclosed", "unclosed "+kind.String()+" delimiter", p.cur.SpanFrom(m))
	}
	n := p.node(kind, m, sc)
	n.Children = children
	return n
}

func (p *parser) raw(sc scope) *doctree.Node {
	m := p.cur.Mark()
	ticks := 0
	for p.cur.Peek() == '`' {
		p.cur.Bump()
		ticks++
	}
	if ticks == 2 {
		return p.node(doctree.Raw, m, sc)
	}
	fence := strings.Repeat("`", ticks)
	if ticks >= 3 {
		// язык блока: ```rust
		for isWordByte(p.cur.Peek()) {
			p.cur.Bump()
		}
	}
	body := p.cur.Mark()
	for !p.cur.EOF() && !p.cur.HasPrefix(fence) {
		p.cur.Bump()
	}
	text := p.cur.TextFrom(body)
	if !p.cur.EatPrefix(fence) {
		p.problem("unclosed", "unclosed raw text", p.cur.SpanFrom(m))
	}
	n := p.node(doctree.Raw, m, sc)
	n.Text = strings.TrimSpace(text)
	return n
}

func (p *parser) math(sc scope) *doctree.Node {
	m := p.cur.Mark()
	p.cur.Bump()
	body := p.cur.Mark()
	for !p.cur.EOF() && p.cur.Peek() != '$' {
		if p.cur.Peek() == '\\' {
			p.cur.Bump()
		}
		p.cur.Bump()
	}
	text := p.cur.TextFrom(body)
	if !p.cur.Eat('$') {
		p.problem("unclosed", "unclosed math", p.cur.SpanFrom(m))
	}
	kind := doctree.MathInline
	if len(text) > 0 && isSpace(text[0]) && isSpace(text[len(text)-1]) {
		kind = doctree.MathBlock
	}
	n := p.node(kind, m, sc)
	n.Text = strings.TrimSpace(text)
	return n
}

func (p *parser) citation(sc scope) *doctree.Node {
	m := p.cur.Mark()
	p.cur.Bump()
	for isLabelByte(p.cur.Peek()) {
		p.cur.Bump()
	}
	// точка или двоеточие в конце относятся к предложению
	for prev := p.cur.Prev(); prev == '.' || prev == ':'; prev = p.cur.Prev() {
		p.cur.Off--
	}
	n := p.node(doctree.Citation, m, sc)
	n.Text = p.cur.TextFrom(m)
	n.Verbatim = true
	if p.cur.Peek() == '[' {
		n.Children = p.contentBlock(sc)
		n.Span = p.cur.SpanFrom(m)
		n.Verbatim = false
	}
	return n
}

func (p *parser) labelLen() int {
	n := 1
	for isLabelByte(p.cur.PeekAt(uint32(n))) { //nolint:gosec // длина метки мала
		n++
	}
	if n == 1 || p.cur.PeekAt(uint32(n)) != '>' { //nolint:gosec // длина метки мала
		return 0
	}
	return n + 1
}

func (p *parser) label(sc scope) *doctree.Node {
	m := p.cur.Mark()
	p.cur.Advance(uint32(p.labelLen())) //nolint:gosec // длина метки мала
	return p.node(doctree.Label, m, sc)
}

func (p *parser) symbol(width uint32, text string, sc scope) *doctree.Node {
	m := p.cur.Mark()
	p.cur.Advance(width)
	n := p.node(doctree.Symbol, m, sc)
	n.Text = text
	return n
}

func (p *parser) text(stops string, sc scope) *doctree.Node {
	m := p.cur.Mark()
	p.cur.Bump()
	for !p.cur.EOF() {
		b := p.cur.Peek()
		if isSpace(b) || strings.IndexByte(stops, b) >= 0 {
			break
		}
		if p.textBreak(b) {
			break
		}
		p.cur.Bump()
	}
	n := p.node(doctree.Text, m, sc)
	n.Text = p.cur.TextFrom(m)
	n.Verbatim = true
	return n
}

// textBreak reports whether b starts markup inside a word.
func (p *parser) textBreak(b byte) bool {
	switch b {
	case '\\', '*', '_', '`', '$', '#', '~', '<', '[':
		return true
	case '@':
		return !isWordByte(p.cur.Prev())
	case '/':
		next := p.cur.PeekAt(1)
		return next == '*' || (next == '/' && p.cur.Prev() != ':')
	case '-':
		return p.cur.HasPrefix("--")
	case '.':
		return p.cur.HasPrefix("...")
	}
	return false
}

// contentBlock parses `[...]` at the cursor. The block ignores the stop
// bytes of its surroundings.
func (p *parser) contentBlock(sc scope) []*doctree.Node {
	m := p.cur.Mark()
	p.cur.Bump()
	children := p.parseContent(p.cur.Off, "]", sc, false)
	if !p.cur.Eat(']') {
		p.problem("unclosed", "unclosed content block", p.cur.SpanFrom(m))
	}
	return children
}

// brackets keeps balanced square brackets in running text as text.
func (p *parser) brackets(sc scope) []*doctree.Node {
	m := p.cur.Mark()
	p.cur.Bump()
	open := p.node(doctree.Text, m, sc)
	open.Text, open.Verbatim = "[", true
	out := []*doctree.Node{open}
	out = appendNode(out, p.parseContent(p.cur.Off, "]", sc, false)...)
	cm := p.cur.Mark()
	if p.cur.Eat(']') {
		closing := p.node(doctree.Text, cm, sc)
		closing.Text, closing.Verbatim = "]", true
		out = append(out, closing)
	}
	return out
}

func trimSpace(nodes []*doctree.Node) []*doctree.Node {
	for len(nodes) > 0 && nodes[len(nodes)-1].Kind == doctree.Space {
		nodes = nodes[:len(nodes)-1]
	}
	for len(nodes) > 0 && nodes[0].Kind == doctree.Space {
		nodes = nodes[1:]
	}
	return nodes
}

func isBlank(b byte) bool { return b == ' ' || b == '\t' || b == '\r' }

func isSpace(b byte) bool { return isBlank(b) || b == '\n' }

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isWordByte(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9') || b >= 0x80
}

func isLabelByte(b byte) bool {
	return isWordByte(b) || b == '-' || b == ':' || b == '.'
}
