// Package extract flattens a document tree into one checkable text per
// (language, region) and records where every byte came from.
package extract

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"prosa/internal/coordmap"
	"prosa/internal/doctree"
	"prosa/internal/markup"
	"prosa/internal/profile"
	"prosa/internal/source"
	"prosa/internal/style"
)

// Separator joins non-contiguous parts of one text. It is never covered by
// a map entry.
const Separator = "\n\n"

// Key identifies a checkable text.
type Key struct {
	Lang   string
	Region string
}

func (k Key) String() string {
	if k.Region == "" {
		return k.Lang
	}
	return k.Lang + "-" + k.Region
}

// Text is the checkable text for one key.
type Text struct {
	Key        Key
	Body       string
	Map        *coordmap.Map
	Unresolved bool
}

// Warning is a non-fatal extraction problem.
type Warning struct {
	Code    string
	Message string
	Span    source.Span
}

func (w Warning) Error() string { return w.Code + ": " + w.Message }

// Result is the output of one extraction pass.
type Result struct {
	Texts    []*Text
	Warnings []Warning
}

// Options control extraction.
type Options struct {
	Rules *style.Table
	Prefs profile.Preferences
	// DefaultLang applies to nodes that declare no language.
	DefaultLang string
}

type builder struct {
	sb  strings.Builder
	txt *Text
}

type resolved struct {
	key        Key
	unresolved bool
}

type extractor struct {
	opts     Options
	res      *Result
	byKey    map[Key]*builder
	cache    map[Key]resolved
	warned   map[string]bool
	cur      *builder
	sepAfter bool
}

// Extract walks doc in document order and builds the texts. Texts appear in
// the order their key first occurs.
func Extract(doc *doctree.Node, opts Options) *Result {
	if opts.Rules == nil {
		t := style.CheckTable()
		opts.Rules = &t
	}
	if opts.DefaultLang == "" {
		opts.DefaultLang = "en"
	}
	x := &extractor{
		opts:   opts,
		res:    &Result{},
		byKey:  make(map[Key]*builder),
		cache:  make(map[Key]resolved),
		warned: make(map[string]bool),
	}
	for _, seg := range style.Transform(doc, opts.Rules) {
		x.add(seg)
	}
	for _, t := range x.res.Texts {
		t.Body = x.byKey[t.Key].sb.String()
	}
	return x.res
}

func (x *extractor) add(seg style.Segment) {
	if seg.Separator {
		x.sepAfter = true
		return
	}
	if seg.Text == "" {
		return
	}
	r := x.resolve(seg)
	b := x.byKey[r.key]
	if b == nil {
		b = &builder{txt: &Text{Key: r.key, Map: coordmap.New(16), Unresolved: r.unresolved}}
		x.byKey[r.key] = b
		x.res.Texts = append(x.res.Texts, b.txt)
	}
	if (b != x.cur || x.sepAfter) && b.sb.Len() > 0 {
		b.sb.WriteString(Separator)
	}
	x.cur, x.sepAfter = b, false

	start := b.sb.Len()
	b.sb.WriteString(seg.Text)
	err := b.txt.Map.Append(coordmap.Entry{
		Start:       start,
		End:         b.sb.Len(),
		Span:        seg.Span,
		Verbatim:    seg.Verbatim,
		Placeholder: seg.Placeholder,
	})
	if err != nil {
		x.res.Warnings = append(x.res.Warnings, Warning{Code: "map", Message: err.Error(), Span: seg.Span})
	}
}

// resolve maps the declared language of a segment to a text key.
func (x *extractor) resolve(seg style.Segment) resolved {
	declared := Key{Lang: seg.Lang, Region: seg.Region}
	if declared.Lang == "" {
		declared.Lang = x.opts.DefaultLang
	}
	if r, ok := x.cache[declared]; ok {
		return r
	}

	r := resolved{}
	base, err := language.ParseBase(declared.Lang)
	if err != nil {
		r = resolved{key: Key{Lang: strings.ToLower(declared.Lang)}, unresolved: true}
		x.warn("unresolved-language", fmt.Sprintf("unknown language %q; text is checked with language detection", declared.Lang), seg.Span)
		x.cache[declared] = r
		return r
	}
	r.key.Lang = base.String()

	switch {
	case declared.Region != "":
		region, err := language.ParseRegion(declared.Region)
		if err != nil {
			x.warn("unresolved-region", fmt.Sprintf("unknown region %q for %s", declared.Region, r.key.Lang), seg.Span)
		} else {
			r.key.Region = region.String()
		}
	default:
		if region, ok := x.opts.Prefs.Region(r.key.Lang); ok {
			r.key.Region = region
		}
	}
	x.cache[declared] = r
	return r
}

func (x *extractor) warn(code, msg string, span source.Span) {
	if x.warned[msg] {
		return
	}
	x.warned[msg] = true
	x.res.Warnings = append(x.res.Warnings, Warning{Code: code, Message: msg, Span: span})
}

// CompileWarnings converts front-end problems into extraction warnings.
func CompileWarnings(problems []markup.Problem) []Warning {
	out := make([]Warning, 0, len(problems))
	for _, p := range problems {
		out = append(out, Warning{Code: p.Code, Message: p.Message, Span: p.Span})
	}
	return out
}
