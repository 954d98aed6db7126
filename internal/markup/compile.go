// Package markup is a small front end for Typst-flavoured markup. It reads a
// main file, expands includes and produces a doctree with provenance for
// every node.
package markup

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"prosa/internal/doctree"
	"prosa/internal/source"
)

// Problem is a non-fatal issue found while compiling.
type Problem struct {
	Code    string
	Message string
	Span    source.Span
}

func (p Problem) Error() string {
	return p.Code + ": " + p.Message
}

// Overlay maps absolute, slash-separated paths to unsaved buffer contents.
type Overlay map[string][]byte

// Lookup returns the overlay content for path.
func (o Overlay) Lookup(path string) ([]byte, bool) {
	if o == nil {
		return nil, false
	}
	b, ok := o[filepath.ToSlash(filepath.Clean(path))]
	return b, ok
}

// Options control a compile pass.
type Options struct {
	// Root bounds includes; defaults to the directory of the main file.
	Root string
	// Overlay replaces disk contents for open editor buffers.
	Overlay Overlay
	// DefaultLang is the language in force before any set rule.
	DefaultLang string
}

type compiler struct {
	fs       *source.FileSet
	opts     Options
	root     string
	stack    []string
	problems []Problem
}

// Compile parses main and everything it includes into a document tree.
// Failing to read main is an error; include failures are Problems.
func Compile(fs *source.FileSet, main string, opts Options) (*doctree.Node, []Problem, error) {
	absMain, err := filepath.Abs(main)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve %s: %w", main, err)
	}
	root := opts.Root
	if root == "" {
		root = filepath.Dir(absMain)
	}
	if root, err = filepath.Abs(root); err != nil {
		return nil, nil, fmt.Errorf("resolve root %s: %w", opts.Root, err)
	}
	if opts.DefaultLang == "" {
		opts.DefaultLang = "en"
	}

	c := &compiler{fs: fs, opts: opts, root: root}
	id, err := c.load(absMain)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", main, err)
	}
	doc := c.parseFile(id, scope{lang: opts.DefaultLang})
	return doc, c.problems, nil
}

func (c *compiler) report(p Problem) {
	c.problems = append(c.problems, p)
}

func (c *compiler) load(abs string) (source.FileID, error) {
	if content, ok := c.opts.Overlay.Lookup(abs); ok {
		return c.fs.AddVirtual(abs, content), nil
	}
	return c.fs.Load(abs)
}

func (c *compiler) parseFile(id source.FileID, sc scope) *doctree.Node {
	file := c.fs.Get(id)
	c.stack = append(c.stack, filepath.Clean(filepath.FromSlash(file.Path)))
	defer func() { c.stack = c.stack[:len(c.stack)-1] }()

	p := &parser{c: c, cur: NewCursor(file)}
	children := p.parseContent(0, "", sc, false)
	return &doctree.Node{
		Kind:     doctree.Document,
		Span:     source.Span{File: id, Start: 0, End: p.cur.Limit},
		Lang:     sc.lang,
		Region:   sc.region,
		Children: children,
	}
}

// include resolves target relative to the including file, or to the root
// when target is absolute, and parses it in the includer's language scope.
func (c *compiler) include(from *source.File, target string, at source.Span, sc scope) *doctree.Node {
	var abs string
	if strings.HasPrefix(target, "/") {
		abs = filepath.Join(c.root, filepath.FromSlash(target))
	} else {
		abs = filepath.Join(filepath.Dir(filepath.FromSlash(from.Path)), filepath.FromSlash(target))
	}
	abs = filepath.Clean(abs)

	if rel, err := filepath.Rel(c.root, abs); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		c.report(Problem{Code: "include-outside-root", Message: fmt.Sprintf("include %q escapes the project root", target), Span: at})
		return nil
	}
	if i := slices.Index(c.stack, abs); i >= 0 {
		chain := make([]string, 0, len(c.stack)-i+1)
		for _, p := range c.stack[i:] {
			chain = append(chain, filepath.Base(p))
		}
		chain = append(chain, filepath.Base(abs))
		c.report(Problem{Code: "include-cycle", Message: "include cycle: " + strings.Join(chain, " -> "), Span: at})
		return nil
	}
	id, err := c.load(abs)
	if err != nil {
		c.report(Problem{Code: "include-missing", Message: fmt.Sprintf("cannot read include %q: %v", target, err), Span: at})
		return nil
	}

	doc := c.parseFile(id, sc)
	return &doctree.Node{
		Kind:     doctree.Include,
		Span:     at,
		Lang:     sc.lang,
		Region:   sc.region,
		Children: doc.Children,
	}
}
