// Package chunk splits checkable texts into size-bounded pieces on safe
// boundaries.
package chunk

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxSize is used when Options.MaxSize is not positive.
const DefaultMaxSize = 1000

// Chunk is one request-sized slice of a checkable text.
type Chunk struct {
	// Text[0] sits at Base in the parent text.
	Text string
	Base int
	// Context is the number of leading bytes that belong to the previous
	// chunk and are only sent for sentence context.
	Context int
	// HardSplit is set when the boundary at Base+Context was forced at the
	// size limit and falls inside a word.
	HardSplit bool
}

// Start returns the offset of the chunk's own region in the parent text.
func (c Chunk) Start() int { return c.Base + c.Context }

// End returns the end offset of the chunk in the parent text.
func (c Chunk) End() int { return c.Base + len(c.Text) }

// Owns reports whether a chunk-local range starts in the chunk's own region.
func (c Chunk) Owns(localStart int) bool { return localStart >= c.Context }

// Options configure splitting; sizes are in bytes.
type Options struct {
	MaxSize  int
	Lookback int
}

// Split covers text with chunks of at most MaxSize own bytes. Lookback
// context is added on top of MaxSize.
func Split(text string, opts Options) []Chunk {
	size := opts.MaxSize
	if size <= 0 {
		size = DefaultMaxSize
	}
	var out []Chunk
	pos := 0
	hard := false
	for pos < len(text) {
		end := len(text)
		forced := false
		if len(text)-pos > size {
			end = boundary(text, pos, pos+size)
			if end <= pos {
				end = hardCut(text, pos, pos+size)
				// разрез прямо перед пробелом не режет слово
				forced = !isSpace(text[end])
			}
		}
		ctx := pos
		if opts.Lookback > 0 && pos > 0 {
			ctx = contextStart(text, pos, opts.Lookback)
		}
		out = append(out, Chunk{
			Text:      text[ctx:end],
			Base:      ctx,
			Context:   pos - ctx,
			HardSplit: hard,
		})
		pos, hard = end, forced
	}
	return out
}

// HardSplits returns the parent-text offsets of forced boundaries.
func HardSplits(chunks []Chunk) []int {
	var out []int
	for _, c := range chunks {
		if c.HardSplit {
			out = append(out, c.Start())
		}
	}
	return out
}

// boundary returns the best split offset in (pos, limit], or pos when there
// is none. Paragraph breaks beat sentence ends, which beat whitespace.
func boundary(text string, pos, limit int) int {
	para, sentence, space := pos, pos, pos
	for i := limit; i > pos; i-- {
		if !isSpace(text[i-1]) {
			continue
		}
		if space == pos {
			space = i
		}
		if sentence == pos && i >= 2 && endsSentence(text[:i-1]) {
			sentence = i
		}
		if i >= 2 && text[i-2] == '\n' && text[i-1] == '\n' {
			para = i
			break
		}
	}
	switch {
	case para > pos:
		return para
	case sentence > pos:
		return sentence
	default:
		return space
	}
}

// endsSentence reports whether s ends with terminal punctuation, allowing
// closing quotes or brackets after it.
func endsSentence(s string) bool {
	s = strings.TrimRight(s, "\"')]»”’")
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '.', '!', '?', ':', ';':
		return true
	}
	return strings.HasSuffix(s, "…") || strings.HasSuffix(s, "。")
}

// hardCut backs limit off to a rune start. A rune longer than the whole
// window is taken in one piece.
func hardCut(text string, pos, limit int) int {
	end := limit
	for end > pos && !utf8.RuneStart(text[end]) {
		end--
	}
	if end == pos {
		_, size := utf8.DecodeRuneInString(text[pos:])
		end = pos + size
	}
	return end
}

// contextStart moves back up to lookback bytes from pos and then forward to
// the next word start. Without a word start in the window there is no context.
func contextStart(text string, pos, lookback int) int {
	from := max(0, pos-lookback)
	if from == 0 {
		return 0
	}
	for i := from; i < pos; i++ {
		if isSpace(text[i-1]) && !isSpace(text[i]) {
			return i
		}
	}
	return pos
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
