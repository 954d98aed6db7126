package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func reassemble(chunks []Chunk) string {
	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.Text[c.Context:])
	}
	return sb.String()
}

func TestHardSplitExample(t *testing.T) {
	// 1000 bytes, limit 400, the only boundary is far from the second limit.
	text := strings.Repeat("a", 350) + " " + strings.Repeat("b", 649)
	chunks := Split(text, Options{MaxSize: 400})
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, c := range chunks {
		if want := i == 2; c.HardSplit != want {
			t.Errorf("chunk %d HardSplit = %v, want %v", i, c.HardSplit, want)
		}
	}
	if got := HardSplits(chunks); len(got) != 1 || got[0] != 751 {
		t.Fatalf("HardSplits = %v, want [751]", got)
	}
	if reassemble(chunks) != text {
		t.Fatalf("round trip failed")
	}
}

func TestBoundaryPreference(t *testing.T) {
	tests := []struct {
		name string
		text string
		size int
		want string // own text of the first chunk
	}{
		{"paragraph beats sentence", "One. Two\n\nThree. Four five six", 22, "One. Two\n\n"},
		{"sentence beats whitespace", "One two. Three four five", 20, "One two. "},
		{"whitespace", "alpha beta gamma delta", 12, "alpha beta "},
		{"closing quote", "He said \"stop.\" Then left quickly", 25, "He said \"stop.\" "},
		{"fits", "short", 10, "short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Split(tt.text, Options{MaxSize: tt.size})
			if chunks[0].Text != tt.want {
				t.Fatalf("first chunk = %q, want %q", chunks[0].Text, tt.want)
			}
			if reassemble(chunks) != tt.text {
				t.Fatalf("round trip failed")
			}
		})
	}
}

func TestCutBeforeSpaceIsNotHard(t *testing.T) {
	chunks := Split("abcd efgh", Options{MaxSize: 4})
	for i, c := range chunks {
		if c.HardSplit {
			t.Fatalf("chunk %d %q marked as hard split", i, c.Text)
		}
	}
	if chunks[0].Text != "abcd" || reassemble(chunks) != "abcd efgh" {
		t.Fatalf("chunks = %+v", chunks)
	}
}

func TestNeverSplitsRunes(t *testing.T) {
	text := strings.Repeat("é", 300) // 600 bytes, no whitespace
	chunks := Split(text, Options{MaxSize: 101})
	for i, c := range chunks {
		if !utf8.ValidString(c.Text) {
			t.Fatalf("chunk %d is not valid UTF-8", i)
		}
		if len(c.Text) > 101 {
			t.Fatalf("chunk %d has %d bytes", i, len(c.Text))
		}
		if i > 0 && !c.HardSplit {
			t.Fatalf("chunk %d should be a hard split", i)
		}
	}
	if reassemble(chunks) != text {
		t.Fatalf("round trip failed")
	}
}

func TestRuneLargerThanLimit(t *testing.T) {
	text := "😀😀"
	chunks := Split(text, Options{MaxSize: 2})
	if len(chunks) != 2 || chunks[0].Text != "😀" {
		t.Fatalf("chunks = %+v", chunks)
	}
}

func TestLookback(t *testing.T) {
	text := "The first sentence. The second sentence. The third one here."
	chunks := Split(text, Options{MaxSize: 21, Lookback: 12})
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if i == 0 && c.Context != 0 {
			t.Fatalf("first chunk has context")
		}
		if c.Context > 0 {
			ctx := c.Text[:c.Context]
			if ctx[0] == ' ' || c.Base > 0 && text[c.Base-1] != ' ' {
				t.Fatalf("chunk %d context %q does not start at a word", i, ctx)
			}
			if c.Context > 12 {
				t.Fatalf("chunk %d context too long: %d", i, c.Context)
			}
		}
		if c.Text[c.Context:] != text[c.Start():c.End()] {
			t.Fatalf("chunk %d offsets inconsistent", i)
		}
	}
	if reassemble(chunks) != text {
		t.Fatalf("round trip failed: %q", reassemble(chunks))
	}
	if chunks[1].Owns(0) {
		t.Fatalf("context bytes must not be owned")
	}
}

func TestRoundTripMixedText(t *testing.T) {
	text := strings.Repeat("Grüße aus Köln. ", 40) + "\n\n" + strings.Repeat("x", 90) + " Ende."
	for _, size := range []int{7, 33, 64, 100, 1000} {
		for _, lookback := range []int{0, 10} {
			chunks := Split(text, Options{MaxSize: size, Lookback: lookback})
			if reassemble(chunks) != text {
				t.Fatalf("size %d lookback %d: round trip failed", size, lookback)
			}
			prev := 0
			for _, c := range chunks {
				if c.Start() != prev {
					t.Fatalf("size %d: gap or overlap at %d", size, c.Start())
				}
				if c.End()-c.Start() > size {
					t.Fatalf("size %d: chunk own region too long", size)
				}
				prev = c.End()
			}
		}
	}
}

func TestEmptyText(t *testing.T) {
	if got := Split("", Options{}); len(got) != 0 {
		t.Fatalf("Split(\"\") = %v", got)
	}
}
