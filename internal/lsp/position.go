package lsp

import (
	"slices"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"fortio.org/safecast"

	"prosa/internal/source"
)

// Позиции LSP считаются в UTF-16 code units, смещения source.Span в байтах.

// utf16Units counts the UTF-16 length of the whole runes in b.
func utf16Units(b []byte) int {
	n := 0
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		n += utf16.RuneLen(r)
		b = b[size:]
	}
	return n
}

// positionOf maps a byte offset in file to a line and UTF-16 character.
// Offsets past the end clamp to the end; an offset inside a multi-byte
// rune rounds down to the rune start.
func positionOf(file *source.File, offset uint32) position {
	if size, err := safecast.Conv[uint32](len(file.Content)); err == nil && offset > size {
		offset = size
	}
	line, _ := slices.BinarySearch(file.LineIdx, offset)
	var start uint32
	if line > 0 {
		start = file.LineIdx[line-1] + 1
	}
	for offset > start && int(offset) < len(file.Content) && !utf8.RuneStart(file.Content[offset]) {
		offset--
	}
	return position{Line: line, Character: utf16Units(file.Content[start:offset])}
}

// rangeForSpan converts a byte span into an LSP range.
func rangeForSpan(file *source.File, span source.Span) lspRange {
	if file == nil {
		return lspRange{}
	}
	return lspRange{Start: positionOf(file, span.Start), End: positionOf(file, span.End)}
}

// offsetForPosition is the inverse of positionOf on a plain buffer.
// Lines past the end map to len(text); characters past the line end map
// to the newline.
func offsetForPosition(text string, pos position) int {
	if pos.Line < 0 || pos.Character < 0 {
		return 0
	}
	off := 0
	for range pos.Line {
		nl := strings.IndexByte(text[off:], '\n')
		if nl < 0 {
			return len(text)
		}
		off += nl + 1
	}
	units := 0
	for off < len(text) && text[off] != '\n' {
		r, size := utf8.DecodeRuneInString(text[off:])
		n := utf16.RuneLen(r)
		if units+n > pos.Character {
			break
		}
		units += n
		off += size
	}
	return off
}

// applyChanges applies incremental or full-text edits in order.
func applyChanges(text string, changes []textDocumentContentChangeEvent) string {
	for _, change := range changes {
		if change.Range == nil {
			text = change.Text
			continue
		}
		start := offsetForPosition(text, change.Range.Start)
		end := max(offsetForPosition(text, change.Range.End), start)
		text = text[:start] + change.Text + text[end:]
	}
	return text
}
