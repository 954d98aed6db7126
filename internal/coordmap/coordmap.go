// Package coordmap records where each byte range of a checkable text came
// from in the source files.
//
// Entries are appended in text order and never overlap. Bytes of the text
// that fall between entries are separators: they were inserted by
// extraction and have no source location.
package coordmap

import (
	"errors"
	"fmt"
	"sort"

	"fortio.org/safecast"

	"prosa/internal/source"
)

// ErrNotMonotonic is returned by Append when an entry would start before the end of the previous one.
var ErrNotMonotonic = errors.New("coordmap: entry is not monotonic")

// Entry maps the text range [Start, End) to Span.
type Entry struct {
	Start int
	End   int
	Span  source.Span
	// Verbatim entries copy source bytes 1:1, so sub-ranges map linearly.
	// All other entries map any sub-range onto the whole Span.
	Verbatim bool
	// Placeholder marks a rewrite token standing in for dropped content.
	Placeholder bool
}

// Len returns the text length of the entry.
func (e Entry) Len() int { return e.End - e.Start }

// Map is an ordered, append-only list of entries.
type Map struct {
	entries []Entry
}

// New returns an empty Map with room for capHint entries.
func New(capHint int) *Map {
	return &Map{entries: make([]Entry, 0, capHint)}
}

// Append adds an entry. Empty ranges are ignored.
func (m *Map) Append(e Entry) error {
	if e.End < e.Start {
		return fmt.Errorf("coordmap: inverted range [%d,%d)", e.Start, e.End)
	}
	if e.End == e.Start {
		return nil
	}
	if n := len(m.entries); n > 0 && e.Start < m.entries[n-1].End {
		return fmt.Errorf("%w: [%d,%d) after end %d", ErrNotMonotonic, e.Start, e.End, m.entries[n-1].End)
	}
	if e.Verbatim {
		// линейное отображение возможно только при равных длинах
		n, err := safecast.Conv[uint32](e.Len())
		if err != nil || n != e.Span.Len() {
			e.Verbatim = false
		}
	}
	m.entries = append(m.entries, e)
	return nil
}

// Entries returns the entries in text order. The slice must not be modified.
func (m *Map) Entries() []Entry {
	if m == nil {
		return nil
	}
	return m.entries
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// End returns the end offset of the last entry.
func (m *Map) End() int {
	if m == nil || len(m.entries) == 0 {
		return 0
	}
	return m.entries[len(m.entries)-1].End
}

// Find returns the entry covering offset.
func (m *Map) Find(offset int) (Entry, bool) {
	if m == nil {
		return Entry{}, false
	}
	i := m.search(offset)
	if i < len(m.entries) && m.entries[i].Start <= offset {
		return m.entries[i], true
	}
	return Entry{}, false
}

// Overlapping returns the entries that intersect [start, end).
func (m *Map) Overlapping(start, end int) []Entry {
	if m == nil || start >= end {
		return nil
	}
	i := m.search(start)
	j := i
	for j < len(m.entries) && m.entries[j].Start < end {
		j++
	}
	return m.entries[i:j]
}

// Covered reports whether every byte of [start, end) lies inside some entry.
func (m *Map) Covered(start, end int) bool {
	if start >= end {
		return false
	}
	pos := start
	for _, e := range m.Overlapping(start, end) {
		if e.Start > pos {
			return false
		}
		pos = e.End
		if pos >= end {
			return true
		}
	}
	return false
}

// search returns the index of the first entry whose End is greater than offset.
func (m *Map) search(offset int) int {
	if m == nil {
		return 0
	}
	return sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].End > offset
	})
}

// Project maps the text range [start, end) to source spans. Adjacent or
// overlapping spans within one file are merged; the result keeps text order.
func (m *Map) Project(start, end int) []source.Span {
	var out []source.Span
	for _, e := range m.Overlapping(start, end) {
		sp := e.Span
		if e.Verbatim {
			lo := max(start, e.Start) - e.Start
			hi := min(end, e.End) - e.Start
			off, err := safecast.Conv[uint32](lo)
			if err != nil {
				continue
			}
			n, err := safecast.Conv[uint32](hi - lo)
			if err != nil {
				continue
			}
			sp = source.Span{File: e.Span.File, Start: e.Span.Start + off, End: e.Span.Start + off + n}
		}
		if k := len(out); k > 0 && out[k-1].Touches(sp) {
			out[k-1] = out[k-1].Cover(sp)
			continue
		}
		out = append(out, sp)
	}
	return out
}

// Validate checks the ordering invariants. Maps built through Append always pass.
func (m *Map) Validate() error {
	prev := 0
	for i, e := range m.Entries() {
		if e.Start >= e.End {
			return fmt.Errorf("coordmap: entry %d is empty", i)
		}
		if e.Start < prev {
			return fmt.Errorf("%w: entry %d", ErrNotMonotonic, i)
		}
		prev = e.End
	}
	return nil
}
