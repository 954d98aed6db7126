package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// LTResponse is the body of a LanguageTool /v2/check response.
type LTResponse struct {
	Software struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"software"`
	Language struct {
		Code string `json:"code"`
	} `json:"language"`
	Matches []LTMatch `json:"matches"`
}

// LTMatch is one match as LanguageTool reports it. Offsets count UTF-16 code units.
type LTMatch struct {
	Message      string `json:"message"`
	ShortMessage string `json:"shortMessage"`
	Offset       int    `json:"offset"`
	Length       int    `json:"length"`
	Replacements []struct {
		Value string `json:"value"`
	} `json:"replacements"`
	Rule struct {
		ID        string `json:"id"`
		IssueType string `json:"issueType"`
		Category  struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"category"`
	} `json:"rule"`
}

// MaxReplacements caps the suggestions kept per match.
const MaxReplacements = 8

// DecodeLT reads a LanguageTool response for text and converts it to matches.
func DecodeLT(text string, r io.Reader) ([]Match, error) {
	var resp LTResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode languagetool response: %w", err)
	}
	return ConvertLT(text, resp.Matches)
}

// ConvertLT converts LanguageTool matches against text.
func ConvertLT(text string, in []LTMatch) ([]Match, error) {
	idx := newUTF16Index(text)
	out := make([]Match, 0, len(in))
	for _, m := range in {
		start, ok1 := idx.byteOffset(m.Offset)
		end, ok2 := idx.byteOffset(m.Offset + m.Length)
		if !ok1 || !ok2 || end < start {
			return nil, fmt.Errorf("match %s at %d+%d outside text of %d units", m.Rule.ID, m.Offset, m.Length, idx.units)
		}
		match := Match{
			Start:    start,
			End:      end,
			RuleID:   m.Rule.ID,
			Category: m.Rule.Category.ID,
			Message:  m.Message,
			Spelling: IsSpellingRule(m.Rule.ID, m.Rule.IssueType, m.Rule.Category.ID),
		}
		for i, r := range m.Replacements {
			if i == MaxReplacements {
				break
			}
			match.Replacements = append(match.Replacements, r.Value)
		}
		out = append(out, match)
	}
	return out, nil
}

// IsSpellingRule reports whether a rule flags unknown words.
func IsSpellingRule(id, issueType, category string) bool {
	if issueType == "misspelling" || category == "TYPOS" {
		return true
	}
	id = strings.ToUpper(id)
	return strings.Contains(id, "SPELLER") || strings.HasPrefix(id, "MORFOLOGIK") || strings.HasPrefix(id, "HUNSPELL")
}

// utf16Index converts UTF-16 offsets into byte offsets of a UTF-8 string.
type utf16Index struct {
	units int
	// starts[i] is the UTF-16 offset of the i-th rune; bytes[i] its byte offset.
	starts []int
	bytes  []int
	ascii  bool
}

func newUTF16Index(text string) *utf16Index {
	idx := &utf16Index{ascii: true}
	for i := 0; i < len(text); i++ {
		if text[i] >= utf8.RuneSelf {
			idx.ascii = false
			break
		}
	}
	if idx.ascii {
		idx.units = len(text)
		return idx
	}
	unit := 0
	for off, r := range text {
		idx.starts = append(idx.starts, unit)
		idx.bytes = append(idx.bytes, off)
		if r >= 0x10000 {
			unit += 2
		} else {
			unit++
		}
	}
	idx.starts = append(idx.starts, unit)
	idx.bytes = append(idx.bytes, len(text))
	idx.units = unit
	return idx
}

// byteOffset maps a UTF-16 offset to a byte offset. Offsets inside a
// surrogate pair round down to the rune start.
func (idx *utf16Index) byteOffset(unit int) (int, bool) {
	if unit < 0 || unit > idx.units {
		return 0, false
	}
	if idx.ascii {
		return unit, true
	}
	lo, hi := 0, len(idx.starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if idx.starts[mid] <= unit {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return idx.bytes[lo], true
}
