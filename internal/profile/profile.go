// Package profile holds per-language checking preferences: the region to
// check with, allowed words and disabled rules.
package profile

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// AutoLang is sent to the backend for text whose language is unresolved.
const AutoLang = "auto"

// Preference is one entry of the ordered language-region preference list.
type Preference struct {
	Lang   string
	Region string
}

func (p Preference) String() string {
	if p.Region == "" {
		return p.Lang
	}
	return p.Lang + "-" + p.Region
}

// Preferences is ordered; the first entry for a language wins.
type Preferences []Preference

// ParsePreferences parses entries such as "de-DE", "en_US" or "fr".
func ParsePreferences(list []string) (Preferences, error) {
	out := make(Preferences, 0, len(list))
	for _, raw := range list {
		tag, err := language.Parse(strings.ReplaceAll(strings.TrimSpace(raw), "_", "-"))
		if err != nil {
			return nil, fmt.Errorf("languages: %q: %w", raw, err)
		}
		base, _ := tag.Base()
		pref := Preference{Lang: base.String()}
		if region, conf := tag.Region(); conf == language.Exact {
			pref.Region = region.String()
		}
		out = append(out, pref)
	}
	return out, nil
}

// Region returns the preferred region for lang.
func (p Preferences) Region(lang string) (string, bool) {
	for _, pref := range p {
		if pref.Lang == lang && pref.Region != "" {
			return pref.Region, true
		}
	}
	return "", false
}

// Profile is the configuration applied to one (language, region) text.
type Profile struct {
	Lang       string
	Region     string
	Dictionary map[string]struct{}
	Disabled   map[string]struct{}
	IgnoreCase bool
	// Unresolved marks the sentinel profile used for unknown language codes.
	Unresolved bool

	folded map[string]struct{}
}

// Tag returns the backend language code, e.g. "de-DE".
func (p *Profile) Tag() string {
	if p.Unresolved {
		return AutoLang
	}
	if p.Region == "" {
		return p.Lang
	}
	return p.Lang + "-" + p.Region
}

// foldCase builds a fresh caser per call; casers are not safe for concurrent use.
func foldCase(s string) string {
	return cases.Fold().String(s)
}

// Allows reports whether word is in the dictionary.
func (p *Profile) Allows(word string) bool {
	if p == nil || word == "" {
		return false
	}
	if _, ok := p.Dictionary[word]; ok {
		return true
	}
	if !p.IgnoreCase {
		return false
	}
	_, ok := p.folded[foldCase(word)]
	return ok
}

// IsDisabled reports whether rule is disabled for this profile.
func (p *Profile) IsDisabled(rule string) bool {
	if p == nil {
		return false
	}
	_, ok := p.Disabled[rule]
	return ok
}

// DisabledRules returns the disabled rule ids in sorted order.
func (p *Profile) DisabledRules() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.Disabled))
	for r := range p.Disabled {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Settings is the raw per-language configuration.
type Settings struct {
	Dictionary map[string][]string // язык -> слова
	Disabled   map[string][]string // язык -> правила
	IgnoreCase bool
	Prefs      Preferences
}

// Set builds profiles on demand and memoises them. It is safe for
// concurrent use and immutable once built.
type Set struct {
	settings Settings
	mu       sync.Mutex
	cache    map[[2]string]*Profile
}

// NewSet returns a profile set for the given settings.
func NewSet(s Settings) *Set {
	return &Set{settings: s, cache: make(map[[2]string]*Profile)}
}

// Prefs returns the language-region preference list.
func (s *Set) Prefs() Preferences {
	return s.settings.Prefs
}

// Lookup returns the profile for (lang, region). Dictionary and disabled
// entries configured for the bare language and for "lang-REGION" both apply.
func (s *Set) Lookup(lang, region string) *Profile {
	key := [2]string{lang, region}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.cache[key]; ok {
		return p
	}
	p := &Profile{
		Lang:       lang,
		Region:     region,
		IgnoreCase: s.settings.IgnoreCase,
		Dictionary: make(map[string]struct{}),
		Disabled:   make(map[string]struct{}),
		folded:     make(map[string]struct{}),
	}
	keys := []string{lang}
	if region != "" {
		keys = append(keys, lang+"-"+region, lang+"_"+region)
	}
	for k, words := range s.settings.Dictionary {
		if !slices.ContainsFunc(keys, func(c string) bool { return strings.EqualFold(c, k) }) {
			continue
		}
		for _, w := range words {
			p.Dictionary[w] = struct{}{}
			p.folded[foldCase(w)] = struct{}{}
		}
	}
	for k, rules := range s.settings.Disabled {
		if !slices.ContainsFunc(keys, func(c string) bool { return strings.EqualFold(c, k) }) {
			continue
		}
		for _, r := range rules {
			p.Disabled[r] = struct{}{}
		}
	}
	s.cache[key] = p
	return p
}

// Unresolved returns the sentinel profile for text in an unknown language.
func (s *Set) Unresolved(lang string) *Profile {
	return &Profile{Lang: lang, Unresolved: true}
}
