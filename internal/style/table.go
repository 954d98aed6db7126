package style

import (
	"fmt"
	"sort"
	"strings"

	"prosa/internal/doctree"
)

// Effect says what a node contributes to the checkable text.
type Effect uint8

const (
	// Unset marks a table slot nobody filled; Validate rejects it.
	Unset Effect = iota
	// Identity renders the node normally.
	Identity
	// Drop contributes nothing.
	Drop
	// Unwrap contributes the children without the node's own block effects.
	Unwrap
	// Rewrite replaces the node with Rule.Token.
	Rewrite
	// PaginateBefore inserts a page separator before headings of level <= Rule.Level.
	PaginateBefore
)

var effectNames = map[Effect]string{
	Unset:          "unset",
	Identity:       "identity",
	Drop:           "drop",
	Unwrap:         "unwrap",
	Rewrite:        "rewrite",
	PaginateBefore: "paginate-before",
}

func (e Effect) String() string {
	if n, ok := effectNames[e]; ok {
		return n
	}
	return fmt.Sprintf("effect(%d)", uint8(e))
}

// ParseEffect parses a configuration effect name.
func ParseEffect(s string) (Effect, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for e, n := range effectNames {
		if e != Unset && n == s {
			return e, nil
		}
	}
	return Unset, fmt.Errorf("unknown effect %q", s)
}

// Rule is the table entry for one node kind.
type Rule struct {
	Effect Effect
	Token  string // только для Rewrite
	Level  int    // только для PaginateBefore
}

// RuleConfig is the user-facing override for one node kind.
type RuleConfig struct {
	Effect string `toml:"effect" yaml:"effect" json:"effect"`
	Token  string `toml:"token" yaml:"token" json:"token"`
	Level  int    `toml:"level" yaml:"level" json:"level"`
}

// Table maps every node kind to a rule. Its size is fixed by doctree.NumKinds,
// so adding a kind without a rule is caught by Validate.
type Table [doctree.NumKinds]Rule

// Rule returns the rule for kind k.
func (t *Table) Rule(k doctree.Kind) Rule {
	if k >= doctree.NumKinds {
		return Rule{Effect: Identity}
	}
	return t[k]
}

// Validate reports unset kinds and incomplete rules.
func (t *Table) Validate() error {
	var problems []string
	for _, k := range doctree.Kinds() {
		r := t[k]
		switch r.Effect {
		case Unset:
			problems = append(problems, k.String()+": no rule")
		case Rewrite:
			if r.Token == "" {
				problems = append(problems, k.String()+": rewrite without token")
			}
		case PaginateBefore:
			if r.Level < 1 {
				problems = append(problems, k.String()+": paginate-before needs level >= 1")
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("style table: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RenderTable renders every node as itself.
func RenderTable() Table {
	var t Table
	for i := range t {
		t[i] = Rule{Effect: Identity}
	}
	return t
}

// CheckTable is the default table used when the document is rendered for checking.
func CheckTable() Table {
	t := RenderTable()
	t[doctree.Bibliography] = Rule{Effect: Drop}
	t[doctree.Label] = Rule{Effect: Drop}
	t[doctree.Code] = Rule{Effect: Drop}
	t[doctree.MathBlock] = Rule{Effect: Drop}
	t[doctree.MathInline] = Rule{Effect: Rewrite, Token: "X"}
	t[doctree.Citation] = Rule{Effect: Rewrite, Token: "[1]"}
	t[doctree.Raw] = Rule{Effect: Rewrite, Token: "code"}
	t[doctree.Heading] = Rule{Effect: PaginateBefore, Level: 1}
	t[doctree.Strong] = Rule{Effect: Unwrap}
	t[doctree.Emph] = Rule{Effect: Unwrap}
	t[doctree.Func] = Rule{Effect: Unwrap}
	return t
}

// Resolve builds the active table from the spellcheck flag and user overrides.
// Overrides apply in both modes.
func Resolve(spellcheck bool, overrides map[string]RuleConfig) (Table, error) {
	t := RenderTable()
	if spellcheck {
		t = CheckTable()
	}

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		kind, ok := doctree.ParseKind(name)
		if !ok {
			return t, fmt.Errorf("rules: unknown node kind %q", name)
		}
		rc := overrides[name]
		eff, err := ParseEffect(rc.Effect)
		if err != nil {
			return t, fmt.Errorf("rules.%s: %w", name, err)
		}
		t[kind] = Rule{Effect: eff, Token: rc.Token, Level: rc.Level}
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}
