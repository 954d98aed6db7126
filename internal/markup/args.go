package markup

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// argList is the parenthesised argument list of a `#func(...)` call,
// without the parentheses.
type argList struct {
	Items []*arg `parser:"( @@ ( ',' @@ )* ','? )?"`
}

type arg struct {
	Name  string `parser:"( @Ident ':' )?"`
	Value *expr  `parser:"@@"`
}

// expr is a loose sequence of terms; only string literals are interpreted.
type expr struct {
	Terms []*term `parser:"@@+"`
}

type term struct {
	Str    *string  `parser:"  @String"`
	Number *string  `parser:"| @Number"`
	Ident  *string  `parser:"| @Ident"`
	Op     *string  `parser:"| @Punct"`
	Group  *argList `parser:"| '(' @@ ')'"`
}

var argLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Number", Pattern: `\d+(\.\d+)?[a-z%]*`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_-]*`},
	{Name: "Punct", Pattern: `[-+*/.%!=<>&|^]`},
	{Name: "Delim", Pattern: `[(),:]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var argParser = participle.MustBuild[argList](
	participle.Lexer(argLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
	participle.UseLookahead(2),
)

// Args holds the parsed arguments of one call.
type Args struct {
	Named      map[string]string // только строковые значения
	Positional []string
}

// parseArgs parses the text between the parentheses of a call.
func parseArgs(src string) (Args, error) {
	out := Args{Named: map[string]string{}}
	if strings.TrimSpace(src) == "" {
		return out, nil
	}
	list, err := argParser.ParseString("", src)
	if err != nil {
		return out, err
	}
	for _, a := range list.Items {
		v, ok := a.Value.stringValue()
		switch {
		case a.Name != "" && ok:
			out.Named[a.Name] = v
		case a.Name == "" && ok:
			out.Positional = append(out.Positional, v)
		}
	}
	return out, nil
}

func (e *expr) stringValue() (string, bool) {
	if e == nil || len(e.Terms) != 1 || e.Terms[0].Str == nil {
		return "", false
	}
	return *e.Terms[0].Str, true
}
