package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// Находки проверяющего движка
	CheckInfo     Code = 1000
	CheckGrammar  Code = 1001
	CheckSpelling Code = 1002

	// Извлечение текста и разбор разметки
	ExtInfo               Code = 2000
	ExtUnresolvedLanguage Code = 2001
	ExtIncludeMissing     Code = 2002
	ExtIncludeCycle       Code = 2003
	ExtIncludeOutsideRoot Code = 2004
	ExtIncludeMalformed   Code = 2005
	ExtUnclosed           Code = 2006
	ExtBadArgs            Code = 2007
	ExtBadEscape          Code = 2008

	// Бэкенд
	BackendInfo     Code = 3000
	BackendFailed   Code = 3001
	BackendConfig   Code = 3002
	BackendLaunch   Code = 3003
	BackendResponse Code = 3004
)

var (
	codeDescription = map[Code]string{
		UnknownCode:           "Unknown error",
		CheckInfo:             "Checker information",
		CheckGrammar:          "Grammar or style issue",
		CheckSpelling:         "Possible spelling mistake",
		ExtInfo:               "Extraction information",
		ExtUnresolvedLanguage: "Unresolved language",
		ExtIncludeMissing:     "Included file not found",
		ExtIncludeCycle:       "Include cycle",
		ExtIncludeOutsideRoot: "Include outside project root",
		ExtIncludeMalformed:   "Malformed include",
		ExtUnclosed:           "Unclosed delimiter",
		ExtBadArgs:            "Unparsable arguments",
		ExtBadEscape:          "Invalid escape",
		BackendInfo:           "Backend information",
		BackendFailed:         "Check failed",
		BackendConfig:         "Backend misconfigured",
		BackendLaunch:         "Checker failed to start",
		BackendResponse:       "Unexpected checker response",
	}

	// коды предупреждений extract/markup
	warningCodes = map[string]Code{
		"unresolved-language":  ExtUnresolvedLanguage,
		"include-missing":      ExtIncludeMissing,
		"include-cycle":        ExtIncludeCycle,
		"include-outside-root": ExtIncludeOutsideRoot,
		"include-malformed":    ExtIncludeMalformed,
		"unclosed":             ExtUnclosed,
		"bad-args":             ExtBadArgs,
		"bad-escape":           ExtBadEscape,
	}
)

// WarningCode maps an extraction warning code to its diagnostic code.
func WarningCode(name string) Code {
	if c, ok := warningCodes[name]; ok {
		return c
	}
	return ExtInfo
}

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("CHK%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("EXT%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("BCK%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[Code(0)]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
