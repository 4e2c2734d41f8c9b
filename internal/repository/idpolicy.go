package repository

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/qmdoc/doccontrol/internal/document"
)

// Derived is what an IDPolicy extracts from a filename.
type Derived struct {
	Code  string
	Type  document.Type
	Title string
}

// IDPolicy assigns document ids from import filenames. It is pluggable; a
// false return lets the store fall back to a year-scoped sequence id.
type IDPolicy interface {
	Derive(filename string) (Derived, bool)
}

var (
	standardCode = regexp.MustCompile(`^([A-Za-z])(\d{2})([A-Za-z]{2})(\d{3})$`)
	manualCode   = regexp.MustCompile(`^(?i:QMH)(\d{2})$`)
	externalCode = regexp.MustCompile(`^(?i:EXT)(\d{3,})$`)
)

// FilenamePolicy understands "CODE_Title.ext" names where CODE is an
// area letter, two-digit sequence, two-letter type and three-digit number
// (e.g. A01VA004), a manual code (QMH01) or an external code (EXT0042).
type FilenamePolicy struct{}

func (FilenamePolicy) Derive(filename string) (Derived, bool) {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	code, rest, _ := strings.Cut(stem, "_")
	code = strings.TrimSpace(code)
	title := strings.TrimSpace(strings.ReplaceAll(rest, "_", " "))

	var typ document.Type
	switch {
	case standardCode.MatchString(code):
		m := standardCode.FindStringSubmatch(code)
		typ = typeFromLetters(m[3])
	case manualCode.MatchString(code):
		typ = document.TypeManual
	case externalCode.MatchString(code):
		typ = document.TypeExternal
	default:
		return Derived{}, false
	}
	if title == "" {
		title = stem
	}
	return Derived{Code: strings.ToUpper(code), Type: typ, Title: title}, true
}

func typeFromLetters(letters string) document.Type {
	switch strings.ToUpper(letters) {
	case "FB":
		return document.TypeDraftForm
	case "AA":
		return document.TypeWorkInstruction
	case "VA":
		return document.TypeProcedure
	case "LS":
		return document.TypeRecord
	case "PR":
		return document.TypeProtocol
	case "EX":
		return document.TypeExternal
	case "QM":
		return document.TypeManual
	}
	return document.TypeOther
}

// TitleFromFilename is the fallback title for names no policy recognizes.
func TitleFromFilename(filename string) string {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSpace(strings.ReplaceAll(stem, "_", " "))
}
