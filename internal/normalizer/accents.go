package normalizer

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StripDiacritics removes combining marks only. Letters without a
// decomposition (Ł, ł) are left alone.
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	out, _, _ := transform.String(t, s)
	return out
}

func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}

// RemoveDiacritics transliterates to ASCII, so Ł becomes L as well
func RemoveDiacritics(s string) string {
	if isASCII(s) {
		return s
	}
	return unidecode.Unidecode(StripDiacritics(s))
}

// ToUpper upper-cases with Polish casing rules. A Caser is stateful, so
// one is built per call.
func ToUpper(s string) string {
	return cases.Upper(language.Polish).String(s)
}

// ToLower is the Polish lower-case counterpart of ToUpper
func ToLower(s string) string {
	return cases.Lower(language.Polish).String(s)
}

// FoldKey is the key used for dictionary lookups: ASCII, upper, trimmed
func FoldKey(s string) string {
	return strings.TrimSpace(ToUpper(RemoveDiacritics(s)))
}

// TrimTrailingPunct drops trailing punctuation and spaces
func TrimTrailingPunct(s string) string {
	return strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
