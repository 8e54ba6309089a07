package caja

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	maxInitials       = 4
	fallbackBranchTag = "PRINCIPAL"
)

var upper = cases.Upper(language.Spanish)

// RegisterCode renders the human code of a register, e.g. "#CJ-SN-007" for
// the seventh register of "Sucursal Núñez".
func RegisterCode(branchName string, sequence int) string {
	if sequence < 1 {
		sequence = 1
	}
	return fmt.Sprintf("#CJ-%s-%03d", BranchInitials(branchName), sequence)
}

// BranchInitials folds accents, upper-cases and keeps the first letter of each
// word, up to four letters.
func BranchInitials(name string) string {
	folded := foldAccents(strings.TrimSpace(name))
	if folded == "" {
		folded = fallbackBranchTag
	}
	var b strings.Builder
	n := 0
	for _, word := range strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		first, _ := firstRune(word)
		b.WriteRune(first)
		n++
		if n >= maxInitials {
			break
		}
	}
	if n == 0 {
		return string(fallbackBranchTag[0])
	}
	return upper.String(b.String())
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func firstRune(s string) (rune, bool) {
	for _, r := range s {
		return r, true
	}
	return 0, false
}
