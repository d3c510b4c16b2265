package ledger

import (
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// combiningMarks is the Combining Diacritical Marks block
var combiningMarks = &unicode.RangeTable{
	R16: []unicode.Range16{{Lo: 0x0300, Hi: 0x036f, Stride: 1}},
}

func allowedRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	switch r {
	case ' ', '.', ',', ':', ';', '-', '/', '(', ')', '\n', '\r':
		return true
	}
	return false
}

// NormalizeText strips accents ("Café Núñez" becomes "Cafe Nunez") and then drops
// every character outside letters, digits, space, newlines and . , : ; - / ( )
func NormalizeText(text string) string {
	if text == "" {
		return ""
	}
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(combiningMarks)),
		runes.Remove(runes.Predicate(func(r rune) bool { return !allowedRune(r) })),
	)
	out, _, err := transform.String(t, text)
	if err != nil {
		return ""
	}
	return out
}
