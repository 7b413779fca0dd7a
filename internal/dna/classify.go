package dna

import "unicode"

// Category buckets a target string by the script of its letters. The
// category selects which secondary DNA block extraction asks for and which
// weight table scoring uses.
type Category string

const (
	CategoryLatin       Category = "latin"
	CategoryOtherScript Category = "other-script"
	CategoryMixed       Category = "mixed"
)

// Classify inspects the letters of target and returns its script category.
// Non-letter runes (digits, punctuation, spaces) are ignored. A target with
// no letters at all classifies as latin so downstream weight lookup always
// has a table. Classify is pure and never fails.
func Classify(target string) Category {
	var latin, other bool
	for _, r := range target {
		if !unicode.IsLetter(r) {
			continue
		}
		if unicode.Is(unicode.Latin, r) {
			latin = true
		} else {
			other = true
		}
	}
	switch {
	case latin && other:
		return CategoryMixed
	case other:
		return CategoryOtherScript
	default:
		return CategoryLatin
	}
}
