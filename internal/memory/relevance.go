package memory

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// minCoverage is the share of a query word's trigrams a text must contain
// for the word to count as found. It keeps one shared trigram ("ary" in
// "library" and "diary") from being a match.
const minCoverage = 1.0 / 3

// Terms splits text into lowercase words at spaces, punctuation and
// symbols. Thai is written without spaces, so a "word" may be a whole
// clause; Trigrams makes those comparable.
func Terms(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}

// Trigrams returns the distinct three-rune windows of word in order of
// first appearance. Words shorter than three runes are returned whole.
func Trigrams(word string) []string {
	runes := []rune(word)
	if len(runes) < 3 {
		if word == "" {
			return nil
		}
		return []string{word}
	}
	seen := make(map[string]struct{}, len(runes)-2)
	grams := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		g := string(runes[i : i+3])
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}
		grams = append(grams, g)
	}
	return grams
}

// Relevance scores text against query in [0, 1]: the mean, over query
// words, of the share of each word's trigrams found in text. Words below
// minCoverage contribute nothing. Zero means no match.
func Relevance(query, text string) float64 {
	words := Terms(query)
	if len(words) == 0 {
		return 0
	}
	text = strings.ToLower(text)

	var total float64
	for _, w := range words {
		grams := Trigrams(w)
		hits := 0
		for _, g := range grams {
			if strings.Contains(text, g) {
				hits++
			}
		}
		if cov := float64(hits) / float64(len(grams)); cov >= minCoverage {
			total += cov
		}
	}
	return total / float64(len(words))
}

// QueryTrigrams returns the distinct full-length trigrams of every word in
// query, for backends that index trigrams.
func QueryTrigrams(query string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range Terms(query) {
		for _, g := range Trigrams(w) {
			if utf8.RuneCountInString(g) != 3 {
				continue
			}
			if _, dup := seen[g]; dup {
				continue
			}
			seen[g] = struct{}{}
			out = append(out, g)
		}
	}
	return out
}
