// Package textutil holds the fuzzy string helpers used to compare free-text fields
// that two independently maintained systems spell differently.
package textutil

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Normalize lowercases the string, trims it and collapses inner whitespace.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.TrimSpace(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// Ratio returns the Levenshtein similarity of a and b scaled to 0-100.
// An empty string is never similar to anything.
func Ratio(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	longest := max(len(ra), len(rb))
	distance := matchr.Levenshtein(a, b)
	return int(math.Round(100 * (1 - float64(distance)/float64(longest))))
}

// PartialRatio returns the best Ratio of the shorter string against every
// window of the same length in the longer one, so abbreviations and labels
// embedded in longer text still score high.
func PartialRatio(a, b string) int {
	short := []rune(a)
	long := []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		return 0
	}

	shortStr := string(short)
	best := 0
	for i := 0; i+len(short) <= len(long); i++ {
		score := Ratio(shortStr, string(long[i:i+len(short)]))
		if score > best {
			best = score
		}
		if best == 100 {
			break
		}
	}
	return best
}

// Similarity is the 0-100 score used across reconciliation: PartialRatio over
// normalized inputs. Equal inputs score 100, two empty ones included.
func Similarity(a, b string) int {
	a, b = Normalize(a), Normalize(b)
	if a == b {
		return 100
	}
	return PartialRatio(a, b)
}

// Closest returns the index of the candidate most similar to target by
// Jaro-Winkler distance, or -1 when there are no candidates.
func Closest(target string, candidates []string) (int, float64) {
	target = Normalize(target)

	best := -1
	var bestScore float64
	for i, c := range candidates {
		score := matchr.JaroWinkler(target, Normalize(c), false)
		if best < 0 || score > bestScore {
			best = i
			bestScore = score
		}
	}
	return best, bestScore
}

// CommonPrefixLen returns the number of leading runes a and b share, compared
// case-insensitively after trimming.
func CommonPrefixLen(a, b string) int {
	ra := []rune(strings.ToLower(strings.TrimSpace(a)))
	rb := []rune(strings.ToLower(strings.TrimSpace(b)))

	n := 0
	for n < len(ra) && n < len(rb) && ra[n] == rb[n] {
		n++
	}
	return n
}

var numberRegex = regexp.MustCompile(`\d+`)

// VenueNumber extracts the first standalone number in a location string, for
// example the rink number in "Arena 3".
func VenueNumber(location string) (int, bool) {
	for _, loc := range numberRegex.FindAllStringIndex(location, -1) {
		start, end := loc[0], loc[1]
		before, _ := utf8.DecodeLastRuneInString(location[:start])
		if unicode.IsLetter(before) {
			continue
		}
		after, _ := utf8.DecodeRuneInString(location[end:])
		if unicode.IsLetter(after) {
			continue
		}
		n, err := strconv.Atoi(location[start:end])
		if err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}

// ContainsAny reports whether the normalized text contains any of the
// normalized keywords.
func ContainsAny(text string, keywords []string) bool {
	text = Normalize(text)
	for _, k := range keywords {
		k = Normalize(k)
		if k != "" && strings.Contains(text, k) {
			return true
		}
	}
	return false
}
