package antispam

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// SimilarityThreshold is the ratio at or above which two texts are treated
// as the same content.
const SimilarityThreshold = 0.85

var (
	uuid4Pattern = regexp.MustCompile(
		`[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-4[a-fA-F0-9]{3}-[89abAB][a-fA-F0-9]{3}-[a-fA-F0-9]{12}`)
	repeatedCharPattern = regexp.MustCompile(`(.)\1{7,}`)
	dottedPattern       = regexp.MustCompile(`(?:[a-zA-Z0-9]\.){4,}[a-zA-Z0-9_]+`)
)

// Similarity computes the ratio of matched characters between two strings,
// 0.0 to 1.0. It mirrors the longest-matching-subsequence ratio: twice the
// total size of the matching blocks divided by the combined length.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)

	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}

	matched := matchSize(ra, rb)

	return 2.0 * float64(matched) / float64(total)
}

// matchSize sums the lengths of the matching blocks between a and b by
// locating the longest common block and recursing on both sides.
func matchSize(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	b2j := make(map[rune][]int, len(b))
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}

	var bestI, bestJ, bestSize int

	j2len := make(map[int]int)

	for i, r := range a {
		newJ2len := make(map[int]int)

		for _, j := range b2j[r] {
			k := j2len[j-1] + 1
			newJ2len[j] = k

			if k > bestSize {
				bestI, bestJ, bestSize = i-k+1, j-k+1, k
			}
		}

		j2len = newJ2len
	}

	if bestSize == 0 {
		return 0
	}

	return bestSize +
		matchSize(a[:bestI], b[:bestJ]) +
		matchSize(a[bestI+bestSize:], b[bestJ+bestSize:])
}

// CountUUIDs returns how many valid UUID-v4 substrings the text contains.
// Regex candidates are confirmed with a real parse so look-alike strings
// do not count.
func CountUUIDs(text string) int {
	count := 0

	for _, candidate := range uuid4Pattern.FindAllString(text, -1) {
		parsed, err := uuid.Parse(candidate)
		if err != nil || parsed.Version() != 4 {
			continue
		}

		count++
	}

	return count
}

// StripUUIDs removes UUID-v4 substrings so near-identical payloads that
// differ only in embedded tokens still cluster together.
func StripUUIDs(text string) string {
	return uuid4Pattern.ReplaceAllString(text, "")
}

// HasRepeatedChar reports whether any character repeats eight or more
// times in a row.
func HasRepeatedChar(text string) bool {
	return repeatedCharPattern.MatchString(text)
}

// CountDottedIdentifiers returns how many dotted-identifier sequences
// (four or more dot-separated alphanumerics) the text contains.
func CountDottedIdentifiers(text string) int {
	return len(dottedPattern.FindAllString(text, -1))
}

// SymbolRatio returns the share of non-alphanumeric characters in the text.
func SymbolRatio(text string) float64 {
	runes := []rune(text)
	if len(runes) == 0 {
		return 0
	}

	symbols := 0

	for _, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			symbols++
		}
	}

	return float64(symbols) / float64(len(runes))
}

// ContainsCJK reports whether the text contains any Japanese or Chinese
// code point. Natural CJK prose trips several of the structural heuristics,
// so the text detector discounts it.
func ContainsCJK(text string) bool {
	for _, r := range text {
		if unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) ||
			unicode.Is(unicode.Han, r) {
			return true
		}
	}

	return false
}

// HasRepeatedPhrase reports whether any phrase of at least minLen runes
// occurs at least minCount times.
func HasRepeatedPhrase(text string, minLen, minCount int) bool {
	runes := []rune(text)
	if len(runes) < minLen*minCount {
		return false
	}

	seen := make(map[string]struct{})

	for i := 0; i+minLen <= len(runes); i++ {
		phrase := string(runes[i : i+minLen])
		if _, done := seen[phrase]; done {
			continue
		}

		seen[phrase] = struct{}{}

		if strings.Count(text, phrase) >= minCount {
			return true
		}
	}

	return false
}

// HasLongSymbolRun reports whether the text has a run of kana or symbol
// characters of at least minRun length.
func HasLongSymbolRun(text string, minRun int) bool {
	run := 0

	for _, r := range text {
		isKana := unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r)
		isSymbol := !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r)

		if isKana || isSymbol {
			run++
			if run >= minRun {
				return true
			}

			continue
		}

		run = 0
	}

	return false
}
