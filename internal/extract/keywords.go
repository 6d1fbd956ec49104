package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// minFuzzyLen is the minimum length of a single word keyword for it to be
// matched with a typo tolerance of one edit.
const minFuzzyLen = 5

// MatchKeywords returns the keywords found in text, in the order they were
// given. Matching is case-insensitive. Single word keywords of at least
// minFuzzyLen runes also match words of text one edit away.
func MatchKeywords(text string, keywords []string) []string {
	lower := strings.ToLower(strings.Join(strings.Fields(text), " "))
	var tokens []string
	matched := []string{}
	seen := map[string]bool{}
	for _, kw := range keywords {
		k := strings.ToLower(strings.Join(strings.Fields(kw), " "))
		if k == "" || seen[k] {
			continue
		}
		if strings.Contains(lower, k) {
			seen[k] = true
			matched = append(matched, kw)
			continue
		}
		if strings.Contains(k, " ") || utf8.RuneCountInString(k) < minFuzzyLen {
			continue
		}
		if tokens == nil {
			tokens = strings.FieldsFunc(lower, func(r rune) bool {
				return !unicode.IsLetter(r) && !unicode.IsNumber(r)
			})
		}
		for _, tok := range tokens {
			if levenshtein.ComputeDistance(tok, k) <= 1 {
				seen[k] = true
				matched = append(matched, kw)
				break
			}
		}
	}
	return matched
}

// ConfidenceScore rates a lead from 0 to 10. Without keywords to match
// against every lead gets a neutral 5. Otherwise each matched keyword adds
// two points, up to two keywords, and a match in the title adds one more.
func ConfidenceScore(title string, matched []string, keywordCount int) int {
	if keywordCount == 0 {
		return 5
	}
	if len(matched) == 0 {
		return 0
	}
	score := 5 + 2*min(len(matched), 2)
	lt := strings.ToLower(title)
	for _, m := range matched {
		if strings.Contains(lt, strings.ToLower(m)) {
			score++
			break
		}
	}
	return min(score, 10)
}
