package textutil

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// ClosestMatch returns the index of the candidate most similar to name after
// normalization along with its Jaro-Winkler similarity, an exact match
// always wins. It returns -1 if there are no candidates.
func ClosestMatch(name string, candidates []string) (int, float64) {
	target := NormalizeName(name)

	best := -1
	var bestSimilarity float64
	for i, c := range candidates {
		normalized := NormalizeName(c)
		if normalized == target {
			return i, 1
		}
		similarity := matchr.JaroWinkler(target, normalized, false)
		if best < 0 || similarity > bestSimilarity {
			best = i
			bestSimilarity = similarity
		}
	}
	return best, bestSimilarity
}
