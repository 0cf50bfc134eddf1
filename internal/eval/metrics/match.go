package metrics

import (
	"regexp"
	"strings"

	"github.com/lehigh-university-libraries/shelfscanner/internal/models"
)

// DefaultThreshold is the lowest title similarity counted as a match
const DefaultThreshold = 0.7

var punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

// TitleMatch represents the comparison of a labelled title against the
// closest detected one
type TitleMatch struct {
	Expected string  `yaml:"expected"`
	Actual   string  `yaml:"actual,omitempty"`
	Score    float64 `yaml:"score"`
	Method   string  `yaml:"method"` // "exact", "substring", "fuzzy_high", "fuzzy_medium", "no_match"
}

// ShelfComparison scores the books detected on one shelf
type ShelfComparison struct {
	Matches        []TitleMatch
	TruePositives  int
	FalsePositives int
	FalseNegatives int
	Precision      float64
	Recall         float64
	F1             float64
}

// CompareTitles scores two titles from 0.0 to 1.0
func CompareTitles(expected, actual string) (float64, string) {
	expNorm := normalizeForComparison(expected)
	actNorm := normalizeForComparison(actual)

	if expNorm == "" || actNorm == "" {
		return 0.0, "no_match"
	}
	if expNorm == actNorm {
		return 1.0, "exact"
	}
	// Detected spines often drop or add a subtitle
	if strings.Contains(expNorm, actNorm) || strings.Contains(actNorm, expNorm) {
		return 0.8, "substring"
	}

	similarity := calculateSimilarity(expNorm, actNorm)
	switch {
	case similarity > 0.9:
		return similarity, "fuzzy_high"
	case similarity > DefaultThreshold:
		return similarity, "fuzzy_medium"
	default:
		return similarity, "no_match"
	}
}

// CompareShelf pairs each labelled book with its best unused detection.
// Pairs scoring below threshold are not matches.
func CompareShelf(expected, detected []models.Book, threshold float64) *ShelfComparison {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	cmp := &ShelfComparison{Matches: make([]TitleMatch, 0, len(expected))}
	used := make([]bool, len(detected))

	for _, exp := range expected {
		match := TitleMatch{Expected: exp.Title, Method: "no_match"}
		best := -1
		for j, det := range detected {
			if used[j] {
				continue
			}
			score, method := CompareTitles(exp.Title, det.Title)
			if score >= threshold && score > match.Score {
				best = j
				match.Score = score
				match.Method = method
				match.Actual = det.Title
			}
		}

		if best >= 0 {
			used[best] = true
			cmp.TruePositives++
		} else {
			cmp.FalseNegatives++
		}
		cmp.Matches = append(cmp.Matches, match)
	}

	cmp.FalsePositives = len(detected) - cmp.TruePositives
	cmp.Precision = ratio(cmp.TruePositives, cmp.TruePositives+cmp.FalsePositives)
	cmp.Recall = ratio(cmp.TruePositives, cmp.TruePositives+cmp.FalseNegatives)
	cmp.F1 = f1(cmp.Precision, cmp.Recall)
	return cmp
}

// ratio treats an empty denominator as nothing to get wrong
func ratio(n, d int) float64 {
	if d == 0 {
		return 1.0
	}
	return float64(n) / float64(d)
}

func f1(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0.0
	}
	return 2 * precision * recall / (precision + recall)
}

// normalizeForComparison normalizes text for comparison
func normalizeForComparison(text string) string {
	text = strings.ToLower(text)
	text = punctuation.ReplaceAllString(text, "")
	text = strings.Join(strings.Fields(text), " ")
	return strings.TrimPrefix(text, "the ")
}

// calculateSimilarity calculates similarity ratio (0.0 to 1.0) using Levenshtein distance
func calculateSimilarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}

	r1, r2 := []rune(s1), []rune(s2)
	if len(r1) == 0 || len(r2) == 0 {
		return 0.0
	}

	distance := levenshteinDistance(r1, r2)
	maxLen := max(len(r1), len(r2))

	return 1.0 - (float64(distance) / float64(maxLen))
}

// levenshteinDistance calculates the edit distance between two rune slices
func levenshteinDistance(s1, s2 []rune) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(s2)]
}
