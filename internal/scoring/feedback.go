package scoring

import (
	"regexp"
	"strings"
)

// Severity is a coarse classification of the weaknesses a piece of
// improvement feedback describes.
type Severity string

const (
	SeveritySevere   Severity = "severe"
	SeverityModerate Severity = "moderate"
	SeverityMinimal  Severity = "minimal"
)

var severeKeywords = []string{
	"lacks depth",
	"lack of depth",
	"misses key",
	"missing key",
	"fails to",
	"failed to",
	"does not address",
	"doesn't address",
	"vague",
	"unclear",
	"insufficient",
	"superficial",
	"inadequate",
	"too brief",
	"too short",
	"generic",
	"off-topic",
	"no clear",
}

var moderateKeywords = []string{
	"could be stronger",
	"needs more",
	"need more",
	"missing",
	"could improve",
	"could be improved",
	"could be more",
	"could benefit",
	"would benefit",
	"consider adding",
	"more specific",
	"more detail",
	"might consider",
}

// ClassifySeverity scans improvement feedback for severe and moderate
// phrases. Two distinct severe phrases make it severe; otherwise two distinct
// moderate phrases make it moderate.
func ClassifySeverity(suggestions string) Severity {
	lower := strings.ToLower(suggestions)
	if countDistinct(lower, severeKeywords) >= 2 {
		return SeveritySevere
	}
	if countDistinct(lower, moderateKeywords) >= 2 {
		return SeverityModerate
	}
	return SeverityMinimal
}

func countDistinct(lower string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}

var (
	excellenceTier  = wordPatterns("excellent", "outstanding", "exceptional", "exemplary", "superb", "impressive", "masterful")
	goodTier        = wordPatterns("good", "strong", "effective", "clear", "solid", "thoughtful", "well done", "well-structured")
	improvementTier = wordPatterns("improve", "lacks", "lacking", "missing", "vague", "unclear", "needs", "should", "consider", "weak", "insufficient")
)

func wordPatterns(words ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(words))
	for i, w := range words {
		out[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(w) + `\b`)
	}
	return out
}

func countOccurrences(lower string, tier []*regexp.Regexp) int {
	n := 0
	for _, re := range tier {
		n += len(re.FindAllStringIndex(lower, -1))
	}
	return n
}

// EstimateScoreFromLanguage derives a score in {2.5, 3, 3.5, 4, 4.5, 5} from
// the praise and criticism vocabulary of the feedback. It is used only when
// the reply carries no explicit score.
func EstimateScoreFromLanguage(strengths, suggestions string) float64 {
	lower := strings.ToLower(strengths + "\n" + suggestions)
	excellence := countOccurrences(lower, excellenceTier)
	good := countOccurrences(lower, goodTier)
	improvement := countOccurrences(lower, improvementTier)

	switch {
	case excellence >= 3 && improvement <= 1:
		return 5.0
	case excellence >= 2:
		return 4.5
	case excellence >= 1 || good >= 3:
		return 4.0
	case good >= 1 && improvement <= 2:
		return 3.5
	case improvement >= 4:
		return 2.5
	default:
		return 3.0
	}
}
