package chart

import "strings"

var (
	trendKeywords = []string{
		"trend", "over time", "timeline", "monthly", "daily", "yearly", "weekly", "quarterly",
		"اتجاه", "مع الوقت", "شهريا", "شهرياً", "سنويا", "سنوياً", "تطور",
	}
	proportionKeywords = []string{
		"percentage", "percent", "proportion", "share", "distribution", "breakdown",
		"نسبة", "توزيع", "حصة",
	}
	comparisonKeywords = []string{
		"compare", "comparison", "versus", " vs ", "top", "highest", "lowest", "most", "least",
		"مقارنة", "أعلى", "أقل", "الأكثر", "الأقل",
	}
)

const (
	maxPieSlices = 10
	maxChartRows = 20
)

// Detect picks a chart type from the wording of the question and the size of
// the result. Trend wording wins over proportion wording, which wins over
// comparison wording; large results fall back to a table.
func Detect(question string, rowCount int) Type {
	t, _ := detect(question, rowCount)
	return t
}

// DetectOr is Detect, except that fallback is returned when no rule matched
// and Detect would have chosen its default. An auto or empty fallback keeps
// the default.
func DetectOr(question string, rowCount int, fallback Type) Type {
	t, matched := detect(question, rowCount)
	if matched {
		return t
	}
	switch fallback {
	case TypeBar, TypeLine, TypeTable:
		return fallback
	case TypePie:
		if rowCount <= maxPieSlices {
			return fallback
		}
	}
	return t
}

func detect(question string, rowCount int) (Type, bool) {
	q := " " + strings.ToLower(question) + " "
	switch {
	case containsAny(q, trendKeywords):
		return TypeLine, true
	case containsAny(q, proportionKeywords) && rowCount <= maxPieSlices:
		return TypePie, true
	case containsAny(q, comparisonKeywords):
		return TypeBar, true
	case rowCount > maxChartRows:
		return TypeTable, true
	default:
		return TypeBar, false
	}
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
