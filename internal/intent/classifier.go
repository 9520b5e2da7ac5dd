package intent

import (
	"github.com/shubhsaxena/search-insights/internal/models"
	"github.com/shubhsaxena/search-insights/internal/rules"
)

const DefaultIntent = "general"

type Classifier struct {
	rules []rules.IntentRule
}

func NewClassifier(r *rules.Rules) *Classifier {
	return &Classifier{rules: r.Intents}
}

// Classify scores every rule by the number of distinct keywords and patterns
// it matches. The highest score wins; ties go to the rule listed first. Two or
// more hits give high confidence, one hit medium. Unmatched queries get the
// default intent with low confidence.
func (c *Classifier) Classify(query string) models.IntentResult {
	normalized := Normalize(query)
	result := models.IntentResult{
		Intent:     DefaultIntent,
		Confidence: models.ConfidenceLow,
		Keywords:   []string{},
	}
	if normalized == "" {
		return result
	}

	tokens := TokenSet(Tokenize(normalized))

	bestScore := 0
	for i := range c.rules {
		rule := &c.rules[i]
		var matched []string
		for _, kw := range rule.Keywords {
			if kw != "" && ContainsKeyword(normalized, tokens, kw) {
				matched = append(matched, kw)
			}
		}
		score := len(matched)
		for _, re := range rule.Compiled() {
			if m := re.FindString(normalized); m != "" {
				score++
			}
		}

		if score > bestScore {
			bestScore = score
			result.Intent = rule.Name
			result.Keywords = append([]string{}, matched...)
		}
	}

	switch {
	case bestScore >= 2:
		result.Confidence = models.ConfidenceHigh
	case bestScore == 1:
		result.Confidence = models.ConfidenceMedium
	}
	return result
}
