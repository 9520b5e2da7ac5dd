// Package suggest generates query suggestions, chiefly for searches that
// returned nothing. Every confidence is either a rule constant or a string
// similarity score.
package suggest

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shubhsaxena/search-insights/internal/intent"
	"github.com/shubhsaxena/search-insights/internal/models"
	"github.com/shubhsaxena/search-insights/internal/rules"
)

var modelNumberPattern = regexp.MustCompile(`(^|\D)\d{4}(\D|$)`)

type Engine struct {
	rules *rules.Rules
}

func NewEngine(r *rules.Rules) *Engine {
	return &Engine{rules: r}
}

// Generate runs the pipeline in priority order: typo correction, synonym
// expansion, fuzzy match against knownTerms, broadening alternatives and rule
// based recommendations. Results are deduplicated by lower-cased suggestion
// text (earlier steps win), sorted by descending confidence and truncated.
func (e *Engine) Generate(query, category string, knownTerms []string) []models.Suggestion {
	normalized := intent.Normalize(query)
	if normalized == "" {
		return []models.Suggestion{}
	}
	tokens := intent.Tokenize(normalized)

	var all []models.Suggestion
	all = append(all, e.typoCorrections(query, normalized)...)
	all = append(all, e.synonymExpansions(query, normalized)...)
	if len(knownTerms) > 0 {
		all = append(all, e.fuzzyMatches(query, normalized, knownTerms)...)
	}
	all = append(all, e.alternatives(query, normalized, tokens, category)...)
	all = append(all, e.recommendations(query, normalized, tokens)...)

	seen := map[string]bool{normalized: true}
	deduped := make([]models.Suggestion, 0, len(all))
	for _, s := range all {
		key := strings.ToLower(strings.TrimSpace(s.Suggestion))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, s)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Confidence > deduped[j].Confidence
	})

	if limit := e.rules.Confidence.MaxResults; len(deduped) > limit {
		deduped = deduped[:limit]
	}
	return deduped
}

func (e *Engine) typoCorrections(original, normalized string) []models.Suggestion {
	for _, t := range e.rules.Typos {
		if !strings.Contains(normalized, t.Pattern) {
			continue
		}
		return []models.Suggestion{{
			Type:       models.SuggestionTypo,
			Original:   original,
			Suggestion: strings.Replace(normalized, t.Pattern, t.Correction, 1),
			Confidence: e.rules.Confidence.Typo,
			Reason:     fmt.Sprintf("Common typo: %q is usually %q", t.Pattern, t.Correction),
		}}
	}
	return nil
}

func (e *Engine) synonymExpansions(original, normalized string) []models.Suggestion {
	words := strings.Fields(normalized)
	var out []models.Suggestion
	for i, w := range words {
		syns, ok := e.rules.Synonyms[w]
		if !ok {
			continue
		}
		for _, syn := range syns {
			rewritten := make([]string, len(words))
			copy(rewritten, words)
			rewritten[i] = syn
			candidate := strings.Join(rewritten, " ")
			if candidate == normalized {
				continue
			}
			out = append(out, models.Suggestion{
				Type:       models.SuggestionSynonym,
				Original:   original,
				Suggestion: candidate,
				Confidence: e.rules.Confidence.Synonym,
				Reason:     fmt.Sprintf("%q is also searched as %q", w, syn),
			})
		}
	}
	return out
}

type scoredTerm struct {
	term  string
	score float64
}

func (e *Engine) fuzzyMatches(original, normalized string, knownTerms []string) []models.Suggestion {
	c := e.rules.Confidence
	var matches []scoredTerm
	for _, term := range knownTerms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		score := Similarity(normalized, term)
		if score > c.FuzzyMin && score < c.FuzzyMax {
			matches = append(matches, scoredTerm{term: term, score: score})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].term < matches[j].term
	})
	if len(matches) > c.FuzzyTopN {
		matches = matches[:c.FuzzyTopN]
	}

	out := make([]models.Suggestion, 0, len(matches))
	for _, m := range matches {
		out = append(out, models.Suggestion{
			Type:       models.SuggestionTypo,
			Original:   original,
			Suggestion: m.term,
			Confidence: m.score,
			Reason:     fmt.Sprintf("Similar to a known term (%.0f%% match)", m.score*100),
		})
	}
	return out
}

func (e *Engine) alternatives(original, normalized string, tokens []string, category string) []models.Suggestion {
	var out []models.Suggestion

	if modelNumberPattern.MatchString(normalized) {
		if broader := e.broaderCategory(tokens, category); broader != "" {
			out = append(out, models.Suggestion{
				Type:       models.SuggestionAlternative,
				Original:   original,
				Suggestion: broader,
				Confidence: e.rules.Confidence.Broader,
				Reason:     "Browse the wider category for this model",
			})
		}
	}

	words := strings.Fields(normalized)
	if len(words) > 2 {
		out = append(out, models.Suggestion{
			Type:       models.SuggestionAlternative,
			Original:   original,
			Suggestion: strings.Join(words[1:], " "),
			Confidence: e.rules.Confidence.DropPrefix,
			Reason:     "Try without the brand or model prefix",
		})
	}
	return out
}

func (e *Engine) broaderCategory(tokens []string, category string) string {
	set := intent.TokenSet(tokens)
	b := e.rules.Brands
	for _, kw := range b.GPU {
		if set[kw] {
			return b.GPUCategory
		}
	}
	for _, kw := range b.CPU {
		if set[kw] {
			return b.CPUCategory
		}
	}
	return intent.Normalize(category)
}

func (e *Engine) recommendations(original, normalized string, tokens []string) []models.Suggestion {
	set := intent.TokenSet(tokens)
	var out []models.Suggestion
	for _, rec := range e.rules.Recommendations {
		if !matchesAll(normalized, set, rec.AllOf) {
			continue
		}
		for _, s := range rec.Suggestions {
			out = append(out, models.Suggestion{
				Type:       models.SuggestionRelated,
				Original:   original,
				Suggestion: s,
				Confidence: rec.Confidence,
				Reason:     rec.Reason,
			})
		}
	}
	return out
}

func matchesAll(normalized string, tokens map[string]bool, groups [][]string) bool {
	for _, group := range groups {
		hit := false
		for _, kw := range group {
			if intent.ContainsKeyword(normalized, tokens, strings.ToLower(kw)) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}
