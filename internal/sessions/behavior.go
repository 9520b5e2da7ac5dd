package sessions

import (
	"strings"
	"unicode/utf8"

	"github.com/shubhsaxena/search-insights/internal/models"
)

// ClassifyBehavior labels a session by how query specificity moves between
// successive distinct queries. Specificity is the word count, with rune
// length breaking ties. Only the query order matters, so timestamp jitter
// that keeps the order leaves the label unchanged.
//
//   - only increases           -> Narrowing
//   - only decreases           -> Broadening
//   - mixed, >= 3 distinct     -> Exploring
//   - mixed, net increase      -> Narrowing
//   - mixed, net decrease      -> Broadening
//   - flat, >= 3 distinct      -> Exploring
//   - anything else            -> Single/Static
func ClassifyBehavior(s models.SearchSession) models.BehaviorLabel {
	queries := s.Queries
	if len(queries) == 0 && s.Pattern != "" {
		queries = strings.Split(s.Pattern, PatternSeparator)
	}
	if len(queries) < 2 {
		return models.BehaviorStatic
	}

	ups, downs := 0, 0
	distinct := make(map[string]bool, len(queries))
	distinct[strings.ToLower(queries[0])] = true
	for i := 1; i < len(queries); i++ {
		distinct[strings.ToLower(queries[i])] = true
		switch compareSpecificity(queries[i-1], queries[i]) {
		case 1:
			ups++
		case -1:
			downs++
		}
	}

	switch {
	case ups > 0 && downs == 0:
		return models.BehaviorNarrowing
	case downs > 0 && ups == 0:
		return models.BehaviorBroadening
	case ups > 0 && downs > 0 && len(distinct) >= 3:
		return models.BehaviorExploring
	case ups > downs:
		return models.BehaviorNarrowing
	case downs > ups:
		return models.BehaviorBroadening
	}
	if len(distinct) >= 3 {
		return models.BehaviorExploring
	}
	return models.BehaviorStatic
}

// compareSpecificity returns 1 when next is more specific than prev, -1 when
// less specific and 0 when equal.
func compareSpecificity(prev, next string) int {
	pw, nw := len(strings.Fields(prev)), len(strings.Fields(next))
	if nw != pw {
		if nw > pw {
			return 1
		}
		return -1
	}
	pl, nl := utf8.RuneCountInString(prev), utf8.RuneCountInString(next)
	switch {
	case nl > pl:
		return 1
	case nl < pl:
		return -1
	}
	return 0
}
