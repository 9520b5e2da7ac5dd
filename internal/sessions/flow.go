package sessions

import (
	"sort"

	"github.com/shubhsaxena/search-insights/internal/models"
)

type FlowAnalyzer struct {
	topPaths    int
	topPatterns int
}

func NewFlowAnalyzer(topPaths, topPatterns int) *FlowAnalyzer {
	return &FlowAnalyzer{topPaths: topPaths, topPatterns: topPatterns}
}

// Analyze computes cohort metrics over reconstructed sessions. Every rate is
// a percentage and resolves to 0 for an empty cohort. Ranked lists order by
// count descending, then by path text ascending.
func (f *FlowAnalyzer) Analyze(sessions []models.SearchSession) models.SessionFlowAnalysis {
	analysis := models.SessionFlowAnalysis{
		TotalSessions:      len(sessions),
		TopConversionPaths: []models.ConversionPath{},
		CommonPatterns:     []models.QueryPattern{},
		BehaviorBreakdown:  make(map[models.BehaviorLabel]int),
	}
	if len(sessions) == 0 {
		return analysis
	}

	var totalSearches, converted, carted, abandoned int
	convertedByPath := make(map[string]int)
	type patternStats struct{ count, converted int }
	byPattern := make(map[string]*patternStats)

	for _, s := range sessions {
		totalSearches += s.TotalSearches
		if s.Converted {
			converted++
			convertedByPath[s.Pattern]++
		}
		if s.AddedToCart {
			carted++
		}
		if !s.AddedToCart && !s.Converted {
			abandoned++
		}

		ps, ok := byPattern[s.Pattern]
		if !ok {
			ps = &patternStats{}
			byPattern[s.Pattern] = ps
		}
		ps.count++
		if s.Converted {
			ps.converted++
		}

		label := s.Behavior
		if label == "" {
			label = ClassifyBehavior(s)
		}
		analysis.BehaviorBreakdown[label]++
	}

	n := len(sessions)
	analysis.AvgSearchesPerSession = float64(totalSearches) / float64(n)
	analysis.ConversionRate = percent(converted, n)
	analysis.AddToCartRate = percent(carted, n)
	analysis.AbandonmentRate = percent(abandoned, n)

	for path, c := range convertedByPath {
		analysis.TopConversionPaths = append(analysis.TopConversionPaths, models.ConversionPath{
			Path:        path,
			Conversions: c,
		})
	}
	sort.Slice(analysis.TopConversionPaths, func(i, j int) bool {
		a, b := analysis.TopConversionPaths[i], analysis.TopConversionPaths[j]
		if a.Conversions != b.Conversions {
			return a.Conversions > b.Conversions
		}
		return a.Path < b.Path
	})
	if len(analysis.TopConversionPaths) > f.topPaths {
		analysis.TopConversionPaths = analysis.TopConversionPaths[:f.topPaths]
	}

	for pattern, ps := range byPattern {
		analysis.CommonPatterns = append(analysis.CommonPatterns, models.QueryPattern{
			Pattern:        pattern,
			Count:          ps.count,
			ConversionRate: percent(ps.converted, ps.count),
		})
	}
	sort.Slice(analysis.CommonPatterns, func(i, j int) bool {
		a, b := analysis.CommonPatterns[i], analysis.CommonPatterns[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Pattern < b.Pattern
	})
	if len(analysis.CommonPatterns) > f.topPatterns {
		analysis.CommonPatterns = analysis.CommonPatterns[:f.topPatterns]
	}

	return analysis
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return 100 * float64(part) / float64(whole)
}
