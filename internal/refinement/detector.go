// Package refinement turns per-session query refinement sequences into stuck
// session signals.
package refinement

import (
	"sort"

	"github.com/shubhsaxena/search-insights/internal/intent"
	"github.com/shubhsaxena/search-insights/internal/models"
)

const transitionSeparator = " -> "

type Thresholds struct {
	// ExcessiveRefinements flags a session with strictly more refinements.
	ExcessiveRefinements int
	// LoopOccurrences flags a normalized query seen at least this often.
	LoopOccurrences int
	// ZeroResultStreak flags this many consecutive zero-result path nodes.
	ZeroResultStreak int
}

func DefaultThresholds() Thresholds {
	return Thresholds{ExcessiveRefinements: 5, LoopOccurrences: 3, ZeroResultStreak: 2}
}

type Detector struct {
	thresholds Thresholds
	perSession bool
}

// NewDetector returns a detector. With perSession set, each session reports
// its own most common transition instead of the batch-wide mode.
func NewDetector(t Thresholds, perSession bool) *Detector {
	return &Detector{thresholds: t, perSession: perSession}
}

// Analyze returns one analysis per distinct session, ordered by the session's
// first event time and then session ID, plus the number of events skipped for
// lacking a session ID.
func (d *Detector) Analyze(events []models.RefinementEvent) ([]models.RefinementSessionAnalysis, int) {
	bySession := make(map[string][]models.RefinementEvent)
	skipped := 0
	global := make(map[string]int)
	for _, e := range events {
		if e.SessionID == "" {
			skipped++
			continue
		}
		bySession[e.SessionID] = append(bySession[e.SessionID], e)
		global[transition(e)]++
	}
	globalMode := mode(global)

	out := make([]models.RefinementSessionAnalysis, 0, len(bySession))
	for id, evs := range bySession {
		sort.SliceStable(evs, func(i, j int) bool { return evs[i].Timestamp.Before(evs[j].Timestamp) })
		a := d.analyzeSession(id, evs)
		if d.perSession {
			local := make(map[string]int, len(evs))
			for _, e := range evs {
				local[transition(e)]++
			}
			a.MostCommonTransition = mode(local)
		} else {
			a.MostCommonTransition = globalMode
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].Path[0].Timestamp, out[j].Path[0].Timestamp
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out, skipped
}

func (d *Detector) analyzeSession(id string, evs []models.RefinementEvent) models.RefinementSessionAnalysis {
	path := make([]models.PathNode, 0, 2*len(evs))
	for _, e := range evs {
		path = append(path,
			models.PathNode{Query: e.PreviousQuery, Filters: e.RemovedFilters, ResultsCount: e.PreviousResultsCount, Timestamp: e.Timestamp},
			models.PathNode{Query: e.NewQuery, Filters: e.AddedFilters, ResultsCount: e.NewResultsCount, Timestamp: e.Timestamp},
		)
	}

	return models.RefinementSessionAnalysis{
		SessionID:        id,
		TotalRefinements: len(evs),
		Path:             path,
		StuckIndicators: models.StuckIndicators{
			ExcessiveRefinements: len(evs) > d.thresholds.ExcessiveRefinements,
			LoopsDetected:        hasLoop(path, d.thresholds.LoopOccurrences),
			RepeatedZeroResults:  hasZeroStreak(path, d.thresholds.ZeroResultStreak),
		},
	}
}

func hasLoop(path []models.PathNode, threshold int) bool {
	seen := make(map[string]int, len(path))
	for _, n := range path {
		q := intent.Normalize(n.Query)
		seen[q]++
		if seen[q] >= threshold {
			return true
		}
	}
	return false
}

// A missing results count counts as zero.
func hasZeroStreak(path []models.PathNode, threshold int) bool {
	run := 0
	for _, n := range path {
		if n.ResultsCount == nil || *n.ResultsCount == 0 {
			run++
			if run >= threshold {
				return true
			}
			continue
		}
		run = 0
	}
	return false
}

func transition(e models.RefinementEvent) string {
	return intent.Normalize(e.PreviousQuery) + transitionSeparator + intent.Normalize(e.NewQuery)
}

// mode returns the most frequent key, the lexicographically smallest on ties.
func mode(counts map[string]int) string {
	best, bestN := "", 0
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}

// StuckCount counts analyses with at least one stuck indicator set.
func StuckCount(analyses []models.RefinementSessionAnalysis) int {
	n := 0
	for i := range analyses {
		if analyses[i].IsStuck() {
			n++
		}
	}
	return n
}
