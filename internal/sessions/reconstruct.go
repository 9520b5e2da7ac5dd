package sessions

import (
	"sort"
	"strings"
	"sync"

	"github.com/shubhsaxena/search-insights/internal/models"
)

const PatternSeparator = " -> "

// Reconstructor groups search events into sessions by their pre-assigned
// session id. Partitions are independent; once a batch holds at least
// parallelThreshold sessions they are built on separate goroutines.
type Reconstructor struct {
	parallelThreshold int
	workers           int
}

func NewReconstructor(parallelThreshold, workers int) *Reconstructor {
	if workers <= 0 {
		workers = 1
	}
	return &Reconstructor{parallelThreshold: parallelThreshold, workers: workers}
}

// Group returns one session per distinct session id, ordered by start time
// then id, and the number of events skipped for lacking a session id.
func (r *Reconstructor) Group(events []models.SearchEvent) ([]models.SearchSession, int) {
	partitions := make(map[string][]models.SearchEvent)
	var keys []string
	skipped := 0
	for _, e := range events {
		if strings.TrimSpace(e.SessionID) == "" {
			skipped++
			continue
		}
		if _, ok := partitions[e.SessionID]; !ok {
			keys = append(keys, e.SessionID)
		}
		partitions[e.SessionID] = append(partitions[e.SessionID], e)
	}

	out := make([]models.SearchSession, len(keys))
	if r.parallelThreshold > 0 && len(keys) >= r.parallelThreshold && r.workers > 1 {
		jobs := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < r.workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range jobs {
					out[i] = buildSession(keys[i], partitions[keys[i]])
				}
			}()
		}
		for i := range keys {
			jobs <- i
		}
		close(jobs)
		wg.Wait()
	} else {
		for i, k := range keys {
			out[i] = buildSession(k, partitions[k])
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out, skipped
}

// GroupIntoSessions is Group with sequential processing.
func GroupIntoSessions(events []models.SearchEvent) []models.SearchSession {
	sessions, _ := NewReconstructor(0, 1).Group(events)
	return sessions
}

func buildSession(id string, events []models.SearchEvent) models.SearchSession {
	sorted := make([]models.SearchEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	s := models.SearchSession{
		SessionID:     id,
		TotalSearches: len(sorted),
		StartedAt:     sorted[0].Timestamp,
		EndedAt:       sorted[len(sorted)-1].Timestamp,
	}

	queries := make([]string, 0, len(sorted))
	for _, e := range sorted {
		if s.UserID == "" {
			s.UserID = e.UserID
		}
		s.AddedToCart = s.AddedToCart || e.AddedToCart
		s.Converted = s.Converted || e.CheckoutCompleted

		q := e.OriginalQuery
		if strings.TrimSpace(q) == "" {
			q = e.Query
		}
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if len(queries) > 0 && queries[len(queries)-1] == q {
			continue
		}
		queries = append(queries, q)
	}

	s.Queries = queries
	s.Pattern = strings.Join(queries, PatternSeparator)
	s.Duration = s.EndedAt.Sub(s.StartedAt).Milliseconds()
	s.Behavior = ClassifyBehavior(s)
	return s
}
