package refinement

import (
	"reflect"

	"github.com/shubhsaxena/search-insights/internal/models"
)

// DiffFilters compares two filter maps. A key is added when it is absent from
// prev or its value changed; it is removed when it is present in prev and
// absent from next. Both results are non-nil.
func DiffFilters(prev, next map[string]any) (added, removed map[string]any) {
	added = make(map[string]any)
	removed = make(map[string]any)
	for k, v := range next {
		old, ok := prev[k]
		if !ok || !reflect.DeepEqual(old, v) {
			added[k] = v
		}
	}
	for k, v := range prev {
		if _, ok := next[k]; !ok {
			removed[k] = v
		}
	}
	return added, removed
}

// FillFilterDiff derives e's added and removed filters from the full filter
// state on both sides. A diff the client already sent is left alone.
func FillFilterDiff(e *models.RefinementEvent, change *models.FilterChange) {
	if change == nil || e.AddedFilters != nil || e.RemovedFilters != nil {
		return
	}
	e.AddedFilters, e.RemovedFilters = DiffFilters(change.Previous.AsMap(), change.Next.AsMap())
}
