package engine

import (
	"math"
	"sort"

	"github.com/ShayCichocki/backrun/pkg/models"
)

// Next returns the task to execute next from the given candidates.
// Candidates must already be eligible (pending, dependencies completed,
// not human-required). Highest priority wins; ties break on higher
// score, then on document order. Tasks without a score sort after
// scored ones within the same priority tier. The input is never
// mutated, so repeated calls over the same candidates return the same
// task.
func Next(candidates []*models.Task) *models.Task {
	if len(candidates) == 0 {
		return nil
	}

	sorted := make([]*models.Task, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return runsBefore(sorted[i], sorted[j])
	})
	return sorted[0]
}

// runsBefore reports whether a should execute before b.
func runsBefore(a, b *models.Task) bool {
	if a.Priority.Rank() != b.Priority.Rank() {
		return a.Priority.Rank() > b.Priority.Rank()
	}
	as, bs := scoreOf(a), scoreOf(b)
	if as != bs {
		return as > bs
	}
	return a.DocOrder < b.DocOrder
}

func scoreOf(t *models.Task) float64 {
	if t.Score == nil {
		return math.Inf(-1)
	}
	return *t.Score
}
