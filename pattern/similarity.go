package pattern

import (
	"sort"

	"github.com/zero-day-ai/goap/state"
)

// Similarity weighting between the goal and current-state components
// of a query. Goal overlap dominates: a pattern that reached the same
// destination is worth reusing even from a different starting point.
const (
	goalWeight    = 0.7
	currentWeight = 0.3
)

// Score computes the weighted similarity between a pattern's recorded
// context and a live query context. Both components use key-value
// Jaccard overlap, so the score is symmetric in each component.
func Score(p *Pattern, current, goal state.State) float64 {
	gs := state.Similarity(p.Context.GoalState, goal)
	cs := state.Similarity(p.Context.CurrentState, current)
	return goalWeight*gs + currentWeight*cs
}

// Rank filters patterns below threshold and sorts the survivors
// descending by similarity, breaking ties by confidence.
func Rank(patterns []*Pattern, current, goal state.State, threshold float64) []Match {
	matches := make([]Match, 0, len(patterns))
	for _, p := range patterns {
		s := Score(p, current, goal)
		if s < threshold {
			continue
		}
		matches = append(matches, Match{Pattern: p, Similarity: s})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Pattern.Metrics.Confidence > matches[j].Pattern.Metrics.Confidence
	})
	return matches
}

// SelectBest picks the match with the highest confidence, breaking
// ties by similarity. Returns nil for an empty candidate set.
func SelectBest(matches []Match) *Match {
	var best *Match
	for i := range matches {
		m := &matches[i]
		if best == nil {
			best = m
			continue
		}
		bc := best.Pattern.Metrics.Confidence
		mc := m.Pattern.Metrics.Confidence
		if mc > bc || (mc == bc && m.Similarity > best.Similarity) {
			best = m
		}
	}
	return best
}

// Applicable reports whether every key the pattern recorded in its
// current state still holds the same value in the live state. This is
// an exact precondition gate, distinct from the fuzzy Score.
func Applicable(p *Pattern, current state.State) bool {
	for k, v := range p.Context.CurrentState {
		live, ok := current[k]
		if !ok || !live.Equal(v) {
			return false
		}
	}
	return true
}
