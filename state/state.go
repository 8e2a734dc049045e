package state

import (
	"sort"
	"strings"
)

// State is a mapping from string keys to scalar values describing a point
// in the planning state space. A State used as a goal is partial: only
// the keys it contains are checked.
//
// States are treated as immutable. Mutating operations (Apply) return a
// fresh State and never modify the receiver.
type State map[string]Value

// Clone returns a copy of the state. A nil state clones to an empty,
// non-nil state so callers can safely add keys to the result.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Satisfies reports whether every key present in goal has an equal value
// in s. An empty goal is satisfied by any state.
func (s State) Satisfies(goal State) bool {
	for k, want := range goal {
		got, ok := s[k]
		if !ok || !got.Equal(want) {
			return false
		}
	}
	return true
}

// Apply returns a new state with effects shallow-merged over s. Keys in
// effects overwrite keys in s; all other keys carry over unchanged.
func (s State) Apply(effects State) State {
	out := s.Clone()
	for k, v := range effects {
		out[k] = v
	}
	return out
}

// Equal reports whether two states contain exactly the same keys with
// equal values.
func (s State) Equal(o State) bool {
	if len(s) != len(o) {
		return false
	}
	return s.Satisfies(o)
}

// Key returns the canonical serialization of the state: keys sorted
// lexicographically, each rendered as key=value with a type-tagged value
// encoding. Two states with equal content always return the same key,
// independent of insertion order; this is the identity used by search
// deduplication and cache lookups.
func (s State) Key() string {
	if len(s) == 0 {
		return ""
	}
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(s[k].canonical())
	}
	return b.String()
}

// Map returns the state as a plain map of native scalars. This is the
// representation handed to guard-expression evaluation.
func (s State) Map() map[string]any {
	out := make(map[string]any, len(s))
	for k, v := range s {
		out[k] = v.Interface()
	}
	return out
}

// FromMap builds a State from a map of native scalars. It returns an
// error if any value is not a string, number, or bool.
func FromMap(raw map[string]any) (State, error) {
	out := make(State, len(raw))
	for k, v := range raw {
		val, err := FromInterface(v)
		if err != nil {
			return nil, err
		}
		out[k] = val
	}
	return out, nil
}

// Similarity computes the key/value agreement between two states:
// the number of keys holding equal values in both, divided by the size
// of the union of keys. The result is in [0, 1] and symmetric in its
// arguments. Two empty states are fully similar.
func Similarity(a, b State) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	matching := 0
	for k, av := range a {
		if bv, ok := b[k]; ok && av.Equal(bv) {
			matching++
		}
	}
	union := len(a)
	for k := range b {
		if _, ok := a[k]; !ok {
			union++
		}
	}
	if union == 0 {
		return 1.0
	}
	return float64(matching) / float64(union)
}

// UnmetKeys returns the number of goal keys not yet satisfied by s,
// with each unmet key contributing weight[key] (default 1.0) to the
// total. This is the base heuristic used by the planner.
func (s State) UnmetKeys(goal State, weights map[string]float64) float64 {
	total := 0.0
	for k, want := range goal {
		got, ok := s[k]
		if ok && got.Equal(want) {
			continue
		}
		w := 1.0
		if weights != nil {
			if ww, ok := weights[k]; ok {
				w = ww
			}
		}
		total += w
	}
	return total
}
