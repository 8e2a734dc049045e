package search

import (
	"container/heap"
	"context"

	"github.com/zero-day-ai/goap/plan"
	"github.com/zero-day-ai/goap/state"
)

// DefaultMaxIterations is the default search exhaustion budget.
const DefaultMaxIterations = 1000

// Heuristic estimates the remaining cost from a state to a goal.
// Lower estimates make the search behave closer to uniform-cost;
// estimates that never exceed the true remaining cost keep A* optimal.
type Heuristic func(current, goal state.State) float64

// GoalDistance is the baseline heuristic: the weighted count of goal
// key/value pairs not yet satisfied. A nil weights map counts every
// unmet key as 1.
func GoalDistance(weights map[string]float64) Heuristic {
	return func(current, goal state.State) float64 {
		return current.UnmetKeys(goal, weights)
	}
}

// Config holds the engine's tuning knobs.
type Config struct {
	// MaxIterations bounds the number of node expansions before the
	// search is treated as exhausted. Zero or negative selects
	// DefaultMaxIterations.
	MaxIterations int

	// RiskFactors scales action costs by risk tier. Nil selects
	// plan.DefaultRiskFactors.
	RiskFactors plan.RiskFactors
}

// Engine runs A* over action tables. The zero-value Engine is not
// usable; construct with NewEngine.
type Engine struct {
	maxIterations int
	riskFactors   plan.RiskFactors
}

// NewEngine creates an Engine. A nil config selects defaults.
func NewEngine(cfg *Config) *Engine {
	e := &Engine{
		maxIterations: DefaultMaxIterations,
		riskFactors:   plan.DefaultRiskFactors(),
	}
	if cfg != nil {
		if cfg.MaxIterations > 0 {
			e.maxIterations = cfg.MaxIterations
		}
		if cfg.RiskFactors != nil {
			e.riskFactors = cfg.RiskFactors
		}
	}
	return e
}

// node is an arena entry in the search's spanning tree. Children point
// at parents by index; parents never reference children, so the tree is
// acyclic by construction.
type node struct {
	state  state.State
	action *plan.Action
	parent int
	gCost  float64
	hCost  float64
	fCost  float64
}

// openItem is an open-set entry: an arena index plus the bookkeeping
// needed for deterministic ordering.
type openItem struct {
	idx  int
	f    float64
	seq  uint64
}

// openSet is a min-heap on f-cost, breaking ties first-in first-out by
// insertion sequence.
type openSet []openItem

func (o openSet) Len() int { return len(o) }

func (o openSet) Less(i, j int) bool {
	if o[i].f != o[j].f {
		return o[i].f < o[j].f
	}
	return o[i].seq < o[j].seq
}

func (o openSet) Swap(i, j int) { o[i], o[j] = o[j], o[i] }

func (o *openSet) Push(x any) { *o = append(*o, x.(openItem)) }

func (o *openSet) Pop() any {
	old := *o
	n := len(old)
	item := old[n-1]
	*o = old[:n-1]
	return item
}

// Search runs A* from initial toward goal over the given action table.
//
// It returns the ordered action sequence reaching the goal, or an empty
// sequence when the goal is unreachable within the iteration budget or
// the context deadline. Exhaustion and deadline expiry are reported as
// "no plan", never as an error; callers racing the search against a
// timeout should treat an empty result accordingly.
//
// The action table must have passed plan.ValidateActions. A nil
// heuristic falls back to GoalDistance(nil).
func (e *Engine) Search(ctx context.Context, initial, goal state.State, actions []*plan.Action, h Heuristic) []*plan.Action {
	if h == nil {
		h = GoalDistance(nil)
	}

	arena := make([]node, 0, 64)
	root := node{
		state:  initial,
		parent: -1,
		hCost:  h(initial, goal),
	}
	root.fCost = root.hCost
	arena = append(arena, root)

	open := openSet{{idx: 0, f: root.fCost}}
	heap.Init(&open)
	closed := make(map[string]struct{})
	var seq uint64

	for iter := 0; iter < e.maxIterations; iter++ {
		if ctx.Err() != nil {
			return nil
		}
		if open.Len() == 0 {
			return nil
		}

		current := heap.Pop(&open).(openItem).idx
		cur := arena[current]

		if cur.state.Satisfies(goal) {
			return reconstruct(arena, current)
		}

		key := cur.state.Key()
		if _, done := closed[key]; done {
			continue
		}
		closed[key] = struct{}{}

		for _, a := range actions {
			if !a.Applicable(cur.state) {
				continue
			}
			childState := a.Apply(cur.state)
			if _, done := closed[childState.Key()]; done {
				continue
			}

			g := cur.gCost + a.Cost.Total(e.riskFactors)
			hc := h(childState, goal)
			arena = append(arena, node{
				state:  childState,
				action: a,
				parent: current,
				gCost:  g,
				hCost:  hc,
				fCost:  g + hc,
			})
			seq++
			heap.Push(&open, openItem{idx: len(arena) - 1, f: g + hc, seq: seq})
		}
	}

	return nil
}

// reconstruct walks parent indices from the goal node to the root and
// returns the action sequence in execution order.
func reconstruct(arena []node, idx int) []*plan.Action {
	var reversed []*plan.Action
	for idx >= 0 {
		n := arena[idx]
		if n.action != nil {
			reversed = append(reversed, n.action)
		}
		idx = n.parent
	}

	out := make([]*plan.Action, len(reversed))
	for i, a := range reversed {
		out[len(reversed)-1-i] = a
	}
	return out
}
