package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/goap/state"
)

func TestCostTotal(t *testing.T) {
	tests := []struct {
		name string
		cost Cost
		want float64
	}{
		{"low risk", Cost{DevelopmentHours: 10, Risk: RiskLow}, 10},
		{"medium risk", Cost{DevelopmentHours: 10, Risk: RiskMedium}, 15},
		{"high risk", Cost{DevelopmentHours: 10, Risk: RiskHigh}, 20},
		{"critical risk", Cost{DevelopmentHours: 10, Risk: RiskCritical}, 30},
		{"unknown tier multiplies by one", Cost{DevelopmentHours: 10, Risk: "weird"}, 10},
		{"empty tier multiplies by one", Cost{DevelopmentHours: 10}, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cost.Total(nil))
		})
	}

	t.Run("custom factor table", func(t *testing.T) {
		factors := RiskFactors{RiskLow: 2.0}
		assert.Equal(t, 20.0, Cost{DevelopmentHours: 10, Risk: RiskLow}.Total(factors))
	})
}

func TestValidateActions(t *testing.T) {
	t.Run("accepts valid table", func(t *testing.T) {
		actions := []*Action{
			{ID: "a1", Name: "First"},
			{ID: "a2", Name: "Second", Cost: Cost{Risk: RiskHigh}},
		}
		require.NoError(t, ValidateActions(actions))
	})

	t.Run("rejects duplicate ids", func(t *testing.T) {
		actions := []*Action{{ID: "a1"}, {ID: "a1"}}
		err := ValidateActions(actions)
		require.ErrorIs(t, err, ErrDuplicateAction)
	})

	t.Run("rejects empty id", func(t *testing.T) {
		err := ValidateActions([]*Action{{Name: "unnamed"}})
		require.ErrorIs(t, err, ErrEmptyActionID)
	})

	t.Run("rejects unknown risk tier", func(t *testing.T) {
		err := ValidateActions([]*Action{{ID: "a1", Cost: Cost{Risk: "extreme"}}})
		require.Error(t, err)
	})

	t.Run("rejects malformed guard", func(t *testing.T) {
		err := ValidateActions([]*Action{{ID: "a1", Guard: `state[`}})
		require.ErrorIs(t, err, ErrInvalidGuard)
	})

	t.Run("rejects non-bool guard", func(t *testing.T) {
		err := ValidateActions([]*Action{{ID: "a1", Guard: `"not a bool"`}})
		require.ErrorIs(t, err, ErrInvalidGuard)
	})
}

func TestActionApplicable(t *testing.T) {
	current := state.State{
		"api_designed": state.Bool(true),
		"coverage":     state.Number(0.9),
	}

	t.Run("preconditions satisfied", func(t *testing.T) {
		a := &Action{ID: "a1", Preconditions: state.State{"api_designed": state.Bool(true)}}
		assert.True(t, a.Applicable(current))
	})

	t.Run("preconditions unmet", func(t *testing.T) {
		a := &Action{ID: "a1", Preconditions: state.State{"deployed": state.Bool(true)}}
		assert.False(t, a.Applicable(current))
	})

	t.Run("guard passes", func(t *testing.T) {
		a := &Action{ID: "a1", Guard: `state["coverage"] >= 0.8`}
		require.NoError(t, ValidateActions([]*Action{a}))
		assert.True(t, a.Applicable(current))
	})

	t.Run("guard fails", func(t *testing.T) {
		a := &Action{ID: "a1", Guard: `state["coverage"] >= 0.95`}
		require.NoError(t, ValidateActions([]*Action{a}))
		assert.False(t, a.Applicable(current))
	})

	t.Run("guard over missing key is inapplicable", func(t *testing.T) {
		a := &Action{ID: "a1", Guard: `state["missing"] == 1.0`}
		require.NoError(t, ValidateActions([]*Action{a}))
		assert.False(t, a.Applicable(current))
	})

	t.Run("uncompiled guard is inapplicable", func(t *testing.T) {
		a := &Action{ID: "a1", Guard: `true`}
		assert.False(t, a.Applicable(current))
	})
}

func TestActionApply(t *testing.T) {
	a := &Action{
		ID:      "deploy",
		Effects: state.State{"deployed": state.Bool(true)},
	}
	before := state.State{"built": state.Bool(true)}
	after := a.Apply(before)

	assert.True(t, after.Satisfies(state.State{"built": state.Bool(true), "deployed": state.Bool(true)}))
	assert.False(t, before.Satisfies(state.State{"deployed": state.Bool(true)}))
}

func TestIndex(t *testing.T) {
	actions := []*Action{{ID: "a1"}, {ID: "a2"}}
	idx := Index(actions)
	require.Len(t, idx, 2)
	assert.Same(t, actions[0], idx["a1"])
	assert.Same(t, actions[1], idx["a2"])
}
