package state

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSatisfies(t *testing.T) {
	current := State{
		"api_designed": Bool(true),
		"coverage":     Number(0.8),
		"env":          String("staging"),
	}

	t.Run("full match", func(t *testing.T) {
		goal := State{"api_designed": Bool(true), "env": String("staging")}
		assert.True(t, current.Satisfies(goal))
	})

	t.Run("value mismatch", func(t *testing.T) {
		goal := State{"env": String("prod")}
		assert.False(t, current.Satisfies(goal))
	})

	t.Run("missing key", func(t *testing.T) {
		goal := State{"deployed": Bool(true)}
		assert.False(t, current.Satisfies(goal))
	})

	t.Run("kind mismatch is not a match", func(t *testing.T) {
		goal := State{"coverage": String("0.8")}
		assert.False(t, current.Satisfies(goal))
	})

	t.Run("empty goal always satisfied", func(t *testing.T) {
		assert.True(t, current.Satisfies(State{}))
		assert.True(t, State{}.Satisfies(nil))
	})
}

func TestApply(t *testing.T) {
	base := State{"a": Number(1), "b": String("x")}
	next := base.Apply(State{"b": String("y"), "c": Bool(true)})

	assert.Equal(t, State{"a": Number(1), "b": String("y"), "c": Bool(true)}, next)

	// The receiver must be untouched.
	assert.Equal(t, State{"a": Number(1), "b": String("x")}, base)
}

func TestKey(t *testing.T) {
	t.Run("order independent", func(t *testing.T) {
		a := State{"x": Number(1), "y": Bool(true), "z": String("v")}
		b := State{"z": String("v"), "y": Bool(true), "x": Number(1)}
		assert.Equal(t, a.Key(), b.Key())
	})

	t.Run("value sensitive", func(t *testing.T) {
		a := State{"x": Number(1)}
		b := State{"x": Number(2)}
		assert.NotEqual(t, a.Key(), b.Key())
	})

	t.Run("kind sensitive", func(t *testing.T) {
		a := State{"x": String("true")}
		b := State{"x": Bool(true)}
		assert.NotEqual(t, a.Key(), b.Key())
	})

	t.Run("separator characters in strings cannot collide", func(t *testing.T) {
		a := State{"x": String(`a"&y=s:"b`), "y": String("s")}
		b := State{"x": String("a"), "y": String(`s"&x=s:"b`)}
		assert.NotEqual(t, a.Key(), b.Key())
	})

	t.Run("empty state", func(t *testing.T) {
		assert.Equal(t, "", State{}.Key())
	})
}

func TestSimilarity(t *testing.T) {
	a := State{"x": Number(1), "y": Bool(true), "z": String("v")}
	b := State{"x": Number(1), "y": Bool(false), "w": String("q")}

	t.Run("jaccard on key value agreement", func(t *testing.T) {
		// Matching: x only. Union: x, y, z, w.
		assert.InDelta(t, 0.25, Similarity(a, b), 1e-9)
	})

	t.Run("symmetric", func(t *testing.T) {
		assert.Equal(t, Similarity(a, b), Similarity(b, a))
	})

	t.Run("identical states", func(t *testing.T) {
		assert.Equal(t, 1.0, Similarity(a, a.Clone()))
	})

	t.Run("disjoint states", func(t *testing.T) {
		assert.Equal(t, 0.0, Similarity(State{"p": Bool(true)}, State{"q": Bool(true)}))
	})

	t.Run("both empty", func(t *testing.T) {
		assert.Equal(t, 1.0, Similarity(State{}, nil))
	})
}

func TestUnmetKeys(t *testing.T) {
	current := State{"a": Bool(true), "b": Number(1)}
	goal := State{"a": Bool(true), "b": Number(2), "c": String("x")}

	t.Run("default weights", func(t *testing.T) {
		assert.Equal(t, 2.0, current.UnmetKeys(goal, nil))
	})

	t.Run("weighted", func(t *testing.T) {
		weights := map[string]float64{"b": 3.0, "c": 0.5}
		assert.InDelta(t, 3.5, current.UnmetKeys(goal, weights), 1e-9)
	})

	t.Run("satisfied goal", func(t *testing.T) {
		assert.Equal(t, 0.0, current.UnmetKeys(State{"a": Bool(true)}, nil))
	})
}

func TestStateJSON(t *testing.T) {
	s := State{
		"name":  String("deploy"),
		"count": Number(3),
		"done":  Bool(false),
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded State
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, s.Equal(decoded))
}

func TestFromMap(t *testing.T) {
	t.Run("supported scalars", func(t *testing.T) {
		s, err := FromMap(map[string]any{"a": "x", "b": 2, "c": 2.5, "d": true})
		require.NoError(t, err)
		assert.True(t, s.Equal(State{
			"a": String("x"),
			"b": Number(2),
			"c": Number(2.5),
			"d": Bool(true),
		}))
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := FromMap(map[string]any{"a": []string{"nested"}})
		require.Error(t, err)
	})
}
