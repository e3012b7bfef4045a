package main

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnigramTable(t *testing.T) {
	assert.Equal(t, 28, UnigramTable.Len(), "26 letters, space and period")

	for r := 'a'; r <= 'z'; r++ {
		p, ok := UnigramTable.Lookup(r)
		require.True(t, ok, "missing %q", r)
		assert.Greater(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}

	p, ok := UnigramTable.Lookup(' ')
	require.True(t, ok)
	assert.Equal(t, 0.19, p)

	_, ok = UnigramTable.Lookup('A')
	assert.False(t, ok, "tables are keyed by lower-case characters")
}

func TestContextTableKeys(t *testing.T) {
	keys := ContextModelTable.Keys()
	assert.Len(t, keys, 16)
	assert.Equal(t, "th", keys[0])
	assert.Equal(t, "t.", keys[len(keys)-1])

	for _, k := range keys {
		assert.Len(t, []rune(k), ContextOrder, "key %q", k)
		inner, ok := ContextModelTable.Lookup(k)
		require.True(t, ok)
		for _, e := range inner.Entries() {
			assert.Greater(t, e.Prob, 0.0)
			assert.LessOrEqual(t, e.Prob, 1.0)
		}
	}

	th, _ := ContextModelTable.Lookup("th")
	p, ok := th.Lookup('e')
	require.True(t, ok)
	assert.Equal(t, 0.70, p)
}

func TestProbabilityTableDuplicates(t *testing.T) {
	table := NewProbabilityTable(pred('a', 0.1), pred('b', 0.2), pred('a', 0.3))

	assert.Equal(t, 2, table.Len())
	entries := table.Entries()
	assert.Equal(t, 'a', entries[0].Char, "repeated entries keep their first position")
	assert.Equal(t, 0.3, entries[0].Prob, "and take the last probability")
}

func TestProbOrFloor(t *testing.T) {
	table := NewProbabilityTable(pred('a', 0.5), pred('z', 0))

	assert.Equal(t, 0.5, table.ProbOrFloor('a'))
	assert.Equal(t, UnknownCharacterFloor, table.ProbOrFloor('b'))
	assert.Equal(t, UnknownCharacterFloor, table.ProbOrFloor('z'), "zero probabilities fall to the floor")
}

func TestEntriesReturnsCopy(t *testing.T) {
	entries := UnigramTable.Entries()
	entries[0].Prob = 42

	p, _ := UnigramTable.Lookup(entries[0].Char)
	assert.NotEqual(t, 42.0, p)
}

func TestPredictionJSON(t *testing.T) {
	b, err := json.Marshal(Prediction{Char: ' ', Prob: 0.19})
	require.NoError(t, err)
	assert.JSONEq(t, `{"char":" ","prob":0.19}`, string(b))

	var got Prediction
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, Prediction{Char: ' ', Prob: 0.19}, got)
}
