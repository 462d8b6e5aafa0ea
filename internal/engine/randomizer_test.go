package engine_test

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openprep/testprep-backend/internal/engine"
	"github.com/openprep/testprep-backend/internal/model"
)

func sixOptionQuestion() model.Question {
	return model.Question{
		ID:            uuid.New(),
		Text:          "pick one",
		Options:       []string{"a", "b", "c", "d", "e", "f"},
		CorrectOption: 2,
		Marks:         1,
	}
}

func TestShuffleOptions_IsPermutation(t *testing.T) {
	q := sixOptionQuestion()
	order := engine.ShuffleOptions(q, rand.New(rand.NewSource(42)))

	require.Len(t, order.Display, len(q.Options))
	require.Len(t, order.ToOriginal, len(q.Options))

	seen := make(map[int]bool)
	for pos, orig := range order.ToOriginal {
		assert.False(t, seen[orig], "original index %d mapped twice", orig)
		seen[orig] = true
		assert.Equal(t, q.Options[orig], order.Display[pos])
	}
}

func TestShuffleOptions_CorrectnessSurvivesShuffle(t *testing.T) {
	q := sixOptionQuestion()
	order := engine.ShuffleOptions(q, rand.New(rand.NewSource(7)))

	// The option displayed at any position resolves back to its original
	// correctness value.
	for pos := range order.Display {
		orig, err := order.OriginalIndex(pos)
		require.NoError(t, err)
		assert.Equal(t, orig == q.CorrectOption, order.Display[pos] == q.Options[q.CorrectOption])
	}
}

func TestShuffleOptions_DeterministicForFixedSeed(t *testing.T) {
	q := sixOptionQuestion()
	a := engine.ShuffleOptions(q, rand.New(rand.NewSource(99)))
	b := engine.ShuffleOptions(q, rand.New(rand.NewSource(99)))
	assert.Equal(t, a, b)
}

func TestShuffleOptions_VariesAcrossSeeds(t *testing.T) {
	q := sixOptionQuestion()

	distinct := make(map[string]bool)
	for seed := int64(0); seed < 20; seed++ {
		order := engine.ShuffleOptions(q, rand.New(rand.NewSource(seed)))
		key := ""
		for _, o := range order.ToOriginal {
			key += string(rune('a' + o))
		}
		distinct[key] = true
	}
	// 20 independent seeds over 6! permutations collide into a single order
	// only if the shuffle is broken.
	assert.Greater(t, len(distinct), 1)
}

func TestShuffleTest_CoversEveryQuestion(t *testing.T) {
	def := twoSectionTest()
	orders := engine.ShuffleTest(def, 1234)

	require.Len(t, orders, def.QuestionCount())
	for _, id := range questionIDs(def) {
		order, ok := orders[id]
		require.True(t, ok, "question %s missing from shuffle", id)
		q := def.QuestionByID(id)
		assert.Len(t, order.Display, len(q.Options))
	}
}

func TestOriginalIndex_OutOfRange(t *testing.T) {
	q := sixOptionQuestion()
	order := engine.ShuffleOptions(q, rand.New(rand.NewSource(1)))

	_, err := order.OriginalIndex(-1)
	assert.ErrorIs(t, err, engine.ErrBadDisplayIndex)
	_, err = order.OriginalIndex(len(q.Options))
	assert.ErrorIs(t, err, engine.ErrBadDisplayIndex)
}
