package engine

import (
	"errors"
	"math/rand"

	"github.com/google/uuid"

	"github.com/openprep/testprep-backend/internal/model"
)

// ErrBadDisplayIndex is returned when a displayed option position does not
// exist for a question.
var ErrBadDisplayIndex = errors.New("displayed option index out of range")

// OptionOrder is one question's per-attempt option permutation. Display holds
// the option texts in shuffled order; ToOriginal maps each displayed position
// back to the option's original index, which is the only identity scoring
// ever compares against.
type OptionOrder struct {
	Display    []string `json:"display"`
	ToOriginal []int    `json:"to_original"`
}

// OriginalIndex resolves a displayed position back to the original option
// index.
func (o OptionOrder) OriginalIndex(displayPos int) (int, error) {
	if displayPos < 0 || displayPos >= len(o.ToOriginal) {
		return 0, ErrBadDisplayIndex
	}
	return o.ToOriginal[displayPos], nil
}

// ShuffleOptions produces a uniform Fisher–Yates permutation of a question's
// options from the given source. It never touches CorrectOption: correctness
// stays defined by original option identity.
func ShuffleOptions(q model.Question, rng *rand.Rand) OptionOrder {
	n := len(q.Options)
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		perm[i], perm[j] = perm[j], perm[i]
	}

	display := make([]string, n)
	for pos, orig := range perm {
		display[pos] = q.Options[orig]
	}
	return OptionOrder{Display: display, ToOriginal: perm}
}

// ShuffleTest builds the per-attempt option order for every question in the
// definition. Deterministic for a fixed seed; independent attempts use
// independent seeds.
func ShuffleTest(def *model.TestDefinition, seed int64) map[uuid.UUID]OptionOrder {
	rng := rand.New(rand.NewSource(seed))
	orders := make(map[uuid.UUID]OptionOrder, def.QuestionCount())
	for _, sec := range def.Sections {
		for _, q := range sec.Questions {
			orders[q.ID] = ShuffleOptions(q, rng)
		}
	}
	return orders
}
