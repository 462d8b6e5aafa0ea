package engine_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openprep/testprep-backend/internal/engine"
	"github.com/openprep/testprep-backend/internal/model"
)

func TestScore_ReferenceScenario(t *testing.T) {
	// Section A: 2 × 1 mark, Section B: 1 × 2 marks. Q1 correct, Q2 wrong,
	// Q3 correct → 3/4, 75.0%.
	def := twoSectionTest()
	ids := questionIDs(def)

	answers := map[uuid.UUID]int{
		ids[0]: def.Sections[0].Questions[0].CorrectOption,
		ids[1]: 0, // wrong (correct is 1)
		ids[2]: def.Sections[1].Questions[0].CorrectOption,
	}

	sum := engine.Score(def, answers)

	assert.Equal(t, 3.0, sum.Score)
	assert.Equal(t, 4.0, sum.TotalMarks)
	assert.Equal(t, 75.0, sum.Percentage)
	assert.Equal(t, 2, sum.CorrectCount)
	assert.Equal(t, 3, sum.AnsweredCount)

	require.Len(t, sum.Sections, 2)
	assert.Equal(t, 1.0, sum.Sections[0].Score)
	assert.Equal(t, 2.0, sum.Sections[0].TotalMarks)
	assert.Equal(t, 50.0, sum.Sections[0].Percentage)
	assert.Equal(t, 1, sum.Sections[0].CorrectCount)
	assert.Equal(t, 2.0, sum.Sections[1].Score)
	assert.Equal(t, 2.0, sum.Sections[1].TotalMarks)
	assert.Equal(t, 100.0, sum.Sections[1].Percentage)
}

func TestScore_Deterministic(t *testing.T) {
	def := twoSectionTest()
	ids := questionIDs(def)
	answers := map[uuid.UUID]int{ids[0]: 1, ids[2]: 1}

	a := engine.Score(def, answers)
	b := engine.Score(def, answers)
	assert.Equal(t, a, b)
}

func TestScore_UnansweredScoresZero(t *testing.T) {
	def := twoSectionTest()

	sum := engine.Score(def, map[uuid.UUID]int{})

	assert.Equal(t, 0.0, sum.Score)
	assert.Equal(t, 4.0, sum.TotalMarks)
	assert.Equal(t, 0.0, sum.Percentage)
	assert.Equal(t, 0, sum.AnsweredCount)
}

func TestScore_SectionInvariants(t *testing.T) {
	def := twoSectionTest()
	ids := questionIDs(def)
	answers := map[uuid.UUID]int{ids[0]: 1, ids[1]: 1, ids[2]: 1}

	sum := engine.Score(def, answers)

	var sectionTotal float64
	for _, ss := range sum.Sections {
		assert.LessOrEqual(t, ss.Score, ss.TotalMarks)
		sectionTotal += ss.Score
	}
	assert.Equal(t, sum.Score, sectionTotal)
}

func TestScore_NegativeMarking(t *testing.T) {
	def := &model.TestDefinition{
		ID:              uuid.New(),
		Title:           "Penalty Test",
		DurationMinutes: 5,
		Sections: []model.TestSection{{
			ID:    uuid.New(),
			Title: "S1",
			Questions: []model.Question{
				{ID: uuid.New(), Text: "q1", Options: []string{"a", "b"}, CorrectOption: 0, Marks: 4, PenaltyMarks: 1},
				{ID: uuid.New(), Text: "q2", Options: []string{"a", "b"}, CorrectOption: 0, Marks: 4, PenaltyMarks: 1},
				{ID: uuid.New(), Text: "q3", Options: []string{"a", "b"}, CorrectOption: 0, Marks: 4, PenaltyMarks: 1},
			},
		}},
	}
	require.NoError(t, def.Validate())

	q := def.Sections[0].Questions
	answers := map[uuid.UUID]int{
		q[0].ID: 0, // correct: +4
		q[1].ID: 1, // wrong: −1
		// q3 unanswered: 0, no penalty
	}

	sum := engine.Score(def, answers)
	assert.Equal(t, 3.0, sum.Score)
	assert.Equal(t, 12.0, sum.TotalMarks)
	assert.Equal(t, 25.0, sum.Percentage)
}

func TestScore_PercentageRoundedToOneDecimal(t *testing.T) {
	def := &model.TestDefinition{
		ID:              uuid.New(),
		Title:           "Thirds",
		DurationMinutes: 5,
		Sections: []model.TestSection{{
			ID:    uuid.New(),
			Title: "S1",
			Questions: []model.Question{
				{ID: uuid.New(), Text: "q1", Options: []string{"a", "b"}, CorrectOption: 0, Marks: 1},
				{ID: uuid.New(), Text: "q2", Options: []string{"a", "b"}, CorrectOption: 0, Marks: 1},
				{ID: uuid.New(), Text: "q3", Options: []string{"a", "b"}, CorrectOption: 0, Marks: 1},
			},
		}},
	}
	require.NoError(t, def.Validate())

	answers := map[uuid.UUID]int{def.Sections[0].Questions[0].ID: 0}
	sum := engine.Score(def, answers)
	assert.Equal(t, 33.3, sum.Percentage)
}

func TestDefinition_ValidateFailsFast(t *testing.T) {
	base := func() *model.TestDefinition { return twoSectionTest() }

	t.Run("zero duration", func(t *testing.T) {
		def := base()
		def.DurationMinutes = 0
		assert.ErrorIs(t, def.Validate(), model.ErrZeroDuration)
	})

	t.Run("no sections", func(t *testing.T) {
		def := base()
		def.Sections = nil
		assert.ErrorIs(t, def.Validate(), model.ErrNoSections)
	})

	t.Run("single option", func(t *testing.T) {
		def := base()
		def.Sections[0].Questions[0].Options = []string{"only"}
		assert.ErrorIs(t, def.Validate(), model.ErrTooFewOptions)
	})

	t.Run("correct index out of range", func(t *testing.T) {
		def := base()
		def.Sections[0].Questions[0].CorrectOption = 9
		assert.ErrorIs(t, def.Validate(), model.ErrBadCorrectOption)
	})

	t.Run("negative marks", func(t *testing.T) {
		def := base()
		def.Sections[0].Questions[0].Marks = -1
		assert.ErrorIs(t, def.Validate(), model.ErrNegativeMarks)
	})
}
