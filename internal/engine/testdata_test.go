package engine_test

import (
	"time"

	"github.com/google/uuid"

	"github.com/openprep/testprep-backend/internal/model"
)

// fakeClock is a manually advanced Clock for deterministic timestamps.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// twoSectionTest builds the reference definition: Section A with two 1-mark
// questions, Section B with one 2-mark question.
func twoSectionTest() *model.TestDefinition {
	return &model.TestDefinition{
		ID:              uuid.New(),
		Title:           "Algebra Basics",
		DurationMinutes: 10,
		Status:          model.TestStatusPublished,
		Sections: []model.TestSection{
			{
				ID:    uuid.New(),
				Title: "Section A",
				Questions: []model.Question{
					{
						ID:            uuid.New(),
						Text:          "2 + 2 = ?",
						Options:       []string{"3", "4", "5", "6"},
						CorrectOption: 1,
						Marks:         1,
					},
					{
						ID:            uuid.New(),
						Text:          "3 × 3 = ?",
						Options:       []string{"6", "9", "12"},
						CorrectOption: 1,
						Marks:         1,
					},
				},
			},
			{
				ID:    uuid.New(),
				Title: "Section B",
				Questions: []model.Question{
					{
						ID:            uuid.New(),
						Text:          "Solve x² = 16 for positive x.",
						Options:       []string{"2", "4", "8", "16"},
						CorrectOption: 1,
						Marks:         2,
					},
				},
			},
		},
	}
}

func questionIDs(def *model.TestDefinition) []uuid.UUID {
	var ids []uuid.UUID
	for _, sec := range def.Sections {
		for _, q := range sec.Questions {
			ids = append(ids, q.ID)
		}
	}
	return ids
}
