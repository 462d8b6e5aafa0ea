package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openprep/testprep-backend/internal/config"
	"github.com/openprep/testprep-backend/internal/engine"
	"github.com/openprep/testprep-backend/internal/model"
)

func paperFixture() *model.TestDefinition {
	return &model.TestDefinition{
		ID:              uuid.New(),
		Title:           "Fixture",
		DurationMinutes: 10,
		Status:          model.TestStatusPublished,
		Sections: []model.TestSection{
			{
				ID:    uuid.New(),
				Title: "First",
				Questions: []model.Question{
					{ID: uuid.New(), Text: "q1", Options: []string{"a", "b", "c", "d"}, CorrectOption: 0, Marks: 1},
					{ID: uuid.New(), Text: "q2", Options: []string{"a", "b", "c", "d"}, CorrectOption: 3, Marks: 2},
				},
			},
			{
				ID:    uuid.New(),
				Title: "Second",
				Questions: []model.Question{
					{ID: uuid.New(), Text: "q3", Options: []string{"x", "y", "z"}, CorrectOption: 1, Marks: 3},
				},
			},
		},
	}
}

func TestBuildPaper_PreservesStructure(t *testing.T) {
	def := paperFixture()
	orders := engine.ShuffleTest(def, 42)

	paper := buildPaper(def, orders)

	require.Len(t, paper.Sections, 2)
	assert.Equal(t, def.ID, paper.TestID)
	assert.Equal(t, def.Title, paper.Title)
	assert.Equal(t, def.DurationMinutes, paper.DurationMinutes)

	for si, sec := range def.Sections {
		ps := paper.Sections[si]
		assert.Equal(t, sec.ID, ps.ID)
		assert.Equal(t, sec.Title, ps.Title)
		require.Len(t, ps.Questions, len(sec.Questions))
		for qi, q := range sec.Questions {
			pq := ps.Questions[qi]
			assert.Equal(t, q.ID, pq.ID)
			assert.Equal(t, q.Text, pq.Text)
			assert.Equal(t, q.Marks, pq.Marks)
			assert.ElementsMatch(t, q.Options, pq.Options)
		}
	}
}

func TestBuildPaper_UsesShuffledOptionOrder(t *testing.T) {
	def := paperFixture()
	orders := engine.ShuffleTest(def, 7)

	paper := buildPaper(def, orders)

	for _, sec := range paper.Sections {
		for _, pq := range sec.Questions {
			assert.Equal(t, orders[pq.ID].Display, pq.Options)
		}
	}
}

func TestDisplayedPosition_InvertsOriginalIndex(t *testing.T) {
	def := paperFixture()
	orders := engine.ShuffleTest(def, 99)

	for _, sec := range def.Sections {
		for _, q := range sec.Questions {
			order := orders[q.ID]
			for pos := range order.Display {
				orig, err := order.OriginalIndex(pos)
				require.NoError(t, err)

				back, ok := displayedPosition(order, orig)
				require.True(t, ok)
				assert.Equal(t, pos, back)
			}
		}
	}
}

func TestDisplayedPosition_UnknownIndex(t *testing.T) {
	order := engine.OptionOrder{Display: []string{"a", "b"}, ToOriginal: []int{1, 0}}
	_, ok := displayedPosition(order, 5)
	assert.False(t, ok)
}

func TestAnalyticsConfig_AppliesDeploymentThresholds(t *testing.T) {
	s := &AttemptService{
		cfg: &config.Config{
			FastTimeRatio:    0.5,
			StrongSectionPct: 80,
			WeakSectionPct:   30,
		},
		log: zerolog.Nop(),
	}

	cfg := s.analyticsConfig()
	assert.Equal(t, 0.5, cfg.FastRatio)
	assert.Equal(t, 80.0, cfg.StrongSectionPct)
	assert.Equal(t, 30.0, cfg.WeakSectionPct)
}

func TestAnalyticsConfig_RejectsInvalidThresholds(t *testing.T) {
	s := &AttemptService{
		cfg: &config.Config{
			FastTimeRatio:    1.5, // out of range
			StrongSectionPct: 20,
			WeakSectionPct:   80, // weak above strong
		},
		log: zerolog.Nop(),
	}

	cfg := s.analyticsConfig()
	assert.Equal(t, engine.DefaultAnalyticsConfig(), cfg)
}
