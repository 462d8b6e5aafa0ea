package engine_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/openprep/testprep-backend/internal/engine"
	"github.com/openprep/testprep-backend/internal/model"
)

func summaryWithSections(pct float64, sections ...model.SectionScore) engine.ScoreSummary {
	return engine.ScoreSummary{Percentage: pct, Sections: sections}
}

func TestGenerateAnalytics_GradeBands(t *testing.T) {
	cfg := engine.DefaultAnalyticsConfig()

	tests := []struct {
		pct   float64
		grade string
	}{
		{100, "A+"},
		{90, "A+"},
		{89.9, "A"},
		{80, "A"},
		{79.9, "B"},
		{70, "B"},
		{60, "C"},
		{50, "D"},
		{49.9, "F"},
		{0, "F"},
	}
	for _, tc := range tests {
		a := engine.GenerateAnalytics(cfg, summaryWithSections(tc.pct), 60, 10)
		assert.Equal(t, tc.grade, a.Grade, "pct %v", tc.pct)
	}
}

func TestGenerateAnalytics_PerformanceTierIndependentOfGrade(t *testing.T) {
	cfg := engine.DefaultAnalyticsConfig()

	// 87% is A by grade bands but Excellent by performance bands; the two
	// tables are tuned independently.
	a := engine.GenerateAnalytics(cfg, summaryWithSections(87), 60, 10)
	assert.Equal(t, "A", a.Grade)
	assert.Equal(t, "Excellent", a.PerformanceTier)

	// 45% fails by grade bands yet clears the Poor cutoff on the
	// performance side.
	b := engine.GenerateAnalytics(cfg, summaryWithSections(45), 60, 10)
	assert.Equal(t, "F", b.Grade)
	assert.Equal(t, "Below Average", b.PerformanceTier)
}

func TestGenerateAnalytics_TimeEfficiency(t *testing.T) {
	cfg := engine.DefaultAnalyticsConfig()
	sum := summaryWithSections(80)

	// 10 minutes allotted: 600s. Fast below 60%, Optimal up to the limit,
	// Slow only past it (auto-submit path).
	assert.Equal(t, engine.TierFast, engine.GenerateAnalytics(cfg, sum, 300, 10).TimeEfficiency)
	assert.Equal(t, engine.TierFast, engine.GenerateAnalytics(cfg, sum, 360, 10).TimeEfficiency)
	assert.Equal(t, engine.TierOptimal, engine.GenerateAnalytics(cfg, sum, 361, 10).TimeEfficiency)
	assert.Equal(t, engine.TierOptimal, engine.GenerateAnalytics(cfg, sum, 600, 10).TimeEfficiency)
	assert.Equal(t, engine.TierSlow, engine.GenerateAnalytics(cfg, sum, 601, 10).TimeEfficiency)
}

func TestGenerateAnalytics_StrengthsAndImprovements(t *testing.T) {
	cfg := engine.DefaultAnalyticsConfig()

	sum := summaryWithSections(60,
		model.SectionScore{SectionID: uuid.New(), Title: "Algebra", Percentage: 90},
		model.SectionScore{SectionID: uuid.New(), Title: "Geometry", Percentage: 55},
		model.SectionScore{SectionID: uuid.New(), Title: "Calculus", Percentage: 20},
	)

	a := engine.GenerateAnalytics(cfg, sum, 60, 10)
	assert.Equal(t, []string{"Algebra"}, a.Strengths)
	assert.Equal(t, []string{"Calculus"}, a.Improvements)
}

func TestGenerateAnalytics_EmptyCategoriesAreValid(t *testing.T) {
	cfg := engine.DefaultAnalyticsConfig()

	sum := summaryWithSections(55,
		model.SectionScore{SectionID: uuid.New(), Title: "Middling", Percentage: 55},
	)

	a := engine.GenerateAnalytics(cfg, sum, 60, 10)
	assert.Empty(t, a.Strengths)
	assert.Empty(t, a.Improvements)
	assert.NotNil(t, a.Strengths)
	assert.NotNil(t, a.Improvements)
}

func TestAnalyticsConfig_Validate(t *testing.T) {
	assert.NoError(t, engine.DefaultAnalyticsConfig().Validate())

	t.Run("non-monotonic bands", func(t *testing.T) {
		cfg := engine.DefaultAnalyticsConfig()
		cfg.GradeBands = []engine.Band{{Min: 50, Label: "A"}, {Min: 80, Label: "B"}, {Min: 0, Label: "F"}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("not exhaustive", func(t *testing.T) {
		cfg := engine.DefaultAnalyticsConfig()
		cfg.GradeBands = []engine.Band{{Min: 90, Label: "A"}, {Min: 50, Label: "B"}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("weak above strong", func(t *testing.T) {
		cfg := engine.DefaultAnalyticsConfig()
		cfg.WeakSectionPct = 80
		assert.Error(t, cfg.Validate())
	})

	t.Run("fast ratio out of range", func(t *testing.T) {
		cfg := engine.DefaultAnalyticsConfig()
		cfg.FastRatio = 1.5
		assert.Error(t, cfg.Validate())
	})
}
