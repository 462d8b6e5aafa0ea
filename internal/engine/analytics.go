package engine

import (
	"fmt"

	"github.com/openprep/testprep-backend/internal/model"
)

// Time-efficiency tiers.
const (
	TierFast    = "Fast"
	TierOptimal = "Optimal"
	TierSlow    = "Slow"
)

// Band maps a minimum percentage (inclusive) to a label. Band tables are
// ordered by descending Min and the last band must start at zero so every
// percentage in [0,100] resolves.
type Band struct {
	Min   float64
	Label string
}

// AnalyticsConfig holds every cut point the generator uses. Grade bands and
// performance bands are independent tables over the same percentage so
// display categories can be tuned without touching pass/fail grading.
type AnalyticsConfig struct {
	GradeBands       []Band
	PerformanceBands []Band
	// FastRatio is the fraction of the allotted time under which a finish
	// counts as Fast. Using more than the allotted time (possible only via
	// the automatic-submit path) counts as Slow.
	FastRatio float64
	// StrongSectionPct and WeakSectionPct classify sections into strengths
	// and improvement areas; sections in between appear in neither list.
	StrongSectionPct float64
	WeakSectionPct   float64
}

// DefaultAnalyticsConfig returns the stock cut points.
func DefaultAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{
		GradeBands: []Band{
			{Min: 90, Label: "A+"},
			{Min: 80, Label: "A"},
			{Min: 70, Label: "B"},
			{Min: 60, Label: "C"},
			{Min: 50, Label: "D"},
			{Min: 0, Label: "F"},
		},
		PerformanceBands: []Band{
			{Min: 85, Label: "Excellent"},
			{Min: 70, Label: "Good"},
			{Min: 50, Label: "Average"},
			{Min: 35, Label: "Below Average"},
			{Min: 0, Label: "Poor"},
		},
		FastRatio:        0.6,
		StrongSectionPct: 75,
		WeakSectionPct:   40,
	}
}

// Validate rejects band tables that are not monotonic or not exhaustive over
// [0,100], and ratios outside their meaningful ranges.
func (c AnalyticsConfig) Validate() error {
	if err := validateBands("grade", c.GradeBands); err != nil {
		return err
	}
	if err := validateBands("performance", c.PerformanceBands); err != nil {
		return err
	}
	if c.FastRatio <= 0 || c.FastRatio >= 1 {
		return fmt.Errorf("fast ratio must be in (0,1), got %v", c.FastRatio)
	}
	if c.WeakSectionPct >= c.StrongSectionPct {
		return fmt.Errorf("weak threshold %v must be below strong threshold %v",
			c.WeakSectionPct, c.StrongSectionPct)
	}
	return nil
}

func validateBands(name string, bands []Band) error {
	if len(bands) == 0 {
		return fmt.Errorf("%s bands are empty", name)
	}
	for i := 1; i < len(bands); i++ {
		if bands[i].Min >= bands[i-1].Min {
			return fmt.Errorf("%s bands are not strictly descending at %q", name, bands[i].Label)
		}
	}
	if bands[len(bands)-1].Min != 0 {
		return fmt.Errorf("%s bands do not cover 0", name)
	}
	return nil
}

func pickBand(bands []Band, pct float64) string {
	for _, b := range bands {
		if pct >= b.Min {
			return b.Label
		}
	}
	// Unreachable for validated tables; negative percentages (heavy negative
	// marking) fall into the lowest band.
	return bands[len(bands)-1].Label
}

// GenerateAnalytics derives grade, performance tier, time-efficiency tier and
// section strengths/improvements from a scored result. Stable for identical
// inputs.
func GenerateAnalytics(cfg AnalyticsConfig, sum ScoreSummary, timeSpentSeconds, durationMinutes int) model.Analytics {
	a := model.Analytics{
		Grade:           pickBand(cfg.GradeBands, sum.Percentage),
		PerformanceTier: pickBand(cfg.PerformanceBands, sum.Percentage),
		Strengths:       []string{},
		Improvements:    []string{},
	}

	allotted := durationMinutes * 60
	switch {
	case float64(timeSpentSeconds) <= cfg.FastRatio*float64(allotted):
		a.TimeEfficiency = TierFast
	case timeSpentSeconds <= allotted:
		a.TimeEfficiency = TierOptimal
	default:
		a.TimeEfficiency = TierSlow
	}

	for _, ss := range sum.Sections {
		switch {
		case ss.Percentage >= cfg.StrongSectionPct:
			a.Strengths = append(a.Strengths, ss.Title)
		case ss.Percentage < cfg.WeakSectionPct:
			a.Improvements = append(a.Improvements, ss.Title)
		}
	}
	return a
}
