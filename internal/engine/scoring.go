package engine

import (
	"math"

	"github.com/google/uuid"

	"github.com/openprep/testprep-backend/internal/model"
)

// ScoreSummary is the deterministic result of scoring one frozen answer set
// against a definition.
type ScoreSummary struct {
	Score         float64
	TotalMarks    float64
	Percentage    float64
	CorrectCount  int
	AnsweredCount int
	Sections      []model.SectionScore
}

// Score maps (definition, frozen answers) to section-wise and total scores.
// Answers are compared by original option index only. A correct selection
// earns the question's full marks; a wrong selection earns zero minus the
// question's configured penalty; an unanswered question always scores zero
// with no penalty. Pure: identical inputs always yield identical output.
func Score(def *model.TestDefinition, answers map[uuid.UUID]int) ScoreSummary {
	var sum ScoreSummary
	sum.Sections = make([]model.SectionScore, 0, len(def.Sections))

	for _, sec := range def.Sections {
		ss := model.SectionScore{
			SectionID:      sec.ID,
			Title:          sec.Title,
			TotalQuestions: len(sec.Questions),
		}
		for _, q := range sec.Questions {
			ss.TotalMarks += q.Marks
			selected, answered := answers[q.ID]
			if !answered {
				continue
			}
			sum.AnsweredCount++
			if selected == q.CorrectOption {
				ss.Score += q.Marks
				ss.CorrectCount++
				sum.CorrectCount++
			} else {
				ss.Score -= q.PenaltyMarks
			}
		}
		ss.Percentage = percentage(ss.Score, ss.TotalMarks)
		sum.Score += ss.Score
		sum.TotalMarks += ss.TotalMarks
		sum.Sections = append(sum.Sections, ss)
	}

	sum.Percentage = percentage(sum.Score, sum.TotalMarks)
	return sum
}

// percentage returns score/total × 100 rounded to one decimal, or zero when
// total is zero.
func percentage(score, total float64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(score/total*1000) / 10
}
