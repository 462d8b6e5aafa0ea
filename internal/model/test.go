package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TestStatus enumerates the possible states of a test definition.
type TestStatus string

const (
	TestStatusDraft     TestStatus = "DRAFT"
	TestStatusPublished TestStatus = "PUBLISHED"
	TestStatusArchived  TestStatus = "ARCHIVED"
)

// Definition-level validation errors. Raised at load time, before any
// attempt may start.
var (
	ErrZeroDuration     = errors.New("test duration must be at least one minute")
	ErrNoSections       = errors.New("test has no sections")
	ErrNoQuestions      = errors.New("section has no questions")
	ErrTooFewOptions    = errors.New("question needs at least two options")
	ErrBadCorrectOption = errors.New("correct option index out of range")
	ErrNegativeMarks    = errors.New("question marks must not be negative")
)

// TestDefinition is the immutable specification of a test: ordered sections,
// each with ordered multiple-choice questions.
type TestDefinition struct {
	ID              uuid.UUID     `json:"id"`
	Title           string        `json:"title"`
	DurationMinutes int           `json:"duration_minutes"`
	Sections        []TestSection `json:"sections"`
	Status          TestStatus    `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// TestSection is a named, ordered group of questions scored independently
// before aggregation.
type TestSection struct {
	ID        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Question is a single multiple-choice question. CorrectOption is a
// zero-based index into Options. PenaltyMarks is the optional negative-marking
// deduction applied when an answered selection is wrong; zero means no
// penalty. Unanswered questions are never penalized.
type Question struct {
	ID            uuid.UUID `json:"id"`
	Text          string    `json:"text"`
	Options       []string  `json:"options"`
	CorrectOption int       `json:"correct_option"`
	Marks         float64   `json:"marks"`
	PenaltyMarks  float64   `json:"penalty_marks,omitempty"`
}

// Validate fails fast on a malformed definition so that no attempt session
// can ever start against one.
func (d *TestDefinition) Validate() error {
	if d.DurationMinutes < 1 {
		return fmt.Errorf("test %s: %w", d.ID, ErrZeroDuration)
	}
	if len(d.Sections) == 0 {
		return fmt.Errorf("test %s: %w", d.ID, ErrNoSections)
	}
	for _, sec := range d.Sections {
		if len(sec.Questions) == 0 {
			return fmt.Errorf("section %q: %w", sec.Title, ErrNoQuestions)
		}
		for _, q := range sec.Questions {
			if len(q.Options) < 2 {
				return fmt.Errorf("question %s: %w", q.ID, ErrTooFewOptions)
			}
			if q.CorrectOption < 0 || q.CorrectOption >= len(q.Options) {
				return fmt.Errorf("question %s: %w", q.ID, ErrBadCorrectOption)
			}
			if q.Marks < 0 || q.PenaltyMarks < 0 {
				return fmt.Errorf("question %s: %w", q.ID, ErrNegativeMarks)
			}
		}
	}
	return nil
}

// QuestionCount returns the total number of questions across all sections.
func (d *TestDefinition) QuestionCount() int {
	n := 0
	for _, sec := range d.Sections {
		n += len(sec.Questions)
	}
	return n
}

// TotalMarks returns the sum of marks across all questions.
func (d *TestDefinition) TotalMarks() float64 {
	var total float64
	for _, sec := range d.Sections {
		for _, q := range sec.Questions {
			total += q.Marks
		}
	}
	return total
}

// QuestionByID returns the question with the given ID, or nil.
func (d *TestDefinition) QuestionByID(id uuid.UUID) *Question {
	for si := range d.Sections {
		for qi := range d.Sections[si].Questions {
			if d.Sections[si].Questions[qi].ID == id {
				return &d.Sections[si].Questions[qi]
			}
		}
	}
	return nil
}

// TestPaper is the attempt-facing view of a test: options shuffled per
// attempt, correct answers stripped. Sent to the learner, cached in Redis.
type TestPaper struct {
	TestID          uuid.UUID      `json:"test_id"`
	Title           string         `json:"title"`
	DurationMinutes int            `json:"duration_minutes"`
	Sections        []PaperSection `json:"sections"`
}

// PaperSection mirrors TestSection without answer data.
type PaperSection struct {
	ID        uuid.UUID       `json:"id"`
	Title     string          `json:"title"`
	Questions []PaperQuestion `json:"questions"`
}

// PaperQuestion carries the shuffled option texts. Answers are reported in
// displayed positions and resolved back to original indices server-side.
type PaperQuestion struct {
	ID      uuid.UUID `json:"id"`
	Text    string    `json:"text"`
	Options []string  `json:"options"`
	Marks   float64   `json:"marks"`
}
