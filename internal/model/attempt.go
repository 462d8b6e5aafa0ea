package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates the lifecycle of one attempt session.
// Once a session leaves ACTIVE its answer map is frozen.
type AttemptStatus string

const (
	AttemptStatusActive     AttemptStatus = "ACTIVE"
	AttemptStatusSubmitting AttemptStatus = "SUBMITTING"
	AttemptStatusSubmitted  AttemptStatus = "SUBMITTED"
	AttemptStatusExpired    AttemptStatus = "EXPIRED"
)

// SubmitTrigger records which path finalized an attempt.
type SubmitTrigger string

const (
	SubmitTriggerManual SubmitTrigger = "MANUAL"
	SubmitTriggerAuto   SubmitTrigger = "AUTO"
)

// SectionScore is the per-section slice of a scored attempt.
type SectionScore struct {
	SectionID      uuid.UUID `json:"section_id"`
	Title          string    `json:"title"`
	Score          float64   `json:"score"`
	TotalMarks     float64   `json:"total_marks"`
	Percentage     float64   `json:"percentage"`
	CorrectCount   int       `json:"correct_count"`
	TotalQuestions int       `json:"total_questions"`
}

// Analytics is the derived categorical summary of a scored attempt. The three
// tiers are independent mappings over the same raw score and timing data.
type Analytics struct {
	Grade           string   `json:"grade"`
	PerformanceTier string   `json:"performance_tier"`
	TimeEfficiency  string   `json:"time_efficiency"`
	Strengths       []string `json:"strengths"`
	Improvements    []string `json:"improvements"`
}

// TestAttemptRecord is the immutable outcome of one attempt session. Created
// exactly once at successful submission, never mutated afterward.
type TestAttemptRecord struct {
	AttemptID        uuid.UUID         `json:"attempt_id"`
	UserID           int               `json:"user_id"`
	TestID           uuid.UUID         `json:"test_id"`
	Answers          map[uuid.UUID]int `json:"answers"`
	Score            float64           `json:"score"`
	TotalMarks       float64           `json:"total_marks"`
	Percentage       float64           `json:"percentage"`
	StartedAt        time.Time         `json:"started_at"`
	FinishedAt       time.Time         `json:"finished_at"`
	TimeSpentSeconds int               `json:"time_spent_seconds"`
	Trigger          SubmitTrigger     `json:"trigger"`
	SectionScores    []SectionScore    `json:"section_scores"`
	Analytics        Analytics         `json:"analytics"`
}

// RankingSnapshot places one attempt among all completed attempts for the
// same test. Derived on demand, never stored as a source of truth.
type RankingSnapshot struct {
	Rank          int     `json:"rank"`
	Percentile    float64 `json:"percentile"`
	TotalAttempts int     `json:"total_attempts"`
}

// SelectAnswerRequest is the payload for recording one answer. The option
// index refers to the displayed (shuffled) position.
type SelectAnswerRequest struct {
	QuestionID  uuid.UUID `json:"question_id" binding:"required"`
	OptionIndex int       `json:"option_index" binding:"min=0"`
}

// SubmitConfirmation is returned when a manual submit is requested: the
// learner must confirm against the answered/total counts before the
// submission proceeds.
type SubmitConfirmation struct {
	Answered       int  `json:"answered"`
	TotalQuestions int  `json:"total_questions"`
	Pending        bool `json:"pending"`
}
