package websocket

import "github.com/openprep/testprep-backend/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer        Action = "answer"
	ActionSubmitRequest Action = "submit_request"
	ActionSubmitConfirm Action = "submit_confirm"
	ActionSubmitCancel  Action = "submit_cancel"
	ActionPing          Action = "ping"
)

// RequestPayload is the single client message shape; QID and OptionIndex are
// only meaningful for ActionAnswer.
type RequestPayload struct {
	Action      Action `json:"action"`
	QID         string `json:"q_id,omitempty"`
	OptionIndex *int   `json:"option_index,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError          Event = "error"
	EventSaved          Event = "saved"
	EventTick           Event = "tick"
	EventWarning        Event = "warning"
	EventConfirmPending Event = "confirm_pending"
	EventCancelled      Event = "cancelled"
	EventSubmitted      Event = "submitted"
	EventPong           Event = "pong"
)

// SavedResponse acknowledges one autosaved answer.
type SavedResponse struct {
	Event Event  `json:"event"`
	QID   string `json:"q_id"`
}

// TickResponse carries the countdown, pushed once per second while the
// attempt is running. Countdown is hh:mm:ss; MinutesLeft is the ceiling.
type TickResponse struct {
	Event            Event  `json:"event"`
	RemainingSeconds int    `json:"remaining_seconds"`
	Countdown        string `json:"countdown"`
	MinutesLeft      int    `json:"minutes_left"`
}

// WarningResponse is a one-shot low-time warning.
type WarningResponse struct {
	Event       Event `json:"event"`
	MinutesLeft int   `json:"minutes_left"`
}

// ConfirmPendingResponse asks the learner to confirm a manual submission.
type ConfirmPendingResponse struct {
	Event          Event `json:"event"`
	Answered       int   `json:"answered"`
	TotalQuestions int   `json:"total_questions"`
}

// SubmittedResponse announces the finalized attempt, whether manual or
// automatic.
type SubmittedResponse struct {
	Event      Event               `json:"event"`
	Trigger    model.SubmitTrigger `json:"trigger"`
	AttemptID  string              `json:"attempt_id"`
	Score      float64             `json:"score"`
	TotalMarks float64             `json:"total_marks"`
	Percentage float64             `json:"percentage"`
}

// ErrorResponse reports a rejected action.
type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

// PongResponse answers a ping.
type PongResponse struct {
	Event Event `json:"event"`
}
