package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openprep/testprep-backend/internal/model"
)

// Input and lifecycle errors surfaced by the session.
var (
	ErrUnknownQuestion    = errors.New("unknown question id")
	ErrOptionOutOfRange   = errors.New("option index out of range")
	ErrAnswersFrozen      = errors.New("attempt is no longer active, answers are frozen")
	ErrAlreadySubmitted   = errors.New("attempt already submitted")
	ErrSubmissionInFlight = errors.New("a submission is already in flight")
)

// Position locates the cursor inside the section→question sequence.
type Position struct {
	Section  int `json:"section"`
	Question int `json:"question"`
}

// Session owns one attempt's mutable state: the answer map, the navigation
// cursor, and the lifecycle status. All answers are stored by original option
// index regardless of the displayed shuffle. Safe for the two concurrent
// writers the engine has (learner input and the timer's expiry signal).
type Session struct {
	mu sync.Mutex

	id        uuid.UUID
	userID    int
	def       *model.TestDefinition
	orders    map[uuid.UUID]OptionOrder
	flat      []flatQuestion
	answers   map[uuid.UUID]int
	cursor    int
	status    model.AttemptStatus
	startedAt time.Time
}

type flatQuestion struct {
	pos Position
	q   *model.Question
}

// NewSession creates an active session over a validated definition. orders is
// the per-attempt option permutation from ShuffleTest; answers recorded via
// SelectAnswer are resolved through it.
func NewSession(def *model.TestDefinition, userID int, orders map[uuid.UUID]OptionOrder, startedAt time.Time) *Session {
	var flat []flatQuestion
	for si := range def.Sections {
		for qi := range def.Sections[si].Questions {
			flat = append(flat, flatQuestion{
				pos: Position{Section: si, Question: qi},
				q:   &def.Sections[si].Questions[qi],
			})
		}
	}
	return &Session{
		id:        uuid.New(),
		userID:    userID,
		def:       def,
		orders:    orders,
		flat:      flat,
		answers:   make(map[uuid.UUID]int),
		status:    model.AttemptStatusActive,
		startedAt: startedAt,
	}
}

func (s *Session) ID() uuid.UUID                     { return s.id }
func (s *Session) UserID() int                       { return s.userID }
func (s *Session) TestID() uuid.UUID                 { return s.def.ID }
func (s *Session) Definition() *model.TestDefinition { return s.def }
func (s *Session) StartedAt() time.Time              { return s.startedAt }

// Status returns the current lifecycle status.
func (s *Session) Status() model.AttemptStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SelectAnswer records the learner's selection for a question, given the
// displayed option position. Accepted only while the session is active; the
// last write for a question wins. Recording never scores or validates
// correctness.
func (s *Session) SelectAnswer(questionID uuid.UUID, displayedIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != model.AttemptStatusActive {
		return ErrAnswersFrozen
	}
	order, ok := s.orders[questionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	orig, err := order.OriginalIndex(displayedIndex)
	if err != nil {
		return fmt.Errorf("question %s: %w", questionID, ErrOptionOutOfRange)
	}
	s.answers[questionID] = orig
	return nil
}

// RestoreAnswer loads a previously autosaved selection by original option
// index, for session recovery after a reload or restart.
func (s *Session) RestoreAnswer(questionID uuid.UUID, originalIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != model.AttemptStatusActive {
		return ErrAnswersFrozen
	}
	q := s.def.QuestionByID(questionID)
	if q == nil {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	if originalIndex < 0 || originalIndex >= len(q.Options) {
		return fmt.Errorf("question %s: %w", questionID, ErrOptionOutOfRange)
	}
	s.answers[questionID] = originalIndex
	return nil
}

// Answers returns a copy of the answer map keyed by original option index.
func (s *Session) Answers() map[uuid.UUID]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]int, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// AnsweredCount returns how many questions have a recorded selection.
func (s *Session) AnsweredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}

// QuestionCount returns the total question count of the definition.
func (s *Session) QuestionCount() int { return len(s.flat) }

// Advance moves the cursor forward across the flattened sequence, entering
// the next section past a section's last question. Moving past the very last
// question is a no-op.
func (s *Session) Advance() Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor < len(s.flat)-1 {
		s.cursor++
	}
	return s.flat[s.cursor].pos
}

// Retreat moves the cursor backward; a no-op at the first question.
func (s *Session) Retreat() Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor > 0 {
		s.cursor--
	}
	return s.flat[s.cursor].pos
}

// Current returns the cursor position and the question under it.
func (s *Session) Current() (Position, *model.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fq := s.flat[s.cursor]
	return fq.pos, fq.q
}

// Expire freezes the session on timer expiry. No-op unless active.
func (s *Session) Expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == model.AttemptStatusActive {
		s.status = model.AttemptStatusExpired
	}
}

// beginSubmit freezes the session for submission and returns the status it
// held before, so a failed persistence can revert without losing answers.
func (s *Session) beginSubmit() (model.AttemptStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case model.AttemptStatusSubmitted:
		return s.status, ErrAlreadySubmitted
	case model.AttemptStatusSubmitting:
		return s.status, ErrSubmissionInFlight
	}
	prev := s.status
	s.status = model.AttemptStatusSubmitting
	return prev, nil
}

func (s *Session) completeSubmit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = model.AttemptStatusSubmitted
}

func (s *Session) abortSubmit(prev model.AttemptStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == model.AttemptStatusSubmitting {
		s.status = prev
	}
}
