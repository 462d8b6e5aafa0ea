package engine_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openprep/testprep-backend/internal/engine"
	"github.com/openprep/testprep-backend/internal/model"
)

func newSession(t *testing.T, def *model.TestDefinition) *engine.Session {
	t.Helper()
	require.NoError(t, def.Validate())
	orders := engine.ShuffleTest(def, 42)
	return engine.NewSession(def, 1, orders, time.Now())
}

func TestSession_SelectAnswerStoresOriginalIndex(t *testing.T) {
	def := twoSectionTest()
	orders := engine.ShuffleTest(def, 42)
	sess := engine.NewSession(def, 1, orders, time.Now())

	q := def.Sections[0].Questions[0]
	// Find the displayed position of the correct option and select it.
	displayed := -1
	for pos, orig := range orders[q.ID].ToOriginal {
		if orig == q.CorrectOption {
			displayed = pos
		}
	}
	require.NotEqual(t, -1, displayed)

	require.NoError(t, sess.SelectAnswer(q.ID, displayed))
	assert.Equal(t, q.CorrectOption, sess.Answers()[q.ID])
}

func TestSession_LastWriteWins(t *testing.T) {
	def := twoSectionTest()
	sess := newSession(t, def)
	qID := def.Sections[0].Questions[0].ID

	require.NoError(t, sess.SelectAnswer(qID, 0))
	require.NoError(t, sess.SelectAnswer(qID, 2))

	assert.Equal(t, 1, sess.AnsweredCount())
}

func TestSession_InputErrors(t *testing.T) {
	def := twoSectionTest()
	sess := newSession(t, def)

	err := sess.SelectAnswer(uuid.New(), 0)
	assert.ErrorIs(t, err, engine.ErrUnknownQuestion)

	qID := def.Sections[0].Questions[0].ID
	err = sess.SelectAnswer(qID, 99)
	assert.ErrorIs(t, err, engine.ErrOptionOutOfRange)

	// Rejected input leaves state unchanged.
	assert.Equal(t, 0, sess.AnsweredCount())
	assert.Equal(t, model.AttemptStatusActive, sess.Status())
}

func TestSession_FrozenAfterExpiry(t *testing.T) {
	def := twoSectionTest()
	sess := newSession(t, def)
	qID := def.Sections[0].Questions[0].ID

	require.NoError(t, sess.SelectAnswer(qID, 0))
	sess.Expire()

	assert.Equal(t, model.AttemptStatusExpired, sess.Status())
	assert.ErrorIs(t, sess.SelectAnswer(qID, 1), engine.ErrAnswersFrozen)
	// The frozen map is preserved verbatim.
	assert.Equal(t, 1, sess.AnsweredCount())
}

func TestSession_NavigationCrossesSections(t *testing.T) {
	def := twoSectionTest()
	sess := newSession(t, def)

	pos, _ := sess.Current()
	assert.Equal(t, engine.Position{Section: 0, Question: 0}, pos)

	assert.Equal(t, engine.Position{Section: 0, Question: 1}, sess.Advance())
	// Past the last question of section A into section B.
	assert.Equal(t, engine.Position{Section: 1, Question: 0}, sess.Advance())
	// Past the very last question: no-op.
	assert.Equal(t, engine.Position{Section: 1, Question: 0}, sess.Advance())

	assert.Equal(t, engine.Position{Section: 0, Question: 1}, sess.Retreat())
	assert.Equal(t, engine.Position{Section: 0, Question: 0}, sess.Retreat())
	// Before the first question: no-op.
	assert.Equal(t, engine.Position{Section: 0, Question: 0}, sess.Retreat())
}

func TestSession_NavigationFreeRegardlessOfCompleteness(t *testing.T) {
	def := twoSectionTest()
	sess := newSession(t, def)

	// Nothing answered; navigation still moves both directions.
	sess.Advance()
	sess.Advance()
	pos, q := sess.Current()
	assert.Equal(t, engine.Position{Section: 1, Question: 0}, pos)
	assert.Equal(t, def.Sections[1].Questions[0].ID, q.ID)
}

func TestSession_RestoreAnswer(t *testing.T) {
	def := twoSectionTest()
	sess := newSession(t, def)
	q := def.Sections[1].Questions[0]

	require.NoError(t, sess.RestoreAnswer(q.ID, q.CorrectOption))
	assert.Equal(t, q.CorrectOption, sess.Answers()[q.ID])

	assert.ErrorIs(t, sess.RestoreAnswer(q.ID, 99), engine.ErrOptionOutOfRange)
	assert.ErrorIs(t, sess.RestoreAnswer(uuid.New(), 0), engine.ErrUnknownQuestion)
}
