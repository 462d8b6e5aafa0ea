package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openprep/testprep-backend/internal/engine"
	"github.com/openprep/testprep-backend/internal/middleware"
	"github.com/openprep/testprep-backend/internal/model"
	"github.com/openprep/testprep-backend/internal/repository"
	"github.com/openprep/testprep-backend/internal/response"
	"github.com/openprep/testprep-backend/internal/service"
	"github.com/openprep/testprep-backend/internal/validator"
)

// LearnerPortalHandler handles the learner-facing test-taking endpoints.
type LearnerPortalHandler struct {
	testService    *service.TestService
	attemptService *service.AttemptService
	resultService  *service.ResultService
}

// NewLearnerPortalHandler creates a new LearnerPortalHandler.
func NewLearnerPortalHandler(
	testService *service.TestService,
	attemptService *service.AttemptService,
	resultService *service.ResultService,
) *LearnerPortalHandler {
	return &LearnerPortalHandler{
		testService:    testService,
		attemptService: attemptService,
		resultService:  resultService,
	}
}

// failAttemptError maps engine and service errors onto API error codes.
func failAttemptError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrTestNotAvailable):
		response.Fail(c, http.StatusNotFound, response.ErrTestNotAvailable)
	case errors.Is(err, service.ErrNoActiveAttempt):
		response.Fail(c, http.StatusNotFound, response.ErrNoActiveAttempt)
	case errors.Is(err, service.ErrAttemptAlreadySubmitted), errors.Is(err, engine.ErrAlreadySubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
	case errors.Is(err, engine.ErrSubmissionInFlight):
		response.Fail(c, http.StatusConflict, response.ErrSubmissionInFlight)
	case errors.Is(err, engine.ErrAnswersFrozen):
		response.Fail(c, http.StatusConflict, response.ErrAttemptFrozen)
	case errors.Is(err, engine.ErrUnknownQuestion):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrUnknownQuestion)
	case errors.Is(err, engine.ErrOptionOutOfRange), errors.Is(err, engine.ErrBadDisplayIndex):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrOptionOutOfRange)
	case errors.Is(err, engine.ErrNoPendingConfirmation):
		response.Fail(c, http.StatusConflict, response.ErrNoPendingSubmission)
	case errors.Is(err, repository.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// parseAttemptParams extracts the authenticated learner and the test ID
// from the request. A nil return means the response is already written.
func parseAttemptParams(c *gin.Context) (int, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return 0, uuid.Nil, false
	}
	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, uuid.Nil, false
	}
	return claims.UserID, testID, true
}

// AttemptOverlay is the learner's standing on a listed test.
type AttemptOverlay string

const (
	OverlayAvailable  AttemptOverlay = "AVAILABLE"
	OverlayInProgress AttemptOverlay = "IN_PROGRESS"
	OverlayCompleted  AttemptOverlay = "COMPLETED"
)

// ListTests godoc
// GET /api/v1/tests
// Lists tests open for attempts with the learner's status on each.
// Definitions are stripped to metadata; questions are only revealed once
// an attempt starts.
func (h *LearnerPortalHandler) ListTests(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	ctx := c.Request.Context()
	defs, err := h.testService.ListPublished(ctx)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	completed, err := h.resultService.ListForLearner(ctx, claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	completedByTest := make(map[uuid.UUID]float64, len(completed))
	for i := range completed {
		completedByTest[completed[i].TestID] = completed[i].Score
	}

	tests := make([]gin.H, 0, len(defs))
	for i := range defs {
		entry := gin.H{
			"id":               defs[i].ID,
			"title":            defs[i].Title,
			"duration_minutes": defs[i].DurationMinutes,
			"question_count":   defs[i].QuestionCount(),
			"total_marks":      defs[i].TotalMarks(),
		}
		if score, ok := completedByTest[defs[i].ID]; ok {
			entry["attempt_status"] = OverlayCompleted
			entry["score"] = score
		} else if h.attemptService.HasLiveAttempt(ctx, defs[i].ID, claims.UserID) {
			entry["attempt_status"] = OverlayInProgress
		} else {
			entry["attempt_status"] = OverlayAvailable
		}
		tests = append(tests, entry)
	}

	response.Success(c, http.StatusOK, gin.H{"tests": tests})
}

// StartAttempt godoc
// POST /api/v1/tests/:test_id/attempt
// Starts the learner's attempt or resumes a live one. Returns the shuffled
// paper and the remaining time.
func (h *LearnerPortalHandler) StartAttempt(c *gin.Context) {
	userID, testID, ok := parseAttemptParams(c)
	if !ok {
		return
	}

	result, err := h.attemptService.StartAttempt(c.Request.Context(), testID, userID)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GetPaper godoc
// GET /api/v1/tests/:test_id/attempt/paper
// Returns the learner's shuffled paper for the live attempt. The option
// order is stable across reloads because it derives from the attempt seed.
func (h *LearnerPortalHandler) GetPaper(c *gin.Context) {
	userID, testID, ok := parseAttemptParams(c)
	if !ok {
		return
	}

	paper, err := h.attemptService.Paper(c.Request.Context(), testID, userID)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"paper": paper})
}

// GetState godoc
// GET /api/v1/tests/:test_id/attempt/state
// Returns the reload-survivable attempt state: saved answers in displayed
// positions plus the authoritative remaining time.
func (h *LearnerPortalHandler) GetState(c *gin.Context) {
	userID, testID, ok := parseAttemptParams(c)
	if !ok {
		return
	}

	state, err := h.attemptService.State(c.Request.Context(), testID, userID)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// SelectAnswer godoc
// POST /api/v1/tests/:test_id/attempt/answers
// Records one answer. Re-answering replaces the earlier selection.
func (h *LearnerPortalHandler) SelectAnswer(c *gin.Context) {
	userID, testID, ok := parseAttemptParams(c)
	if !ok {
		return
	}

	var req model.SelectAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.SelectAnswer(c.Request.Context(), testID, userID, &req); err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"saved": true})
}

// RequestSubmit godoc
// POST /api/v1/tests/:test_id/attempt/submit
// Opens the confirmation step of a manual submission. Nothing is final
// until the learner confirms.
func (h *LearnerPortalHandler) RequestSubmit(c *gin.Context) {
	userID, testID, ok := parseAttemptParams(c)
	if !ok {
		return
	}

	confirmation, err := h.attemptService.RequestSubmit(c.Request.Context(), testID, userID)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, confirmation)
}

// ConfirmSubmit godoc
// POST /api/v1/tests/:test_id/attempt/submit/confirm
// Completes a manual submission and returns the scored record.
func (h *LearnerPortalHandler) ConfirmSubmit(c *gin.Context) {
	userID, testID, ok := parseAttemptParams(c)
	if !ok {
		return
	}

	rec, err := h.attemptService.ConfirmSubmit(c.Request.Context(), testID, userID)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"record": rec})
}

// CancelSubmit godoc
// POST /api/v1/tests/:test_id/attempt/submit/cancel
// Withdraws an open submission confirmation; the attempt continues.
func (h *LearnerPortalHandler) CancelSubmit(c *gin.Context) {
	userID, testID, ok := parseAttemptParams(c)
	if !ok {
		return
	}

	if err := h.attemptService.CancelSubmit(c.Request.Context(), testID, userID); err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"cancelled": true})
}

// GetResult godoc
// GET /api/v1/tests/:test_id/result
// Returns the learner's finalized attempt with section scores, analytics
// and current ranking.
func (h *LearnerPortalHandler) GetResult(c *gin.Context) {
	userID, testID, ok := parseAttemptParams(c)
	if !ok {
		return
	}

	result, err := h.resultService.GetResult(c.Request.Context(), testID, userID)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GetAttemptByID godoc
// GET /api/v1/attempts/:attempt_id
// Returns a single finalized attempt by its ID. Learners can only see
// their own attempts; anything else reads as not found.
func (h *LearnerPortalHandler) GetAttemptByID(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.resultService.GetByAttemptID(c.Request.Context(), attemptID)
	if err != nil {
		failAttemptError(c, err)
		return
	}
	if result.Record.UserID != claims.UserID {
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GetLeaderboard godoc
// GET /api/v1/tests/:test_id/leaderboard
// Returns all finalized attempts for a test in rank order.
func (h *LearnerPortalHandler) GetLeaderboard(c *gin.Context) {
	_, testID, ok := parseAttemptParams(c)
	if !ok {
		return
	}

	board, err := h.resultService.Leaderboard(c.Request.Context(), testID)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"leaderboard": board})
}

// ListMyResults godoc
// GET /api/v1/results
// Returns all of the learner's finalized attempts, most recent first.
func (h *LearnerPortalHandler) ListMyResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	records, err := h.resultService.ListForLearner(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"results": records})
}
