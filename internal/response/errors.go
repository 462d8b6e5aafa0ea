package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Attempt-specific ──────────────────────────────────────────────
	ErrTestNotAvailable     ErrCode = "TEST_NOT_AVAILABLE"
	ErrTestMalformed        ErrCode = "TEST_MALFORMED"
	ErrNoActiveAttempt      ErrCode = "NO_ACTIVE_ATTEMPT"
	ErrAttemptFrozen        ErrCode = "ATTEMPT_FROZEN"
	ErrUnknownQuestion      ErrCode = "UNKNOWN_QUESTION"
	ErrOptionOutOfRange     ErrCode = "OPTION_OUT_OF_RANGE"
	ErrAlreadySubmitted     ErrCode = "ALREADY_SUBMITTED"
	ErrSubmissionInFlight   ErrCode = "SUBMISSION_IN_FLIGHT"
	ErrNoPendingSubmission  ErrCode = "NO_PENDING_SUBMISSION"
	ErrAttemptNotFound      ErrCode = "ATTEMPT_NOT_FOUND"
	ErrSubmitFailedRetry    ErrCode = "SUBMIT_FAILED_RETRYABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrSessionActive:
		return "You are already logged in on another device."
	case ErrSessionInvalidated:
		return "Your session has ended. Please log in again."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	case ErrForbidden:
		return "You do not have permission to access this resource."

	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	case ErrTestNotAvailable:
		return "This test is not currently available."
	case ErrTestMalformed:
		return "This test definition is malformed and cannot be attempted."
	case ErrNoActiveAttempt:
		return "You have no active attempt for this test."
	case ErrAttemptFrozen:
		return "Time is up or the attempt was submitted; answers can no longer be changed."
	case ErrUnknownQuestion:
		return "The question does not belong to this test."
	case ErrOptionOutOfRange:
		return "The selected option does not exist for this question."
	case ErrAlreadySubmitted:
		return "This attempt has already been submitted."
	case ErrSubmissionInFlight:
		return "A submission is already being processed."
	case ErrNoPendingSubmission:
		return "There is no submission awaiting confirmation."
	case ErrAttemptNotFound:
		return "Attempt not found."
	case ErrSubmitFailedRetry:
		return "Submission failed. Your answers are saved; please try again."

	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
