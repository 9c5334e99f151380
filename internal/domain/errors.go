package domain

import "errors"

// Sentinel errors used throughout the application.
// HTTP handlers translate these to status codes via a single mapError function;
// the DM action worker translates them to coded messages on the session wire.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrApprovalNotFound   = errors.New("approval request not found")
	ErrResolutionNotFound = errors.New("challenge resolution not found")
	ErrNotAuthorized      = errors.New("only the DM may decide on pending requests")
	ErrMaxRetriesExceeded = errors.New("maximum approval retries exceeded")
	ErrSessionMismatch    = errors.New("request does not belong to this session")
	ErrDMAlreadyPresent   = errors.New("session already has a DM")
	ErrClientNotInSession = errors.New("client is not part of any session")
	ErrInvalidAction      = errors.New("action type must not be empty")
	ErrInvalidDecision    = errors.New("unknown decision kind")
	ErrInvalidUrgency     = errors.New("invalid urgency value")
	ErrRateLimited        = errors.New("session submission rate exceeded")
)

// Wire-level error codes delivered to clients over the session broadcast port.
const (
	CodeNotAuthorized      = "NOT_AUTHORIZED"
	CodeApprovalMaxRetries = "APPROVAL_MAX_RETRIES"
	CodeApprovalNotFound   = "APPROVAL_NOT_FOUND"
	CodeResolutionNotFound = "RESOLUTION_NOT_FOUND"
	CodeSessionMismatch    = "SESSION_MISMATCH"
	CodeInvalidDecision    = "INVALID_DECISION"
)

// WireCode maps a decision error to the code delivered to clients. ok is
// false for errors with no client-facing code (backend failures stay
// internal).
func WireCode(err error) (code string, ok bool) {
	switch {
	case errors.Is(err, ErrNotAuthorized):
		return CodeNotAuthorized, true
	case errors.Is(err, ErrApprovalNotFound):
		return CodeApprovalNotFound, true
	case errors.Is(err, ErrResolutionNotFound):
		return CodeResolutionNotFound, true
	case errors.Is(err, ErrMaxRetriesExceeded):
		return CodeApprovalMaxRetries, true
	case errors.Is(err, ErrSessionMismatch):
		return CodeSessionMismatch, true
	case errors.Is(err, ErrInvalidDecision):
		return CodeInvalidDecision, true
	}
	return "", false
}
