// Package apierrors defines the errors surfaced to clients of the verification API.
package apierrors

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
)

// Kind groups errors by how a client should react to them.
type Kind string

const (
	// KindPrecondition errors are not retried.
	KindPrecondition Kind = "precondition"
	// KindWindow errors may be retried with a fresh token or inside the right window.
	KindWindow Kind = "window"
	// KindConflict errors are hard conflicts, never overwritten.
	KindConflict Kind = "conflict"
	// KindRateLimited errors ask the client to slow down.
	KindRateLimited Kind = "rate_limited"
	// KindAuth errors mean the caller could not be identified.
	KindAuth Kind = "auth"
	// KindInternal errors hide server failures.
	KindInternal Kind = "internal"
)

// APIError is an error with a client-facing message and gRPC status code.
type APIError struct {
	Kind     Kind
	Code     string
	GRPCCode codes.Code
	Message  string
	Err      error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func newError(kind Kind, code string, grpcCode codes.Code, msg string) *APIError {
	return &APIError{Kind: kind, Code: code, GRPCCode: grpcCode, Message: msg}
}

func NewErrParticipantNotFound(id uuid.UUID) *APIError {
	return newError(KindPrecondition, "PARTICIPANT_NOT_FOUND", codes.NotFound,
		fmt.Sprintf("participant %s not found", id))
}

func NewErrNotEnrolled(participantID, courseID uuid.UUID) *APIError {
	return newError(KindPrecondition, "NOT_ENROLLED", codes.FailedPrecondition,
		fmt.Sprintf("participant %s is not enrolled in course %s", participantID, courseID))
}

func NewErrContactUnverified() *APIError {
	return newError(KindPrecondition, "CONTACT_UNVERIFIED", codes.FailedPrecondition,
		"verify your secondary contact channel before marking attendance")
}

func NewErrNoBiometricDevice() *APIError {
	return newError(KindPrecondition, "NO_BIOMETRIC_DEVICE", codes.FailedPrecondition,
		"register a biometric device before marking attendance")
}

func NewErrSessionNotFound(id uuid.UUID) *APIError {
	return newError(KindPrecondition, "SESSION_NOT_FOUND", codes.NotFound,
		fmt.Sprintf("session %s not found", id))
}

func NewErrSessionClosed(id uuid.UUID) *APIError {
	return newError(KindWindow, "SESSION_CLOSED", codes.FailedPrecondition,
		fmt.Sprintf("session %s is closed", id))
}

// NewErrWrongPhase guides clients that submit outside the initial window.
func NewErrWrongPhase(phase string) *APIError {
	msg := fmt.Sprintf("attendance is not accepted during %s phase", phase)
	if phase == "REVERIFY" {
		msg = "initial window is over, wait for your reverification slot"
	}
	return newError(KindWindow, "WRONG_PHASE", codes.FailedPrecondition, msg)
}

func NewErrStaleToken() *APIError {
	return newError(KindWindow, "STALE_TOKEN", codes.InvalidArgument,
		"token capture is too old, scan the current code again")
}

func NewErrFutureToken() *APIError {
	return newError(KindWindow, "FUTURE_TOKEN", codes.InvalidArgument,
		"token capture time is in the future, check the device clock")
}

func NewErrInvalidToken() *APIError {
	return newError(KindWindow, "INVALID_TOKEN", codes.InvalidArgument,
		"token is not valid for the current window, scan the current code again")
}

func NewErrNotSelected() *APIError {
	return newError(KindPrecondition, "NOT_SELECTED", codes.FailedPrecondition,
		"no pending reverification for this participant")
}

func NewErrSlotNotOpen(opensAt time.Time) *APIError {
	return newError(KindWindow, "SLOT_NOT_OPEN", codes.FailedPrecondition,
		fmt.Sprintf("reverification slot opens at %s", opensAt.UTC().Format(time.RFC3339)))
}

func NewErrSlotExpired() *APIError {
	return newError(KindWindow, "SLOT_EXPIRED", codes.FailedPrecondition,
		"reverification slot has expired, wait for a retry notification")
}

func NewErrDuplicateSubmission() *APIError {
	return newError(KindConflict, "DUPLICATE_SUBMISSION", codes.AlreadyExists,
		"attendance already recorded for this session")
}

func NewErrDeviceConflict() *APIError {
	return newError(KindConflict, "DEVICE_CONFLICT", codes.AlreadyExists,
		"device is bound to another participant")
}

func NewErrRateLimited() *APIError {
	return newError(KindRateLimited, "RATE_LIMITED", codes.ResourceExhausted,
		"too many attempts, try again in a moment")
}

func NewErrInvalidArgument(msg string) *APIError {
	return newError(KindPrecondition, "INVALID_ARGUMENT", codes.InvalidArgument, msg)
}

func NewErrMissingAuthorizationToken() *APIError {
	return newError(KindAuth, "MISSING_TOKEN", codes.Unauthenticated, "missing authorization token")
}

func NewErrInvalidAuthorizationToken() *APIError {
	return newError(KindAuth, "INVALID_TOKEN", codes.Unauthenticated, "invalid authorization token")
}

func NewErrNotSessionOwner(sessionID uuid.UUID) *APIError {
	return newError(KindAuth, "NOT_SESSION_OWNER", codes.PermissionDenied,
		fmt.Sprintf("session %s belongs to another lecturer", sessionID))
}

func NewErrInternalServerError(err error) *APIError {
	e := newError(KindInternal, "INTERNAL", codes.Internal, "internal server error")
	e.Err = err
	return e
}
