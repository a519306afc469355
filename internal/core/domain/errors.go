package domain

import (
	"context"
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates a file type no converter handles.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrSessionNotFound indicates no session exists with the given id.
	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)

	// ErrStageRegression indicates an attempt to move a completed stage backwards
	// without an explicit reset.
	ErrStageRegression = errors.New("workflow stage cannot move backwards")

	// ErrUnknownStage indicates a stage name outside the workflow.
	ErrUnknownStage = errors.New("unknown workflow stage")

	// ErrDiscoveryRequired indicates evidence extraction was requested before
	// document discovery completed.
	ErrDiscoveryRequired = errors.New("documents have not been discovered")

	// ErrLLMUnavailable indicates the extraction backend is not configured or unreachable.
	// Extraction falls back to deterministic pattern matching.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrRateLimited indicates the backend rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrCacheCorrupt indicates a cache entry could not be decoded.
	// Callers of the cache never see it; it is reported as a miss.
	ErrCacheCorrupt = errors.New("cache entry corrupt")

	// ErrVerificationRejected indicates a claim was not grounded in its source text.
	ErrVerificationRejected = errors.New("claim not grounded in source")

	// ErrConversionFailed indicates a document could not be converted to text.
	ErrConversionFailed = errors.New("document conversion failed")

	// ErrUnparsableResponse indicates the model returned output that is not the expected JSON.
	ErrUnparsableResponse = errors.New("unparsable model response")
)

// BackendErrorKind classifies extraction backend failures.
type BackendErrorKind string

// Backend failure kinds.
const (
	BackendRateLimited      BackendErrorKind = "rate_limited"
	BackendTimeout          BackendErrorKind = "timeout"
	BackendTransientServer  BackendErrorKind = "transient_server"
	BackendMalformedRequest BackendErrorKind = "malformed_request"
	BackendAuthFailure      BackendErrorKind = "auth_failure"
)

// Retryable reports whether a failure of this kind may succeed on a later attempt.
func (k BackendErrorKind) Retryable() bool {
	switch k {
	case BackendRateLimited, BackendTimeout, BackendTransientServer:
		return true
	default:
		return false
	}
}

// BackendError is returned by extraction backends.
// The Kind decides whether the retry policy tries again.
type BackendError struct {
	Kind    BackendErrorKind
	Status  int
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("backend %s (status %d): %s", e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("backend %s: %s", e.Kind, msg)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is makes rate-limited backend errors match ErrRateLimited.
func (e *BackendError) Is(target error) bool {
	return target == ErrRateLimited && e.Kind == BackendRateLimited
}

// NewBackendError creates a BackendError of the given kind.
func NewBackendError(kind BackendErrorKind, status int, message string) *BackendError {
	return &BackendError{Kind: kind, Status: status, Message: message}
}

// BackendKindForStatus maps an HTTP status code to a backend failure kind.
func BackendKindForStatus(status int) BackendErrorKind {
	switch {
	case status == 429:
		return BackendRateLimited
	case status == 401 || status == 403:
		return BackendAuthFailure
	case status == 408 || status == 504:
		return BackendTimeout
	case status >= 500:
		return BackendTransientServer
	default:
		return BackendMalformedRequest
	}
}

// BackendErrorKindOf returns the failure kind carried by err.
// Context deadlines count as timeouts. Any other error is not retryable.
func BackendErrorKindOf(err error) (BackendErrorKind, bool) {
	if err == nil {
		return "", false
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind, true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return BackendTimeout, true
	}
	return "", false
}

// IsTransientBackend reports whether err is a retryable backend failure.
func IsTransientBackend(err error) bool {
	kind, ok := BackendErrorKindOf(err)
	return ok && kind.Retryable()
}

// IsPermanentBackend reports whether err is a backend failure that must not be retried.
func IsPermanentBackend(err error) bool {
	kind, ok := BackendErrorKindOf(err)
	return ok && !kind.Retryable()
}

// DuplicateSessionError is returned when a session already covers the same
// resolved document path.
type DuplicateSessionError struct {
	ExistingID string
	Path       string
}

func (e *DuplicateSessionError) Error() string {
	return fmt.Sprintf("session %s already exists for %s", e.ExistingID, e.Path)
}

// Is makes DuplicateSessionError match ErrAlreadyExists.
func (e *DuplicateSessionError) Is(target error) bool {
	return target == ErrAlreadyExists
}

// IsDuplicateSession reports whether err is a DuplicateSessionError and returns it.
func IsDuplicateSession(err error) (*DuplicateSessionError, bool) {
	var de *DuplicateSessionError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// MissingChecklistError is a precondition failure: evidence extraction cannot
// start without requirements to attach evidence to.
type MissingChecklistError struct {
	MethodologyID string
}

func (e *MissingChecklistError) Error() string {
	return fmt.Sprintf("no checklist found for methodology %q", e.MethodologyID)
}

// Is makes MissingChecklistError match ErrNotFound.
func (e *MissingChecklistError) Is(target error) bool {
	return target == ErrNotFound
}

// IsMissingChecklist reports whether err is a MissingChecklistError.
func IsMissingChecklist(err error) bool {
	var me *MissingChecklistError
	return errors.As(err, &me)
}

// SessionLockContentionError is returned when the per-session lock could not
// be acquired before the wait timeout.
type SessionLockContentionError struct {
	SessionID string
	LockPath  string
}

func (e *SessionLockContentionError) Error() string {
	return fmt.Sprintf("session %s is locked by another writer (%s)", e.SessionID, e.LockPath)
}

// IsLockContention reports whether err is a SessionLockContentionError.
func IsLockContention(err error) bool {
	var le *SessionLockContentionError
	return errors.As(err, &le)
}

// ConversionError wraps a converter failure with the affected path.
type ConversionError struct {
	Path string
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s: %v", e.Path, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Is makes ConversionError match ErrConversionFailed.
func (e *ConversionError) Is(target error) bool {
	return target == ErrConversionFailed
}
