// Package apierr translates the core's internal sentinel and typed
// errors into the uniform external envelope every adapter (MCP, HTTP,
// CLI) renders: {ok:true, data} on success, {ok:false, error:{code,
// message, details?}} on failure. No adapter is allowed to inspect an
// internal error type directly; they all go through Translate.
package apierr

import (
	"errors"

	"github.com/lattice-dev/lattice/internal/artifact"
	"github.com/lattice-dev/lattice/internal/eventlog"
	"github.com/lattice-dev/lattice/internal/lock"
	"github.com/lattice-dev/lattice/internal/selector"
	"github.com/lattice-dev/lattice/internal/store"
	"github.com/lattice-dev/lattice/internal/task"
	"github.com/lattice-dev/lattice/internal/workflow"
)

// Code is one of the documented external error codes.
type Code string

const (
	NotFound            Code = "NOT_FOUND"
	InvalidInput        Code = "INVALID_INPUT"
	InvalidTransition   Code = "INVALID_TRANSITION"
	CompletionBlocked   Code = "COMPLETION_BLOCKED"
	ReviewCycleExceeded Code = "REVIEW_CYCLE_EXCEEDED"
	ForceRequiresReason Code = "FORCE_REQUIRES_REASON"
	Conflict            Code = "CONFLICT"
	SelfLink            Code = "SELF_LINK"
	DuplicateLink       Code = "DUPLICATE_LINK"
	LinkNotFound        Code = "LINK_NOT_FOUND"
	ProtectedField      Code = "PROTECTED_FIELD"
	ReservedType        Code = "RESERVED_TYPE"
	LockTimeout         Code = "LOCK_TIMEOUT"
	PayloadTooLarge     Code = "PAYLOAD_TOO_LARGE"
	AlreadyArchived     Code = "ALREADY_ARCHIVED"
	NotArchived         Code = "NOT_ARCHIVED"
	NothingToClaim      Code = "NOTHING_TO_CLAIM"
	IntegrityError      Code = "INTEGRITY_ERROR"
	NotInitialized      Code = "NOT_INITIALIZED"
	CommentNotFound     Code = "COMMENT_NOT_FOUND"
	PathNotFound        Code = "PATH_NOT_FOUND"
	InvalidField        Code = "INVALID_FIELD"
)

// Error is the {code, message, details?} half of the envelope.
type Error struct {
	Code    Code        `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Envelope is the uniform response shape every verb returns externally.
type Envelope struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error *Error      `json:"error,omitempty"`
}

// Ok wraps a successful result.
func Ok(data interface{}) Envelope {
	return Envelope{OK: true, Data: data}
}

// Fail translates err into a failure envelope. A nil err yields an
// envelope with OK false and no error body; callers are expected to
// branch on err != nil before calling Fail.
func Fail(err error) Envelope {
	return Envelope{OK: false, Error: Translate(err)}
}

// Translate maps an internal error to its external code, message, and
// any structured details the typed error carries. Unrecognized errors
// fall back to INTEGRITY_ERROR with the error's own message, on the
// assumption that an untranslated error is itself a core bug worth
// surfacing rather than masking as a generic failure.
func Translate(err error) *Error {
	if err == nil {
		return nil
	}

	var invalidTransition *workflow.InvalidTransitionError
	if errors.As(err, &invalidTransition) {
		return &Error{Code: InvalidTransition, Message: err.Error(), Details: invalidTransition}
	}
	var completionBlocked *workflow.CompletionBlockedError
	if errors.As(err, &completionBlocked) {
		return &Error{Code: CompletionBlocked, Message: err.Error(), Details: completionBlocked}
	}
	var reviewCycleExceeded *workflow.ReviewCycleExceededError
	if errors.As(err, &reviewCycleExceeded) {
		return &Error{Code: ReviewCycleExceeded, Message: err.Error(), Details: reviewCycleExceeded}
	}

	switch {
	case errors.Is(err, workflow.ErrForceRequiresReason):
		return &Error{Code: ForceRequiresReason, Message: err.Error()}
	case errors.Is(err, workflow.ErrContainerStatus):
		return &Error{Code: InvalidInput, Message: err.Error()}

	case errors.Is(err, task.ErrNotFound):
		return &Error{Code: NotFound, Message: err.Error()}
	case errors.Is(err, task.ErrInvalidInput):
		return &Error{Code: InvalidInput, Message: err.Error()}
	case errors.Is(err, task.ErrProtectedField):
		return &Error{Code: ProtectedField, Message: err.Error()}
	case errors.Is(err, task.ErrReservedType):
		return &Error{Code: ReservedType, Message: err.Error()}
	case errors.Is(err, task.ErrSelfLink):
		return &Error{Code: SelfLink, Message: err.Error()}
	case errors.Is(err, task.ErrDuplicateLink):
		return &Error{Code: DuplicateLink, Message: err.Error()}
	case errors.Is(err, task.ErrLinkNotFound):
		return &Error{Code: LinkNotFound, Message: err.Error()}
	case errors.Is(err, task.ErrAlreadyArchived):
		return &Error{Code: AlreadyArchived, Message: err.Error()}
	case errors.Is(err, task.ErrNotArchived):
		return &Error{Code: NotArchived, Message: err.Error()}
	case errors.Is(err, task.ErrCommentNotFound):
		return &Error{Code: CommentNotFound, Message: err.Error()}
	case errors.Is(err, task.ErrInvalidField):
		return &Error{Code: InvalidField, Message: err.Error()}

	case errors.Is(err, eventlog.ErrConflict):
		return &Error{Code: Conflict, Message: err.Error()}

	case errors.Is(err, lock.ErrTimeout):
		return &Error{Code: LockTimeout, Message: err.Error()}

	case errors.Is(err, artifact.ErrPayloadTooLarge):
		return &Error{Code: PayloadTooLarge, Message: err.Error()}
	case errors.Is(err, artifact.ErrPathNotFound):
		return &Error{Code: PathNotFound, Message: err.Error()}

	case errors.Is(err, selector.ErrNothingToClaim):
		return &Error{Code: NothingToClaim, Message: err.Error()}

	case errors.Is(err, store.ErrNotInitialized):
		return &Error{Code: NotInitialized, Message: err.Error()}
	}

	return &Error{Code: IntegrityError, Message: err.Error()}
}
