package apierr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lattice-dev/lattice/internal/artifact"
	"github.com/lattice-dev/lattice/internal/eventlog"
	"github.com/lattice-dev/lattice/internal/lock"
	"github.com/lattice-dev/lattice/internal/selector"
	"github.com/lattice-dev/lattice/internal/store"
	"github.com/lattice-dev/lattice/internal/task"
	"github.com/lattice-dev/lattice/internal/workflow"
)

func TestTranslateKnownSentinels(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"not found", task.ErrNotFound, NotFound},
		{"invalid input", task.ErrInvalidInput, InvalidInput},
		{"protected field", task.ErrProtectedField, ProtectedField},
		{"reserved type", task.ErrReservedType, ReservedType},
		{"self link", task.ErrSelfLink, SelfLink},
		{"duplicate link", task.ErrDuplicateLink, DuplicateLink},
		{"link not found", task.ErrLinkNotFound, LinkNotFound},
		{"already archived", task.ErrAlreadyArchived, AlreadyArchived},
		{"not archived", task.ErrNotArchived, NotArchived},
		{"comment not found", task.ErrCommentNotFound, CommentNotFound},
		{"invalid field", task.ErrInvalidField, InvalidField},
		{"conflict", eventlog.ErrConflict, Conflict},
		{"lock timeout", lock.ErrTimeout, LockTimeout},
		{"payload too large", artifact.ErrPayloadTooLarge, PayloadTooLarge},
		{"path not found", artifact.ErrPathNotFound, PathNotFound},
		{"nothing to claim", selector.ErrNothingToClaim, NothingToClaim},
		{"not initialized", store.ErrNotInitialized, NotInitialized},
		{"force requires reason", workflow.ErrForceRequiresReason, ForceRequiresReason},
		{"container status", workflow.ErrContainerStatus, InvalidInput},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			wrapped := errors.New("wrapping: " + c.err.Error())
			_ = wrapped // direct errors.Is path, not wrapped, is what Translate checks
			got := Translate(c.err)
			assert.Equal(t, c.want, got.Code)
			assert.Equal(t, c.err.Error(), got.Message)
		})
	}
}

func TestTranslateWrappedSentinel(t *testing.T) {
	wrapped := errTestWrap(task.ErrNotFound)
	got := Translate(wrapped)
	assert.Equal(t, NotFound, got.Code, "errors.Is must see through an Unwrap-based wrapper")
}

func errTestWrap(err error) error {
	return errorsWrap{err}
}

type errorsWrap struct{ err error }

func (e errorsWrap) Error() string { return "wrapped: " + e.err.Error() }
func (e errorsWrap) Unwrap() error { return e.err }

func TestTranslateTypedErrors(t *testing.T) {
	transition := &workflow.InvalidTransitionError{From: "backlog", To: "done"}
	got := Translate(transition)
	assert.Equal(t, InvalidTransition, got.Code)
	assert.Equal(t, transition, got.Details)
}

func TestTranslateUnrecognizedFallsBackToIntegrityError(t *testing.T) {
	got := Translate(errors.New("something nobody anticipated"))
	assert.Equal(t, IntegrityError, got.Code)
}

func TestOkAndFailEnvelopes(t *testing.T) {
	ok := Ok(map[string]string{"id": "task_1"})
	assert.True(t, ok.OK)
	assert.Nil(t, ok.Error)

	fail := Fail(task.ErrNotFound)
	assert.False(t, fail.OK)
	assert.Equal(t, NotFound, fail.Error.Code)
}
