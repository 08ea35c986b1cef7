package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "structured cause wins",
			err:  ErrBadRequest.WithDetail(CauseKey, "Unknown resources"),
			want: "Unknown resources",
		},
		{
			name: "wrapped cause",
			err:  ErrConnectionFailure.WithCause(fmt.Errorf("dial tcp: connection refused")),
			want: "dial tcp: connection refused",
		},
		{
			name: "message fallback",
			err:  ErrClient,
			want: "backend request failed",
		},
		{
			name: "foreign error",
			err:  stderrors.New("boom"),
			want: "boom",
		},
		{
			name: "nil",
			err:  nil,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reason(tt.err))
		})
	}
}

func TestPredicatesSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("submit: %w", ErrNotFound.WithDetail(CauseKey, "Unknown resource"))

	assert.True(t, IsNotFound(err))
	assert.True(t, IsResourceMissing(err))
	assert.False(t, IsConnectionFailure(err))
	assert.True(t, stderrors.Is(err, ErrNotFound))
	assert.Equal(t, "NOT_FOUND", Kind(err))
}

func TestDecodePredicates(t *testing.T) {
	assert.True(t, IsDecodeError(ErrBadPayload.WithCause(stderrors.New("eof"))))
	assert.True(t, IsDecodeError(ErrSchemaViolation))
	assert.True(t, IsDecodeError(ErrUnknownNamingScheme))
	assert.False(t, IsDecodeError(ErrConflict))
}

func TestRetryableClassification(t *testing.T) {
	assert.True(t, ErrConnectionFailure.IsRetryable())
	assert.True(t, ErrConnectionFailure.WithCause(stderrors.New("x")).IsRetryable())
	assert.False(t, ErrBadRequest.IsRetryable())
	assert.True(t, ErrBadRequest.IsFatal())
	assert.False(t, ErrConnectionFailure.AsFatal().IsRetryable())
}

func TestWithDetailDoesNotMutateSentinel(t *testing.T) {
	_ = ErrClient.WithDetail(CauseKey, "something")
	_, ok := ErrClient.Details[CauseKey]
	assert.False(t, ok)
}

func TestErrorString(t *testing.T) {
	err := ErrBadRequest.WithDetail(CauseKey, "Unknown resources")
	assert.Equal(t, "BAD_REQUEST: bad request: Unknown resources", err.Error())
}

func TestRecoverPanic(t *testing.T) {
	err := RecoverPanic("kaboom")
	require.Error(t, err)

	var appErr *Error
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.True(t, appErr.IsFatal())
	assert.Equal(t, true, appErr.Details["panic"])
	assert.Nil(t, RecoverPanic(nil))
}
