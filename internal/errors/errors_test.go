package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrapf(cause, ErrCodeInternal, "finalize job %s", "j1")

	assert.Equal(t, "finalize job j1: boom", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrCodeInternal, GetCode(err))
}

func TestWrap_NilCause(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "unused"))
}

func TestCodeHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{name: "not found", err: NotFoundf("job %s not found", "j1"), check: IsNotFound},
		{name: "conflict", err: Conflictf("job %s already exists", "j1"), check: IsConflict},
		{name: "validation", err: Validation("bad"), check: IsValidation},
		{name: "validation field", err: ValidationField("owner_id", "required"), check: IsValidation},
		{name: "timeout", err: Wrap(errors.New("x"), ErrCodeTimeout, "slow"), check: IsTimeout},
		{name: "canceled", err: Wrap(errors.New("x"), ErrCodeCanceled, "stop"), check: IsCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.err)
			assert.True(t, tt.check(tt.err))
			assert.False(t, IsConflict(errors.New("plain")))
		})
	}
}
