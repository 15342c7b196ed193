package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneMatchesBaseByCode(t *testing.T) {
	err := Clone(ErrInvalidTransition, "challenge already approved")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "challenge already approved", err.Error())
	assert.Equal(t, "invalid state transition", ErrInvalidTransition.Message)
}

func TestWrapAsKeepsCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := WrapAs(ErrDependencyFailure, cause, "catalog unavailable")
	require.Equal(t, http.StatusServiceUnavailable, err.Status)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, fmt.Errorf("approve: %w", err), ErrDependencyFailure)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(fmt.Errorf("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)

	typed := FromError(fmt.Errorf("outer: %w", ErrForbidden))
	assert.Equal(t, ErrForbidden.Code, typed.Code)
	assert.Nil(t, FromError(nil))
}
