package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneMatchesPredefinedByCode(t *testing.T) {
	err := Clone(ErrUnschedulable, "class 7A cannot fit MATH")

	assert.True(t, errors.Is(err, ErrUnschedulable))
	assert.False(t, errors.Is(err, ErrAlreadyBusy))
	assert.Equal(t, "class 7A cannot fit MATH", err.Error())
	assert.Equal(t, "session could not be scheduled", ErrUnschedulable.Message)
}

func TestWrapKeepsCauseReachable(t *testing.T) {
	cause := fmt.Errorf("row 3: bad count")
	err := fmt.Errorf("load catalog: %w", Wrap(cause, ErrInvalidInput.Code, ErrInvalidInput.Status, "invalid courses file"))

	require.True(t, errors.Is(err, ErrInvalidInput))
	require.True(t, errors.Is(err, cause))
	appErr := FromError(err)
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.Status)
	assert.Contains(t, appErr.Error(), "row 3: bad count")
}

func TestFromErrorFallsBackToInternal(t *testing.T) {
	appErr := FromError(errors.New("boom"))

	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Nil(t, FromError(nil))
}
