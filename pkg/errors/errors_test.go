package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallConflictError_Reason(t *testing.T) {
	tests := []struct {
		reason  ConflictReason
		message string
	}{
		{ReasonAlreadyRunning, "Call already started and running"},
		{ReasonAlreadyStarted, "Call already started"},
		{ReasonAlreadyCreated, "Call already created"},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			err := CallConflictError(tt.reason, nil)
			assert.Equal(t, tt.message, err.Message)
			assert.Equal(t, http.StatusConflict, err.StatusCode)

			wrapped := fmt.Errorf("create call: %w", err)
			reason, ok := ConflictReasonOf(wrapped)
			assert.True(t, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestHasCode_WalksWrappedAppErrors(t *testing.T) {
	inner := StorageError(errors.New("disk full"))
	outer := InvalidCallError("Error getting call: c1", inner)

	assert.True(t, HasCode(outer, ErrCodeInvalidCall))
	assert.True(t, HasCode(outer, ErrCodeStorage))
	assert.False(t, HasCode(outer, ErrCodeCallConflict))
	assert.False(t, HasCode(errors.New("plain"), ErrCodeStorage))
}

func TestIs_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("stop: %w", CallNotFoundError())
	assert.True(t, errors.Is(err, CallNotFoundError()))
	assert.False(t, errors.Is(err, ParticipantNotFoundError()))
}

func TestArgumentError_NamesField(t *testing.T) {
	err := ArgumentError("ownerId", "too long")
	assert.Equal(t, ErrCodeCallArgument, err.Code)
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Equal(t, map[string]string{"field": "ownerId"}, err.Details)
}

func TestGetAppError(t *testing.T) {
	appErr := GetAppError(fmt.Errorf("wrapped: %w", CallNotFoundError()))
	assert.Equal(t, ErrCodeCallNotFound, appErr.Code)

	plain := GetAppError(errors.New("boom"))
	assert.Equal(t, ErrCodeInternal, plain.Code)
}
