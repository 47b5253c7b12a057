package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClasses(t *testing.T) {
	classes := []error{ErrValidation, ErrNotFound, ErrUnauthorized, ErrForbidden, ErrConflict, ErrInvariant}
	tests := map[error]error{
		ErrOrderNotFound:            ErrNotFound,
		ErrInsufficientStock:        ErrValidation,
		ErrInvalidRating:            ErrValidation,
		ErrNotAssignedWorker:        ErrForbidden,
		ErrDeliveryUnavailable:      ErrConflict,
		ErrAlreadyPicked:            ErrConflict,
		ErrPickIssueOpen:            ErrConflict,
		ErrCancellationWindowClosed: ErrConflict,
		ErrLedgerDesync:             ErrInvariant,
		ErrNegativeStock:            ErrInvariant,
	}
	for err, class := range tests {
		for _, c := range classes {
			assert.Equal(t, c == class, errors.Is(err, c), "%v is %v", err, c)
		}
	}
}

func TestAllocationFailureClassification(t *testing.T) {
	assert.True(t, isAllocationFailure(ErrInsufficientStock))
	assert.True(t, isAllocationFailure(ErrLedgerDesync))
	assert.False(t, isAllocationFailure(ErrDeliveryUnavailable))
	assert.False(t, isAllocationFailure(errors.New("db down")))
}
