package service

import (
	"errors"
	"fmt"
)

// Error classes. Every specific error wraps exactly one of these so the transport
// layer can map it with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrInvariant    = errors.New("invariant violation")
)

var (
	ErrOrderNotFound     = fmt.Errorf("%w: order not found", ErrNotFound)
	ErrOrderLineNotFound = fmt.Errorf("%w: order line not found", ErrNotFound)
	ErrPickUnitNotFound  = fmt.Errorf("%w: pick unit not found", ErrNotFound)
	ErrDeliveryNotFound  = fmt.Errorf("%w: delivery not found", ErrNotFound)
	ErrWorkerNotFound    = fmt.Errorf("%w: worker not found", ErrNotFound)
	ErrRiderNotFound     = fmt.Errorf("%w: rider not found", ErrNotFound)
	ErrItemNotFound      = fmt.Errorf("%w: inventory item not found", ErrNotFound)
	ErrLocationNotFound  = fmt.Errorf("%w: stock location not found", ErrNotFound)
)

var (
	ErrQuantityInvalid     = fmt.Errorf("%w: quantity must be > 0", ErrValidation)
	ErrInsufficientStock   = fmt.Errorf("%w: insufficient stock", ErrValidation)
	ErrInvalidStatus       = fmt.Errorf("%w: invalid status requested", ErrValidation)
	ErrInvalidRating       = fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	ErrInvalidCoordinates  = fmt.Errorf("%w: invalid coordinates", ErrValidation)
	ErrInvalidResolution   = fmt.Errorf("%w: resolution must be RETRY or CANCEL", ErrValidation)
	ErrPaymentNotConfirmed = fmt.Errorf("%w: payment not confirmed", ErrValidation)
	ErrAmountMismatch      = fmt.Errorf("%w: paid amount does not match order total", ErrValidation)
	ErrLocationStore       = fmt.Errorf("%w: location belongs to another store", ErrValidation)
)

var (
	ErrNotAssignedWorker = fmt.Errorf("%w: pick unit is not assigned to this worker", ErrForbidden)
	ErrNotAssignedRider  = fmt.Errorf("%w: delivery is not assigned to this rider", ErrForbidden)
	ErrWorkerCannotPick  = fmt.Errorf("%w: worker cannot pick", ErrForbidden)
)

var (
	ErrDeliveryUnavailable      = fmt.Errorf("%w: delivery no longer available", ErrConflict)
	ErrRiderUnavailable         = fmt.Errorf("%w: rider is offline or busy", ErrConflict)
	ErrUnitNotPending           = fmt.Errorf("%w: pick unit is not pending", ErrConflict)
	ErrUnitNotInIssue           = fmt.Errorf("%w: pick unit has no open issue", ErrConflict)
	ErrInvalidTransition        = fmt.Errorf("%w: invalid status transition", ErrConflict)
	ErrOrderNotReady            = fmt.Errorf("%w: order is not ready for pickup", ErrConflict)
	ErrAlreadyPicked            = fmt.Errorf("%w: item already picked, cannot cancel", ErrConflict)
	ErrPickIssueOpen            = fmt.Errorf("%w: item has an open pick issue, resolve it first", ErrConflict)
	ErrAlreadyCancelled         = fmt.Errorf("%w: order already cancelled", ErrConflict)
	ErrNotCancellable           = fmt.Errorf("%w: order can no longer be cancelled", ErrConflict)
	ErrCancellationWindowClosed = fmt.Errorf("%w: cancellation window closed", ErrConflict)
	ErrNotDelivered             = fmt.Errorf("%w: delivery is not completed", ErrConflict)
	ErrAlreadyRated             = fmt.Errorf("%w: delivery already rated", ErrConflict)
)

var (
	ErrLedgerDesync  = fmt.Errorf("%w: ledger desync", ErrInvariant)
	ErrNegativeStock = fmt.Errorf("%w: stock would go negative", ErrInvariant)
)
