package models

import "errors"

// Validation errors: reported to the caller, never retried.
var (
	ErrQuantityOutOfRange   = errors.New("quantity out of range for tier")
	ErrPerUserLimitExceeded = errors.New("per-user ticket limit exceeded")
	ErrPresaleCodeRequired  = errors.New("valid presale code required")
	ErrSalesWindowClosed    = errors.New("tier sales window closed")
	ErrEventNotOnSale       = errors.New("event is not on sale")
	ErrTierInactive         = errors.New("tier is not active")
)

// Capacity errors: expected outcomes that may drive waitlist enrollment.
var (
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrSoldOutWaitlisted    = errors.New("sold out, buyer added to waitlist")
	ErrWaitlistFull         = errors.New("waitlist is full")
)

// State errors: race windows or programming errors the caller must handle.
var (
	ErrHandleExpired          = errors.New("reservation handle expired")
	ErrHandleConfirmed        = errors.New("reservation handle already confirmed")
	ErrOverRefund             = errors.New("refund exceeds sold quantity")
	ErrAlreadyRefunded        = errors.New("ticket already refunded")
	ErrNotRefundable          = errors.New("ticket not refundable")
	ErrInvalidTransition      = errors.New("invalid state transition")
	ErrCapacityBelowCommitted = errors.New("capacity below sold and reserved quantity")
	ErrAttendeeLimit          = errors.New("tier capacity exceeds event attendee limit")
	ErrCounterConflict        = errors.New("tier counters changed concurrently")
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// IsRecoverable reports whether err is a validation or capacity outcome the
// caller can act on, as opposed to a state or infrastructure failure.
func IsRecoverable(err error) bool {
	for _, target := range []error{
		ErrQuantityOutOfRange, ErrPerUserLimitExceeded, ErrPresaleCodeRequired,
		ErrSalesWindowClosed, ErrEventNotOnSale, ErrTierInactive,
		ErrInsufficientCapacity, ErrSoldOutWaitlisted, ErrWaitlistFull,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
