package givehub

import (
	"errors"
	"fmt"
	"time"
)

// ErrConcurrencyConflict is returned by stores when a version-checked save
// loses a race with another writer. Aggregate updates retry it internally a
// bounded number of times before letting it surface.
var ErrConcurrencyConflict = errors.New("record was modified by a concurrent writer")

// ErrDuplicateOrderID is returned by stores when a donation insert collides
// with an existing order id.
var ErrDuplicateOrderID = errors.New("order id already exists")

// ValidationError means the input itself is wrong; fix the request rather
// than retrying it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// InvalidStateError means the record exists but its current status forbids
// the attempted operation.
type InvalidStateError struct {
	OrderID   string
	Status    DonationStatus
	Operation string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s donation %s in status %q", e.Operation, e.OrderID, e.Status)
}

type AlreadyRefundedError struct {
	OrderID string
}

func (e *AlreadyRefundedError) Error() string {
	return fmt.Sprintf("donation %s was already refunded", e.OrderID)
}

type RefundWindowExpiredError struct {
	OrderID string
	PaidAt  time.Time
}

func (e *RefundWindowExpiredError) Error() string {
	return fmt.Sprintf("refund window for donation %s expired (paid at %s)", e.OrderID, e.PaidAt.Format(time.RFC3339))
}

type NotEligibleError struct {
	OrderID string
	Reason  string
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("donation %s is not eligible: %s", e.OrderID, e.Reason)
}
