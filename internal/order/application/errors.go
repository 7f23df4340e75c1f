package application

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrStockUnavailable = errors.New("stock unavailable")

type NotFoundError struct {
	OrderID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("order %s not found", e.OrderID)
}

// PaymentError is returned when an order could not be paid. Err is the
// underlying cause, if any.
type PaymentError struct {
	OrderID uuid.UUID
	Reason  string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment for order %s failed: %s: %v", e.OrderID, e.Reason, e.Err)
	}
	return fmt.Sprintf("payment for order %s failed: %s", e.OrderID, e.Reason)
}

func (e *PaymentError) Unwrap() error { return e.Err }
