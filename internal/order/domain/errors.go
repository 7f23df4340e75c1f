package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrInvalidTransition = errors.New("invalid order transition")

// TransitionError reports a lifecycle operation that is not allowed from the current status.
type TransitionError struct {
	OrderID uuid.UUID
	From    OrderStatus
	To      OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot move from %s to %s", e.OrderID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

type ValidationKind string

const (
	KindQuantityOutOfRange ValidationKind = "quantity_out_of_range"
	KindPriceOutOfRange    ValidationKind = "price_out_of_range"
	KindMissingField       ValidationKind = "missing_field"
	KindEmptyOrder         ValidationKind = "empty_order"
	KindUnknownItem        ValidationKind = "unknown_item"
	KindItemState          ValidationKind = "item_state"
)

// ValidationError is returned instead of a constructed value when input breaks an invariant.
type ValidationError struct {
	Kind    ValidationKind
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
}

// IsValidation reports whether err is (or wraps) a ValidationError of kind.
func IsValidation(err error, kind ValidationKind) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Kind == kind
}

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrConcurrentUpdate = errors.New("order was modified concurrently")
)
