// Package events holds the wire contracts exchanged between services.
// Payloads are JSON; the routing key selects the contract.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	RKOrderPaid                      = "order.paid"
	RKInventoryReservationFailed     = "inventory.reservation_failed"
	RKSellerStatsUpdateFailed        = "sellerstats.update_failed"
	RKNotificationFailed             = "notification.failed"
	RKCompensationRequired           = "saga.compensation_required"
	RKCompensateInventoryReservation = "inventory.compensate_reservation"
	RKCompensationCompleted          = "saga.compensation_completed"
	RKOrderCancellationRequested     = "order.cancellation_requested"
	RKOrderCancelled                 = "order.cancelled"
)

// All lists every routing key, for topic declaration at start-up.
func All() []string {
	return []string{
		RKOrderPaid,
		RKInventoryReservationFailed,
		RKSellerStatsUpdateFailed,
		RKNotificationFailed,
		RKCompensationRequired,
		RKCompensateInventoryReservation,
		RKCompensationCompleted,
		RKOrderCancellationRequested,
		RKOrderCancelled,
	}
}

// OrderLevel is the OrderItemID used for failures that concern the whole order.
var OrderLevel = uuid.Nil

type FailureType string

const (
	FailureInventoryReservation FailureType = "InventoryReservation"
	FailureSellerStatsUpdate    FailureType = "SellerStatsUpdate"
	FailureNotification         FailureType = "Notification"
)

// Critical reports whether a failure of this type justifies unwinding a paid order.
func (f FailureType) Critical() bool {
	return f != FailureNotification
}

// CompensationType names the compensating action; it mirrors the failure it answers.
type CompensationType string

const (
	CompensationInventoryReservation CompensationType = "InventoryReservation"
	CompensationSellerStatsUpdate    CompensationType = "SellerStatsUpdate"
)

// CompensationFor returns the compensation that answers failure f.
func CompensationFor(f FailureType) CompensationType {
	return CompensationType(f)
}

type OrderItem struct {
	OrderItemID uuid.UUID       `json:"order_item_id"`
	BookISBN    string          `json:"book_isbn"`
	SellerID    string          `json:"seller_id"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type OrderPaid struct {
	OrderID     uuid.UUID       `json:"order_id"`
	CustomerID  string          `json:"customer_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PaidDate    time.Time       `json:"paid_date"`
	OrderItems  []OrderItem     `json:"order_items"`
}

type InventoryReservationFailed struct {
	OrderID       uuid.UUID `json:"order_id"`
	OrderItemID   uuid.UUID `json:"order_item_id"`
	BookISBN      string    `json:"book_isbn"`
	SellerID      string    `json:"seller_id"`
	Quantity      int       `json:"quantity"`
	ErrorMessage  string    `json:"error_message"`
	FailedAt      time.Time `json:"failed_at"`
	RetryAttempts int       `json:"retry_attempts"`
}

type SellerStatsUpdateFailed struct {
	OrderID       uuid.UUID `json:"order_id"`
	OrderItemID   uuid.UUID `json:"order_item_id"`
	SellerID      string    `json:"seller_id"`
	ErrorMessage  string    `json:"error_message"`
	FailedAt      time.Time `json:"failed_at"`
	RetryAttempts int       `json:"retry_attempts"`
}

type NotificationFailed struct {
	OrderID       uuid.UUID `json:"order_id"`
	OrderItemID   uuid.UUID `json:"order_item_id"`
	SellerID      string    `json:"seller_id"`
	ErrorMessage  string    `json:"error_message"`
	FailedAt      time.Time `json:"failed_at"`
	RetryAttempts int       `json:"retry_attempts"`
}

type FailedItem struct {
	OrderItemID  uuid.UUID   `json:"order_item_id"`
	FailureType  FailureType `json:"failure_type"`
	ErrorMessage string      `json:"error_message"`
}

type CompensationRequired struct {
	OrderID     uuid.UUID    `json:"order_id"`
	FailedItems []FailedItem `json:"failed_items"`
	RequestedAt time.Time    `json:"requested_at"`
	Reason      string       `json:"reason"`
}

type CompensateInventoryReservation struct {
	OrderID     uuid.UUID   `json:"order_id"`
	OrderItemID uuid.UUID   `json:"order_item_id"`
	BookISBN    string      `json:"book_isbn"`
	SellerID    string      `json:"seller_id"`
	Quantity    int         `json:"quantity"`
	FailureType FailureType `json:"failure_type"`
	RequestedAt time.Time   `json:"requested_at"`
}

type CompensationCompleted struct {
	OrderID          uuid.UUID        `json:"order_id"`
	OrderItemID      uuid.UUID        `json:"order_item_id"`
	CompensationType CompensationType `json:"compensation_type"`
	Success          bool             `json:"success"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	CompletedAt      time.Time        `json:"completed_at"`
}

type OrderCancellationRequested struct {
	OrderID     uuid.UUID    `json:"order_id"`
	Reason      string       `json:"reason"`
	RequestedAt time.Time    `json:"requested_at"`
	FailedItems []FailedItem `json:"failed_items"`
}

type OrderCancelled struct {
	OrderID         uuid.UUID   `json:"order_id"`
	CustomerID      string      `json:"customer_id"`
	CancelledDate   time.Time   `json:"cancelled_date"`
	Reason          string      `json:"reason"`
	RefundProcessed bool        `json:"refund_processed"`
	OrderItems      []OrderItem `json:"order_items"`
}
