package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
	StatusRefunded  OrderStatus = "refunded"
)

// transitions lists every allowed edge of the order state machine.
var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:   {StatusPaid, StatusCancelled},
	StatusPaid:      {StatusShipped, StatusRefunded, StatusCancelled},
	StatusShipped:   {StatusDelivered},
	StatusDelivered: {StatusRefunded},
}

func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	return slices.Contains(transitions[s], to)
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

type Order struct {
	ID                 uuid.UUID       `json:"id"`
	CustomerID         string          `json:"customer_id"`
	Items              []OrderItem     `json:"items"`
	Status             OrderStatus     `json:"status"`
	Total              decimal.Decimal `json:"total"`
	CreatedAt          time.Time       `json:"created_at"`
	PaidDate           *time.Time      `json:"paid_date,omitempty"`
	ShippedDate        *time.Time      `json:"shipped_date,omitempty"`
	DeliveredDate      *time.Time      `json:"delivered_date,omitempty"`
	CancelledDate      *time.Time      `json:"cancelled_date,omitempty"`
	RefundedDate       *time.Time      `json:"refunded_date,omitempty"`
	CancellationReason *string         `json:"cancellation_reason,omitempty"`
	RefundReason       *string         `json:"refund_reason,omitempty"`
	Version            int64           `json:"version"`
}

// NewOrder converts a cart into a pending order. Item order is preserved and
// the total is fixed here.
func NewOrder(customerID string, items []OrderItem, now time.Time) (*Order, error) {
	if customerID == "" {
		return nil, &ValidationError{Kind: KindMissingField, Field: "customer_id", Message: "is required"}
	}
	if len(items) == 0 {
		return nil, &ValidationError{Kind: KindEmptyOrder, Message: "an order needs at least one item"}
	}

	o := &Order{
		ID:         uuid.New(),
		CustomerID: customerID,
		Items:      make([]OrderItem, len(items)),
		Status:     StatusPending,
		Total:      decimal.Zero,
		CreatedAt:  now.UTC(),
	}
	for i, item := range items {
		item.OrderID = o.ID
		item.Status = ItemPending
		o.Items[i] = item
		o.Total = o.Total.Add(item.Subtotal())
	}
	return o, nil
}

func (o *Order) transition(to OrderStatus) error {
	if !o.Status.CanTransitionTo(to) {
		return &TransitionError{OrderID: o.ID, From: o.Status, To: to}
	}
	o.Status = to
	return nil
}

// Pay records a payment that was already captured by the caller.
func (o *Order) Pay(at time.Time) error {
	if err := o.transition(StatusPaid); err != nil {
		return err
	}
	o.PaidDate = stamp(at)
	return nil
}

func (o *Order) Ship(at time.Time) error {
	if err := o.transition(StatusShipped); err != nil {
		return err
	}
	o.ShippedDate = stamp(at)
	for i := range o.Items {
		if o.Items[i].Status == ItemPending {
			o.Items[i].Status = ItemShipped
		}
	}
	return nil
}

func (o *Order) Deliver(at time.Time) error {
	if err := o.transition(StatusDelivered); err != nil {
		return err
	}
	o.DeliveredDate = stamp(at)
	return nil
}

func (o *Order) Cancel(reason string, at time.Time) error {
	if err := o.transition(StatusCancelled); err != nil {
		return err
	}
	o.CancelledDate = stamp(at)
	o.CancellationReason = &reason
	return nil
}

func (o *Order) Refund(reason string, at time.Time) error {
	if err := o.transition(StatusRefunded); err != nil {
		return err
	}
	o.RefundedDate = stamp(at)
	o.RefundReason = &reason
	return nil
}

func (o *Order) Item(id uuid.UUID) (*OrderItem, bool) {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return &o.Items[i], true
		}
	}
	return nil, false
}

func (o *Order) MarkItemFailed(id uuid.UUID) error {
	return o.moveItem(id, ItemFailed)
}

func (o *Order) MarkItemCompensated(id uuid.UUID) error {
	return o.moveItem(id, ItemCompensated)
}

func (o *Order) moveItem(id uuid.UUID, to ItemStatus) error {
	item, ok := o.Item(id)
	if !ok {
		return &ValidationError{Kind: KindUnknownItem, Field: "order_item_id", Message: id.String() + " is not part of order " + o.ID.String()}
	}
	if item.Status == to {
		return nil
	}
	if !item.canMoveTo(to) {
		return &ValidationError{Kind: KindItemState, Field: "status", Message: string(item.Status) + " -> " + string(to)}
	}
	item.Status = to
	return nil
}

// TerminalDate returns the timestamp of the terminal status, if any.
func (o *Order) TerminalDate() *time.Time {
	switch o.Status {
	case StatusCancelled:
		return o.CancelledDate
	case StatusRefunded:
		return o.RefundedDate
	}
	return nil
}

func stamp(at time.Time) *time.Time {
	t := at.UTC()
	return &t
}
