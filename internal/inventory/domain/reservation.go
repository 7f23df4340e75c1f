package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/order-fulfillment/pkg/events"
)

var (
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrReservationNotFound = errors.New("reservation not found")
)

type ReservationStatus string

const (
	ReservationPending     ReservationStatus = "pending"
	ReservationDecremented ReservationStatus = "decremented"
	ReservationFailed      ReservationStatus = "failed"
	ReservationRestored    ReservationStatus = "restored"
	// ReservationReleased closes a line of a cancelled order before any stock moved.
	ReservationReleased ReservationStatus = "released"
)

// Reservation is the ledger line for one order item. Stock has left the
// shelf only while the line is decremented.
type Reservation struct {
	OrderItemID   uuid.UUID
	OrderID       uuid.UUID
	BookISBN      string
	SellerID      string
	Quantity      int
	Status        ReservationStatus
	FailureReason string
	UpdatedAt     time.Time
}

func (r Reservation) Holding() bool {
	return r.Status == ReservationDecremented
}

// ReservationsFor builds pending lines for every item of a paid order, in order.
func ReservationsFor(ev events.OrderPaid, now time.Time) []Reservation {
	return linesFor(ev.OrderID, ev.OrderItems, ReservationPending, now)
}

// ReleasedFor builds released lines for every item of a cancelled order.
func ReleasedFor(ev events.OrderCancelled, now time.Time) []Reservation {
	return linesFor(ev.OrderID, ev.OrderItems, ReservationReleased, now)
}

func linesFor(orderID uuid.UUID, items []events.OrderItem, status ReservationStatus, now time.Time) []Reservation {
	lines := make([]Reservation, 0, len(items))
	for _, it := range items {
		lines = append(lines, Reservation{
			OrderItemID: it.OrderItemID,
			OrderID:     orderID,
			BookISBN:    it.BookISBN,
			SellerID:    it.SellerID,
			Quantity:    it.Quantity,
			Status:      status,
			UpdatedAt:   now.UTC(),
		})
	}
	return lines
}

// StockLine is a quantity of one book from one seller.
type StockLine struct {
	BookISBN string
	SellerID string
	Quantity int
}
