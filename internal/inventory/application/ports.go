package application

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmehra2102/order-fulfillment/internal/inventory/domain"
	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
)

type LedgerRepository interface {
	// RecordReservations inserts the lines that do not exist yet; existing lines keep their status.
	RecordReservations(ctx context.Context, lines []domain.Reservation) error
	// Decrement takes the line's quantity out of stock. A line that is already
	// decremented or restored is left alone and nil is returned.
	Decrement(ctx context.Context, orderItemID uuid.UUID) error
	MarkFailed(ctx context.Context, orderItemID uuid.UUID, reason string) error
	// Release closes the lines that hold no stock. Lines not recorded yet are
	// inserted already released, so a Decrement arriving later skips them.
	Release(ctx context.Context, lines []domain.Reservation) error
	// Restore puts a decremented line back into stock and enqueues msgs in the
	// same transaction. It reports whether any stock moved.
	Restore(ctx context.Context, orderItemID uuid.UUID, msgs ...eventbus.Message) (bool, error)
	Reservations(ctx context.Context, orderID uuid.UUID) ([]domain.Reservation, error)
	Reservation(ctx context.Context, orderItemID uuid.UUID) (domain.Reservation, error)
	Available(ctx context.Context, isbn, sellerID string) (int, error)
}

type Publisher interface {
	Publish(ctx context.Context, routingKey, aggregateID string, payload any) error
}
