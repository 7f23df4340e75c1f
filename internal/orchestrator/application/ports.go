package application

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmehra2102/order-fulfillment/internal/orchestrator/domain"
)

// StateStore holds the compensation state of every order with a saga in flight.
type StateStore interface {
	// Get returns a copy of the order's state or domain.ErrUnknownSaga.
	Get(ctx context.Context, orderID uuid.UUID) (*domain.State, error)
	// Update applies fn to the order's state and stores the result only when
	// fn returns nil. Updates of one order never interleave. Without create,
	// an order with no state yields domain.ErrUnknownSaga.
	Update(ctx context.Context, orderID uuid.UUID, create bool, fn func(st *domain.State) error) error
}

// Journal is the append-only saga history used to rebuild state after a restart.
type Journal interface {
	Append(ctx context.Context, entry domain.JournalEntry) error
	// Unresolved returns the latest snapshot of every saga not yet resolved.
	Unresolved(ctx context.Context) ([]domain.State, error)
	History(ctx context.Context, orderID uuid.UUID) ([]domain.JournalEntry, error)
}

type Publisher interface {
	Publish(ctx context.Context, routingKey, aggregateID string, payload any) error
}
