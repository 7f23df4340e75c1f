package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/order-fulfillment/internal/order/domain"
	paymentdomain "github.com/dmehra2102/order-fulfillment/internal/payment/domain"
	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
)

// OrderRepository persists orders together with outbox messages in one transaction.
type OrderRepository interface {
	Create(ctx context.Context, o *domain.Order, msgs ...eventbus.Message) error
	// Update fails with domain.ErrConcurrentUpdate when o.Version is stale.
	Update(ctx context.Context, o *domain.Order, msgs ...eventbus.Message) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Order, error)
}

// CheckoutStore keeps unpaid orders outside the orders table until payment succeeds.
type CheckoutStore interface {
	Put(ctx context.Context, o *domain.Order, ttl time.Duration) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type InventoryClient interface {
	CheckStock(ctx context.Context, items []domain.OrderItem) (bool, error)
}

type Payments interface {
	Capture(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal, method string) (paymentdomain.Payment, error)
	Refund(ctx context.Context, orderID uuid.UUID, reason string) (paymentdomain.Payment, error)
}
