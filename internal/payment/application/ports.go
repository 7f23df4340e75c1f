package application

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/order-fulfillment/internal/payment/domain"
)

// Gateway is the payment service provider.
type Gateway interface {
	Capture(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal, method string) (reference string, err error)
	Refund(ctx context.Context, reference string, amount decimal.Decimal) error
}

type PaymentRepository interface {
	Save(ctx context.Context, p domain.Payment) error
	// Get returns domain.ErrNotFound when the order has no payment.
	Get(ctx context.Context, orderID uuid.UUID) (domain.Payment, error)
}
