package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/order-fulfillment/internal/payment/domain"
)

// Mock approves every capture up to MaxAmount and declines the rest.
type Mock struct {
	MaxAmount decimal.Decimal
}

func NewMock(maxAmount decimal.Decimal) *Mock {
	return &Mock{MaxAmount: maxAmount}
}

func (m *Mock) Capture(_ context.Context, orderID uuid.UUID, amount decimal.Decimal, method string) (string, error) {
	if amount.GreaterThan(m.MaxAmount) {
		return "", fmt.Errorf("%w: amount %s above limit %s", domain.ErrDeclined, amount, m.MaxAmount)
	}
	if method == "" {
		return "", fmt.Errorf("%w: no payment method", domain.ErrDeclined)
	}
	return "mock-" + orderID.String(), nil
}

func (m *Mock) Refund(context.Context, string, decimal.Decimal) error {
	return nil
}
