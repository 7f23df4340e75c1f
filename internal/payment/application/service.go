package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/order-fulfillment/internal/payment/domain"
)

type Service struct {
	log     *slog.Logger
	gateway Gateway
	repo    PaymentRepository
	now     func() time.Time
}

func NewService(log *slog.Logger, gateway Gateway, repo PaymentRepository) *Service {
	return &Service{log: log, gateway: gateway, repo: repo, now: time.Now}
}

// Capture charges amount for orderID. A second capture for the same order
// returns the first payment instead of charging twice.
func (s *Service) Capture(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal, method string) (domain.Payment, error) {
	existing, err := s.repo.Get(ctx, orderID)
	switch {
	case err == nil && existing.Status == domain.StatusCaptured:
		return existing, nil
	case err == nil:
		return domain.Payment{}, fmt.Errorf("order %s already has a %s payment", orderID, existing.Status)
	case !errors.Is(err, domain.ErrNotFound):
		return domain.Payment{}, err
	}

	ref, err := s.gateway.Capture(ctx, orderID, amount, method)
	if err != nil {
		s.log.WarnContext(ctx, "payment capture failed", "order_id", orderID, "amount", amount, "err", err)
		return domain.Payment{}, err
	}
	p := domain.Payment{
		OrderID:    orderID,
		Amount:     amount,
		Method:     method,
		Reference:  ref,
		Status:     domain.StatusCaptured,
		CapturedAt: s.now().UTC(),
	}
	if err := s.repo.Save(ctx, p); err != nil {
		// the charge exists at the provider; give it back rather than keep an untracked capture
		if rerr := s.gateway.Refund(ctx, ref, amount); rerr != nil {
			s.log.ErrorContext(ctx, "untracked capture could not be refunded", "order_id", orderID, "reference", ref, "err", rerr)
		}
		return domain.Payment{}, fmt.Errorf("save payment: %w", err)
	}
	s.log.InfoContext(ctx, "payment captured", "order_id", orderID, "amount", amount, "reference", ref)
	return p, nil
}

// Refund returns the captured amount. Refunding twice is a no-op.
func (s *Service) Refund(ctx context.Context, orderID uuid.UUID, reason string) (domain.Payment, error) {
	p, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return domain.Payment{}, err
	}
	if p.Status == domain.StatusRefunded {
		return p, nil
	}
	if err := s.gateway.Refund(ctx, p.Reference, p.Amount); err != nil {
		return domain.Payment{}, fmt.Errorf("refund %s: %w", orderID, err)
	}
	at := s.now().UTC()
	p.Status = domain.StatusRefunded
	p.RefundedAt = &at
	p.RefundReason = reason
	if err := s.repo.Save(ctx, p); err != nil {
		return domain.Payment{}, fmt.Errorf("save refund: %w", err)
	}
	s.log.InfoContext(ctx, "payment refunded", "order_id", orderID, "amount", p.Amount, "reason", reason)
	return p, nil
}
