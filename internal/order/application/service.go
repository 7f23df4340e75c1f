package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/order-fulfillment/internal/order/domain"
	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
	"github.com/dmehra2102/order-fulfillment/pkg/retry"
)

type CartItem struct {
	BookISBN  string          `json:"book_isbn"`
	SellerID  string          `json:"seller_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type Service struct {
	log         *slog.Logger
	repo        OrderRepository
	checkouts   CheckoutStore
	inv         InventoryClient
	payments    Payments
	retry       retry.Policy
	checkoutTTL time.Duration
	now         func() time.Time
}

func NewService(log *slog.Logger, repo OrderRepository, checkouts CheckoutStore, inv InventoryClient, payments Payments, policy retry.Policy, checkoutTTL time.Duration) *Service {
	return &Service{
		log:         log,
		repo:        repo,
		checkouts:   checkouts,
		inv:         inv,
		payments:    payments,
		retry:       policy,
		checkoutTTL: checkoutTTL,
		now:         time.Now,
	}
}

// StartCheckout converts a cart into a pending order held by the checkout
// store. Nothing is written to the orders table before payment.
func (s *Service) StartCheckout(ctx context.Context, customerID string, cart []CartItem) (*domain.Order, error) {
	items := make([]domain.OrderItem, 0, len(cart))
	for _, c := range cart {
		item, err := domain.NewOrderItem(c.BookISBN, c.SellerID, c.Quantity, c.UnitPrice)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	o, err := domain.NewOrder(customerID, items, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.checkouts.Put(ctx, o, s.checkoutTTL); err != nil {
		return nil, fmt.Errorf("store checkout: %w", err)
	}
	s.log.InfoContext(ctx, "checkout started", "order_id", o.ID, "customer_id", customerID, "total", o.Total)
	return o, nil
}

// PayOrder captures payment for a checkout and materialises the paid order
// together with its OrderPaid event. Paying an order that is already paid
// returns it unchanged.
func (s *Service) PayOrder(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal, method string) (*domain.Order, error) {
	existing, err := s.repo.Get(ctx, orderID)
	switch {
	case err == nil:
		if existing.PaidDate == nil {
			return nil, &domain.TransitionError{OrderID: orderID, From: existing.Status, To: domain.StatusPaid}
		}
		return existing, nil
	case !errors.Is(err, domain.ErrOrderNotFound):
		return nil, err
	}

	o, err := s.checkouts.Get(ctx, orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return nil, &NotFoundError{OrderID: orderID}
	}
	if err != nil {
		return nil, err
	}
	if !amount.Equal(o.Total) {
		return nil, &PaymentError{OrderID: orderID, Reason: fmt.Sprintf("amount %s does not match order total %s", amount, o.Total)}
	}

	if s.inv != nil {
		ok, err := s.inv.CheckStock(ctx, o.Items)
		switch {
		case err != nil:
			s.log.WarnContext(ctx, "stock check unavailable, continuing", "order_id", orderID, "err", err)
		case !ok:
			return nil, &PaymentError{OrderID: orderID, Reason: "stock check failed", Err: ErrStockUnavailable}
		}
	}

	p, err := s.payments.Capture(ctx, orderID, amount, method)
	if err != nil {
		return nil, &PaymentError{OrderID: orderID, Reason: "capture failed", Err: err}
	}
	if err := o.Pay(p.CapturedAt); err != nil {
		return nil, err
	}

	msg, err := eventbus.NewMessage(ctx, events.RKOrderPaid, o.ID.String(), o.PaidEvent())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, o, msg); err != nil {
		if _, rerr := s.payments.Refund(ctx, orderID, "order could not be stored"); rerr != nil {
			s.log.ErrorContext(ctx, "refund after failed order save failed", "order_id", orderID, "err", rerr)
		}
		return nil, fmt.Errorf("store paid order: %w", err)
	}
	if err := s.checkouts.Delete(ctx, orderID); err != nil {
		s.log.WarnContext(ctx, "checkout cleanup failed", "order_id", orderID, "err", err)
	}

	s.log.InfoContext(ctx, "order paid", "order_id", o.ID, "total", o.Total, "items", len(o.Items))
	return o, nil
}

// GetOrder returns a stored order, or the pending checkout with that id.
func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, domain.ErrOrderNotFound) {
		return nil, err
	}
	o, err = s.checkouts.Get(ctx, id)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return nil, &NotFoundError{OrderID: id}
	}
	return o, err
}

func (s *Service) ShipOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.mutate(ctx, id, func(o *domain.Order) error { return o.Ship(s.now()) })
}

func (s *Service) DeliverOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.mutate(ctx, id, func(o *domain.Order) error { return o.Deliver(s.now()) })
}

func (s *Service) RefundOrder(ctx context.Context, id uuid.UUID, reason string) (*domain.Order, error) {
	return s.mutate(ctx, id, func(o *domain.Order) error {
		if !o.Status.CanTransitionTo(domain.StatusRefunded) {
			return &domain.TransitionError{OrderID: o.ID, From: o.Status, To: domain.StatusRefunded}
		}
		if _, err := s.payments.Refund(ctx, o.ID, reason); err != nil {
			return err
		}
		return o.Refund(reason, s.now())
	})
}

func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn func(o *domain.Order) error) (*domain.Order, error) {
	o, err := s.repo.Get(ctx, id)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return nil, &NotFoundError{OrderID: id}
	}
	if err != nil {
		return nil, err
	}
	if err := fn(o); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// HandleCancellationRequested ends a failed saga: it refunds the payment and
// cancels the order. An order that is already cancelled is left untouched and
// nothing is emitted again.
func (s *Service) HandleCancellationRequested(ctx context.Context, ev events.OrderCancellationRequested) error {
	o, err := s.repo.Get(ctx, ev.OrderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return eventbus.Discard(&NotFoundError{OrderID: ev.OrderID})
	}
	if err != nil {
		return err
	}
	if o.Status == domain.StatusCancelled {
		s.log.InfoContext(ctx, "order already cancelled, ignoring request", "order_id", o.ID)
		return nil
	}
	if !o.Status.CanTransitionTo(domain.StatusCancelled) {
		return eventbus.Discard(&domain.TransitionError{OrderID: o.ID, From: o.Status, To: domain.StatusCancelled})
	}

	for _, f := range ev.FailedItems {
		if f.OrderItemID == events.OrderLevel {
			continue
		}
		if err := o.MarkItemFailed(f.OrderItemID); err != nil {
			s.log.WarnContext(ctx, "cannot mark item failed", "order_id", o.ID, "order_item_id", f.OrderItemID, "err", err)
			continue
		}
		if err := o.MarkItemCompensated(f.OrderItemID); err != nil {
			s.log.WarnContext(ctx, "cannot mark item compensated", "order_id", o.ID, "order_item_id", f.OrderItemID, "err", err)
		}
	}

	refundProcessed := true
	if _, err := s.retry.Do(ctx, s.log, "refund", func(ctx context.Context) error {
		_, err := s.payments.Refund(ctx, o.ID, ev.Reason)
		return err
	}); err != nil {
		refundProcessed = false
		s.log.ErrorContext(ctx, "refund failed, cancelling without refund", "order_id", o.ID, "err", err)
	}

	if err := o.Cancel(ev.Reason, s.now()); err != nil {
		return err
	}
	msg, err := eventbus.NewMessage(ctx, events.RKOrderCancelled, o.ID.String(), o.CancelledEvent(refundProcessed))
	if err != nil {
		return err
	}
	if err := s.repo.Update(ctx, o, msg); err != nil {
		return fmt.Errorf("cancel order %s: %w", o.ID, err)
	}
	s.log.InfoContext(ctx, "order cancelled", "order_id", o.ID, "reason", ev.Reason, "refund_processed", refundProcessed)
	return nil
}
