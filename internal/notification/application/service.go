package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/order-fulfillment/pkg/events"
	"github.com/dmehra2102/order-fulfillment/pkg/retry"
)

type NoticeKind string

const (
	NoticeNewOrder       NoticeKind = "seller_new_order"
	NoticeOrderCancelled NoticeKind = "customer_order_cancelled"
)

type Notice struct {
	Kind      NoticeKind
	OrderID   uuid.UUID
	Recipient string
	Subject   string
	Body      string
}

type Sender interface {
	Send(ctx context.Context, n Notice) error
}

type Publisher interface {
	Publish(ctx context.Context, routingKey, aggregateID string, payload any) error
}

type Service struct {
	log    *slog.Logger
	sender Sender
	pub    Publisher
	retry  retry.Policy
	now    func() time.Time
}

func NewService(log *slog.Logger, sender Sender, pub Publisher, policy retry.Policy) *Service {
	return &Service{log: log, sender: sender, pub: pub, retry: policy, now: time.Now}
}

// HandleOrderPaid tells every seller of the order which of their books sold.
func (s *Service) HandleOrderPaid(ctx context.Context, ev events.OrderPaid) error {
	var (
		sellers  []string
		bySeller = map[string][]events.OrderItem{}
	)
	for _, it := range ev.OrderItems {
		if _, ok := bySeller[it.SellerID]; !ok {
			sellers = append(sellers, it.SellerID)
		}
		bySeller[it.SellerID] = append(bySeller[it.SellerID], it)
	}

	var errs []error
	for _, seller := range sellers {
		items := bySeller[seller]
		units := 0
		for _, it := range items {
			units += it.Quantity
		}
		n := Notice{
			Kind:      NoticeNewOrder,
			OrderID:   ev.OrderID,
			Recipient: seller,
			Subject:   fmt.Sprintf("New order %s", ev.OrderID),
			Body:      fmt.Sprintf("%d line(s), %d unit(s) to ship", len(items), units),
		}
		if err := s.send(ctx, n, items[0].OrderItemID, seller); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) HandleOrderCancelled(ctx context.Context, ev events.OrderCancelled) error {
	body := "Your order was cancelled: " + ev.Reason
	if ev.RefundProcessed {
		body += ". The payment has been refunded."
	} else {
		body += ". The refund is being processed manually."
	}
	return s.send(ctx, Notice{
		Kind:      NoticeOrderCancelled,
		OrderID:   ev.OrderID,
		Recipient: ev.CustomerID,
		Subject:   fmt.Sprintf("Order %s cancelled", ev.OrderID),
		Body:      body,
	}, events.OrderLevel, "")
}

func (s *Service) send(ctx context.Context, n Notice, itemID uuid.UUID, sellerID string) error {
	attempts, err := s.retry.Do(ctx, s.log, "send notification", func(ctx context.Context) error {
		return s.sender.Send(ctx, n)
	})
	if err == nil {
		return nil
	}
	s.log.ErrorContext(ctx, "notification failed",
		"order_id", n.OrderID, "kind", n.Kind, "recipient", n.Recipient, "attempts", attempts, "err", err)
	if perr := s.pub.Publish(ctx, events.RKNotificationFailed, n.OrderID.String(), events.NotificationFailed{
		OrderID:       n.OrderID,
		OrderItemID:   itemID,
		SellerID:      sellerID,
		ErrorMessage:  err.Error(),
		FailedAt:      s.now().UTC(),
		RetryAttempts: attempts,
	}); perr != nil {
		return errors.Join(err, perr)
	}
	return fmt.Errorf("notify %s: %w", n.Recipient, err)
}
