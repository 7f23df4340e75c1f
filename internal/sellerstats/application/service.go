package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/order-fulfillment/internal/sellerstats/domain"
	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
	"github.com/dmehra2102/order-fulfillment/pkg/retry"
)

type StatsStore interface {
	// Apply adds the item to its seller's totals once per item.
	Apply(ctx context.Context, orderID uuid.UUID, item events.OrderItem) (bool, error)
	// Revert takes a previously applied item back out.
	Revert(ctx context.Context, orderID uuid.UUID, item events.OrderItem) (bool, error)
	Stats(ctx context.Context, sellerID string) (domain.SellerStats, error)
}

type Publisher interface {
	Publish(ctx context.Context, routingKey, aggregateID string, payload any) error
}

type Service struct {
	log   *slog.Logger
	store StatsStore
	pub   Publisher
	retry retry.Policy
	now   func() time.Time
}

func NewService(log *slog.Logger, store StatsStore, pub Publisher, policy retry.Policy) *Service {
	return &Service{log: log, store: store, pub: pub, retry: policy, now: time.Now}
}

func (s *Service) HandleOrderPaid(ctx context.Context, ev events.OrderPaid) error {
	if ev.OrderID == uuid.Nil {
		return eventbus.Discard(errors.New("order paid event without order id"))
	}
	var errs []error
	for _, item := range ev.OrderItems {
		attempts, err := s.retry.Do(ctx, s.log, "update seller stats", func(ctx context.Context) error {
			_, err := s.store.Apply(ctx, ev.OrderID, item)
			return err
		})
		if err == nil {
			continue
		}
		s.log.ErrorContext(ctx, "seller stats update failed",
			"order_id", ev.OrderID, "order_item_id", item.OrderItemID, "seller_id", item.SellerID, "attempts", attempts, "err", err)
		if perr := s.pub.Publish(ctx, events.RKSellerStatsUpdateFailed, ev.OrderID.String(), events.SellerStatsUpdateFailed{
			OrderID:       ev.OrderID,
			OrderItemID:   item.OrderItemID,
			SellerID:      item.SellerID,
			ErrorMessage:  err.Error(),
			FailedAt:      s.now().UTC(),
			RetryAttempts: attempts,
		}); perr != nil {
			errs = append(errs, perr)
		}
		errs = append(errs, fmt.Errorf("item %s: %w", item.OrderItemID, err))
	}
	return errors.Join(errs...)
}

// HandleOrderCancelled removes the order's items from the seller totals.
func (s *Service) HandleOrderCancelled(ctx context.Context, ev events.OrderCancelled) error {
	var errs []error
	for _, item := range ev.OrderItems {
		if _, err := s.retry.Do(ctx, s.log, "revert seller stats", func(ctx context.Context) error {
			_, err := s.store.Revert(ctx, ev.OrderID, item)
			return err
		}); err != nil {
			errs = append(errs, fmt.Errorf("item %s: %w", item.OrderItemID, err))
		}
	}
	if len(errs) == 0 {
		s.log.InfoContext(ctx, "seller stats reverted", "order_id", ev.OrderID, "items", len(ev.OrderItems))
	}
	return errors.Join(errs...)
}

func (s *Service) Stats(ctx context.Context, sellerID string) (domain.SellerStats, error) {
	return s.store.Stats(ctx, sellerID)
}
