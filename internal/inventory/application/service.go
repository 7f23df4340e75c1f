package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/order-fulfillment/internal/inventory/domain"
	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
	"github.com/dmehra2102/order-fulfillment/pkg/retry"
)

type Service struct {
	log   *slog.Logger
	repo  LedgerRepository
	pub   Publisher
	retry retry.Policy
	now   func() time.Time
}

func NewService(log *slog.Logger, repo LedgerRepository, pub Publisher, policy retry.Policy) *Service {
	return &Service{log: log, repo: repo, pub: pub, retry: policy, now: time.Now}
}

// HandleOrderPaid decrements stock for every line of the order. Lines that
// cannot be decremented produce an InventoryReservationFailed event. Running
// out of stock is final; any other failure is also returned so the message is
// dead-lettered.
func (s *Service) HandleOrderPaid(ctx context.Context, ev events.OrderPaid) error {
	if ev.OrderID == uuid.Nil || len(ev.OrderItems) == 0 {
		return eventbus.Discard(errors.New("order paid event without order id or items"))
	}
	lines := domain.ReservationsFor(ev, s.now())
	if err := s.repo.RecordReservations(ctx, lines); err != nil {
		return fmt.Errorf("record reservations: %w", err)
	}

	var errs []error
	for _, line := range lines {
		attempts, err := s.retry.Do(ctx, s.log, "decrement stock", func(ctx context.Context) error {
			err := s.repo.Decrement(ctx, line.OrderItemID)
			if errors.Is(err, domain.ErrInsufficientStock) {
				return retry.Permanent(err)
			}
			return err
		})
		if err == nil {
			continue
		}
		if perr := s.reservationFailed(ctx, line, attempts, err); perr != nil {
			errs = append(errs, perr)
		}
		if !errors.Is(err, domain.ErrInsufficientStock) {
			errs = append(errs, fmt.Errorf("item %s: %w", line.OrderItemID, err))
		}
	}
	if len(errs) == 0 {
		s.log.InfoContext(ctx, "stock decremented", "order_id", ev.OrderID, "items", len(lines))
	}
	return errors.Join(errs...)
}

func (s *Service) reservationFailed(ctx context.Context, line domain.Reservation, attempts int, cause error) error {
	s.log.ErrorContext(ctx, "stock reservation failed",
		"order_id", line.OrderID, "order_item_id", line.OrderItemID, "book_isbn", line.BookISBN, "attempts", attempts, "err", cause)

	if err := s.repo.MarkFailed(ctx, line.OrderItemID, cause.Error()); err != nil {
		s.log.WarnContext(ctx, "cannot mark reservation failed", "order_item_id", line.OrderItemID, "err", err)
	}
	return s.pub.Publish(ctx, events.RKInventoryReservationFailed, line.OrderID.String(), events.InventoryReservationFailed{
		OrderID:       line.OrderID,
		OrderItemID:   line.OrderItemID,
		BookISBN:      line.BookISBN,
		SellerID:      line.SellerID,
		Quantity:      line.Quantity,
		ErrorMessage:  cause.Error(),
		FailedAt:      s.now().UTC(),
		RetryAttempts: attempts,
	})
}

// HandleCompensationRequired turns the saga's request into one targeted
// instruction per critical failed item.
func (s *Service) HandleCompensationRequired(ctx context.Context, ev events.CompensationRequired) error {
	for _, f := range ev.FailedItems {
		if !f.FailureType.Critical() {
			continue
		}
		cmd := events.CompensateInventoryReservation{
			OrderID:     ev.OrderID,
			OrderItemID: f.OrderItemID,
			FailureType: f.FailureType,
			RequestedAt: s.now().UTC(),
		}
		if f.OrderItemID != events.OrderLevel {
			line, err := s.repo.Reservation(ctx, f.OrderItemID)
			switch {
			case err == nil:
				cmd.BookISBN, cmd.SellerID, cmd.Quantity = line.BookISBN, line.SellerID, line.Quantity
			case !errors.Is(err, domain.ErrReservationNotFound):
				return err
			}
		}
		if err := s.pub.Publish(ctx, events.RKCompensateInventoryReservation, ev.OrderID.String(), cmd); err != nil {
			return fmt.Errorf("request compensation for item %s: %w", f.OrderItemID, err)
		}
	}
	return nil
}

// HandleCompensateReservation restores a decremented line and reports the
// compensation. Lines that hold no stock complete successfully without moving
// anything; a restore that keeps failing completes with Success=false.
func (s *Service) HandleCompensateReservation(ctx context.Context, cmd events.CompensateInventoryReservation) error {
	compType := events.CompensationInventoryReservation
	if cmd.FailureType != "" {
		compType = events.CompensationFor(cmd.FailureType)
	}
	done := events.CompensationCompleted{
		OrderID:          cmd.OrderID,
		OrderItemID:      cmd.OrderItemID,
		CompensationType: compType,
		Success:          true,
		CompletedAt:      s.now().UTC(),
	}
	msg, err := eventbus.NewMessage(ctx, events.RKCompensationCompleted, cmd.OrderID.String(), done)
	if err != nil {
		return err
	}

	var restored bool
	attempts, err := s.retry.Do(ctx, s.log, "restore stock", func(ctx context.Context) error {
		r, err := s.repo.Restore(ctx, cmd.OrderItemID, msg)
		restored = r
		return err
	})
	if err != nil {
		s.log.ErrorContext(ctx, "compensation failed, manual reconciliation needed",
			"order_id", cmd.OrderID, "order_item_id", cmd.OrderItemID, "attempts", attempts, "err", err)
		done.Success = false
		done.ErrorMessage = err.Error()
		return s.pub.Publish(ctx, events.RKCompensationCompleted, cmd.OrderID.String(), done)
	}
	s.log.InfoContext(ctx, "compensation completed",
		"order_id", cmd.OrderID, "order_item_id", cmd.OrderItemID, "compensation_type", compType, "restored", restored)
	return nil
}

// HandleOrderCancelled returns the stock still held by a cancelled order.
// Lines that hold nothing are released first; OrderPaid is consumed on another
// queue and may still be decrementing them.
func (s *Service) HandleOrderCancelled(ctx context.Context, ev events.OrderCancelled) error {
	if err := s.repo.Release(ctx, domain.ReleasedFor(ev, s.now())); err != nil {
		return fmt.Errorf("release lines: %w", err)
	}
	lines, err := s.repo.Reservations(ctx, ev.OrderID)
	if err != nil {
		return err
	}
	var errs []error
	for _, line := range lines {
		if !line.Holding() {
			continue
		}
		if _, err := s.retry.Do(ctx, s.log, "release stock", func(ctx context.Context) error {
			_, err := s.repo.Restore(ctx, line.OrderItemID)
			return err
		}); err != nil {
			errs = append(errs, fmt.Errorf("item %s: %w", line.OrderItemID, err))
		}
	}
	if len(errs) == 0 {
		s.log.InfoContext(ctx, "stock released for cancelled order", "order_id", ev.OrderID)
	}
	return errors.Join(errs...)
}

// CheckStock reports whether every line is currently on the shelf. It returns
// the lines that are short.
func (s *Service) CheckStock(ctx context.Context, lines []domain.StockLine) (bool, []domain.StockLine, error) {
	var short []domain.StockLine
	for _, l := range lines {
		n, err := s.repo.Available(ctx, l.BookISBN, l.SellerID)
		if err != nil {
			return false, nil, err
		}
		if n < l.Quantity {
			short = append(short, l)
		}
	}
	return len(short) == 0, short, nil
}
