package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/order-fulfillment/internal/orchestrator/domain"
	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
)

// Coordinator drives the compensation saga of paid orders whose downstream
// steps failed. All state lives in the StateStore; the coordinator itself is
// stateless and safe for concurrent use.
type Coordinator struct {
	log     *slog.Logger
	store   StateStore
	pub     Publisher
	journal Journal
	dedupe  bool
	now     func() time.Time
}

type Option func(*Coordinator)

func WithJournal(j Journal) Option {
	return func(c *Coordinator) { c.journal = j }
}

// WithDedupe toggles duplicate suppression of failures and completions.
func WithDedupe(on bool) Option {
	return func(c *Coordinator) { c.dedupe = on }
}

func NewCoordinator(log *slog.Logger, store StateStore, pub Publisher, opts ...Option) *Coordinator {
	c := &Coordinator{
		log:    log,
		store:  store,
		pub:    pub,
		dedupe: true,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) HandleInventoryReservationFailed(ctx context.Context, ev events.InventoryReservationFailed) error {
	return c.recordFailure(ctx, ev.OrderID, domain.FailedItem{
		OrderItemID:  ev.OrderItemID,
		FailureType:  events.FailureInventoryReservation,
		ErrorMessage: ev.ErrorMessage,
		FailedAt:     ev.FailedAt,
	})
}

func (c *Coordinator) HandleSellerStatsUpdateFailed(ctx context.Context, ev events.SellerStatsUpdateFailed) error {
	return c.recordFailure(ctx, ev.OrderID, domain.FailedItem{
		OrderItemID:  ev.OrderItemID,
		FailureType:  events.FailureSellerStatsUpdate,
		ErrorMessage: ev.ErrorMessage,
		FailedAt:     ev.FailedAt,
	})
}

// HandleNotificationFailed records the failure. It never starts a rollback on
// its own; evaluation only runs when the order already has a critical failure.
func (c *Coordinator) HandleNotificationFailed(ctx context.Context, ev events.NotificationFailed) error {
	return c.recordFailure(ctx, ev.OrderID, domain.FailedItem{
		OrderItemID:  ev.OrderItemID,
		FailureType:  events.FailureNotification,
		ErrorMessage: ev.ErrorMessage,
		FailedAt:     ev.FailedAt,
	})
}

func (c *Coordinator) recordFailure(ctx context.Context, orderID uuid.UUID, f domain.FailedItem) error {
	if orderID == uuid.Nil {
		return eventbus.Discard(errors.New("failure event without order id"))
	}
	if f.FailedAt.IsZero() {
		f.FailedAt = c.now().UTC()
	}
	return c.store.Update(ctx, orderID, true, func(st *domain.State) error {
		if !st.RecordFailure(f, c.dedupe) {
			c.log.InfoContext(ctx, "duplicate failure ignored",
				"order_id", orderID, "order_item_id", f.OrderItemID, "failure_type", f.FailureType)
			return nil
		}
		c.log.WarnContext(ctx, "failure recorded",
			"order_id", orderID, "order_item_id", f.OrderItemID, "failure_type", f.FailureType, "err", f.ErrorMessage)

		step := domain.StepFailureRecorded
		if st.InFlight() {
			s, err := c.evaluate(ctx, st)
			if err != nil {
				return err
			}
			if s != "" {
				step = s
			}
		}
		return c.record(ctx, st, step)
	})
}

// EvaluateAndTriggerCompensation publishes CompensationRequired the first time
// the order has critical failures. Later calls only raise the number of
// compensations the saga waits for.
func (c *Coordinator) EvaluateAndTriggerCompensation(ctx context.Context, orderID uuid.UUID) error {
	err := c.store.Update(ctx, orderID, false, func(st *domain.State) error {
		step, err := c.evaluate(ctx, st)
		if err != nil || step == "" {
			return err
		}
		return c.record(ctx, st, step)
	})
	if errors.Is(err, domain.ErrUnknownSaga) {
		c.log.WarnContext(ctx, "nothing to evaluate", "order_id", orderID)
		return nil
	}
	return err
}

// evaluate mutates st and returns the journal step describing the change, if any.
func (c *Coordinator) evaluate(ctx context.Context, st *domain.State) (string, error) {
	critical := st.CriticalFailures()
	if len(critical) == 0 {
		return "", nil
	}

	if st.CompensationTriggered {
		previous := st.ExpectedCompensations
		if !st.RaiseExpected(len(critical)) {
			return "", nil
		}
		c.log.WarnContext(ctx, "late critical failure, raising expected compensations",
			"order_id", st.OrderID, "from", previous, "to", st.ExpectedCompensations)
		for _, f := range critical[previous:] {
			if err := c.pub.Publish(ctx, events.RKCompensateInventoryReservation, st.OrderID.String(), events.CompensateInventoryReservation{
				OrderID:     st.OrderID,
				OrderItemID: f.OrderItemID,
				FailureType: f.FailureType,
				RequestedAt: c.now().UTC(),
			}); err != nil {
				return "", err
			}
		}
		return domain.StepExpectedRaised, nil
	}

	st.CompensationTriggered = true
	st.RaiseExpected(len(critical))
	req := events.CompensationRequired{
		OrderID:     st.OrderID,
		FailedItems: toEventItems(critical),
		RequestedAt: c.now().UTC(),
		Reason:      reason(critical),
	}
	if err := c.pub.Publish(ctx, events.RKCompensationRequired, st.OrderID.String(), req); err != nil {
		return "", err
	}
	c.log.WarnContext(ctx, "compensation requested", "order_id", st.OrderID, "expected", st.ExpectedCompensations, "reason", req.Reason)
	return domain.StepCompensationRequested, nil
}

// HandleCompensationCompleted counts a finished compensation and requests the
// order's cancellation once all of them reported back. Failed compensations
// are logged for reconciliation and do not hold the cancellation back.
func (c *Coordinator) HandleCompensationCompleted(ctx context.Context, ev events.CompensationCompleted) error {
	done := domain.CompletedCompensation{
		OrderItemID:      ev.OrderItemID,
		CompensationType: ev.CompensationType,
		Success:          ev.Success,
		ErrorMessage:     ev.ErrorMessage,
		CompletedAt:      ev.CompletedAt,
	}
	err := c.store.Update(ctx, ev.OrderID, false, func(st *domain.State) error {
		if !st.RecordCompletion(done, c.dedupe) {
			c.log.InfoContext(ctx, "duplicate compensation completion ignored",
				"order_id", ev.OrderID, "order_item_id", ev.OrderItemID, "compensation_type", ev.CompensationType)
			return nil
		}
		if !st.AllCompensated() {
			c.log.InfoContext(ctx, "waiting for compensations",
				"order_id", ev.OrderID, "completed", len(st.CompletedCompensations), "expected", st.ExpectedCompensations)
			return c.record(ctx, st, domain.StepCompletionRecorded)
		}
		if st.OrderCancellationRequested {
			return c.record(ctx, st, domain.StepCompletionRecorded)
		}

		st.OrderCancellationRequested = true
		if failed := st.FailedCompensations(); len(failed) > 0 {
			for _, f := range failed {
				c.log.WarnContext(ctx, "compensation failed, cancelling anyway",
					"order_id", ev.OrderID, "order_item_id", f.OrderItemID, "compensation_type", f.CompensationType, "err", f.ErrorMessage)
			}
		}
		critical := st.CriticalFailures()
		if err := c.pub.Publish(ctx, events.RKOrderCancellationRequested, ev.OrderID.String(), events.OrderCancellationRequested{
			OrderID:     ev.OrderID,
			Reason:      reason(critical),
			RequestedAt: c.now().UTC(),
			FailedItems: toEventItems(critical),
		}); err != nil {
			return err
		}
		c.log.WarnContext(ctx, "order cancellation requested", "order_id", ev.OrderID, "failed_items", len(critical))
		return c.record(ctx, st, domain.StepCancellationRequested)
	})
	if errors.Is(err, domain.ErrUnknownSaga) {
		c.log.WarnContext(ctx, "compensation completed for unknown saga", "order_id", ev.OrderID, "order_item_id", ev.OrderItemID)
		return nil
	}
	return err
}

// State returns the current compensation state of an order.
func (c *Coordinator) State(ctx context.Context, orderID uuid.UUID) (*domain.State, error) {
	return c.store.Get(ctx, orderID)
}

// History returns the journal of an order, oldest first. It is empty without a journal.
func (c *Coordinator) History(ctx context.Context, orderID uuid.UUID) ([]domain.JournalEntry, error) {
	if c.journal == nil {
		return nil, nil
	}
	return c.journal.History(ctx, orderID)
}

// Rehydrate loads every unresolved saga from the journal into the store.
// It publishes nothing.
func (c *Coordinator) Rehydrate(ctx context.Context) (int, error) {
	if c.journal == nil {
		return 0, nil
	}
	states, err := c.journal.Unresolved(ctx)
	if err != nil {
		return 0, fmt.Errorf("load unresolved sagas: %w", err)
	}
	for _, snap := range states {
		if err := c.store.Update(ctx, snap.OrderID, true, func(st *domain.State) error {
			*st = *snap.Clone()
			return nil
		}); err != nil {
			return 0, fmt.Errorf("restore saga %s: %w", snap.OrderID, err)
		}
	}
	c.log.InfoContext(ctx, "sagas rehydrated", "count", len(states))
	return len(states), nil
}

func (c *Coordinator) record(ctx context.Context, st *domain.State, step string) error {
	st.UpdatedAt = c.now().UTC()
	if c.journal == nil {
		return nil
	}
	entry := domain.JournalEntry{
		OrderID:    st.OrderID,
		Step:       step,
		State:      *st.Clone(),
		RecordedAt: st.UpdatedAt,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		entry.TraceID = sc.TraceID().String()
		entry.SpanID = sc.SpanID().String()
	}
	if err := c.journal.Append(ctx, entry); err != nil {
		return fmt.Errorf("journal %s: %w", step, err)
	}
	return nil
}

func toEventItems(failures []domain.FailedItem) []events.FailedItem {
	items := make([]events.FailedItem, 0, len(failures))
	for _, f := range failures {
		items = append(items, events.FailedItem{
			OrderItemID:  f.OrderItemID,
			FailureType:  f.FailureType,
			ErrorMessage: f.ErrorMessage,
		})
	}
	return items
}

func reason(critical []domain.FailedItem) string {
	var types []string
	for _, f := range critical {
		if !slices.Contains(types, string(f.FailureType)) {
			types = append(types, string(f.FailureType))
		}
	}
	return fmt.Sprintf("%d critical failure(s): %s", len(critical), strings.Join(types, ", "))
}
