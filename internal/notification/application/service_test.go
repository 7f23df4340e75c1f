package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
	"github.com/dmehra2102/order-fulfillment/pkg/retry"
)

type recordingSender struct {
	sent   []Notice
	failTo string
}

func (r *recordingSender) Send(_ context.Context, n Notice) error {
	if n.Recipient == r.failTo {
		return errors.New("smtp: 421 service not available")
	}
	r.sent = append(r.sent, n)
	return nil
}

func newTestService(sender Sender) (*Service, *eventbus.MemoryTransport) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mt := eventbus.NewMemoryTransport()
	return NewService(log, sender, eventbus.New(log, mt, nil, "notification"), retry.Default()), mt
}

func TestOrderPaidNotifiesEachSellerOnce(t *testing.T) {
	sender := &recordingSender{}
	svc, _ := newTestService(sender)
	ev := events.OrderPaid{OrderID: uuid.New(), OrderItems: []events.OrderItem{
		{OrderItemID: uuid.New(), SellerID: "s-1", Quantity: 1},
		{OrderItemID: uuid.New(), SellerID: "s-2", Quantity: 2},
		{OrderItemID: uuid.New(), SellerID: "s-1", Quantity: 3},
	}}

	require.NoError(t, svc.HandleOrderPaid(context.Background(), ev))
	require.Len(t, sender.sent, 2)
	assert.Equal(t, "s-1", sender.sent[0].Recipient)
	assert.Equal(t, "2 line(s), 4 unit(s) to ship", sender.sent[0].Body)
	assert.Equal(t, "s-2", sender.sent[1].Recipient)
}

func TestFailedNotificationPublishesNonCriticalFailure(t *testing.T) {
	sender := &recordingSender{failTo: "s-2"}
	svc, mt := newTestService(sender)
	failing := uuid.New()
	ev := events.OrderPaid{OrderID: uuid.New(), OrderItems: []events.OrderItem{
		{OrderItemID: uuid.New(), SellerID: "s-1", Quantity: 1},
		{OrderItemID: failing, SellerID: "s-2", Quantity: 1},
	}}

	err := svc.HandleOrderPaid(context.Background(), ev)
	require.Error(t, err)
	assert.Len(t, sender.sent, 1)

	msgs := mt.Published(events.RKNotificationFailed)
	require.Len(t, msgs, 1)
	failed, err := eventbus.Decode[events.NotificationFailed](msgs[0])
	require.NoError(t, err)
	assert.Equal(t, ev.OrderID, failed.OrderID)
	assert.Equal(t, failing, failed.OrderItemID)
	assert.Equal(t, "s-2", failed.SellerID)
	assert.Equal(t, retry.DefaultMaxRetries, failed.RetryAttempts)
}

func TestOrderCancelledNotifiesCustomer(t *testing.T) {
	sender := &recordingSender{}
	svc, _ := newTestService(sender)

	require.NoError(t, svc.HandleOrderCancelled(context.Background(), events.OrderCancelled{
		OrderID: uuid.New(), CustomerID: "c-1", Reason: "out of stock", RefundProcessed: true,
	}))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, NoticeOrderCancelled, sender.sent[0].Kind)
	assert.Equal(t, "c-1", sender.sent[0].Recipient)
	assert.Contains(t, sender.sent[0].Body, "refunded")
}
