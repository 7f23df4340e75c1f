package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-fulfillment/internal/order/domain"
	paymentdomain "github.com/dmehra2102/order-fulfillment/internal/payment/domain"
	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
	"github.com/dmehra2102/order-fulfillment/pkg/retry"
)

type memRepo struct {
	orders    map[uuid.UUID]domain.Order
	outbox    []eventbus.Message
	createErr error
}

func newMemRepo() *memRepo { return &memRepo{orders: map[uuid.UUID]domain.Order{}} }

func (r *memRepo) Create(_ context.Context, o *domain.Order, msgs ...eventbus.Message) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.orders[o.ID] = copyOrder(o)
	r.outbox = append(r.outbox, msgs...)
	return nil
}

func (r *memRepo) Update(_ context.Context, o *domain.Order, msgs ...eventbus.Message) error {
	cur, ok := r.orders[o.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if cur.Version != o.Version {
		return domain.ErrConcurrentUpdate
	}
	o.Version++
	r.orders[o.ID] = copyOrder(o)
	r.outbox = append(r.outbox, msgs...)
	return nil
}

func (r *memRepo) Get(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	c := copyOrder(&o)
	return &c, nil
}

func (r *memRepo) sent(rk string) []eventbus.Message {
	var out []eventbus.Message
	for _, m := range r.outbox {
		if m.RoutingKey == rk {
			out = append(out, m)
		}
	}
	return out
}

func copyOrder(o *domain.Order) domain.Order {
	c := *o
	c.Items = append([]domain.OrderItem(nil), o.Items...)
	return c
}

type memCheckouts struct {
	drafts map[uuid.UUID]domain.Order
}

func (c *memCheckouts) Put(_ context.Context, o *domain.Order, _ time.Duration) error {
	c.drafts[o.ID] = copyOrder(o)
	return nil
}

func (c *memCheckouts) Get(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	o, ok := c.drafts[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := copyOrder(&o)
	return &cp, nil
}

func (c *memCheckouts) Delete(_ context.Context, id uuid.UUID) error {
	delete(c.drafts, id)
	return nil
}

type stubInventory struct {
	ok  bool
	err error
}

func (s stubInventory) CheckStock(context.Context, []domain.OrderItem) (bool, error) {
	return s.ok, s.err
}

type stubPayments struct {
	captures   int
	refunds    int
	declined   bool
	refundErrs int
}

func (p *stubPayments) Capture(_ context.Context, id uuid.UUID, amount decimal.Decimal, method string) (paymentdomain.Payment, error) {
	if p.declined {
		return paymentdomain.Payment{}, paymentdomain.ErrDeclined
	}
	p.captures++
	return paymentdomain.Payment{OrderID: id, Amount: amount, Method: method, Status: paymentdomain.StatusCaptured, CapturedAt: time.Now()}, nil
}

func (p *stubPayments) Refund(_ context.Context, id uuid.UUID, reason string) (paymentdomain.Payment, error) {
	if p.refundErrs != 0 {
		if p.refundErrs > 0 {
			p.refundErrs--
		}
		return paymentdomain.Payment{}, errors.New("provider unavailable")
	}
	p.refunds++
	return paymentdomain.Payment{OrderID: id, Status: paymentdomain.StatusRefunded, RefundReason: reason}, nil
}

type fixture struct {
	svc       *Service
	repo      *memRepo
	checkouts *memCheckouts
	payments  *stubPayments
}

func newFixture(inv InventoryClient) *fixture {
	f := &fixture{
		repo:      newMemRepo(),
		checkouts: &memCheckouts{drafts: map[uuid.UUID]domain.Order{}},
		payments:  &stubPayments{},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(log, f.repo, f.checkouts, inv, f.payments, retry.Default(), time.Minute)
	return f
}

var cart = []CartItem{
	{BookISBN: "978-0134190440", SellerID: "seller-1", Quantity: 2, UnitPrice: decimal.RequireFromString("10.50")},
	{BookISBN: "978-1491941195", SellerID: "seller-2", Quantity: 1, UnitPrice: decimal.RequireFromString("5")},
}

func (f *fixture) paidOrder(t *testing.T) *domain.Order {
	t.Helper()
	o, err := f.svc.StartCheckout(context.Background(), "cust-1", cart)
	require.NoError(t, err)
	paid, err := f.svc.PayOrder(context.Background(), o.ID, o.Total, "card")
	require.NoError(t, err)
	return paid
}

func TestStartCheckout_KeepsDraftOutOfRepository(t *testing.T) {
	f := newFixture(nil)
	o, err := f.svc.StartCheckout(context.Background(), "cust-1", cart)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, o.Status)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("26")))
	assert.Empty(t, f.repo.orders)
	assert.Contains(t, f.checkouts.drafts, o.ID)
}

func TestStartCheckout_InvalidItem(t *testing.T) {
	f := newFixture(nil)
	_, err := f.svc.StartCheckout(context.Background(), "cust-1", []CartItem{{BookISBN: "x", SellerID: "s", Quantity: 0, UnitPrice: decimal.NewFromInt(1)}})
	assert.True(t, domain.IsValidation(err, domain.KindQuantityOutOfRange))
	assert.Empty(t, f.checkouts.drafts)
}

func TestPayOrder_PersistsOrderWithPaidEvent(t *testing.T) {
	f := newFixture(stubInventory{ok: true})
	o := f.paidOrder(t)

	assert.Equal(t, domain.StatusPaid, o.Status)
	require.NotNil(t, o.PaidDate)
	assert.Contains(t, f.repo.orders, o.ID)
	assert.NotContains(t, f.checkouts.drafts, o.ID)

	sent := f.repo.sent(events.RKOrderPaid)
	require.Len(t, sent, 1)
	ev, err := eventbus.Decode[events.OrderPaid](sent[0])
	require.NoError(t, err)
	assert.Equal(t, o.ID, ev.OrderID)
	assert.Len(t, ev.OrderItems, 2)
	assert.Equal(t, o.ID.String(), sent[0].AggregateID)
}

func TestPayOrder_Idempotent(t *testing.T) {
	f := newFixture(nil)
	o := f.paidOrder(t)

	again, err := f.svc.PayOrder(context.Background(), o.ID, o.Total, "card")
	require.NoError(t, err)
	assert.Equal(t, o.ID, again.ID)
	assert.Equal(t, 1, f.payments.captures)
	assert.Len(t, f.repo.sent(events.RKOrderPaid), 1)
}

func TestPayOrder_UnknownOrder(t *testing.T) {
	f := newFixture(nil)
	_, err := f.svc.PayOrder(context.Background(), uuid.New(), decimal.NewFromInt(1), "card")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestPayOrder_Failures(t *testing.T) {
	tests := []struct {
		name    string
		inv     InventoryClient
		decline bool
		amount  func(o *domain.Order) decimal.Decimal
		wantErr error
	}{
		{name: "amount mismatch", amount: func(o *domain.Order) decimal.Decimal { return o.Total.Add(decimal.NewFromInt(1)) }},
		{name: "out of stock", inv: stubInventory{ok: false}, wantErr: ErrStockUnavailable},
		{name: "declined", decline: true, wantErr: paymentdomain.ErrDeclined},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.inv)
			f.payments.declined = tt.decline
			o, err := f.svc.StartCheckout(context.Background(), "cust-1", cart)
			require.NoError(t, err)

			amount := o.Total
			if tt.amount != nil {
				amount = tt.amount(o)
			}
			_, err = f.svc.PayOrder(context.Background(), o.ID, amount, "card")

			var pe *PaymentError
			require.ErrorAs(t, err, &pe)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Empty(t, f.repo.orders)
			assert.Contains(t, f.checkouts.drafts, o.ID)
		})
	}
}

func TestPayOrder_StockCheckUnavailableContinues(t *testing.T) {
	f := newFixture(stubInventory{err: errors.New("connection refused")})
	o := f.paidOrder(t)
	assert.Equal(t, domain.StatusPaid, o.Status)
}

func TestPayOrder_RefundsWhenSaveFails(t *testing.T) {
	f := newFixture(nil)
	f.repo.createErr = errors.New("db down")
	o, err := f.svc.StartCheckout(context.Background(), "cust-1", cart)
	require.NoError(t, err)

	_, err = f.svc.PayOrder(context.Background(), o.ID, o.Total, "card")
	require.Error(t, err)
	assert.Equal(t, 1, f.payments.refunds)
}

func TestHandleCancellationRequested(t *testing.T) {
	f := newFixture(nil)
	o := f.paidOrder(t)
	failed := o.Items[0].ID

	err := f.svc.HandleCancellationRequested(context.Background(), events.OrderCancellationRequested{
		OrderID:     o.ID,
		Reason:      "inventory reservation failed",
		FailedItems: []events.FailedItem{{OrderItemID: failed, FailureType: events.FailureInventoryReservation}},
	})
	require.NoError(t, err)

	got, err := f.repo.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	require.NotNil(t, got.CancellationReason)
	assert.Equal(t, "inventory reservation failed", *got.CancellationReason)
	item, _ := got.Item(failed)
	assert.Equal(t, domain.ItemCompensated, item.Status)
	assert.Equal(t, 1, f.payments.refunds)

	sent := f.repo.sent(events.RKOrderCancelled)
	require.Len(t, sent, 1)
	ev, err := eventbus.Decode[events.OrderCancelled](sent[0])
	require.NoError(t, err)
	assert.True(t, ev.RefundProcessed)
	assert.Equal(t, "inventory reservation failed", ev.Reason)
}

func TestHandleCancellationRequested_AlreadyCancelled(t *testing.T) {
	f := newFixture(nil)
	o := f.paidOrder(t)
	req := events.OrderCancellationRequested{OrderID: o.ID, Reason: "r"}

	require.NoError(t, f.svc.HandleCancellationRequested(context.Background(), req))
	require.NoError(t, f.svc.HandleCancellationRequested(context.Background(), req))

	assert.Equal(t, 1, f.payments.refunds)
	assert.Len(t, f.repo.sent(events.RKOrderCancelled), 1)
}

func TestHandleCancellationRequested_RefundFailureStillCancels(t *testing.T) {
	f := newFixture(nil)
	o := f.paidOrder(t)
	f.payments.refundErrs = -1

	require.NoError(t, f.svc.HandleCancellationRequested(context.Background(), events.OrderCancellationRequested{OrderID: o.ID, Reason: "r"}))

	got, _ := f.repo.Get(context.Background(), o.ID)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	ev, err := eventbus.Decode[events.OrderCancelled](f.repo.sent(events.RKOrderCancelled)[0])
	require.NoError(t, err)
	assert.False(t, ev.RefundProcessed)
}

func TestHandleCancellationRequested_RefundRetried(t *testing.T) {
	f := newFixture(nil)
	o := f.paidOrder(t)
	f.payments.refundErrs = 2

	require.NoError(t, f.svc.HandleCancellationRequested(context.Background(), events.OrderCancellationRequested{OrderID: o.ID, Reason: "r"}))

	ev, err := eventbus.Decode[events.OrderCancelled](f.repo.sent(events.RKOrderCancelled)[0])
	require.NoError(t, err)
	assert.True(t, ev.RefundProcessed)
}

func TestHandleCancellationRequested_Discards(t *testing.T) {
	f := newFixture(nil)
	err := f.svc.HandleCancellationRequested(context.Background(), events.OrderCancellationRequested{OrderID: uuid.New()})
	assert.ErrorIs(t, err, eventbus.ErrDiscard)

	o := f.paidOrder(t)
	_, err = f.svc.ShipOrder(context.Background(), o.ID)
	require.NoError(t, err)
	err = f.svc.HandleCancellationRequested(context.Background(), events.OrderCancellationRequested{OrderID: o.ID})
	assert.ErrorIs(t, err, eventbus.ErrDiscard)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestLifecycle_ShipDeliverRefund(t *testing.T) {
	f := newFixture(nil)
	o := f.paidOrder(t)
	ctx := context.Background()

	_, err := f.svc.ShipOrder(ctx, o.ID)
	require.NoError(t, err)
	_, err = f.svc.RefundOrder(ctx, o.ID, "changed mind")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Zero(t, f.payments.refunds)

	_, err = f.svc.DeliverOrder(ctx, o.ID)
	require.NoError(t, err)
	got, err := f.svc.RefundOrder(ctx, o.ID, "changed mind")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, got.Status)
	assert.Equal(t, 1, f.payments.refunds)
	assert.Equal(t, int64(3), got.Version)
}

func TestGetOrder_FallsBackToCheckout(t *testing.T) {
	f := newFixture(nil)
	o, err := f.svc.StartCheckout(context.Background(), "cust-1", cart)
	require.NoError(t, err)

	got, err := f.svc.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)

	_, err = f.svc.GetOrder(context.Background(), uuid.New())
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}
