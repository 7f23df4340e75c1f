package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func mustItem(t *testing.T, isbn string, qty int, price string) OrderItem {
	t.Helper()
	it, err := NewOrderItem(isbn, "seller-1", qty, decimal.RequireFromString(price))
	require.NoError(t, err)
	return it
}

func newTestOrder(t *testing.T) *Order {
	t.Helper()
	o, err := NewOrder("cust-1", []OrderItem{
		mustItem(t, "978-0", 2, "10.50"),
		mustItem(t, "978-1", 1, "4.00"),
	}, now)
	require.NoError(t, err)
	return o
}

func TestNewOrderComputesTotalAndKeepsItemOrder(t *testing.T) {
	o := newTestOrder(t)
	assert.Equal(t, StatusPending, o.Status)
	assert.True(t, decimal.RequireFromString("25.00").Equal(o.Total))
	require.Len(t, o.Items, 2)
	assert.Equal(t, "978-0", o.Items[0].BookISBN)
	assert.Equal(t, "978-1", o.Items[1].BookISBN)
	for _, it := range o.Items {
		assert.Equal(t, o.ID, it.OrderID)
	}
}

func TestNewOrderValidation(t *testing.T) {
	_, err := NewOrder("cust-1", nil, now)
	assert.True(t, IsValidation(err, KindEmptyOrder))

	_, err = NewOrder("", []OrderItem{mustItem(t, "x", 1, "1")}, now)
	assert.True(t, IsValidation(err, KindMissingField))
}

func TestNewOrderItemBounds(t *testing.T) {
	cases := []struct {
		name  string
		isbn  string
		qty   int
		price string
		kind  ValidationKind
	}{
		{"zero quantity", "x", 0, "1", KindQuantityOutOfRange},
		{"too many", "x", 1001, "1", KindQuantityOutOfRange},
		{"zero price", "x", 1, "0", KindPriceOutOfRange},
		{"negative price", "x", 1, "-3", KindPriceOutOfRange},
		{"price above bound", "x", 1, "10000.01", KindPriceOutOfRange},
		{"missing isbn", " ", 1, "1", KindMissingField},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewOrderItem(tc.isbn, "seller", tc.qty, decimal.RequireFromString(tc.price))
			require.Error(t, err)
			assert.True(t, IsValidation(err, tc.kind), err.Error())
		})
	}

	it, err := NewOrderItem("x", "seller", 1000, MaxUnitPrice)
	require.NoError(t, err)
	assert.Equal(t, ItemPending, it.Status)
}

func apply(o *Order, to OrderStatus) error {
	switch to {
	case StatusPaid:
		return o.Pay(now)
	case StatusShipped:
		return o.Ship(now)
	case StatusDelivered:
		return o.Deliver(now)
	case StatusCancelled:
		return o.Cancel("reason", now)
	case StatusRefunded:
		return o.Refund("reason", now)
	}
	panic("unknown status " + to)
}

// pathTo drives a fresh order into status using allowed edges only.
var pathTo = map[OrderStatus][]OrderStatus{
	StatusPending:   {},
	StatusPaid:      {StatusPaid},
	StatusShipped:   {StatusPaid, StatusShipped},
	StatusDelivered: {StatusPaid, StatusShipped, StatusDelivered},
	StatusCancelled: {StatusCancelled},
	StatusRefunded:  {StatusPaid, StatusRefunded},
}

func TestTransitionTable(t *testing.T) {
	all := []OrderStatus{StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded}
	allowed := map[[2]OrderStatus]bool{
		{StatusPending, StatusPaid}:       true,
		{StatusPending, StatusCancelled}:  true,
		{StatusPaid, StatusShipped}:       true,
		{StatusPaid, StatusRefunded}:      true,
		{StatusPaid, StatusCancelled}:     true,
		{StatusShipped, StatusDelivered}:  true,
		{StatusDelivered, StatusRefunded}: true,
	}

	for _, from := range all {
		for _, to := range all {
			if to == StatusPending {
				continue
			}
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				o := newTestOrder(t)
				for _, step := range pathTo[from] {
					require.NoError(t, apply(o, step))
				}
				require.Equal(t, from, o.Status)

				err := apply(o, to)
				if allowed[[2]OrderStatus{from, to}] {
					require.NoError(t, err)
					assert.Equal(t, to, o.Status)
					return
				}
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidTransition)
				var te *TransitionError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, from, te.From)
				assert.Equal(t, to, te.To)
				assert.Equal(t, from, o.Status, "status must be unchanged")
			})
		}
	}
}

func TestExactlyOneTerminalTimestamp(t *testing.T) {
	for _, terminal := range []OrderStatus{StatusCancelled, StatusRefunded} {
		o := newTestOrder(t)
		for _, step := range pathTo[terminal] {
			require.NoError(t, apply(o, step))
		}
		require.True(t, o.Status.Terminal())
		set := 0
		for _, ts := range []*time.Time{o.CancelledDate, o.RefundedDate} {
			if ts != nil {
				set++
			}
		}
		assert.Equal(t, 1, set, string(terminal))
		assert.NotNil(t, o.TerminalDate())
	}
}

func TestTerminalStatesRejectEverything(t *testing.T) {
	o := newTestOrder(t)
	require.NoError(t, o.Cancel("customer request", now))
	assert.ErrorIs(t, o.Cancel("again", now), ErrInvalidTransition)
	assert.ErrorIs(t, o.Refund("r", now), ErrInvalidTransition)
	assert.ErrorIs(t, o.Pay(now), ErrInvalidTransition)
	assert.Equal(t, "customer request", *o.CancellationReason)
}

func TestShipMarksPendingItemsShipped(t *testing.T) {
	o := newTestOrder(t)
	require.NoError(t, o.Pay(now))
	require.NoError(t, o.Ship(now))
	for _, it := range o.Items {
		assert.Equal(t, ItemShipped, it.Status)
	}
}

func TestItemTransitions(t *testing.T) {
	o := newTestOrder(t)
	id := o.Items[0].ID

	assert.True(t, IsValidation(o.MarkItemCompensated(id), KindItemState))
	require.NoError(t, o.MarkItemFailed(id))
	require.NoError(t, o.MarkItemFailed(id))
	require.NoError(t, o.MarkItemCompensated(id))
	assert.Equal(t, ItemCompensated, o.Items[0].Status)

	assert.True(t, IsValidation(o.MarkItemFailed(uuid.New()), KindUnknownItem))
}

func TestPaidEvent(t *testing.T) {
	o := newTestOrder(t)
	require.NoError(t, o.Pay(now))
	ev := o.PaidEvent()
	assert.Equal(t, o.ID, ev.OrderID)
	assert.Equal(t, now, ev.PaidDate)
	assert.True(t, o.Total.Equal(ev.TotalAmount))
	require.Len(t, ev.OrderItems, 2)
	assert.Equal(t, o.Items[0].ID, ev.OrderItems[0].OrderItemID)
}

func TestCancelledEvent(t *testing.T) {
	o := newTestOrder(t)
	require.NoError(t, o.Pay(now))
	require.NoError(t, o.Cancel("inventory unavailable", now))
	ev := o.CancelledEvent(true)
	assert.True(t, ev.RefundProcessed)
	assert.Equal(t, "inventory unavailable", ev.Reason)
	assert.Equal(t, now, ev.CancelledDate)
}
