package domain

import (
	"github.com/dmehra2102/order-fulfillment/pkg/events"
)

func (o *Order) eventItems() []events.OrderItem {
	items := make([]events.OrderItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, events.OrderItem{
			OrderItemID: it.ID,
			BookISBN:    it.BookISBN,
			SellerID:    it.SellerID,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	return items
}

// PaidEvent describes a paid order. It must only be called once Pay succeeded.
func (o *Order) PaidEvent() events.OrderPaid {
	ev := events.OrderPaid{
		OrderID:     o.ID,
		CustomerID:  o.CustomerID,
		TotalAmount: o.Total,
		OrderItems:  o.eventItems(),
	}
	if o.PaidDate != nil {
		ev.PaidDate = *o.PaidDate
	}
	return ev
}

func (o *Order) CancelledEvent(refundProcessed bool) events.OrderCancelled {
	ev := events.OrderCancelled{
		OrderID:         o.ID,
		CustomerID:      o.CustomerID,
		RefundProcessed: refundProcessed,
		OrderItems:      o.eventItems(),
	}
	if o.CancelledDate != nil {
		ev.CancelledDate = *o.CancelledDate
	}
	if o.CancellationReason != nil {
		ev.Reason = *o.CancellationReason
	}
	return ev
}
