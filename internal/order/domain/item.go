package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MinQuantity = 1
	MaxQuantity = 1000
)

var MaxUnitPrice = decimal.NewFromInt(10_000)

type ItemStatus string

const (
	ItemPending     ItemStatus = "pending"
	ItemShipped     ItemStatus = "shipped"
	ItemFailed      ItemStatus = "failed"
	ItemCompensated ItemStatus = "compensated"
)

// OrderItem quantity and price never change once built; a correction is a new item.
type OrderItem struct {
	ID        uuid.UUID       `json:"id"`
	OrderID   uuid.UUID       `json:"order_id"`
	BookISBN  string          `json:"book_isbn"`
	SellerID  string          `json:"seller_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Status    ItemStatus      `json:"status"`
}

// NewOrderItem validates the line and returns it in the pending state.
func NewOrderItem(isbn, sellerID string, quantity int, unitPrice decimal.Decimal) (OrderItem, error) {
	isbn = strings.TrimSpace(isbn)
	sellerID = strings.TrimSpace(sellerID)
	switch {
	case isbn == "":
		return OrderItem{}, &ValidationError{Kind: KindMissingField, Field: "book_isbn", Message: "is required"}
	case sellerID == "":
		return OrderItem{}, &ValidationError{Kind: KindMissingField, Field: "seller_id", Message: "is required"}
	case quantity < MinQuantity || quantity > MaxQuantity:
		return OrderItem{}, &ValidationError{
			Kind:    KindQuantityOutOfRange,
			Field:   "quantity",
			Message: fmt.Sprintf("%d not in [%d, %d]", quantity, MinQuantity, MaxQuantity),
		}
	case !unitPrice.IsPositive() || unitPrice.GreaterThan(MaxUnitPrice):
		return OrderItem{}, &ValidationError{
			Kind:    KindPriceOutOfRange,
			Field:   "unit_price",
			Message: fmt.Sprintf("%s not in (0, %s]", unitPrice, MaxUnitPrice),
		}
	}
	return OrderItem{
		ID:        uuid.New(),
		BookISBN:  isbn,
		SellerID:  sellerID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		Status:    ItemPending,
	}, nil
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

var itemTransitions = map[ItemStatus][]ItemStatus{
	ItemPending: {ItemShipped, ItemFailed},
	ItemFailed:  {ItemCompensated},
}

func (i OrderItem) canMoveTo(to ItemStatus) bool {
	for _, s := range itemTransitions[i.Status] {
		if s == to {
			return true
		}
	}
	return false
}
