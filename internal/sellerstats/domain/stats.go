package domain

import (
	"github.com/shopspring/decimal"
)

// SellerStats are running totals over the paid, not cancelled, order items of a seller.
type SellerStats struct {
	SellerID string          `json:"seller_id"`
	Items    int64           `json:"items"`
	Units    int64           `json:"units"`
	Revenue  decimal.Decimal `json:"revenue"`
}
