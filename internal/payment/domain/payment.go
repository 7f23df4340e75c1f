package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusCaptured Status = "captured"
	StatusRefunded Status = "refunded"
)

var (
	ErrDeclined = errors.New("payment declined")
	ErrNotFound = errors.New("payment not found")
)

type Payment struct {
	OrderID      uuid.UUID
	Amount       decimal.Decimal
	Method       string
	Reference    string
	Status       Status
	CapturedAt   time.Time
	RefundedAt   *time.Time
	RefundReason string
}
