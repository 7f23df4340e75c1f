package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/order-fulfillment/pkg/events"
)

var ErrUnknownSaga = errors.New("no compensation state for order")

type FailedItem struct {
	OrderItemID  uuid.UUID          `json:"order_item_id"`
	FailureType  events.FailureType `json:"failure_type"`
	ErrorMessage string             `json:"error_message"`
	FailedAt     time.Time          `json:"failed_at"`
}

type CompletedCompensation struct {
	OrderItemID      uuid.UUID               `json:"order_item_id"`
	CompensationType events.CompensationType `json:"compensation_type"`
	Success          bool                    `json:"success"`
	ErrorMessage     string                  `json:"error_message,omitempty"`
	CompletedAt      time.Time               `json:"completed_at"`
}

// State aggregates the partial failures of one order and the compensations
// answering them. CompensationTriggered and OrderCancellationRequested never
// go back to false, and ExpectedCompensations never decreases.
type State struct {
	OrderID                    uuid.UUID               `json:"order_id"`
	FailedItems                []FailedItem            `json:"failed_items"`
	CompensationTriggered      bool                    `json:"compensation_triggered"`
	ExpectedCompensations      int                     `json:"expected_compensations"`
	CompletedCompensations     []CompletedCompensation `json:"completed_compensations"`
	OrderCancellationRequested bool                    `json:"order_cancellation_requested"`
	UpdatedAt                  time.Time               `json:"updated_at"`
}

func NewState(orderID uuid.UUID) *State {
	return &State{OrderID: orderID}
}

// RecordFailure appends f. With dedupe set, a failure already recorded for the
// same item and type is ignored and false is returned.
func (s *State) RecordFailure(f FailedItem, dedupe bool) bool {
	if dedupe {
		for _, have := range s.FailedItems {
			if have.OrderItemID == f.OrderItemID && have.FailureType == f.FailureType {
				return false
			}
		}
	}
	s.FailedItems = append(s.FailedItems, f)
	return true
}

// CriticalFailures returns every failure except notification ones, in arrival order.
func (s *State) CriticalFailures() []FailedItem {
	var out []FailedItem
	for _, f := range s.FailedItems {
		if f.FailureType.Critical() {
			out = append(out, f)
		}
	}
	return out
}

func (s *State) HasCriticalFailure() bool {
	for _, f := range s.FailedItems {
		if f.FailureType.Critical() {
			return true
		}
	}
	return false
}

// RaiseExpected sets ExpectedCompensations to n unless that would lower it.
// It reports whether the value changed.
func (s *State) RaiseExpected(n int) bool {
	if n <= s.ExpectedCompensations {
		return false
	}
	s.ExpectedCompensations = n
	return true
}

// RecordCompletion appends c. With dedupe set, a completion already recorded
// for the same item and compensation type is ignored and false is returned.
func (s *State) RecordCompletion(c CompletedCompensation, dedupe bool) bool {
	if dedupe {
		for _, have := range s.CompletedCompensations {
			if have.OrderItemID == c.OrderItemID && have.CompensationType == c.CompensationType {
				return false
			}
		}
	}
	s.CompletedCompensations = append(s.CompletedCompensations, c)
	return true
}

// AllCompensated reports whether every expected compensation has reported back.
func (s *State) AllCompensated() bool {
	return s.CompensationTriggered && len(s.CompletedCompensations) >= s.ExpectedCompensations
}

func (s *State) FailedCompensations() []CompletedCompensation {
	var out []CompletedCompensation
	for _, c := range s.CompletedCompensations {
		if !c.Success {
			out = append(out, c)
		}
	}
	return out
}

// Resolved reports whether the saga has reached its final output.
func (s *State) Resolved() bool {
	return s.OrderCancellationRequested
}

// InFlight reports whether the saga still has work ahead: a critical failure
// was seen and cancellation has not been requested. Notification-only sagas
// are never in flight.
func (s *State) InFlight() bool {
	return s.HasCriticalFailure() && !s.Resolved()
}

func (s *State) Clone() *State {
	c := *s
	c.FailedItems = append([]FailedItem(nil), s.FailedItems...)
	c.CompletedCompensations = append([]CompletedCompensation(nil), s.CompletedCompensations...)
	return &c
}

// JournalEntry is one appended snapshot of a saga, written after every change.
type JournalEntry struct {
	OrderID    uuid.UUID `json:"order_id"`
	Step       string    `json:"step"`
	State      State     `json:"state"`
	TraceID    string    `json:"trace_id,omitempty"`
	SpanID     string    `json:"span_id,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

const (
	StepFailureRecorded       = "failure_recorded"
	StepCompensationRequested = "compensation_requested"
	StepExpectedRaised        = "expected_raised"
	StepCompletionRecorded    = "completion_recorded"
	StepCancellationRequested = "cancellation_requested"
)
