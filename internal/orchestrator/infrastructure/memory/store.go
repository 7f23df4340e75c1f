package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dmehra2102/order-fulfillment/internal/orchestrator/domain"
)

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Store keeps in-flight sagas in a map. Everything else, resolved sagas and
// those that only saw notification failures, lives in an expiring LRU so late
// duplicates still find their latched state without growing the map.
type Store struct {
	mu       sync.Mutex
	locks    map[uuid.UUID]*keyLock
	active   map[uuid.UUID]*domain.State
	resolved *expirable.LRU[uuid.UUID, *domain.State]
}

func NewStore(resolvedCapacity int, resolvedTTL time.Duration) *Store {
	return &Store{
		locks:    map[uuid.UUID]*keyLock{},
		active:   map[uuid.UUID]*domain.State{},
		resolved: expirable.NewLRU[uuid.UUID, *domain.State](resolvedCapacity, nil, resolvedTTL),
	}
}

func (s *Store) Get(_ context.Context, orderID uuid.UUID) (*domain.State, error) {
	unlock := s.lock(orderID)
	defer unlock()

	st, ok := s.load(orderID)
	if !ok {
		return nil, domain.ErrUnknownSaga
	}
	return st.Clone(), nil
}

func (s *Store) Update(_ context.Context, orderID uuid.UUID, create bool, fn func(st *domain.State) error) error {
	unlock := s.lock(orderID)
	defer unlock()

	cur, ok := s.load(orderID)
	switch {
	case ok:
		cur = cur.Clone()
	case create:
		cur = domain.NewState(orderID)
	default:
		return domain.ErrUnknownSaga
	}
	if err := fn(cur); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !cur.InFlight() {
		delete(s.active, orderID)
		s.resolved.Add(orderID, cur)
		return nil
	}
	s.resolved.Remove(orderID)
	s.active[orderID] = cur
	return nil
}

// Active returns the number of sagas still in flight.
func (s *Store) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Store) load(orderID uuid.UUID) (*domain.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.active[orderID]; ok {
		return st, true
	}
	return s.resolved.Get(orderID)
}

// lock serializes work on one order without blocking other orders.
func (s *Store) lock(orderID uuid.UUID) func() {
	s.mu.Lock()
	l, ok := s.locks[orderID]
	if !ok {
		l = &keyLock{}
		s.locks[orderID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, orderID)
		}
		s.mu.Unlock()
	}
}
