// Package redisstore keeps saga state in Redis so several orchestrator
// instances can share it. Writes use WATCH/MULTI and retry on conflict.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/order-fulfillment/internal/orchestrator/domain"
)

const maxConflicts = 10

var ErrConflict = errors.New("saga state kept changing, giving up")

type Store struct {
	rdb         redis.UniversalClient
	resolvedTTL time.Duration
}

func NewStore(rdb redis.UniversalClient, resolvedTTL time.Duration) *Store {
	return &Store{rdb: rdb, resolvedTTL: resolvedTTL}
}

func key(orderID uuid.UUID) string {
	return "saga:" + orderID.String()
}

func (s *Store) Get(ctx context.Context, orderID uuid.UUID) (*domain.State, error) {
	return read(ctx, s.rdb, orderID)
}

// Update may run fn more than once when another instance wins the race.
func (s *Store) Update(ctx context.Context, orderID uuid.UUID, create bool, fn func(st *domain.State) error) error {
	k := key(orderID)
	txf := func(tx *redis.Tx) error {
		st, err := read(ctx, tx, orderID)
		switch {
		case errors.Is(err, domain.ErrUnknownSaga) && create:
			st = domain.NewState(orderID)
		case err != nil:
			return err
		}
		if err := fn(st); err != nil {
			return err
		}
		raw, err := json.Marshal(st)
		if err != nil {
			return err
		}
		var ttl time.Duration
		if !st.InFlight() {
			ttl = s.resolvedTTL
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, raw, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxConflicts; i++ {
		err := s.rdb.Watch(ctx, txf, k)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("update saga %s: %w", orderID, ErrConflict)
}

// getter is satisfied by both the client and a WATCH transaction.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func read(ctx context.Context, c getter, orderID uuid.UUID) (*domain.State, error) {
	raw, err := c.Get(ctx, key(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrUnknownSaga
	}
	if err != nil {
		return nil, err
	}
	var st domain.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode saga %s: %w", orderID, err)
	}
	return &st, nil
}
