package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/order-fulfillment/internal/order/domain"
)

// CheckoutStore keeps pending orders as JSON documents that expire on their own.
type CheckoutStore struct {
	rdb redis.Cmdable
}

func NewCheckoutStore(rdb redis.Cmdable) *CheckoutStore {
	return &CheckoutStore{rdb: rdb}
}

func checkoutKey(id uuid.UUID) string {
	return "checkout:" + id.String()
}

func (s *CheckoutStore) Put(ctx context.Context, o *domain.Order, ttl time.Duration) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, checkoutKey(o.ID), raw, ttl).Err()
}

func (s *CheckoutStore) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	raw, err := s.rdb.Get(ctx, checkoutKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	var o domain.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("decode checkout %s: %w", id, err)
	}
	return &o, nil
}

func (s *CheckoutStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.rdb.Del(ctx, checkoutKey(id)).Err()
}
