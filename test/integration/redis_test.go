//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-fulfillment/internal/orchestrator/domain"
	"github.com/dmehra2102/order-fulfillment/internal/orchestrator/infrastructure/redisstore"
	statsredis "github.com/dmehra2102/order-fulfillment/internal/sellerstats/infrastructure/redis"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
)

func TestRedisSagaStoreCommitsOnlySuccessfulUpdates(t *testing.T) {
	ctx := context.Background()
	store := redisstore.NewStore(rdb, time.Hour)
	orderID := uuid.New()

	_, err := store.Get(ctx, orderID)
	require.ErrorIs(t, err, domain.ErrUnknownSaga)

	require.NoError(t, store.Update(ctx, orderID, true, func(st *domain.State) error {
		st.RecordFailure(domain.FailedItem{OrderItemID: uuid.New(), FailureType: events.FailureInventoryReservation}, true)
		return nil
	}))
	err = store.Update(ctx, orderID, false, func(st *domain.State) error {
		st.CompensationTriggered = true
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	st, err := store.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Len(t, st.FailedItems, 1)
	assert.False(t, st.CompensationTriggered)

	err = store.Update(ctx, uuid.New(), false, func(*domain.State) error { return nil })
	assert.ErrorIs(t, err, domain.ErrUnknownSaga)
}

func TestRedisSagaStoreExpiresNotificationOnlySagas(t *testing.T) {
	ctx := context.Background()
	store := redisstore.NewStore(rdb, time.Hour)
	orderID := uuid.New()

	require.NoError(t, store.Update(ctx, orderID, true, func(st *domain.State) error {
		st.RecordFailure(domain.FailedItem{OrderItemID: events.OrderLevel, FailureType: events.FailureNotification}, true)
		return nil
	}))
	ttl, err := rdb.TTL(ctx, "saga:"+orderID.String()).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, store.Update(ctx, orderID, false, func(st *domain.State) error {
		st.RecordFailure(domain.FailedItem{OrderItemID: uuid.New(), FailureType: events.FailureInventoryReservation}, true)
		return nil
	}))
	ttl, err = rdb.TTL(ctx, "saga:"+orderID.String()).Result()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl)
}

func TestSellerStatsApplyIsIdempotentPerItem(t *testing.T) {
	ctx := context.Background()
	store := statsredis.NewStore(rdb)
	seller := "seller-" + uuid.NewString()[:8]
	item := events.OrderItem{OrderItemID: uuid.New(), SellerID: seller, Quantity: 3, UnitPrice: decimal.RequireFromString("9.99")}

	applied, err := store.Apply(ctx, uuid.New(), item)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = store.Apply(ctx, uuid.New(), item)
	require.NoError(t, err)
	assert.False(t, applied)

	st, err := store.Stats(ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Items)
	assert.Equal(t, int64(3), st.Units)
	assert.True(t, decimal.RequireFromString("29.97").Equal(st.Revenue))

	reverted, err := store.Revert(ctx, uuid.New(), item)
	require.NoError(t, err)
	assert.True(t, reverted)
	reverted, err = store.Revert(ctx, uuid.New(), item)
	require.NoError(t, err)
	assert.False(t, reverted)

	st, err = store.Stats(ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Units)
	assert.True(t, st.Revenue.IsZero())
}
