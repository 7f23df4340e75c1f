package redis

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/order-fulfillment/internal/sellerstats/domain"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
)

// KEYS[1] applied marker, KEYS[2] seller hash; ARGV units, revenue in cents.
var applyScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[3], 'NX') then
	redis.call('HINCRBY', KEYS[2], 'items', 1)
	redis.call('HINCRBY', KEYS[2], 'units', ARGV[1])
	redis.call('HINCRBY', KEYS[2], 'revenue_cents', ARGV[2])
	return 1
end
return 0
`)

var revertScript = redis.NewScript(`
if redis.call('DEL', KEYS[1]) == 1 then
	redis.call('HINCRBY', KEYS[2], 'items', -1)
	redis.call('HINCRBY', KEYS[2], 'units', -tonumber(ARGV[1]))
	redis.call('HINCRBY', KEYS[2], 'revenue_cents', -tonumber(ARGV[2]))
	return 1
end
return 0
`)

type Store struct {
	rdb redis.Cmdable
}

func NewStore(rdb redis.Cmdable) *Store {
	return &Store{rdb: rdb}
}

func appliedKey(itemID uuid.UUID) string { return "sellerstats:applied:" + itemID.String() }
func sellerKey(sellerID string) string   { return "sellerstats:seller:" + sellerID }

func cents(item events.OrderItem) int64 {
	return item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Shift(2).IntPart()
}

func (s *Store) Apply(ctx context.Context, orderID uuid.UUID, item events.OrderItem) (bool, error) {
	n, err := applyScript.Run(ctx, s.rdb,
		[]string{appliedKey(item.OrderItemID), sellerKey(item.SellerID)},
		item.Quantity, cents(item), orderID.String()).Int()
	return n == 1, err
}

func (s *Store) Revert(ctx context.Context, _ uuid.UUID, item events.OrderItem) (bool, error) {
	n, err := revertScript.Run(ctx, s.rdb,
		[]string{appliedKey(item.OrderItemID), sellerKey(item.SellerID)},
		item.Quantity, cents(item)).Int()
	return n == 1, err
}

func (s *Store) Stats(ctx context.Context, sellerID string) (domain.SellerStats, error) {
	h, err := s.rdb.HGetAll(ctx, sellerKey(sellerID)).Result()
	if err != nil {
		return domain.SellerStats{}, err
	}
	st := domain.SellerStats{SellerID: sellerID, Revenue: decimal.Zero}
	st.Items, _ = strconv.ParseInt(h["items"], 10, 64)
	st.Units, _ = strconv.ParseInt(h["units"], 10, 64)
	if c, err := strconv.ParseInt(h["revenue_cents"], 10, 64); err == nil {
		st.Revenue = decimal.New(c, -2)
	}
	return st, nil
}
