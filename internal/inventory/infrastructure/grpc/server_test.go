package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/dmehra2102/order-fulfillment/internal/inventory/domain"
	"github.com/dmehra2102/order-fulfillment/internal/inventory/infrastructure/grpc/stockrpc"
)

type shelf struct {
	stock map[string]int
	err   error
}

func (s shelf) CheckStock(_ context.Context, lines []domain.StockLine) (bool, []domain.StockLine, error) {
	if s.err != nil {
		return false, nil, s.err
	}
	var short []domain.StockLine
	for _, l := range lines {
		if s.stock[l.BookISBN] < l.Quantity {
			short = append(short, l)
		}
	}
	return len(short) == 0, short, nil
}

func dial(t *testing.T, checker StockChecker) *stockrpc.Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	stockrpc.RegisterStockQueryServer(gs, NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)), checker))
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return stockrpc.NewClient(conn)
}

func TestCheckStockOverJSONCodec(t *testing.T) {
	client := dial(t, shelf{stock: map[string]int{"isbn-1": 2}})

	resp, err := client.CheckStock(context.Background(), &stockrpc.CheckStockRequest{Items: []stockrpc.Item{
		{BookISBN: "isbn-1", SellerID: "s-1", Quantity: 2},
	}})
	require.NoError(t, err)
	assert.True(t, resp.Available)

	resp, err = client.CheckStock(context.Background(), &stockrpc.CheckStockRequest{Items: []stockrpc.Item{
		{BookISBN: "isbn-1", SellerID: "s-1", Quantity: 3},
	}})
	require.NoError(t, err)
	assert.False(t, resp.Available)
	require.Len(t, resp.Shortages, 1)
	assert.Equal(t, "isbn-1", resp.Shortages[0].BookISBN)
}

func TestCheckStockUnavailable(t *testing.T) {
	client := dial(t, shelf{err: errors.New("db down")})

	_, err := client.CheckStock(context.Background(), &stockrpc.CheckStockRequest{})
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}
