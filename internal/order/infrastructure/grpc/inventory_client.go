package grpc

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/dmehra2102/order-fulfillment/internal/inventory/infrastructure/grpc/stockrpc"
	"github.com/dmehra2102/order-fulfillment/internal/order/domain"
)

type InventoryClient struct {
	log  *slog.Logger
	conn *grpc.ClientConn
	cc   *stockrpc.Client
}

func NewInventoryClient(log *slog.Logger, addr string) (*InventoryClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &InventoryClient{
		log:  log,
		conn: conn,
		cc:   stockrpc.NewClient(conn),
	}, nil
}

func (c *InventoryClient) CheckStock(ctx context.Context, items []domain.OrderItem) (bool, error) {
	req := &stockrpc.CheckStockRequest{Items: make([]stockrpc.Item, 0, len(items))}
	for _, item := range items {
		req.Items = append(req.Items, stockrpc.Item{BookISBN: item.BookISBN, SellerID: item.SellerID, Quantity: item.Quantity})
	}
	resp, err := c.cc.CheckStock(ctx, req)
	if err != nil {
		return false, err
	}
	for _, s := range resp.Shortages {
		c.log.InfoContext(ctx, "book short on stock", "book_isbn", s.BookISBN, "seller_id", s.SellerID, "quantity", s.Quantity)
	}
	return resp.Available, nil
}

func (c *InventoryClient) Close() error {
	return c.conn.Close()
}
