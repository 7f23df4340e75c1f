package grpc

import (
	"context"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmehra2102/order-fulfillment/internal/inventory/domain"
	"github.com/dmehra2102/order-fulfillment/internal/inventory/infrastructure/grpc/stockrpc"
)

type StockChecker interface {
	CheckStock(ctx context.Context, lines []domain.StockLine) (bool, []domain.StockLine, error)
}

type Server struct {
	log     *slog.Logger
	checker StockChecker
}

func NewServer(log *slog.Logger, checker StockChecker) *Server {
	return &Server{log: log, checker: checker}
}

func (s *Server) CheckStock(ctx context.Context, req *stockrpc.CheckStockRequest) (*stockrpc.CheckStockResponse, error) {
	lines := make([]domain.StockLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, domain.StockLine{BookISBN: it.BookISBN, SellerID: it.SellerID, Quantity: it.Quantity})
	}
	ok, short, err := s.checker.CheckStock(ctx, lines)
	if err != nil {
		s.log.ErrorContext(ctx, "stock check failed", "err", err)
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	resp := &stockrpc.CheckStockResponse{Available: ok}
	for _, l := range short {
		resp.Shortages = append(resp.Shortages, stockrpc.Item{BookISBN: l.BookISBN, SellerID: l.SellerID, Quantity: l.Quantity})
	}
	return resp, nil
}

// Run serves srv on addr in the background.
func Run(addr string, srv *Server) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	gs := grpc.NewServer()
	stockrpc.RegisterStockQueryServer(gs, srv)
	go func() {
		_ = gs.Serve(lis)
	}()
	return gs, nil
}
