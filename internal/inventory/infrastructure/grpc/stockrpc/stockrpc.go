// Package stockrpc is the wire contract of the inventory StockQuery gRPC
// service. Messages travel as JSON through a registered "json" codec.
package stockrpc

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	CodecName   = "json"
	ServiceName = "inventory.StockQuery"

	checkStockMethod = "/" + ServiceName + "/CheckStock"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

type Item struct {
	BookISBN string `json:"book_isbn"`
	SellerID string `json:"seller_id"`
	Quantity int    `json:"quantity"`
}

type CheckStockRequest struct {
	Items []Item `json:"items"`
}

type CheckStockResponse struct {
	Available bool   `json:"available"`
	Shortages []Item `json:"shortages,omitempty"`
}

type StockQueryServer interface {
	CheckStock(ctx context.Context, req *CheckStockRequest) (*CheckStockResponse, error)
}

func RegisterStockQueryServer(s grpc.ServiceRegistrar, srv StockQueryServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StockQueryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckStock", Handler: checkStockHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stockrpc",
}

func checkStockHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CheckStockRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StockQueryServer).CheckStock(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: checkStockMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StockQueryServer).CheckStock(ctx, req.(*CheckStockRequest))
	}
	return interceptor(ctx, in, info, handler)
}

type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) CheckStock(ctx context.Context, in *CheckStockRequest, opts ...grpc.CallOption) (*CheckStockResponse, error) {
	out := new(CheckStockResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, checkStockMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
