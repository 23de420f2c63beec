package handler

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/stockkeeper/internal/core/domain"
	"github.com/rl1809/stockkeeper/internal/core/service"
)

const (
	fulfillOrderMethod = "/stockkeeper.v1.Fulfillment/FulfillOrder"
	getOrderMethod     = "/stockkeeper.v1.Fulfillment/GetOrder"
)

type FulfillOrderRPCRequest struct {
	RequestID string `json:"requestId,omitempty"`
	OrderID   int64  `json:"orderId"`
	Location  string `json:"location,omitempty"`
}

type GetOrderRPCRequest struct {
	OrderID int64 `json:"orderId"`
}

type OrderResponse struct {
	Success bool          `json:"success"`
	Code    string        `json:"code,omitempty"`
	Message string        `json:"message"`
	Order   *domain.Order `json:"order,omitempty"`
}

type FulfillmentServer interface {
	FulfillOrder(ctx context.Context, req *FulfillOrderRPCRequest) (*OrderResponse, error)
	GetOrder(ctx context.Context, req *GetOrderRPCRequest) (*OrderResponse, error)
}

type GRPCHandler struct {
	orders      *service.OrderService
	fulfillment *service.FulfillmentService
	logger      *zap.Logger
}

var _ FulfillmentServer = (*GRPCHandler)(nil)

func NewGRPCHandler(orders *service.OrderService, fulfillment *service.FulfillmentService, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{orders: orders, fulfillment: fulfillment, logger: logger}
}

func (h *GRPCHandler) FulfillOrder(ctx context.Context, req *FulfillOrderRPCRequest) (*OrderResponse, error) {
	if req.OrderID <= 0 {
		return &OrderResponse{Success: false, Code: CodeBadRequest, Message: "orderId is required"}, nil
	}

	order, err := h.fulfillment.Fulfill(ctx, req.RequestID, req.OrderID, req.Location)
	if err != nil {
		return h.failure(err)
	}

	return &OrderResponse{
		Success: true,
		Message: "order fulfilled",
		Order:   order,
	}, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *GetOrderRPCRequest) (*OrderResponse, error) {
	order, err := h.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return h.failure(err)
	}
	return &OrderResponse{Success: true, Message: "ok", Order: order}, nil
}

// failure reports domain errors in the response body. Anything unclassified
// becomes a gRPC Internal status.
func (h *GRPCHandler) failure(err error) (*OrderResponse, error) {
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, status.Error(codes.DeadlineExceeded, err.Error())
	}
	_, code, _ := errorStatus(err)
	if code == CodeInternal {
		h.logger.Error("rpc failed", zap.Error(err))
		return nil, status.Error(codes.Internal, "internal error")
	}
	return &OrderResponse{Success: false, Code: code, Message: err.Error()}, nil
}

var FulfillmentServiceDesc = grpc.ServiceDesc{
	ServiceName: "stockkeeper.v1.Fulfillment",
	HandlerType: (*FulfillmentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "FulfillOrder", Handler: fulfillOrderHandler},
		{MethodName: "GetOrder", Handler: getOrderHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stockkeeper/v1/fulfillment",
}

func RegisterFulfillmentServer(s grpc.ServiceRegistrar, srv FulfillmentServer) {
	s.RegisterService(&FulfillmentServiceDesc, srv)
}

func fulfillOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(FulfillOrderRPCRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FulfillmentServer).FulfillOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fulfillOrderMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FulfillmentServer).FulfillOrder(ctx, req.(*FulfillOrderRPCRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetOrderRPCRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FulfillmentServer).GetOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getOrderMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FulfillmentServer).GetOrder(ctx, req.(*GetOrderRPCRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// FulfillmentClient calls the Fulfillment service using the JSON codec.
type FulfillmentClient struct {
	cc grpc.ClientConnInterface
}

func NewFulfillmentClient(cc grpc.ClientConnInterface) *FulfillmentClient {
	return &FulfillmentClient{cc: cc}
}

func (c *FulfillmentClient) FulfillOrder(ctx context.Context, in *FulfillOrderRPCRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, fulfillOrderMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *FulfillmentClient) GetOrder(ctx context.Context, in *GetOrderRPCRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, getOrderMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
