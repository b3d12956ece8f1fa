package handler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/polyshop/backoffice/internal/core/domain"
	"github.com/polyshop/backoffice/internal/core/service"
	"github.com/polyshop/backoffice/internal/port"
)

const (
	grpcServiceName = "backoffice.v1.Backoffice"

	// JSONCodecName is the content subtype clients must request.
	JSONCodecName = "json"
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return JSONCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type SearchOrdersRequest struct {
	Keyword     string           `json:"keyword"`
	Sort        string           `json:"sort"`
	Page        int              `json:"page"`
	Size        int              `json:"size"`
	OrderID     *int64           `json:"orderId,omitempty"`
	Status      string           `json:"status,omitempty"`
	CreatedAt   string           `json:"createdAt,omitempty"`
	TotalAmount *decimal.Decimal `json:"totalAmount,omitempty"`
}

type OrderIDRequest struct {
	OrderID int64 `json:"orderId"`
}

type UpdateStatusRequest struct {
	OrderID int64  `json:"orderId"`
	Status  string `json:"status"`
}

type RevenueStatsRequest struct {
	Period string `json:"period"`
	Year   int    `json:"year"`
	Month  int    `json:"month"`
}

type TopProductsRequest struct {
	Limit int `json:"limit"`
}

type TopProductsReply struct {
	Products []domain.TopProduct `json:"products"`
}

type Empty struct{}

// BackofficeServer is the admin RPC surface.
type BackofficeServer interface {
	SearchOrders(ctx context.Context, req *SearchOrdersRequest) (*domain.Page[OrderResponse], error)
	GetOrder(ctx context.Context, req *OrderIDRequest) (*OrderResponse, error)
	UpdateOrderStatus(ctx context.Context, req *UpdateStatusRequest) (*OrderResponse, error)
	RevenueStats(ctx context.Context, req *RevenueStatsRequest) (*domain.RevenueStats, error)
	TopProducts(ctx context.Context, req *TopProductsRequest) (*TopProductsReply, error)
	DashboardStats(ctx context.Context, req *Empty) (*domain.DashboardStats, error)
}

func unaryMethod[Req any, Resp any](name string, call func(BackofficeServer, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			server := srv.(BackofficeServer)
			if interceptor == nil {
				return call(server, ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + grpcServiceName + "/" + name}
			return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
				return call(server, ctx, req.(*Req))
			})
		},
	}
}

var backofficeServiceDesc = grpc.ServiceDesc{
	ServiceName: grpcServiceName,
	HandlerType: (*BackofficeServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("SearchOrders", BackofficeServer.SearchOrders),
		unaryMethod("GetOrder", BackofficeServer.GetOrder),
		unaryMethod("UpdateOrderStatus", BackofficeServer.UpdateOrderStatus),
		unaryMethod("RevenueStats", BackofficeServer.RevenueStats),
		unaryMethod("TopProducts", BackofficeServer.TopProducts),
		unaryMethod("DashboardStats", BackofficeServer.DashboardStats),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "backoffice.v1",
}

type GRPCHandler struct {
	orders    *service.OrderService
	dashboard *service.DashboardService
	identity  port.IdentityProvider
	logger    *zap.Logger
	metrics   *Metrics
}

func NewGRPCHandler(orders *service.OrderService, dashboard *service.DashboardService, identity port.IdentityProvider, logger *zap.Logger, metrics *Metrics) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{
		orders:    orders,
		dashboard: dashboard,
		identity:  identity,
		logger:    logger,
		metrics:   metrics,
	}
}

// NewServer builds a gRPC server with the handler registered behind the
// logging and authentication interceptors.
func (h *GRPCHandler) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(h.observeInterceptor, h.authInterceptor))
	s := grpc.NewServer(opts...)
	s.RegisterService(&backofficeServiceDesc, h)
	return s
}

func (h *GRPCHandler) authInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get("authorization")
	if len(values) == 0 {
		return next(ctx, req)
	}

	token, ok := strings.CutPrefix(values[0], "Bearer ")
	if !ok {
		return nil, grpcError(domain.ErrUnauthenticated)
	}
	id, err := h.identity.Resolve(ctx, strings.TrimSpace(token))
	if err != nil {
		return nil, grpcError(domain.ErrUnauthenticated)
	}
	return next(context.WithValue(ctx, identityKey, id), req)
}

func (h *GRPCHandler) observeInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := next(ctx, req)
	elapsed := time.Since(start)

	code := status.Code(err)
	if h.metrics != nil {
		h.metrics.observe("grpc", info.FullMethod, code.String(), elapsed)
	}
	h.logger.Info("grpc request",
		zap.String("method", info.FullMethod),
		zap.String("code", code.String()),
		zap.Duration("duration", elapsed),
	)
	return resp, err
}

func (h *GRPCHandler) SearchOrders(ctx context.Context, req *SearchOrdersRequest) (*domain.Page[OrderResponse], error) {
	c := service.SearchCriteria{
		Keyword:     req.Keyword,
		Sort:        req.Sort,
		Page:        req.Page,
		Size:        req.Size,
		OrderID:     req.OrderID,
		TotalAmount: req.TotalAmount,
	}
	if req.Status != "" {
		s := domain.OrderStatus(req.Status)
		c.Status = &s
	}
	if req.CreatedAt != "" {
		day, err := time.Parse(dateLayout, req.CreatedAt)
		if err != nil {
			return nil, grpcError(domain.NewValidationError("createdAt", "must be formatted as yyyy-mm-dd"))
		}
		c.CreatedOn = &day
	}

	page, err := h.orders.SearchOrders(ctx, identityFrom(ctx), c)
	if err != nil {
		return nil, h.fail(err)
	}
	resp := toOrderPage(page)
	return &resp, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *OrderIDRequest) (*OrderResponse, error) {
	order, err := h.orders.GetOrder(ctx, identityFrom(ctx), req.OrderID)
	if err != nil {
		return nil, h.fail(err)
	}
	resp := toOrderResponse(order)
	return &resp, nil
}

func (h *GRPCHandler) UpdateOrderStatus(ctx context.Context, req *UpdateStatusRequest) (*OrderResponse, error) {
	order, err := h.orders.UpdateOrderStatus(ctx, identityFrom(ctx), req.OrderID, req.Status)
	if err != nil {
		return nil, h.fail(err)
	}
	resp := toOrderResponse(order)
	return &resp, nil
}

func (h *GRPCHandler) RevenueStats(ctx context.Context, req *RevenueStatsRequest) (*domain.RevenueStats, error) {
	stats, err := h.dashboard.RevenueStats(ctx, identityFrom(ctx), service.ParsePeriod(req.Period), req.Year, req.Month)
	if err != nil {
		return nil, h.fail(err)
	}
	return stats, nil
}

func (h *GRPCHandler) TopProducts(ctx context.Context, req *TopProductsRequest) (*TopProductsReply, error) {
	limit := req.Limit
	if limit == 0 {
		limit = service.DefaultTopProducts
	}
	products, err := h.dashboard.TopProducts(ctx, identityFrom(ctx), limit)
	if err != nil {
		return nil, h.fail(err)
	}
	return &TopProductsReply{Products: products}, nil
}

func (h *GRPCHandler) DashboardStats(ctx context.Context, _ *Empty) (*domain.DashboardStats, error) {
	stats, err := h.dashboard.Stats(ctx, identityFrom(ctx))
	if err != nil {
		return nil, h.fail(err)
	}
	return stats, nil
}

func (h *GRPCHandler) fail(err error) error {
	st := grpcError(err)
	if status.Code(st) == codes.Internal {
		h.logger.Error("rpc failed", zap.Error(err))
	}
	return st
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, "unauthenticated")
	case errors.Is(err, domain.ErrForbidden):
		return status.Error(codes.PermissionDenied, "forbidden")
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrDuplicateRequest):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrConcurrentUpdate):
		return status.Error(codes.Aborted, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// BackofficeClient calls the admin RPC surface over the JSON codec.
type BackofficeClient struct {
	cc grpc.ClientConnInterface
}

func NewBackofficeClient(cc grpc.ClientConnInterface) *BackofficeClient {
	return &BackofficeClient{cc: cc}
}

func (c *BackofficeClient) invoke(ctx context.Context, method string, req, resp any) error {
	return c.cc.Invoke(ctx, "/"+grpcServiceName+"/"+method, req, resp, grpc.CallContentSubtype(JSONCodecName))
}

func (c *BackofficeClient) SearchOrders(ctx context.Context, req *SearchOrdersRequest) (*domain.Page[OrderResponse], error) {
	resp := new(domain.Page[OrderResponse])
	return resp, c.invoke(ctx, "SearchOrders", req, resp)
}

func (c *BackofficeClient) GetOrder(ctx context.Context, req *OrderIDRequest) (*OrderResponse, error) {
	resp := new(OrderResponse)
	return resp, c.invoke(ctx, "GetOrder", req, resp)
}

func (c *BackofficeClient) UpdateOrderStatus(ctx context.Context, req *UpdateStatusRequest) (*OrderResponse, error) {
	resp := new(OrderResponse)
	return resp, c.invoke(ctx, "UpdateOrderStatus", req, resp)
}

func (c *BackofficeClient) RevenueStats(ctx context.Context, req *RevenueStatsRequest) (*domain.RevenueStats, error) {
	resp := new(domain.RevenueStats)
	return resp, c.invoke(ctx, "RevenueStats", req, resp)
}

func (c *BackofficeClient) TopProducts(ctx context.Context, req *TopProductsRequest) (*TopProductsReply, error) {
	resp := new(TopProductsReply)
	return resp, c.invoke(ctx, "TopProducts", req, resp)
}

func (c *BackofficeClient) DashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	resp := new(domain.DashboardStats)
	return resp, c.invoke(ctx, "DashboardStats", &Empty{}, resp)
}
