package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/polyshop/backoffice/internal/core/domain"
	"github.com/polyshop/backoffice/internal/core/service"
	"github.com/polyshop/backoffice/internal/port"
)

const dateLayout = "2006-01-02"

type HTTPHandler struct {
	orders    *service.OrderService
	dashboard *service.DashboardService
	identity  port.IdentityProvider
	logger    *zap.Logger
	metrics   *Metrics
	now       func() time.Time
}

func NewHTTPHandler(orders *service.OrderService, dashboard *service.DashboardService, identity port.IdentityProvider, logger *zap.Logger, metrics *Metrics) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		orders:    orders,
		dashboard: dashboard,
		identity:  identity,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Routes returns the instrumented router.
func (h *HTTPHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}

	route := func(pattern string, fn http.HandlerFunc) {
		mux.HandleFunc(pattern, authenticate(h.identity, fn))
	}
	route("POST /order/create", h.CreateOrder)
	route("GET /order/list", h.SearchOrders)
	route("GET /order/user/list", h.ListMyOrders)
	route("GET /order/user/{userId}", h.ListUserOrders)
	route("GET /order/details/{orderId}", h.GetOrderItems)
	route("GET /order/userDetails/{orderId}", h.GetOrderCustomer)
	route("GET /order/{orderId}", h.GetOrder)
	route("PUT /order/{orderId}/cancel", h.CancelOrder)
	route("PUT /order/{orderId}/status", h.UpdateOrderStatus)
	route("GET /dashboard/revenue-stats", h.RevenueStats)
	route("GET /dashboard/top-products", h.TopProducts)
	route("GET /dashboard/stats", h.DashboardStats)

	return h.instrument(mux)
}

type envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type orderItemJSON struct {
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type CreateOrderHTTPRequest struct {
	PaymentMethod string          `json:"paymentMethod"`
	Note          string          `json:"note"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Items         []orderItemJSON `json:"items"`
}

type updateStatusHTTPRequest struct {
	Status string `json:"status"`
}

type LineItemResponse struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type OrderResponse struct {
	ID            int64              `json:"id"`
	UserID        int64              `json:"userId"`
	Status        domain.OrderStatus `json:"status"`
	TotalAmount   decimal.Decimal    `json:"totalAmount"`
	Note          string             `json:"note,omitempty"`
	PaymentMethod string             `json:"paymentMethod"`
	Items         []LineItemResponse `json:"items,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

func toLineItems(items []domain.LineItem) []LineItemResponse {
	out := make([]LineItemResponse, 0, len(items))
	for _, i := range items {
		out = append(out, LineItemResponse{
			ID:          i.ID,
			ProductID:   i.ProductID,
			ProductName: i.ProductName,
			Quantity:    i.Quantity,
			Price:       i.Price,
			Subtotal:    i.Subtotal(),
		})
	}
	return out
}

func toOrderResponse(o *domain.Order) OrderResponse {
	resp := OrderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		Status:        o.Status,
		TotalAmount:   o.TotalAmount,
		Note:          o.Note,
		PaymentMethod: o.PaymentMethod,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	if len(o.Items) > 0 {
		resp.Items = toLineItems(o.Items)
	}
	return resp
}

func toOrderPage(p domain.Page[*domain.Order]) domain.Page[OrderResponse] {
	items := make([]OrderResponse, 0, len(p.Items))
	for _, o := range p.Items {
		items = append(items, toOrderResponse(o))
	}
	return domain.NewPage(items, p.PageNumber, p.PageSize, p.TotalElements)
}

func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var body CreateOrderHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.fail(w, r, domain.NewValidationError("body", "invalid request body"))
		return
	}

	req := domain.CreateOrderRequest{
		PaymentMethod:  body.PaymentMethod,
		Note:           body.Note,
		TotalAmount:    body.TotalAmount,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	}
	for _, item := range body.Items {
		req.Items = append(req.Items, domain.OrderItemRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	id, err := h.orders.CreateOrder(r.Context(), identityFrom(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		Status:  http.StatusCreated,
		Message: "order created",
		Data:    map[string]int64{"orderId": id},
	})
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "orderId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	order, err := h.orders.GetOrder(r.Context(), identityFrom(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, toOrderResponse(order))
}

func (h *HTTPHandler) GetOrderItems(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "orderId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items, err := h.orders.GetOrderItems(r.Context(), identityFrom(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, toLineItems(items))
}

func (h *HTTPHandler) GetOrderCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "orderId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	customer, err := h.orders.GetOrderCustomer(r.Context(), identityFrom(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, customer)
}

func (h *HTTPHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "orderId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	order, err := h.orders.CancelOrder(r.Context(), identityFrom(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, toOrderResponse(order))
}

func (h *HTTPHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "orderId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body updateStatusHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.fail(w, r, domain.NewValidationError("body", "invalid request body"))
		return
	}

	order, err := h.orders.UpdateOrderStatus(r.Context(), identityFrom(r.Context()), id, body.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, toOrderResponse(order))
}

func (h *HTTPHandler) SearchOrders(w http.ResponseWriter, r *http.Request) {
	criteria, err := parseSearchCriteria(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.orders.SearchOrders(r.Context(), identityFrom(r.Context()), criteria)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, toOrderPage(page))
}

func (h *HTTPHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	page, size, err := parsePaging(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.orders.ListUserOrders(r.Context(), identityFrom(r.Context()), page, size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, toOrderPage(result))
}

func (h *HTTPHandler) ListUserOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, size, err := parsePaging(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.orders.ListOrdersOfUser(r.Context(), identityFrom(r.Context()), userID, page, size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, toOrderPage(result))
}

func (h *HTTPHandler) RevenueStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := h.now()

	year, err := intParam(q.Get("year"), "year", now.Year())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	month, err := intParam(q.Get("month"), "month", int(now.Month()))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	stats, err := h.dashboard.RevenueStats(r.Context(), identityFrom(r.Context()), service.ParsePeriod(q.Get("period")), year, month)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, stats)
}

func (h *HTTPHandler) TopProducts(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), "limit", service.DefaultTopProducts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	products, err := h.dashboard.TopProducts(r.Context(), identityFrom(r.Context()), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, products)
}

func (h *HTTPHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dashboard.Stats(r.Context(), identityFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, stats)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Status: http.StatusOK, Message: "ok"})
}

func parseSearchCriteria(r *http.Request) (service.SearchCriteria, error) {
	q := r.URL.Query()
	page, size, err := parsePaging(r)
	if err != nil {
		return service.SearchCriteria{}, err
	}

	c := service.SearchCriteria{
		Keyword: q.Get("keyword"),
		Sort:    q.Get("sort"),
		Page:    page,
		Size:    size,
	}
	if v := q.Get("orderId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c, domain.NewValidationError("orderId", "must be a number")
		}
		c.OrderID = &id
	}
	if v := q.Get("status"); v != "" {
		status := domain.OrderStatus(v)
		c.Status = &status
	}
	if v := q.Get("createdAt"); v != "" {
		day, err := time.Parse(dateLayout, v)
		if err != nil {
			return c, domain.NewValidationError("createdAt", "must be formatted as yyyy-mm-dd")
		}
		c.CreatedOn = &day
	}
	if v := q.Get("totalAmount"); v != "" {
		amount, err := decimal.NewFromString(v)
		if err != nil {
			return c, domain.NewValidationError("totalAmount", "must be a decimal number")
		}
		c.TotalAmount = &amount
	}
	return c, nil
}

func parsePaging(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), "page", 1)
	if err != nil {
		return 0, 0, err
	}
	size, err := intParam(q.Get("size"), "size", service.DefaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	return page, size, nil
}

func intParam(raw, name string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(name, "must be a number")
	}
	return n, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError(name, "must be a positive number")
	}
	return id, nil
}

// httpStatus maps a service error to its status code and client message.
func httpStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrInvalidStateTransition),
		errors.Is(err, domain.ErrDuplicateRequest),
		errors.Is(err, domain.ErrConcurrentUpdate):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, err, h.logger)
}

func writeError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	status, message := httpStatus(err)
	if status == http.StatusInternalServerError && logger != nil {
		logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.Error(err),
		)
	}
	writeJSON(w, status, envelope{Status: status, Message: message})
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Status: http.StatusOK, Message: "success", Data: data})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
