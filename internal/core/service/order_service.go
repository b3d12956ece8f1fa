package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/polyshop/backoffice/internal/core/domain"
	"github.com/polyshop/backoffice/internal/port"
)

type OrderService struct {
	tx       port.TxScope
	orders   port.OrderRepository
	users    port.UserRepository
	cache    port.CacheRepository
	reports  port.ReportCache
	notifier port.Notifier
	machine  *domain.StateMachine
	loc      *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

type OrderServiceOption func(*OrderService)

// WithIdempotencyCache enables Idempotency-Key handling on order creation.
func WithIdempotencyCache(cache port.CacheRepository) OrderServiceOption {
	return func(s *OrderService) { s.cache = cache }
}

// WithReportCache lets order writes invalidate cached dashboard results.
func WithReportCache(reports port.ReportCache) OrderServiceOption {
	return func(s *OrderService) { s.reports = reports }
}

func WithNotifier(n port.Notifier) OrderServiceOption {
	return func(s *OrderService) { s.notifier = n }
}

func WithStateMachine(m *domain.StateMachine) OrderServiceOption {
	return func(s *OrderService) { s.machine = m }
}

// WithLocation sets the zone used to interpret calendar-day filters.
func WithLocation(loc *time.Location) OrderServiceOption {
	return func(s *OrderService) { s.loc = loc }
}

func WithLogger(logger *zap.Logger) OrderServiceOption {
	return func(s *OrderService) { s.logger = logger }
}

func WithClock(now func() time.Time) OrderServiceOption {
	return func(s *OrderService) { s.now = now }
}

func NewOrderService(tx port.TxScope, orders port.OrderRepository, users port.UserRepository, opts ...OrderServiceOption) *OrderService {
	s := &OrderService{
		tx:      tx,
		orders:  orders,
		users:   users,
		machine: domain.NewStateMachine(domain.DefaultTransitions),
		loc:     time.Local,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder persists the order header and its line items in one
// transaction and returns the generated order ID.
func (s *OrderService) CreateOrder(ctx context.Context, caller domain.Identity, req domain.CreateOrderRequest) (orderID int64, err error) {
	if !caller.Authenticated() {
		return 0, domain.ErrUnauthenticated
	}
	if err := req.Validate(); err != nil {
		return 0, err
	}

	if req.IdempotencyKey != "" && s.cache != nil {
		key := fmt.Sprintf("order:create:%d:%s", caller.UserID, req.IdempotencyKey)
		ok, setErr := s.cache.SetIdempotency(ctx, key)
		if setErr != nil {
			return 0, fmt.Errorf("idempotency check failed: %w", setErr)
		}
		if !ok {
			return 0, domain.ErrDuplicateRequest
		}
		defer func() {
			if err == nil {
				return
			}
			if releaseErr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); releaseErr != nil {
				s.logger.Warn("release idempotency key", zap.String("key", key), zap.Error(releaseErr))
			}
		}()
	}

	order := domain.NewOrder(caller.UserID, req, s.now())

	err = s.tx.Execute(ctx, func(ctx context.Context) error {
		if err := s.orders.InsertOrder(ctx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if err := s.orders.InsertLineItems(ctx, order); err != nil {
			return fmt.Errorf("insert line items: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", order.UserID),
		zap.Int("items", len(order.Items)),
		zap.String("total_amount", order.TotalAmount.StringFixed(2)),
	)
	if s.reports != nil {
		if err := s.reports.DeleteReport(ctx, StatsReportKey); err != nil {
			s.logger.Warn("invalidate dashboard stats", zap.Error(err))
		}
	}
	s.notify(ctx, port.EventOrderCreated, order, "")

	return order.ID, nil
}

// GetOrder returns the order with its line items. Customers only see their own orders.
func (s *OrderService) GetOrder(ctx context.Context, caller domain.Identity, orderID int64) (*domain.Order, error) {
	if !caller.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(order.UserID) {
		return nil, domain.ErrForbidden
	}
	return order, nil
}

// GetOrderItems returns the line items of an order with product names.
func (s *OrderService) GetOrderItems(ctx context.Context, caller domain.Identity, orderID int64) ([]domain.LineItem, error) {
	order, err := s.GetOrder(ctx, caller, orderID)
	if err != nil {
		return nil, err
	}
	return order.Items, nil
}

// GetOrderCustomer returns the user who placed the order.
func (s *OrderService) GetOrderCustomer(ctx context.Context, caller domain.Identity, orderID int64) (*domain.Customer, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.users.GetCustomer(ctx, order.UserID)
}

// CancelOrder moves a PENDING order to CANCELLED.
func (s *OrderService) CancelOrder(ctx context.Context, caller domain.Identity, orderID int64) (*domain.Order, error) {
	if !caller.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}

	return s.transition(ctx, orderID, func(o *domain.Order) error {
		if !caller.CanAccess(o.UserID) {
			return domain.ErrForbidden
		}
		return s.machine.Cancel(o)
	})
}

// UpdateOrderStatus is the administrative override: any enumerated status is
// accepted unless the order is already terminal.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, caller domain.Identity, orderID int64, status string) (*domain.Order, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	target, err := domain.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}

	return s.transition(ctx, orderID, func(o *domain.Order) error {
		return s.machine.Override(o, target)
	})
}

// transition runs read-validate-write on one locked order row.
func (s *OrderService) transition(ctx context.Context, orderID int64, apply func(o *domain.Order) error) (*domain.Order, error) {
	var (
		updated *domain.Order
		prev    domain.OrderStatus
	)

	err := s.tx.Execute(ctx, func(ctx context.Context) error {
		order, err := s.orders.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		prev = order.Status
		if err := apply(order); err != nil {
			return err
		}
		order.UpdatedAt = s.now()

		if err := s.orders.UpdateStatus(ctx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order status changed",
		zap.Int64("order_id", updated.ID),
		zap.String("from", prev.String()),
		zap.String("status", updated.Status.String()),
	)

	if updated.Status == domain.OrderStatusCompleted && s.reports != nil {
		if err := s.reports.InvalidateReports(ctx); err != nil {
			s.logger.Warn("invalidate dashboard cache", zap.Error(err))
		}
	}
	s.notify(ctx, port.EventOrderStatusChanged, updated, prev)

	return updated, nil
}

func (s *OrderService) notify(ctx context.Context, typ port.EventType, order *domain.Order, prev domain.OrderStatus) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, port.OrderEvent{
		ID:          uuid.NewString(),
		Type:        typ,
		OrderID:     order.ID,
		UserID:      order.UserID,
		Status:      order.Status,
		PrevStatus:  prev,
		TotalAmount: order.TotalAmount,
		OccurredAt:  s.now().UTC(),
	})
}

func requireAdmin(caller domain.Identity) error {
	if !caller.Authenticated() {
		return domain.ErrUnauthenticated
	}
	if !caller.IsAdmin() {
		return domain.ErrForbidden
	}
	return nil
}

// IsClientError reports whether err is caused by the request rather than a fault.
func IsClientError(err error) bool {
	for _, target := range []error{
		domain.ErrNotFound,
		domain.ErrValidation,
		domain.ErrInvalidStateTransition,
		domain.ErrUnauthenticated,
		domain.ErrForbidden,
		domain.ErrDuplicateRequest,
		domain.ErrConcurrentUpdate,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
