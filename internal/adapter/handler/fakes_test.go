package handler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polyshop/backoffice/internal/core/domain"
	"github.com/polyshop/backoffice/internal/core/service"
)

type memScope struct{}

func (memScope) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// memRepo backs every repository port with one map. It does not roll back.
type memRepo struct {
	mu       sync.Mutex
	nextID   int64
	orders   map[int64]*domain.Order
	failRead error
}

func newMemRepo() *memRepo {
	return &memRepo{orders: make(map[int64]*domain.Order)}
}

func (r *memRepo) InsertOrder(ctx context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	o.ID = r.nextID
	c := *o
	c.Items = nil
	r.orders[o.ID] = &c
	return nil
}

func (r *memRepo) InsertLineItems(ctx context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range o.Items {
		o.Items[i].ID = int64(i + 1)
		o.Items[i].OrderID = o.ID
		o.Items[i].ProductName = "Product"
	}
	r.orders[o.ID].Items = append([]domain.LineItem(nil), o.Items...)
	return nil
}

func (r *memRepo) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failRead != nil {
		return nil, r.failRead
	}
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *o
	return &c, nil
}

func (r *memRepo) GetOrderForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	return r.GetOrder(ctx, id)
}

func (r *memRepo) UpdateStatus(ctx context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.orders[o.ID]
	stored.Status = o.Status
	stored.UpdatedAt = o.UpdatedAt
	return nil
}

func (r *memRepo) ListLineItems(ctx context.Context, orderID int64) ([]domain.LineItem, error) {
	o, err := r.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return o.Items, nil
}

func (r *memRepo) SearchOrders(ctx context.Context, q domain.OrderQuery) ([]*domain.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*domain.Order
	for _, o := range r.orders {
		if q.Matches(o) {
			c := *o
			matched = append(matched, &c)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	total := int64(len(matched))
	if q.Offset >= len(matched) {
		return nil, total, nil
	}
	end := min(q.Offset+q.Limit, len(matched))
	return matched[q.Offset:end], total, nil
}

func (r *memRepo) GetCustomer(ctx context.Context, userID int64) (*domain.Customer, error) {
	return &domain.Customer{ID: userID, Username: "buyer", Email: "buyer@example.com"}, nil
}

func (r *memRepo) CompletedOrdersBetween(ctx context.Context, from, to time.Time) ([]*domain.Order, error) {
	return nil, nil
}

func (r *memRepo) TopSellingProducts(ctx context.Context, limit int) ([]domain.TopProduct, error) {
	return []domain.TopProduct{{ProductID: 3, ProductName: "P3", Quantity: 8, Revenue: decimal.NewFromInt(16)}}, nil
}

func (r *memRepo) CountOrders(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.orders)), nil
}

func (r *memRepo) CountActiveUsers(ctx context.Context) (int64, error)    { return 2, nil }
func (r *memRepo) CountActiveProducts(ctx context.Context) (int64, error) { return 3, nil }

func (r *memRepo) SumRevenue(ctx context.Context, status domain.OrderStatus) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("revenue unavailable")
}

// staticIdentity maps fixed tokens to identities.
type staticIdentity map[string]domain.Identity

func (s staticIdentity) Resolve(ctx context.Context, token string) (domain.Identity, error) {
	id, ok := s[token]
	if !ok {
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	return id, nil
}

var tokens = staticIdentity{
	"user-10": {UserID: 10, Role: domain.RoleUser},
	"user-11": {UserID: 11, Role: domain.RoleUser},
	"admin-1": {UserID: 1, Role: domain.RoleAdmin},
}

type memCache struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (c *memCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys[key] {
		return false, nil
	}
	c.keys[key] = true
	return true, nil
}

func (c *memCache) ReleaseIdempotency(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, key)
	return nil
}

func newServices(repo *memRepo) (*service.OrderService, *service.DashboardService) {
	orders := service.NewOrderService(memScope{}, repo, repo,
		service.WithIdempotencyCache(&memCache{keys: make(map[string]bool)}))
	dashboard := service.NewDashboardService(repo, nil, time.UTC, nil)
	return orders, dashboard
}
