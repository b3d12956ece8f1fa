package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polyshop/backoffice/internal/core/domain"
	"github.com/polyshop/backoffice/internal/port"
)

// fakeStore is an in-memory order table shared by the fake repository and
// the fake transaction scope.
type fakeStore struct {
	mu          sync.Mutex
	nextID      int64
	orders      map[int64]*domain.Order
	customers   map[int64]*domain.Customer
	failItems   error
	failUpdate  error
	searchCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:    make(map[int64]*domain.Order),
		customers: make(map[int64]*domain.Customer),
	}
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.LineItem(nil), o.Items...)
	return &c
}

func (s *fakeStore) snapshot() map[int64]*domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := make(map[int64]*domain.Order, len(s.orders))
	for id, o := range s.orders {
		snap[id] = cloneOrder(o)
	}
	return snap
}

func (s *fakeStore) restore(snap map[int64]*domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = snap
}

func (s *fakeStore) put(o *domain.Order) *domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	o.ID = s.nextID
	s.orders[o.ID] = cloneOrder(o)
	return o
}

func (s *fakeStore) status(id int64) domain.OrderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id].Status
}

type fakeScope struct {
	store     *fakeStore
	commits   int
	rollbacks int
}

func (f *fakeScope) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := f.store.snapshot()
	if err := fn(ctx); err != nil {
		f.store.restore(snap)
		f.rollbacks++
		return err
	}
	f.commits++
	return nil
}

type fakeOrderRepo struct {
	store *fakeStore
}

func (r *fakeOrderRepo) InsertOrder(ctx context.Context, order *domain.Order) error {
	header := cloneOrder(order)
	header.Items = nil
	r.store.put(header)
	order.ID = header.ID
	return nil
}

func (r *fakeOrderRepo) InsertLineItems(ctx context.Context, order *domain.Order) error {
	if r.store.failItems != nil {
		return r.store.failItems
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	stored := r.store.orders[order.ID]
	for i := range order.Items {
		order.Items[i].ID = int64(i + 1)
		order.Items[i].OrderID = order.ID
		stored.Items = append(stored.Items, order.Items[i])
	}
	return nil
}

func (r *fakeOrderRepo) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *fakeOrderRepo) GetOrderForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	return r.GetOrder(ctx, id)
}

func (r *fakeOrderRepo) UpdateStatus(ctx context.Context, order *domain.Order) error {
	if r.store.failUpdate != nil {
		return r.store.failUpdate
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	stored, ok := r.store.orders[order.ID]
	if !ok || stored.Version != order.Version {
		return domain.ErrConcurrentUpdate
	}
	stored.Status = order.Status
	stored.UpdatedAt = order.UpdatedAt
	stored.Version++
	order.Version++
	return nil
}

func (r *fakeOrderRepo) ListLineItems(ctx context.Context, orderID int64) ([]domain.LineItem, error) {
	o, err := r.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return o.Items, nil
}

func (r *fakeOrderRepo) SearchOrders(ctx context.Context, q domain.OrderQuery) ([]*domain.Order, int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.searchCalls++

	matched := make([]*domain.Order, 0)
	for _, o := range r.store.orders {
		if q.Matches(o) {
			matched = append(matched, cloneOrder(o))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		var less, equal bool
		switch q.Sort.Field {
		case domain.SortByTotalAmount:
			less, equal = a.TotalAmount.LessThan(b.TotalAmount), a.TotalAmount.Equal(b.TotalAmount)
		case domain.SortByStatus:
			less, equal = a.Status < b.Status, a.Status == b.Status
		case domain.SortByPaymentMethod:
			less, equal = strings.Compare(a.PaymentMethod, b.PaymentMethod) < 0, a.PaymentMethod == b.PaymentMethod
		case domain.SortByID:
			less, equal = a.ID < b.ID, a.ID == b.ID
		default:
			less, equal = a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
		}
		if equal {
			less = a.ID < b.ID
		}
		if q.Sort.Descending {
			return !less
		}
		return less
	})

	total := int64(len(matched))
	if q.Offset >= len(matched) {
		return []*domain.Order{}, total, nil
	}
	end := q.Offset + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[q.Offset:end], total, nil
}

func (r *fakeOrderRepo) GetCustomer(ctx context.Context, userID int64) (*domain.Customer, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.customers[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

type fakeCache struct {
	mu          sync.Mutex
	keys        map[string]bool
	reports     map[string][]byte
	invalidated int
}

func newFakeCache() *fakeCache {
	return &fakeCache{keys: make(map[string]bool), reports: make(map[string][]byte)}
}

func (c *fakeCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys[key] {
		return false, nil
	}
	c.keys[key] = true
	return true, nil
}

func (c *fakeCache) ReleaseIdempotency(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, key)
	return nil
}

func (c *fakeCache) GetReport(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.reports[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dst)
}

func (c *fakeCache) SetReport(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports[key] = data
	return nil
}

func (c *fakeCache) DeleteReport(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.reports, key)
	return nil
}

func (c *fakeCache) InvalidateReports(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = make(map[string][]byte)
	c.invalidated++
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []port.OrderEvent
}

func (n *fakeNotifier) Notify(ctx context.Context, event port.OrderEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

// fakeReports serves aggregates from a fixed order list.
type fakeReports struct {
	orders   []*domain.Order
	users    int64
	products int64
	err      error
	calls    int
}

func (r *fakeReports) CompletedOrdersBetween(ctx context.Context, from, to time.Time) ([]*domain.Order, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	var out []*domain.Order
	for _, o := range r.orders {
		if o.Status == domain.OrderStatusCompleted && !o.CreatedAt.Before(from) && o.CreatedAt.Before(to) {
			out = append(out, o)
		}
	}
	return out, nil
}

// TopSellingProducts groups the line items of completed orders the way the
// reporting query does.
func (r *fakeReports) TopSellingProducts(ctx context.Context, limit int) ([]domain.TopProduct, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	byProduct := make(map[int64]*domain.TopProduct)
	for _, o := range r.orders {
		if o.Status != domain.OrderStatusCompleted {
			continue
		}
		for _, item := range o.Items {
			p, ok := byProduct[item.ProductID]
			if !ok {
				p = &domain.TopProduct{ProductID: item.ProductID, ProductName: item.ProductName, Revenue: decimal.Zero}
				byProduct[item.ProductID] = p
			}
			p.Quantity += int64(item.Quantity)
			p.Revenue = p.Revenue.Add(item.Subtotal())
		}
	}

	ranked := make([]domain.TopProduct, 0, len(byProduct))
	for _, p := range byProduct {
		ranked = append(ranked, *p)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Quantity != b.Quantity {
			return a.Quantity > b.Quantity
		}
		if !a.Revenue.Equal(b.Revenue) {
			return a.Revenue.GreaterThan(b.Revenue)
		}
		return a.ProductID < b.ProductID
	})
	if limit < len(ranked) {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

func (r *fakeReports) CountOrders(ctx context.Context) (int64, error) {
	return int64(len(r.orders)), r.err
}

func (r *fakeReports) CountActiveUsers(ctx context.Context) (int64, error) {
	return r.users, nil
}

func (r *fakeReports) CountActiveProducts(ctx context.Context) (int64, error) {
	return r.products, nil
}

func (r *fakeReports) SumRevenue(ctx context.Context, status domain.OrderStatus) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, o := range r.orders {
		if o.Status == status {
			sum = sum.Add(o.TotalAmount)
		}
	}
	return sum, nil
}

var (
	customer = domain.Identity{UserID: 10, Role: domain.RoleUser}
	stranger = domain.Identity{UserID: 11, Role: domain.RoleUser}
	admin    = domain.Identity{UserID: 1, Role: domain.RoleAdmin}
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
