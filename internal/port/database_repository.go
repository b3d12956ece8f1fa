package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polyshop/backoffice/internal/core/domain"
)

// TxScope runs fn inside one database transaction. Repository calls made
// with the ctx handed to fn join that transaction.
type TxScope interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}

type OrderRepository interface {
	// InsertOrder persists the order header and sets its generated ID
	InsertOrder(ctx context.Context, order *domain.Order) error

	// InsertLineItems persists the order's line items against order.ID
	InsertLineItems(ctx context.Context, order *domain.Order) error

	// GetOrder loads an order with its line items
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)

	// GetOrderForUpdate loads an order header and locks its row until the
	// surrounding transaction ends
	GetOrderForUpdate(ctx context.Context, id int64) (*domain.Order, error)

	// UpdateStatus writes order.Status if the stored version still equals
	// order.Version, returns domain.ErrConcurrentUpdate otherwise
	UpdateStatus(ctx context.Context, order *domain.Order) error

	// ListLineItems returns an order's items with product names
	ListLineItems(ctx context.Context, orderID int64) ([]domain.LineItem, error)

	// SearchOrders returns one page of headers plus the total match count
	SearchOrders(ctx context.Context, query domain.OrderQuery) ([]*domain.Order, int64, error)
}

type ReportRepository interface {
	// CompletedOrdersBetween returns COMPLETED orders created in [from, to)
	CompletedOrdersBetween(ctx context.Context, from, to time.Time) ([]*domain.Order, error)

	// TopSellingProducts ranks products over COMPLETED orders
	TopSellingProducts(ctx context.Context, limit int) ([]domain.TopProduct, error)

	CountOrders(ctx context.Context) (int64, error)
	CountActiveUsers(ctx context.Context) (int64, error)
	CountActiveProducts(ctx context.Context) (int64, error)
	SumRevenue(ctx context.Context, status domain.OrderStatus) (decimal.Decimal, error)
}

type UserRepository interface {
	GetCustomer(ctx context.Context, userID int64) (*domain.Customer, error)
}
