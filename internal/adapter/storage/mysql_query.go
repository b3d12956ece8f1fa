package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/polyshop/backoffice/internal/core/domain"
)

type orderRow struct {
	ID            int64
	UserID        int64
	Status        string
	TotalAmount   decimal.Decimal
	Note          sql.NullString
	PaymentMethod string
	Version       int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (orderRow) TableName() string { return "tbl_order" }

func (r orderRow) toDomain() *domain.Order {
	return &domain.Order{
		ID:            r.ID,
		UserID:        r.UserID,
		Status:        domain.OrderStatus(r.Status),
		TotalAmount:   r.TotalAmount,
		Note:          r.Note.String,
		PaymentMethod: r.PaymentMethod,
		Version:       r.Version,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

var sortColumns = map[domain.SortField]string{
	domain.SortByID:            "id",
	domain.SortByCreatedAt:     "created_at",
	domain.SortByUpdatedAt:     "updated_at",
	domain.SortByTotalAmount:   "total_amount",
	domain.SortByStatus:        "status",
	domain.SortByPaymentMethod: "payment_method",
	domain.SortByUserID:        "user_id",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// predicateScope translates one predicate into a gorm scope.
func predicateScope(p domain.Predicate) (func(*gorm.DB) *gorm.DB, error) {
	switch p := p.(type) {
	case domain.KeywordPredicate:
		like := "%" + likeEscaper.Replace(strings.ToLower(p.Keyword)) + "%"
		return func(db *gorm.DB) *gorm.DB {
			return db.Where("(CAST(id AS CHAR) LIKE ? OR LOWER(note) LIKE ? OR LOWER(payment_method) LIKE ?)", like, like, like)
		}, nil
	case domain.OrderIDPredicate:
		return func(db *gorm.DB) *gorm.DB { return db.Where("id = ?", p.ID) }, nil
	case domain.StatusPredicate:
		return func(db *gorm.DB) *gorm.DB { return db.Where("status = ?", string(p.Status)) }, nil
	case domain.CreatedWithinPredicate:
		return func(db *gorm.DB) *gorm.DB {
			return db.Where("created_at >= ? AND created_at < ?", p.From, p.To)
		}, nil
	case domain.TotalAmountPredicate:
		return func(db *gorm.DB) *gorm.DB { return db.Where("total_amount = ?", p.Amount) }, nil
	case domain.OwnerPredicate:
		return func(db *gorm.DB) *gorm.DB { return db.Where("user_id = ?", p.UserID) }, nil
	default:
		return nil, fmt.Errorf("unsupported predicate %T", p)
	}
}

func sortScope(s domain.Sort) (func(*gorm.DB) *gorm.DB, error) {
	col, ok := sortColumns[s.Field]
	if !ok {
		return nil, fmt.Errorf("unsupported sort field %q", s.Field)
	}
	return func(db *gorm.DB) *gorm.DB {
		db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: s.Descending})
		if col != "id" {
			db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: s.Descending})
		}
		return db
	}, nil
}

func (m *MySQLAdapter) SearchOrders(ctx context.Context, q domain.OrderQuery) ([]*domain.Order, int64, error) {
	scopes := make([]func(*gorm.DB) *gorm.DB, 0, len(q.Predicates))
	for _, p := range q.Predicates {
		scope, err := predicateScope(p)
		if err != nil {
			return nil, 0, err
		}
		scopes = append(scopes, scope)
	}
	order, err := sortScope(q.Sort)
	if err != nil {
		return nil, 0, err
	}

	base := m.gorm.WithContext(ctx).Model(&orderRow{}).Scopes(scopes...).Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	if total == 0 || int64(q.Offset) >= total {
		return []*domain.Order{}, total, nil
	}

	var rows []orderRow
	if err := base.Scopes(order).Offset(q.Offset).Limit(q.Limit).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("search orders: %w", err)
	}

	orders := make([]*domain.Order, 0, len(rows))
	for _, r := range rows {
		orders = append(orders, r.toDomain())
	}
	return orders, total, nil
}

func (m *MySQLAdapter) CompletedOrdersBetween(ctx context.Context, from, to time.Time) ([]*domain.Order, error) {
	var rows []orderRow
	err := m.gorm.WithContext(ctx).
		Where("status = ?", string(domain.OrderStatusCompleted)).
		Where("created_at >= ? AND created_at < ?", from, to).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query completed orders: %w", err)
	}

	orders := make([]*domain.Order, 0, len(rows))
	for _, r := range rows {
		orders = append(orders, r.toDomain())
	}
	return orders, nil
}

func (m *MySQLAdapter) TopSellingProducts(ctx context.Context, limit int) ([]domain.TopProduct, error) {
	var rows []struct {
		ProductID   int64
		ProductName string
		Quantity    int64
		Revenue     decimal.Decimal
	}
	err := m.gorm.WithContext(ctx).
		Table("tbl_order_detail AS od").
		Select("p.id AS product_id, p.product_name AS product_name, " +
			"SUM(od.quantity) AS quantity, SUM(od.price * od.quantity) AS revenue").
		Joins("JOIN tbl_order o ON o.id = od.order_id").
		Joins("JOIN tbl_product p ON p.id = od.product_id").
		Where("o.status = ?", string(domain.OrderStatusCompleted)).
		Group("p.id, p.product_name").
		Order("quantity DESC, revenue DESC, p.id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query top products: %w", err)
	}

	products := make([]domain.TopProduct, 0, len(rows))
	for _, r := range rows {
		products = append(products, domain.TopProduct{
			ProductID:   r.ProductID,
			ProductName: r.ProductName,
			Quantity:    r.Quantity,
			Revenue:     r.Revenue,
		})
	}
	return products, nil
}

func (m *MySQLAdapter) CountOrders(ctx context.Context) (int64, error) {
	var n int64
	if err := m.gorm.WithContext(ctx).Model(&orderRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

func (m *MySQLAdapter) CountActiveUsers(ctx context.Context) (int64, error) {
	return m.countActive(ctx, "tbl_user")
}

func (m *MySQLAdapter) CountActiveProducts(ctx context.Context) (int64, error) {
	return m.countActive(ctx, "tbl_product")
}

func (m *MySQLAdapter) countActive(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := m.gorm.WithContext(ctx).Table(table).Where("status = ?", "ACTIVE").Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (m *MySQLAdapter) SumRevenue(ctx context.Context, status domain.OrderStatus) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := m.gorm.WithContext(ctx).Model(&orderRow{}).
		Select("COALESCE(SUM(total_amount), 0)").
		Where("status = ?", string(status)).
		Row().Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum revenue: %w", err)
	}
	return sum, nil
}

func (m *MySQLAdapter) GetCustomer(ctx context.Context, userID int64) (*domain.Customer, error) {
	var c domain.Customer
	err := m.gorm.WithContext(ctx).
		Table("tbl_user").
		Select("id, username, COALESCE(email, '') AS email, COALESCE(phone, '') AS phone").
		Where("id = ?", userID).
		Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query customer: %w", err)
	}
	return &c, nil
}
