package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/polyshop/backoffice/internal/core/domain"
)

var ErrNoTransaction = errors.New("row lock requested outside a transaction")

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// MySQLAdapter writes through database/sql and reads search and reporting
// data through gorm opened over the same connection pool.
type MySQLAdapter struct {
	db   *sql.DB
	gorm *gorm.DB
}

func NewMySQLAdapter(db *sql.DB) (*MySQLAdapter, error) {
	g, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	return &MySQLAdapter{db: db, gorm: g}, nil
}

func (m *MySQLAdapter) conn(ctx context.Context) queryer {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}
	return m.db
}

func (m *MySQLAdapter) InsertOrder(ctx context.Context, order *domain.Order) error {
	result, err := m.conn(ctx).ExecContext(ctx, `
		INSERT INTO tbl_order (user_id, status, total_amount, note, payment_method, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		order.UserID, order.Status, order.TotalAmount, nullString(order.Note), order.PaymentMethod,
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("order id: %w", err)
	}
	order.ID = id
	return nil
}

func (m *MySQLAdapter) InsertLineItems(ctx context.Context, order *domain.Order) error {
	if order.ID == 0 {
		return errors.New("insert line items: order has no id")
	}

	c := m.conn(ctx)
	for i := range order.Items {
		item := &order.Items[i]
		result, err := c.ExecContext(ctx, `
			INSERT INTO tbl_order_detail (order_id, product_id, quantity, price)
			VALUES (?, ?, ?, ?)`,
			order.ID, item.ProductID, item.Quantity, item.Price,
		)
		if err != nil {
			return fmt.Errorf("insert line item: %w", err)
		}
		if item.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("line item id: %w", err)
		}
		item.OrderID = order.ID
	}
	return nil
}

const selectOrderHeader = `
	SELECT id, user_id, status, total_amount, note, payment_method, version, created_at, updated_at
	FROM tbl_order WHERE id = ?`

func (m *MySQLAdapter) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	order, err := scanOrder(m.conn(ctx).QueryRowContext(ctx, selectOrderHeader, id))
	if err != nil {
		return nil, err
	}

	if order.Items, err = m.ListLineItems(ctx, id); err != nil {
		return nil, err
	}
	return order, nil
}

func (m *MySQLAdapter) GetOrderForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	tx, ok := txFromContext(ctx)
	if !ok {
		return nil, ErrNoTransaction
	}
	return scanOrder(tx.QueryRowContext(ctx, selectOrderHeader+` FOR UPDATE`, id))
}

func (m *MySQLAdapter) UpdateStatus(ctx context.Context, order *domain.Order) error {
	result, err := m.conn(ctx).ExecContext(ctx, `
		UPDATE tbl_order
		SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		order.Status, order.UpdatedAt, order.ID, order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	if err := versionApplied(result); err != nil {
		return err
	}

	order.Version++
	return nil
}

// versionApplied reports a lost version race as ErrConcurrentUpdate.
func versionApplied(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrConcurrentUpdate
	}
	return nil
}

func (m *MySQLAdapter) ListLineItems(ctx context.Context, orderID int64) ([]domain.LineItem, error) {
	rows, err := m.conn(ctx).QueryContext(ctx, `
		SELECT od.id, od.order_id, od.product_id, COALESCE(p.product_name, ''), od.quantity, od.price
		FROM tbl_order_detail od
		LEFT JOIN tbl_product p ON p.id = od.product_id
		WHERE od.order_id = ?
		ORDER BY od.id`, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.LineItem, 0)
	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate line items: %w", err)
	}
	return items, nil
}

func scanOrder(row *sql.Row) (*domain.Order, error) {
	var (
		o    domain.Order
		note sql.NullString
	)
	err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.TotalAmount, &note, &o.PaymentMethod, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	o.Note = note.String
	return &o, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
