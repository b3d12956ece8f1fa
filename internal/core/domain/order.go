package domain

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipping   OrderStatus = "SHIPPING"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusRefunded   OrderStatus = "REFUNDED"
)

// OrderStatuses lists every status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipping,
	OrderStatusDelivered,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) IsValid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseOrderStatus accepts the enumerated names exactly as stored.
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if !status.IsValid() {
		return "", NewValidationError("status", "unknown order status "+s)
	}
	return status, nil
}

// MinUnitPrice is the smallest accepted line-item price.
var MinUnitPrice = decimal.New(1, -2)

// Money columns are DECIMAL(10,2) and quantities are INT.
var MaxAmount = decimal.New(9999999999, -2)

const (
	AmountScale = 2
	MaxQuantity = math.MaxInt32
)

type Order struct {
	ID            int64
	UserID        int64
	Status        OrderStatus
	TotalAmount   decimal.Decimal
	Note          string
	PaymentMethod string
	Items         []LineItem
	Version       int // optimistic locking
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LineItem is a product/quantity/price snapshot owned by one order.
type LineItem struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	ProductName string
	Quantity    int
	Price       decimal.Decimal
}

func (i LineItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type OrderItemRequest struct {
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
}

type CreateOrderRequest struct {
	PaymentMethod  string
	Note           string
	TotalAmount    decimal.Decimal
	Items          []OrderItemRequest
	IdempotencyKey string
}

// Validate checks the request shape. The total is stored as supplied and is
// not compared against the line-item sum.
func (r CreateOrderRequest) Validate() error {
	if len(r.Items) == 0 {
		return NewValidationError("items", "order must contain at least one item")
	}
	if strings.TrimSpace(r.PaymentMethod) == "" {
		return NewValidationError("paymentMethod", "is required")
	}
	if r.TotalAmount.IsNegative() {
		return NewValidationError("totalAmount", "must not be negative")
	}
	if err := checkAmount("totalAmount", r.TotalAmount); err != nil {
		return err
	}
	for _, item := range r.Items {
		if item.ProductID <= 0 {
			return NewValidationError("items.productId", "must be positive")
		}
		if item.Quantity < 1 {
			return NewValidationError("items.quantity", "must be at least 1")
		}
		if item.Quantity > MaxQuantity {
			return NewValidationError("items.quantity", "is too large")
		}
		if item.Price.LessThan(MinUnitPrice) {
			return NewValidationError("items.price", "must be at least 0.01")
		}
		if err := checkAmount("items.price", item.Price); err != nil {
			return err
		}
	}
	return nil
}

// checkAmount rejects values the store would round or overflow.
func checkAmount(field string, d decimal.Decimal) error {
	if !d.Equal(d.Round(AmountScale)) {
		return NewValidationError(field, "must have at most 2 decimal places")
	}
	if d.GreaterThan(MaxAmount) {
		return NewValidationError(field, "must not exceed "+MaxAmount.StringFixed(AmountScale))
	}
	return nil
}

// NewOrder builds an unsaved order in the initial state with snapshot line items.
func NewOrder(userID int64, req CreateOrderRequest, now time.Time) *Order {
	items := make([]LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, LineItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	return &Order{
		UserID:        userID,
		Status:        InitialStatus,
		TotalAmount:   req.TotalAmount,
		Note:          req.Note,
		PaymentMethod: req.PaymentMethod,
		Items:         items,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Customer is the owning user of an order as exposed to admins.
type Customer struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}
