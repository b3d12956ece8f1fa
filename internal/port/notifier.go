package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polyshop/backoffice/internal/core/domain"
)

type EventType string

const (
	EventOrderCreated       EventType = "order.created"
	EventOrderStatusChanged EventType = "order.status_changed"
)

type OrderEvent struct {
	ID          string             `json:"id"`
	Type        EventType          `json:"type"`
	OrderID     int64              `json:"orderId"`
	UserID      int64              `json:"userId"`
	Status      domain.OrderStatus `json:"status"`
	PrevStatus  domain.OrderStatus `json:"prevStatus,omitempty"`
	TotalAmount decimal.Decimal    `json:"totalAmount"`
	OccurredAt  time.Time          `json:"occurredAt"`
}

// Notifier hands events to an external channel. Notify must not block on
// delivery; callers never observe delivery failures.
type Notifier interface {
	Notify(ctx context.Context, event OrderEvent)
}

// IdentityProvider resolves a bearer credential to the calling user.
type IdentityProvider interface {
	Resolve(ctx context.Context, token string) (domain.Identity, error)
}
