package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderStatus(t *testing.T) {
	for _, s := range OrderStatuses {
		got, err := ParseOrderStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseOrderStatus("pending")
	assert.ErrorIs(t, err, ErrValidation, "names are case-sensitive")
}

func TestCreateOrderRequest_AcceptsMinimumPrice(t *testing.T) {
	req := CreateOrderRequest{
		PaymentMethod: "COD",
		TotalAmount:   decimal.Zero,
		Items:         []OrderItemRequest{{ProductID: 1, Quantity: 1, Price: MinUnitPrice}},
	}
	assert.NoError(t, req.Validate())
}

func TestNewOrder(t *testing.T) {
	now := time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC)
	req := CreateOrderRequest{
		PaymentMethod: "COD",
		Note:          "fragile",
		TotalAmount:   decimal.RequireFromString("1.00"), // stored as supplied
		Items: []OrderItemRequest{
			{ProductID: 4, Quantity: 3, Price: decimal.RequireFromString("2.50")},
		},
	}

	o := NewOrder(7, req, now)
	assert.Equal(t, InitialStatus, o.Status)
	assert.EqualValues(t, 7, o.UserID)
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("1")))
	assert.Equal(t, now, o.CreatedAt)
	assert.Equal(t, now, o.UpdatedAt)
	require.Len(t, o.Items, 1)
	assert.True(t, o.Items[0].Subtotal().Equal(decimal.RequireFromString("7.5")))
}

func TestIdentity(t *testing.T) {
	user := Identity{UserID: 3, Role: RoleUser}
	boss := Identity{UserID: 1, Role: RoleAdmin}

	assert.True(t, user.CanAccess(3))
	assert.False(t, user.CanAccess(4))
	assert.True(t, boss.CanAccess(4))
	assert.False(t, Identity{}.Authenticated())
}
