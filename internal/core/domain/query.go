package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Predicate is one independent order filter. Storage adapters translate each
// concrete predicate into their own query language; Matches evaluates the
// same condition in memory.
type Predicate interface {
	Matches(o *Order) bool
}

// KeywordPredicate matches the keyword case-insensitively against the order
// id, note and payment method.
type KeywordPredicate struct {
	Keyword string
}

func (p KeywordPredicate) Matches(o *Order) bool {
	kw := strings.ToLower(p.Keyword)
	return strings.Contains(strconv.FormatInt(o.ID, 10), kw) ||
		strings.Contains(strings.ToLower(o.Note), kw) ||
		strings.Contains(strings.ToLower(o.PaymentMethod), kw)
}

type OrderIDPredicate struct {
	ID int64
}

func (p OrderIDPredicate) Matches(o *Order) bool { return o.ID == p.ID }

type StatusPredicate struct {
	Status OrderStatus
}

func (p StatusPredicate) Matches(o *Order) bool { return o.Status == p.Status }

// CreatedWithinPredicate matches orders created in [From, To).
type CreatedWithinPredicate struct {
	From time.Time
	To   time.Time
}

func (p CreatedWithinPredicate) Matches(o *Order) bool {
	return !o.CreatedAt.Before(p.From) && o.CreatedAt.Before(p.To)
}

type TotalAmountPredicate struct {
	Amount decimal.Decimal
}

func (p TotalAmountPredicate) Matches(o *Order) bool { return o.TotalAmount.Equal(p.Amount) }

type OwnerPredicate struct {
	UserID int64
}

func (p OwnerPredicate) Matches(o *Order) bool { return o.UserID == p.UserID }

type SortField string

const (
	SortByID            SortField = "id"
	SortByCreatedAt     SortField = "createdAt"
	SortByUpdatedAt     SortField = "updatedAt"
	SortByTotalAmount   SortField = "totalAmount"
	SortByStatus        SortField = "status"
	SortByPaymentMethod SortField = "paymentMethod"
	SortByUserID        SortField = "userId"
)

// SortFields lists the fields accepted in a "field:direction" sort string.
var SortFields = []SortField{
	SortByID, SortByCreatedAt, SortByUpdatedAt, SortByTotalAmount,
	SortByStatus, SortByPaymentMethod, SortByUserID,
}

type Sort struct {
	Field      SortField
	Descending bool
}

// DefaultSort is newest first.
var DefaultSort = Sort{Field: SortByCreatedAt, Descending: true}

// OrderQuery is a fully resolved search: every predicate must hold.
type OrderQuery struct {
	Predicates []Predicate
	Sort       Sort
	Offset     int
	Limit      int
}

func (q OrderQuery) Matches(o *Order) bool {
	for _, p := range q.Predicates {
		if !p.Matches(o) {
			return false
		}
	}
	return true
}

type Page[T any] struct {
	Items         []T   `json:"items"`
	PageNumber    int   `json:"pageNumber"`
	PageSize      int   `json:"pageSize"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

func NewPage[T any](items []T, pageNumber, pageSize int, total int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return Page[T]{
		Items:         items,
		PageNumber:    pageNumber,
		PageSize:      pageSize,
		TotalElements: total,
		TotalPages:    totalPages,
	}
}
