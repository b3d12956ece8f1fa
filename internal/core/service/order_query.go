package service

import (
	"context"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polyshop/backoffice/internal/core/domain"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// SearchCriteria holds the optional admin search filters. Nil or empty
// fields do not constrain the result.
type SearchCriteria struct {
	Keyword     string
	OrderID     *int64
	Status      *domain.OrderStatus
	CreatedOn   *time.Time // calendar day, time of day ignored
	TotalAmount *decimal.Decimal
	Sort        string
	Page        int
	Size        int
}

var sortPresets = map[string]domain.Sort{
	"newest":        {Field: domain.SortByCreatedAt, Descending: true},
	"oldest":        {Field: domain.SortByCreatedAt, Descending: false},
	"highestAmount": {Field: domain.SortByTotalAmount, Descending: true},
	"lowestAmount":  {Field: domain.SortByTotalAmount, Descending: false},
}

var sortPattern = regexp.MustCompile(`^(\w+):(\w*)$`)

// ParseSort resolves a preset name or a "field:direction" string. Anything
// else yields newest first; a well-formed string naming an unknown field is
// rejected.
func ParseSort(raw string) (domain.Sort, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.DefaultSort, nil
	}
	if preset, ok := sortPresets[raw]; ok {
		return preset, nil
	}

	m := sortPattern.FindStringSubmatch(raw)
	if m == nil {
		return domain.DefaultSort, nil
	}
	for _, field := range domain.SortFields {
		if strings.EqualFold(m[1], string(field)) {
			return domain.Sort{Field: field, Descending: !strings.EqualFold(m[2], "asc")}, nil
		}
	}
	return domain.Sort{}, domain.NewValidationError("sort", "cannot sort by "+m[1])
}

// NormalizePage converts a 1-based page request into page, size and a 0-based offset.
func NormalizePage(page, size int) (int, int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	// Past this page the offset no longer fits in an int; such a page is empty anyway.
	if lastPage := math.MaxInt/size + 1; page > lastPage {
		page = lastPage
	}
	return page, size, (page - 1) * size
}

// QueryBuilder accumulates independent predicates that are AND-ed at execution time.
type QueryBuilder struct {
	predicates []domain.Predicate
	sort       domain.Sort
	page       int
	size       int
}

func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{sort: domain.DefaultSort, page: 1, size: DefaultPageSize}
}

func (b *QueryBuilder) Where(p domain.Predicate) *QueryBuilder {
	b.predicates = append(b.predicates, p)
	return b
}

func (b *QueryBuilder) OrderBy(sort domain.Sort) *QueryBuilder {
	b.sort = sort
	return b
}

func (b *QueryBuilder) Paginate(page, size int) *QueryBuilder {
	b.page, b.size = page, size
	return b
}

func (b *QueryBuilder) Build() (domain.OrderQuery, int, int) {
	page, size, offset := NormalizePage(b.page, b.size)
	return domain.OrderQuery{
		Predicates: b.predicates,
		Sort:       b.sort,
		Offset:     offset,
		Limit:      size,
	}, page, size
}

func (s *OrderService) buildSearch(c SearchCriteria) (*QueryBuilder, error) {
	sort, err := ParseSort(c.Sort)
	if err != nil {
		return nil, err
	}

	b := NewQueryBuilder().OrderBy(sort).Paginate(c.Page, c.Size)
	if kw := strings.TrimSpace(c.Keyword); kw != "" {
		b.Where(domain.KeywordPredicate{Keyword: kw})
	}
	if c.OrderID != nil {
		b.Where(domain.OrderIDPredicate{ID: *c.OrderID})
	}
	if c.Status != nil {
		if !c.Status.IsValid() {
			return nil, domain.NewValidationError("status", "unknown order status "+string(*c.Status))
		}
		b.Where(domain.StatusPredicate{Status: *c.Status})
	}
	if c.CreatedOn != nil {
		y, m, d := c.CreatedOn.Date()
		from := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
		b.Where(domain.CreatedWithinPredicate{From: from, To: from.AddDate(0, 0, 1)})
	}
	if c.TotalAmount != nil {
		b.Where(domain.TotalAmountPredicate{Amount: *c.TotalAmount})
	}
	return b, nil
}

// SearchOrders is the admin search over all orders.
func (s *OrderService) SearchOrders(ctx context.Context, caller domain.Identity, c SearchCriteria) (domain.Page[*domain.Order], error) {
	if err := requireAdmin(caller); err != nil {
		return domain.Page[*domain.Order]{}, err
	}

	b, err := s.buildSearch(c)
	if err != nil {
		return domain.Page[*domain.Order]{}, err
	}
	return s.runQuery(ctx, b)
}

// ListUserOrders pages through the caller's own orders, newest first.
func (s *OrderService) ListUserOrders(ctx context.Context, caller domain.Identity, page, size int) (domain.Page[*domain.Order], error) {
	if !caller.Authenticated() {
		return domain.Page[*domain.Order]{}, domain.ErrUnauthenticated
	}
	return s.listOwnedBy(ctx, caller.UserID, page, size)
}

// ListOrdersOfUser pages through another user's orders for an admin.
func (s *OrderService) ListOrdersOfUser(ctx context.Context, caller domain.Identity, userID int64, page, size int) (domain.Page[*domain.Order], error) {
	if err := requireAdmin(caller); err != nil {
		return domain.Page[*domain.Order]{}, err
	}
	return s.listOwnedBy(ctx, userID, page, size)
}

func (s *OrderService) listOwnedBy(ctx context.Context, userID int64, page, size int) (domain.Page[*domain.Order], error) {
	b := NewQueryBuilder().
		Where(domain.OwnerPredicate{UserID: userID}).
		Paginate(page, size)
	return s.runQuery(ctx, b)
}

func (s *OrderService) runQuery(ctx context.Context, b *QueryBuilder) (domain.Page[*domain.Order], error) {
	query, page, size := b.Build()

	orders, total, err := s.orders.SearchOrders(ctx, query)
	if err != nil {
		return domain.Page[*domain.Order]{}, err
	}
	return domain.NewPage(orders, page, size, total), nil
}
