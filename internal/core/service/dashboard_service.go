package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/polyshop/backoffice/internal/core/domain"
	"github.com/polyshop/backoffice/internal/port"
)

const (
	DefaultTopProducts = 5
	MaxTopProducts     = 100

	reportKeyPrefix = "dashboard:"

	// StatsReportKey caches the headline counters, which change on every new order.
	StatsReportKey = reportKeyPrefix + "stats"
)

// DashboardService serves read-only aggregates over completed orders.
type DashboardService struct {
	reports port.ReportRepository
	cache   port.ReportCache
	loc     *time.Location
	logger  *zap.Logger
	now     func() time.Time
}

func NewDashboardService(reports port.ReportRepository, cache port.ReportCache, loc *time.Location, logger *zap.Logger) *DashboardService {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		reports: reports,
		cache:   cache,
		loc:     loc,
		logger:  logger,
		now:     time.Now,
	}
}

// RevenueStats sums COMPLETED order totals per day (month period) or per
// month (year period). Buckets without revenue are reported as zero.
func (s *DashboardService) RevenueStats(ctx context.Context, caller domain.Identity, period domain.Period, year, month int) (*domain.RevenueStats, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if year < 1 || year > 9999 {
		return nil, domain.NewValidationError("year", "must be between 1 and 9999")
	}

	w := newRevenueWindow(period, year, month, s.loc, s.now())
	key := fmt.Sprintf("%srevenue:%s:%04d:%02d", reportKeyPrefix, period, year, w.month())

	return readThrough(ctx, s, key, func(ctx context.Context) (*domain.RevenueStats, error) {
		s.logger.Debug("fetching completed orders",
			zap.Time("from", w.start), zap.Time("to", w.end))

		orders, err := s.reports.CompletedOrdersBetween(ctx, w.start, w.end)
		if err != nil {
			return nil, err
		}
		for _, o := range orders {
			w.add(o.CreatedAt, o.TotalAmount)
		}
		return w.stats(), nil
	})
}

// TopProducts ranks products by quantity sold in COMPLETED orders, ties
// broken by revenue. Products without completed sales are omitted.
func (s *DashboardService) TopProducts(ctx context.Context, caller domain.Identity, limit int) ([]domain.TopProduct, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if limit < 1 {
		return nil, domain.NewValidationError("limit", "must be at least 1")
	}
	if limit > MaxTopProducts {
		limit = MaxTopProducts
	}

	key := fmt.Sprintf("%stop:%d", reportKeyPrefix, limit)
	return readThrough(ctx, s, key, func(ctx context.Context) ([]domain.TopProduct, error) {
		products, err := s.reports.TopSellingProducts(ctx, limit)
		if err != nil {
			return nil, err
		}
		if products == nil {
			products = []domain.TopProduct{}
		}
		return products, nil
	})
}

// Stats returns the dashboard headline counters.
func (s *DashboardService) Stats(ctx context.Context, caller domain.Identity) (*domain.DashboardStats, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}

	return readThrough(ctx, s, StatsReportKey, func(ctx context.Context) (*domain.DashboardStats, error) {
		var stats domain.DashboardStats

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			stats.TotalOrders, err = s.reports.CountOrders(gctx)
			return err
		})
		g.Go(func() (err error) {
			stats.TotalUsers, err = s.reports.CountActiveUsers(gctx)
			return err
		})
		g.Go(func() (err error) {
			stats.TotalProducts, err = s.reports.CountActiveProducts(gctx)
			return err
		})
		g.Go(func() (err error) {
			stats.TotalRevenue, err = s.reports.SumRevenue(gctx, domain.OrderStatusCompleted)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return &stats, nil
	})
}

// readThrough serves key from the report cache when present. Cache faults
// are logged and the value is computed from the repository.
func readThrough[T any](ctx context.Context, s *DashboardService, key string, load func(ctx context.Context) (T, error)) (T, error) {
	if s.cache == nil {
		return load(ctx)
	}

	var cached T
	hit, err := s.cache.GetReport(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("read dashboard cache", zap.String("key", key), zap.Error(err))
	} else if hit {
		return cached, nil
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	if err := s.cache.SetReport(ctx, key, value); err != nil {
		s.logger.Warn("write dashboard cache", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}
