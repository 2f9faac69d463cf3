package reports

import (
	"context"
	"fmt"
	"time"
)

// Repository exposes the read-only aggregate queries behind the dashboard and reports.
// Windows are half-open: [from, to).
type Repository interface {
	SalesSummary(ctx context.Context, from, to time.Time) (SalesSummary, error)
	LowStockCount(ctx context.Context) (int, error)
	ExpiringProducts(ctx context.Context, before time.Time) ([]ExpiringProduct, error)
	TopProducts(ctx context.Context, from, to time.Time, limit int) ([]TopProduct, error)
	RecentSales(ctx context.Context, limit int) ([]RecentSale, error)
	SalesSeries(ctx context.Context, from, to time.Time, granularity Granularity) ([]SeriesPoint, error)
	FrequentCustomers(ctx context.Context, from, to time.Time, limit int) ([]CustomerRank, error)
	PurchasesBySupplier(ctx context.Context, from, to time.Time) ([]SupplierTotal, error)
}

// maxReportRange bounds SalesReport windows.
const maxReportRange = 366 * 24 * time.Hour

// Service coordinates report queries with the cache layer.
type Service struct {
	repo  Repository
	cache *Cache
	loc   *time.Location
	now   func() time.Time
}

// NewService wires a Repository with a Cache helper. Day and month boundaries are taken in loc.
func NewService(repo Repository, cache *Cache, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{repo: repo, cache: cache, loc: loc, now: time.Now}
}

// Dashboard returns today's and this month's sales, stock alerts, the month's best sellers and
// the latest sales.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	now := s.now().In(s.loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	key, err := s.cache.BuildKey(ctx, "reports", "dashboard", day.Format("2006-01-02"))
	if err != nil {
		return Dashboard{}, err
	}
	var out Dashboard
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.buildDashboard(ctx, now, day)
	})
	return out, err
}

func (s *Service) buildDashboard(ctx context.Context, now, day time.Time) (Dashboard, error) {
	month := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, s.loc)
	nextMonth := month.AddDate(0, 1, 0)

	d := Dashboard{GeneratedAt: now}
	var err error
	if d.Today, err = s.repo.SalesSummary(ctx, day, day.AddDate(0, 0, 1)); err != nil {
		return Dashboard{}, fmt.Errorf("reports: today summary: %w", err)
	}
	if d.Month, err = s.repo.SalesSummary(ctx, month, nextMonth); err != nil {
		return Dashboard{}, fmt.Errorf("reports: month summary: %w", err)
	}
	if d.LowStockCount, err = s.repo.LowStockCount(ctx); err != nil {
		return Dashboard{}, fmt.Errorf("reports: low stock: %w", err)
	}
	if d.ExpiringSoon, err = s.repo.ExpiringProducts(ctx, day.Add(ExpiringWindow)); err != nil {
		return Dashboard{}, fmt.Errorf("reports: expiring products: %w", err)
	}
	if d.TopProducts, err = s.repo.TopProducts(ctx, month, nextMonth, TopProductsLimit); err != nil {
		return Dashboard{}, fmt.Errorf("reports: top products: %w", err)
	}
	if d.RecentSales, err = s.repo.RecentSales(ctx, RecentSalesLimit); err != nil {
		return Dashboard{}, fmt.Errorf("reports: recent sales: %w", err)
	}
	return d, nil
}

// SalesReport returns the sales series plus product, customer and supplier rankings for the
// window.
func (s *Service) SalesReport(ctx context.Context, filter SalesReportFilter) (SalesReport, error) {
	if filter.Granularity == "" {
		filter.Granularity = Daily
	}
	if filter.Granularity != Daily && filter.Granularity != Monthly {
		return SalesReport{}, fmt.Errorf("reports: unknown granularity %q: %w", filter.Granularity, ErrInvalidRange)
	}
	if !filter.To.After(filter.From) || filter.To.Sub(filter.From) > maxReportRange {
		return SalesReport{}, ErrInvalidRange
	}
	key, err := s.cache.BuildKey(ctx, "reports", "sales", string(filter.Granularity),
		filter.From.Format("2006-01-02"), filter.To.Format("2006-01-02"))
	if err != nil {
		return SalesReport{}, err
	}
	var out SalesReport
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		report := SalesReport{From: filter.From, To: filter.To, Granularity: filter.Granularity}
		var err error
		if report.Series, err = s.repo.SalesSeries(ctx, filter.From, filter.To, filter.Granularity); err != nil {
			return nil, fmt.Errorf("reports: series: %w", err)
		}
		if report.TopProducts, err = s.repo.TopProducts(ctx, filter.From, filter.To, 10); err != nil {
			return nil, fmt.Errorf("reports: top products: %w", err)
		}
		if report.FrequentCustomers, err = s.repo.FrequentCustomers(ctx, filter.From, filter.To, 10); err != nil {
			return nil, fmt.Errorf("reports: frequent customers: %w", err)
		}
		if report.PurchasesBySupplier, err = s.repo.PurchasesBySupplier(ctx, filter.From, filter.To); err != nil {
			return nil, fmt.Errorf("reports: purchases by supplier: %w", err)
		}
		return report, nil
	})
	return out, err
}
