package domain

import "github.com/shopspring/decimal"

// RevenueSeriesLabel names the single dataset of a revenue chart.
const RevenueSeriesLabel = "Doanh thu"

type Period string

const (
	PeriodYear  Period = "year"
	PeriodMonth Period = "month"
)

// RevenueStats is chart-ready: Labels and every dataset's Data are aligned.
type RevenueStats struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

type Dataset struct {
	Label string            `json:"label"`
	Data  []decimal.Decimal `json:"data"`
}

type TopProduct struct {
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int64           `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type DashboardStats struct {
	TotalOrders   int64           `json:"totalOrders"`
	TotalUsers    int64           `json:"totalUsers"`
	TotalProducts int64           `json:"totalProducts"`
	TotalRevenue  decimal.Decimal `json:"totalRevenue"`
}
