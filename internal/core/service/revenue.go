package service

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polyshop/backoffice/internal/core/domain"
)

const (
	dayLabelLayout   = "02/01"
	monthLabelLayout = "01/2006"
)

// revenueWindow is a calendar period split into labelled buckets. Every
// bucket exists before accumulation starts.
type revenueWindow struct {
	period domain.Period
	start  time.Time
	end    time.Time // exclusive
	layout string
	labels []string
	index  map[string]int
	sums   []decimal.Decimal
}

// ParsePeriod maps the request parameter to a period; anything other than
// "month" is treated as a year.
func ParsePeriod(raw string) domain.Period {
	if strings.EqualFold(strings.TrimSpace(raw), string(domain.PeriodMonth)) {
		return domain.PeriodMonth
	}
	return domain.PeriodYear
}

// newRevenueWindow builds the buckets for the period. In month mode an
// out-of-range month falls back to the current month.
func newRevenueWindow(period domain.Period, year, month int, loc *time.Location, now time.Time) *revenueWindow {
	w := &revenueWindow{period: period}

	var step func(time.Time) time.Time
	if period == domain.PeriodMonth {
		if month < 1 || month > 12 {
			month = int(now.In(loc).Month())
		}
		w.start = time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
		w.end = w.start.AddDate(0, 1, 0)
		w.layout = dayLabelLayout
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
	} else {
		w.start = time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
		w.end = w.start.AddDate(1, 0, 0)
		w.layout = monthLabelLayout
		step = func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
	}

	w.index = make(map[string]int)
	for t := w.start; t.Before(w.end); t = step(t) {
		label := t.Format(w.layout)
		w.index[label] = len(w.labels)
		w.labels = append(w.labels, label)
		w.sums = append(w.sums, decimal.Zero)
	}
	return w
}

// month is the resolved month of a month window, 0 for a year window.
func (w *revenueWindow) month() int {
	if w.period != domain.PeriodMonth {
		return 0
	}
	return int(w.start.Month())
}

func (w *revenueWindow) label(t time.Time) string {
	return t.In(w.start.Location()).Format(w.layout)
}

// add accumulates an amount into the bucket covering t. Instants outside the
// window are ignored.
func (w *revenueWindow) add(t time.Time, amount decimal.Decimal) {
	i, ok := w.index[w.label(t)]
	if !ok || t.Before(w.start) || !t.Before(w.end) {
		return
	}
	w.sums[i] = w.sums[i].Add(amount)
}

func (w *revenueWindow) stats() *domain.RevenueStats {
	data := make([]decimal.Decimal, len(w.sums))
	copy(data, w.sums)
	return &domain.RevenueStats{
		Labels:   append([]string(nil), w.labels...),
		Datasets: []domain.Dataset{{Label: domain.RevenueSeriesLabel, Data: data}},
	}
}
