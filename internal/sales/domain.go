// Package sales aggregates paid orders into the sales report.
package sales

import (
	"strings"
	"time"

	"github.com/kasirku/kasir/internal/platform/httpx"
)

// DateLayout is the wire format of report dates.
const DateLayout = "2006-01-02"

var (
	ErrMissingRange  = httpx.NewError(httpx.ErrValidation, "startDate and endDate are required")
	ErrInvalidDate   = httpx.NewError(httpx.ErrValidation, "dates must be YYYY-MM-DD")
	ErrInvertedRange = httpx.NewError(httpx.ErrValidation, "endDate must not be before startDate")
)

// DailySales is one calendar day of paid orders.
type DailySales struct {
	Date    string `json:"date"`
	Sales   int64  `json:"sales"`
	Revenue int64  `json:"revenue"`
}

// ProductSold is the quantity of one product sold in the range.
type ProductSold struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	TotalSold int64  `json:"total_sold"`
}

// Summary totals the range.
type Summary struct {
	TotalOrders  int64 `json:"totalOrders"`
	TotalRevenue int64 `json:"totalRevenue"`
}

// Report is the GET /orders/sales-report body.
type Report struct {
	DailySales      []DailySales  `json:"dailySales"`
	Summary         Summary       `json:"summary"`
	ProductsSummary []ProductSold `json:"productsSummary"`
}

// Range is an inclusive span of calendar days in loc.
type Range struct {
	Start time.Time
	End   time.Time
	loc   *time.Location
}

// From is the first instant of the range.
func (r Range) From() time.Time {
	return time.Date(r.Start.Year(), r.Start.Month(), r.Start.Day(), 0, 0, 0, 0, r.loc)
}

// Until is the first instant after the range.
func (r Range) Until() time.Time {
	return time.Date(r.End.Year(), r.End.Month(), r.End.Day()+1, 0, 0, 0, 0, r.loc)
}

// Zone names the location day buckets are computed in.
func (r Range) Zone() string {
	return r.loc.String()
}

// ParseRange reads the startDate/endDate pair. RFC3339 timestamps are
// reduced to their calendar day in loc.
func ParseRange(start, end string, loc *time.Location) (Range, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" || end == "" {
		return Range{}, ErrMissingRange
	}
	from, err := parseDay(start, loc)
	if err != nil {
		return Range{}, err
	}
	to, err := parseDay(end, loc)
	if err != nil {
		return Range{}, err
	}
	if to.Before(from) {
		return Range{}, ErrInvertedRange
	}
	return Range{Start: from, End: to, loc: loc}, nil
}

func parseDay(raw string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(DateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}
