package core

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// Totals are the global sums over a snapshot of records.
	Totals struct {
		TotalRevenue    decimal.Decimal
		TotalPanelCosts decimal.Decimal
		TotalAdSpend    decimal.Decimal
		NetProfit       decimal.Decimal
	}

	// Day is a calendar day with no time component.
	Day struct {
		Year  int
		Month time.Month
		Day   int
	}

	// DailySummary aggregates every record dated on one Day.
	DailySummary struct {
		Date      Day
		Revenue   decimal.Decimal
		Cost      decimal.Decimal
		Ads       decimal.Decimal
		NetProfit decimal.Decimal
	}

	// Report bundles everything the dashboard shows for one snapshot.
	// Undated counts records that went into Totals but have no usable date
	// and therefore no day bucket.
	Report struct {
		Totals  Totals
		Days    []DailySummary
		Undated int
	}
)

// DayOf truncates t to its calendar day in loc. A nil loc means time.Local.
// The zero time has no day.
func DayOf(t time.Time, loc *time.Location) (Day, bool) {
	if t.IsZero() {
		return Day{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return Day{Year: y, Month: m, Day: d}, true
}

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Day) After(o Day) bool {
	if d.Year != o.Year {
		return d.Year > o.Year
	}
	if d.Month != o.Month {
		return d.Month > o.Month
	}
	return d.Day > o.Day
}

// ComputeSaleProfit is subPrice minus panelPrice, unrounded.
func ComputeSaleProfit(s Sale) decimal.Decimal {
	return s.Profit()
}

// ComputeTotals sums revenue, panel costs and ad spend over the whole
// snapshot. Empty input yields all zeros.
func ComputeTotals(sales []Sale, ads []AdSpend) Totals {
	t := Totals{
		TotalRevenue:    decimal.Zero,
		TotalPanelCosts: decimal.Zero,
		TotalAdSpend:    decimal.Zero,
	}
	for _, s := range sales {
		t.TotalRevenue = t.TotalRevenue.Add(s.SubPrice)
		t.TotalPanelCosts = t.TotalPanelCosts.Add(s.PanelPrice)
	}
	for _, a := range ads {
		t.TotalAdSpend = t.TotalAdSpend.Add(a.Amount)
	}
	t.NetProfit = t.TotalRevenue.Sub(t.TotalPanelCosts).Sub(t.TotalAdSpend)
	return t
}

// ComputeDailySummaries groups sales and ad spends by the calendar day of
// their date in loc, most recent day first. Only days with at least one
// record get an entry. Records without a date are left out.
func ComputeDailySummaries(sales []Sale, ads []AdSpend, loc *time.Location) []DailySummary {
	days, _ := bucketByDay(sales, ads, loc)
	return days
}

// BuildReport computes totals and daily summaries over the same snapshot.
func BuildReport(sales []Sale, ads []AdSpend, loc *time.Location) Report {
	days, undated := bucketByDay(sales, ads, loc)
	return Report{
		Totals:  ComputeTotals(sales, ads),
		Days:    days,
		Undated: undated,
	}
}

func bucketByDay(sales []Sale, ads []AdSpend, loc *time.Location) ([]DailySummary, int) {
	buckets := make(map[Day]*DailySummary)
	undated := 0

	bucket := func(t time.Time) *DailySummary {
		day, ok := DayOf(t, loc)
		if !ok {
			undated++
			return nil
		}
		b, exists := buckets[day]
		if !exists {
			b = &DailySummary{Date: day, Revenue: decimal.Zero, Cost: decimal.Zero, Ads: decimal.Zero}
			buckets[day] = b
		}
		return b
	}

	for _, s := range sales {
		if b := bucket(s.Date); b != nil {
			b.Revenue = b.Revenue.Add(s.SubPrice)
			b.Cost = b.Cost.Add(s.PanelPrice)
		}
	}
	for _, a := range ads {
		if b := bucket(a.Date); b != nil {
			b.Ads = b.Ads.Add(a.Amount)
		}
	}

	out := make([]DailySummary, 0, len(buckets))
	for _, b := range buckets {
		b.NetProfit = b.Revenue.Sub(b.Cost).Sub(b.Ads)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, undated
}
