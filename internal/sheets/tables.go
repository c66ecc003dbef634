// Package sheets turns a ledger snapshot into the tables written to the
// spreadsheet mirror. Transport lives in sheets/google.
package sheets

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"iptvprofit/internal/core"
)

// Default tab names.
const (
	SalesSheet    = "Sales"
	AdSpendsSheet = "Ad Spends"
	DailySheet    = "Daily"
)

// Table is the full content of one tab, header row first.
type Table struct {
	Sheet string
	Rows  [][]any
}

// MirrorWriter replaces every given tab with its new content.
type MirrorWriter interface {
	ReplaceTables(ctx context.Context, tables []Table) error
}

// Names maps the three tables to tab names. Empty names use the defaults.
type Names struct {
	Sales    string
	AdSpends string
	Daily    string
}

func (n Names) withDefaults() Names {
	if n.Sales == "" {
		n.Sales = SalesSheet
	}
	if n.AdSpends == "" {
		n.AdSpends = AdSpendsSheet
	}
	if n.Daily == "" {
		n.Daily = DailySheet
	}
	return n
}

// mirrorTime is a layout Sheets reads as a date-time with USER_ENTERED.
const mirrorTime = "2006-01-02 15:04:05"

// BuildTables renders sales, ad spends and the report as three tables.
// Sales and ad spends keep the order they are given in. Dates are shown in
// loc; records without a date get an empty cell.
func BuildTables(names Names, sales []core.Sale, ads []core.AdSpend, report core.Report, loc *time.Location) []Table {
	names = names.withDefaults()
	if loc == nil {
		loc = time.Local
	}
	return []Table{
		{Sheet: names.Sales, Rows: SaleRows(sales, loc)},
		{Sheet: names.AdSpends, Rows: AdSpendRows(ads, loc)},
		{Sheet: names.Daily, Rows: DailyRows(report)},
	}
}

func SaleRows(sales []core.Sale, loc *time.Location) [][]any {
	rows := make([][]any, 0, len(sales)+1)
	rows = append(rows, []any{"ID", "Date", "Customer", "Panel", "Sub price", "Panel price", "Profit", "Agent"})
	for _, s := range sales {
		rows = append(rows, []any{
			s.ID,
			cellTime(s.Date, loc),
			s.CustomerID,
			s.Panel,
			cellAmount(s.SubPrice),
			cellAmount(s.PanelPrice),
			cellAmount(s.Profit()),
			s.Agent,
		})
	}
	return rows
}

func AdSpendRows(ads []core.AdSpend, loc *time.Location) [][]any {
	rows := make([][]any, 0, len(ads)+1)
	rows = append(rows, []any{"ID", "Date", "Platform", "Amount"})
	for _, a := range ads {
		rows = append(rows, []any{a.ID, cellTime(a.Date, loc), a.Platform, cellAmount(a.Amount)})
	}
	return rows
}

// DailyRows lists the days most recent first and closes with a totals row
// covering every record, undated ones included.
func DailyRows(report core.Report) [][]any {
	rows := make([][]any, 0, len(report.Days)+2)
	rows = append(rows, []any{"Date", "Revenue", "Cost", "Ads", "Net profit"})
	for _, d := range report.Days {
		rows = append(rows, []any{
			d.Date.String(),
			cellAmount(d.Revenue),
			cellAmount(d.Cost),
			cellAmount(d.Ads),
			cellAmount(d.NetProfit),
		})
	}
	t := report.Totals
	rows = append(rows, []any{
		"Total",
		cellAmount(t.TotalRevenue),
		cellAmount(t.TotalPanelCosts),
		cellAmount(t.TotalAdSpend),
		cellAmount(t.NetProfit),
	})
	return rows
}

func cellTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(mirrorTime)
}

func cellAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
