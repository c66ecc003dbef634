// Package presenter turns ledger snapshots into display-ready view models:
// every amount rounded to two decimals with the currency suffix, every list
// newest first.
package presenter

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"iptvprofit/internal/core"
	"iptvprofit/internal/services"
)

const (
	ClassProfit = "profit"
	ClassLoss   = "loss"

	dateLayout = "2006-01-02"
	undated    = "undated"
)

type (
	Options struct {
		CurrencySuffix  string
		Location        *time.Location
		PhoneRegion     string
		RefreshInterval time.Duration
	}

	Presenter struct {
		suffix  string
		loc     *time.Location
		region  string
		refresh time.Duration
	}

	Stats struct {
		Revenue    string
		PanelCosts string
		AdSpend    string
		NetProfit  string
		NetClass   string
	}

	SaleRow struct {
		ID          int64
		Date        string
		CustomerID  string
		Panel       string
		PanelClass  string
		Agent       string
		SubPrice    string
		PanelPrice  string
		Profit      string
		ProfitClass string
		WhatsApp    string
	}

	AdSpendRow struct {
		ID       int64
		Date     string
		Platform string
		Amount   string
	}

	DayRow struct {
		Date        string
		Revenue     string
		Cost        string
		Ads         string
		NetProfit   string
		ProfitClass string
	}

	// SaleForm prefills the sale form. Amounts are plain numbers so they can
	// go straight back into an input field.
	SaleForm struct {
		ID         int64
		CustomerID string
		Panel      string
		SubPrice   string
		PanelPrice string
		Agent      string
		Editing    bool
	}

	Dashboard struct {
		Agent          string
		Stats          Stats
		Sales          []SaleRow
		AdSpends       []AdSpendRow
		Days           []DayRow
		Undated        int
		UpdatedAt      string
		RefreshSeconds int
		Error          string
	}
)

func New(opts Options) *Presenter {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	refresh := opts.RefreshInterval
	if refresh <= 0 {
		refresh = 30 * time.Second
	}
	return &Presenter{
		suffix:  strings.TrimSpace(opts.CurrencySuffix),
		loc:     loc,
		region:  strings.ToUpper(strings.TrimSpace(opts.PhoneRegion)),
		refresh: refresh,
	}
}

// RefreshSeconds is the dashboard polling period.
func (p *Presenter) RefreshSeconds() int {
	return int(p.refresh / time.Second)
}

// Money rounds d to two decimals and appends the currency suffix.
func (p *Presenter) Money(d decimal.Decimal) string {
	s := d.StringFixed(2)
	if p.suffix == "" {
		return s
	}
	return s + " " + p.suffix
}

// ProfitClass colours zero as profit.
func ProfitClass(d decimal.Decimal) string {
	if d.IsNegative() {
		return ClassLoss
	}
	return ClassProfit
}

func (p *Presenter) date(t time.Time) string {
	if t.IsZero() {
		return undated
	}
	return t.In(p.loc).Format(dateLayout)
}

func (p *Presenter) Stats(t core.Totals) Stats {
	return Stats{
		Revenue:    p.Money(t.TotalRevenue),
		PanelCosts: p.Money(t.TotalPanelCosts),
		AdSpend:    p.Money(t.TotalAdSpend),
		NetProfit:  p.Money(t.NetProfit),
		NetClass:   ProfitClass(t.NetProfit),
	}
}

func (p *Presenter) Sale(s core.Sale) SaleRow {
	profit := core.ComputeSaleProfit(s)
	return SaleRow{
		ID:          s.ID,
		Date:        p.date(s.Date),
		CustomerID:  s.CustomerID,
		Panel:       s.Panel,
		PanelClass:  badgeClass(s.Panel),
		Agent:       s.Agent,
		SubPrice:    p.Money(s.SubPrice),
		PanelPrice:  p.Money(s.PanelPrice),
		Profit:      p.Money(profit),
		ProfitClass: ProfitClass(profit),
		WhatsApp:    WhatsAppLink(s.CustomerID, p.region),
	}
}

func (p *Presenter) AdSpend(a core.AdSpend) AdSpendRow {
	return AdSpendRow{
		ID:       a.ID,
		Date:     p.date(a.Date),
		Platform: a.Platform,
		Amount:   p.Money(a.Amount),
	}
}

func (p *Presenter) Day(d core.DailySummary) DayRow {
	return DayRow{
		Date:        d.Date.String(),
		Revenue:     p.Money(d.Revenue),
		Cost:        p.Money(d.Cost),
		Ads:         p.Money(d.Ads),
		NetProfit:   p.Money(d.NetProfit),
		ProfitClass: ProfitClass(d.NetProfit),
	}
}

func (p *Presenter) EditForm(s core.Sale) SaleForm {
	return SaleForm{
		ID:         s.ID,
		CustomerID: s.CustomerID,
		Panel:      s.Panel,
		SubPrice:   s.SubPrice.String(),
		PanelPrice: s.PanelPrice.String(),
		Agent:      s.Agent,
		Editing:    true,
	}
}

// Dashboard builds the full page model for agent from snap.
func (p *Presenter) Dashboard(snap services.Snapshot, agent string) Dashboard {
	sales := SortSales(snap.Sales)
	ads := SortAdSpends(snap.AdSpends)

	d := Dashboard{
		Agent:          agent,
		Stats:          p.Stats(snap.Report.Totals),
		Sales:          make([]SaleRow, 0, len(sales)),
		AdSpends:       make([]AdSpendRow, 0, len(ads)),
		Days:           make([]DayRow, 0, len(snap.Report.Days)),
		Undated:        snap.Report.Undated,
		RefreshSeconds: p.RefreshSeconds(),
	}
	if !snap.TakenAt.IsZero() {
		d.UpdatedAt = snap.TakenAt.In(p.loc).Format("15:04:05")
	}
	for _, s := range sales {
		d.Sales = append(d.Sales, p.Sale(s))
	}
	for _, a := range ads {
		d.AdSpends = append(d.AdSpends, p.AdSpend(a))
	}
	for _, day := range snap.Report.Days {
		d.Days = append(d.Days, p.Day(day))
	}
	return d
}

// Unavailable is the dashboard shown when the store cannot be read.
func (p *Presenter) Unavailable(agent, msg string) Dashboard {
	return Dashboard{
		Agent:          agent,
		Stats:          p.Stats(core.Totals{}),
		RefreshSeconds: p.RefreshSeconds(),
		Error:          msg,
	}
}

// SortSales returns a copy of sales, newest first, ties broken by id.
func SortSales(sales []core.Sale) []core.Sale {
	out := append([]core.Sale(nil), sales...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func SortAdSpends(ads []core.AdSpend) []core.AdSpend {
	out := append([]core.AdSpend(nil), ads...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func badgeClass(panel string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(panel) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteByte('-')
		}
	}
	return b.String()
}
