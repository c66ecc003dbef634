package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"iptvprofit/internal/core"
	"iptvprofit/internal/log"
)

// amount marshals as a bare JSON number with every stored digit.
type amount decimal.Decimal

func (a amount) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(a).String()), nil
}

type saleDTO struct {
	ID         int64  `json:"id"`
	Date       string `json:"date"`
	CustomerID string `json:"customerId"`
	Panel      string `json:"panel"`
	SubPrice   amount `json:"subPrice"`
	PanelPrice amount `json:"panelPrice"`
	Agent      string `json:"agent"`
	Profit     amount `json:"profit"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

type adSpendDTO struct {
	ID        int64  `json:"id"`
	Date      string `json:"date"`
	Platform  string `json:"platform"`
	Amount    amount `json:"amount"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type totalsDTO struct {
	TotalRevenue    amount `json:"totalRevenue"`
	TotalPanelCosts amount `json:"totalPanelCosts"`
	TotalAdSpend    amount `json:"totalAdSpend"`
	NetProfit       amount `json:"netProfit"`
}

type dailySummaryDTO struct {
	Date      string `json:"date"`
	Revenue   amount `json:"revenue"`
	Cost      amount `json:"cost"`
	Ads       amount `json:"ads"`
	NetProfit amount `json:"netProfit"`
}

type reportDTO struct {
	Totals  totalsDTO         `json:"totals"`
	Days    []dailySummaryDTO `json:"days"`
	Undated int               `json:"undated"`
}

func wireDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return core.FormatDate(t)
}

func toSaleDTO(s core.Sale) saleDTO {
	return saleDTO{
		ID:         s.ID,
		Date:       wireDate(s.Date),
		CustomerID: s.CustomerID,
		Panel:      s.Panel,
		SubPrice:   amount(s.SubPrice),
		PanelPrice: amount(s.PanelPrice),
		Agent:      s.Agent,
		Profit:     amount(core.ComputeSaleProfit(s)),
		CreatedAt:  wireDate(s.CreatedAt),
	}
}

func toAdSpendDTO(a core.AdSpend) adSpendDTO {
	return adSpendDTO{
		ID:        a.ID,
		Date:      wireDate(a.Date),
		Platform:  a.Platform,
		Amount:    amount(a.Amount),
		CreatedAt: wireDate(a.CreatedAt),
	}
}

func toTotalsDTO(t core.Totals) totalsDTO {
	return totalsDTO{
		TotalRevenue:    amount(t.TotalRevenue),
		TotalPanelCosts: amount(t.TotalPanelCosts),
		TotalAdSpend:    amount(t.TotalAdSpend),
		NetProfit:       amount(t.NetProfit),
	}
}

func toDailySummaryDTOs(days []core.DailySummary) []dailySummaryDTO {
	out := make([]dailySummaryDTO, 0, len(days))
	for _, d := range days {
		out = append(out, dailySummaryDTO{
			Date:      d.Date.String(),
			Revenue:   amount(d.Revenue),
			Cost:      amount(d.Cost),
			Ads:       amount(d.Ads),
			NetProfit: amount(d.NetProfit),
		})
	}
	return out
}

// writeAPIError logs err and answers with the mapped status.
func (s *Server) writeAPIError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logServerError(r, "API request failed", op, err)
	} else {
		log.FromContext(r.Context()).DebugContext(r.Context(), "API request rejected",
			log.FieldOperation, op, log.FieldError, err)
	}

	var ve *core.ValidationError
	field := ""
	if errors.As(err, &ve) {
		field = ve.Field
	}
	writeJSONError(w, status, publicMessage(err), field)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	sales, err := s.ledger.ListSales(ctx)
	if err != nil {
		s.writeAPIError(w, r, log.OpList, err)
		return
	}
	out := make([]saleDTO, 0, len(sales))
	for _, sale := range sales {
		out = append(out, toSaleDTO(sale))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body", "")
		return
	}
	in, err := ParseSaleInput(p, "")
	if err != nil {
		s.writeAPIError(w, r, log.OpCreate, err)
		return
	}

	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()
	sale, err := s.ledger.CreateSale(ctx, in)
	if err != nil {
		s.writeAPIError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSaleDTO(sale))
}

// handleUpdateTransaction overwrites the mutable fields. A date in the body
// is ignored.
func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeAPIError(w, r, log.OpUpdate, err)
		return
	}
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body", "")
		return
	}
	in, err := ParseSaleInput(p, "")
	if err != nil {
		s.writeAPIError(w, r, log.OpUpdate, err)
		return
	}

	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()
	sale, err := s.ledger.UpdateSale(ctx, id, in)
	if err != nil {
		s.writeAPIError(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, toSaleDTO(sale))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeAPIError(w, r, log.OpDelete, err)
		return
	}

	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()
	if err := s.ledger.DeleteSale(ctx, id); err != nil {
		s.writeAPIError(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAdSpends(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	ads, err := s.ledger.ListAdSpends(ctx)
	if err != nil {
		s.writeAPIError(w, r, log.OpList, err)
		return
	}
	out := make([]adSpendDTO, 0, len(ads))
	for _, a := range ads {
		out = append(out, toAdSpendDTO(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateAdSpend(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body", "")
		return
	}
	in, err := ParseAdSpendInput(p)
	if err != nil {
		s.writeAPIError(w, r, log.OpCreate, err)
		return
	}

	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()
	ad, err := s.ledger.CreateAdSpend(ctx, in)
	if err != nil {
		s.writeAPIError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAdSpendDTO(ad))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	snap, err := s.reports.Snapshot(ctx)
	if err != nil {
		s.writeAPIError(w, r, log.OpReport, err)
		return
	}
	writeJSON(w, http.StatusOK, toTotalsDTO(snap.Report.Totals))
}

func (s *Server) handleDailySummaries(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	snap, err := s.reports.Snapshot(ctx)
	if err != nil {
		s.writeAPIError(w, r, log.OpReport, err)
		return
	}
	writeJSON(w, http.StatusOK, toDailySummaryDTOs(snap.Report.Days))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	snap, err := s.reports.Snapshot(ctx)
	if err != nil {
		s.writeAPIError(w, r, log.OpReport, err)
		return
	}
	s.metrics.ObserveSnapshot(len(snap.Sales), len(snap.AdSpends), snap.Report.Totals.NetProfit)
	writeJSON(w, http.StatusOK, reportDTO{
		Totals:  toTotalsDTO(snap.Report.Totals),
		Days:    toDailySummaryDTOs(snap.Report.Days),
		Undated: snap.Report.Undated,
	})
}
