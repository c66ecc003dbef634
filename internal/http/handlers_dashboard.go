package http

import (
	"bytes"
	"net/http"

	"iptvprofit/internal/core"
	"iptvprofit/internal/log"
	"iptvprofit/internal/presenter"
	"iptvprofit/internal/session"
)

type indexView struct {
	Agent          string
	RefreshSeconds int
	SaleForm       presenter.SaleForm
	LoginError     string
}

// renderHTML executes a template into a buffer so a failing template never
// leaves a half-written page.
func (s *Server) renderHTML(r *http.Request, name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentTemplate).ErrorContext(r.Context(),
			"Template execution failed",
			log.FieldOperation, log.OpRender,
			"template", name,
			log.FieldError, err)
		return "", err
	}
	return buf.String(), nil
}

func (s *Server) writeTemplate(w http.ResponseWriter, r *http.Request, name string, data any) {
	html, err := s.renderHTML(r, name, data)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	NewHTMXResponse().BodyHTML(html).Write(w)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	agent := session.Agent(r)
	s.writeTemplate(w, r, "index", indexView{
		Agent:          agent,
		RefreshSeconds: s.presenter.RefreshSeconds(),
		SaleForm:       presenter.SaleForm{Agent: agent},
		LoginError:     r.URL.Query().Get("login"),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/?login=invalid", http.StatusSeeOther)
		return
	}
	if !session.SetAgent(w, r, r.PostForm.Get("agent")) {
		http.Redirect(w, r, "/?login=missing", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	session.Clear(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleDashboard renders the self-refreshing partial. A store failure
// still renders the partial, with an error notice, so polling continues.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	agent := session.Agent(r)
	resp := NewHTMXResponse()

	var view presenter.Dashboard
	snap, err := s.reports.Snapshot(ctx)
	if err != nil {
		logServerError(r, "Dashboard snapshot failed", log.OpReport, err)
		view = s.presenter.Unavailable(agent, publicMessage(err))
		resp.TriggerErrorNotification(publicMessage(err))
	} else {
		s.metrics.ObserveSnapshot(len(snap.Sales), len(snap.AdSpends), snap.Report.Totals.NetProfit)
		view = s.presenter.Dashboard(snap, agent)
	}

	html, err := s.renderHTML(r, "dashboard", view)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	resp.BodyHTML(html).Write(w)
}

func (s *Server) handleSaleForm(w http.ResponseWriter, r *http.Request) {
	s.writeTemplate(w, r, "sale_form", presenter.SaleForm{Agent: session.Agent(r)})
}

func (s *Server) handleEditSaleForm(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		ErrorResponse(statusFor(err), publicMessage(err)).Write(w)
		return
	}

	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()
	sales, err := s.ledger.ListSales(ctx)
	if err != nil {
		ErrorResponse(statusFor(err), publicMessage(err)).Write(w)
		return
	}
	sale, ok := findSale(sales, id)
	if !ok {
		ErrorResponse(http.StatusNotFound, publicMessage(core.ErrNotFound)).Write(w)
		return
	}
	s.writeTemplate(w, r, "sale_form", s.presenter.EditForm(sale))
}

func (s *Server) handleUICreateSale(w http.ResponseWriter, r *http.Request) {
	agent := session.Agent(r)
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		ErrorResponse(http.StatusBadRequest, "invalid request format").Write(w)
		return
	}
	in, err := ParseSaleInput(p, agent)
	if err != nil {
		s.writeUIError(w, r, log.OpCreate, err)
		return
	}

	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()
	sale, err := s.ledger.CreateSale(ctx, in)
	if err != nil {
		s.writeUIError(w, r, log.OpCreate, err)
		return
	}
	s.writeMutationForm(w, r, "sale_form", presenter.SaleForm{Agent: agent},
		"Sale for "+sale.CustomerID+" saved")
}

func (s *Server) handleUIUpdateSale(w http.ResponseWriter, r *http.Request) {
	agent := session.Agent(r)
	id, err := pathID(r)
	if err != nil {
		s.writeUIError(w, r, log.OpUpdate, err)
		return
	}
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		ErrorResponse(http.StatusBadRequest, "invalid request format").Write(w)
		return
	}
	in, err := ParseSaleInput(p, agent)
	if err != nil {
		s.writeUIError(w, r, log.OpUpdate, err)
		return
	}

	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()
	sale, err := s.ledger.UpdateSale(ctx, id, in)
	if err != nil {
		s.writeUIError(w, r, log.OpUpdate, err)
		return
	}
	s.writeMutationForm(w, r, "sale_form", presenter.SaleForm{Agent: agent},
		"Sale for "+sale.CustomerID+" updated")
}

func (s *Server) handleUIDeleteSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeUIError(w, r, log.OpDelete, err)
		return
	}

	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()
	if err := s.ledger.DeleteSale(ctx, id); err != nil {
		s.writeUIError(w, r, log.OpDelete, err)
		return
	}
	NewHTMXResponse().
		TriggerLedgerChanged().
		TriggerSuccessNotification("Transaction deleted").
		Write(w)
}

func (s *Server) handleUICreateAdSpend(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		ErrorResponse(http.StatusBadRequest, "invalid request format").Write(w)
		return
	}
	in, err := ParseAdSpendInput(p)
	if err != nil {
		s.writeUIError(w, r, log.OpCreate, err)
		return
	}

	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()
	ad, err := s.ledger.CreateAdSpend(ctx, in)
	if err != nil {
		s.writeUIError(w, r, log.OpCreate, err)
		return
	}
	s.writeMutationForm(w, r, "ad_spend_form", nil, "Ad spend on "+ad.Platform+" saved")
}

// writeMutationForm answers a successful mutation with a fresh form and
// the events that make the dashboard reload.
func (s *Server) writeMutationForm(w http.ResponseWriter, r *http.Request, name string, data any, msg string) {
	html, err := s.renderHTML(r, name, data)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	NewHTMXResponse().
		TriggerLedgerChanged().
		TriggerFormReset().
		TriggerSuccessNotification(msg).
		BodyHTML(html).
		Write(w)
}

func (s *Server) writeUIError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logServerError(r, "Dashboard mutation failed", op, err)
	}
	ErrorResponse(status, publicMessage(err)).Write(w)
}

func findSale(sales []core.Sale, id int64) (core.Sale, bool) {
	for _, s := range sales {
		if s.ID == id {
			return s, true
		}
	}
	return core.Sale{}, false
}
