package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"iptvprofit/internal/core"
	"iptvprofit/internal/ledger/memory"
	"iptvprofit/internal/log"
	"iptvprofit/internal/metrics"
	"iptvprofit/internal/presenter"
	"iptvprofit/internal/services"
	"iptvprofit/internal/session"
	"iptvprofit/internal/storage"
)

type testEnv struct {
	srv     *Server
	metrics *metrics.Metrics
}

func quietLogger() *log.Logger {
	return log.New(log.Config{Output: io.Discard})
}

func newTestServer(t *testing.T, opts Options) *testEnv {
	t.Helper()
	if opts.Ledger == nil || opts.Reports == nil {
		store := memory.New()
		opts.Ledger = services.NewLedgerService(store)
		opts.Reports = services.NewReportService(store, time.UTC)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.RateLimitPerMinute == 0 {
		opts.RateLimitPerMinute = 1000
	}
	opts.Logger = quietLogger()
	opts.Presenter = presenter.New(presenter.Options{CurrencySuffix: "MAD", Location: time.UTC})

	srv, err := NewServer(":0", opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, metrics: opts.Metrics}
}

func (e *testEnv) do(t *testing.T, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doAs(t *testing.T, agent, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	if agent != "" {
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: url.QueryEscape(agent)})
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	return rec
}

var jsonHeader = map[string]string{"Content-Type": "application/json"}

func TestHealthAndReady(t *testing.T) {
	env := newTestServer(t, Options{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rec.Code)
		}
	}

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if !strings.Contains(rec.Body.String(), `"suspicious_requests":0`) {
		t.Fatalf("unexpected health body: %s", rec.Body.String())
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database is locked") }

func TestReadyReportsStoreFailure(t *testing.T) {
	env := newTestServer(t, Options{Pinger: failingPinger{}})

	rec := env.do(t, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "not_ready") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestIndexShowsLoginUntilAgentIsKnown(t *testing.T) {
	env := newTestServer(t, Options{})

	rec := env.do(t, http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `id="login-overlay"`) {
		t.Fatalf("expected login overlay, status=%d", rec.Code)
	}
	for _, form := range []string{`id="sale-form"`, `id="ad-form"`} {
		if !strings.Contains(rec.Body.String(), form) {
			t.Fatalf("index page is missing %s", form)
		}
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("security headers missing")
	}

	login := env.do(t, http.MethodPost, "/login", "agent=Sara", map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	if login.Code != http.StatusSeeOther {
		t.Fatalf("login status=%d", login.Code)
	}
	cookies := login.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != session.CookieName {
		t.Fatalf("expected agent cookie, got %+v", cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rec, req)
	body := rec.Body.String()
	if strings.Contains(body, `id="login-overlay"`) || !strings.Contains(body, "Sara") {
		t.Fatalf("expected dashboard for Sara")
	}

	logout := env.do(t, http.MethodPost, "/logout", "", nil)
	if logout.Code != http.StatusSeeOther || logout.Result().Cookies()[0].MaxAge >= 0 {
		t.Fatal("logout should expire the cookie")
	}
}

func TestLoginRejectsBlankName(t *testing.T) {
	env := newTestServer(t, Options{})
	rec := env.do(t, http.MethodPost, "/login", "agent=++", map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/?login=missing" {
		t.Fatalf("status=%d location=%q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestTransactionsAPILifecycle(t *testing.T) {
	env := newTestServer(t, Options{})

	rec := env.do(t, http.MethodPost, "/api/transactions",
		`{"date":"2024-01-01T10:00:00.000Z","customerId":"+1 650-253-0000","panel":"Strong","subPrice":100,"panelPrice":"40","agent":"Sara"}`,
		jsonHeader)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rec.Code, rec.Body.String())
	}
	var created map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if string(created["subPrice"]) != "100" || string(created["profit"]) != "60" {
		t.Fatalf("amounts should be bare numbers: %s", rec.Body.String())
	}
	if string(created["date"]) != `"2024-01-01T10:00:00.000Z"` {
		t.Fatalf("date = %s", created["date"])
	}
	var id int64
	_ = json.Unmarshal(created["id"], &id)

	rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/transactions/%d", id),
		`{"date":"2030-01-01T00:00:00Z","customerId":"c2","panel":"Strong","subPrice":120,"panelPrice":40,"agent":"Omar"}`,
		jsonHeader)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"date":"2024-01-01T10:00:00.000Z"`) {
		t.Fatalf("update must not move the sale: %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/transactions", "", nil)
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Fatalf("list = %s (%v)", rec.Body.String(), err)
	}
	if list[0]["agent"] != "Omar" || list[0]["customerId"] != "c2" {
		t.Fatalf("update not applied: %v", list[0])
	}

	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/api/transactions/%d", id), "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/transactions", "", nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %s", rec.Body.String())
	}
}

func TestTransactionsAPIErrors(t *testing.T) {
	env := newTestServer(t, Options{})
	valid := `{"customerId":"c","panel":"p","subPrice":10,"panelPrice":5,"agent":"a"}`

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		field  string
	}{
		{"missing customer", http.MethodPost, "/api/transactions", `{"panel":"p","subPrice":10,"panelPrice":5,"agent":"a"}`, http.StatusBadRequest, "customerId"},
		{"non numeric price", http.MethodPost, "/api/transactions", `{"customerId":"c","panel":"p","subPrice":"ten","panelPrice":5,"agent":"a"}`, http.StatusBadRequest, "subPrice"},
		{"zero price", http.MethodPost, "/api/transactions", `{"customerId":"c","panel":"p","subPrice":0,"panelPrice":5,"agent":"a"}`, http.StatusBadRequest, "subPrice"},
		{"bad date", http.MethodPost, "/api/transactions", `{"date":"yesterday","customerId":"c","panel":"p","subPrice":1,"panelPrice":1,"agent":"a"}`, http.StatusBadRequest, "date"},
		{"malformed json", http.MethodPost, "/api/transactions", `{"customerId":`, http.StatusBadRequest, ""},
		{"update missing", http.MethodPut, "/api/transactions/99", valid, http.StatusNotFound, ""},
		{"delete missing", http.MethodDelete, "/api/transactions/99", "", http.StatusNotFound, ""},
		{"bad id", http.MethodDelete, "/api/transactions/abc", "", http.StatusBadRequest, ""},
		{"ad spend missing platform", http.MethodPost, "/api/ad-spends", `{"amount":5}`, http.StatusBadRequest, "platform"},
		{"ad spend negative", http.MethodPost, "/api/ad-spends", `{"platform":"Meta","amount":-5}`, http.StatusBadRequest, "amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.target, tt.body, jsonHeader)
			if rec.Code != tt.status {
				t.Fatalf("status=%d want %d body=%s", rec.Code, tt.status, rec.Body.String())
			}
			if tt.field == "" {
				return
			}
			var body map[string]string
			_ = json.Unmarshal(rec.Body.Bytes(), &body)
			if body["field"] != tt.field {
				t.Fatalf("field=%q want %q (%s)", body["field"], tt.field, rec.Body.String())
			}
		})
	}
}

func TestOutOfRangeAmountsNeverReachTheStore(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	env := newTestServer(t, Options{
		Ledger:  services.NewLedgerService(repo),
		Reports: services.NewReportService(repo, time.UTC),
	})

	sale := func(sub, panel string) string {
		return fmt.Sprintf(`{"customerId":"c","panel":"p","subPrice":%s,"panelPrice":%s,"agent":"a"}`, sub, panel)
	}
	cases := []struct {
		name, target, body, field string
	}{
		{"huge exponent", "/api/transactions", sale("1e999", "1"), "subPrice"},
		{"tiny exponent", "/api/transactions", sale("1", "1e-400"), "panelPrice"},
		{"beyond float64 precision", "/api/transactions", sale("12345678901234567.89", "1"), "subPrice"},
		{"too many decimals", "/api/transactions", sale("1", "0.123456789012345678"), "panelPrice"},
		{"ad spend huge exponent", "/api/ad-spends", `{"platform":"Meta","amount":1e999}`, "amount"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tc.target, tc.body, jsonHeader)
			var body map[string]string
			_ = json.Unmarshal(rec.Body.Bytes(), &body)
			if rec.Code != http.StatusBadRequest || body["field"] != tc.field {
				t.Fatalf("status=%d body=%s, want 400 on %s", rec.Code, rec.Body.String(), tc.field)
			}
		})
	}

	form := url.Values{"platform": {"Meta"}, "amount": {"1e999"}}
	if rec := env.doAs(t, "Sara", http.MethodPost, "/ui/ad-spends", form); rec.Code != http.StatusBadRequest {
		t.Fatalf("dashboard form status=%d", rec.Code)
	}

	ok := env.do(t, http.MethodPost, "/api/transactions", sale("99999999999.9999", "0.0001"), jsonHeader)
	if ok.Code != http.StatusCreated {
		t.Fatalf("largest allowed amount: status=%d body=%s", ok.Code, ok.Body.String())
	}

	for _, path := range []string{"/api/stats", "/api/report", "/api/transactions"} {
		if rec := env.do(t, http.MethodGet, path, "", nil); rec.Code != http.StatusOK {
			t.Fatalf("%s status=%d after rejected writes", path, rec.Code)
		}
	}
	rec := env.do(t, http.MethodGet, "/api/stats", "", nil)
	if !strings.Contains(rec.Body.String(), `"totalRevenue":99999999999.9999`) {
		t.Fatalf("stats should hold the one stored sale exactly: %s", rec.Body.String())
	}
}

func TestStatsAndDailySummariesAreExact(t *testing.T) {
	env := newTestServer(t, Options{})

	posts := []struct{ target, body string }{
		{"/api/transactions", `{"date":"2024-01-01T10:00:00Z","customerId":"a","panel":"p","subPrice":0.1,"panelPrice":0.05,"agent":"x"}`},
		{"/api/transactions", `{"date":"2024-01-02T10:00:00Z","customerId":"b","panel":"p","subPrice":0.2,"panelPrice":0.05,"agent":"x"}`},
		{"/api/ad-spends", `{"date":"2024-01-01T12:00:00Z","platform":"Meta","amount":"0,15"}`},
	}
	for _, p := range posts {
		if rec := env.do(t, http.MethodPost, p.target, p.body, jsonHeader); rec.Code != http.StatusCreated {
			t.Fatalf("POST %s status=%d body=%s", p.target, rec.Code, rec.Body.String())
		}
	}

	rec := env.do(t, http.MethodGet, "/api/stats", "", nil)
	var stats map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"totalRevenue": "0.3", "totalPanelCosts": "0.1", "totalAdSpend": "0.15", "netProfit": "0.05"}
	for k, v := range want {
		if string(stats[k]) != v {
			t.Errorf("%s = %s, want %s", k, stats[k], v)
		}
	}

	rec = env.do(t, http.MethodGet, "/api/daily-summaries", "", nil)
	var days []map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &days); err != nil || len(days) != 2 {
		t.Fatalf("days = %s", rec.Body.String())
	}
	if string(days[0]["date"]) != `"2024-01-02"` || string(days[1]["netProfit"]) != "-0.1" {
		t.Fatalf("unexpected days: %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/report", "", nil)
	if !strings.Contains(rec.Body.String(), `"undated":0`) {
		t.Fatalf("report = %s", rec.Body.String())
	}
}

type unavailableLedger struct{}

var errDown = fmt.Errorf("list: %w", core.ErrStoreUnavailable)

func (unavailableLedger) ListSales(context.Context) ([]core.Sale, error)       { return nil, errDown }
func (unavailableLedger) ListAdSpends(context.Context) ([]core.AdSpend, error) { return nil, errDown }
func (unavailableLedger) CreateSale(context.Context, core.SaleInput) (core.Sale, error) {
	return core.Sale{}, errDown
}
func (unavailableLedger) UpdateSale(context.Context, int64, core.SaleInput) (core.Sale, error) {
	return core.Sale{}, errDown
}
func (unavailableLedger) DeleteSale(context.Context, int64) error { return errDown }
func (unavailableLedger) CreateAdSpend(context.Context, core.AdSpendInput) (core.AdSpend, error) {
	return core.AdSpend{}, errDown
}

type unavailableReports struct{}

func (unavailableReports) Snapshot(context.Context) (services.Snapshot, error) {
	return services.Snapshot{}, errDown
}

func TestStoreUnavailable(t *testing.T) {
	env := newTestServer(t, Options{Ledger: unavailableLedger{}, Reports: unavailableReports{}})

	for _, path := range []string{"/api/transactions", "/api/ad-spends", "/api/stats", "/api/report"} {
		if rec := env.do(t, http.MethodGet, path, "", nil); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s status=%d", path, rec.Code)
		}
	}

	rec := env.do(t, http.MethodGet, "/ui/dashboard", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard should still render, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "temporarily unavailable") {
		t.Fatalf("dashboard should show the error notice: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("HX-Trigger"), EventShowNotification) {
		t.Fatal("expected an error notification trigger")
	}
}

func TestDashboardFlow(t *testing.T) {
	env := newTestServer(t, Options{})

	rec := env.doAs(t, "Sara", http.MethodPost, "/ui/sales", url.Values{
		"customerId": {"+1 650-253-0000"},
		"panel":      {"Strong 4K"},
		"subPrice":   {"100"},
		"panelPrice": {"40"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create status=%d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("HX-Trigger"), EventLedgerChanged) {
		t.Fatalf("expected %s trigger, got %q", EventLedgerChanged, rec.Header().Get("HX-Trigger"))
	}
	if !strings.Contains(rec.Body.String(), `id="sale-form"`) {
		t.Fatal("expected a fresh sale form")
	}

	rec = env.doAs(t, "Sara", http.MethodPost, "/ui/ad-spends", url.Values{"platform": {"Meta"}, "amount": {"25"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("ad spend status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = env.doAs(t, "Sara", http.MethodGet, "/ui/dashboard", nil)
	body := rec.Body.String()
	for _, want := range []string{
		"100.00 MAD", "60.00 MAD", "35.00 MAD", "Sara", "badge-strong-4k",
		"https://wa.me/16502530000", `every 30s, ledger:changed from:body`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}

	rec = env.doAs(t, "Sara", http.MethodGet, "/ui/sales/1/edit", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `hx-put="/ui/sales/1"`) {
		t.Fatalf("edit form status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = env.doAs(t, "Omar", http.MethodPut, "/ui/sales/1", url.Values{
		"customerId": {"renamed"}, "panel": {"Strong 4K"}, "subPrice": {"90"}, "panelPrice": {"40"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = env.doAs(t, "Sara", http.MethodGet, "/ui/sales/2/edit", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing sale edit status=%d", rec.Code)
	}

	rec = env.doAs(t, "Sara", http.MethodDelete, "/ui/sales/1", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Header().Get("HX-Trigger"), EventLedgerChanged) {
		t.Fatalf("delete status=%d trigger=%q", rec.Code, rec.Header().Get("HX-Trigger"))
	}
	rec = env.doAs(t, "Sara", http.MethodDelete, "/ui/sales/1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status=%d", rec.Code)
	}
}

func TestDashboardRejectsInvalidSale(t *testing.T) {
	env := newTestServer(t, Options{})

	rec := env.doAs(t, "", http.MethodPost, "/ui/sales", url.Values{
		"customerId": {"c"}, "panel": {"p"}, "subPrice": {"10"}, "panelPrice": {"5"},
	})
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "agent") {
		t.Fatalf("expected agent validation error, status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestRateLimitAppliesToMutations(t *testing.T) {
	env := newTestServer(t, Options{RateLimitPerMinute: 1})
	body := `{"platform":"Meta","amount":5}`

	if rec := env.do(t, http.MethodPost, "/api/ad-spends", body, jsonHeader); rec.Code != http.StatusCreated {
		t.Fatalf("first POST status=%d", rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/api/ad-spends", body, jsonHeader)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second POST status=%d", rec.Code)
	}
	for i := 0; i < 3; i++ {
		if rec := env.do(t, http.MethodGet, "/api/stats", "", nil); rec.Code != http.StatusOK {
			t.Fatalf("GET should not be limited, status=%d", rec.Code)
		}
	}

	rec = env.do(t, http.MethodGet, "/metrics", "", nil)
	if !strings.Contains(rec.Body.String(), "iptvprofit_rate_limited_requests_total 1") {
		t.Fatal("rate limited counter missing from /metrics")
	}
	if !strings.Contains(rec.Body.String(), `path="GET /api/stats"`) {
		t.Fatal("request counter should be labelled by route pattern")
	}
}

func TestStaticAssets(t *testing.T) {
	env := newTestServer(t, Options{})
	rec := env.do(t, http.MethodGet, "/static/app.css", "", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Cache-Control") == "" {
		t.Fatalf("static status=%d cache=%q", rec.Code, rec.Header().Get("Cache-Control"))
	}
}

func TestRenderFailureIsLoggedAsRender(t *testing.T) {
	env := newTestServer(t, Options{})
	var buf bytes.Buffer
	logger := log.New(log.Config{Level: slog.LevelDebug, Component: "test", Output: &buf})
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(log.NewContext(r.Context(), logger))

	if _, err := env.srv.renderHTML(r, "no_such_template", nil); err == nil {
		t.Fatal("expected an error for an unknown template")
	}
	out := buf.String()
	for _, want := range []string{"operation=render", "component=template", "template=no_such_template"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in log output: %s", want, out)
		}
	}
}
