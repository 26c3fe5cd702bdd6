package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

type fixedRate float64

func (f fixedRate) Rate(context.Context) (float64, bool) { return float64(f), f > 0 }

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func quietLogger() *log.Logger {
	return log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
}

func newTestServer(t *testing.T, ready map[string]Pinger) *Server {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "api.db"), storage.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	now := time.Date(2024, 2, 15, 12, 0, 0, 0, time.UTC)
	finance := services.NewFinanceService(repo, fixedRate(30), nil,
		services.WithLocation(time.UTC),
		services.WithClock(func() time.Time { return now }),
		services.WithLogger(quietLogger()),
	)
	if ready == nil {
		ready = map[string]Pinger{"database": repo}
	}
	srv := NewServer(":0", finance, Options{RateLimitPerMinute: 1000, Logger: quietLogger(), Ready: ready})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, target, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body)
		}
	}
	rr := do(t, srv, http.MethodGet, "/healthz", "", "")
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" || rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing middleware headers: %v", rr.Header())
	}

	down := newTestServer(t, map[string]Pinger{"broker": failingPinger{}})
	rr = do(t, down, http.MethodGet, "/readyz", "", "")
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "connection refused") {
		t.Fatalf("readyz = %d %s", rr.Code, rr.Body)
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		target string
		user   string
		body   string
		want   int
	}{
		{"missing user", http.MethodGet, "/api/dashboard", "", "", http.StatusUnauthorized},
		{"bad month", http.MethodGet, "/api/dashboard?month=2024-13", "u1", "", http.StatusBadRequest},
		{"bad currency", http.MethodGet, "/api/expenses?currency=EUR", "u1", "", http.StatusBadRequest},
		{"bad status", http.MethodGet, "/api/incomes?status=maybe", "u1", "", http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/api/activity?limit=0", "u1", "", http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/api/incomes", "u1", "{", http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/incomes", "u1", `{"titel":"x"}`, http.StatusBadRequest},
		{"validation", http.MethodPost, "/api/incomes", "u1", `{"title":"S","amount":1,"currency":"USD","category":"c","status":"received","date":"2024-02-01"}`, http.StatusUnprocessableEntity},
		{"not found", http.MethodDelete, "/api/expenses/nope", "u1", "", http.StatusNotFound},
		{"history not found", http.MethodGet, "/api/debts/nope/history", "u1", "", http.StatusNotFound},
		{"wrong method", http.MethodPatch, "/api/incomes", "u1", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, tt.method, tt.target, tt.user, tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.want, rr.Body)
			}
			if tt.want != http.StatusMethodNotAllowed && decode[errorBody](t, rr).Error == "" {
				t.Fatal("error body missing")
			}
		})
	}
}

func TestIncomeFlow(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := do(t, srv, http.MethodPost, "/api/incomes", "u1",
		`{"title":"Salary","amount":1500,"currency":"USD","category":"job","status":"expected","date":"2024-02-01"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body)
	}
	created := decode[core.Income](t, rr)

	rr = do(t, srv, http.MethodPut, "/api/incomes/"+created.ID+"/amount", "u1", `{"amount":1200}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing note status=%d", rr.Code)
	}
	rr = do(t, srv, http.MethodPut, "/api/incomes/"+created.ID+"/amount", "u1", `{"amount":1200,"note":"Fewer hours"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body)
	}

	rr = do(t, srv, http.MethodGet, "/api/incomes/"+created.ID+"/history", "u1", "")
	view := decode[services.HistoryView](t, rr)
	if len(view.Entries) != 2 || view.Entries[1].DeltaDisplay != "-$300" {
		t.Fatalf("history = %+v", view.Entries)
	}

	rr = do(t, srv, http.MethodGet, "/api/incomes?month=2024-02&status=expected", "u1", "")
	overview := decode[services.IncomeOverview](t, rr)
	if len(overview.Items) != 1 || overview.TotalExpected.Amount != 1200 {
		t.Fatalf("overview = %+v", overview)
	}

	// another user cannot see or delete it
	rr = do(t, srv, http.MethodDelete, "/api/incomes/"+created.ID, "u2", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("cross-user delete status=%d", rr.Code)
	}
	rr = do(t, srv, http.MethodDelete, "/api/incomes/"+created.ID, "u1", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rr.Code)
	}
}

func TestDebtFlowAndDashboard(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := do(t, srv, http.MethodPost, "/api/debts", "u1",
		`{"title":"Car loan","creditor":"Bank","amount":1000,"currency":"USD","due_date":"2024-02-20","type":"long"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create debt status=%d body=%s", rr.Code, rr.Body)
	}
	debt := decode[core.Debt](t, rr)

	rr = do(t, srv, http.MethodPost, "/api/debts/"+debt.ID+"/payments", "u1", `{"amount":2000}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("overpayment status=%d", rr.Code)
	}
	rr = do(t, srv, http.MethodPost, "/api/debts/"+debt.ID+"/payments", "u1", `{"amount":400}`)
	if got := decode[core.Debt](t, rr); got.Amount != 600 || got.Status != core.DebtPending {
		t.Fatalf("after payment = %+v", got)
	}

	rr = do(t, srv, http.MethodPost, "/api/expenses", "u1",
		`{"title":"Groceries","category":"food","amount":3000,"currency":"TRY","date":"2024-02-03","status":"paid","type":"variable"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create expense status=%d body=%s", rr.Code, rr.Body)
	}
	rr = do(t, srv, http.MethodPost, "/api/assets", "u1",
		`{"type":"silver","quantity":10,"unit":"oz","price_per_unit":25,"currency":"USD"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create asset status=%d body=%s", rr.Code, rr.Body)
	}

	rr = do(t, srv, http.MethodGet, "/api/dashboard?month=2024-02&currency=USD", "u1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("dashboard status=%d body=%s", rr.Code, rr.Body)
	}
	d := decode[services.Dashboard](t, rr)
	if d.Expenses.Amount != 100 || d.Debt.Amount != 600 || d.Assets.Amount != 250 || d.NetWorth.Display != "$-350" {
		t.Fatalf("dashboard = %+v", d)
	}
	if len(d.RecentActivity) != 4 || d.RecentActivity[0].Description != "Created new asset: silver (10 oz)" {
		t.Fatalf("activity = %+v", d.RecentActivity)
	}

	rr = do(t, srv, http.MethodGet, "/api/debts/"+debt.ID+"/history", "u1", "")
	view := decode[services.HistoryView](t, rr)
	if len(view.Entries) != 2 || view.Entries[1].Kind != core.ChangePayment {
		t.Fatalf("history = %+v", view.Entries)
	}

	rr = do(t, srv, http.MethodGet, "/api/activity?limit=2", "u1", "")
	if items := decode[[]core.Activity](t, rr); len(items) != 2 {
		t.Fatalf("activity limit = %d", len(items))
	}
}

func TestSettingsAndMonths(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := do(t, srv, http.MethodGet, "/api/settings", "u1", "")
	if s := decode[core.Settings](t, rr); s.DefaultCurrency != core.USD || s.SelectedMonth != core.AllMonths {
		t.Fatalf("default settings = %+v", s)
	}

	rr = do(t, srv, http.MethodPut, "/api/settings", "u1", `{"default_currency":"TRY","selected_month":"2024-01"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("save status=%d body=%s", rr.Code, rr.Body)
	}
	rr = do(t, srv, http.MethodPut, "/api/settings", "u1", `{"default_currency":"GBP","selected_month":"all"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid currency status=%d", rr.Code)
	}

	// stored preferences apply when the query leaves them out
	rr = do(t, srv, http.MethodGet, "/api/assets", "u1", "")
	if o := decode[services.AssetOverview](t, rr); o.Currency != core.TRY || o.Month != "2024-01" {
		t.Fatalf("preferences = %s %s", o.Currency, o.Month)
	}

	rr = do(t, srv, http.MethodGet, "/api/months", "", "")
	opts := decode[[]core.MonthOption](t, rr)
	if len(opts) != core.DefaultMonthOptions+1 || opts[1].Value != "2024-02" {
		t.Fatalf("months = %d, first = %v", len(opts), opts[1])
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, nil)
	limited := NewServer(":0", srv.finance, Options{RateLimitPerMinute: 2, Logger: quietLogger()})
	t.Cleanup(func() { _ = limited.Shutdown(context.Background()) })

	var codes []int
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, limited, http.MethodGet, "/healthz", "", "").Code)
	}
	if fmt.Sprint(codes) != fmt.Sprint([]int{200, 200, 429}) {
		t.Fatalf("codes = %v", codes)
	}
}

func TestEditRoutes(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := do(t, srv, http.MethodPost, "/api/incomes", "u1",
		`{"title":"Salary","amount":1500,"currency":"USD","category":"job","status":"expected","date":"2024-02-01"}`)
	income := decode[core.Income](t, rr)
	rr = do(t, srv, http.MethodPut, "/api/incomes/"+income.ID, "u1",
		`{"title":"Salary","amount":1300,"currency":"USD","category":"job","status":"expected","date":"2024-02-01"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("income edit without note status=%d", rr.Code)
	}
	rr = do(t, srv, http.MethodPut, "/api/incomes/"+income.ID, "u1",
		`{"title":"Main salary","amount":1300,"currency":"USD","category":"job","status":"expected","date":"2024-02-05","note":"Fewer hours"}`)
	if got := decode[core.Income](t, rr); rr.Code != http.StatusOK || got.Title != "Main salary" || got.Amount != 1300 {
		t.Fatalf("income edit = %d %+v", rr.Code, got)
	}
	rr = do(t, srv, http.MethodGet, "/api/incomes/"+income.ID+"/history", "u1", "")
	if view := decode[services.HistoryView](t, rr); len(view.Entries) != 2 {
		t.Fatalf("income history = %+v", view.Entries)
	}

	rr = do(t, srv, http.MethodPost, "/api/expenses", "u1",
		`{"title":"Rent","category":"home","amount":900,"currency":"USD","date":"2024-02-01","status":"pending","type":"fixed"}`)
	expense := decode[core.Expense](t, rr)
	rr = do(t, srv, http.MethodPut, "/api/expenses/"+expense.ID, "u1",
		`{"title":"Rent","category":"home","amount":950,"currency":"USD","date":"2024-02-01","status":"paid","type":"fixed"}`)
	if got := decode[core.Expense](t, rr); rr.Code != http.StatusOK || got.Amount != 950 || got.Status != core.ExpensePaid {
		t.Fatalf("expense edit = %d %+v", rr.Code, got)
	}
	rr = do(t, srv, http.MethodPut, "/api/expenses/"+expense.ID, "u2",
		`{"title":"Rent","category":"home","amount":950,"currency":"USD","date":"2024-02-01","status":"paid","type":"fixed"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("cross-user expense edit status=%d", rr.Code)
	}

	rr = do(t, srv, http.MethodPost, "/api/debts", "u1",
		`{"title":"Car loan","creditor":"Bank","amount":1000,"currency":"USD","type":"long"}`)
	debt := decode[core.Debt](t, rr)
	rr = do(t, srv, http.MethodPut, "/api/debts/"+debt.ID, "u1",
		`{"title":"Car loan","creditor":"Bank","amount":0,"currency":"USD","due_date":"","type":"long","note":"Final payment"}`)
	if got := decode[core.Debt](t, rr); rr.Code != http.StatusOK || got.Amount != 0 || got.Status != core.DebtPaid || got.DueDate != nil {
		t.Fatalf("debt edit = %d %+v", rr.Code, got)
	}
	rr = do(t, srv, http.MethodGet, "/api/activity?limit=1", "u1", "")
	if items := decode[[]core.Activity](t, rr); len(items) != 1 || items[0].Action != core.ActionPayment {
		t.Fatalf("activity after payoff = %+v", items)
	}

	rr = do(t, srv, http.MethodPost, "/api/assets", "u1",
		`{"type":"silver","quantity":10,"unit":"oz","price_per_unit":25,"currency":"USD"}`)
	asset := decode[core.Asset](t, rr)
	rr = do(t, srv, http.MethodPut, "/api/assets/"+asset.ID, "u1",
		`{"type":"silver","quantity":12,"unit":"oz","price_per_unit":25,"currency":"USD"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("asset edit status=%d body=%s", rr.Code, rr.Body)
	}
	rr = do(t, srv, http.MethodGet, "/api/assets/"+asset.ID+"?currency=USD", "u1", "")
	if row := decode[services.AssetRow](t, rr); rr.Code != http.StatusOK || row.Quantity != 12 || row.Value.Amount != 300 || row.LivePrice {
		t.Fatalf("asset row = %d %+v", rr.Code, row)
	}
	rr = do(t, srv, http.MethodGet, "/api/assets/nope", "u1", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing asset status=%d", rr.Code)
	}
}

func TestTrustedProxiesKeyRateLimitByForwardedClient(t *testing.T) {
	srv := newTestServer(t, nil)

	send := func(s *Server, clientIP string) int {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("X-Forwarded-For", clientIP)
		rr := httptest.NewRecorder()
		s.Handler.ServeHTTP(rr, req)
		return rr.Code
	}

	// httptest requests arrive from 192.0.2.1
	proxied := NewServer(":0", srv.finance, Options{
		RateLimitPerMinute: 1,
		Logger:             quietLogger(),
		TrustedProxies:     []string{"not-a-cidr", "192.0.2.0/24"},
	})
	t.Cleanup(func() { _ = proxied.Shutdown(context.Background()) })
	if a, b := send(proxied, "203.0.113.7"), send(proxied, "203.0.113.8"); a != http.StatusOK || b != http.StatusOK {
		t.Fatalf("distinct forwarded clients = %d %d", a, b)
	}

	direct := NewServer(":0", srv.finance, Options{RateLimitPerMinute: 1, Logger: quietLogger()})
	t.Cleanup(func() { _ = direct.Shutdown(context.Background()) })
	if a, b := send(direct, "203.0.113.7"), send(direct, "203.0.113.8"); a != http.StatusOK || b != http.StatusTooManyRequests {
		t.Fatalf("untrusted peer = %d %d", a, b)
	}
}

func TestOperationFor(t *testing.T) {
	tests := map[string]string{
		http.MethodGet:    log.OpRead,
		http.MethodPost:   log.OpCreate,
		http.MethodPut:    log.OpUpdate,
		http.MethodDelete: log.OpDelete,
	}
	for method, want := range tests {
		if got := operationFor(method); got != want {
			t.Errorf("operationFor(%s) = %s, want %s", method, got, want)
		}
	}
}
