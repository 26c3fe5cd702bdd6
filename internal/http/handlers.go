package http

import (
	"context"
	"net/http"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

const maxActivityLimit = 50

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady pings every configured dependency.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := make(map[string]string, len(s.ready)+1)
	for name, p := range s.ready {
		if err := p.Ping(ctx); err != nil {
			checks[name] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	limits := s.limiter.GetMetrics()
	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
		"rate_limiter": map[string]int64{
			"active_clients": limits.ClientCount,
			"hits":           limits.TotalHits,
		},
		"requests":            s.tracer.GetMetrics().TotalRequests,
		"suspicious_requests": s.detector.GetMetrics().SuspiciousRequests,
	})
}

// userAndPrefs is the common prologue of read handlers.
func (s *Server) userAndPrefs(r *http.Request) (string, services.Preferences, error) {
	user, err := userID(r)
	if err != nil {
		return "", services.Preferences{}, err
	}
	prefs, err := s.preferences(r, user)
	return user, prefs, err
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user, prefs, err := s.userAndPrefs(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.finance.Dashboard(r.Context(), user, prefs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleMonths(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.finance.Months())
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryLimit(r, services.RecentActivityLimit, maxActivityLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := s.finance.RecentActivity(r.Context(), user, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []core.Activity{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	settings, err := s.finance.Settings(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type settingsRequest struct {
	DefaultCurrency core.Currency      `json:"default_currency"`
	SelectedMonth   core.MonthSelector `json:"selected_month"`
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req settingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.finance.SaveSettings(r.Context(), core.Settings{
		UserID:          user,
		DefaultCurrency: req.DefaultCurrency,
		SelectedMonth:   req.SelectedMonth,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleListIncomes(w http.ResponseWriter, r *http.Request) {
	user, prefs, err := s.userAndPrefs(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := r.URL.Query().Get("status")
	switch status {
	case "", "all", string(core.IncomeExpected), string(core.IncomeReceived):
	default:
		writeError(w, r, badRequest(core.ErrInvalidStatus))
		return
	}
	overview, err := s.finance.Incomes(r.Context(), user, prefs, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

type incomeRequest struct {
	Title    string            `json:"title"`
	Amount   float64           `json:"amount"`
	Currency core.Currency     `json:"currency"`
	Category string            `json:"category"`
	Status   core.IncomeStatus `json:"status"`
	Date     string            `json:"date"`
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req incomeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.finance.CreateIncome(r.Context(), req.income(user, ""))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (req incomeRequest) income(user, id string) core.Income {
	return core.Income{
		ID:       id,
		UserID:   user,
		Title:    sanitizeInput(req.Title),
		Amount:   req.Amount,
		Currency: req.Currency,
		Category: sanitizeInput(req.Category),
		Status:   req.Status,
		Date:     sanitizeInput(req.Date),
	}
}

// incomeEditRequest replaces an income. Note explains an amount change.
type incomeEditRequest struct {
	incomeRequest
	Note string `json:"note"`
}

func (s *Server) handleUpdateIncome(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req incomeEditRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := s.finance.UpdateIncome(r.Context(), req.income(user, r.PathValue("id")), sanitizeInput(req.Note))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type amountRequest struct {
	Amount float64 `json:"amount"`
	Note   string  `json:"note"`
}

func (s *Server) handleUpdateIncomeAmount(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := s.finance.UpdateIncomeAmount(r.Context(), user, r.PathValue("id"), req.Amount, sanitizeInput(req.Note))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	s.handleDelete(w, r, s.finance.DeleteIncome)
}

func (s *Server) handleIncomeHistory(w http.ResponseWriter, r *http.Request) {
	s.handleHistory(w, r, s.finance.IncomeHistory)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	user, prefs, err := s.userAndPrefs(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	overview, err := s.finance.Expenses(r.Context(), user, prefs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

type expenseRequest struct {
	Title    string             `json:"title"`
	Category string             `json:"category"`
	Amount   float64            `json:"amount"`
	Currency core.Currency      `json:"currency"`
	Date     string             `json:"date"`
	Status   core.ExpenseStatus `json:"status"`
	Type     core.ExpenseType   `json:"type"`
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.finance.CreateExpense(r.Context(), req.expense(user, ""))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (req expenseRequest) expense(user, id string) core.Expense {
	return core.Expense{
		ID:       id,
		UserID:   user,
		Title:    sanitizeInput(req.Title),
		Category: sanitizeInput(req.Category),
		Amount:   req.Amount,
		Currency: req.Currency,
		Date:     sanitizeInput(req.Date),
		Status:   req.Status,
		Type:     req.Type,
	}
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := s.finance.UpdateExpense(r.Context(), req.expense(user, r.PathValue("id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	s.handleDelete(w, r, s.finance.DeleteExpense)
}

func (s *Server) handleListDebts(w http.ResponseWriter, r *http.Request) {
	user, prefs, err := s.userAndPrefs(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	overview, err := s.finance.Debts(r.Context(), user, prefs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

type debtRequest struct {
	Title    string          `json:"title"`
	Creditor string          `json:"creditor"`
	Amount   float64         `json:"amount"`
	Currency core.Currency   `json:"currency"`
	DueDate  *string         `json:"due_date"`
	Status   core.DebtStatus `json:"status"`
	Type     core.DebtType   `json:"type"`
}

func (s *Server) handleCreateDebt(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req debtRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.finance.CreateDebt(r.Context(), req.debt(user, ""))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// debt builds the record; a missing status means pending.
func (req debtRequest) debt(user, id string) core.Debt {
	if req.Status == "" {
		req.Status = core.DebtPending
	}
	if req.DueDate != nil {
		due := sanitizeInput(*req.DueDate)
		req.DueDate = &due
	}
	return core.Debt{
		ID:       id,
		UserID:   user,
		Title:    sanitizeInput(req.Title),
		Creditor: sanitizeInput(req.Creditor),
		Amount:   req.Amount,
		Currency: req.Currency,
		DueDate:  req.DueDate,
		Status:   req.Status,
		Type:     req.Type,
	}
}

// debtEditRequest replaces a debt. Note is logged with an amount change.
type debtEditRequest struct {
	debtRequest
	Note string `json:"note"`
}

func (s *Server) handleUpdateDebt(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req debtEditRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := s.finance.UpdateDebt(r.Context(), req.debt(user, r.PathValue("id")), sanitizeInput(req.Note))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type paymentRequest struct {
	Amount float64 `json:"amount"`
}

func (s *Server) handlePayDebt(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := s.finance.PayDebt(r.Context(), user, r.PathValue("id"), req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleUpdateDebtAmount(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := s.finance.UpdateDebtAmount(r.Context(), user, r.PathValue("id"), req.Amount, sanitizeInput(req.Note))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteDebt(w http.ResponseWriter, r *http.Request) {
	s.handleDelete(w, r, s.finance.DeleteDebt)
}

func (s *Server) handleDebtHistory(w http.ResponseWriter, r *http.Request) {
	s.handleHistory(w, r, s.finance.DebtHistory)
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	user, prefs, err := s.userAndPrefs(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	overview, err := s.finance.Assets(r.Context(), user, prefs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

type assetRequest struct {
	Type         string        `json:"type"`
	Quantity     float64       `json:"quantity"`
	Unit         string        `json:"unit"`
	PricePerUnit float64       `json:"price_per_unit"`
	Currency     core.Currency `json:"currency"`
	AutoUpdate   bool          `json:"auto_update"`
}

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req assetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.finance.CreateAsset(r.Context(), req.asset(user, ""))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (req assetRequest) asset(user, id string) core.Asset {
	return core.Asset{
		ID:           id,
		UserID:       user,
		Type:         sanitizeInput(req.Type),
		Quantity:     req.Quantity,
		Unit:         sanitizeInput(req.Unit),
		PricePerUnit: req.PricePerUnit,
		Currency:     req.Currency,
		AutoUpdate:   req.AutoUpdate,
	}
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	user, prefs, err := s.userAndPrefs(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	row, err := s.finance.Asset(r.Context(), user, r.PathValue("id"), prefs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleUpdateAsset(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req assetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := s.finance.UpdateAsset(r.Context(), req.asset(user, r.PathValue("id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	s.handleDelete(w, r, s.finance.DeleteAsset)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, del func(ctx context.Context, userID, id string) error) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := del(r.Context(), user, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type historyFunc func(ctx context.Context, userID, id string, prefs services.Preferences) (services.HistoryView, error)

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, load historyFunc) {
	user, prefs, err := s.userAndPrefs(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := load(r.Context(), user, r.PathValue("id"), prefs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
