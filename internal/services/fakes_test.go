package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
)

var errNotFound = errors.New("not found")

// memStore is an in-memory Store keyed by user.
type memStore struct {
	mu       sync.Mutex
	seq      int
	incomes  []core.Income
	expenses []core.Expense
	debts    []core.Debt
	assets   []core.Asset
	activity []core.Activity
	settings map[string]core.Settings
	failList error
}

func newMemStore() *memStore {
	return &memStore{settings: make(map[string]core.Settings)}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) historyEntry(parent, userID string, amount float64, note string) core.AmountHistoryEntry {
	id := m.nextID("h")
	return core.AmountHistoryEntry{
		ID: id, ParentID: parent, UserID: userID, Amount: amount, Note: note,
		LoggedAt: fmt.Sprintf("2024-01-01T00:00:%02dZ", m.seq%60),
	}
}

func (m *memStore) CreateIncome(_ context.Context, in core.Income) (core.Income, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in.ID = m.nextID("inc")
	if in.Status == core.IncomeExpected {
		in.History = []core.AmountHistoryEntry{m.historyEntry(in.ID, in.UserID, in.Amount, "Initial amount")}
	}
	m.incomes = append(m.incomes, in)
	return in, nil
}

func (m *memStore) ListIncomes(_ context.Context, userID string) ([]core.Income, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}
	var out []core.Income
	for _, in := range m.incomes {
		if in.UserID == userID {
			out = append(out, in)
		}
	}
	return out, nil
}

func (m *memStore) GetIncome(_ context.Context, userID, id string) (core.Income, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, in := range m.incomes {
		if in.UserID == userID && in.ID == id {
			return in, nil
		}
	}
	return core.Income{}, errNotFound
}

func (m *memStore) UpdateIncome(_ context.Context, in core.Income) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, cur := range m.incomes {
		if cur.UserID == in.UserID && cur.ID == in.ID {
			cur.Title, cur.Currency, cur.Category, cur.Status, cur.Date = in.Title, in.Currency, in.Category, in.Status, in.Date
			m.incomes[i] = cur
			return nil
		}
	}
	return errNotFound
}

func (m *memStore) UpdateIncomeAmount(_ context.Context, userID, id string, amount float64, note string) (core.Income, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, in := range m.incomes {
		if in.UserID == userID && in.ID == id {
			if in.Status == core.IncomeExpected {
				in.History = append(in.History, m.historyEntry(id, userID, amount, note))
			}
			in.Amount = amount
			m.incomes[i] = in
			return in, nil
		}
	}
	return core.Income{}, errNotFound
}

func (m *memStore) DeleteIncome(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, in := range m.incomes {
		if in.UserID == userID && in.ID == id {
			m.incomes = append(m.incomes[:i], m.incomes[i+1:]...)
			return nil
		}
	}
	return errNotFound
}

func (m *memStore) CreateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.nextID("exp")
	m.expenses = append(m.expenses, e)
	return e, nil
}

func (m *memStore) ListExpenses(_ context.Context, userID string) ([]core.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Expense
	for _, e := range m.expenses {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) GetExpense(_ context.Context, userID, id string) (core.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.expenses {
		if e.UserID == userID && e.ID == id {
			return e, nil
		}
	}
	return core.Expense{}, errNotFound
}

func (m *memStore) UpdateExpense(_ context.Context, e core.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, cur := range m.expenses {
		if cur.UserID == e.UserID && cur.ID == e.ID {
			e.CreatedAt = cur.CreatedAt
			m.expenses[i] = e
			return nil
		}
	}
	return errNotFound
}

func (m *memStore) DeleteExpense(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.expenses {
		if e.UserID == userID && e.ID == id {
			m.expenses = append(m.expenses[:i], m.expenses[i+1:]...)
			return nil
		}
	}
	return errNotFound
}

func (m *memStore) CreateDebt(_ context.Context, d core.Debt) (core.Debt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = m.nextID("debt")
	d.History = []core.AmountHistoryEntry{m.historyEntry(d.ID, d.UserID, d.Amount, "Initial amount")}
	m.debts = append(m.debts, d)
	return d, nil
}

func (m *memStore) ListDebts(_ context.Context, userID string) ([]core.Debt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Debt
	for _, d := range m.debts {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStore) GetDebt(_ context.Context, userID, id string) (core.Debt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.debts {
		if d.UserID == userID && d.ID == id {
			return d, nil
		}
	}
	return core.Debt{}, errNotFound
}

func (m *memStore) UpdateDebt(_ context.Context, d core.Debt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, cur := range m.debts {
		if cur.UserID == d.UserID && cur.ID == d.ID {
			cur.Title, cur.Creditor, cur.Currency, cur.DueDate, cur.Status, cur.Type = d.Title, d.Creditor, d.Currency, d.DueDate, d.Status, d.Type
			m.debts[i] = cur
			return nil
		}
	}
	return errNotFound
}

func (m *memStore) UpdateDebtAmount(_ context.Context, userID, id string, amount float64, status core.DebtStatus, note string) (core.Debt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.debts {
		if d.UserID == userID && d.ID == id {
			d.Amount = amount
			d.Status = status
			d.History = append(d.History, m.historyEntry(id, userID, amount, note))
			m.debts[i] = d
			return d, nil
		}
	}
	return core.Debt{}, errNotFound
}

func (m *memStore) DeleteDebt(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.debts {
		if d.UserID == userID && d.ID == id {
			m.debts = append(m.debts[:i], m.debts[i+1:]...)
			return nil
		}
	}
	return errNotFound
}

func (m *memStore) CreateAsset(_ context.Context, a core.Asset) (core.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.nextID("asset")
	m.assets = append(m.assets, a)
	return a, nil
}

func (m *memStore) ListAssets(_ context.Context, userID string) ([]core.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Asset
	for _, a := range m.assets {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) GetAsset(_ context.Context, userID, id string) (core.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assets {
		if a.UserID == userID && a.ID == id {
			return a, nil
		}
	}
	return core.Asset{}, errNotFound
}

func (m *memStore) UpdateAsset(_ context.Context, a core.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, cur := range m.assets {
		if cur.UserID == a.UserID && cur.ID == a.ID {
			a.CreatedAt = cur.CreatedAt
			m.assets[i] = a
			return nil
		}
	}
	return errNotFound
}

func (m *memStore) DeleteAsset(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.assets {
		if a.UserID == userID && a.ID == id {
			m.assets = append(m.assets[:i], m.assets[i+1:]...)
			return nil
		}
	}
	return errNotFound
}

func (m *memStore) InsertActivity(_ context.Context, a core.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.activity {
		if existing.ID == a.ID {
			return nil
		}
	}
	m.activity = append(m.activity, a)
	return nil
}

func (m *memStore) RecentActivity(_ context.Context, userID string, limit int) ([]core.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Activity
	for _, a := range m.activity {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) GetSettings(_ context.Context, userID string) (core.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.settings[userID]; ok {
		return s, nil
	}
	return core.DefaultSettings(userID), nil
}

func (m *memStore) SaveSettings(_ context.Context, s core.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[s.UserID] = s
	return nil
}

type fixedRate struct {
	rate float64
	ok   bool
}

func (f fixedRate) Rate(context.Context) (float64, bool) { return f.rate, f.ok }

type fixedPrices struct {
	quotes map[string]float64
	calls  int
}

func (f *fixedPrices) Prices(context.Context) map[string]float64 {
	f.calls++
	return f.quotes
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []*amqp.ActivityMessage
	err  error
}

func (p *recordingPublisher) PublishActivity(_ context.Context, msg *amqp.ActivityMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	return nil
}
