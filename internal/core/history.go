package core

import (
	"slices"
	"time"
)

const (
	// OriginSelf presents the earliest entry as the starting point: its
	// previous amount is itself and its delta is zero. Used for debts.
	OriginSelf OriginPolicy = iota
	// OriginZero presents the earliest entry as a jump from zero. Used for incomes.
	OriginZero
)

const (
	SubjectIncome Subject = "income"
	SubjectDebt   Subject = "debt"
)

const (
	ChangeInitial   ChangeKind = "initial"
	ChangeIncrease  ChangeKind = "increase"
	ChangeDecrease  ChangeKind = "decrease"
	ChangePayment   ChangeKind = "payment"
	ChangeUnchanged ChangeKind = "unchanged"
)

type (
	// OriginPolicy decides how the earliest history entry is annotated.
	OriginPolicy int

	// Subject is the kind of record a history belongs to.
	Subject string

	// ChangeKind labels an annotated entry for display.
	ChangeKind string

	// AmountHistoryEntry is one logged value of a mutable amount.
	AmountHistoryEntry struct {
		ID       string  `json:"id"`
		ParentID string  `json:"parent_id"`
		UserID   string  `json:"user_id"`
		Amount   float64 `json:"amount"`
		Note     string  `json:"note"`
		LoggedAt string  `json:"logged_at"`
	}

	// AnnotatedEntry is a history entry placed in chronological context.
	AnnotatedEntry struct {
		AmountHistoryEntry
		PreviousAmount float64 `json:"previous_amount"`
		Delta          float64 `json:"delta"`
		// Origin marks the earliest entry.
		Origin bool `json:"origin"`
	}
)

// loggedAtOrEpoch is the sort key; unparsable timestamps sort as the Unix epoch.
func loggedAtOrEpoch(raw string) time.Time {
	t, ok := ParseRecordDate(raw, time.UTC)
	if !ok {
		return time.Unix(0, 0)
	}
	return t
}

// ReconstructHistory orders entries by LoggedAt and annotates each with the
// amount before it and the signed change. Entries with equal timestamps keep
// their input order. The input slice is not modified.
func ReconstructHistory(entries []AmountHistoryEntry, policy OriginPolicy) []AnnotatedEntry {
	out := make([]AnnotatedEntry, 0, len(entries))
	if len(entries) == 0 {
		return out
	}

	type keyed struct {
		at    time.Time
		entry AmountHistoryEntry
	}
	sorted := make([]keyed, len(entries))
	for i, e := range entries {
		sorted[i] = keyed{at: loggedAtOrEpoch(e.LoggedAt), entry: e}
	}
	slices.SortStableFunc(sorted, func(a, b keyed) int {
		return a.at.Compare(b.at)
	})

	for i, k := range sorted {
		a := AnnotatedEntry{AmountHistoryEntry: k.entry}
		if i == 0 {
			a.Origin = true
			switch policy {
			case OriginZero:
				a.PreviousAmount = 0
				a.Delta = k.entry.Amount
			default:
				a.PreviousAmount = k.entry.Amount
				a.Delta = 0
			}
		} else {
			prev := sorted[i-1].entry.Amount
			a.PreviousAmount = prev
			a.Delta = k.entry.Amount - prev
		}
		out = append(out, a)
	}
	return out
}

// IncomeHistory annotates an income's amount history.
func IncomeHistory(entries []AmountHistoryEntry) []AnnotatedEntry {
	return ReconstructHistory(entries, OriginZero)
}

// DebtHistory annotates a debt's balance history.
func DebtHistory(entries []AmountHistoryEntry) []AnnotatedEntry {
	return ReconstructHistory(entries, OriginSelf)
}

// Classify labels the entry. A negative change on a debt balance is a payment.
func (a AnnotatedEntry) Classify(subject Subject) ChangeKind {
	switch {
	case a.Origin:
		return ChangeInitial
	case a.Delta > 0:
		return ChangeIncrease
	case a.Delta < 0:
		if subject == SubjectDebt {
			return ChangePayment
		}
		return ChangeDecrease
	default:
		return ChangeUnchanged
	}
}
