package core

import "testing"

func expenseAmount(e Expense) float64 { return e.Amount }

func TestAggregate(t *testing.T) {
	expenses := []Expense{
		{Title: "Rent", Amount: 10, Type: ExpenseFixed, Status: ExpensePaid, Category: "housing"},
		{Title: "Food", Amount: 20, Type: ExpenseVariable, Status: ExpensePending, Category: "food"},
		{Title: "Snacks", Amount: 30, Type: ExpenseVariable, Status: ExpensePaid, Category: "food"},
	}

	all := Aggregate(expenses, expenseAmount, nil)
	if all.Total != 60 || all.Count != 3 || all.Average != 20 {
		t.Fatalf("all = %+v", all)
	}

	variable := Aggregate(expenses, expenseAmount, func(e Expense) bool { return e.Type == ExpenseVariable })
	if variable.Total != 50 || variable.Count != 2 || variable.Average != 25 {
		t.Fatalf("variable = %+v", variable)
	}
	if variable.Items[0].Title != "Food" || variable.Items[1].Title != "Snacks" {
		t.Fatal("items should keep input order")
	}

	byCategory := SumBy(expenses, func(e Expense) string { return e.Category }, expenseAmount)
	if byCategory["food"] != 50 || byCategory["housing"] != 10 {
		t.Fatalf("byCategory = %v", byCategory)
	}
}

func TestAggregateEmpty(t *testing.T) {
	s := Aggregate[Expense](nil, expenseAmount, nil)
	if s.Total != 0 || s.Count != 0 || s.Average != 0 {
		t.Fatalf("empty = %+v", s)
	}
	if s.Items == nil {
		t.Fatal("Items must not be nil")
	}

	none := Aggregate([]Expense{{Amount: 5}}, expenseAmount, func(Expense) bool { return false })
	if none.Count != 0 || none.Average != 0 || none.Items == nil {
		t.Fatalf("none = %+v", none)
	}
}
