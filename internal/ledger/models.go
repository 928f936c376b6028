// Package ledger stores the user's transactions and spending categories.
package ledger

import (
	"fmt"
	"time"
)

// TransactionType distinguishes money in from money out.
type TransactionType string

const (
	TransactionDebit  TransactionType = "debit"
	TransactionCredit TransactionType = "credit"
)

// Transaction is a single ledger entry.
type Transaction struct {
	ID          string
	UserID      string
	Date        time.Time
	Description string
	Merchant    string
	AmountCents int64
	Currency    string
	Type        TransactionType
	CategoryID  string
	CreatedAt   time.Time
}

// Amount formats the amount as a decimal string, e.g. "-12.05".
func (t Transaction) Amount() string {
	cents := t.AmountCents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// Category is a user-defined spending category.
type Category struct {
	ID                 string
	UserID             string
	Name               string
	Color              string
	MonthlyBudgetCents int64
	CreatedAt          time.Time
}

// Range bounds a transaction query. Zero bounds are open.
type Range struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls within the range, inclusive.
func (r Range) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}
