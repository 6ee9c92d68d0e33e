// Package analysis computes read-side rollups over the ledger: period
// totals, category breakdowns and the trend against the previous
// equal-length period. It persists nothing and is safe to run
// concurrently with writes.
package analysis

import (
	"fmt"
	"sort"
	"time"

	"walletcore/internal/models"
	"walletcore/internal/store"

	"github.com/shopspring/decimal"
)

// Period selects the aggregation window.
type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// CategoryBreakdown is one category's share of the period's expenses.
type CategoryBreakdown struct {
	CategoryID string
	Amount     decimal.Decimal
	Percentage decimal.Decimal
	// ChangePct is the variation against the previous period. A category
	// with no previous spend counts as a flat +100%.
	ChangePct decimal.Decimal
}

// Report is the aggregate view of one period.
type Report struct {
	Start, End      time.Time
	Income          decimal.Decimal
	Expense         decimal.Decimal
	Net             decimal.Decimal
	PreviousIncome  decimal.Decimal
	PreviousExpense decimal.Decimal
	Categories      []CategoryBreakdown
}

type Analyzer struct {
	store *store.Store
}

func NewAnalyzer(st *store.Store) *Analyzer {
	return &Analyzer{store: st}
}

// window returns [start, end) of the period containing ref.
func window(period Period, ref time.Time) (time.Time, time.Time, error) {
	switch period {
	case PeriodWeek:
		// weeks start on Monday
		offset := (int(ref.Weekday()) + 6) % 7
		start := time.Date(ref.Year(), ref.Month(), ref.Day()-offset, 0, 0, 0, 0, ref.Location())
		return start, start.AddDate(0, 0, 7), nil
	case PeriodMonth:
		start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
		return start, start.AddDate(0, 1, 0), nil
	case PeriodYear:
		start := time.Date(ref.Year(), 1, 1, 0, 0, 0, 0, ref.Location())
		return start, start.AddDate(1, 0, 0), nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("analysis: unknown period %q", period)
}

// previousWindow returns the immediately preceding equal-length window.
func previousWindow(period Period, start time.Time) (time.Time, time.Time) {
	switch period {
	case PeriodWeek:
		return start.AddDate(0, 0, -7), start
	case PeriodYear:
		return start.AddDate(-1, 0, 0), start
	default:
		return start.AddDate(0, -1, 0), start
	}
}

// Summarize builds the period report for the given currency.
func (a *Analyzer) Summarize(period Period, ref time.Time, currency string) (*Report, error) {
	start, end, err := window(period, ref)
	if err != nil {
		return nil, err
	}
	read, err := a.store.Read()
	if err != nil {
		return nil, err
	}

	current, err := read.TransactionsBetween(start, end)
	if err != nil {
		return nil, err
	}
	prevStart, prevEnd := previousWindow(period, start)
	previous, err := read.TransactionsBetween(prevStart, prevEnd)
	if err != nil {
		return nil, err
	}

	report := &Report{Start: start, End: end}
	curByCat := map[string]decimal.Decimal{}
	prevByCat := map[string]decimal.Decimal{}

	for i := range current {
		t := &current[i]
		if !countable(t, currency) {
			continue
		}
		switch t.Type {
		case models.TransactionTypeIncome:
			report.Income = report.Income.Add(t.Amount)
		case models.TransactionTypeExpense:
			report.Expense = report.Expense.Add(t.Amount)
			curByCat[categoryKey(t)] = curByCat[categoryKey(t)].Add(t.Amount)
		}
	}
	for i := range previous {
		t := &previous[i]
		if !countable(t, currency) {
			continue
		}
		switch t.Type {
		case models.TransactionTypeIncome:
			report.PreviousIncome = report.PreviousIncome.Add(t.Amount)
		case models.TransactionTypeExpense:
			report.PreviousExpense = report.PreviousExpense.Add(t.Amount)
			prevByCat[categoryKey(t)] = prevByCat[categoryKey(t)].Add(t.Amount)
		}
	}
	report.Net = report.Income.Sub(report.Expense)

	hundred := decimal.NewFromInt(100)
	for cat, amount := range curByCat {
		cb := CategoryBreakdown{CategoryID: cat, Amount: amount}
		if report.Expense.Sign() > 0 {
			cb.Percentage = amount.Div(report.Expense).Mul(hundred)
		}
		if prev, ok := prevByCat[cat]; ok && prev.Sign() > 0 {
			cb.ChangePct = amount.Sub(prev).Div(prev).Mul(hundred)
		} else {
			// nothing spent here last period: flat 100% increase
			cb.ChangePct = hundred
		}
		report.Categories = append(report.Categories, cb)
	}
	sort.Slice(report.Categories, func(i, j int) bool {
		return report.Categories[i].Amount.GreaterThan(report.Categories[j].Amount)
	})
	return report, nil
}

func countable(t *models.Transaction, currency string) bool {
	if !t.Completed() {
		return false
	}
	if currency != "" && t.CurrencyCode != currency {
		return false
	}
	// income landing on a card (invoice payment, refund) reduces debt;
	// it is not earnings
	if t.Type == models.TransactionTypeIncome && t.CreditCardID != nil {
		return false
	}
	return t.Type != models.TransactionTypeTransfer
}

func categoryKey(t *models.Transaction) string {
	if t.CategoryID != nil {
		return *t.CategoryID
	}
	return "uncategorized"
}

// InvoiceReport is the net charge of one credit-card billing cycle.
type InvoiceReport struct {
	CardID     string
	Start, End time.Time
	Total      decimal.Decimal
	Charges    []models.Transaction
}

// CardInvoice sums the card's completed charges inside the billing cycle
// containing ref: expenses grow the invoice, income (payments, refunds)
// shrinks it.
func (a *Analyzer) CardInvoice(cardID string, ref time.Time) (*InvoiceReport, error) {
	read, err := a.store.Read()
	if err != nil {
		return nil, err
	}
	var card models.CreditCard
	if err := read.Find(&card, cardID); err != nil {
		return nil, err
	}

	start, end := card.InvoiceCycle(ref)
	rows, err := read.TransactionsBetween(start, end)
	if err != nil {
		return nil, err
	}

	report := &InvoiceReport{CardID: cardID, Start: start, End: end}
	for i := range rows {
		t := rows[i]
		if t.CreditCardID == nil || *t.CreditCardID != cardID || !t.Completed() {
			continue
		}
		switch t.Type {
		case models.TransactionTypeExpense:
			report.Total = report.Total.Add(t.Amount)
		case models.TransactionTypeIncome:
			report.Total = report.Total.Sub(t.Amount)
		}
		report.Charges = append(report.Charges, t)
	}
	return report, nil
}
