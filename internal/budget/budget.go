// Package budget derives per-category spend-vs-limit status from the
// ledger and emits at-most-once-per-threshold alerts through the
// notification collaborator.
package budget

import (
	"fmt"
	"log"
	"time"

	"walletcore/internal/models"
	"walletcore/internal/store"

	"github.com/shopspring/decimal"
)

// Alert thresholds, checked highest first.
var thresholds = []int{100, 80, 50}

// Notifier delivers an alert to the user. Metadata carries the dedupe
// key so the delivery layer can drop repeats within a day.
type Notifier interface {
	Notify(title, body string, metadata map[string]string) error
}

// Status is one budget's position against its limit for the period.
type Status struct {
	Budget     models.Budget
	Spent      decimal.Decimal
	Percentage decimal.Decimal
	// NewThreshold is the highest newly crossed enabled threshold, 0 if
	// nothing new was crossed this check.
	NewThreshold int
}

type Checker struct {
	store    *store.Store
	notifier Notifier
	logger   *log.Logger
}

func NewChecker(st *store.Store, notifier Notifier, logger *log.Logger) *Checker {
	if logger == nil {
		logger = log.Default()
	}
	return &Checker{store: st, notifier: notifier, logger: logger}
}

// periodWindow returns the [start, end) of the budget period containing
// now. Budgets are monthly.
func periodWindow(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 1, 0)
}

// Check evaluates every active budget against this period's spend and
// fires at most one alert per budget: the highest enabled threshold
// crossed beyond the last one already notified. Threshold bookkeeping for
// all crossed budgets persists in one atomic batch; budgets that crossed
// nothing new are left untouched, so re-running without new spend emits
// zero alerts.
func (c *Checker) Check(now time.Time) ([]Status, error) {
	read, err := c.store.Read()
	if err != nil {
		return nil, err
	}
	budgets, err := read.ActiveBudgets()
	if err != nil {
		return nil, err
	}

	start, end := periodWindow(now)
	statuses := make([]Status, 0, len(budgets))
	crossed := make([]*Status, 0, len(budgets))

	for i := range budgets {
		b := budgets[i]
		rows, err := read.CategoryExpensesBetween(b.CategoryID, start, end)
		if err != nil {
			return nil, err
		}
		spent := decimal.Zero
		for j := range rows {
			spent = spent.Add(rows[j].Amount)
		}

		st := Status{Budget: b, Spent: spent}
		if b.Amount.Sign() > 0 {
			st.Percentage = spent.Div(b.Amount).Mul(decimal.NewFromInt(100))
		}

		last := 0
		// A threshold notified in a previous period does not gate this one.
		if b.LastAlertThreshold != nil && b.LastAlertSentAt != nil && !b.LastAlertSentAt.Before(start) {
			last = *b.LastAlertThreshold
		}
		for _, th := range thresholds {
			if th <= last || !b.ThresholdEnabled(th) {
				continue
			}
			if st.Percentage.GreaterThanOrEqual(decimal.NewFromInt(int64(th))) {
				st.NewThreshold = th
				break
			}
		}

		statuses = append(statuses, st)
		if st.NewThreshold > 0 {
			crossed = append(crossed, &statuses[len(statuses)-1])
		}
	}

	if len(crossed) == 0 {
		return statuses, nil
	}

	for _, st := range crossed {
		c.notify(st, now)
	}

	err = c.store.Write(func(tx *store.Tx) error {
		for _, st := range crossed {
			th := st.NewThreshold
			sentAt := now.UTC()
			st.Budget.LastAlertThreshold = &th
			st.Budget.LastAlertSentAt = &sentAt
			if err := tx.Update(&st.Budget); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return statuses, nil
}

// notify emits one alert. Delivery failures are logged, not fatal: the
// threshold still records as notified rather than retrying into spam.
func (c *Checker) notify(st *Status, now time.Time) {
	if c.notifier == nil {
		return
	}
	title := "Budget alert"
	body := fmt.Sprintf("You have used %s%% of your budget (limit %s)",
		st.Percentage.Round(0), st.Budget.Amount.StringFixed(2))
	if st.NewThreshold >= 100 {
		title = "Budget exceeded"
	}
	meta := map[string]string{
		"budget_id": st.Budget.ID,
		"threshold": fmt.Sprintf("%d", st.NewThreshold),
		// Dedupe key: {budgetId}-{threshold}-{calendarDate}
		"dedupe_key": fmt.Sprintf("%s-%d-%s", st.Budget.ID, st.NewThreshold, now.Format("2006-01-02")),
	}
	if err := c.notifier.Notify(title, body, meta); err != nil {
		c.logger.Printf("budget: alert delivery failed for %s: %v", st.Budget.ID, err)
	}
}
