// Package series expands a base transaction template into the concrete
// rows of an installment or recurring series, together with the single
// aggregate balance delta the whole batch contributes.
package series

import (
	"fmt"
	"time"

	"walletcore/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Recurrence frequencies.
const (
	FreqDaily      = "daily"
	FreqWeekly     = "weekly"
	FreqBiweekly   = "biweekly"
	FreqMonthly    = "monthly"
	FreqBimonthly  = "bimonthly"
	FreqSemiannual = "semiannual"
	FreqAnnual     = "annual"
)

// DefaultHorizon bounds how many rows one expansion materializes for an
// indefinite recurring series. Callers re-run expansion when the horizon
// is exhausted; nothing generates rows lazily.
const DefaultHorizon = 12

// Installment describes an N-way installment purchase. When Total is
// true the template amount is the series total and gets divided across
// the rows; otherwise it is already the per-installment amount.
type Installment struct {
	Count int
	Total bool
}

// Recurrence describes a repeating charge. Count is ignored when
// Indefinite is set; the expansion is then capped at the horizon.
type Recurrence struct {
	Frequency  string
	Count      int
	Indefinite bool
}

// Plan selects how a template expands. Both nil means a single ordinary
// transaction.
type Plan struct {
	Installment *Installment
	Recurrence  *Recurrence
	// Horizon overrides DefaultHorizon when > 0.
	Horizon int
}

func (p Plan) count() (int, error) {
	switch {
	case p.Installment != nil:
		if p.Installment.Count < 1 {
			return 0, fmt.Errorf("series: installment count must be >= 1, got %d", p.Installment.Count)
		}
		return p.Installment.Count, nil
	case p.Recurrence != nil:
		if p.Recurrence.Indefinite {
			h := p.Horizon
			if h <= 0 {
				h = DefaultHorizon
			}
			return h, nil
		}
		if p.Recurrence.Count < 1 {
			return 0, fmt.Errorf("series: recurrence count must be >= 1, got %d", p.Recurrence.Count)
		}
		return p.Recurrence.Count, nil
	default:
		return 1, nil
	}
}

// Expand turns a template into its dated series rows and the aggregate
// signed amount of the batch. The aggregate is meant to be applied to the
// target balance once, not once per row.
//
// A count of 1 degenerates to a single ordinary transaction: no series
// linkage, no description suffix.
func Expand(template models.Transaction, plan Plan) ([]models.Transaction, decimal.Decimal, error) {
	count, err := plan.count()
	if err != nil {
		return nil, decimal.Zero, err
	}

	if count == 1 {
		template.ID = uuid.NewString()
		return []models.Transaction{template}, template.Amount, nil
	}

	perRow := template.Amount
	var residual decimal.Decimal
	if plan.Installment != nil && plan.Installment.Total {
		// Floor each installment to the cent and park the remainder on
		// the last row, so the series sums exactly to the total.
		perRow = template.Amount.Div(decimal.NewFromInt(int64(count))).RoundFloor(2)
		residual = template.Amount.Sub(perRow.Mul(decimal.NewFromInt(int64(count))))
	}

	parentID := uuid.NewString()
	rows := make([]models.Transaction, 0, count)
	for i := 0; i < count; i++ {
		row := template
		if i == 0 {
			row.ID = parentID
		} else {
			row.ID = uuid.NewString()
			pid := parentID
			row.ParentTransactionID = &pid
		}
		row.Amount = perRow
		if i == count-1 {
			row.Amount = perRow.Add(residual)
		}
		row.TransactionDate = stepDate(template.TransactionDate, plan, i)
		if plan.Installment != nil {
			row.IsInstallment = true
			n := i + 1
			total := count
			row.InstallmentNumber = &n
			row.TotalInstallments = &total
			row.Description = fmt.Sprintf("%s (%d/%d)", template.Description, n, total)
		}
		rows = append(rows, row)
	}

	aggregate := decimal.Zero
	for i := range rows {
		aggregate = aggregate.Add(rows[i].Amount)
	}
	return rows, aggregate, nil
}

// stepDate advances the template date by i period units. Installments
// always step by calendar month regardless of any display frequency.
func stepDate(base time.Time, plan Plan, i int) time.Time {
	if plan.Installment != nil {
		return base.AddDate(0, i, 0)
	}
	freq := FreqMonthly
	if plan.Recurrence != nil {
		freq = plan.Recurrence.Frequency
	}
	switch freq {
	case FreqDaily:
		return base.AddDate(0, 0, i)
	case FreqWeekly:
		return base.AddDate(0, 0, 7*i)
	case FreqBiweekly:
		return base.AddDate(0, 0, 14*i)
	case FreqBimonthly:
		return base.AddDate(0, 2*i, 0)
	case FreqSemiannual:
		return base.AddDate(0, 6*i, 0)
	case FreqAnnual:
		return base.AddDate(i, 0, 0)
	default: // monthly
		return base.AddDate(0, i, 0)
	}
}
