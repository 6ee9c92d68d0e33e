package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreditCard represents a credit card. CurrentBalance is the outstanding
// debt: it grows with card expenses and shrinks with invoice payments.
type CreditCard struct {
	SyncMeta
	Name           string          `gorm:"size:64;not null" json:"name"`
	Brand          string          `gorm:"size:32" json:"brand"`
	ClosingDay     int             `gorm:"not null" json:"closing_day"` // 1-31
	DueDay         int             `gorm:"not null" json:"due_day"`     // 1-31
	CreditLimit    decimal.Decimal `gorm:"type:decimal(20,2)" json:"credit_limit"`
	CurrentBalance decimal.Decimal `gorm:"type:decimal(20,2)" json:"current_balance"`
	CurrencyCode   string          `gorm:"size:8;default:BRL" json:"currency_code"`
	Color          string          `gorm:"size:16" json:"color"`
	IsActive       bool            `gorm:"default:true" json:"is_active"`
}

func (CreditCard) TableName() string { return "credit_cards" }

// AvailableLimit returns creditLimit - currentBalance.
func (c *CreditCard) AvailableLimit() decimal.Decimal {
	return c.CreditLimit.Sub(c.CurrentBalance)
}

// InvoiceCycle returns the billing window [start, end) that contains ref:
// the range between the previous closing day (exclusive) and the next one
// (inclusive). Closing days beyond a month's last day clamp to that day.
func (c *CreditCard) InvoiceCycle(ref time.Time) (time.Time, time.Time) {
	closing := clampDay(ref.Year(), ref.Month(), c.ClosingDay, ref.Location())
	var start, end time.Time
	if ref.Day() > closing.Day() {
		start = closing.AddDate(0, 0, 1)
		next := closing.AddDate(0, 1, 0)
		end = clampDay(next.Year(), next.Month(), c.ClosingDay, ref.Location()).AddDate(0, 0, 1)
	} else {
		prev := closing.AddDate(0, -1, 0)
		start = clampDay(prev.Year(), prev.Month(), c.ClosingDay, ref.Location()).AddDate(0, 0, 1)
		end = closing.AddDate(0, 0, 1)
	}
	return start, end
}

func clampDay(year int, month time.Month, day int, loc *time.Location) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	if day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}
