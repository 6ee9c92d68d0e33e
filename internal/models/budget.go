package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Budget is a monthly spending limit for one category. LastAlertThreshold
// is the highest threshold already notified in the current period; it only
// moves up within a period, which is what keeps alerts from repeating.
type Budget struct {
	SyncMeta
	CategoryID         string          `gorm:"index;size:36;not null" json:"category_id"`
	Amount             decimal.Decimal `gorm:"type:decimal(20,2)" json:"amount"`
	Period             string          `gorm:"size:16;default:monthly" json:"period"`
	IsActive           bool            `gorm:"default:true" json:"is_active"`
	AlertAt50          bool            `gorm:"default:true" json:"alert_at_50"`
	AlertAt80          bool            `gorm:"default:true" json:"alert_at_80"`
	AlertAt100         bool            `gorm:"default:true" json:"alert_at_100"`
	LastAlertThreshold *int            `json:"last_alert_threshold,omitempty"`
	LastAlertSentAt    *time.Time      `json:"last_alert_sent_at,omitempty"`
}

func (Budget) TableName() string { return "budgets" }

// ThresholdEnabled reports whether alerting is enabled for the given
// threshold (one of 50, 80, 100).
func (b *Budget) ThresholdEnabled(threshold int) bool {
	switch threshold {
	case 50:
		return b.AlertAt50
	case 80:
		return b.AlertAt80
	case 100:
		return b.AlertAt100
	}
	return false
}
