package models

import "github.com/shopspring/decimal"

// Account types.
const (
	AccountTypeChecking      = "checking"
	AccountTypeSavings       = "savings"
	AccountTypeInvestment    = "investment"
	AccountTypeCash          = "cash"
	AccountTypeDigitalWallet = "digital_wallet"
	AccountTypeOther         = "other"
)

// Account represents a bank account. CurrentBalance is derived:
// initial balance plus completed income minus completed expense over
// non-deleted, non-transfer transactions referencing this account.
type Account struct {
	SyncMeta
	Name           string          `gorm:"size:64;not null" json:"name"`
	Type           string          `gorm:"size:16;index;not null" json:"type"`
	CurrencyCode   string          `gorm:"size:8;default:BRL" json:"currency_code"`
	InitialBalance decimal.Decimal `gorm:"type:decimal(20,2)" json:"initial_balance"`
	CurrentBalance decimal.Decimal `gorm:"type:decimal(20,2)" json:"current_balance"`
	Color          string          `gorm:"size:16" json:"color"`
	Icon           string          `gorm:"size:32" json:"icon"`
}

func (Account) TableName() string { return "bank_accounts" }
