package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types.
const (
	TransactionTypeIncome   = "income"
	TransactionTypeExpense  = "expense"
	TransactionTypeTransfer = "transfer"
)

// Transaction statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Transaction is a ledger row. Income/expense rows reference exactly one
// of AccountID or CreditCardID; transfer rows move Amount from AccountID
// to TransferToAccountID. TransactionDate carries date-only semantics:
// rows are compared by calendar day, not by clock time.
type Transaction struct {
	SyncMeta
	Type              string          `gorm:"size:16;index;not null" json:"type"`
	Status            string          `gorm:"size:16;index;default:completed" json:"status"`
	Description       string          `gorm:"size:255" json:"description"`
	Notes             string          `gorm:"type:text" json:"notes"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	CurrencyCode      string          `gorm:"size:8;default:BRL" json:"currency_code"`
	AccountID         *string         `gorm:"index;size:36" json:"account_id,omitempty"`
	CreditCardID      *string         `gorm:"index;size:36" json:"credit_card_id,omitempty"`
	CategoryID        *string         `gorm:"index;size:36" json:"category_id,omitempty"`
	// TransferToAccountID is the receiving account of a transfer row;
	// AccountID is the sending side.
	TransferToAccountID *string `gorm:"index;size:36" json:"transfer_to_account_id,omitempty"`
	TransactionDate   time.Time       `gorm:"index;not null" json:"transaction_date"`
	IsInstallment     bool            `json:"is_installment"`
	InstallmentNumber *int            `json:"installment_number,omitempty"`
	TotalInstallments *int            `json:"total_installments,omitempty"`
	// ParentTransactionID links series members (installments, recurring)
	// to the first row of the series for bulk operations.
	ParentTransactionID *string `gorm:"index;size:36" json:"parent_transaction_id,omitempty"`
}

func (Transaction) TableName() string { return "transactions" }

// Completed reports whether the row has been applied to a balance.
func (t *Transaction) Completed() bool { return t.Status == StatusCompleted }

// SignedAmount returns the amount with the sign it contributes to an
// account balance: positive for income, negative for expense, zero for
// transfers (those move both sides through their source and destination
// accounts and are summed separately).
func (t *Transaction) SignedAmount() decimal.Decimal {
	switch t.Type {
	case TransactionTypeIncome:
		return t.Amount
	case TransactionTypeExpense:
		return t.Amount.Neg()
	}
	return decimal.Zero
}
