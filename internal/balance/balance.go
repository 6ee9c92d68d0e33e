// Package balance keeps Account.CurrentBalance and
// CreditCard.CurrentBalance in step with the transaction ledger. Balances
// are maintained incrementally as transactions change; Recalculate is the
// trusted-recovery path that rebuilds them from the ledger.
package balance

import (
	"errors"
	"log"

	"walletcore/internal/models"
	"walletcore/internal/store"

	"github.com/shopspring/decimal"
)

type Maintainer struct {
	logger *log.Logger
}

func NewMaintainer(logger *log.Logger) *Maintainer {
	if logger == nil {
		logger = log.Default()
	}
	return &Maintainer{logger: logger}
}

// Apply adds a newly created transaction's effect to its target balance.
// Must run in the same Write scope as the transaction insert.
func (m *Maintainer) Apply(tx *store.Tx, txn *models.Transaction) error {
	if !txn.Completed() {
		return nil
	}
	return m.shift(tx, txn, false)
}

// Reverse undoes a transaction's effect, used when it is soft-deleted or
// before re-applying an edited version.
func (m *Maintainer) Reverse(tx *store.Tx, txn *models.Transaction) error {
	if !txn.Completed() {
		return nil
	}
	return m.shift(tx, txn, true)
}

// Rebase handles an edit: reverse the old row's effect, then apply the
// new one. When the target or type changed the incremental path is not
// trusted and a full recalculation runs instead.
func (m *Maintainer) Rebase(tx *store.Tx, old, updated *models.Transaction) error {
	if targetChanged(old, updated) || old.Type != updated.Type {
		return m.Recalculate(tx)
	}
	if err := m.Reverse(tx, old); err != nil {
		return err
	}
	return m.Apply(tx, updated)
}

// ApplyAggregate applies a precomputed signed delta once to a single
// target, used by the series generator so an N-row batch touches the
// balance once instead of N times.
func (m *Maintainer) ApplyAggregate(tx *store.Tx, txn *models.Transaction, delta decimal.Decimal) error {
	if txn.Type == models.TransactionTypeTransfer {
		return m.shiftTransfer(tx, txn, delta)
	}
	if txn.AccountID != nil {
		return m.shiftAccount(tx, *txn.AccountID, accountDelta(txn.Type, delta))
	}
	if txn.CreditCardID != nil {
		return m.shiftCard(tx, *txn.CreditCardID, cardDelta(txn.Type, delta))
	}
	return nil
}

func targetChanged(a, b *models.Transaction) bool {
	return !strPtrEq(a.AccountID, b.AccountID) ||
		!strPtrEq(a.CreditCardID, b.CreditCardID) ||
		!strPtrEq(a.TransferToAccountID, b.TransferToAccountID)
}

func strPtrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// accountDelta maps a transaction amount to its account balance effect:
// income adds, expense subtracts, transfers are handled by their own legs.
func accountDelta(txType string, amount decimal.Decimal) decimal.Decimal {
	switch txType {
	case models.TransactionTypeIncome:
		return amount
	case models.TransactionTypeExpense:
		return amount.Neg()
	}
	return decimal.Zero
}

// cardDelta maps to outstanding debt: expense grows it, income (invoice
// payment, refund) shrinks it.
func cardDelta(txType string, amount decimal.Decimal) decimal.Decimal {
	switch txType {
	case models.TransactionTypeExpense:
		return amount
	case models.TransactionTypeIncome:
		return amount.Neg()
	}
	return decimal.Zero
}

func (m *Maintainer) shift(tx *store.Tx, txn *models.Transaction, reverse bool) error {
	amount := txn.Amount
	if reverse {
		amount = amount.Neg()
	}
	if txn.Type == models.TransactionTypeTransfer {
		return m.shiftTransfer(tx, txn, amount)
	}
	if txn.AccountID != nil {
		return m.shiftAccount(tx, *txn.AccountID, accountDelta(txn.Type, amount))
	}
	if txn.CreditCardID != nil {
		return m.shiftCard(tx, *txn.CreditCardID, cardDelta(txn.Type, amount))
	}
	return nil
}

// shiftTransfer moves amount out of the source account and into the
// destination. A negated amount reverses the transfer.
func (m *Maintainer) shiftTransfer(tx *store.Tx, txn *models.Transaction, amount decimal.Decimal) error {
	if txn.AccountID != nil {
		if err := m.shiftAccount(tx, *txn.AccountID, amount.Neg()); err != nil {
			return err
		}
	}
	if txn.TransferToAccountID != nil {
		return m.shiftAccount(tx, *txn.TransferToAccountID, amount)
	}
	return nil
}

// shiftAccount applies a signed delta to an account balance. A missing
// target (deleted, or a sync race) skips the update instead of failing
// the surrounding transaction write.
func (m *Maintainer) shiftAccount(tx *store.Tx, accountID string, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	var acc models.Account
	if err := tx.Find(&acc, accountID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			m.logger.Printf("balance: account %s not found, update skipped", accountID)
			return nil
		}
		return err
	}
	acc.CurrentBalance = acc.CurrentBalance.Add(delta)
	return tx.Update(&acc)
}

func (m *Maintainer) shiftCard(tx *store.Tx, cardID string, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	var card models.CreditCard
	if err := tx.Find(&card, cardID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			m.logger.Printf("balance: credit card %s not found, update skipped", cardID)
			return nil
		}
		return err
	}
	card.CurrentBalance = card.CurrentBalance.Add(delta)
	return tx.Update(&card)
}

// Recalculate rebuilds every account and card balance from the ledger:
// initialBalance plus completed income minus completed expense, plus the
// net of completed transfers touching the account. Idempotent; running
// it twice yields the same result.
func (m *Maintainer) Recalculate(tx *store.Tx) error {
	accounts, err := tx.Accounts()
	if err != nil {
		return err
	}
	for i := range accounts {
		acc := &accounts[i]
		rows, err := tx.TransactionsForAccount(acc.ID)
		if err != nil {
			return err
		}
		total := acc.InitialBalance
		for j := range rows {
			total = total.Add(rows[j].SignedAmount())
		}
		transfers, err := tx.TransfersForAccount(acc.ID)
		if err != nil {
			return err
		}
		for j := range transfers {
			tr := &transfers[j]
			if tr.AccountID != nil && *tr.AccountID == acc.ID {
				total = total.Sub(tr.Amount)
			}
			if tr.TransferToAccountID != nil && *tr.TransferToAccountID == acc.ID {
				total = total.Add(tr.Amount)
			}
		}
		if !total.Equal(acc.CurrentBalance) {
			acc.CurrentBalance = total
			if err := tx.Update(acc); err != nil {
				return err
			}
		}
	}

	cards, err := tx.CreditCards()
	if err != nil {
		return err
	}
	for i := range cards {
		card := &cards[i]
		rows, err := tx.TransactionsForCard(card.ID)
		if err != nil {
			return err
		}
		total := decimal.Zero
		for j := range rows {
			total = total.Add(cardDelta(rows[j].Type, rows[j].Amount))
		}
		if !total.Equal(card.CurrentBalance) {
			card.CurrentBalance = total
			if err := tx.Update(card); err != nil {
				return err
			}
		}
	}
	return nil
}
