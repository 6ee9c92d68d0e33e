// Package ledger is the write-side service for transactions. It sequences
// every mutation as one atomic store write: ledger rows change and the
// affected account or card balance moves in the same scope, so a reader
// never sees one without the other.
package ledger

import (
	"errors"
	"fmt"
	"log"
	"time"

	"walletcore/internal/balance"
	"walletcore/internal/models"
	"walletcore/internal/series"
	"walletcore/internal/store"
	"walletcore/internal/util"

	"github.com/shopspring/decimal"
)

// ErrInvalid marks a template rejected before any write.
var ErrInvalid = errors.New("ledger: invalid transaction")

type Service struct {
	store    *store.Store
	balances *balance.Maintainer
	logger   *log.Logger
}

func NewService(st *store.Store, balances *balance.Maintainer, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{store: st, balances: balances, logger: logger}
}

func validateTemplate(txn *models.Transaction) error {
	if err := util.ValidateAmount(txn.Amount); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	switch txn.Type {
	case models.TransactionTypeIncome, models.TransactionTypeExpense:
		if (txn.AccountID == nil) == (txn.CreditCardID == nil) {
			return fmt.Errorf("%w: exactly one of account or credit card must be set", ErrInvalid)
		}
		if txn.TransferToAccountID != nil {
			return fmt.Errorf("%w: destination account is only valid on transfers", ErrInvalid)
		}
	case models.TransactionTypeTransfer:
		if txn.AccountID == nil || txn.TransferToAccountID == nil {
			return fmt.Errorf("%w: transfer requires source and destination accounts", ErrInvalid)
		}
		if *txn.AccountID == *txn.TransferToAccountID {
			return fmt.Errorf("%w: transfer source and destination must differ", ErrInvalid)
		}
		if txn.CreditCardID != nil {
			return fmt.Errorf("%w: transfers move between accounts, not cards", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown transaction type %q", ErrInvalid, txn.Type)
	}
	if txn.Status == "" {
		txn.Status = models.StatusCompleted
	}
	return nil
}

// Create persists a transaction series from a template and plan. The
// whole batch is all-or-nothing and the target balance is adjusted once
// with the aggregate amount, not once per generated row.
func (s *Service) Create(template models.Transaction, plan series.Plan) ([]models.Transaction, error) {
	if err := validateTemplate(&template); err != nil {
		return nil, err
	}
	rows, aggregate, err := series.Expand(template, plan)
	if err != nil {
		return nil, err
	}

	err = s.store.Write(func(tx *store.Tx) error {
		for i := range rows {
			if err := tx.Create(&rows[i]); err != nil {
				return err
			}
		}
		if template.Completed() {
			return s.balances.ApplyAggregate(tx, &template, aggregate)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Update edits a transaction. The previous balance effect is reversed
// before the new one applies; a target or type change falls back to full
// recalculation inside the same scope.
func (s *Service) Update(id string, mutate func(*models.Transaction) error) (*models.Transaction, error) {
	var updated models.Transaction
	err := s.store.Write(func(tx *store.Tx) error {
		var current models.Transaction
		if err := tx.Find(&current, id); err != nil {
			return err
		}
		old := current
		if err := mutate(&current); err != nil {
			return err
		}
		if err := validateTemplate(&current); err != nil {
			return err
		}
		if err := tx.Update(&current); err != nil {
			return err
		}
		if err := s.balances.Rebase(tx, &old, &current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete soft-deletes one transaction and reverses its balance effect.
// The row is pushed as a deletion on the next sync cycle and purged once
// the remote confirms it.
func (s *Service) Delete(id string) error {
	return s.store.Write(func(tx *store.Tx) error {
		var txn models.Transaction
		if err := tx.Find(&txn, id); err != nil {
			return err
		}
		if err := tx.SoftDelete(&txn); err != nil {
			return err
		}
		return s.balances.Reverse(tx, &txn)
	})
}

// DeleteFromHere soft-deletes a series member and every later member of
// the same series ("delete this and future"), reversing each row's
// balance effect in one atomic pass.
func (s *Service) DeleteFromHere(id string) error {
	return s.store.Write(func(tx *store.Tx) error {
		var txn models.Transaction
		if err := tx.Find(&txn, id); err != nil {
			return err
		}
		seriesID := txn.ID
		if txn.ParentTransactionID != nil {
			seriesID = *txn.ParentTransactionID
		}
		rows, err := tx.SeriesFrom(seriesID, txn.TransactionDate)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			rows = []models.Transaction{txn}
		}
		for i := range rows {
			if err := tx.SoftDelete(&rows[i]); err != nil {
				return err
			}
			if err := s.balances.Reverse(tx, &rows[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// PayInvoice records a credit-card invoice payment as two ledger legs:
// an expense on the paying account and an income on the card. Both
// balances move through the maintainer, so a later full recalculation
// reproduces the paid-off state instead of resurrecting the debt.
func (s *Service) PayInvoice(cardID, accountID string, amount decimal.Decimal, date time.Time) (*models.Transaction, error) {
	if err := util.ValidateAmount(amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var payment models.Transaction
	err := s.store.Write(func(tx *store.Tx) error {
		var card models.CreditCard
		if err := tx.Find(&card, cardID); err != nil {
			return err
		}
		var acc models.Account
		if err := tx.Find(&acc, accountID); err != nil {
			return err
		}

		accID := accountID
		payment = models.Transaction{
			Type:            models.TransactionTypeExpense,
			Status:          models.StatusCompleted,
			Description:     fmt.Sprintf("Invoice payment %s", card.Name),
			Amount:          amount,
			CurrencyCode:    card.CurrencyCode,
			AccountID:       &accID,
			TransactionDate: date,
		}
		if err := tx.Create(&payment); err != nil {
			return err
		}
		if err := s.balances.Apply(tx, &payment); err != nil {
			return err
		}

		cID := cardID
		pid := payment.ID
		cardLeg := models.Transaction{
			Type:                models.TransactionTypeIncome,
			Status:              models.StatusCompleted,
			Description:         fmt.Sprintf("Invoice payment %s", card.Name),
			Amount:              amount,
			CurrencyCode:        card.CurrencyCode,
			CreditCardID:        &cID,
			TransactionDate:     date,
			ParentTransactionID: &pid,
		}
		if err := tx.Create(&cardLeg); err != nil {
			return err
		}
		return s.balances.Apply(tx, &cardLeg)
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// Transfer moves an amount between two accounts as a single transfer
// row; both balances shift in the same atomic scope.
func (s *Service) Transfer(fromAccountID, toAccountID string, amount decimal.Decimal, date time.Time) (*models.Transaction, error) {
	from, to := fromAccountID, toAccountID
	rows, err := s.Create(models.Transaction{
		Type:                models.TransactionTypeTransfer,
		Status:              models.StatusCompleted,
		Description:         "Transfer",
		Amount:              amount,
		AccountID:           &from,
		TransferToAccountID: &to,
		TransactionDate:     date,
	}, series.Plan{})
	if err != nil {
		return nil, err
	}
	return &rows[0], nil
}

// AdjustCardBalance synthesizes a balance-adjustment transaction that
// moves a card's outstanding balance to the given target: an extra
// expense grows the debt, an income shrinks it. As with PayInvoice, the
// adjustment lives in the ledger so recalculation reproduces it.
func (s *Service) AdjustCardBalance(cardID string, target decimal.Decimal, date time.Time) (*models.Transaction, error) {
	var adj models.Transaction
	err := s.store.Write(func(tx *store.Tx) error {
		var card models.CreditCard
		if err := tx.Find(&card, cardID); err != nil {
			return err
		}
		diff := target.Sub(card.CurrentBalance)
		if diff.IsZero() {
			return nil
		}
		txType := models.TransactionTypeExpense
		if diff.Sign() < 0 {
			txType = models.TransactionTypeIncome
		}
		id := cardID
		adj = models.Transaction{
			Type:            txType,
			Status:          models.StatusCompleted,
			Description:     "Balance adjustment",
			Amount:          diff.Abs(),
			CurrencyCode:    card.CurrencyCode,
			CreditCardID:    &id,
			TransactionDate: date,
		}
		if err := tx.Create(&adj); err != nil {
			return err
		}
		return s.balances.Apply(tx, &adj)
	})
	if err != nil {
		return nil, err
	}
	return &adj, nil
}

// AdjustAccountBalance synthesizes a balance-adjustment transaction that
// moves an account's current balance to the given target. This is the
// only sanctioned way to change a balance by hand.
func (s *Service) AdjustAccountBalance(accountID string, target decimal.Decimal, date time.Time) (*models.Transaction, error) {
	var adj models.Transaction
	err := s.store.Write(func(tx *store.Tx) error {
		var acc models.Account
		if err := tx.Find(&acc, accountID); err != nil {
			return err
		}
		diff := target.Sub(acc.CurrentBalance)
		if diff.IsZero() {
			return nil
		}
		txType := models.TransactionTypeIncome
		if diff.Sign() < 0 {
			txType = models.TransactionTypeExpense
		}
		id := accountID
		adj = models.Transaction{
			Type:            txType,
			Status:          models.StatusCompleted,
			Description:     "Balance adjustment",
			Amount:          diff.Abs(),
			CurrencyCode:    acc.CurrencyCode,
			AccountID:       &id,
			TransactionDate: date,
		}
		if err := tx.Create(&adj); err != nil {
			return err
		}
		return s.balances.Apply(tx, &adj)
	})
	if err != nil {
		return nil, err
	}
	return &adj, nil
}
