package balance_test

import (
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"walletcore/internal/balance"
	"walletcore/internal/database"
	"walletcore/internal/models"
	"walletcore/internal/store"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testOwner = "11111111-1111-1111-1111-111111111111"

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.New(db, store.StaticOwner(testOwner), log.New(io.Discard, "", 0))
}

func newMaintainer() *balance.Maintainer {
	return balance.NewMaintainer(log.New(io.Discard, "", 0))
}

func createAccount(t *testing.T, st *store.Store, initial int64) *models.Account {
	t.Helper()
	acc := models.Account{
		Name:           "Checking",
		Type:           models.AccountTypeChecking,
		InitialBalance: decimal.NewFromInt(initial),
		CurrentBalance: decimal.NewFromInt(initial),
	}
	err := st.Write(func(tx *store.Tx) error { return tx.Create(&acc) })
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return &acc
}

func addTransaction(t *testing.T, st *store.Store, m *balance.Maintainer, accountID, txType string, amount int64) *models.Transaction {
	t.Helper()
	id := accountID
	txn := models.Transaction{
		Type:            txType,
		Status:          models.StatusCompleted,
		Amount:          decimal.NewFromInt(amount),
		AccountID:       &id,
		TransactionDate: time.Now(),
	}
	err := st.Write(func(tx *store.Tx) error {
		if err := tx.Create(&txn); err != nil {
			return err
		}
		return m.Apply(tx, &txn)
	})
	if err != nil {
		t.Fatalf("add transaction: %v", err)
	}
	return &txn
}

func accountBalance(t *testing.T, st *store.Store, id string) decimal.Decimal {
	t.Helper()
	read, err := st.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var acc models.Account
	if err := read.Find(&acc, id); err != nil {
		t.Fatalf("find account: %v", err)
	}
	return acc.CurrentBalance
}

// initial 1000 + income 100 + income 200 - expense 50 = 1250
func TestBalanceInvariant(t *testing.T) {
	st := newTestStore(t)
	m := newMaintainer()
	acc := createAccount(t, st, 1000)

	addTransaction(t, st, m, acc.ID, models.TransactionTypeIncome, 100)
	addTransaction(t, st, m, acc.ID, models.TransactionTypeIncome, 200)
	addTransaction(t, st, m, acc.ID, models.TransactionTypeExpense, 50)

	got := accountBalance(t, st, acc.ID)
	if !got.Equal(decimal.NewFromInt(1250)) {
		t.Errorf("balance = %s, want 1250", got)
	}
}

func TestRecalculateIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	m := newMaintainer()
	acc := createAccount(t, st, 500)
	addTransaction(t, st, m, acc.ID, models.TransactionTypeIncome, 300)
	addTransaction(t, st, m, acc.ID, models.TransactionTypeExpense, 120)

	// corrupt the derived balance, then recover
	err := st.Write(func(tx *store.Tx) error {
		var a models.Account
		if err := tx.Find(&a, acc.ID); err != nil {
			return err
		}
		a.CurrentBalance = decimal.NewFromInt(-999)
		return tx.Update(&a)
	})
	if err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := st.Write(m.Recalculate); err != nil {
			t.Fatalf("recalculate #%d: %v", i+1, err)
		}
		got := accountBalance(t, st, acc.ID)
		if !got.Equal(decimal.NewFromInt(680)) {
			t.Errorf("recalculate #%d: balance = %s, want 680", i+1, got)
		}
	}
}

func TestDeleteReversesEffect(t *testing.T) {
	st := newTestStore(t)
	m := newMaintainer()
	acc := createAccount(t, st, 100)
	txn := addTransaction(t, st, m, acc.ID, models.TransactionTypeExpense, 40)

	err := st.Write(func(tx *store.Tx) error {
		if err := tx.SoftDelete(txn); err != nil {
			return err
		}
		return m.Reverse(tx, txn)
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	got := accountBalance(t, st, acc.ID)
	if !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance after delete = %s, want 100", got)
	}
}

func TestRebaseAmountEdit(t *testing.T) {
	st := newTestStore(t)
	m := newMaintainer()
	acc := createAccount(t, st, 100)
	txn := addTransaction(t, st, m, acc.ID, models.TransactionTypeExpense, 30)

	err := st.Write(func(tx *store.Tx) error {
		old := *txn
		txn.Amount = decimal.NewFromInt(80)
		if err := tx.Update(txn); err != nil {
			return err
		}
		return m.Rebase(tx, &old, txn)
	})
	if err != nil {
		t.Fatalf("rebase: %v", err)
	}

	got := accountBalance(t, st, acc.ID)
	if !got.Equal(decimal.NewFromInt(20)) {
		t.Errorf("balance after edit = %s, want 20", got)
	}
}

// moving a transaction to another account is rebuilt via recalculation
func TestRebaseTargetChange(t *testing.T) {
	st := newTestStore(t)
	m := newMaintainer()
	accA := createAccount(t, st, 100)
	accB := createAccount(t, st, 100)
	txn := addTransaction(t, st, m, accA.ID, models.TransactionTypeExpense, 25)

	err := st.Write(func(tx *store.Tx) error {
		old := *txn
		id := accB.ID
		txn.AccountID = &id
		if err := tx.Update(txn); err != nil {
			return err
		}
		return m.Rebase(tx, &old, txn)
	})
	if err != nil {
		t.Fatalf("rebase: %v", err)
	}

	if got := accountBalance(t, st, accA.ID); !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("source balance = %s, want 100", got)
	}
	if got := accountBalance(t, st, accB.ID); !got.Equal(decimal.NewFromInt(75)) {
		t.Errorf("destination balance = %s, want 75", got)
	}
}

// a missing target skips the balance update instead of failing the write
func TestMissingAccountIsAbsorbed(t *testing.T) {
	st := newTestStore(t)
	m := newMaintainer()

	id := "99999999-9999-9999-9999-999999999999"
	txn := models.Transaction{
		Type:            models.TransactionTypeExpense,
		Status:          models.StatusCompleted,
		Amount:          decimal.NewFromInt(10),
		AccountID:       &id,
		TransactionDate: time.Now(),
	}
	err := st.Write(func(tx *store.Tx) error {
		if err := tx.Create(&txn); err != nil {
			return err
		}
		return m.Apply(tx, &txn)
	})
	if err != nil {
		t.Fatalf("write should succeed despite missing account: %v", err)
	}
}

func TestCardBalance(t *testing.T) {
	st := newTestStore(t)
	m := newMaintainer()

	card := models.CreditCard{
		Name:        "Visa",
		ClosingDay:  5,
		DueDay:      15,
		CreditLimit: decimal.NewFromInt(1000),
		IsActive:    true,
	}
	if err := st.Write(func(tx *store.Tx) error { return tx.Create(&card) }); err != nil {
		t.Fatalf("create card: %v", err)
	}

	cardID := card.ID
	expense := models.Transaction{
		Type:            models.TransactionTypeExpense,
		Status:          models.StatusCompleted,
		Amount:          decimal.NewFromInt(250),
		CreditCardID:    &cardID,
		TransactionDate: time.Now(),
	}
	err := st.Write(func(tx *store.Tx) error {
		if err := tx.Create(&expense); err != nil {
			return err
		}
		return m.Apply(tx, &expense)
	})
	if err != nil {
		t.Fatalf("card expense: %v", err)
	}

	read, _ := st.Read()
	var got models.CreditCard
	if err := read.Find(&got, card.ID); err != nil {
		t.Fatalf("find card: %v", err)
	}
	if !got.CurrentBalance.Equal(decimal.NewFromInt(250)) {
		t.Errorf("outstanding = %s, want 250", got.CurrentBalance)
	}
	if !got.AvailableLimit().Equal(decimal.NewFromInt(750)) {
		t.Errorf("available = %s, want 750", got.AvailableLimit())
	}
}
