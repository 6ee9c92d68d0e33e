package ledger_test

import (
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"walletcore/internal/balance"
	"walletcore/internal/database"
	"walletcore/internal/ledger"
	"walletcore/internal/models"
	"walletcore/internal/series"
	"walletcore/internal/store"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testOwner = "11111111-1111-1111-1111-111111111111"

func newService(t *testing.T) (*ledger.Service, *store.Store) {
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
	quiet := log.New(io.Discard, "", 0)
	st := store.New(db, store.StaticOwner(testOwner), quiet)
	return ledger.NewService(st, balance.NewMaintainer(quiet), quiet), st
}

func seedAccount(t *testing.T, st *store.Store, initial int64) *models.Account {
	t.Helper()
	acc := models.Account{
		Name:           "Checking",
		Type:           models.AccountTypeChecking,
		InitialBalance: decimal.NewFromInt(initial),
		CurrentBalance: decimal.NewFromInt(initial),
	}
	if err := st.Write(func(tx *store.Tx) error { return tx.Create(&acc) }); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return &acc
}

func getBalance(t *testing.T, st *store.Store, accountID string) decimal.Decimal {
	t.Helper()
	read, _ := st.Read()
	var acc models.Account
	if err := read.Find(&acc, accountID); err != nil {
		t.Fatalf("find account: %v", err)
	}
	return acc.CurrentBalance
}

func expenseTemplate(accountID string, amount int64) models.Transaction {
	id := accountID
	return models.Transaction{
		Type:            models.TransactionTypeExpense,
		Status:          models.StatusCompleted,
		Description:     "Groceries",
		Amount:          decimal.NewFromInt(amount),
		AccountID:       &id,
		TransactionDate: time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
	}
}

// the aggregate delta hits the balance once, not once per generated row
func TestInstallmentSeriesBalanceOnce(t *testing.T) {
	svc, st := newService(t)
	acc := seedAccount(t, st, 1000)

	rows, err := svc.Create(expenseTemplate(acc.ID, 300), series.Plan{
		Installment: &series.Installment{Count: 3, Total: true},
	})
	if err != nil {
		t.Fatalf("create series: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}

	got := getBalance(t, st, acc.ID)
	if !got.Equal(decimal.NewFromInt(700)) {
		t.Errorf("balance = %s, want 700 (300 applied once)", got)
	}
}

func TestPendingSeriesLeavesBalanceAlone(t *testing.T) {
	svc, st := newService(t)
	acc := seedAccount(t, st, 500)

	tpl := expenseTemplate(acc.ID, 100)
	tpl.Status = models.StatusPending
	if _, err := svc.Create(tpl, series.Plan{}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if got := getBalance(t, st, acc.ID); !got.Equal(decimal.NewFromInt(500)) {
		t.Errorf("pending transaction moved the balance: %s", got)
	}
}

func TestValidationRejectsBeforeWrite(t *testing.T) {
	svc, st := newService(t)
	acc := seedAccount(t, st, 100)

	tpl := expenseTemplate(acc.ID, 0) // invalid amount
	if _, err := svc.Create(tpl, series.Plan{}); err == nil {
		t.Fatal("zero amount should be rejected")
	}

	tpl = expenseTemplate(acc.ID, 10)
	card := "22222222-2222-2222-2222-222222222222"
	tpl.CreditCardID = &card // both selectors set
	if _, err := svc.Create(tpl, series.Plan{}); err == nil {
		t.Fatal("double selector should be rejected")
	}

	read, _ := st.Read()
	rows, _ := read.TransactionsBetween(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if len(rows) != 0 {
		t.Errorf("rejected writes persisted %d rows", len(rows))
	}
}

func TestUpdateRebasesBalance(t *testing.T) {
	svc, st := newService(t)
	acc := seedAccount(t, st, 200)

	rows, err := svc.Create(expenseTemplate(acc.ID, 50), series.Plan{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = svc.Update(rows[0].ID, func(txn *models.Transaction) error {
		txn.Amount = decimal.NewFromInt(120)
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if got := getBalance(t, st, acc.ID); !got.Equal(decimal.NewFromInt(80)) {
		t.Errorf("balance = %s, want 80", got)
	}
}

func TestDeleteFromHere(t *testing.T) {
	svc, st := newService(t)
	acc := seedAccount(t, st, 1000)

	rows, err := svc.Create(expenseTemplate(acc.ID, 300), series.Plan{
		Installment: &series.Installment{Count: 3, Total: true},
	})
	if err != nil {
		t.Fatalf("create series: %v", err)
	}

	// drop the second and third installments
	if err := svc.DeleteFromHere(rows[1].ID); err != nil {
		t.Fatalf("delete from here: %v", err)
	}

	read, _ := st.Read()
	live, err := read.TransactionsBetween(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(live) != 1 {
		t.Fatalf("live rows = %d, want 1", len(live))
	}
	if live[0].ID != rows[0].ID {
		t.Error("first installment should survive")
	}

	// 1000 - 300 + 100 + 100 = 900
	if got := getBalance(t, st, acc.ID); !got.Equal(decimal.NewFromInt(900)) {
		t.Errorf("balance = %s, want 900", got)
	}
}

func TestPayInvoice(t *testing.T) {
	svc, st := newService(t)
	acc := seedAccount(t, st, 1000)

	card := models.CreditCard{
		Name:           "Visa",
		ClosingDay:     5,
		DueDay:         15,
		CreditLimit:    decimal.NewFromInt(2000),
		CurrentBalance: decimal.NewFromInt(400),
		IsActive:       true,
	}
	if err := st.Write(func(tx *store.Tx) error { return tx.Create(&card) }); err != nil {
		t.Fatalf("seed card: %v", err)
	}

	_, err := svc.PayInvoice(card.ID, acc.ID, decimal.NewFromInt(400), time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("pay invoice: %v", err)
	}

	if got := getBalance(t, st, acc.ID); !got.Equal(decimal.NewFromInt(600)) {
		t.Errorf("account balance = %s, want 600", got)
	}
	read, _ := st.Read()
	var gotCard models.CreditCard
	if err := read.Find(&gotCard, card.ID); err != nil {
		t.Fatalf("find card: %v", err)
	}
	if !gotCard.CurrentBalance.IsZero() {
		t.Errorf("card outstanding = %s, want 0", gotCard.CurrentBalance)
	}
}

func seedCard(t *testing.T, st *store.Store) *models.CreditCard {
	t.Helper()
	card := models.CreditCard{
		Name:        "Visa",
		ClosingDay:  5,
		DueDay:      15,
		CreditLimit: decimal.NewFromInt(2000),
		IsActive:    true,
	}
	if err := st.Write(func(tx *store.Tx) error { return tx.Create(&card) }); err != nil {
		t.Fatalf("seed card: %v", err)
	}
	return &card
}

func cardBalance(t *testing.T, st *store.Store, cardID string) decimal.Decimal {
	t.Helper()
	read, _ := st.Read()
	var card models.CreditCard
	if err := read.Find(&card, cardID); err != nil {
		t.Fatalf("find card: %v", err)
	}
	return card.CurrentBalance
}

// a paid-off invoice must stay paid off when balances are rebuilt from
// the ledger
func TestPayInvoiceSurvivesRecalculation(t *testing.T) {
	svc, st := newService(t)
	acc := seedAccount(t, st, 1000)
	card := seedCard(t, st)

	tpl := expenseTemplate(acc.ID, 100)
	tpl.AccountID = nil
	cardID := card.ID
	tpl.CreditCardID = &cardID
	if _, err := svc.Create(tpl, series.Plan{}); err != nil {
		t.Fatalf("card expense: %v", err)
	}
	if got := cardBalance(t, st, card.ID); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("outstanding = %s, want 100", got)
	}

	_, err := svc.PayInvoice(card.ID, acc.ID, decimal.NewFromInt(100), time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("pay invoice: %v", err)
	}
	if got := cardBalance(t, st, card.ID); !got.IsZero() {
		t.Fatalf("outstanding after payment = %s, want 0", got)
	}

	m := balance.NewMaintainer(log.New(io.Discard, "", 0))
	if err := st.Write(m.Recalculate); err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if got := cardBalance(t, st, card.ID); !got.IsZero() {
		t.Errorf("recalculation resurrected the paid debt: %s", got)
	}
	if got := getBalance(t, st, acc.ID); !got.Equal(decimal.NewFromInt(900)) {
		t.Errorf("account balance after recalculation = %s, want 900", got)
	}
}

func TestAdjustCardBalance(t *testing.T) {
	svc, st := newService(t)
	card := seedCard(t, st)

	tpl := models.Transaction{
		Type:            models.TransactionTypeExpense,
		Status:          models.StatusCompleted,
		Description:     "Dinner",
		Amount:          decimal.NewFromInt(300),
		CreditCardID:    &card.ID,
		TransactionDate: time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
	}
	if _, err := svc.Create(tpl, series.Plan{}); err != nil {
		t.Fatalf("card expense: %v", err)
	}

	adj, err := svc.AdjustCardBalance(card.ID, decimal.NewFromInt(100), time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if adj.Type != models.TransactionTypeIncome || !adj.Amount.Equal(decimal.NewFromInt(200)) {
		t.Errorf("adjustment = %s %s, want income 200", adj.Type, adj.Amount)
	}
	if got := cardBalance(t, st, card.ID); !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("outstanding = %s, want 100", got)
	}

	// the adjustment is a ledger row, so recalculation reproduces it
	m := balance.NewMaintainer(log.New(io.Discard, "", 0))
	if err := st.Write(m.Recalculate); err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if got := cardBalance(t, st, card.ID); !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("outstanding after recalculation = %s, want 100", got)
	}
}

func TestTransferMovesBothAccounts(t *testing.T) {
	svc, st := newService(t)
	from := seedAccount(t, st, 500)
	to := seedAccount(t, st, 100)

	txn, err := svc.Transfer(from.ID, to.ID, decimal.NewFromInt(200), time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := getBalance(t, st, from.ID); !got.Equal(decimal.NewFromInt(300)) {
		t.Errorf("source = %s, want 300", got)
	}
	if got := getBalance(t, st, to.ID); !got.Equal(decimal.NewFromInt(300)) {
		t.Errorf("destination = %s, want 300", got)
	}

	m := balance.NewMaintainer(log.New(io.Discard, "", 0))
	if err := st.Write(m.Recalculate); err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if got := getBalance(t, st, from.ID); !got.Equal(decimal.NewFromInt(300)) {
		t.Errorf("source after recalculation = %s, want 300", got)
	}
	if got := getBalance(t, st, to.ID); !got.Equal(decimal.NewFromInt(300)) {
		t.Errorf("destination after recalculation = %s, want 300", got)
	}

	// deleting the transfer restores both sides
	if err := svc.Delete(txn.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := getBalance(t, st, from.ID); !got.Equal(decimal.NewFromInt(500)) {
		t.Errorf("source after delete = %s, want 500", got)
	}
	if got := getBalance(t, st, to.ID); !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("destination after delete = %s, want 100", got)
	}
}

func TestTransferTemplateValidation(t *testing.T) {
	svc, st := newService(t)
	acc := seedAccount(t, st, 100)

	// missing destination
	tpl := models.Transaction{
		Type:            models.TransactionTypeTransfer,
		Amount:          decimal.NewFromInt(10),
		AccountID:       &acc.ID,
		TransactionDate: time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
	}
	if _, err := svc.Create(tpl, series.Plan{}); !errors.Is(err, ledger.ErrInvalid) {
		t.Errorf("one-legged transfer: want ErrInvalid, got %v", err)
	}

	if _, err := svc.Transfer(acc.ID, acc.ID, decimal.NewFromInt(10), time.Now()); !errors.Is(err, ledger.ErrInvalid) {
		t.Errorf("self transfer: want ErrInvalid, got %v", err)
	}
}

func TestAdjustAccountBalance(t *testing.T) {
	svc, st := newService(t)
	acc := seedAccount(t, st, 100)

	adj, err := svc.AdjustAccountBalance(acc.ID, decimal.NewFromInt(250), time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if adj.Type != models.TransactionTypeIncome || !adj.Amount.Equal(decimal.NewFromInt(150)) {
		t.Errorf("adjustment = %s %s, want income 150", adj.Type, adj.Amount)
	}
	if got := getBalance(t, st, acc.ID); !got.Equal(decimal.NewFromInt(250)) {
		t.Errorf("balance = %s, want 250", got)
	}
}
