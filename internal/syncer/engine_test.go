package syncer_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"walletcore/internal/balance"
	"walletcore/internal/database"
	"walletcore/internal/models"
	"walletcore/internal/store"
	"walletcore/internal/syncer"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testOwner = "11111111-1111-1111-1111-111111111111"

type pushRecord struct {
	upsertIDs  []string
	deletedIDs []string
}

// fakeRemote records the call sequence and serves canned pull responses.
type fakeRemote struct {
	mu        sync.Mutex
	calls     []string
	pulls     map[string]*syncer.PullResponse
	pushed    map[string]pushRecord
	failPull  map[string]bool
	failPush  map[string]bool
	onPush    func(table string)
	started   chan struct{} // closed on first Pull
	block     chan struct{} // if set, Pull waits until closed
	serverNow time.Time
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		pulls:     map[string]*syncer.PullResponse{},
		pushed:    map[string]pushRecord{},
		failPull:  map[string]bool{},
		failPush:  map[string]bool{},
		serverNow: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (f *fakeRemote) Pull(ctx context.Context, table string, since time.Time) (*syncer.PullResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "pull:"+table)
	started := f.started
	f.started = nil
	block := f.block
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if block != nil {
		<-block
	}
	if f.failPull[table] {
		return nil, fmt.Errorf("pull %s: remote unavailable", table)
	}
	if resp, ok := f.pulls[table]; ok {
		resp.ServerNow = f.serverNow
		return resp, nil
	}
	return &syncer.PullResponse{ServerNow: f.serverNow}, nil
}

func (f *fakeRemote) Push(ctx context.Context, table string, upserts []models.Syncable, deletedIDs []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, "push:"+table)
	ids := make([]string, len(upserts))
	for i, row := range upserts {
		ids[i] = row.GetID()
	}
	f.pushed[table] = pushRecord{upsertIDs: ids, deletedIDs: deletedIDs}
	onPush := f.onPush
	f.mu.Unlock()

	if f.failPush[table] {
		return fmt.Errorf("push %s: remote unavailable", table)
	}
	if onPush != nil {
		onPush(table)
	}
	return nil
}

func newTestEngine(t *testing.T, remote syncer.Remote) (*syncer.Engine, *store.Store, *gorm.DB) {
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
	return syncer.NewEngine(st, remote, balance.NewMaintainer(quiet), quiet), st, db
}

func rawRow(t *testing.T, row models.Syncable) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("marshal row: %v", err)
	}
	return b
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

func TestPullCompletesBeforePush(t *testing.T) {
	remote := newFakeRemote()
	engine, st, db := newTestEngine(t, remote)

	seedAccount(t, st, 100)

	// remote-changed transaction to be pulled this cycle
	pulled := models.Transaction{
		Type:            models.TransactionTypeExpense,
		Status:          models.StatusCompleted,
		Amount:          decimal.NewFromInt(42),
		TransactionDate: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	pulled.ID = "55555555-5555-5555-5555-555555555555"
	pulled.OwnerID = testOwner
	pulled.CreatedAt = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	pulled.UpdatedAt = pulled.CreatedAt
	remote.pulls["transactions"] = &syncer.PullResponse{
		Created: []json.RawMessage{rawRow(t, &pulled)},
	}

	// during the push phase the pulled row must already be local
	remote.onPush = func(table string) {
		var count int64
		db.Model(&models.Transaction{}).Where("id = ?", pulled.ID).Count(&count)
		if count != 1 {
			t.Errorf("push phase for %s ran before pulled row was applied", table)
		}
	}

	if err := engine.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	lastPull, firstPush := -1, -1
	for i, call := range remote.calls {
		if strings.HasPrefix(call, "pull:") {
			lastPull = i
		}
		if firstPush == -1 && strings.HasPrefix(call, "push:") {
			firstPush = i
		}
	}
	if firstPush != -1 && firstPush < lastPull {
		t.Errorf("push started before pulls finished: %v", remote.calls)
	}
}

func TestCheckpointUsesServerClock(t *testing.T) {
	remote := newFakeRemote()
	engine, st, _ := newTestEngine(t, remote)

	if err := engine.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	read, _ := st.Read()
	for _, table := range syncer.Tables() {
		cp, err := read.Checkpoint(table)
		if err != nil {
			t.Fatalf("checkpoint %s: %v", table, err)
		}
		if !cp.LastPulledAt.Equal(remote.serverNow) {
			t.Errorf("%s checkpoint = %v, want server clock %v", table, cp.LastPulledAt, remote.serverNow)
		}
	}
}

func TestFailedCycleAdvancesNothing(t *testing.T) {
	remote := newFakeRemote()
	engine, st, _ := newTestEngine(t, remote)

	seedAccount(t, st, 100)
	remote.failPush["bank_accounts"] = true

	if err := engine.Sync(context.Background()); err == nil {
		t.Fatal("sync should fail when a push fails")
	}

	read, _ := st.Read()
	for _, table := range syncer.Tables() {
		cp, err := read.Checkpoint(table)
		if err != nil {
			t.Fatalf("checkpoint %s: %v", table, err)
		}
		if !cp.LastPulledAt.IsZero() {
			t.Errorf("%s checkpoint advanced despite failed cycle", table)
		}
	}
}

func TestSecondInvocationIsNoOp(t *testing.T) {
	remote := newFakeRemote()
	remote.started = make(chan struct{})
	remote.block = make(chan struct{})
	engine, _, _ := newTestEngine(t, remote)

	done := make(chan error, 1)
	go func() { done <- engine.Sync(context.Background()) }()

	<-remote.started
	if err := engine.Sync(context.Background()); !errors.Is(err, syncer.ErrSyncInFlight) {
		t.Errorf("concurrent sync: want ErrSyncInFlight, got %v", err)
	}

	close(remote.block)
	if err := <-done; err != nil {
		t.Fatalf("first sync: %v", err)
	}

	// engine is idle again once the cycle finished
	if err := engine.Sync(context.Background()); err != nil {
		t.Errorf("sync after idle: %v", err)
	}
}

func TestSoftDeleteRoundTrip(t *testing.T) {
	remote := newFakeRemote()
	engine, st, db := newTestEngine(t, remote)

	acc := seedAccount(t, st, 100)
	accID := acc.ID
	txn := models.Transaction{
		Type:            models.TransactionTypeExpense,
		Status:          models.StatusCompleted,
		Amount:          decimal.NewFromInt(30),
		AccountID:       &accID,
		TransactionDate: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	err := st.Write(func(tx *store.Tx) error {
		if err := tx.Create(&txn); err != nil {
			return err
		}
		return tx.SoftDelete(&txn)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := engine.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	rec := remote.pushed["transactions"]
	if len(rec.deletedIDs) != 1 || rec.deletedIDs[0] != txn.ID {
		t.Errorf("deletion not pushed: %+v", rec)
	}
	for _, id := range rec.upsertIDs {
		if id == txn.ID {
			t.Error("soft-deleted row must not be pushed as an upsert")
		}
	}

	// confirmed deletion is purged locally
	var count int64
	db.Model(&models.Transaction{}).Where("id = ?", txn.ID).Count(&count)
	if count != 0 {
		t.Error("confirmed deletion should be purged from the local store")
	}
}

// a deletion pulled from the server reverses the row's balance effect
// through the post-pull recalculation
func TestPulledDeletionRebuildsBalances(t *testing.T) {
	remote := newFakeRemote()
	engine, st, _ := newTestEngine(t, remote)

	acc := seedAccount(t, st, 100)
	accID := acc.ID
	txn := models.Transaction{
		Type:            models.TransactionTypeExpense,
		Status:          models.StatusCompleted,
		Amount:          decimal.NewFromInt(40),
		AccountID:       &accID,
		TransactionDate: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	err := st.Write(func(tx *store.Tx) error { return tx.Create(&txn) })
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	err = st.Write(func(tx *store.Tx) error {
		var a models.Account
		if err := tx.Find(&a, acc.ID); err != nil {
			return err
		}
		a.CurrentBalance = decimal.NewFromInt(60)
		return tx.Update(&a)
	})
	if err != nil {
		t.Fatalf("apply expense: %v", err)
	}

	remote.pulls["transactions"] = &syncer.PullResponse{
		DeletedIDs: []string{txn.ID},
	}

	if err := engine.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	read, _ := st.Read()
	var got models.Account
	if err := read.Find(&got, acc.ID); err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.CurrentBalance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance = %s, want 100 after pulled deletion", got.CurrentBalance)
	}
}

func TestMalformedIDNeverPushed(t *testing.T) {
	remote := newFakeRemote()
	engine, _, db := newTestEngine(t, remote)

	bad := models.Account{Name: "Corrupt"}
	bad.ID = "not-a-uuid"
	bad.OwnerID = testOwner
	bad.CreatedAt = time.Now().UTC()
	bad.UpdatedAt = bad.CreatedAt
	if err := db.Create(&bad).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := engine.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	for _, id := range remote.pushed["bank_accounts"].upsertIDs {
		if id == bad.ID {
			t.Error("malformed id reached the wire")
		}
	}
}
