// Package store is the device-local data layer. Every mirrored table is
// read and written through it: rows are owner-scoped, soft-deleted rather
// than removed, and all mutations happen inside transactional Write scopes
// so readers never observe a partially-applied batch.
package store

import (
	"errors"
	"fmt"
	"log"
	"time"

	"walletcore/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrNotFound signals a missing or soft-deleted row.
	ErrNotFound = errors.New("store: row not found")
	// ErrUnauthenticated signals that no owner session is available.
	ErrUnauthenticated = errors.New("store: no authenticated owner")
)

// OwnerProvider supplies the authenticated owner identity that scopes all
// row visibility and mutation rights.
type OwnerProvider interface {
	CurrentOwner() (string, error)
}

// StaticOwner is an OwnerProvider bound to a fixed identity.
type StaticOwner string

func (o StaticOwner) CurrentOwner() (string, error) {
	if o == "" {
		return "", ErrUnauthenticated
	}
	return string(o), nil
}

type Store struct {
	db     *gorm.DB
	owner  OwnerProvider
	logger *log.Logger
}

func New(db *gorm.DB, owner OwnerProvider, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{db: db, owner: owner, logger: logger}
}

func (s *Store) ownerID() (string, error) {
	id, err := s.owner.CurrentOwner()
	if err != nil || id == "" {
		return "", ErrUnauthenticated
	}
	return id, nil
}

// Write runs fn inside one database transaction. All operations through
// the Tx commit together or not at all.
func (s *Store) Write(fn func(tx *Tx) error) error {
	owner, err := s.ownerID()
	if err != nil {
		return err
	}
	return s.db.Transaction(func(g *gorm.DB) error {
		return fn(&Tx{db: g, owner: owner, logger: s.logger})
	})
}

// Batch runs the given operations as a single atomic write.
func (s *Store) Batch(ops ...func(tx *Tx) error) error {
	return s.Write(func(tx *Tx) error {
		for _, op := range ops {
			if err := op(tx); err != nil {
				return err
			}
		}
		return nil
	})
}

// Read returns a non-transactional view for queries. Reads may interleave
// between write scopes; they only ever see fully committed batches.
func (s *Store) Read() (*Tx, error) {
	owner, err := s.ownerID()
	if err != nil {
		return nil, err
	}
	return &Tx{db: s.db, owner: owner, logger: s.logger}, nil
}

// Tx is an owner-scoped handle over the store, either inside a Write
// transaction or as a plain read view.
type Tx struct {
	db     *gorm.DB
	owner  string
	logger *log.Logger
}

// Owner returns the identity this handle is scoped to.
func (t *Tx) Owner() string { return t.owner }

// Create inserts a new row, stamping id, owner and timestamps.
func (t *Tx) Create(row models.Syncable) error {
	now := time.Now().UTC()
	if row.GetID() == "" {
		row.SetID(uuid.NewString())
	}
	row.SetOwnerID(t.owner)
	row.SetCreatedAt(now)
	row.SetUpdatedAt(now)
	if err := t.db.Create(row).Error; err != nil {
		return fmt.Errorf("create %s: %w", row.TableName(), err)
	}
	return nil
}

// Find loads a live (non-deleted) row by id, scoped to the owner.
// Categories are also visible when system-provided (no owner).
func (t *Tx) Find(row models.Syncable, id string) error {
	q := t.db.Where("id = ? AND deleted_at IS NULL", id)
	if row.TableName() == (models.Category{}).TableName() {
		q = q.Where("owner_id = ? OR owner_id = ''", t.owner)
	} else {
		q = q.Where("owner_id = ?", t.owner)
	}
	if err := q.First(row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("find %s: %w", row.TableName(), err)
	}
	return nil
}

// Update persists changes to an existing row and bumps its updated_at so
// the next push cycle picks it up.
func (t *Tx) Update(row models.Syncable) error {
	if row.GetOwnerID() != t.owner && row.GetOwnerID() != "" {
		return ErrNotFound
	}
	row.SetUpdatedAt(time.Now().UTC())
	if err := t.db.Save(row).Error; err != nil {
		return fmt.Errorf("update %s: %w", row.TableName(), err)
	}
	return nil
}

// SoftDelete marks a row deleted. The row stays in place until a sync
// cycle confirms the deletion propagated, then it is purged.
func (t *Tx) SoftDelete(row models.Syncable) error {
	if row.GetOwnerID() != t.owner {
		return ErrNotFound
	}
	now := time.Now().UTC()
	row.SetDeletedAt(&now)
	row.SetUpdatedAt(now)
	if err := t.db.Save(row).Error; err != nil {
		return fmt.Errorf("soft delete %s: %w", row.TableName(), err)
	}
	return nil
}

// live scopes a query to the owner's non-deleted rows of a table.
func (t *Tx) live(table string) *gorm.DB {
	q := t.db.Table(table).Where("deleted_at IS NULL")
	if table == (models.Category{}).TableName() {
		return q.Where("owner_id = ? OR owner_id = ''", t.owner)
	}
	return q.Where("owner_id = ?", t.owner)
}

// Accounts returns all live accounts.
func (t *Tx) Accounts() ([]models.Account, error) {
	var rows []models.Account
	err := t.live(models.Account{}.TableName()).Order("name ASC").Find(&rows).Error
	return rows, err
}

// CreditCards returns all live credit cards.
func (t *Tx) CreditCards() ([]models.CreditCard, error) {
	var rows []models.CreditCard
	err := t.live(models.CreditCard{}.TableName()).Order("name ASC").Find(&rows).Error
	return rows, err
}

// Categories returns the owner's categories plus the shared ones.
func (t *Tx) Categories() ([]models.Category, error) {
	var rows []models.Category
	err := t.live(models.Category{}.TableName()).Order("name ASC").Find(&rows).Error
	return rows, err
}

// ActiveBudgets returns all live, active budgets.
func (t *Tx) ActiveBudgets() ([]models.Budget, error) {
	var rows []models.Budget
	err := t.live(models.Budget{}.TableName()).
		Where("is_active = ?", true).
		Find(&rows).Error
	return rows, err
}

// TransactionsBetween returns live transactions dated in [start, end).
func (t *Tx) TransactionsBetween(start, end time.Time) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := t.live(models.Transaction{}.TableName()).
		Where("transaction_date >= ? AND transaction_date < ?", start, end).
		Order("transaction_date ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// TransactionsForAccount returns live completed, non-transfer transactions
// referencing the account. This is the recalculation ledger scan.
func (t *Tx) TransactionsForAccount(accountID string) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := t.live(models.Transaction{}.TableName()).
		Where("account_id = ? AND status = ? AND type <> ?",
			accountID, models.StatusCompleted, models.TransactionTypeTransfer).
		Find(&rows).Error
	return rows, err
}

// TransfersForAccount returns live completed transfer rows touching the
// account on either side.
func (t *Tx) TransfersForAccount(accountID string) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := t.live(models.Transaction{}.TableName()).
		Where("type = ? AND status = ?", models.TransactionTypeTransfer, models.StatusCompleted).
		Where("account_id = ? OR transfer_to_account_id = ?", accountID, accountID).
		Find(&rows).Error
	return rows, err
}

// TransactionsForCard returns live completed transactions on the card.
func (t *Tx) TransactionsForCard(cardID string) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := t.live(models.Transaction{}.TableName()).
		Where("credit_card_id = ? AND status = ?", cardID, models.StatusCompleted).
		Find(&rows).Error
	return rows, err
}

// CategoryExpensesBetween returns live completed expense transactions of
// one category dated in [start, end).
func (t *Tx) CategoryExpensesBetween(categoryID string, start, end time.Time) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := t.live(models.Transaction{}.TableName()).
		Where("category_id = ? AND type = ? AND status = ?",
			categoryID, models.TransactionTypeExpense, models.StatusCompleted).
		Where("transaction_date >= ? AND transaction_date < ?", start, end).
		Find(&rows).Error
	return rows, err
}

// SeriesFrom returns the live members of a transaction series dated on or
// after from, used for "delete this and future".
func (t *Tx) SeriesFrom(parentID string, from time.Time) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := t.live(models.Transaction{}.TableName()).
		Where("(parent_transaction_id = ? OR id = ?) AND transaction_date >= ?",
			parentID, parentID, from).
		Order("transaction_date ASC").
		Find(&rows).Error
	return rows, err
}
