package syncer

import (
	"encoding/json"
	"fmt"
	"time"

	"walletcore/internal/models"
	"walletcore/internal/store"

	"gorm.io/gorm"
)

// tableDef maps one mirrored table to its typed row. Untyped JSON from
// the wire is decoded here, at the store boundary, and never propagates
// further in. The same registry serves both sides of the sync contract:
// the device engine (dirty) and the backend handlers (fetch).
type tableDef struct {
	name   string
	ledger bool // changes affect derived balances
	decode func(raw json.RawMessage) (models.Syncable, error)
	dirty  func(tx *store.Tx, since time.Time) ([]models.Syncable, error)
	fetch  func(q *gorm.DB) ([]models.Syncable, error)
}

func asSyncable[T any, PT interface {
	*T
	models.Syncable
}](rows []T) []models.Syncable {
	out := make([]models.Syncable, len(rows))
	for i := range rows {
		out[i] = PT(&rows[i])
	}
	return out
}

func dirtyRows[T any, PT interface {
	*T
	models.Syncable
}](table string) func(tx *store.Tx, since time.Time) ([]models.Syncable, error) {
	return func(tx *store.Tx, since time.Time) ([]models.Syncable, error) {
		var rows []T
		if err := tx.Dirty(&rows, table, since); err != nil {
			return nil, err
		}
		return asSyncable[T, PT](rows), nil
	}
}

func fetchRows[T any, PT interface {
	*T
	models.Syncable
}]() func(q *gorm.DB) ([]models.Syncable, error) {
	return func(q *gorm.DB) ([]models.Syncable, error) {
		var rows []T
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		return asSyncable[T, PT](rows), nil
	}
}

func decodeRow[T any, PT interface {
	*T
	models.Syncable
}]() func(raw json.RawMessage) (models.Syncable, error) {
	return func(raw json.RawMessage) (models.Syncable, error) {
		var r T
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, err
		}
		return PT(&r), nil
	}
}

// syncTables lists the mirrored tables in dependency order: referenced
// tables sync before the tables that point at them.
var syncTables = []tableDef{
	{
		name:   "categories",
		decode: decodeRow[models.Category](),
		dirty:  dirtyRows[models.Category]("categories"),
		fetch:  fetchRows[models.Category](),
	},
	{
		name:   "bank_accounts",
		ledger: true,
		decode: decodeRow[models.Account](),
		dirty:  dirtyRows[models.Account]("bank_accounts"),
		fetch:  fetchRows[models.Account](),
	},
	{
		name:   "credit_cards",
		ledger: true,
		decode: decodeRow[models.CreditCard](),
		dirty:  dirtyRows[models.CreditCard]("credit_cards"),
		fetch:  fetchRows[models.CreditCard](),
	},
	{
		name:   "budgets",
		decode: decodeRow[models.Budget](),
		dirty:  dirtyRows[models.Budget]("budgets"),
		fetch:  fetchRows[models.Budget](),
	},
	{
		name:   "transactions",
		ledger: true,
		decode: decodeRow[models.Transaction](),
		dirty:  dirtyRows[models.Transaction]("transactions"),
		fetch:  fetchRows[models.Transaction](),
	},
}

// Tables returns the mirrored table names in sync order.
func Tables() []string {
	names := make([]string, len(syncTables))
	for i, td := range syncTables {
		names[i] = td.name
	}
	return names
}

// KnownTable reports whether the name is a mirrored table.
func KnownTable(table string) bool {
	for _, td := range syncTables {
		if td.name == table {
			return true
		}
	}
	return false
}

// DecodeRow decodes a wire row for the named table into its typed model.
func DecodeRow(table string, raw json.RawMessage) (models.Syncable, error) {
	for _, td := range syncTables {
		if td.name == table {
			return td.decode(raw)
		}
	}
	return nil, fmt.Errorf("syncer: unknown table %q", table)
}

// FetchRows runs the pre-scoped query and returns the typed rows of the
// named table. Used by the backend's pull handler.
func FetchRows(q *gorm.DB, table string) ([]models.Syncable, error) {
	for _, td := range syncTables {
		if td.name == table {
			return td.fetch(q.Table(td.name))
		}
	}
	return nil, fmt.Errorf("syncer: unknown table %q", table)
}
