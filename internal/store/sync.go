package store

import (
	"fmt"
	"time"

	"walletcore/internal/models"

	"gorm.io/gorm/clause"
)

// Sync-facing primitives. These bypass the usual timestamp stamping: the
// sync engine must preserve server-assigned timestamps on pulled rows and
// must see soft-deleted rows that normal queries hide.

// Dirty loads the owner's rows of a table changed after since and not
// soft-deleted, for the push phase. dest must be a *[]models.X.
func (t *Tx) Dirty(dest interface{}, table string, since time.Time) error {
	err := t.db.Table(table).
		Where("owner_id = ? AND deleted_at IS NULL AND updated_at > ?", t.owner, since).
		Order("updated_at ASC").
		Find(dest).Error
	if err != nil {
		return fmt.Errorf("dirty %s: %w", table, err)
	}
	return nil
}

// PendingDeletions returns ids of the owner's soft-deleted rows of a
// table, awaiting propagation to the remote store.
func (t *Tx) PendingDeletions(table string) ([]string, error) {
	var ids []string
	err := t.db.Table(table).
		Where("owner_id = ? AND deleted_at IS NOT NULL", t.owner).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("pending deletions %s: %w", table, err)
	}
	return ids, nil
}

// ApplyRemote upserts a pulled row verbatim, keeping the server-assigned
// timestamps so the row does not look locally dirty afterwards.
func (t *Tx) ApplyRemote(row models.Syncable) error {
	err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("apply remote %s: %w", row.TableName(), err)
	}
	return nil
}

// Purge physically removes rows by id. Used for pulled deletions and for
// local soft-deletes once the remote confirmed them.
func (t *Tx) Purge(table string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	// table names come from the fixed sync registry, never from input
	err := t.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE id IN ?", table), ids).Error
	if err != nil {
		return fmt.Errorf("purge %s: %w", table, err)
	}
	return nil
}

// Checkpoint returns the sync state of a table, zero-valued if the table
// was never synchronized.
func (t *Tx) Checkpoint(table string) (models.SyncState, error) {
	var st models.SyncState
	err := t.db.Where("table_name = ?", table).Limit(1).Find(&st).Error
	if err != nil {
		return st, fmt.Errorf("checkpoint %s: %w", table, err)
	}
	st.Table = table
	return st, nil
}

// SaveCheckpoints persists the per-table checkpoints. Called once at the
// end of a fully successful cycle; a failed cycle never advances them.
func (t *Tx) SaveCheckpoints(states []models.SyncState) error {
	now := time.Now().UTC()
	for i := range states {
		states[i].UpdatedAt = now
		err := t.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "table_name"}},
			UpdateAll: true,
		}).Create(&states[i]).Error
		if err != nil {
			return fmt.Errorf("save checkpoint %s: %w", states[i].Table, err)
		}
	}
	return nil
}
