// Package syncer implements the bidirectional delta synchronizer between
// the device store and the remote backend. Each cycle pulls remote
// changes first, then pushes local ones, and only then advances the
// per-table checkpoints. Any failure aborts the whole cycle; the next
// trigger retries from the last committed checkpoint.
package syncer

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"walletcore/internal/balance"
	"walletcore/internal/models"
	"walletcore/internal/store"

	"github.com/google/uuid"
)

// Cycle states. A second invocation while not idle is a no-op, never a
// queued retry.
const (
	stateIdle int32 = iota
	statePulling
	statePushing
)

// ErrSyncInFlight is returned when a cycle is already running.
var ErrSyncInFlight = errors.New("syncer: sync already in progress")

type Engine struct {
	store    *store.Store
	remote   Remote
	balances *balance.Maintainer
	logger   *log.Logger
	state    atomic.Int32
}

func NewEngine(st *store.Store, remote Remote, balances *balance.Maintainer, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{store: st, remote: remote, balances: balances, logger: logger}
}

// Sync runs one full pull-then-push cycle. Checkpoints advance only when
// every table pulled and pushed successfully.
func (e *Engine) Sync(ctx context.Context) error {
	if !e.state.CompareAndSwap(stateIdle, statePulling) {
		return ErrSyncInFlight
	}
	defer e.state.Store(stateIdle)

	read, err := e.store.Read()
	if err != nil {
		return err
	}

	states := make([]models.SyncState, len(syncTables))
	for i, td := range syncTables {
		st, err := read.Checkpoint(td.name)
		if err != nil {
			return err
		}
		states[i] = st
	}

	// Local watermark for the push phase of the NEXT cycle. Captured
	// before any local write so nothing modified mid-cycle is missed.
	cycleStart := time.Now().UTC()

	ledgerChanged, err := e.pull(ctx, states)
	if err != nil {
		return err
	}

	// Pulled ledger changes invalidate the incremental balances; rebuild
	// before pushing so pushed account/card rows carry fresh values.
	if ledgerChanged {
		if err := e.store.Write(e.balances.Recalculate); err != nil {
			return err
		}
	}

	e.state.Store(statePushing)
	if err := e.push(ctx, states); err != nil {
		return err
	}

	for i := range states {
		states[i].LastPushedAt = cycleStart
	}
	return e.store.Write(func(tx *store.Tx) error {
		return tx.SaveCheckpoints(states)
	})
}

// pull fetches and applies remote deltas for every table, updating each
// state's LastPulledAt from the server clock. Reports whether any
// balance-affecting table changed.
func (e *Engine) pull(ctx context.Context, states []models.SyncState) (bool, error) {
	ledgerChanged := false
	for i, td := range syncTables {
		resp, err := e.remote.Pull(ctx, td.name, states[i].LastPulledAt)
		if err != nil {
			e.logger.Printf("sync: pull %s failed: %v", td.name, err)
			return false, err
		}

		changed := len(resp.Created) + len(resp.Updated) + len(resp.DeletedIDs)
		if changed > 0 {
			err = e.store.Write(func(tx *store.Tx) error {
				for _, raw := range append(resp.Created, resp.Updated...) {
					row, err := td.decode(raw)
					if err != nil {
						return err
					}
					if err := tx.ApplyRemote(row); err != nil {
						return err
					}
				}
				return tx.Purge(td.name, resp.DeletedIDs)
			})
			if err != nil {
				return false, err
			}
			if td.ledger {
				ledgerChanged = true
			}
		}

		states[i].LastPulledAt = resp.ServerNow
	}
	return ledgerChanged, nil
}

// push uploads locally dirty rows and soft-deleted ids for every table.
// Confirmed deletions are purged locally, completing the soft-delete
// lifecycle.
func (e *Engine) push(ctx context.Context, states []models.SyncState) error {
	read, err := e.store.Read()
	if err != nil {
		return err
	}
	for i, td := range syncTables {
		rows, err := td.dirty(read, states[i].LastPushedAt)
		if err != nil {
			return err
		}
		upserts := make([]models.Syncable, 0, len(rows))
		for _, row := range rows {
			// Malformed local-only ids never reach the wire.
			if _, err := uuid.Parse(row.GetID()); err != nil {
				e.logger.Printf("sync: skipping %s row with invalid id %q", td.name, row.GetID())
				continue
			}
			upserts = append(upserts, row)
		}

		deleted, err := read.PendingDeletions(td.name)
		if err != nil {
			return err
		}

		if len(upserts) == 0 && len(deleted) == 0 {
			continue
		}
		if err := e.remote.Push(ctx, td.name, upserts, deleted); err != nil {
			e.logger.Printf("sync: push %s failed: %v", td.name, err)
			return err
		}
		if len(deleted) > 0 {
			err = e.store.Write(func(tx *store.Tx) error {
				return tx.Purge(td.name, deleted)
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// TriggerAsync fires a sync in the background. Post-mutation callers use
// this fire-and-forget path; failures are logged, never surfaced.
func (e *Engine) TriggerAsync(ctx context.Context) {
	go func() {
		if err := e.Sync(ctx); err != nil && !errors.Is(err, ErrSyncInFlight) {
			e.logger.Printf("sync: background cycle failed: %v", err)
		}
	}()
}

// Run syncs immediately, then on every interval tick until ctx is done.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	if err := e.Sync(ctx); err != nil && !errors.Is(err, ErrSyncInFlight) {
		e.logger.Printf("sync: startup cycle failed: %v", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Sync(ctx); err != nil && !errors.Is(err, ErrSyncInFlight) {
				e.logger.Printf("sync: interval cycle failed: %v", err)
			}
		}
	}
}
