package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"walletcore/internal/middleware"
	"walletcore/internal/syncer"
	"walletcore/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SyncHandler serves the per-table pull/push endpoints of the sync
// contract. The owner is always taken from the authenticated session;
// owner fields in client payloads are ignored.
type SyncHandler struct {
	DB *gorm.DB
}

func NewSyncHandler(db *gorm.DB) *SyncHandler {
	return &SyncHandler{DB: db}
}

type pullReq struct {
	UpdatedSince time.Time `json:"updated_since"`
}

// Pull returns the owner's rows changed since the checkpoint, partitioned
// into created / updated / deleted, plus the server clock reading the
// device must checkpoint from.
func (h *SyncHandler) Pull(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not signed in")
		return
	}
	table := c.Param("table")
	if !syncer.KnownTable(table) {
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "unknown table")
		return
	}

	var req pullReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid parameters")
		return
	}

	// Clock read precedes the query so rows updated mid-request land in
	// the next pull instead of a clock-skew gap.
	serverNow := time.Now().UTC()

	q := h.DB.Where("updated_at > ?", req.UpdatedSince)
	if table == "categories" {
		// shared system categories have no owner
		q = q.Where("owner_id = ? OR owner_id = ''", user.ID)
	} else {
		q = q.Where("owner_id = ?", user.ID)
	}

	rows, err := syncer.FetchRows(q, table)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "query failed")
		return
	}

	created := make([]interface{}, 0)
	updated := make([]interface{}, 0)
	deletedIDs := make([]string, 0)
	for _, row := range rows {
		switch {
		case row.GetDeletedAt() != nil:
			deletedIDs = append(deletedIDs, row.GetID())
		case row.GetCreatedAt().After(req.UpdatedSince):
			created = append(created, row)
		default:
			updated = append(updated, row)
		}
	}

	util.Success(c, util.Response{
		"created":     created,
		"updated":     updated,
		"deleted_ids": deletedIDs,
		"server_now":  serverNow,
	})
}

type pushReq struct {
	Upserts    []json.RawMessage `json:"upserts"`
	DeletedIDs []string          `json:"deleted_ids"`
}

// Push upserts the device's dirty rows and soft-deletes the ids it
// deleted locally. Rows owned by someone else are refused wholesale.
func (h *SyncHandler) Push(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not signed in")
		return
	}
	table := c.Param("table")
	if !syncer.KnownTable(table) {
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "unknown table")
		return
	}

	var req pushReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid parameters")
		return
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		for _, raw := range req.Upserts {
			row, err := syncer.DecodeRow(table, raw)
			if err != nil {
				return err
			}
			if _, err := uuid.Parse(row.GetID()); err != nil {
				continue // malformed ids never poison the store
			}
			// session owner wins over whatever the payload claims
			row.SetOwnerID(user.ID)

			var owners []string
			err = tx.Table(table).Where("id = ?", row.GetID()).
				Limit(1).Pluck("owner_id", &owners).Error
			if err != nil {
				return err
			}
			if len(owners) > 0 && owners[0] != "" && owners[0] != user.ID {
				continue // someone else's row, drop silently
			}

			err = tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).Create(row).Error
			if err != nil {
				return err
			}
		}

		if len(req.DeletedIDs) > 0 {
			now := time.Now().UTC()
			err := tx.Table(table).
				Where("id IN ? AND owner_id = ?", req.DeletedIDs, user.ID).
				Updates(map[string]interface{}{
					"deleted_at": now,
					"updated_at": now,
				}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "push failed")
		return
	}

	util.Success(c, util.Response{
		"upserted": len(req.Upserts),
		"deleted":  len(req.DeletedIDs),
	})
}
