package models

import "time"

// Syncable is implemented by every row type mirrored between the device
// store and the remote backend. The store stamps owner and timestamps
// through this interface instead of relying on gorm's automatic tracking,
// because pulled rows must keep the server-assigned timestamps verbatim.
type Syncable interface {
	GetID() string
	SetID(id string)
	GetOwnerID() string
	SetOwnerID(id string)
	GetCreatedAt() time.Time
	SetCreatedAt(t time.Time)
	GetUpdatedAt() time.Time
	SetUpdatedAt(t time.Time)
	GetDeletedAt() *time.Time
	SetDeletedAt(t *time.Time)
	TableName() string
}

// SyncMeta holds the columns shared by all mirrored tables.
// Timestamps are managed explicitly by the store layer.
type SyncMeta struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	OwnerID   string     `gorm:"index;size:36" json:"owner_id"`
	CreatedAt time.Time  `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt time.Time  `gorm:"index;autoUpdateTime:false" json:"updated_at"`
	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`
}

func (m *SyncMeta) GetID() string              { return m.ID }
func (m *SyncMeta) SetID(id string)            { m.ID = id }
func (m *SyncMeta) GetOwnerID() string         { return m.OwnerID }
func (m *SyncMeta) SetOwnerID(id string)       { m.OwnerID = id }
func (m *SyncMeta) GetCreatedAt() time.Time    { return m.CreatedAt }
func (m *SyncMeta) SetCreatedAt(t time.Time)   { m.CreatedAt = t }
func (m *SyncMeta) GetUpdatedAt() time.Time    { return m.UpdatedAt }
func (m *SyncMeta) SetUpdatedAt(t time.Time)   { m.UpdatedAt = t }
func (m *SyncMeta) GetDeletedAt() *time.Time   { return m.DeletedAt }
func (m *SyncMeta) SetDeletedAt(t *time.Time)  { m.DeletedAt = t }
