package models

import "time"

// SyncState is the per-table sync checkpoint on the device.
//
// LastPulledAt is the server-assigned timestamp returned by the last
// successful pull (never the device clock, to avoid clock-skew gaps).
// LastPushedAt is the local watermark below which rows are considered
// already pushed. Both advance only after a fully successful cycle.
type SyncState struct {
	Table        string    `gorm:"primaryKey;size:32;column:table_name"`
	LastPulledAt time.Time
	LastPushedAt time.Time
	UpdatedAt    time.Time
}

func (SyncState) TableName() string { return "sync_states" }
