package models

import (
	"time"

	"gorm.io/datatypes"
)

// Device represents a registered client device. A device exists independently
// of sessions: a session binds to a device for its lifetime but does not own
// it, and deleting a device does not delete session rows that reference it.
type Device struct {
	ID string `gorm:"type:uuid;primaryKey"` // Opaque device ID.

	UserID uint64 `gorm:"not null;index"`     // Owning user ID.
	Name   string `gorm:"type:text;not null"` // Display name, e.g. hostname.

	PublicKey string `gorm:"type:text;not null"` // Device public key (PEM).

	Workspaces datatypes.JSON `gorm:"not null;default:'[]'"` // Synced workspace paths as a JSON array.

	RegisteredAt time.Time `gorm:"not null;autoCreateTime"` // Registration timestamp.
}
