package models

import "time"

// Repository is a logical project container holding environment files. It is
// owned by exactly one user; ownership never transfers.
type Repository struct {
	ID string `gorm:"type:uuid;primaryKey"` // Opaque repository ID.

	OwnerUserID uint64 `gorm:"not null;index"`     // Owning user ID.
	Name        string `gorm:"type:text;not null"` // Project name.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp, list ordering key.
}
