package models

import "time"

// EnvironmentFile stores one named set of environment variables inside a
// repository. The primary key is not server-generated: it is derived from
// (repository id, file name) by the identity package and recomputed
// identically by pushing clients.
type EnvironmentFile struct {
	ID string `gorm:"type:char(64);primaryKey"` // Derived content-addressed ID.

	RepositoryID string `gorm:"type:uuid;not null;index"` // Owning repository ID.
	FileName     string `gorm:"type:text;not null"`       // File name within the workspace.

	Content       string `gorm:"type:text;not null"` // Raw dotenv content.
	VariableCount int    `gorm:"not null;default:0"` // Parsed variable count.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // First push timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last push timestamp.
}
