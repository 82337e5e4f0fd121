package models

import "time"

// Session represents an authenticated session. DeviceID is a weak reference:
// a non-nil value means the device was valid and owned by the session user at
// bind time. It is re-checked on access, not kept consistent by deletion.
type Session struct {
	ID string `gorm:"type:uuid;primaryKey"` // Opaque session ID.

	UserID   uint64  `gorm:"not null;index"` // Owning user ID.
	DeviceID *string `gorm:"type:uuid"`      // Bound device ID, nil until bound.

	ExpiresAt time.Time `gorm:"not null"`                // Expiry timestamp.
	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
