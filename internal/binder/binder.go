// Package binder associates authenticated sessions with registered devices
// and resolves sessions on each request. Resolution fails closed: any session
// that cannot be fully resolved to an active user yields the same
// unauthenticated outcome.
package binder

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/envsyncd/envsyncd/internal/db"
	"github.com/envsyncd/envsyncd/internal/models"
	"github.com/envsyncd/envsyncd/internal/quota"
	"github.com/envsyncd/envsyncd/internal/syncstore"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrUnauthenticated is the single outcome for every resolution failure:
// missing session, expired session, unknown or inactive user.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrSessionBound indicates a bind attempt on an already-bound session. The
// Unbound to Bound transition is terminal until the session is discarded.
var ErrSessionBound = errors.New("session already bound")

// Binder manages devices and session-device bindings.
type Binder struct {
	db *gorm.DB
}

// NewBinder constructs a Binder.
func NewBinder(conn *gorm.DB) *Binder {
	return &Binder{db: conn}
}

// RegisterDevice creates a device for the user. The device ceiling is checked
// and the row inserted inside one transaction.
func (b *Binder) RegisterDevice(ctx context.Context, userID uint64, name, publicKey string, workspaces []string) (*models.Device, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("binder: missing device name")
	}
	publicKey = strings.TrimSpace(publicKey)
	if publicKey == "" {
		return nil, errors.New("binder: missing public key")
	}
	if ceiling := quota.Limit(quota.MaxPublicKeyLength); len(publicKey) > ceiling {
		return nil, &syncstore.PayloadTooLargeError{Field: "public_key", Size: len(publicKey), Ceiling: ceiling}
	}

	workspacesJSON, errWorkspaces := encodeWorkspaces(workspaces)
	if errWorkspaces != nil {
		return nil, errWorkspaces
	}

	device := models.Device{
		ID:           uuid.NewString(),
		UserID:       userID,
		Name:         name,
		PublicKey:    publicKey,
		Workspaces:   workspacesJSON,
		RegisteredAt: time.Now().UTC(),
	}

	errTx := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner models.User
		if errFind := db.LockForUpdate(tx).First(&owner, userID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return syncstore.ErrNotFound
			}
			return errFind
		}

		var count int64
		if errCount := tx.Model(&models.Device{}).
			Where("user_id = ?", userID).
			Count(&count).Error; errCount != nil {
			return errCount
		}
		ceiling := quota.Limit(quota.MaxDevicesPerUser)
		if int(count) >= ceiling {
			return &syncstore.QuotaExceededError{Quota: quota.MaxDevicesPerUser, Used: int(count), Ceiling: ceiling}
		}

		return tx.Create(&device).Error
	})
	if errTx != nil {
		return nil, errTx
	}
	return &device, nil
}

// ListDevices returns the user's devices in registration order.
func (b *Binder) ListDevices(ctx context.Context, userID uint64) ([]models.Device, error) {
	var rows []models.Device
	if errFind := b.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("registered_at ASC, id ASC").
		Find(&rows).Error; errFind != nil {
		return nil, errFind
	}
	return rows, nil
}

// RemoveDevice deletes an owned device. Sessions bound to it are left in
// place; resolution re-checks the device on each access.
func (b *Binder) RemoveDevice(ctx context.Context, userID uint64, deviceID string) error {
	res := b.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", strings.TrimSpace(deviceID), userID).
		Delete(&models.Device{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return syncstore.ErrNotFound
	}
	return nil
}

// CreateSession opens an unbound session for the user.
func (b *Binder) CreateSession(ctx context.Context, userID uint64, ttl time.Duration) (*models.Session, error) {
	if ttl <= 0 {
		return nil, errors.New("binder: non-positive session ttl")
	}
	now := time.Now().UTC()
	session := models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if errCreate := b.db.WithContext(ctx).Create(&session).Error; errCreate != nil {
		return nil, errCreate
	}
	return &session, nil
}

// DeleteSession discards a session record entirely (logout).
func (b *Binder) DeleteSession(ctx context.Context, sessionID string) error {
	return b.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(sessionID)).
		Delete(&models.Session{}).Error
}

// BindSession moves a session from Unbound to Bound(deviceID). Binding
// requires the device to belong to the session user, and the device ceiling is
// re-checked at bind time to cover deletion/re-registration races. The
// transition is terminal: rebinding a bound session fails.
func (b *Binder) BindSession(ctx context.Context, sessionID, deviceID string) (*models.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	deviceID = strings.TrimSpace(deviceID)

	var bound models.Session
	errTx := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.Session
		if errFind := db.LockForUpdate(tx).
			Where("id = ?", sessionID).
			First(&session).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrUnauthenticated
			}
			return errFind
		}
		if session.Expired(time.Now().UTC()) {
			return ErrUnauthenticated
		}
		if session.DeviceID != nil {
			return ErrSessionBound
		}

		var device models.Device
		if errDevice := tx.
			Where("id = ? AND user_id = ?", deviceID, session.UserID).
			First(&device).Error; errDevice != nil {
			if errors.Is(errDevice, gorm.ErrRecordNotFound) {
				return syncstore.ErrNotFound
			}
			return errDevice
		}

		var count int64
		if errCount := tx.Model(&models.Device{}).
			Where("user_id = ?", session.UserID).
			Count(&count).Error; errCount != nil {
			return errCount
		}
		ceiling := quota.Limit(quota.MaxDevicesPerUser)
		if int(count) > ceiling {
			return &syncstore.QuotaExceededError{Quota: quota.MaxDevicesPerUser, Used: int(count), Ceiling: ceiling}
		}

		session.DeviceID = &device.ID
		if errSave := tx.Model(&models.Session{}).
			Where("id = ?", session.ID).
			Update("device_id", device.ID).Error; errSave != nil {
			return errSave
		}
		bound = session
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return &bound, nil
}

// Resolve returns the user and session for sessionID. Every failure mode
// collapses into ErrUnauthenticated.
func (b *Binder) Resolve(ctx context.Context, sessionID string) (*models.User, *models.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, nil, ErrUnauthenticated
	}

	var session models.Session
	if errFind := b.db.WithContext(ctx).
		Where("id = ?", sessionID).
		First(&session).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil, ErrUnauthenticated
		}
		return nil, nil, errFind
	}
	if session.Expired(time.Now().UTC()) {
		return nil, nil, ErrUnauthenticated
	}

	var user models.User
	if errUser := b.db.WithContext(ctx).First(&user, session.UserID).Error; errUser != nil {
		if errors.Is(errUser, gorm.ErrRecordNotFound) {
			return nil, nil, ErrUnauthenticated
		}
		return nil, nil, errUser
	}
	if !user.Active {
		return nil, nil, ErrUnauthenticated
	}
	return &user, &session, nil
}

// DeviceForSession re-checks the session's bound device on access. An unbound
// session, a deleted device, or a device no longer owned by the session user
// all yield ErrUnauthenticated.
func (b *Binder) DeviceForSession(ctx context.Context, session *models.Session) (*models.Device, error) {
	if session == nil || session.DeviceID == nil {
		return nil, ErrUnauthenticated
	}
	var device models.Device
	if errFind := b.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", *session.DeviceID, session.UserID).
		First(&device).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, errFind
	}
	return &device, nil
}

// encodeWorkspaces validates and serializes workspace paths.
func encodeWorkspaces(workspaces []string) (datatypes.JSON, error) {
	cleaned := make([]string, 0, len(workspaces))
	ceiling := quota.Limit(quota.MaxWorkspacePathLength)
	for _, w := range workspaces {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if len(w) > ceiling {
			return nil, &syncstore.PayloadTooLargeError{Field: "workspace_path", Size: len(w), Ceiling: ceiling}
		}
		cleaned = append(cleaned, w)
	}
	data, errMarshal := json.Marshal(cleaned)
	if errMarshal != nil {
		return nil, errMarshal
	}
	return datatypes.JSON(data), nil
}
