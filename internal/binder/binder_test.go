package binder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/envsyncd/envsyncd/internal/db"
	"github.com/envsyncd/envsyncd/internal/models"
	"github.com/envsyncd/envsyncd/internal/quota"
	"github.com/envsyncd/envsyncd/internal/syncstore"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testKey = "-----BEGIN PUBLIC KEY-----\nMFkw\n-----END PUBLIC KEY-----"

func openTestBinder(t *testing.T) (*Binder, uint64) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "binder.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	user := models.User{Email: "dev@example.com", Password: "x", Active: true}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("seed user: %v", errCreate)
	}
	return NewBinder(conn), user.ID
}

func TestRegisterDevice_QuotaCeiling(t *testing.T) {
	b, userID := openTestBinder(t)
	ctx := context.Background()

	ceiling := quota.Limit(quota.MaxDevicesPerUser)
	for i := 0; i < ceiling; i++ {
		if _, errRegister := b.RegisterDevice(ctx, userID, fmt.Sprintf("laptop-%d", i), testKey, nil); errRegister != nil {
			t.Fatalf("register device %d: %v", i, errRegister)
		}
	}

	_, errOver := b.RegisterDevice(ctx, userID, "one-too-many", testKey, nil)
	if !syncstore.IsQuotaExceeded(errOver) {
		t.Fatalf("expected QuotaExceededError, got %v", errOver)
	}
}

func TestRegisterDevice_PublicKeyCeiling(t *testing.T) {
	b, userID := openTestBinder(t)

	huge := strings.Repeat("k", quota.Limit(quota.MaxPublicKeyLength)+1)
	_, errOver := b.RegisterDevice(context.Background(), userID, "laptop", huge, nil)
	if !syncstore.IsPayloadTooLarge(errOver) {
		t.Fatalf("expected PayloadTooLargeError, got %v", errOver)
	}
}

func TestRegisterDevice_WorkspacePathCeiling(t *testing.T) {
	b, userID := openTestBinder(t)

	longPath := "/home/dev/" + strings.Repeat("w", quota.Limit(quota.MaxWorkspacePathLength))
	_, errOver := b.RegisterDevice(context.Background(), userID, "laptop", testKey, []string{longPath})
	if !syncstore.IsPayloadTooLarge(errOver) {
		t.Fatalf("expected PayloadTooLargeError for workspace path, got %v", errOver)
	}
}

func TestBindSession_Lifecycle(t *testing.T) {
	b, userID := openTestBinder(t)
	ctx := context.Background()

	device, errRegister := b.RegisterDevice(ctx, userID, "laptop", testKey, []string{"/home/dev/app"})
	if errRegister != nil {
		t.Fatalf("register: %v", errRegister)
	}
	session, errSession := b.CreateSession(ctx, userID, time.Hour)
	if errSession != nil {
		t.Fatalf("create session: %v", errSession)
	}
	if session.DeviceID != nil {
		t.Fatalf("new session must be unbound")
	}

	bound, errBind := b.BindSession(ctx, session.ID, device.ID)
	if errBind != nil {
		t.Fatalf("bind: %v", errBind)
	}
	if bound.DeviceID == nil || *bound.DeviceID != device.ID {
		t.Fatalf("expected session bound to %s", device.ID)
	}

	// Bound is terminal.
	if _, errRebind := b.BindSession(ctx, session.ID, device.ID); !errors.Is(errRebind, ErrSessionBound) {
		t.Fatalf("expected ErrSessionBound, got %v", errRebind)
	}
}

func TestBindSession_ForeignDevice(t *testing.T) {
	b, userID := openTestBinder(t)
	ctx := context.Background()

	other := models.User{Email: "other@example.com", Password: "x", Active: true}
	if errCreate := b.db.Create(&other).Error; errCreate != nil {
		t.Fatalf("seed user: %v", errCreate)
	}
	foreign, errRegister := b.RegisterDevice(ctx, other.ID, "their-laptop", testKey, nil)
	if errRegister != nil {
		t.Fatalf("register: %v", errRegister)
	}

	session, errSession := b.CreateSession(ctx, userID, time.Hour)
	if errSession != nil {
		t.Fatalf("create session: %v", errSession)
	}
	if _, errBind := b.BindSession(ctx, session.ID, foreign.ID); !errors.Is(errBind, syncstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound binding a foreign device, got %v", errBind)
	}
}

func TestResolve_FailsClosed(t *testing.T) {
	b, userID := openTestBinder(t)
	ctx := context.Background()

	// Missing session.
	if _, _, err := b.Resolve(ctx, "no-such-session"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for missing session, got %v", err)
	}

	// Expired session.
	expired := models.Session{ID: "11111111-1111-1111-1111-111111111111", UserID: userID,
		ExpiresAt: time.Now().UTC().Add(-time.Minute), CreatedAt: time.Now().UTC()}
	if errCreate := b.db.Create(&expired).Error; errCreate != nil {
		t.Fatalf("seed session: %v", errCreate)
	}
	if _, _, err := b.Resolve(ctx, expired.ID); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for expired session, got %v", err)
	}

	// Session whose user no longer resolves.
	orphan := models.Session{ID: "22222222-2222-2222-2222-222222222222", UserID: 424242,
		ExpiresAt: time.Now().UTC().Add(time.Hour), CreatedAt: time.Now().UTC()}
	if errCreate := b.db.Create(&orphan).Error; errCreate != nil {
		t.Fatalf("seed session: %v", errCreate)
	}
	if _, _, err := b.Resolve(ctx, orphan.ID); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for unresolvable user, got %v", err)
	}

	// Inactive user.
	if errUpdate := b.db.Model(&models.User{}).Where("id = ?", userID).
		Update("active", false).Error; errUpdate != nil {
		t.Fatalf("deactivate user: %v", errUpdate)
	}
	session, errSession := b.CreateSession(ctx, userID, time.Hour)
	if errSession != nil {
		t.Fatalf("create session: %v", errSession)
	}
	if _, _, err := b.Resolve(ctx, session.ID); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for inactive user, got %v", err)
	}
}

func TestDeviceForSession_RecheckedOnAccess(t *testing.T) {
	b, userID := openTestBinder(t)
	ctx := context.Background()

	device, errRegister := b.RegisterDevice(ctx, userID, "laptop", testKey, nil)
	if errRegister != nil {
		t.Fatalf("register: %v", errRegister)
	}
	session, errSession := b.CreateSession(ctx, userID, time.Hour)
	if errSession != nil {
		t.Fatalf("create session: %v", errSession)
	}
	bound, errBind := b.BindSession(ctx, session.ID, device.ID)
	if errBind != nil {
		t.Fatalf("bind: %v", errBind)
	}

	if _, errDevice := b.DeviceForSession(ctx, bound); errDevice != nil {
		t.Fatalf("expected device while it exists, got %v", errDevice)
	}

	// Deleting the device does not delete the session record, but access
	// through the binding must now fail closed.
	if errRemove := b.RemoveDevice(ctx, userID, device.ID); errRemove != nil {
		t.Fatalf("remove device: %v", errRemove)
	}
	if _, _, errResolve := b.Resolve(ctx, session.ID); errResolve != nil {
		t.Fatalf("session record must survive device deletion: %v", errResolve)
	}
	if _, errDevice := b.DeviceForSession(ctx, bound); !errors.Is(errDevice, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated after device deletion, got %v", errDevice)
	}
}

func TestDeleteSession_DiscardsRecord(t *testing.T) {
	b, userID := openTestBinder(t)
	ctx := context.Background()

	session, errSession := b.CreateSession(ctx, userID, time.Hour)
	if errSession != nil {
		t.Fatalf("create session: %v", errSession)
	}
	if errDelete := b.DeleteSession(ctx, session.ID); errDelete != nil {
		t.Fatalf("delete session: %v", errDelete)
	}
	if _, _, err := b.Resolve(ctx, session.ID); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated after logout, got %v", err)
	}
}
