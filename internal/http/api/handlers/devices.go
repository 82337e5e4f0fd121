package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/envsyncd/envsyncd/internal/binder"
	"github.com/envsyncd/envsyncd/internal/models"
	"github.com/envsyncd/envsyncd/internal/notify"
	log "github.com/sirupsen/logrus"
)

// DeviceHandler manages device registration and session binding endpoints.
type DeviceHandler struct {
	binder     *binder.Binder
	dispatcher *notify.Dispatcher
}

// NewDeviceHandler constructs a DeviceHandler.
func NewDeviceHandler(b *binder.Binder, d *notify.Dispatcher) *DeviceHandler {
	return &DeviceHandler{binder: b, dispatcher: d}
}

// createDeviceRequest defines the request body for device registration.
type createDeviceRequest struct {
	Name       string   `json:"name"`
	PublicKey  string   `json:"public_key"`
	Workspaces []string `json:"workspaces"`
}

// Create registers a device for the current user and queues the device-added
// notification.
func (h *DeviceHandler) Create(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var body createDeviceRequest
	if !bindJSON(c, &body) {
		return
	}

	device, errRegister := h.binder.RegisterDevice(c.Request.Context(), user.ID, body.Name, body.PublicKey, body.Workspaces)
	if errRegister != nil {
		respondError(c, errRegister)
		return
	}

	if h.dispatcher != nil {
		payload := notify.DeviceAdded{To: user.Email, DeviceName: device.Name}
		if _, errEnqueue := h.dispatcher.Enqueue(payload); errEnqueue != nil {
			log.WithError(errEnqueue).WithField("device_id", device.ID).Warn("notification not queued")
		}
	}

	c.JSON(http.StatusCreated, deviceResponse(device))
}

// List returns the current user's devices in registration order.
func (h *DeviceHandler) List(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	devices, errList := h.binder.ListDevices(c.Request.Context(), user.ID)
	if errList != nil {
		respondError(c, errList)
		return
	}

	out := make([]gin.H, 0, len(devices))
	for i := range devices {
		out = append(out, deviceResponse(&devices[i]))
	}
	c.JSON(http.StatusOK, gin.H{"devices": out})
}

// Delete removes an owned device. Sessions bound to it fail on next use.
func (h *DeviceHandler) Delete(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	if errRemove := h.binder.RemoveDevice(c.Request.Context(), user.ID, c.Param("id")); errRemove != nil {
		respondError(c, errRemove)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Bind attaches the current session to one of the user's devices. The
// transition is one-way; a bound session stays bound until logout.
func (h *DeviceHandler) Bind(c *gin.Context) {
	session, ok := CurrentSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	bound, errBind := h.binder.BindSession(c.Request.Context(), session.ID, c.Param("id"))
	if errBind != nil {
		respondError(c, errBind)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": bound.ID,
		"device_id":  *bound.DeviceID,
		"expires_at": bound.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// deviceResponse shapes a device for JSON output.
func deviceResponse(device *models.Device) gin.H {
	var workspaces []string
	if errDecode := json.Unmarshal(device.Workspaces, &workspaces); errDecode != nil {
		workspaces = nil
	}
	return gin.H{
		"id":            device.ID,
		"name":          device.Name,
		"public_key":    device.PublicKey,
		"workspaces":    workspaces,
		"registered_at": device.RegisteredAt.UTC().Format(time.RFC3339),
	}
}
