package notify

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Name identifies a notification payload kind.
type Name string

const (
	// NameWelcomeEmail greets a newly registered account.
	NameWelcomeEmail Name = "email.welcome"
	// NameDeviceAdded alerts the account owner about a new device.
	NameDeviceAdded Name = "email.device_added"
	// NameRepositoryDeleted confirms a repository deletion.
	NameRepositoryDeleted Name = "email.repository_deleted"
)

// ErrInvalidPayload indicates a payload rejected at the dispatcher boundary.
// The failure is synchronous; no job is created and nothing is retried.
var ErrInvalidPayload = errors.New("invalid payload")

// Payload is a typed notification payload. Validation runs exactly once, at
// the dispatcher boundary; downstream code receives an already-validated
// payload and never re-validates.
type Payload interface {
	// Name returns the payload kind.
	Name() Name
	// Validate checks the payload shape, wrapping ErrInvalidPayload with
	// field detail on violation.
	Validate() error
	// Fields returns the canonical flat representation used for the
	// idempotency key and handed to the delivery transport.
	Fields() map[string]string
}

// WelcomeEmail is sent after account registration.
type WelcomeEmail struct {
	To       string
	UserName string
}

// Name implements Payload.
func (p WelcomeEmail) Name() Name { return NameWelcomeEmail }

// Validate implements Payload.
func (p WelcomeEmail) Validate() error {
	return validateRecipient(p.To)
}

// Fields implements Payload.
func (p WelcomeEmail) Fields() map[string]string {
	return map[string]string{"to": p.To, "user_name": p.UserName}
}

// DeviceAdded is sent when a new device is registered on an account.
type DeviceAdded struct {
	To         string
	DeviceName string
}

// Name implements Payload.
func (p DeviceAdded) Name() Name { return NameDeviceAdded }

// Validate implements Payload.
func (p DeviceAdded) Validate() error {
	if errTo := validateRecipient(p.To); errTo != nil {
		return errTo
	}
	if strings.TrimSpace(p.DeviceName) == "" {
		return fmt.Errorf("%w: missing device_name", ErrInvalidPayload)
	}
	return nil
}

// Fields implements Payload.
func (p DeviceAdded) Fields() map[string]string {
	return map[string]string{"to": p.To, "device_name": p.DeviceName}
}

// RepositoryDeleted is sent when a repository and its environment files are
// removed.
type RepositoryDeleted struct {
	To             string
	RepositoryName string
}

// Name implements Payload.
func (p RepositoryDeleted) Name() Name { return NameRepositoryDeleted }

// Validate implements Payload.
func (p RepositoryDeleted) Validate() error {
	if errTo := validateRecipient(p.To); errTo != nil {
		return errTo
	}
	if strings.TrimSpace(p.RepositoryName) == "" {
		return fmt.Errorf("%w: missing repository_name", ErrInvalidPayload)
	}
	return nil
}

// Fields implements Payload.
func (p RepositoryDeleted) Fields() map[string]string {
	return map[string]string{"to": p.To, "repository_name": p.RepositoryName}
}

// validateRecipient checks the destination address shape.
func validateRecipient(to string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("%w: missing to", ErrInvalidPayload)
	}
	if !strings.Contains(to, "@") {
		return fmt.Errorf("%w: to is not an address", ErrInvalidPayload)
	}
	return nil
}

// IdempotencyKey derives the job key from payload content. It is
// deterministic, never random: duplicate triggers and redeliveries of the
// same payload collapse onto one job.
func IdempotencyKey(p Payload) string {
	fields := p.Fields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	h.Write([]byte(p.Name()))
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(fields[k]))
	}
	return hex.EncodeToString(h.Sum(nil))
}
