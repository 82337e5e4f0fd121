package syncstore

import (
	"errors"
	"fmt"

	"github.com/envsyncd/envsyncd/internal/quota"
)

// ErrNotFound merges "does not exist" and "not owned by the caller" into one
// indistinguishable outcome so repository IDs cannot be enumerated.
var ErrNotFound = errors.New("not found")

// ErrInvalidContent indicates environment file content that does not parse as
// dotenv key/value pairs.
var ErrInvalidContent = errors.New("invalid env content")

// QuotaExceededError reports a mutation rejected by the quota policy table.
// Used and Ceiling are exposed so callers can show current usage.
type QuotaExceededError struct {
	Quota   quota.Name
	Used    int
	Ceiling int
}

// Error implements the error interface.
func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s (%d/%d)", e.Quota, e.Used, e.Ceiling)
}

// PayloadTooLargeError reports a field exceeding its size ceiling.
type PayloadTooLargeError struct {
	Field   string
	Size    int
	Ceiling int
}

// Error implements the error interface.
func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("payload too large: %s is %d bytes, ceiling %d", e.Field, e.Size, e.Ceiling)
}

// IsQuotaExceeded reports whether err is a quota rejection.
func IsQuotaExceeded(err error) bool {
	var quotaErr *QuotaExceededError
	return errors.As(err, &quotaErr)
}

// IsPayloadTooLarge reports whether err is a payload size rejection.
func IsPayloadTooLarge(err error) bool {
	var sizeErr *PayloadTooLargeError
	return errors.As(err, &sizeErr)
}
