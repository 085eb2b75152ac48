package provider

import "errors"

// Sentinel errors backends wrap so callers can react without knowing which
// backend is active.
var (
	ErrNotFound     = errors.New("provider: not found")
	ErrUnauthorized = errors.New("provider: unauthorized")
	// ErrOffline means the backend could not be reached at all.
	ErrOffline = errors.New("provider: backend unreachable")
	// ErrTemporary covers failures worth retrying: 5xx answers and timeouts.
	ErrTemporary     = errors.New("provider: temporary failure")
	ErrRateLimited   = errors.New("provider: rate limited")
	ErrInvalidConfig = errors.New("provider: invalid config")
)

func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }
func IsOffline(err error) bool      { return errors.Is(err, ErrOffline) }
func IsRateLimited(err error) bool  { return errors.Is(err, ErrRateLimited) }
func IsTemporary(err error) bool    { return errors.Is(err, ErrTemporary) }
