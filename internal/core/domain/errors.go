package domain

import "errors"

// Location failures.
var (
	ErrLocationPermissionDenied = errors.New("location permission denied")
	ErrLocationTimeout          = errors.New("location timeout")
	ErrLocationUnavailable      = errors.New("location unavailable")
	ErrAlreadySubscribed        = errors.New("location stream already has an active subscription")
)

// Feed and camera failures.
var (
	ErrFeedFetchFailed   = errors.New("feed fetch failed")
	ErrSearchFetchFailed = errors.New("search fetch failed")
	ErrRecenterFailed    = errors.New("recenter failed")
	ErrInvalidTarget     = errors.New("invalid navigation target")
	ErrMapNotMounted     = errors.New("map not mounted")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionClosed     = errors.New("session closed")
)

// Post catalogue failures.
var (
	ErrPostNotFound  = errors.New("post not found")
	ErrInvalidPostID = errors.New("invalid post id")
)

// IsLocationError reports whether err belongs to the location taxonomy.
func IsLocationError(err error) bool {
	return errors.Is(err, ErrLocationPermissionDenied) ||
		errors.Is(err, ErrLocationTimeout) ||
		errors.Is(err, ErrLocationUnavailable)
}

// Location error codes as reported by devices.
const (
	LocationCodePermissionDenied = "permission_denied"
	LocationCodeTimeout          = "timeout"
	LocationCodeUnavailable      = "unavailable"
)

// ParseLocationCode maps a device error code to the location taxonomy.
// Unknown codes are treated as unavailable.
func ParseLocationCode(code string) error {
	switch code {
	case LocationCodePermissionDenied:
		return ErrLocationPermissionDenied
	case LocationCodeTimeout:
		return ErrLocationTimeout
	default:
		return ErrLocationUnavailable
	}
}

// LocationCode is the inverse of ParseLocationCode.
func LocationCode(err error) string {
	switch {
	case errors.Is(err, ErrLocationPermissionDenied):
		return LocationCodePermissionDenied
	case errors.Is(err, ErrLocationTimeout):
		return LocationCodeTimeout
	default:
		return LocationCodeUnavailable
	}
}
