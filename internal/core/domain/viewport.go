package domain

import "strings"

// CameraMode is the binary follow state of the map camera.
type CameraMode int

const (
	// Following tracks the latest device coordinate.
	Following CameraMode = iota
	// Manual freezes the camera until an explicit recenter.
	Manual
)

func (m CameraMode) String() string {
	switch m {
	case Following:
		return "following"
	case Manual:
		return "manual"
	default:
		return "unknown"
	}
}

// MarshalText renders the mode name.
func (m CameraMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ViewportState is the map camera.
type ViewportState struct {
	Center Coordinate `json:"center"`
	Zoom   int        `json:"zoom"`
	Mode   CameraMode `json:"mode"`
}

// NavigationTarget asks the next map mount to focus a post.
type NavigationTarget struct {
	PostID       string  `json:"post_id"`
	Latitude     float64 `json:"lat"`
	Longitude    float64 `json:"lng"`
	UseSavedZoom bool    `json:"use_saved_zoom"`
}

// Coordinate returns the target position.
func (t NavigationTarget) Coordinate() Coordinate {
	return Coordinate{Lat: t.Latitude, Lng: t.Longitude}
}

// Validate rejects targets without a post id or with out-of-range coordinates.
func (t NavigationTarget) Validate() error {
	if strings.TrimSpace(t.PostID) == "" {
		return ErrInvalidTarget
	}
	if !t.Coordinate().Valid() {
		return ErrInvalidTarget
	}
	return nil
}

// SavedView is the last manually positioned camera.
type SavedView struct {
	Center Coordinate `json:"center"`
	Zoom   int        `json:"zoom"`
}
