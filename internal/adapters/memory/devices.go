package memory

import (
	"context"
	"sync"

	"github.com/samirrijal/discoverymap/internal/core/domain"
	"github.com/samirrijal/discoverymap/internal/core/ports"
)

// Devices keeps one PushSource per device id.
type Devices struct {
	mu      sync.Mutex
	sources map[string]*PushSource
}

// NewDevices creates an empty registry.
func NewDevices() *Devices {
	return &Devices{sources: make(map[string]*PushSource)}
}

// Source returns the device's source, creating it on first use.
func (d *Devices) Source(deviceID string) ports.PositionSource {
	return d.source(deviceID)
}

func (d *Devices) source(deviceID string) *PushSource {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sources[deviceID]
	if !ok {
		s = NewPushSource()
		d.sources[deviceID] = s
	}
	return s
}

// ReportFix pushes fix to the device's watchers.
func (d *Devices) ReportFix(_ context.Context, deviceID string, fix domain.Fix) error {
	d.source(deviceID).Push(fix)
	return nil
}

// ReportError fails the device's active watches.
func (d *Devices) ReportError(_ context.Context, deviceID string, err error) error {
	d.source(deviceID).Fail(err)
	return nil
}
