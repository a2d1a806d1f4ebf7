package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"

	"github.com/samirrijal/discoverymap/internal/core/domain"
	"github.com/samirrijal/discoverymap/internal/core/ports"
)

// Devices hands out PositionSources that read device subjects.
type Devices struct {
	conn     *nats.Conn
	subjects Subjects
	log      *slog.Logger
}

// NewDevices creates a device registry on a shared connection.
func NewDevices(conn *nats.Conn, subjects Subjects, log *slog.Logger) *Devices {
	return &Devices{conn: conn, subjects: subjects, log: log}
}

// Source returns the PositionSource of deviceID.
func (d *Devices) Source(deviceID string) ports.PositionSource {
	return &deviceSource{id: deviceID, devices: d}
}

type deviceSource struct {
	id      string
	devices *Devices
}

// Watch delivers fixes until ctx ends or the device reports a failure.
func (s *deviceSource) Watch(ctx context.Context, fn func(domain.Fix)) error {
	if !ValidToken(s.id) {
		return fmt.Errorf("%w: invalid device id %q", domain.ErrLocationUnavailable, s.id)
	}
	msgs := make(chan *nats.Msg, 64)
	sub, err := s.devices.conn.ChanSubscribe(s.devices.subjects.DeviceAll(s.id), msgs)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrLocationUnavailable, eris.Wrapf(err, "subscribe device %s", s.id))
	}
	defer func() { _ = sub.Unsubscribe() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-msgs:
			fix, ok, err := s.devices.decode(s.id, msg)
			if err != nil {
				return err
			}
			if ok {
				fn(fix)
			}
		}
	}
}

// Current asks the device for a fresh fix and waits for it.
func (s *deviceSource) Current(ctx context.Context) (domain.Fix, error) {
	if !ValidToken(s.id) {
		return domain.Fix{}, fmt.Errorf("%w: invalid device id %q", domain.ErrLocationUnavailable, s.id)
	}
	sub, err := s.devices.conn.SubscribeSync(s.devices.subjects.DeviceAll(s.id))
	if err != nil {
		return domain.Fix{}, fmt.Errorf("%w: %w", domain.ErrLocationUnavailable, eris.Wrapf(err, "subscribe device %s", s.id))
	}
	defer func() { _ = sub.Unsubscribe() }()

	if err := s.devices.conn.Publish(s.devices.subjects.DeviceRequest(s.id), nil); err != nil {
		return domain.Fix{}, fmt.Errorf("%w: %w", domain.ErrLocationUnavailable, eris.Wrap(err, "request fix"))
	}

	for {
		msg, err := sub.NextMsgWithContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return domain.Fix{}, ctx.Err()
			}
			return domain.Fix{}, fmt.Errorf("%w: %w", domain.ErrLocationUnavailable, err)
		}
		fix, ok, err := s.devices.decode(s.id, msg)
		if err != nil {
			return domain.Fix{}, err
		}
		if ok {
			return fix, nil
		}
	}
}

// decode interprets a device message. It returns ok=false for messages
// that carry no fix, and a classified error for status reports.
func (d *Devices) decode(deviceID string, msg *nats.Msg) (domain.Fix, bool, error) {
	switch msg.Subject {
	case d.subjects.DeviceFix(deviceID):
		var fix domain.Fix
		if err := json.Unmarshal(msg.Data, &fix); err != nil {
			d.log.Warn("dropping malformed device fix", "device", deviceID, "error", err)
			return domain.Fix{}, false, nil
		}
		return fix, true, nil
	case d.subjects.DeviceStatus(deviceID):
		var st statusMessage
		if err := json.Unmarshal(msg.Data, &st); err != nil {
			d.log.Warn("dropping malformed device status", "device", deviceID, "error", err)
			return domain.Fix{}, false, nil
		}
		if st.Error == "" {
			return domain.Fix{}, false, nil
		}
		cause := domain.ParseLocationCode(st.Error)
		if st.Detail != "" {
			cause = fmt.Errorf("%w: %w", cause, errors.New(st.Detail))
		}
		return domain.Fix{}, false, cause
	default:
		return domain.Fix{}, false, nil
	}
}
