package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/discoverymap/internal/core/domain"
)

// Subjects names the NATS subjects used for device fixes and session events.
//
//	<device>.<id>.fix      domain.Fix JSON
//	<device>.<id>.status   {"error": code, "detail": text}
//	<device>.<id>.request  empty; asks the device for a fresh fix
//	<event>.<session>      session snapshot JSON
type Subjects struct {
	Device string
	Event  string
}

func (s Subjects) DeviceFix(id string) string     { return s.Device + "." + id + ".fix" }
func (s Subjects) DeviceStatus(id string) string  { return s.Device + "." + id + ".status" }
func (s Subjects) DeviceRequest(id string) string { return s.Device + "." + id + ".request" }
func (s Subjects) DeviceAll(id string) string     { return s.Device + "." + id + ".*" }
func (s Subjects) Session(id string) string       { return s.Event + "." + id }

// ValidToken reports whether id can be used as a single subject token.
func ValidToken(id string) bool {
	return id != "" && !strings.ContainsAny(id, ".*> \t\r\n")
}

type statusMessage struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// Connect opens a NATS connection that keeps reconnecting.
func Connect(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return conn, nil
}

// Publisher implements ports.EventPublisher and ports.DeviceReporter.
type Publisher struct {
	conn     *nats.Conn
	subjects Subjects
}

// NewPublisher publishes on a shared connection.
func NewPublisher(conn *nats.Conn, subjects Subjects) *Publisher {
	return &Publisher{conn: conn, subjects: subjects}
}

// PublishSessionEvent publishes a session snapshot.
func (p *Publisher) PublishSessionEvent(_ context.Context, sessionID string, data []byte) error {
	return p.conn.Publish(p.subjects.Session(sessionID), data)
}

// ReportFix publishes a device fix.
func (p *Publisher) ReportFix(_ context.Context, deviceID string, fix domain.Fix) error {
	if !ValidToken(deviceID) {
		return fmt.Errorf("invalid device id %q", deviceID)
	}
	data, err := json.Marshal(fix)
	if err != nil {
		return err
	}
	return p.conn.Publish(p.subjects.DeviceFix(deviceID), data)
}

// ReportError publishes a device failure.
func (p *Publisher) ReportError(_ context.Context, deviceID string, cause error) error {
	if !ValidToken(deviceID) {
		return fmt.Errorf("invalid device id %q", deviceID)
	}
	data, err := json.Marshal(statusMessage{Error: domain.LocationCode(cause), Detail: cause.Error()})
	if err != nil {
		return err
	}
	return p.conn.Publish(p.subjects.DeviceStatus(deviceID), data)
}

// Flush waits until the server has processed everything published so far.
func (p *Publisher) Flush(ctx context.Context) error {
	return p.conn.FlushWithContext(ctx)
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}
