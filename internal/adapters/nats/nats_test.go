package natsadapter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/discoverymap/internal/core/domain"
	"github.com/samirrijal/discoverymap/internal/core/ports"
)

var (
	_ ports.EventPublisher  = (*Publisher)(nil)
	_ ports.DeviceReporter  = (*Publisher)(nil)
	_ ports.EventSubscriber = (*Subscriber)(nil)
	_ ports.PositionSource  = (*deviceSource)(nil)
)

var testSubjects = Subjects{Device: "discovery.device", Event: "discovery.session"}

func testDevices() *Devices {
	return NewDevices(nil, testSubjects, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "discovery.device.phone1.fix", testSubjects.DeviceFix("phone1"))
	assert.Equal(t, "discovery.device.phone1.status", testSubjects.DeviceStatus("phone1"))
	assert.Equal(t, "discovery.device.phone1.request", testSubjects.DeviceRequest("phone1"))
	assert.Equal(t, "discovery.device.phone1.*", testSubjects.DeviceAll("phone1"))
	assert.Equal(t, "discovery.session.s1", testSubjects.Session("s1"))
}

func TestValidToken(t *testing.T) {
	assert.True(t, ValidToken("phone-1"))
	assert.True(t, ValidToken("9b2f1c9e-8d6e-4c52-a3f7-3d1b0f4c2e11"))
	for _, bad := range []string{"", "a.b", "a*", ">", "a b"} {
		assert.False(t, ValidToken(bad), bad)
	}
}

func TestDecode_Fix(t *testing.T) {
	d := testDevices()
	want := domain.Fix{
		Coordinate: domain.Coordinate{Lat: 43.06, Lng: 141.35},
		Accuracy:   8,
		Time:       time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(want)
	require.NoError(t, err)

	fix, ok, err := d.decode("phone1", &nats.Msg{Subject: testSubjects.DeviceFix("phone1"), Data: data})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Coordinate, fix.Coordinate)
	assert.Equal(t, want.Accuracy, fix.Accuracy)
	assert.True(t, want.Time.Equal(fix.Time))
}

func TestDecode_MalformedFixIsDropped(t *testing.T) {
	_, ok, err := testDevices().decode("phone1", &nats.Msg{Subject: testSubjects.DeviceFix("phone1"), Data: []byte("{")})
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestDecode_Status(t *testing.T) {
	cases := map[string]error{
		domain.LocationCodePermissionDenied: domain.ErrLocationPermissionDenied,
		domain.LocationCodeTimeout:          domain.ErrLocationTimeout,
		"gps_off":                           domain.ErrLocationUnavailable,
	}
	for code, want := range cases {
		data, _ := json.Marshal(statusMessage{Error: code, Detail: "from device"})
		_, ok, err := testDevices().decode("phone1", &nats.Msg{Subject: testSubjects.DeviceStatus("phone1"), Data: data})
		assert.False(t, ok)
		assert.ErrorIs(t, err, want, code)
		assert.Contains(t, err.Error(), "from device")
	}
}

func TestDecode_EmptyStatusAndRequestIgnored(t *testing.T) {
	d := testDevices()
	_, ok, err := d.decode("phone1", &nats.Msg{Subject: testSubjects.DeviceStatus("phone1"), Data: []byte(`{}`)})
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = d.decode("phone1", &nats.Msg{Subject: testSubjects.DeviceRequest("phone1")})
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidDeviceID(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	src := testDevices().Source("bad.id")
	err := src.Watch(ctx, func(domain.Fix) {})
	assert.ErrorIs(t, err, domain.ErrLocationUnavailable)
	_, err = src.Current(ctx)
	assert.ErrorIs(t, err, domain.ErrLocationUnavailable)

	p := NewPublisher(nil, testSubjects)
	assert.Error(t, p.ReportFix(ctx, "a.b", domain.Fix{}))
	assert.Error(t, p.ReportError(ctx, "", domain.ErrLocationTimeout))
}
