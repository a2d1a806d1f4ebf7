package main

import (
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"

	natsadapter "github.com/samirrijal/discoverymap/internal/adapters/nats"
)

func subjectsFromConfig() natsadapter.Subjects {
	return natsadapter.Subjects{Device: cfg.NATS.DeviceSubject, Event: cfg.NATS.EventSubject}
}

// connect dials NATS and returns a publisher on the configured subjects.
func connect(name string) (*natsadapter.Publisher, *nats.Conn, error) {
	nc, err := natsadapter.Connect(cfg.NATS.URL, name)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "devicesim: connect %s", cfg.NATS.URL)
	}
	return natsadapter.NewPublisher(nc, subjectsFromConfig()), nc, nil
}

func logger(deviceID string) *slog.Logger {
	return slog.Default().With("device_id", deviceID)
}
