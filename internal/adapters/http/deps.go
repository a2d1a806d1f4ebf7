package http

import (
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/discoverymap/internal/adapters/backend"
	"github.com/samirrijal/discoverymap/internal/adapters/postgres"
	"github.com/samirrijal/discoverymap/internal/adapters/valkey"
	"github.com/samirrijal/discoverymap/internal/core/ports"
	"github.com/samirrijal/discoverymap/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Sessions *usecases.SessionRegistry
	Devices  ports.DeviceReporter
	Events   ports.EventSubscriber
	NATS     *nats.Conn
	DB       *postgres.DB
	Cache    *valkey.Cache
	Backend  *backend.Client
}
