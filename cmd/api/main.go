package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/discoverymap/internal/adapters/backend"
	"github.com/samirrijal/discoverymap/internal/adapters/http"
	"github.com/samirrijal/discoverymap/internal/adapters/memory"
	natsadapter "github.com/samirrijal/discoverymap/internal/adapters/nats"
	"github.com/samirrijal/discoverymap/internal/adapters/postgres"
	"github.com/samirrijal/discoverymap/internal/adapters/valkey"
	"github.com/samirrijal/discoverymap/internal/core/domain"
	"github.com/samirrijal/discoverymap/internal/core/ports"
	"github.com/samirrijal/discoverymap/internal/core/usecases"
	"github.com/samirrijal/discoverymap/internal/pkg/config"
	"github.com/samirrijal/discoverymap/internal/pkg/logging"
	"github.com/samirrijal/discoverymap/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("discoverymap-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	deps := &http.Dependencies{}

	// Posts
	var posts ports.PostSource
	switch cfg.Posts.Source {
	case "postgres":
		db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		deps.DB = db
		posts = postgres.NewPostRepo(db.Pool)
	default:
		client, err := backend.New(backend.Options{
			BaseURL:    cfg.Backend.BaseURL,
			Token:      cfg.Backend.Token,
			Timeout:    cfg.Backend.Timeout,
			RateLimit:  cfg.Backend.RateLimit,
			Burst:      cfg.Backend.Burst,
			MaxRetries: cfg.Backend.MaxRetries,
			Logger:     logger.With("component", "backend"),
		})
		if err != nil {
			log.Fatalf("backend: %v", err)
		}
		deps.Backend = client
		posts = client
	}

	// Cache and handoff mailbox
	var cache ports.CacheService
	handoff := func(string) ports.HandoffStore { return memory.NewHandoffStore() }
	if cfg.Valkey.Addr != "" {
		vc, err := valkey.New(cfg.Valkey.Addr)
		if err != nil {
			slog.Warn("valkey unavailable, using in-process handoff", "error", err)
		} else {
			defer vc.Close()
			deps.Cache = vc
			cache = vc
			handoff = func(sessionID string) ports.HandoffStore {
				return vc.Handoff(sessionID, cfg.Valkey.HandoffTTL)
			}
		}
	}

	// Devices and session events
	var (
		events    ports.EventPublisher
		positions func(string) ports.PositionSource
	)
	subjects := natsadapter.Subjects{Device: cfg.NATS.DeviceSubject, Event: cfg.NATS.EventSubject}
	nc, err := natsadapter.Connect(cfg.NATS.URL, "discoverymap-api")
	if err != nil {
		slog.Warn("nats unavailable, using in-process devices", "error", err)
		broker := memory.NewBroker()
		devices := memory.NewDevices()
		events, deps.Events = broker, broker
		deps.Devices = devices
		positions = devices.Source
	} else {
		pub := natsadapter.NewPublisher(nc, subjects)
		defer pub.Close()
		deps.NATS = nc
		events = pub
		deps.Events = natsadapter.NewSubscriber(nc, subjects)
		deps.Devices = pub
		positions = natsadapter.NewDevices(nc, subjects, logger.With("component", "devices")).Source
	}

	sessions := usecases.NewSessionRegistry(sessionConfig(cfg), posts, cache, events, usecases.SessionFactories{
		Positions: positions,
		Handoff:   handoff,
	}, logger)
	deps.Sessions = sessions

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    256 * 1024,
		AppName:      "Discovery Map API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "http://localhost:3000, http://localhost:5173, http://localhost:8081",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "posts", cfg.Posts.Source)
		return app.Listen(addr)
	})
	if deps.DB != nil {
		g.Go(func() error {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					deps.DB.ReportStats()
				}
			}
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, draining connections...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			slog.Error("forced shutdown", "error", err)
		}
		if err := sessions.CloseAll(shutdownCtx); err != nil {
			slog.Warn("sessions closed with errors", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server stopped", "error", err)
		return
	}
	slog.Info("server stopped")
}

// sessionConfig maps configuration onto per-session settings.
func sessionConfig(cfg *config.Config) usecases.SessionConfig {
	sc := usecases.DefaultSessionConfig()
	sc.Viewport = usecases.ViewportConfig{
		DefaultCenter: domain.Coordinate{Lat: cfg.Map.DefaultLat, Lng: cfg.Map.DefaultLng},
		DefaultZoom:   cfg.Map.DefaultZoom,
		DetailZoom:    cfg.Map.DetailZoom,
		RecenterZoom:  cfg.Map.RecenterZoom,
		MinZoom:       cfg.Map.MinZoom,
		MaxZoom:       cfg.Map.MaxZoom,
	}
	sc.Location = usecases.LocationStreamConfig{
		Timeout:     cfg.Location.Timeout,
		MaxAccuracy: cfg.Location.MaxAccuracy,
	}
	sc.Feed = usecases.FeedEngineConfig{
		RefreshInterval: cfg.Feed.RefreshInterval,
		SearchLimit:     cfg.Feed.SearchLimit,
		CacheTTL:        cfg.Feed.CacheTTL,
	}
	return sc
}
