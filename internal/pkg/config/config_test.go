package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("discoverymap-test")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "backend", cfg.Posts.Source)
	assert.Equal(t, 43.068, cfg.Map.DefaultLat)
	assert.Equal(t, 141.35, cfg.Map.DefaultLng)
	assert.Equal(t, 18, cfg.Map.DetailZoom)
	assert.Equal(t, 10*time.Second, cfg.Location.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Feed.RefreshInterval)
	assert.Equal(t, 12, cfg.Feed.SearchLimit)
	assert.Equal(t, "discoverymap-test", cfg.Telemetry.ServiceName)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DISCOVERYMAP_SERVER_PORT", "9090")
	t.Setenv("DISCOVERYMAP_FEED_REFRESH_INTERVAL", "45s")

	cfg, err := Load("discoverymap-test")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Feed.RefreshInterval)
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg, err := Load("discoverymap-test")
	require.NoError(t, err)

	cfg.Server.Port = 0
	cfg.Posts.Source = "ftp"
	cfg.Map.DetailZoom = 30

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "posts.source")
	assert.Contains(t, err.Error(), "map.detail_zoom")
}

func TestValidate_PostgresSource(t *testing.T) {
	cfg, err := Load("discoverymap-test")
	require.NoError(t, err)

	cfg.Posts.Source = "postgres"
	cfg.Database.Host = ""
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.host")
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5432, DBName: "x", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/x?sslmode=disable", d.DSN())
}
