package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/discoverymap/internal/adapters/backend"
	"github.com/samirrijal/discoverymap/internal/adapters/postgres"
	"github.com/samirrijal/discoverymap/internal/core/domain"
	"github.com/samirrijal/discoverymap/internal/core/ports"
	"github.com/samirrijal/discoverymap/internal/pkg/config"
	"github.com/samirrijal/discoverymap/internal/pkg/logging"
)

// Imports posts into the posts table from a CSV or JSON export, or from
// the remote backend's public recent feed:
//
//	ingestor posts.csv
//	ingestor posts.json
//	ingestor backend
func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: ingestor <file.csv|file.json|backend>")
	}

	cfg, err := config.Load("discoverymap-ingestor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	posts, err := load(ctx, cfg, os.Args[1])
	if err != nil {
		log.Fatalf("load posts: %v", err)
	}
	logger.Info("posts loaded", "source", os.Args[1], "count", len(posts))

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	stored, failed := ingest(ctx, postgres.NewPostRepo(db.Pool), posts, 4, logger)
	logger.Info("ingestion complete", "stored", stored, "failed", failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func load(ctx context.Context, cfg *config.Config, source string) ([]domain.Post, error) {
	if source == "backend" {
		client, err := backend.New(backend.Options{
			BaseURL:    cfg.Backend.BaseURL,
			Token:      cfg.Backend.Token,
			Timeout:    cfg.Backend.Timeout,
			RateLimit:  cfg.Backend.RateLimit,
			Burst:      cfg.Backend.Burst,
			MaxRetries: cfg.Backend.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		return client.RecentPosts(ctx, "")
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(source)) {
	case ".csv":
		return readPostsCSV(f)
	default:
		return readPostsJSON(f)
	}
}

// ingest upserts posts with at most workers concurrent writes. A failed
// post is logged and counted; the rest still go through.
func ingest(ctx context.Context, store ports.PostStore, posts []domain.Post, workers int, log *slog.Logger) (stored, failed int64) {
	var ok, bad atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range posts {
		p := &posts[i]
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := store.Upsert(gctx, p); err != nil {
				log.Warn("post rejected", "post_id", p.ID, "error", err)
				bad.Add(1)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return ok.Load(), bad.Load()
}
