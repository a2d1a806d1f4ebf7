package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samirrijal/discoverymap/internal/pkg/config"
)

// steps lists migrations in apply order; down files revert them in reverse.
var steps = []string{
	"001_init_extensions",
	"002_posts",
}

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down> [dir]")
	}
	dir := "migrations"
	if len(os.Args) > 2 {
		dir = os.Args[2]
	}

	cfg, err := config.Load("discoverymap-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	files, err := plan(os.Args[1], dir)
	if err != nil {
		log.Fatal(err)
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			log.Fatalf("read %s: %v", f, err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			log.Fatalf("exec %s: %v", f, err)
		}
		fmt.Printf("OK  %s\n", f)
	}
	log.Printf("%s: %d migrations applied", os.Args[1], len(files))
}

// plan returns the files to run for a direction. Steps without a down
// file (extensions) are left in place on down.
func plan(direction, dir string) ([]string, error) {
	var files []string
	switch direction {
	case "up":
		for _, s := range steps {
			files = append(files, filepath.Join(dir, s+".sql"))
		}
	case "down":
		for i := len(steps) - 1; i >= 0; i-- {
			f := filepath.Join(dir, steps[i]+".down.sql")
			if _, err := os.Stat(f); err == nil {
				files = append(files, f)
			}
		}
	default:
		return nil, fmt.Errorf("unknown command: %s", direction)
	}
	return files, nil
}
