// Command purge-buffers deletes sealed buffers that never became listings.
// It is meant to be run by an external scheduler (cron, systemd timer).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/raine/tradefeed/internal/config"
	"github.com/raine/tradefeed/internal/housekeeping"
	"github.com/raine/tradefeed/internal/storage"
)

func main() {
	config.LoadEnvFile()

	dbPath := flag.String("db", os.Getenv("DATABASE_PATH"), "Path to the tradefeed database")
	flag.Parse()

	if *dbPath == "" {
		*dbPath = "tradefeed.db"
	}

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := housekeeping.NewService(store, 0).PurgeStaleBuffers(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Purged %d stale buffers\n", n)
}
