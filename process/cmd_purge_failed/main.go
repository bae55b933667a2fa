package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"srap/pkg/dbconn"
	"srap/pkg/logger"
	"srap/pkg/storage"
	"srap/process/purge"
)

func main() {
	days := flag.Int("days", 30, "purge failed uploads older than this many days")
	dryRun := flag.Bool("dry-run", false, "only report what would be purged")
	flag.Parse()

	_ = godotenv.Load()
	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	defer log.Sync()
	if *days < 1 {
		log.Fatal("-days must be at least 1")
	}

	ctx := context.Background()
	db, err := dbconn.FromEnv()
	if err != nil {
		log.Fatal("open db", "error", err)
	}
	st, err := storage.Open(ctx, os.Getenv("STORAGE_DRIVER"), os.Getenv("UPLOAD_BASE"), storage.MinIOConfigFromEnv())
	if err != nil {
		log.Fatal("open storage", "error", err)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -*days)
	res, err := purge.FailedUploads(ctx, db, st, log, cutoff, *dryRun)
	if err != nil {
		log.Fatal("purge failed", "error", err)
	}
	fmt.Printf("purge done (dry_run=%v): ledgers=%d files=%d cutoff=%s\n", *dryRun, res.Ledgers, res.Files, cutoff.Format(time.RFC3339))
}
