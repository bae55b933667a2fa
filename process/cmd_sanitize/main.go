package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"srap/pkg/dbconn"
	"srap/pkg/logger"
	"srap/process/sanitize"
)

func main() {
	dryRun := flag.Bool("dry-run", true, "Don't perform destructive actions; show what would be done")
	yes := flag.Bool("yes", false, "Confirm destructive action (required to actually truncate)")
	reseed := flag.Bool("reseed", false, "After truncation, reseed roles and the admin user")
	tables := flag.String("tables", strings.Join(sanitize.DefaultTables, ","), "Comma-separated list of tables to truncate")
	flag.Parse()

	_ = godotenv.Load()
	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	defer log.Sync()
	if os.Getenv("DB_DSN") == "" {
		log.Fatal("DB_DSN must be set to run db_sanitize")
	}
	db, err := dbconn.Open("postgres", os.Getenv("DB_DSN"))
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	err = sanitize.Run(context.Background(), db, os.Stdout, log, sanitize.Options{
		Tables: strings.Split(*tables, ","),
		DryRun: *dryRun,
		Yes:    *yes,
		Reseed: *reseed,
	})
	if err != nil {
		log.Fatal("sanitize failed", "error", err)
	}
}
