package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"srap/pkg/dbconn"
	"srap/pkg/storage"
	"srap/process/report"
)

func main() {
	dept := flag.String("dept", "", "department code to report for")
	month := flag.String("month", time.Now().UTC().Format("2006-01"), "month to report (YYYY-MM)")
	list := flag.Bool("list", false, "list one line per KPI")
	xlsx := flag.Bool("xlsx", false, "also store the report as reports/<dept-id>_<timestamp>.xlsx")
	flag.Parse()

	_ = godotenv.Load()
	if *dept == "" {
		fmt.Fprintln(os.Stderr, "-dept is required")
		os.Exit(2)
	}
	db, err := dbconn.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "open db:", err)
		os.Exit(2)
	}
	s, err := report.Build(db, *dept, *month)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := report.Write(os.Stdout, s, *list); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if !*xlsx {
		return
	}
	ctx := context.Background()
	st, err := storage.Open(ctx, os.Getenv("STORAGE_DRIVER"), os.Getenv("UPLOAD_BASE"), storage.MinIOConfigFromEnv())
	if err != nil {
		fmt.Fprintln(os.Stderr, "open storage:", err)
		os.Exit(1)
	}
	key, err := report.SaveXLSX(ctx, st, s, time.Now().UTC())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("stored %s\n", key)
}
