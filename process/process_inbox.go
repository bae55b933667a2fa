package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"srap/models"
	"srap/pkg/dbconn"
	"srap/pkg/logger"
	"srap/pkg/progress"
	"srap/pkg/storage"
	"srap/process/inbox"
)

// Imports progress spreadsheets from a drop directory as a named uploader. Optional watch mode.
func main() {
	dir := flag.String("dir", "inbox", "directory to scan for progress spreadsheets")
	username := flag.String("username", "admin", "user the uploads are recorded against")
	fileType := flag.String("type", string(models.FileTypeKpiProgress), "declared file type (kpi_progress|milestone_progress); headers can override it")
	overwrite := flag.Bool("overwrite", false, "replace existing entries for the same KPI and date")
	policy := flag.String("policy", "", "error policy (best_effort|fail_fast); defaults to UPLOAD_ERROR_POLICY")
	watch := flag.Bool("watch", false, "keep watching the directory for new files")
	dryRun := flag.Bool("dry-run", false, "list candidate files and exit without touching the database")
	flag.Parse()

	_ = godotenv.Load()
	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	w := &inbox.Watcher{Dir: *dir, Overwrite: *overwrite, Log: log.With("component", "inbox")}
	if *dryRun {
		names, err := w.List()
		if err != nil {
			log.Fatal("failed to list inbox", "dir", *dir, "error", err)
		}
		for _, n := range names {
			fmt.Println(n)
		}
		fmt.Printf("%d candidate files\n", len(names))
		return
	}

	ft, ok := models.ParseFileType(*fileType)
	if !ok {
		log.Fatal("invalid -type", "type", *fileType)
	}
	w.FileType = ft
	p := strings.TrimSpace(*policy)
	if p == "" {
		p = os.Getenv("UPLOAD_ERROR_POLICY")
	}
	if p != "" {
		ep, ok := progress.ParsePolicy(p)
		if !ok {
			log.Fatal("invalid error policy", "policy", p)
		}
		w.Policy = ep
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := dbconn.FromEnv()
	if err != nil {
		log.Fatal("failed to connect database", "error", err)
	}
	var user models.User
	if err := db.Preload("Role").Where("username = ?", *username).First(&user).Error; err != nil {
		log.Fatal("uploader not found", "username", *username, "error", err)
	}
	if !user.RoleName().CanUpload() {
		log.Fatal("uploader role cannot upload progress", "username", user.Username, "role", user.RoleName())
	}
	w.Uploader = &user

	st, err := storage.Open(ctx, os.Getenv("STORAGE_DRIVER"), os.Getenv("UPLOAD_BASE"), storage.MinIOConfigFromEnv())
	if err != nil {
		log.Fatal("failed to open storage", "error", err)
	}
	w.Importer = progress.NewImporter(db, st, log.With("component", "importer"))

	if *watch {
		if err := w.Watch(ctx); err != nil {
			log.Fatal("watch failed", "error", err)
		}
		return
	}
	out, err := w.Scan(ctx)
	if err != nil {
		log.Fatal("scan failed", "error", err)
	}
	failed := 0
	for _, o := range out {
		if o.Err != nil {
			failed++
		}
	}
	log.Info("inbox scan finished", "files", len(out), "failed", failed)
}
