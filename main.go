package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	"srap/pkg/logger"
	"srap/pkg/predict"
	"srap/pkg/progress"
	"srap/pkg/storage"
)

var (
	cfg       Config
	appLog    *logger.Logger
	jwtSecret []byte

	fileStore   storage.Storage
	importer    *progress.Importer
	gate        *progress.Gate
	predictions *predict.Service
)

func main() {
	cfg = loadConfig()
	l, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	appLog = l
	defer appLog.Sync()
	jwtSecret = []byte(cfg.JWTSecret)

	// `./srap migrate` runs AutoMigrate and seeding then exits.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		initDB()
		fmt.Println("migration and seeding completed")
		return
	}

	initDB()
	if err := initServices(context.Background()); err != nil {
		appLog.Fatal("failed to init services", "error", err)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	setupRoutes(r)

	appLog.Info("server listening", "port", cfg.Port, "db_driver", cfg.DBDriver, "storage", cfg.StorageDriver)
	if err := r.Run(":" + cfg.Port); err != nil {
		appLog.Fatal("server stopped", "error", err)
	}
}

// initServices wires storage, the upload pipeline and the prediction service onto db.
func initServices(ctx context.Context) error {
	st, err := storage.Open(ctx, cfg.StorageDriver, cfg.UploadBase, cfg.MinIO)
	if err != nil {
		return err
	}
	fileStore = st
	importer = progress.NewImporter(db, st, appLog.With("component", "importer"))
	importer.MaxBytes = cfg.UploadMaxBytes
	importer.DefaultPolicy = cfg.ErrorPolicy
	gate = progress.NewGate(db, appLog.With("component", "gate"))
	predictions = predict.NewService(db, predict.NewClient(cfg.AIServiceURL, cfg.AIServiceTimeout), appLog.With("component", "predict"))
	return nil
}
