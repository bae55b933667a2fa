// Package dbconn opens the gorm handle shared by the server and the maintenance tools.
package dbconn

import (
	"fmt"
	"os"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to driver ("postgres" or "sqlite"). An empty driver means postgres.
func Open(driver, dsn string) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}
	switch strings.ToLower(driver) {
	case "sqlite":
		if dsn == "" {
			dsn = "srap.db"
		}
		conn, err := gorm.Open(sqlite.Open(dsn), gcfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, err
		}
		// sqlite serializes writers; one connection keeps in-memory databases alive too
		sqlDB.SetMaxOpenConns(1)
		return conn, nil
	case "postgres", "":
		if dsn == "" {
			return nil, fmt.Errorf("DB_DSN is not set. A Postgres DSN is required when DB_DRIVER=postgres")
		}
		return gorm.Open(postgres.Open(dsn), gcfg)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", driver)
	}
}

// FromEnv opens the database named by DB_DRIVER and DB_DSN.
func FromEnv() (*gorm.DB, error) {
	return Open(os.Getenv("DB_DRIVER"), os.Getenv("DB_DSN"))
}
