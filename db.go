package main

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"srap/models"
	"srap/pkg/dbconn"
)

var db *gorm.DB

func initDB() {
	var err error
	db, err = dbconn.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		appLog.Fatal("failed to connect database", "driver", cfg.DBDriver, "error", err)
	}
	// Any permission errors will be logged and ignored.
	if cfg.AutoMigrate {
		migrateAll()
	}
	seedDB()
}

// migrateAll migrates models one by one, parents first, so a failure on one doesn't block others.
func migrateAll() {
	for _, m := range models.All() {
		if err := db.AutoMigrate(m); err != nil {
			appLog.Warn("migration warning", "model", fmt.Sprintf("%T", m), "error", err)
		}
	}
}

func seedDB() {
	for _, name := range models.AllRoles() {
		r := models.Role{Name: name, Description: name.Description()}
		if err := db.Where("name = ?", name).FirstOrCreate(&r).Error; err != nil {
			appLog.Warn("failed to seed role", "role", name, "error", err)
		}
	}

	var count int64
	db.Model(&models.User{}).Where("username = ?", "admin").Count(&count)
	if count > 0 {
		return
	}
	var role models.Role
	if err := db.Where("name = ?", models.RoleAdmin).First(&role).Error; err != nil {
		appLog.Error("failed to find admin role", "error", err)
		return
	}
	rid := role.ID
	hashed, _ := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	admin := models.User{Username: "admin", Name: "Administrator", HashedPassword: hashed, RoleID: &rid}
	if err := db.Create(&admin).Error; err != nil {
		appLog.Error("failed to seed admin user", "error", err)
		return
	}
	appLog.Info("seeded admin user", "username", "admin")
}
