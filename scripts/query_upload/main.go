package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"srap/models"
	"srap/pkg/dbconn"
)

func main() {
	id := flag.Uint("id", 0, "upload id")
	username := flag.String("username", "", "uploader username (with --file)")
	file := flag.String("file", "", "original file name (with --username)")
	flag.Parse()
	if *id == 0 && (*username == "" || *file == "") {
		log.Fatal("--id or both --username and --file required")
	}
	_ = godotenv.Load()
	db, err := dbconn.FromEnv()
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	var up models.UploadedFile
	if *id != 0 {
		err = db.Preload("Uploader").First(&up, *id).Error
	} else {
		var u models.User
		if err := db.Where("username = ?", *username).First(&u).Error; err != nil {
			log.Fatalf("user: %v", err)
		}
		err = db.Preload("Uploader").Where("uploaded_by = ? AND original_name = ?", u.ID, *file).Order("id desc").First(&up).Error
	}
	if err != nil {
		log.Fatalf("upload: %v", err)
	}

	fmt.Printf("upload id=%d type=%s status=%s records=%d errors=%d requires_approval=%v approved_at=%v rejected_at=%v store=%s ct=%s\n",
		up.ID, up.FileType, up.Status, up.RecordsProcessed, up.ErrorsCount, up.RequiresApproval, up.ApprovedAt, up.RejectedAt, up.FilePath, up.ContentType)
	if up.Uploader != nil {
		fmt.Printf("uploader=%s\n", up.Uploader.Username)
	}
	for _, e := range up.Errors() {
		fmt.Printf("  row %d: %s\n", e.Row, e.Error)
	}

	type count struct {
		Status string
		N      int64
	}
	var counts []count
	db.Model(&models.KpiProgress{}).Select("verification_status as status, count(*) as n").
		Where("uploaded_file_id = ?", up.ID).Group("verification_status").Scan(&counts)
	for _, c := range counts {
		fmt.Printf("  entries %s=%d\n", c.Status, c.N)
	}
}
