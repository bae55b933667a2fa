package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"srap/models"
	"srap/pkg/dbconn"
)

func main() {
	roleFlag := flag.String("role", string(models.RoleStaff), "role: admin, hod, data_officer or staff")
	deptFlag := flag.String("dept", "", "department code (required for hod and data_officer)")
	name := flag.String("name", "", "display name")
	flag.Usage = func() {
		fmt.Println("usage: go run ./cmd/create_user [-role hod] [-dept DE] [-name \"Jane Doe\"] <username> <password>")
	}
	flag.Parse()
	if flag.NArg() < 2 {
		flag.Usage()
		os.Exit(2)
	}
	username := flag.Arg(0)
	password := flag.Arg(1)

	roleName, ok := models.ParseRoleName(*roleFlag)
	if !ok {
		log.Fatalf("unknown role %q", *roleFlag)
	}
	if (roleName == models.RoleHOD || roleName == models.RoleDataOfficer) && strings.TrimSpace(*deptFlag) == "" {
		log.Fatalf("-dept is required for role %s", roleName)
	}

	_ = godotenv.Load()
	db, err := dbconn.FromEnv()
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}

	// ensure the role exists
	role := models.Role{Name: roleName, Description: roleName.Description()}
	if err := db.Where("name = ?", roleName).FirstOrCreate(&role).Error; err != nil {
		log.Fatalf("failed to ensure role: %v", err)
	}

	var deptID *uint
	if code := strings.ToUpper(strings.TrimSpace(*deptFlag)); code != "" {
		var d models.Department
		if err := db.Where("code = ?", code).First(&d).Error; err != nil {
			log.Fatalf("department %s not found: %v", code, err)
		}
		deptID = &d.ID
	}

	// check existing
	var existing models.User
	if err := db.Where("username = ?", username).First(&existing).Error; err == nil {
		fmt.Printf("user %s already exists (id=%d)\n", username, existing.ID)
		os.Exit(0)
	}

	hpw, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("bcrypt failed: %v", err)
	}
	displayName := *name
	if displayName == "" {
		displayName = username
	}
	rid := role.ID
	user := models.User{Username: username, Name: displayName, HashedPassword: hpw, RoleID: &rid, DepartmentID: deptID}
	if err := db.Create(&user).Error; err != nil {
		log.Fatalf("failed to create user: %v", err)
	}
	fmt.Printf("created user %s id=%d role=%s\n", username, user.ID, roleName)
}
