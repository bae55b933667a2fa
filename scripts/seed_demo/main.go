package main

// seeds a demo data set: departments, pillars, KPIs with milestones and one
// HOD and data officer per department. With --inbox it also writes a sample
// progress CSV for the inbox importer. Existing rows are left alone.

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"srap/models"
	"srap/pkg/dbconn"
)

type demoKpi struct {
	title, unit, pillar string
	target, baseline    float64
	milestones          []string
}

var demo = []struct {
	name, code string
	kpis       []demoKpi
}{
	{"Digital Economy", "DE", []demoKpi{
		{"Broadband penetration", "%", "Digital Infrastructure", 70, 45, []string{"Fibre rollout phase 1", "Fibre rollout phase 2"}},
		{"Digitally skilled citizens", "people", "Digital Literacy and Skills", 1000000, 250000, []string{"Train the trainers"}},
	}},
	{"Standards and Regulations", "SR", []demoKpi{
		{"IT standards published", "standards", "Digital Regulation", 12, 3, []string{"Publish data protection framework"}},
	}},
}

func main() {
	dry := flag.Bool("dry-run", true, "don't write to db")
	password := flag.String("password", "password123", "password for the demo users")
	inbox := flag.String("inbox", "", "write a sample kpi_progress CSV into this directory")
	flag.Parse()

	_ = godotenv.Load()
	gdb, err := dbconn.FromEnv()
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("bcrypt: %v", err)
	}

	var csvRows []string
	for _, d := range demo {
		if *dry {
			fmt.Printf("DRY: would ensure department %s (%s) with %d KPIs, users hod_%s and officer_%s\n",
				d.name, d.code, len(d.kpis), strings.ToLower(d.code), strings.ToLower(d.code))
			continue
		}
		dept := models.Department{Name: d.name, Code: d.code}
		if err := gdb.Where("code = ?", d.code).FirstOrCreate(&dept).Error; err != nil {
			log.Fatalf("department %s: %v", d.code, err)
		}
		ensureUser(gdb, "hod_"+strings.ToLower(d.code), models.RoleHOD, dept.ID, hash)
		ensureUser(gdb, "officer_"+strings.ToLower(d.code), models.RoleDataOfficer, dept.ID, hash)

		for _, k := range d.kpis {
			pillar := models.Pillar{Name: k.pillar}
			if err := gdb.Where("name = ?", k.pillar).FirstOrCreate(&pillar).Error; err != nil {
				log.Fatalf("pillar %s: %v", k.pillar, err)
			}
			kpi := models.Kpi{Title: k.title, Unit: k.unit, DepartmentID: dept.ID, PillarID: &pillar.ID,
				TargetValue: k.target, BaselineValue: k.baseline, CurrentValue: k.baseline,
				Frequency: "quarterly", Status: models.KpiActive}
			if err := gdb.Where("title = ? AND department_id = ?", k.title, dept.ID).FirstOrCreate(&kpi).Error; err != nil {
				log.Fatalf("kpi %s: %v", k.title, err)
			}
			for i, title := range k.milestones {
				due := time.Now().UTC().AddDate(0, 3*(i+1), 0)
				m := models.Milestone{KpiID: kpi.ID, Title: title, DueDate: &due, Status: models.MilestoneNotStarted}
				if err := gdb.Where("kpi_id = ? AND title = ?", kpi.ID, title).FirstOrCreate(&m).Error; err != nil {
					log.Fatalf("milestone %s: %v", title, err)
				}
			}
			csvRows = append(csvRows, fmt.Sprintf("%d,%s,%g,%s", kpi.ID, time.Now().UTC().Format("2006-01-02"),
				k.baseline+(k.target-k.baseline)/2, k.title))
			fmt.Printf("kpi id=%d %q (%s)\n", kpi.ID, k.title, d.code)
		}
	}

	if *inbox == "" || *dry {
		return
	}
	if err := os.MkdirAll(*inbox, 0o755); err != nil {
		log.Fatalf("inbox: %v", err)
	}
	path := filepath.Join(*inbox, fmt.Sprintf("demo_progress_%d.csv", time.Now().Unix()))
	body := "KPI ID,Reporting Date,Current Value,KPI Title\n" + strings.Join(csvRows, "\n") + "\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		log.Fatalf("write sample: %v", err)
	}
	fmt.Printf("wrote %s\n", path)
}

func ensureUser(gdb *gorm.DB, username string, roleName models.RoleName, deptID uint, hash []byte) {
	role := models.Role{Name: roleName, Description: roleName.Description()}
	if err := gdb.Where("name = ?", roleName).FirstOrCreate(&role).Error; err != nil {
		log.Fatalf("role %s: %v", roleName, err)
	}
	var existing models.User
	if err := gdb.Where("username = ?", username).First(&existing).Error; err == nil {
		fmt.Printf("exists: user %s\n", username)
		return
	}
	u := models.User{Username: username, Name: username, HashedPassword: hash, RoleID: &role.ID, DepartmentID: &deptID}
	if err := gdb.Create(&u).Error; err != nil {
		log.Fatalf("create user %s: %v", username, err)
	}
	fmt.Printf("created user %s role=%s\n", username, roleName)
}
