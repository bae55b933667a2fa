package progress

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"srap/models"
	"srap/pkg/storage"
)

var testNow = time.Date(2024, 3, 20, 9, 30, 0, 0, time.UTC)

type fixture struct {
	db       *gorm.DB
	store    *storage.Local
	importer *Importer
	gate     *Gate

	deptA, deptB       models.Department
	admin, hodA, hodB  *models.User
	officerA, staffA   *models.User
	kpiA1, kpiA2, kpiB models.Kpi
	msA, msB           models.Milestone
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{db: newTestDB(t)}
	st, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	f.store = st

	roles := map[models.RoleName]models.Role{}
	for _, name := range models.AllRoles() {
		r := models.Role{Name: name, Description: name.Description()}
		require.NoError(t, f.db.Create(&r).Error)
		roles[name] = r
	}
	f.deptA = models.Department{Name: "Digital Economy", Code: "DE"}
	f.deptB = models.Department{Name: "Standards", Code: "ST"}
	require.NoError(t, f.db.Create(&f.deptA).Error)
	require.NoError(t, f.db.Create(&f.deptB).Error)

	mkUser := func(username string, role models.RoleName, dept *models.Department) *models.User {
		r := roles[role]
		u := &models.User{Username: username, HashedPassword: []byte("x"), RoleID: &r.ID}
		if dept != nil {
			id := dept.ID
			u.DepartmentID = &id
		}
		require.NoError(t, f.db.Create(u).Error)
		u.Role = r
		return u
	}
	f.admin = mkUser("admin", models.RoleAdmin, nil)
	f.hodA = mkUser("hod_a", models.RoleHOD, &f.deptA)
	f.hodB = mkUser("hod_b", models.RoleHOD, &f.deptB)
	f.officerA = mkUser("officer_a", models.RoleDataOfficer, &f.deptA)
	f.staffA = mkUser("staff_a", models.RoleStaff, &f.deptA)

	f.kpiA1 = models.Kpi{Title: "Broadband penetration", DepartmentID: f.deptA.ID, TargetValue: 100, Status: models.KpiActive}
	f.kpiA2 = models.Kpi{Title: "Digital literacy", DepartmentID: f.deptA.ID, TargetValue: 200, Status: models.KpiActive}
	f.kpiB = models.Kpi{Title: "Standards adopted", DepartmentID: f.deptB.ID, TargetValue: 10, Status: models.KpiActive}
	for _, k := range []*models.Kpi{&f.kpiA1, &f.kpiA2, &f.kpiB} {
		require.NoError(t, f.db.Create(k).Error)
	}
	f.msA = models.Milestone{KpiID: f.kpiA1.ID, Title: "Fibre rollout phase 1", Status: models.MilestoneNotStarted}
	f.msB = models.Milestone{KpiID: f.kpiB.ID, Title: "Publish framework", Status: models.MilestoneNotStarted}
	require.NoError(t, f.db.Create(&f.msA).Error)
	require.NoError(t, f.db.Create(&f.msB).Error)

	f.importer = NewImporter(f.db, f.store, nil)
	f.importer.Now = func() time.Time { return testNow }
	f.gate = NewGate(f.db, nil)
	f.gate.Now = func() time.Time { return testNow.Add(time.Hour) }
	return f
}

func (f *fixture) upload(t *testing.T, user *models.User, name string, typ models.FileType, body string, overwrite bool) (*ImportResult, error) {
	t.Helper()
	return f.importer.Import(context.Background(), ImportRequest{
		File:         strings.NewReader(body),
		Filename:     name,
		ContentType:  "text/csv",
		DeclaredType: typ,
		Overwrite:    overwrite,
		Uploader:     user,
	})
}

func (f *fixture) kpi(t *testing.T, id uint) models.Kpi {
	t.Helper()
	var k models.Kpi
	require.NoError(t, f.db.First(&k, id).Error)
	return k
}

func (f *fixture) countProgress(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.KpiProgress{}).Count(&n).Error)
	return n
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
