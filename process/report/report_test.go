package report

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"srap/models"
	"srap/pkg/sheet"
	"srap/pkg/storage"
)

func seed(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:report_"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	dept := models.Department{Name: "Digital Economy", Code: "DE"}
	require.NoError(t, db.Create(&dept).Error)
	user := models.User{Username: "officer", HashedPassword: []byte("x"), DepartmentID: &dept.ID}
	require.NoError(t, db.Create(&user).Error)
	kpi := models.Kpi{Title: "Broadband penetration", DepartmentID: dept.ID, TargetValue: 100, CurrentValue: 40, Status: models.KpiActive}
	require.NoError(t, db.Create(&kpi).Error)
	idle := models.Kpi{Title: "Digital literacy", DepartmentID: dept.ID, TargetValue: 50, Status: models.KpiActive}
	require.NoError(t, db.Create(&idle).Error)

	entry := func(d time.Time, v float64, st models.VerificationStatus) {
		e := models.KpiProgress{KpiID: kpi.ID, ReportingDate: d, Value: v, ReportedBy: user.ID, VerificationStatus: st, EntryType: models.EntryUpload}
		require.NoError(t, db.Create(&e).Error)
	}
	entry(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), 30, models.VerificationVerified)
	entry(time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC), 40, models.VerificationVerified)
	entry(time.Date(2024, 3, 25, 0, 0, 0, 0, time.UTC), 45, models.VerificationPending)
	entry(time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC), 50, models.VerificationVerified)

	for _, st := range []models.UploadStatus{models.UploadCompleted, models.UploadFailed} {
		u := models.UploadedFile{OriginalName: "march.csv", FileType: models.FileTypeKpiProgress, Status: st, UploadedBy: user.ID,
			CreatedAt: time.Date(2024, 3, 21, 8, 0, 0, 0, time.UTC)}
		require.NoError(t, db.Create(&u).Error)
	}
	return db
}

func TestBuildSummarizesMonth(t *testing.T) {
	db := seed(t)
	s, err := Build(db, "de", "2024-03")
	require.NoError(t, err)
	require.Len(t, s.Lines, 2)

	l := s.Lines[0]
	assert.Equal(t, "Broadband penetration", l.Title)
	assert.EqualValues(t, 3, l.Entries)
	assert.EqualValues(t, 2, l.Verified)
	assert.EqualValues(t, 1, l.Pending)
	require.NotNil(t, l.LatestValue)
	assert.Equal(t, 40.0, *l.LatestValue)
	assert.Equal(t, 40.0, l.Percentage)

	assert.Nil(t, s.Lines[1].LatestValue)
	assert.EqualValues(t, 2, s.Uploads)
	assert.EqualValues(t, 1, s.Failed)
}

func TestWriteTable(t *testing.T) {
	db := seed(t)
	s, err := Build(db, "DE", "2024-03")
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, s, true))
	out := buf.String()
	assert.Contains(t, out, "department=DE (Digital Economy) month=2024-03")
	assert.Contains(t, out, "kpis=2 entries_verified=2 entries_pending=1 uploads=2 uploads_failed=1")
	assert.Contains(t, out, "Broadband penetration")
}

func TestBuildErrors(t *testing.T) {
	db := seed(t)
	_, err := Build(db, "DE", "March")
	assert.ErrorContains(t, err, "expected YYYY-MM")
	_, err = Build(db, "XX", "2024-03")
	assert.ErrorContains(t, err, `department "XX" not found`)
}

func TestSaveXLSX(t *testing.T) {
	db := seed(t)
	s, err := Build(db, "DE", "2024-03")
	require.NoError(t, err)
	st, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	now := time.Date(2024, 4, 1, 6, 0, 0, 0, time.UTC)
	key, err := SaveXLSX(context.Background(), st, s, now)
	require.NoError(t, err)
	assert.Equal(t, storage.ReportKey(s.Department.ID, now, "xlsx"), key)

	rc, err := st.Open(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	rows, err := sheet.ReadRows(rc, "report.xlsx")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "KPI ID", rows[0][0])
	assert.Equal(t, "Broadband penetration", rows[1][1])
	assert.Equal(t, "40", rows[1][9])
}
