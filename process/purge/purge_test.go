package purge

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"srap/models"
	"srap/pkg/logger"
	"srap/pkg/storage"
)

func TestFailedUploads(t *testing.T) {
	ctx := context.Background()
	db, err := gorm.Open(sqlite.Open("file:purge_failed?mode=memory&cache=shared"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	st, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, "uploads/progress/1_old.csv", strings.NewReader("x"), 1, "text/csv"))

	user := models.User{Username: "officer", HashedPassword: []byte("x")}
	require.NoError(t, db.Create(&user).Error)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	mk := func(status models.UploadStatus, age time.Duration, key string) models.UploadedFile {
		u := models.UploadedFile{OriginalName: "f.csv", FileType: models.FileTypeKpiProgress, Status: status,
			UploadedBy: user.ID, FilePath: key, CreatedAt: now.Add(-age)}
		require.NoError(t, db.Create(&u).Error)
		return u
	}
	oldFailed := mk(models.UploadFailed, 60*24*time.Hour, "uploads/progress/1_old.csv")
	mk(models.UploadFailed, 60*24*time.Hour, "")
	recent := mk(models.UploadFailed, 24*time.Hour, "")
	done := mk(models.UploadCompleted, 90*24*time.Hour, "")

	cutoff := now.AddDate(0, 0, -30)
	res, err := FailedUploads(ctx, db, st, logger.Nop(), cutoff, true)
	require.NoError(t, err)
	assert.Equal(t, Result{Ledgers: 2, Files: 1}, res)

	res, err = FailedUploads(ctx, db, st, logger.Nop(), cutoff, false)
	require.NoError(t, err)
	assert.Equal(t, Result{Ledgers: 2, Files: 1}, res)

	var left []models.UploadedFile
	require.NoError(t, db.Order("id").Find(&left).Error)
	require.Len(t, left, 2)
	assert.Equal(t, recent.ID, left[0].ID)
	assert.Equal(t, done.ID, left[1].ID)

	exists, err := st.Exists(ctx, oldFailed.FilePath)
	require.NoError(t, err)
	assert.False(t, exists)
}
