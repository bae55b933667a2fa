package progress

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"srap/models"
)

func newEntry(f *fixture, value float64) *models.KpiProgress {
	return &models.KpiProgress{
		KpiID:              f.kpiA1.ID,
		ReportingDate:      day(2024, 1, 15),
		Value:              value,
		EntryType:          models.EntryUpload,
		ReportedBy:         f.admin.ID,
		VerificationStatus: models.VerificationVerified,
	}
}

func TestSaveProgressExistingEntry(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, saveProgress(f.db, newEntry(f, 10), false))

	err := saveProgress(f.db, newEntry(f, 20), false)
	assert.ErrorIs(t, err, errDuplicateEntry)

	replacement := newEntry(f, 30)
	require.NoError(t, saveProgress(f.db, replacement, true))
	var stored []models.KpiProgress
	require.NoError(t, f.db.Find(&stored).Error)
	require.Len(t, stored, 1)
	assert.Equal(t, replacement.ID, stored[0].ID)
	assert.Equal(t, 30.0, stored[0].Value)
}

// A row inserted between the lookup and the insert must surface as a duplicate.
func TestSaveProgressConcurrentInsert(t *testing.T) {
	f := newFixture(t)
	raced := false
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("test:concurrent_insert", func(d *gorm.DB) {
		if raced || d.Statement.Table != "kpi_progress" {
			return
		}
		raced = true
		if err := d.Session(&gorm.Session{NewDB: true}).Create(newEntry(f, 5)).Error; err != nil {
			_ = d.AddError(err)
		}
	}))

	err := f.db.Transaction(func(tx *gorm.DB) error {
		return saveProgress(tx, newEntry(f, 10), false)
	})
	assert.True(t, raced)
	assert.ErrorIs(t, err, errDuplicateEntry)
}

func TestIsUniqueConstraintError(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Create(newEntry(f, 1)).Error)
	err := f.db.Create(newEntry(f, 2)).Error
	require.Error(t, err)
	assert.True(t, isUniqueConstraintError(err), err.Error())

	assert.True(t, isUniqueConstraintError(errors.New(`ERROR: duplicate key value violates unique constraint "idx_kpi_progress_kpi_date" (SQLSTATE 23505)`)))
	assert.False(t, isUniqueConstraintError(errors.New("connection refused")))
	assert.False(t, isUniqueConstraintError(nil))
}
