package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"srap/models"
	"srap/pkg/logger"
)

func TestValidTables(t *testing.T) {
	got := ValidTables([]string{" users ", "", "users", "kpi_progress", "drop table;--", "1bad"}, logger.Nop())
	assert.Equal(t, []string{"users", "kpi_progress"}, got)
}

func TestTruncateStatement(t *testing.T) {
	assert.Equal(t, `TRUNCATE TABLE "kpi_progress", "kpis" RESTART IDENTITY CASCADE`, TruncateStatement([]string{"kpi_progress", "kpis"}))
}

func TestReseedRolesAndAdminIsIdempotent(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:sanitize_reseed?mode=memory&cache=shared"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	require.NoError(t, ReseedRolesAndAdmin(db))
	require.NoError(t, ReseedRolesAndAdmin(db))

	var roles int64
	require.NoError(t, db.Model(&models.Role{}).Count(&roles).Error)
	assert.EqualValues(t, len(models.AllRoles()), roles)

	var admin models.User
	require.NoError(t, db.Preload("Role").Where("username = ?", "admin").First(&admin).Error)
	assert.Equal(t, models.RoleAdmin, admin.RoleName())
	assert.NoError(t, bcrypt.CompareHashAndPassword(admin.HashedPassword, []byte("admin123")))
}
