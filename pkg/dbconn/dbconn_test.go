package dbconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSqliteMemory(t *testing.T) {
	db, err := Open("SQLite", "file:dbconn_test?mode=memory&cache=shared")
	require.NoError(t, err)
	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestOpenRejectsMissingDSNAndUnknownDriver(t *testing.T) {
	_, err := Open("postgres", "")
	assert.ErrorContains(t, err, "DB_DSN is not set")

	_, err = Open("oracle", "x")
	assert.ErrorContains(t, err, `unknown DB_DRIVER "oracle"`)
}
