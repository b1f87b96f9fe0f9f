package database

import (
	"testing"

	"github.com/docindex-go/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"
)

func TestNew_Sqlite(t *testing.T) {
	db, err := New(Config{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1}, logger.NewNop())
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "sqlite", db.Dialect())
	require.NoError(t, db.Exec("CREATE TABLE docs (id TEXT PRIMARY KEY)").Error)
}

func TestNew_UnsupportedDriver(t *testing.T) {
	_, err := New(Config{Driver: "oracle"}, logger.NewNop())
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, parseLevel("silent"))
	assert.Equal(t, gormlogger.Info, parseLevel("info"))
	assert.Equal(t, gormlogger.Warn, parseLevel(""))
}
