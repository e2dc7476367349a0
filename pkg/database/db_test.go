package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLite(t *testing.T) {
	cfg := Config{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "t.db"), MaxConns: 1}
	db, err := Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	var one int
	require.NoError(t, db.Get(&one, db.Rebind("SELECT ?"), 1))
	assert.Equal(t, 1, one)
}

func TestConnectUnknownDriver(t *testing.T) {
	_, err := Connect(Config{Driver: "oracle"})
	assert.Error(t, err)
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, "'UTC'", quoteLiteral("UTC"))
	assert.Equal(t, "'it''s'", quoteLiteral("it's"))
}

func TestConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("DATABASE_URL", "")
	cfg := ConfigFromEnv()
	assert.Equal(t, DriverSQLite, cfg.Driver)
	assert.Equal(t, "database.db", cfg.DSN)
	assert.Equal(t, 1, cfg.MaxConns)
}
