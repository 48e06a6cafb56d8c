package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/relnote/internal/config"
)

func TestOpenSQLiteAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relnote.db")
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", Path: path})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, ApplyMigrations(db))
	// idempotent
	require.NoError(t, ApplyMigrations(db))

	for _, table := range []string{"users", "notes", "embedding_cache"} {
		var name string
		err := db.Get(&name, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table)
		require.NoError(t, err)
		require.Equal(t, table, name)
	}
}

func TestOpenPostgresAndMigrate(t *testing.T) {
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	db, err := Open(config.DatabaseConfig{Driver: "postgres", DSN: dsn})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, ApplyMigrations(db))
}

func TestDataSource(t *testing.T) {
	driver, dsn := dataSource(config.DatabaseConfig{Driver: "sqlite", Path: "/tmp/a.db"})
	require.Equal(t, "sqlite", driver)
	require.Contains(t, dsn, "busy_timeout")

	driver, dsn = dataSource(config.DatabaseConfig{Driver: "postgres", Host: "h", Port: 5432, User: "u", Password: "p", DBName: "d"})
	require.Equal(t, "postgres", driver)
	require.Equal(t, "host=h port=5432 user=u password=p dbname=d sslmode=disable", dsn)
}
