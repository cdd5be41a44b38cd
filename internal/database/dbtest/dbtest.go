// Package dbtest opens migrated SQLite databases for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
)

// Open returns a database file under t.TempDir() with every table migrated.
// The connection uses the same parameters as production, so concurrent
// transactions serialize the way they do in the server.
func Open(t testing.TB) *database.Database {
	t.Helper()

	db, err := database.NewDatabase(config.Database{
		Driver:   config.DriverSQLite,
		Path:     filepath.Join(t.TempDir(), "test.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// OpenGorm is Open for callers that only need the gorm handle.
func OpenGorm(t testing.TB) *gorm.DB {
	t.Helper()
	return Open(t).DB
}
