package cli

import (
	"fmt"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
)

// loadConfig reads the environment configuration, letting a non-empty -db
// flag replace the SQLite path.
func loadConfig(dbPath string) *config.Config {
	cfg := config.NewConfig()
	if dbPath != "" {
		cfg.Database.Driver = config.DriverSQLite
		cfg.Database.Path = dbPath
	}
	return cfg
}

func openDatabase(cfg *config.Config) (*database.Database, error) {
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}
