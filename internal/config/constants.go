package config

// Default paths for databases
const (
	// DefaultDatabasePath is the default path for the main application database
	DefaultDatabasePath = "./librarian.db"

	// DefaultTasksDatabasePath is used for the task queue when the main database is not SQLite
	DefaultTasksDatabasePath = "./librarian-tasks.db"

	// DefaultArchiveDir holds archived catalog imports and drift reports
	DefaultArchiveDir = "./audit"
)

// Supported database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)
