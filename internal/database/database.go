// Package database opens the gorm connections used by the recording
// backends: postgres (with PostGIS) and in-memory SQLite dumped to disk.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rlpredict/rlpredict/internal/model"
)

const (
	memoryDSN = "file::memory:?cache=shared"

	postgresBatchSize = 10000
	sqliteBatchSize   = 2000
	maxPostgresConns  = 10
)

var sqlitePragmas = []string{
	"PRAGMA user_version = 1;",
	"PRAGMA journal_mode = MEMORY;",
	"PRAGMA synchronous = OFF;",
	"PRAGMA cache_size = -32000;",
	"PRAGMA temp_store = MEMORY;",
	"PRAGMA page_size = 32768;",
}

// ErrNoDumpPath is returned when an in-memory database is dumped without a target file.
var ErrNoDumpPath = errors.New("sqlite dump path not set")

// Manager owns one database connection. Connect prefers postgres and falls
// back to an in-memory SQLite database when postgres is unreachable.
type Manager struct {
	DB       *gorm.DB
	SqlDB    *sql.DB
	IsValid  bool
	Fallback bool // true when running on the SQLite fallback
	DumpPath string
	Logger   zerolog.Logger
}

// NewManager creates a new database manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{Logger: log}
}

// Connect opens postgres, or in-memory SQLite if postgres cannot be opened or pinged.
func (m *Manager) Connect() error {
	db, err := OpenPostgres()
	if err == nil {
		err = ping(db)
	}
	if err != nil {
		m.Logger.Error().Err(err).Msg("Failed to connect to Postgres DB, trying SQLite")
		return m.connectFallback()
	}

	m.DB = db
	m.SqlDB, _ = db.DB()
	m.SqlDB.SetMaxOpenConns(maxPostgresConns)
	m.IsValid = true
	m.Logger.Info().Msg("Connected to database")
	return nil
}

func (m *Manager) connectFallback() error {
	db, err := OpenSqlite("")
	if err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to get local SQLite DB: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to access sql interface: %w", err)
	}

	m.DB = db
	m.SqlDB = sqlDB
	m.Fallback = true
	m.IsValid = true
	m.Logger.Info().Msg("Using local SQLite DB in memory")
	return nil
}

func ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	return sqlDB.Ping()
}

// Setup enables PostGIS on postgres and migrates every model table.
func (m *Manager) Setup() error {
	if !m.IsValid || m.DB == nil {
		return errors.New("db not valid, not migrating")
	}
	if err := Migrate(m.DB); err != nil {
		m.IsValid = false
		return err
	}
	m.Logger.Info().Str("dialect", m.DB.Name()).Msg("Database setup complete")
	return nil
}

// Dump writes the fallback database to DumpPath. It is a no-op on postgres.
func (m *Manager) Dump() error {
	if !m.Fallback {
		return nil
	}
	start := time.Now()
	if err := DumpMemoryDBToDisk(m.DB, m.DumpPath); err != nil {
		return err
	}
	m.Logger.Debug().Dur("duration", time.Since(start)).Str("path", m.DumpPath).Msg("Dumped memory DB to disk")
	return nil
}

// Close releases the underlying connection pool.
func (m *Manager) Close() error {
	if m.SqlDB == nil {
		return nil
	}
	m.IsValid = false
	return m.SqlDB.Close()
}

// Migrate creates the PostGIS extension where supported and migrates all
// tables in model.DatabaseModels.
func Migrate(db *gorm.DB) error {
	if db.Name() == "postgres" {
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS postgis;`).Error; err != nil {
			return fmt.Errorf("failed to create PostGIS extension: %w", err)
		}
	}
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// PostgresDSN builds the connection string from the db.* config keys.
func PostgresDSN() string {
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		viper.GetString("db.host"),
		viper.GetString("db.port"),
		viper.GetString("db.username"),
		viper.GetString("db.password"),
		viper.GetString("db.database"),
	)
}

// OpenPostgres opens a postgres connection from the db.* config keys.
func OpenPostgres() (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  PostgresDSN(),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        postgresBatchSize,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

// OpenSqlite opens a SQLite database at path. An empty path opens the
// shared in-memory database.
func OpenSqlite(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = memoryDSN
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        sqliteBatchSize,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	for _, pragma := range sqlitePragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}
	return db, nil
}

// DumpMemoryDBToDisk vacuums db into a file at path, replacing any existing file.
func DumpMemoryDBToDisk(db *gorm.DB, path string) error {
	if path == "" {
		return ErrNoDumpPath
	}

	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("error removing existing DB file: %w", err)
		}
	}

	if err := db.Exec("VACUUM INTO ?", "file:"+path).Error; err != nil {
		return fmt.Errorf("error dumping memory DB to disk: %w", err)
	}
	return nil
}
