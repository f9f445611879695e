// Package database opens and migrates the GORM databases behind the sqlite
// and postgres storage backends.
package database

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/OCAP2/multicopter/internal/config"
	"github.com/OCAP2/multicopter/internal/model"
)

// Samples arrive in bursts of one row per vehicle per sampled tick, so
// inserts are batched and run without implicit transactions.
func gormConfig(batch int, prepare bool) *gorm.Config {
	return &gorm.Config{
		PrepareStmt:            prepare,
		SkipDefaultTransaction: true,
		CreateBatchSize:        batch,
		Logger:                 logger.Default.LogMode(logger.Silent),
	}
}

// memoryPragmas trade durability for speed; the database is dumped to disk
// with VACUUM INTO.
var memoryPragmas = []string{
	"PRAGMA journal_mode = MEMORY",
	"PRAGMA synchronous = OFF",
	"PRAGMA temp_store = MEMORY",
	"PRAGMA cache_size = -32000",
	"PRAGMA foreign_keys = ON",
}

var diskPragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA foreign_keys = ON",
}

// PostgresDSN builds a libpq connection string.
func PostgresDSN(cfg config.PostgresConfig) string {
	kv := [][2]string{
		{"host", cfg.Host},
		{"port", cfg.Port},
		{"user", cfg.Username},
		{"password", cfg.Password},
		{"dbname", cfg.Database},
		{"sslmode", "disable"},
	}
	parts := make([]string, 0, len(kv))
	for _, p := range kv {
		if p[1] != "" {
			parts = append(parts, p[0]+"="+p[1])
		}
	}
	return strings.Join(parts, " ")
}

// OpenPostgres connects to Postgres and pings it.
func OpenPostgres(cfg config.PostgresConfig, log zerolog.Logger) (*gorm.DB, error) {
	log.Debug().Str("host", cfg.Host).Str("database", cfg.Database).Msg("Connecting to Postgres")

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  PostgresDSN(cfg),
		PreferSimpleProtocol: true,
	}), gormConfig(5000, false))
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres sql handle: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	log.Info().Str("host", cfg.Host).Msg("Connected to Postgres")
	return db, nil
}

// OpenSQLite opens a SQLite database file. An empty path opens a shared
// in-memory database called name, so every connection of the pool sees the
// same data.
func OpenSQLite(path, name string, log zerolog.Logger) (*gorm.DB, error) {
	dsn, pragmas := path, diskPragmas
	if path == "" {
		if name == "" {
			name = "multicopter"
		}
		dsn = "file:" + url.PathEscape(name) + "?mode=memory&cache=shared"
		pragmas = memoryPragmas
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(2000, true))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if path == "" {
		log.Info().Str("name", name).Msg("Using in-memory SQLite")
	} else {
		log.Info().Str("path", path).Msg("Using SQLite on disk")
	}
	return db, nil
}

// Migrate creates the schema and records the simulator version that wrote it.
// Postgres gets the PostGIS extension for the geometry columns.
func Migrate(db *gorm.DB, version string, log zerolog.Logger) error {
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS postgis").Error; err != nil {
			return fmt.Errorf("enabling postgis: %w", err)
		}
	}

	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}

	var info model.SimInfo
	err := db.Where("version = ?", version).First(&info).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		host, _ := os.Hostname()
		info = model.SimInfo{Version: version, BuildDate: time.Now().UTC().Format(time.DateOnly), Host: host}
		if err := db.Create(&info).Error; err != nil {
			return fmt.Errorf("recording sim info: %w", err)
		}
	case err != nil:
		return fmt.Errorf("reading sim info: %w", err)
	}

	log.Info().Str("dialect", db.Dialector.Name()).Int("tables", len(model.DatabaseModels)).Msg("Schema migrated")
	return nil
}

// DumpSQLite copies a SQLite database into a fresh file at path.
func DumpSQLite(db *gorm.DB, path string) error {
	switch {
	case path == "":
		return errors.New("sqlite dump path not set")
	case strings.ContainsRune(path, '\''):
		return fmt.Errorf("sqlite dump path %q contains a quote", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating dump directory: %w", err)
	}
	// VACUUM INTO refuses to overwrite
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing previous dump: %w", err)
	}
	if err := db.Exec("VACUUM INTO 'file:" + path + "'").Error; err != nil {
		return fmt.Errorf("dumping sqlite to %s: %w", path, err)
	}
	return nil
}
