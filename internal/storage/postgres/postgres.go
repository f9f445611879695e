// Package postgres implements the storage.Backend interface on a PostgreSQL
// database with PostGIS, reusing the GORM backend's queues and writer.
package postgres

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/OCAP2/multicopter/internal/config"
	"github.com/OCAP2/multicopter/internal/database"
	gormstorage "github.com/OCAP2/multicopter/internal/storage/gorm"
)

// Backend wraps the GORM backend with a postgres connection it owns.
type Backend struct {
	*gormstorage.Backend
	db *gorm.DB
}

// New connects to postgres and builds the backend. deps.DB is replaced by
// the new connection.
func New(cfg config.PostgresConfig, deps gormstorage.Dependencies) (*Backend, error) {
	db, err := database.OpenPostgres(cfg, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	deps.DB = db
	return &Backend{Backend: gormstorage.New(deps), db: db}, nil
}

// Close flushes pending telemetry and closes the connection pool.
func (b *Backend) Close() error {
	err := b.Backend.Close()
	if sqlDB, dbErr := b.db.DB(); dbErr == nil {
		err = errors.Join(err, sqlDB.Close())
	}
	return err
}
