// Package sqlitestorage implements the storage.Backend interface using an in-memory
// SQLite database with periodic disk dumps via VACUUM INTO.
// It wraps the GORM backend; the only SQLite-specific concerns are creating
// the in-memory DB and dumping it to disk.
package sqlitestorage

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/OCAP2/multicopter/internal/config"
	"github.com/OCAP2/multicopter/internal/database"
	gormstorage "github.com/OCAP2/multicopter/internal/storage/gorm"
)

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      config.SQLiteConfig
	deps     gormstorage.Dependencies
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new SQLite storage backend. deps.DB is replaced by a fresh
// in-memory database.
func New(cfg config.SQLiteConfig, deps gormstorage.Dependencies) (*Backend, error) {
	db, err := database.OpenSQLite("", fmt.Sprintf("multicopter-%d", time.Now().UnixNano()), deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}
	deps.DB = db

	return &Backend{
		Backend: gormstorage.New(deps),
		db:      db,
		cfg:     cfg,
		deps:    deps,
	}, nil
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.stopChan = make(chan struct{})
		b.done = make(chan struct{})
		go b.dumpLoop()
	}
	return nil
}

// Close stops the dump goroutine, flushes the GORM backend and writes a
// final dump before closing the database.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		<-b.done
		b.stopChan = nil
	}

	err := b.Backend.Close()
	if b.cfg.DumpPath != "" {
		err = errors.Join(err, b.Dump())
	}
	if sqlDB, dbErr := b.db.DB(); dbErr == nil {
		err = errors.Join(err, sqlDB.Close())
	}
	return err
}

// Dump flushes queued telemetry and writes the database to the dump path.
func (b *Backend) Dump() error {
	if err := b.Flush(); err != nil {
		return err
	}
	return database.DumpSQLite(b.db, b.cfg.DumpPath)
}

// GetExportedFilePath returns the dump path.
func (b *Backend) GetExportedFilePath() string {
	return b.cfg.DumpPath
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via VACUUM INTO.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := b.Dump(); err != nil {
				b.deps.Logger.Error().Err(err).Msg("Error dumping to disk")
			} else {
				b.deps.Logger.Debug().Dur("took", time.Since(start)).Msg("Dumped to disk")
			}
		}
	}
}
