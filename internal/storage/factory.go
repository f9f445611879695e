package storage

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/OCAP2/multicopter/internal/config"
	"github.com/OCAP2/multicopter/internal/geo"
	gormstorage "github.com/OCAP2/multicopter/internal/storage/gorm"
	"github.com/OCAP2/multicopter/internal/storage/memory"
	"github.com/OCAP2/multicopter/internal/storage/postgres"
	sqlitestorage "github.com/OCAP2/multicopter/internal/storage/sqlite"
)

// Options carries what every backend needs besides its own config section.
type Options struct {
	Origin        geo.Origin
	Version       string
	Logger        zerolog.Logger
	FlushInterval time.Duration
}

func (o Options) deps() gormstorage.Dependencies {
	return gormstorage.Dependencies{
		Origin:        o.Origin,
		Version:       o.Version,
		Logger:        o.Logger,
		FlushInterval: o.FlushInterval,
	}
}

// NewBackend creates a storage backend based on configuration
func NewBackend(cfg config.StorageConfig, opts Options) (Backend, error) {
	switch cfg.Type {
	case "postgres":
		b, err := postgres.New(cfg.Postgres, opts.deps())
		if err != nil {
			return nil, err
		}
		return b, nil
	case "sqlite":
		b, err := sqlitestorage.New(cfg.SQLite, opts.deps())
		if err != nil {
			return nil, err
		}
		return b, nil
	case "memory", "":
		return memory.New(cfg.Memory, opts.Origin), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
