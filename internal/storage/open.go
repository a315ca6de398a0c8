package storage

import (
	"context"
	"fmt"

	"github.com/catuchi/LawMadeSimple-sub002/internal/config"
)

// Migrator is implemented by stores that can create their schema.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// Pinger is implemented by stores that can check their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Open returns the store selected by cfg.Driver. dimensions sizes the Postgres vector columns.
func Open(cfg config.DatabaseConfig, dimensions int) (Store, error) {
	switch cfg.Driver {
	case "postgres", "postgresql":
		s, err := NewPostgresStore(cfg.DSN, dimensions, WithQueryDebug(cfg.Debug))
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite", "sqlite3":
		s, err := NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// Migrate creates the schema of s when it supports migrations.
func Migrate(ctx context.Context, s Store) error {
	m, ok := s.(Migrator)
	if !ok {
		return nil
	}
	return m.Migrate(ctx)
}

// Ping checks the connection of s when it supports it.
func Ping(ctx context.Context, s Store) error {
	p, ok := s.(Pinger)
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}
