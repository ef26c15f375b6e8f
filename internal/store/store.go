// Package store persists confirmed phone numbers and email addresses.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/opsbot/internal/domain"
)

// ErrUnknownKind is returned for kinds without a table.
var ErrUnknownKind = errors.New("no table for kind")

// ErrBusy marks failures caused by SQLite lock contention.
var ErrBusy = errors.New("database busy")

// Repository defines the persistence collaborator used by the bot.
type Repository interface {
	// Insert writes all values to the kind's table in one transaction.
	// Either every value is stored or none is.
	Insert(ctx context.Context, kind domain.Kind, values ...string) error

	// SelectAll returns every record of the kind's table in id order.
	SelectAll(ctx context.Context, kind domain.Kind) ([]domain.Record, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// Config selects and addresses the database.
type Config struct {
	// Driver is "sqlite" or "pgx".
	Driver string
	// Path is the SQLite database file.
	Path string

	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// Open connects to the configured database and creates missing tables.
func Open(ctx context.Context, cfg Config) (*SQLStore, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		return NewSQLite(ctx, cfg.Path)
	case DriverPgx:
		return NewPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

type table struct {
	name   string
	column string
}

var tables = map[domain.Kind]table{
	domain.KindPhone: {name: "phones", column: "phone_number"},
	domain.KindEmail: {name: "emails", column: "email"},
}

func tableFor(kind domain.Kind) (table, error) {
	t, ok := tables[kind]
	if !ok {
		return table{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return t, nil
}

// isSQLiteConflict reports SQLITE_BUSY and "database is locked" errors.
func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
