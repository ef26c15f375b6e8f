package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS phones (
		id SERIAL PRIMARY KEY,
		phone_number VARCHAR(100) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS emails (
		id SERIAL PRIMARY KEY,
		email VARCHAR(255) NOT NULL
	)`,
}

// NewPostgres connects to PostgreSQL through the pgx database/sql driver.
// Unset fields fall back to the standard PG* environment variables.
func NewPostgres(ctx context.Context, cfg Config) (*SQLStore, error) {
	connCfg, err := pgx.ParseConfig("")
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.Host != "" {
		connCfg.Host = cfg.Host
		connCfg.Fallbacks = nil
	}
	if cfg.Port != 0 {
		connCfg.Port = uint16(cfg.Port)
	}
	if cfg.User != "" {
		connCfg.User = cfg.User
	}
	if cfg.Password != "" {
		connCfg.Password = cfg.Password
	}
	if cfg.Database != "" {
		connCfg.Database = cfg.Database
	}

	db := stdlib.OpenDB(*connCfg)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	return newSQLStore(ctx, db, DriverPgx, postgresSchema)
}
