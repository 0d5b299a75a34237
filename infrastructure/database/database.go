// Package database provides the Postgres-backed entitlement rule store
// (C2) and its migrations, adapted from the teacher's Supabase-client
// package to a plain sqlx/lib/pq connection since this module has no
// Supabase dependency.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Config configures the Postgres connection.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 20
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	return c
}

// Client wraps a *sqlx.DB connected to Postgres.
type Client struct {
	DB *sqlx.DB
}

// NewClient opens a connection pool against cfg.DSN.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return &Client{DB: db}, nil
}

// Ping verifies connectivity to Postgres.
func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.DB.Close()
}
