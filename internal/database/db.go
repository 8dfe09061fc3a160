// Package database wraps the MySQL/MariaDB connection pool the ingest
// core runs against: the raw event buffer (C2) and every projection
// repository (C3) share this pool, and the worker's per-tick
// transaction (C5) is opened through it.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/wpphooks/ingestcore/internal/telemetry"
)

// DB wraps *sql.DB with the helpers the core depends on.
type DB struct {
	*sql.DB
}

// Config is the field-wise connection configuration; callers that
// start from a URL use internal/config to produce one of these.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	Params   string // extra DSN params, e.g. "parseTime=true&loc=UTC"
}

// DSN builds a go-sql-driver/mysql data source name.
func (c Config) DSN() string {
	params := c.Params
	if params == "" {
		params = "parseTime=true&loc=UTC"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?%s", c.User, c.Password, c.Host, c.Port, c.DBName, params)
}

// NewConnection opens an OpenTelemetry-instrumented MySQL connection
// pool and verifies it with a ping.
func NewConnection(config Config) (*DB, error) {
	ctx := telemetry.WithCorrelationID(context.Background(), telemetry.NewCorrelationID())
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"host":      config.Host,
		"port":      config.Port,
		"database":  config.DBName,
		"operation": "database_connection",
	})

	logger.Info("Establishing database connection")

	db, err := otelsql.Open("mysql", config.DSN(),
		otelsql.WithAttributes(
			semconv.DBSystemMySQL,
			semconv.DBName(config.DBName),
			semconv.NetPeerName(config.Host),
		),
	)
	if err != nil {
		logger.WithError(err).Error("Failed to open database connection")
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		logger.WithError(err).Error("Failed to ping database")
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := otelsql.RegisterDBStatsMetrics(db,
		otelsql.WithAttributes(semconv.DBSystemMySQL, semconv.DBName(config.DBName)),
	); err != nil {
		logger.WithError(err).Warn("Failed to register database stats")
	}

	logger.Info("Database connection established successfully")
	return &DB{db}, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// Health pings the pool. The /health route does not call it; that
// probe answers "ok" without touching the database.
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}

// WithTransaction runs fn inside a transaction, committing on success
// and rolling back on error or panic (re-panicking after rollback).
func (db *DB) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	logger := telemetry.GetContextualLogger(ctx).WithField("operation", "database_transaction")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		logger.WithError(err).Error("Failed to begin transaction")
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			logger.WithField("panic", p).Error("Transaction panicked, rolling back")
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.WithError(rbErr).Warn("Rollback failed after transaction error")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		logger.WithError(err).Error("Failed to commit transaction")
		return err
	}
	return nil
}
