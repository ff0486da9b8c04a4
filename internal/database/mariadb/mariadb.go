// Package mariadb implements database.Repository on MariaDB / MySQL.
// Descriptors are stored as JSON arrays since the server has no vector type.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/database"
)

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool. The DSN is forced to parse
// DATE and DATETIME columns into time.Time in UTC.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	dsn, err := mysql.ParseDSN(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse MariaDB DSN: %w", err)
	}
	dsn.ParseTime = true
	dsn.Loc = time.UTC

	connector, err := mysql.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}
	db := sql.OpenDB(connector)

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to ping MariaDB: %w", database.ErrUnavailable, err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// schema is applied in order by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS subjects (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		created_at DATETIME(6) NOT NULL
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS subject_descriptors (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		subject_id BIGINT NOT NULL,
		descriptor JSON NOT NULL,
		dim INT NOT NULL,
		CONSTRAINT fk_descriptor_subject FOREIGN KEY (subject_id) REFERENCES subjects(id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS observations (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		subject_id BIGINT NOT NULL,
		location VARCHAR(255) NOT NULL DEFAULT '',
		date_context VARCHAR(255) NOT NULL DEFAULT '',
		start_date DATE NULL,
		end_date DATE NULL,
		submitted_at DATETIME(6) NOT NULL,
		note TEXT NOT NULL,
		image_ref VARCHAR(512) NOT NULL DEFAULT '',
		submitter VARCHAR(255) NOT NULL,
		CONSTRAINT fk_observation_subject FOREIGN KEY (subject_id) REFERENCES subjects(id),
		INDEX idx_observations_subject (subject_id, id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS watchers (
		watcher VARCHAR(255) NOT NULL,
		subject_id BIGINT NOT NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		PRIMARY KEY (watcher, subject_id),
		CONSTRAINT fk_watcher_subject FOREIGN KEY (subject_id) REFERENCES subjects(id),
		INDEX idx_watchers_subject (subject_id)
	) ENGINE=InnoDB`,
}

// Migrate creates the schema if it does not exist yet.
func (p *Pool) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

// Open connects to MariaDB, ensures the schema and returns a ready repository.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*Repository, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Migrate(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to migrate MariaDB: %w", err)
	}
	return NewRepository(pool), nil
}
