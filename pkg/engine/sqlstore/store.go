// Package sqlstore implements the engine's configuration store over its own
// database through database/sql.
//
// The registry keeps every configuration snapshot ever written, compressed
// with zstd, plus a single-row table naming the active snapshot. Driver and
// DSN are derived from the canonical database URL components; sqlite3,
// postgresql, and mysql are supported. db2 and mssql deployments manage the
// registry through the engine itself and have no driver here.
package sqlstore

import (
	"context"
	"database/sql"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/matchforge/configurator/pkg/dburl"
	"github.com/matchforge/configurator/pkg/errors"
	"github.com/matchforge/configurator/pkg/logger"
)

// Store is a ConfigStore backed by the engine database.
type Store struct {
	db      *sql.DB
	dialect dialect
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// dialect carries the per-driver SQL variations.
type dialect struct {
	driver         string
	numbered       bool // rewrite ? placeholders to $1..$n
	createRegistry string
	createDefault  string
	upsertDefault  string
}

var dialects = map[string]dialect{
	dburl.SchemeSQLite3: {
		driver: "sqlite3",
		createRegistry: `CREATE TABLE IF NOT EXISTS mf_config_registry (
			config_id  INTEGER PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			comments   TEXT NOT NULL,
			document   BLOB NOT NULL
		)`,
		createDefault: `CREATE TABLE IF NOT EXISTS mf_config_default (
			id        INTEGER PRIMARY KEY CHECK (id = 1),
			config_id INTEGER NOT NULL
		)`,
		upsertDefault: `INSERT INTO mf_config_default (id, config_id) VALUES (1, ?)
			ON CONFLICT (id) DO UPDATE SET config_id = excluded.config_id`,
	},
	dburl.SchemePostgreSQL: {
		driver:   "pgx",
		numbered: true,
		createRegistry: `CREATE TABLE IF NOT EXISTS mf_config_registry (
			config_id  BIGINT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			comments   TEXT NOT NULL,
			document   BYTEA NOT NULL
		)`,
		createDefault: `CREATE TABLE IF NOT EXISTS mf_config_default (
			id        INTEGER PRIMARY KEY CHECK (id = 1),
			config_id BIGINT NOT NULL
		)`,
		upsertDefault: `INSERT INTO mf_config_default (id, config_id) VALUES (1, ?)
			ON CONFLICT (id) DO UPDATE SET config_id = excluded.config_id`,
	},
	dburl.SchemeMySQL: {
		driver: "mysql",
		createRegistry: `CREATE TABLE IF NOT EXISTS mf_config_registry (
			config_id  BIGINT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			comments   TEXT NOT NULL,
			document   LONGBLOB NOT NULL
		)`,
		createDefault: `CREATE TABLE IF NOT EXISTS mf_config_default (
			id        INT PRIMARY KEY,
			config_id BIGINT NOT NULL
		)`,
		upsertDefault: `INSERT INTO mf_config_default (id, config_id) VALUES (1, ?)
			ON DUPLICATE KEY UPDATE config_id = VALUES(config_id)`,
	},
}

// Open connects to the engine database described by the URL components,
// applies the registry schema, and returns the store. Opening is idempotent;
// existing tables and rows are kept.
func Open(ctx context.Context, c *dburl.Components) (*Store, error) {
	d, ok := dialects[c.Scheme]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeCapability,
			"no configuration registry driver for database scheme %q", c.Scheme)
	}

	dsn, err := buildDSN(d.driver, c)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "cannot open engine database")
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "cannot connect to engine database")
	}

	if d.driver == "sqlite3" {
		// Single writer avoids SQLITE_BUSY under the commit mutex.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applySQLitePragmas(db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if err := applySchema(ctx, db, d); err != nil {
		_ = db.Close()
		return nil, err
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "cannot create document compressor")
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "cannot create document decompressor")
	}

	logger.Info("configuration store opened",
		zap.String("driver", d.driver),
		zap.String("schema", c.Schema))

	return &Store{db: db, dialect: d, encoder: encoder, decoder: decoder}, nil
}

// Close releases the database handle and the compressor state.
func (s *Store) Close() error {
	s.decoder.Close()
	if err := s.encoder.Close(); err != nil {
		_ = s.db.Close()
		return err
	}
	return s.db.Close()
}

// buildDSN renders the driver-native connection string from the canonical
// URL components.
func buildDSN(driver string, c *dburl.Components) (string, error) {
	switch driver {
	case "sqlite3":
		if c.Path == "" {
			return "", errors.New(errors.ErrorTypeConfig, "sqlite database URL carries no file path")
		}
		return c.Path, nil

	case "pgx":
		host := c.Hostname
		if c.Port != "" {
			host = net.JoinHostPort(c.Hostname, c.Port)
		}
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(c.Username, c.Password),
			Host:   host,
			Path:   "/" + c.Schema,
		}
		return u.String(), nil

	case "mysql":
		cfg := mysql.NewConfig()
		cfg.User = c.Username
		cfg.Passwd = c.Password
		cfg.Net = "tcp"
		cfg.Addr = c.Hostname
		if c.Port != "" {
			cfg.Addr = net.JoinHostPort(c.Hostname, c.Port)
		}
		cfg.DBName = c.Schema
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	}

	return "", errors.Newf(errors.ErrorTypeInternal, "no DSN builder for driver %q", driver)
}

// applySQLitePragmas sets the SQLite configuration: WAL for concurrent
// reads, NORMAL sync, a busy timeout for lock contention, and foreign keys.
func applySQLitePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConnection, "cannot apply sqlite pragma").
				WithDetail("pragma", pragma)
		}
	}
	return nil
}

// applySchema creates the registry tables if they do not exist.
func applySchema(ctx context.Context, db *sql.DB, d dialect) error {
	for _, ddl := range []string{d.createRegistry, d.createDefault} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConnection, "cannot apply registry schema")
		}
	}
	return nil
}

// q rewrites ? placeholders to numbered ones when the driver requires it.
func (s *Store) q(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
