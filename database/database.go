// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/openlatch/doorman/database/archive"
	"github.com/openlatch/doorman/database/models"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// Config holds the database configuration
type Config struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	DataDir      string
}

// Database is the durable store for commands, event logs, fingerprints,
// webhooks, and users, plus a badger-backed archive of raw inbound
// messages. Relational access goes through GORM over SQLite.
type Database struct {
	db           *gorm.DB
	archive      *archive.Store
	logger       *slog.Logger
	promRegistry prometheus.Registerer
	dataDir      string
}

// New creates a database. Uses in-memory storage if dataDir is empty.
func New(cfg *Config) (*Database, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	var metadataDb *gorm.DB
	var err error
	if cfg.DataDir == "" {
		// Use in-memory database when no data directory is specified, useful for testing
		// cache=shared allows multiple connections to share the same in-memory database
		metadataDb, err = gorm.Open(
			sqlite.Open("file::memory:?cache=shared"),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
				TranslateError:         true,
			},
		)
		if err != nil {
			return nil, err
		}
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(cfg.DataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(cfg.DataDir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		metadataDbPath := filepath.Join(cfg.DataDir, "doorman.sqlite")
		// WAL journal mode, disable sync on write, increase cache size to 50MB (from 2MB)
		connOpts := "_pragma=journal_mode(WAL)&_pragma=sync(OFF)&_pragma=cache_size(-50000)"
		metadataDb, err = gorm.Open(
			sqlite.Open(
				fmt.Sprintf("file:%s?%s", metadataDbPath, connOpts),
			),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
				TranslateError:         true,
			},
		)
		if err != nil {
			return nil, err
		}
	}
	d := &Database{
		db:           metadataDb,
		dataDir:      cfg.DataDir,
		logger:       logger,
		promRegistry: cfg.PromRegistry,
	}
	// Configure tracing for GORM
	if err := d.db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	// Create table schemas
	for _, model := range models.MigrateModels {
		d.logger.Debug(fmt.Sprintf("creating table: %#v", model))
		if err := d.db.AutoMigrate(model); err != nil {
			return nil, err
		}
	}
	// Open raw message archive
	archiveStore, err := archive.New(cfg.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	d.archive = archiveStore
	return d, nil
}

// DB returns the underlying GORM database handle
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Archive returns the raw message archive
func (d *Database) Archive() *archive.Store {
	return d.archive
}

// Transaction begins a new database transaction
func (d *Database) Transaction() *gorm.DB {
	return d.db.Begin()
}

// Close shuts down the database and archive
func (d *Database) Close() error {
	var errs []error
	if d.archive != nil {
		if err := d.archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("archive close: %w", err))
		}
	}
	sqlDb, err := d.db.DB()
	if err != nil {
		errs = append(errs, fmt.Errorf("get database handle: %w", err))
	} else if err := sqlDb.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// txnOrDb returns the provided transaction handle, falling back to the
// shared handle when no transaction is in progress
func (d *Database) txnOrDb(txn *gorm.DB) *gorm.DB {
	if txn != nil {
		return txn
	}
	return d.db
}
