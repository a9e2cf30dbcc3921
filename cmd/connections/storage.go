package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/goliatone/go-connections/datastore"
	"github.com/goliatone/go-connections/datastore/memory"
	connectionmigrations "github.com/goliatone/go-connections/migrations"
	mongostore "github.com/goliatone/go-connections/store/mongo"
	sqlstore "github.com/goliatone/go-connections/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	storageMemory   = "memory"
	storageSQLite   = "sqlite"
	storagePostgres = "postgres"
	storageMongo    = "mongo"

	defaultSQLiteDSN     = "file:connections.db?cache=shared&_foreign_keys=on"
	defaultMongoDatabase = "connections"
)

type persistenceConfig struct {
	driver string
	server string
}

func (c persistenceConfig) GetDebug() bool { return false }
func (c persistenceConfig) GetDriver() string { return c.driver }
func (c persistenceConfig) GetServer() string { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string { return "go-connections-cli" }

// openedStore pairs a datastore with the function that releases it.
type openedStore struct {
	store datastore.Datastore
	close func(context.Context) error
}

func openStorage(ctx context.Context, cfg settings) (openedStore, error) {
	switch strings.ToLower(cfg.Storage) {
	case storageMemory:
		return openedStore{store: memory.New(), close: func(context.Context) error { return nil }}, nil
	case storageSQLite, "sqlite3":
		return openSQL(ctx, "sqlite3", firstNonEmpty(cfg.DSN, defaultSQLiteDSN), sqlitedialect.New())
	case storagePostgres, "postgresql":
		if cfg.DSN == "" {
			return openedStore{}, fmt.Errorf("postgres storage requires --dsn")
		}
		return openSQL(ctx, "postgres", cfg.DSN, pgdialect.New())
	case storageMongo:
		if cfg.DSN == "" {
			return openedStore{}, fmt.Errorf("mongo storage requires --dsn")
		}
		store, err := mongostore.Connect(ctx, cfg.DSN, firstNonEmpty(cfg.Database, defaultMongoDatabase))
		if err != nil {
			return openedStore{}, err
		}
		return openedStore{store: store, close: store.Close}, nil
	default:
		return openedStore{}, fmt.Errorf("unsupported storage %q", cfg.Storage)
	}
}

// openSQL opens the database, applies the embedded migrations for its
// dialect and wraps it in the bun-backed datastore.
func openSQL(ctx context.Context, driver string, dsn string, dialect schema.Dialect) (openedStore, error) {
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return openedStore{}, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(persistenceConfig{driver: driver, server: dsn}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return openedStore{}, fmt.Errorf("persistence client: %w", err)
	}
	closeClient := func(context.Context) error { return client.Close() }

	if err := connectionmigrations.ForDialect(ctx, driver, func(fsys fs.FS) {
		client.RegisterSQLMigrations(fsys)
	}); err != nil {
		_ = client.Close()
		return openedStore{}, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return openedStore{}, fmt.Errorf("migrate: %w", err)
	}
	store, err := sqlstore.NewDatastoreFromPersistence(client)
	if err != nil {
		_ = client.Close()
		return openedStore{}, err
	}
	return openedStore{store: store, close: closeClient}, nil
}
