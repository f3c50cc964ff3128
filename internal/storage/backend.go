// Package storage opens the configured database backend and hands out the
// record stores built on it.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	postgresadapter "github.com/ericfisherdev/civicrecords/internal/adapter/driven/postgres"
	"github.com/ericfisherdev/civicrecords/internal/adapter/driven/recordmap"
	sqliteadapter "github.com/ericfisherdev/civicrecords/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/civicrecords/internal/config"
	"github.com/ericfisherdev/civicrecords/internal/domain/port/driven"
)

// Stores groups the record stores of one backend.
type Stores struct {
	Residents    driven.ResidentStore
	Credentials  driven.CredentialStore
	Transactions driven.TransactionStore
}

// Backend is an open SQLite or PostgreSQL database.
type Backend struct {
	driver string
	lite   *sqliteadapter.DB
	pg     *sql.DB
}

// Open connects to the database selected by cfg.DBDriver.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		db, err := sqliteadapter.NewDB(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return &Backend{driver: cfg.DBDriver, lite: db}, nil
	case config.DriverPostgres:
		db, err := postgresadapter.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &Backend{driver: cfg.DBDriver, pg: db}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}
}

// Driver names the backend.
func (b *Backend) Driver() string { return b.driver }

// Migrate applies pending schema migrations.
func (b *Backend) Migrate() error {
	if b.lite != nil {
		return sqliteadapter.RunMigrations(b.lite.Writer)
	}
	return postgresadapter.RunMigrations(b.pg)
}

// Version reports the applied schema version and whether it is dirty.
func (b *Backend) Version() (uint, bool, error) {
	if b.lite != nil {
		return sqliteadapter.MigrationVersion(b.lite.Writer)
	}
	return postgresadapter.MigrationVersion(b.pg)
}

// Ping checks the database connection.
func (b *Backend) Ping(ctx context.Context) error {
	if b.lite != nil {
		return b.lite.Ping(ctx)
	}
	return b.pg.PingContext(ctx)
}

// Close releases every connection.
func (b *Backend) Close() error {
	if b.lite != nil {
		return b.lite.Close()
	}
	return b.pg.Close()
}

// Stores builds the record stores. mapper seals and opens protected fields.
func (b *Backend) Stores(mapper *recordmap.Mapper) Stores {
	if b.lite != nil {
		return Stores{
			Residents:    sqliteadapter.NewResidentRepo(b.lite, mapper),
			Credentials:  sqliteadapter.NewCredentialRepo(b.lite),
			Transactions: sqliteadapter.NewTransactionRepo(b.lite, mapper),
		}
	}
	return Stores{
		Residents:    postgresadapter.NewResidentRepo(b.pg, mapper),
		Credentials:  postgresadapter.NewCredentialRepo(b.pg),
		Transactions: postgresadapter.NewTransactionRepo(b.pg, mapper),
	}
}
