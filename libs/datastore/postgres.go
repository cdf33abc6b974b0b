package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"

	// needed for magic migration
	_ "github.com/golang-migrate/migrate/v4/source/file"
	// register postgres driver
	_ "github.com/lib/pq"

	appctx "github.com/everwish/everwish/libs/context"
	"github.com/everwish/everwish/libs/logging"
)

var (
	dbs = map[string]*sqlx.DB{}

	// CurrentMigrationVersion holds the default migration version
	CurrentMigrationVersion = uint(2)
)

// Datastore holds generic methods
type Datastore interface {
	RawDB() *sqlx.DB
	NewMigrate() (*migrate.Migrate, error)
	Migrate(...uint) error
	RollbackTx(tx *sqlx.Tx)
	BeginTx() (*sqlx.Tx, error)
}

// Postgres is a Datastore wrapper around a postgres database
type Postgres struct {
	*sqlx.DB
}

// RawDB - get the raw db
func (pg *Postgres) RawDB() *sqlx.DB {
	return pg.DB
}

// NewMigrate creates a Migrate instance given a Postgres instance with an active database connection
func (pg *Postgres) NewMigrate() (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(pg.RawDB().DB, &postgres.Config{})
	if err != nil {
		return nil, err
	}

	dbMigrationsURL := os.Getenv("DATABASE_MIGRATIONS_URL")
	m, err := migrate.NewWithDatabaseInstance(
		dbMigrationsURL,
		"postgres",
		driver,
	)
	if err != nil {
		return nil, err
	}

	return m, err
}

// Migrate the Postgres instance
func (pg *Postgres) Migrate(currentMigrationVersions ...uint) error {
	ctx := context.WithValue(context.Background(), appctx.EnvironmentCTXKey, os.Getenv("ENV"))
	_, logger := logging.SetupLogger(ctx)

	logger.Info().Msg("attempting database migration")

	m, err := pg.NewMigrate()
	if err != nil {
		logger.Error().Err(err).Msg("failed to create a new migration")
		return err
	}

	activeMigrationVersion, dirty, err := m.Version()

	currentMigrationVersion := CurrentMigrationVersion
	if len(currentMigrationVersions) > 0 {
		currentMigrationVersion = currentMigrationVersions[0]
	}

	subLogger := logger.With().
		Bool("dirty", dirty).
		Int("db_version", int(activeMigrationVersion)).
		Uint("code_version", currentMigrationVersion).
		Logger()

	subLogger.Info().Msg("database status")

	if !errors.Is(err, migrate.ErrNilVersion) && err != nil {
		subLogger.Error().Err(err).Msg("failed to get migration version")
		sentry.CaptureMessage(err.Error())
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	// Don't attempt the migration if our currentMigrationVersion is less than
	// the active db version or if the migration is in dirty state
	if currentMigrationVersion < activeMigrationVersion || dirty {
		subLogger.Error().Msg("migration not attempted")
		sentry.CaptureMessage(
			fmt.Sprintf("migration not attempted, dirty: %t; code version: %d; db version: %d",
				dirty, currentMigrationVersion, activeMigrationVersion))
		return nil
	}

	err = m.Migrate(currentMigrationVersion)
	if err != migrate.ErrNoChange && err != nil {
		subLogger.Error().Err(err).Msg("migration failed")
		return err
	}

	return nil
}

// NewPostgres creates a new Postgres Datastore
func NewPostgres(databaseURL string, performMigration bool) (*Postgres, error) {
	if len(databaseURL) == 0 {
		databaseURL = os.Getenv("DATABASE_URL")
	}

	if dbs[databaseURL] != nil {
		return &Postgres{dbs[databaseURL]}, nil
	}

	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	dbs[databaseURL] = db

	// if we have a connection longer than 5 minutes, kill it
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(80)
	// 50% of max open
	db.SetMaxIdleConns(40)

	pg := &Postgres{db}

	if performMigration {
		if err := pg.Migrate(); err != nil {
			return nil, err
		}
	}

	return pg, nil
}

// RollbackTx rolls back a transaction, logging any error to sentry
func (pg *Postgres) RollbackTx(tx *sqlx.Tx) {
	err := tx.Rollback()
	if err != nil && err != sql.ErrTxDone {
		sentry.CaptureMessage(err.Error())
	}
}

// BeginTx starts a transaction
func (pg *Postgres) BeginTx() (*sqlx.Tx, error) {
	return pg.RawDB().Beginx()
}
