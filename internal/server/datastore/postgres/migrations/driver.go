package migrations

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	pgxcommon "github.com/treosh/lightci/internal/server/datastore/postgres/common"
	"github.com/treosh/lightci/pkg/migrate"
)

const (
	errUnableToInstantiate = "unable to instantiate AlembicPostgresDriver: %w"

	postgresMissingTableErrorCode = "42P01"

	queryLoadVersion  = "SELECT version_num FROM lightci_schema_version"
	queryWriteVersion = "UPDATE lightci_schema_version SET version_num=$1 WHERE version_num=$2"
)

// AlembicPostgresDriver runs migrations against Postgres, tracking the
// current revision in a single-row version table the way Alembic does.
// The node server kept its knex migration state in the same shape, so
// deployments migrated from it can be adopted in place.
type AlembicPostgresDriver struct {
	db *pgx.Conn
}

// NewAlembicPostgresDriver creates a driver from a Postgres connection URI.
func NewAlembicPostgresDriver(ctx context.Context, url string) (*AlembicPostgresDriver, error) {
	connConfig, err := pgx.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf(errUnableToInstantiate, err)
	}

	pgxcommon.ConfigureLogger(connConfig)
	pgxcommon.ConfigureTracer(connConfig)

	db, err := pgx.ConnectConfig(ctx, connConfig)
	if err != nil {
		return nil, fmt.Errorf(errUnableToInstantiate, err)
	}

	return &AlembicPostgresDriver{db}, nil
}

func (apd *AlembicPostgresDriver) Transact(ctx context.Context, f migrate.MigrationFunc[pgx.Tx]) error {
	return pgx.BeginFunc(ctx, apd.db, func(tx pgx.Tx) error {
		return f(ctx, tx)
	})
}

// Version returns the revision of the schema to which the database has
// been migrated, or the empty string for a never-migrated database.
func (apd *AlembicPostgresDriver) Version(ctx context.Context) (string, error) {
	var loaded string

	if err := apd.db.QueryRow(ctx, queryLoadVersion).Scan(&loaded); err != nil {
		var pgerr *pgconn.PgError
		if errors.As(err, &pgerr) && pgerr.Code == postgresMissingTableErrorCode {
			return "", nil
		}
		return "", fmt.Errorf("unable to load migration version: %w", err)
	}

	return loaded, nil
}

// WriteVersion overwrites the value stored to track the version of the
// database schema.
func (apd *AlembicPostgresDriver) WriteVersion(ctx context.Context, tx pgx.Tx, version, replaced string) error {
	result, err := tx.Exec(ctx, queryWriteVersion, version, replaced)
	if err != nil {
		return fmt.Errorf("unable to update version row: %w", err)
	}

	if result.RowsAffected() != 1 {
		return fmt.Errorf(
			"writing version update affected %d rows, should be 1",
			result.RowsAffected(),
		)
	}

	return nil
}

// Close disposes the driver.
func (apd *AlembicPostgresDriver) Close(ctx context.Context) error {
	return apd.db.Close(ctx)
}

var _ migrate.Driver[pgx.Tx] = &AlembicPostgresDriver{}
