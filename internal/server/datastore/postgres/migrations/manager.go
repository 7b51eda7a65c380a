package migrations

import (
	"github.com/jackc/pgx/v5"

	"github.com/treosh/lightci/pkg/migrate"
)

// DatabaseMigrations implements the migration registry for the Postgres
// datastore.
var DatabaseMigrations = migrate.NewManager[*AlembicPostgresDriver, pgx.Tx]()
