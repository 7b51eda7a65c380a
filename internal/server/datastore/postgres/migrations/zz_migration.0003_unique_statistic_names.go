package migrations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Statistic rows are replaced wholesale when a build is sealed or
// recomputed. The unique constraint makes a concurrent double-seal
// converge instead of accumulating duplicate rows.
const createStatisticUniqueConstraint = `ALTER TABLE statistics
    ADD CONSTRAINT uq_statistics_build_url_name UNIQUE (build_id, url, name);`

func init() {
	if err := DatabaseMigrations.Register("3_unique_statistic_names", "2_add_lookup_indices", func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, createStatisticUniqueConstraint)
		return err
	}); err != nil {
		panic(fmt.Sprintf("failed to register migration: %v", err))
	}
}
