package migrations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const (
	// Build listings are always scoped to a project, usually to a branch,
	// and ordered by recency; ancestor lookups walk the same path.
	createBuildProjectBranchIndex = `CREATE INDEX ix_builds_project_branch_run_at
    ON builds (project_id, branch, run_at DESC);`

	// Runs are fetched per build and filtered by page URL.
	createRunBuildURLIndex = `CREATE INDEX ix_runs_build_url
    ON runs (build_id, url);`

	createStatisticBuildIndex = `CREATE INDEX ix_statistics_build
    ON statistics (build_id);`
)

func init() {
	if err := DatabaseMigrations.Register("2_add_lookup_indices", "1_initial_schema", func(ctx context.Context, tx pgx.Tx) error {
		statements := []string{
			createBuildProjectBranchIndex,
			createRunBuildURLIndex,
			createStatisticBuildIndex,
		}
		for _, stmt := range statements {
			_, err := tx.Exec(ctx, stmt)
			if err != nil {
				return err
			}
		}

		return nil
	}); err != nil {
		panic(fmt.Sprintf("failed to register migration: %v", err))
	}
}
