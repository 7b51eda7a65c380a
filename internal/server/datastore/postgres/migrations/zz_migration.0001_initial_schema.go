package migrations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const (
	createVersionTable = `CREATE TABLE lightci_schema_version (
    version_num VARCHAR NOT NULL
);`

	insertEmptyVersion = `INSERT INTO lightci_schema_version (version_num) VALUES ('');`

	createProjects = `CREATE TABLE projects (
    id VARCHAR NOT NULL,
    name VARCHAR NOT NULL,
    slug VARCHAR NOT NULL,
    external_url VARCHAR NOT NULL DEFAULT '',
    base_branch VARCHAR NOT NULL DEFAULT 'main',
    build_token VARCHAR NOT NULL,
    admin_token VARCHAR NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT pk_projects PRIMARY KEY (id),
    CONSTRAINT uq_projects_build_token UNIQUE (build_token),
    CONSTRAINT uq_projects_slug UNIQUE (slug)
);`

	createBuilds = `CREATE TABLE builds (
    id VARCHAR NOT NULL,
    project_id VARCHAR NOT NULL,
    branch VARCHAR NOT NULL,
    hash VARCHAR NOT NULL,
    commit_message VARCHAR NOT NULL DEFAULT '',
    author VARCHAR NOT NULL DEFAULT '',
    avatar_url VARCHAR NOT NULL DEFAULT '',
    ancestor_hash VARCHAR NOT NULL DEFAULT '',
    external_build_url VARCHAR NOT NULL DEFAULT '',
    lifecycle_state VARCHAR NOT NULL DEFAULT 'unsealed',
    run_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT pk_builds PRIMARY KEY (id),
    CONSTRAINT fk_builds_project FOREIGN KEY (project_id)
        REFERENCES projects (id) ON DELETE CASCADE
);`

	createRuns = `CREATE TABLE runs (
    id VARCHAR NOT NULL,
    project_id VARCHAR NOT NULL,
    build_id VARCHAR NOT NULL,
    url VARCHAR NOT NULL,
    representative BOOLEAN NOT NULL DEFAULT FALSE,
    lhr JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT pk_runs PRIMARY KEY (id),
    CONSTRAINT fk_runs_build FOREIGN KEY (build_id)
        REFERENCES builds (id) ON DELETE CASCADE
);`

	createStatistics = `CREATE TABLE statistics (
    id VARCHAR NOT NULL,
    project_id VARCHAR NOT NULL,
    build_id VARCHAR NOT NULL,
    url VARCHAR NOT NULL,
    name VARCHAR NOT NULL,
    value DOUBLE PRECISION NOT NULL,
    CONSTRAINT pk_statistics PRIMARY KEY (id),
    CONSTRAINT fk_statistics_build FOREIGN KEY (build_id)
        REFERENCES builds (id) ON DELETE CASCADE
);`
)

func init() {
	if err := DatabaseMigrations.Register("1_initial_schema", "", func(ctx context.Context, tx pgx.Tx) error {
		statements := []string{
			createVersionTable,
			insertEmptyVersion,
			createProjects,
			createBuilds,
			createRuns,
			createStatistics,
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
