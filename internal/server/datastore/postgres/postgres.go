// Package postgres implements the report server datastore on PostgreSQL,
// the engine for durable deployments. Schema management lives in the
// migrations subpackage and is driven by the migrate command.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/pgxpoolprometheus"
	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/treosh/lightci/internal/server/datastore"
	"github.com/treosh/lightci/internal/server/datastore/postgres/migrations"
)

// Engine is the name this datastore registers under.
const Engine = "postgres"

func init() {
	datastore.Engines = append(datastore.Engines, Engine)
}

const (
	tableProjects   = "projects"
	tableBuilds     = "builds"
	tableRuns       = "runs"
	tableStatistics = "statistics"

	errUnableToInstantiate = "unable to instantiate postgres datastore: %w"

	pgMissingTableErrorCode = "42P01"

	queryLoadVersion = "SELECT version_num FROM lightci_schema_version"

	queryStats = `SELECT
    (SELECT count(*) FROM projects),
    (SELECT count(*) FROM builds),
    (SELECT count(*) FROM runs)`
)

var (
	psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	projectColumns = []string{
		"id", "name", "slug", "external_url", "base_branch",
		"build_token", "admin_token", "created_at",
	}
	buildColumns = []string{
		"id", "project_id", "branch", "hash", "commit_message", "author",
		"avatar_url", "ancestor_hash", "external_build_url",
		"lifecycle_state", "run_at",
	}
	runColumns = []string{
		"id", "project_id", "build_id", "url", "representative", "lhr",
		"created_at",
	}
	statisticColumns = []string{
		"id", "project_id", "build_id", "url", "name", "value",
	}
)

type pgDatastore struct {
	pool *pgxpool.Pool
}

// NewDatastore connects to the database at the given URI and returns a
// datastore backed by it. The schema must already be migrated; ReadyState
// reports whether it is.
func NewDatastore(ctx context.Context, url string, options ...Option) (datastore.Datastore, error) {
	config := generateConfig(options)

	pgxConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf(errUnableToInstantiate, err)
	}
	if err := config.poolOptions().ConfigurePgx(pgxConfig); err != nil {
		return nil, fmt.Errorf(errUnableToInstantiate, err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxConfig)
	if err != nil {
		return nil, fmt.Errorf(errUnableToInstantiate, err)
	}

	if config.enablePrometheusStats {
		collector := pgxpoolprometheus.NewCollector(pool, map[string]string{"db_name": "lightci"})
		if err := prometheus.Register(collector); err != nil {
			pool.Close()
			return nil, fmt.Errorf(errUnableToInstantiate, err)
		}
	}

	return &pgDatastore{pool: pool}, nil
}

// replaceNotFound maps pgx's no-rows sentinel onto the datastore's.
func replaceNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return datastore.ErrNotFound
	}
	return err
}

func (pgd *pgDatastore) CreateProject(ctx context.Context, project *datastore.Project) error {
	sql, args, err := psql.Insert(tableProjects).
		Columns(projectColumns...).
		Values(
			project.ID, project.Name, project.Slug, project.ExternalURL,
			project.BaseBranch, project.BuildToken, project.AdminToken,
			project.CreatedAt,
		).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := pgd.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("unable to store project: %w", err)
	}
	return nil
}

func (pgd *pgDatastore) ListProjects(ctx context.Context) ([]*datastore.Project, error) {
	sql, args, err := psql.Select(projectColumns...).
		From(tableProjects).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := pgd.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*datastore.Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

func (pgd *pgDatastore) GetProject(ctx context.Context, projectID string) (*datastore.Project, error) {
	return pgd.queryProject(ctx, sq.Eq{"id": projectID})
}

func (pgd *pgDatastore) GetProjectByToken(ctx context.Context, buildToken string) (*datastore.Project, error) {
	return pgd.queryProject(ctx, sq.Eq{"build_token": buildToken})
}

func (pgd *pgDatastore) queryProject(ctx context.Context, where sq.Eq) (*datastore.Project, error) {
	sql, args, err := psql.Select(projectColumns...).
		From(tableProjects).
		Where(where).
		ToSql()
	if err != nil {
		return nil, err
	}

	project, err := scanProject(pgd.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, replaceNotFound(err)
	}
	return project, nil
}

func (pgd *pgDatastore) CreateBuild(ctx context.Context, build *datastore.Build) error {
	sql, args, err := psql.Insert(tableBuilds).
		Columns(buildColumns...).
		Values(
			build.ID, build.ProjectID, build.Branch, build.Hash,
			build.CommitMessage, build.Author, build.AvatarURL,
			build.AncestorHash, build.ExternalBuildURL,
			build.LifecycleState, build.RunAt,
		).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := pgd.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("unable to store build: %w", replaceMissingParent(err))
	}
	return nil
}

func (pgd *pgDatastore) ListBuilds(ctx context.Context, projectID string, filter datastore.BuildFilter) ([]*datastore.Build, error) {
	query := psql.Select(buildColumns...).
		From(tableBuilds).
		Where(sq.Eq{"project_id": projectID}).
		OrderBy("run_at DESC")
	if filter.Branch != "" {
		query = query.Where(sq.Eq{"branch": filter.Branch})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := pgd.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var builds []*datastore.Build
	for rows.Next() {
		build, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, build)
	}
	return builds, rows.Err()
}

func (pgd *pgDatastore) GetBuild(ctx context.Context, projectID, buildID string) (*datastore.Build, error) {
	return pgd.queryBuild(ctx, psql.Select(buildColumns...).
		From(tableBuilds).
		Where(sq.Eq{"id": buildID, "project_id": projectID}))
}

func (pgd *pgDatastore) queryBuild(ctx context.Context, query sq.SelectBuilder) (*datastore.Build, error) {
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	build, err := scanBuild(pgd.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, replaceNotFound(err)
	}
	return build, nil
}

func (pgd *pgDatastore) FindAncestorBuild(ctx context.Context, projectID, buildID string) (*datastore.Build, error) {
	build, err := pgd.GetBuild(ctx, projectID, buildID)
	if err != nil {
		return nil, err
	}
	project, err := pgd.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	baseBuilds := sq.Eq{"project_id": projectID, "branch": project.BaseBranch}
	if build.AncestorHash != "" {
		ancestor, err := pgd.queryBuild(ctx, psql.Select(buildColumns...).
			From(tableBuilds).
			Where(baseBuilds).
			Where(sq.Eq{"hash": build.AncestorHash}).
			OrderBy("run_at DESC").
			Limit(1))
		if err == nil {
			return ancestor, nil
		}
		if !errors.Is(err, datastore.ErrNotFound) {
			return nil, err
		}
	}

	// No recorded ancestor: fall back to the nearest base-branch build
	// that is not newer than this one.
	return pgd.queryBuild(ctx, psql.Select(buildColumns...).
		From(tableBuilds).
		Where(baseBuilds).
		Where(sq.NotEq{"id": build.ID}).
		Where(sq.LtOrEq{"run_at": build.RunAt}).
		OrderBy("run_at DESC").
		Limit(1))
}

func (pgd *pgDatastore) UpdateBuildLifecycle(ctx context.Context, projectID, buildID, state string) error {
	sql, args, err := psql.Update(tableBuilds).
		Set("lifecycle_state", state).
		Where(sq.Eq{"id": buildID, "project_id": projectID}).
		ToSql()
	if err != nil {
		return err
	}

	tag, err := pgd.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("unable to update build: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return datastore.ErrNotFound
	}
	return nil
}

func (pgd *pgDatastore) DeleteBuild(ctx context.Context, projectID, buildID string) error {
	sql, args, err := psql.Delete(tableBuilds).
		Where(sq.Eq{"id": buildID, "project_id": projectID}).
		ToSql()
	if err != nil {
		return err
	}

	// Runs and statistics go with the build through ON DELETE CASCADE.
	tag, err := pgd.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("unable to delete build: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return datastore.ErrNotFound
	}
	return nil
}

func (pgd *pgDatastore) CreateRun(ctx context.Context, run *datastore.Run) error {
	// The lifecycle check and the insert share a transaction so a seal
	// racing an upload cannot slip a run into a sealed build.
	return pgx.BeginFunc(ctx, pgd.pool, func(tx pgx.Tx) error {
		stateSQL, stateArgs, err := psql.Select("lifecycle_state").
			From(tableBuilds).
			Where(sq.Eq{"id": run.BuildID, "project_id": run.ProjectID}).
			Suffix("FOR UPDATE").
			ToSql()
		if err != nil {
			return err
		}

		var state string
		if err := tx.QueryRow(ctx, stateSQL, stateArgs...).Scan(&state); err != nil {
			return replaceNotFound(err)
		}
		if state == datastore.LifecycleSealed {
			return datastore.ErrSealed
		}

		sql, args, err := psql.Insert(tableRuns).
			Columns(runColumns...).
			Values(
				run.ID, run.ProjectID, run.BuildID, run.URL,
				run.Representative, run.LHR, run.CreatedAt,
			).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("unable to store run: %w", err)
		}
		return nil
	})
}

func (pgd *pgDatastore) ListRuns(ctx context.Context, projectID, buildID string, filter datastore.RunFilter) ([]*datastore.Run, error) {
	if _, err := pgd.GetBuild(ctx, projectID, buildID); err != nil {
		return nil, err
	}

	query := psql.Select(runColumns...).
		From(tableRuns).
		Where(sq.Eq{"build_id": buildID}).
		OrderBy("created_at DESC")
	if filter.URL != "" {
		query = query.Where(sq.Eq{"url": filter.URL})
	}
	if filter.Representative != nil {
		query = query.Where(sq.Eq{"representative": *filter.Representative})
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := pgd.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*datastore.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (pgd *pgDatastore) SetRunRepresentative(ctx context.Context, runID string, representative bool) error {
	sql, args, err := psql.Update(tableRuns).
		Set("representative", representative).
		Where(sq.Eq{"id": runID}).
		ToSql()
	if err != nil {
		return err
	}

	tag, err := pgd.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("unable to update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return datastore.ErrNotFound
	}
	return nil
}

func (pgd *pgDatastore) ReplaceStatistics(ctx context.Context, buildID string, stats []*datastore.Statistic) error {
	return pgx.BeginFunc(ctx, pgd.pool, func(tx pgx.Tx) error {
		deleteSQL, deleteArgs, err := psql.Delete(tableStatistics).
			Where(sq.Eq{"build_id": buildID}).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, deleteSQL, deleteArgs...); err != nil {
			return fmt.Errorf("unable to clear statistics: %w", err)
		}

		if len(stats) == 0 {
			return nil
		}

		query := psql.Insert(tableStatistics).Columns(statisticColumns...)
		for _, stat := range stats {
			query = query.Values(stat.ID, stat.ProjectID, stat.BuildID, stat.URL, stat.Name, stat.Value)
		}
		sql, args, err := query.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("unable to store statistics: %w", err)
		}
		return nil
	})
}

func (pgd *pgDatastore) ListStatistics(ctx context.Context, projectID, buildID string) ([]*datastore.Statistic, error) {
	if _, err := pgd.GetBuild(ctx, projectID, buildID); err != nil {
		return nil, err
	}

	sql, args, err := psql.Select(statisticColumns...).
		From(tableStatistics).
		Where(sq.Eq{"build_id": buildID}).
		OrderBy("url", "name").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := pgd.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []*datastore.Statistic
	for rows.Next() {
		var stat datastore.Statistic
		if err := rows.Scan(&stat.ID, &stat.ProjectID, &stat.BuildID, &stat.URL, &stat.Name, &stat.Value); err != nil {
			return nil, err
		}
		stats = append(stats, &stat)
	}
	return stats, rows.Err()
}

func (pgd *pgDatastore) Ping(ctx context.Context) error {
	return pgd.pool.Ping(ctx)
}

func (pgd *pgDatastore) ReadyState(ctx context.Context) (datastore.ReadyState, error) {
	version, err := pgd.loadVersion(ctx)
	if err != nil {
		return datastore.ReadyState{}, err
	}

	compatible, err := migrations.DatabaseMigrations.IsHeadCompatible(version)
	if err != nil {
		return datastore.ReadyState{}, err
	}
	if compatible {
		return datastore.ReadyState{IsReady: true}, nil
	}

	headMigration, err := migrations.DatabaseMigrations.HeadRevision()
	if err != nil {
		return datastore.ReadyState{}, err
	}
	return datastore.ReadyState{
		Message: fmt.Sprintf(
			"datastore is not migrated: currently at revision %q, but requires %q. Please run %q.",
			version, headMigration, "lightci migrate head",
		),
	}, nil
}

func (pgd *pgDatastore) loadVersion(ctx context.Context) (string, error) {
	var revision string
	if err := pgd.pool.QueryRow(ctx, queryLoadVersion).Scan(&revision); err != nil {
		var pgerr *pgconn.PgError
		if errors.As(err, &pgerr) && pgerr.Code == pgMissingTableErrorCode {
			return "", nil
		}
		return "", fmt.Errorf("unable to load migration version: %w", err)
	}
	return revision, nil
}

func (pgd *pgDatastore) Stats(ctx context.Context) (datastore.Stats, error) {
	var stats datastore.Stats
	err := pgd.pool.QueryRow(ctx, queryStats).Scan(&stats.Projects, &stats.Builds, &stats.Runs)
	if err != nil {
		return datastore.Stats{}, err
	}
	return stats, nil
}

func (pgd *pgDatastore) Close() error {
	pgd.pool.Close()
	return nil
}

// replaceMissingParent maps a foreign key violation onto ErrNotFound,
// matching what the memory engine reports for a dangling parent ID.
func replaceMissingParent(err error) error {
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23503" {
		return datastore.ErrNotFound
	}
	return err
}

func scanProject(row pgx.Row) (*datastore.Project, error) {
	var p datastore.Project
	if err := row.Scan(
		&p.ID, &p.Name, &p.Slug, &p.ExternalURL, &p.BaseBranch,
		&p.BuildToken, &p.AdminToken, &p.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanBuild(row pgx.Row) (*datastore.Build, error) {
	var b datastore.Build
	if err := row.Scan(
		&b.ID, &b.ProjectID, &b.Branch, &b.Hash, &b.CommitMessage,
		&b.Author, &b.AvatarURL, &b.AncestorHash, &b.ExternalBuildURL,
		&b.LifecycleState, &b.RunAt,
	); err != nil {
		return nil, err
	}
	return &b, nil
}

func scanRun(row pgx.Row) (*datastore.Run, error) {
	var r datastore.Run
	if err := row.Scan(
		&r.ID, &r.ProjectID, &r.BuildID, &r.URL, &r.Representative,
		&r.LHR, &r.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &r, nil
}
