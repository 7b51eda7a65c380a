// Package memory implements the report server datastore on hashicorp's
// go-memdb. It is the default engine: zero setup, fast, and gone on
// restart, which suits CI smoke tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/treosh/lightci/internal/server/datastore"
)

// Engine is the name this datastore registers under.
const Engine = "memory"

func init() {
	datastore.Engines = append(datastore.Engines, Engine)
}

const (
	tableProject   = "project"
	tableBuild     = "build"
	tableRun       = "run"
	tableStatistic = "statistic"

	indexID            = "id"
	indexBuildToken    = "buildToken"
	indexProject       = "project"
	indexProjectBranch = "projectBranch"
	indexBuild         = "build"
)

// Inserted records are never mutated; updates insert a fresh copy, which
// is what memdb's radix trees require.
type projectRecord struct {
	id          string
	name        string
	slug        string
	externalURL string
	baseBranch  string
	buildToken  string
	adminToken  string
	createdAt   time.Time
}

type buildRecord struct {
	id               string
	projectID        string
	branch           string
	hash             string
	commitMessage    string
	author           string
	avatarURL        string
	ancestorHash     string
	externalBuildURL string
	lifecycleState   string
	runAt            time.Time
}

type runRecord struct {
	id             string
	projectID      string
	buildID        string
	url            string
	representative bool
	lhr            []byte
	createdAt      time.Time
}

type statisticRecord struct {
	id        string
	projectID string
	buildID   string
	url       string
	name      string
	value     float64
}

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tableProject: {
			Name: tableProject,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {
					Name:    indexID,
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "id"},
				},
				indexBuildToken: {
					Name:    indexBuildToken,
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "buildToken"},
				},
			},
		},
		tableBuild: {
			Name: tableBuild,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {
					Name:    indexID,
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "id"},
				},
				indexProject: {
					Name:    indexProject,
					Unique:  false,
					Indexer: &memdb.StringFieldIndex{Field: "projectID"},
				},
				indexProjectBranch: {
					Name:   indexProjectBranch,
					Unique: false,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "projectID"},
							&memdb.StringFieldIndex{Field: "branch"},
						},
					},
				},
			},
		},
		tableRun: {
			Name: tableRun,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {
					Name:    indexID,
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "id"},
				},
				indexBuild: {
					Name:    indexBuild,
					Unique:  false,
					Indexer: &memdb.StringFieldIndex{Field: "buildID"},
				},
			},
		},
		tableStatistic: {
			Name: tableStatistic,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {
					Name:    indexID,
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "id"},
				},
				indexBuild: {
					Name:    indexBuild,
					Unique:  false,
					Indexer: &memdb.StringFieldIndex{Field: "buildID"},
				},
			},
		},
	},
}

type memoryDatastore struct {
	db *memdb.MemDB
}

// NewDatastore creates an empty in-memory datastore.
func NewDatastore() (datastore.Datastore, error) {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("unable to instantiate memory datastore: %w", err)
	}
	return &memoryDatastore{db: db}, nil
}

func (ds *memoryDatastore) CreateProject(_ context.Context, project *datastore.Project) error {
	txn := ds.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(tableProject, toProjectRecord(project)); err != nil {
		return fmt.Errorf("unable to store project: %w", err)
	}
	txn.Commit()
	return nil
}

func (ds *memoryDatastore) ListProjects(context.Context) ([]*datastore.Project, error) {
	txn := ds.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableProject, indexID)
	if err != nil {
		return nil, err
	}

	var projects []*datastore.Project
	for raw := it.Next(); raw != nil; raw = it.Next() {
		projects = append(projects, fromProjectRecord(raw.(*projectRecord)))
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
	return projects, nil
}

func (ds *memoryDatastore) GetProject(_ context.Context, projectID string) (*datastore.Project, error) {
	txn := ds.db.Txn(false)
	defer txn.Abort()
	return ds.getProject(txn, projectID)
}

func (ds *memoryDatastore) getProject(txn *memdb.Txn, projectID string) (*datastore.Project, error) {
	raw, err := txn.First(tableProject, indexID, projectID)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, datastore.ErrNotFound
	}
	return fromProjectRecord(raw.(*projectRecord)), nil
}

func (ds *memoryDatastore) GetProjectByToken(_ context.Context, buildToken string) (*datastore.Project, error) {
	txn := ds.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tableProject, indexBuildToken, buildToken)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, datastore.ErrNotFound
	}
	return fromProjectRecord(raw.(*projectRecord)), nil
}

func (ds *memoryDatastore) CreateBuild(_ context.Context, build *datastore.Build) error {
	txn := ds.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(tableBuild, toBuildRecord(build)); err != nil {
		return fmt.Errorf("unable to store build: %w", err)
	}
	txn.Commit()
	return nil
}

func (ds *memoryDatastore) ListBuilds(_ context.Context, projectID string, filter datastore.BuildFilter) ([]*datastore.Build, error) {
	txn := ds.db.Txn(false)
	defer txn.Abort()

	builds, err := ds.projectBuilds(txn, projectID, filter.Branch)
	if err != nil {
		return nil, err
	}
	if filter.Limit > 0 && len(builds) > filter.Limit {
		builds = builds[:filter.Limit]
	}
	return builds, nil
}

// projectBuilds returns a project's builds newest first, optionally
// narrowed to one branch.
func (ds *memoryDatastore) projectBuilds(txn *memdb.Txn, projectID, branch string) ([]*datastore.Build, error) {
	var it memdb.ResultIterator
	var err error
	if branch != "" {
		it, err = txn.Get(tableBuild, indexProjectBranch, projectID, branch)
	} else {
		it, err = txn.Get(tableBuild, indexProject, projectID)
	}
	if err != nil {
		return nil, err
	}

	var builds []*datastore.Build
	for raw := it.Next(); raw != nil; raw = it.Next() {
		builds = append(builds, fromBuildRecord(raw.(*buildRecord)))
	}
	sort.Slice(builds, func(i, j int) bool {
		return builds[i].RunAt.After(builds[j].RunAt)
	})
	return builds, nil
}

func (ds *memoryDatastore) GetBuild(_ context.Context, projectID, buildID string) (*datastore.Build, error) {
	txn := ds.db.Txn(false)
	defer txn.Abort()
	return ds.getBuild(txn, projectID, buildID)
}

func (ds *memoryDatastore) getBuild(txn *memdb.Txn, projectID, buildID string) (*datastore.Build, error) {
	raw, err := txn.First(tableBuild, indexID, buildID)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, datastore.ErrNotFound
	}
	record := raw.(*buildRecord)
	if record.projectID != projectID {
		return nil, datastore.ErrNotFound
	}
	return fromBuildRecord(record), nil
}

func (ds *memoryDatastore) FindAncestorBuild(_ context.Context, projectID, buildID string) (*datastore.Build, error) {
	txn := ds.db.Txn(false)
	defer txn.Abort()

	build, err := ds.getBuild(txn, projectID, buildID)
	if err != nil {
		return nil, err
	}
	project, err := ds.getProject(txn, projectID)
	if err != nil {
		return nil, err
	}

	baseBuilds, err := ds.projectBuilds(txn, projectID, project.BaseBranch)
	if err != nil {
		return nil, err
	}

	if build.AncestorHash != "" {
		for _, candidate := range baseBuilds {
			if candidate.Hash == build.AncestorHash {
				return candidate, nil
			}
		}
	}
	for _, candidate := range baseBuilds {
		if candidate.ID != build.ID && !candidate.RunAt.After(build.RunAt) {
			return candidate, nil
		}
	}
	return nil, datastore.ErrNotFound
}

func (ds *memoryDatastore) UpdateBuildLifecycle(_ context.Context, projectID, buildID, state string) error {
	txn := ds.db.Txn(true)
	defer txn.Abort()

	build, err := ds.getBuild(txn, projectID, buildID)
	if err != nil {
		return err
	}
	build.LifecycleState = state
	if err := txn.Insert(tableBuild, toBuildRecord(build)); err != nil {
		return fmt.Errorf("unable to update build: %w", err)
	}
	txn.Commit()
	return nil
}

func (ds *memoryDatastore) DeleteBuild(_ context.Context, projectID, buildID string) error {
	txn := ds.db.Txn(true)
	defer txn.Abort()

	build, err := ds.getBuild(txn, projectID, buildID)
	if err != nil {
		return err
	}
	if _, err := txn.DeleteAll(tableRun, indexBuild, buildID); err != nil {
		return err
	}
	if _, err := txn.DeleteAll(tableStatistic, indexBuild, buildID); err != nil {
		return err
	}
	if err := txn.Delete(tableBuild, toBuildRecord(build)); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (ds *memoryDatastore) CreateRun(_ context.Context, run *datastore.Run) error {
	txn := ds.db.Txn(true)
	defer txn.Abort()

	build, err := ds.getBuild(txn, run.ProjectID, run.BuildID)
	if err != nil {
		return err
	}
	if build.LifecycleState == datastore.LifecycleSealed {
		return datastore.ErrSealed
	}
	if err := txn.Insert(tableRun, toRunRecord(run)); err != nil {
		return fmt.Errorf("unable to store run: %w", err)
	}
	txn.Commit()
	return nil
}

func (ds *memoryDatastore) ListRuns(_ context.Context, projectID, buildID string, filter datastore.RunFilter) ([]*datastore.Run, error) {
	txn := ds.db.Txn(false)
	defer txn.Abort()

	if _, err := ds.getBuild(txn, projectID, buildID); err != nil {
		return nil, err
	}

	it, err := txn.Get(tableRun, indexBuild, buildID)
	if err != nil {
		return nil, err
	}

	var runs []*datastore.Run
	for raw := it.Next(); raw != nil; raw = it.Next() {
		record := raw.(*runRecord)
		if filter.URL != "" && record.url != filter.URL {
			continue
		}
		if filter.Representative != nil && record.representative != *filter.Representative {
			continue
		}
		runs = append(runs, fromRunRecord(record))
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

func (ds *memoryDatastore) SetRunRepresentative(_ context.Context, runID string, representative bool) error {
	txn := ds.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tableRun, indexID, runID)
	if err != nil {
		return err
	}
	if raw == nil {
		return datastore.ErrNotFound
	}
	run := fromRunRecord(raw.(*runRecord))
	run.Representative = representative
	if err := txn.Insert(tableRun, toRunRecord(run)); err != nil {
		return fmt.Errorf("unable to update run: %w", err)
	}
	txn.Commit()
	return nil
}

func (ds *memoryDatastore) ReplaceStatistics(_ context.Context, buildID string, stats []*datastore.Statistic) error {
	txn := ds.db.Txn(true)
	defer txn.Abort()

	if _, err := txn.DeleteAll(tableStatistic, indexBuild, buildID); err != nil {
		return err
	}
	for _, stat := range stats {
		if err := txn.Insert(tableStatistic, toStatisticRecord(stat)); err != nil {
			return fmt.Errorf("unable to store statistic: %w", err)
		}
	}
	txn.Commit()
	return nil
}

func (ds *memoryDatastore) ListStatistics(_ context.Context, projectID, buildID string) ([]*datastore.Statistic, error) {
	txn := ds.db.Txn(false)
	defer txn.Abort()

	if _, err := ds.getBuild(txn, projectID, buildID); err != nil {
		return nil, err
	}

	it, err := txn.Get(tableStatistic, indexBuild, buildID)
	if err != nil {
		return nil, err
	}

	var stats []*datastore.Statistic
	for raw := it.Next(); raw != nil; raw = it.Next() {
		stats = append(stats, fromStatisticRecord(raw.(*statisticRecord)))
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].URL != stats[j].URL {
			return stats[i].URL < stats[j].URL
		}
		return stats[i].Name < stats[j].Name
	})
	return stats, nil
}

func (ds *memoryDatastore) Ping(context.Context) error { return nil }

func (ds *memoryDatastore) ReadyState(context.Context) (datastore.ReadyState, error) {
	return datastore.ReadyState{IsReady: true}, nil
}

func (ds *memoryDatastore) Stats(context.Context) (datastore.Stats, error) {
	txn := ds.db.Txn(false)
	defer txn.Abort()

	var stats datastore.Stats
	for table, count := range map[string]*int{
		tableProject: &stats.Projects,
		tableBuild:   &stats.Builds,
		tableRun:     &stats.Runs,
	} {
		it, err := txn.Get(table, indexID)
		if err != nil {
			return datastore.Stats{}, err
		}
		for raw := it.Next(); raw != nil; raw = it.Next() {
			*count++
		}
	}
	return stats, nil
}

func (ds *memoryDatastore) Close() error { return nil }

func toProjectRecord(p *datastore.Project) *projectRecord {
	return &projectRecord{
		id:          p.ID,
		name:        p.Name,
		slug:        p.Slug,
		externalURL: p.ExternalURL,
		baseBranch:  p.BaseBranch,
		buildToken:  p.BuildToken,
		adminToken:  p.AdminToken,
		createdAt:   p.CreatedAt,
	}
}

func fromProjectRecord(r *projectRecord) *datastore.Project {
	return &datastore.Project{
		ID:          r.id,
		Name:        r.name,
		Slug:        r.slug,
		ExternalURL: r.externalURL,
		BaseBranch:  r.baseBranch,
		BuildToken:  r.buildToken,
		AdminToken:  r.adminToken,
		CreatedAt:   r.createdAt,
	}
}

func toBuildRecord(b *datastore.Build) *buildRecord {
	return &buildRecord{
		id:               b.ID,
		projectID:        b.ProjectID,
		branch:           b.Branch,
		hash:             b.Hash,
		commitMessage:    b.CommitMessage,
		author:           b.Author,
		avatarURL:        b.AvatarURL,
		ancestorHash:     b.AncestorHash,
		externalBuildURL: b.ExternalBuildURL,
		lifecycleState:   b.LifecycleState,
		runAt:            b.RunAt,
	}
}

func fromBuildRecord(r *buildRecord) *datastore.Build {
	return &datastore.Build{
		ID:               r.id,
		ProjectID:        r.projectID,
		Branch:           r.branch,
		Hash:             r.hash,
		CommitMessage:    r.commitMessage,
		Author:           r.author,
		AvatarURL:        r.avatarURL,
		AncestorHash:     r.ancestorHash,
		ExternalBuildURL: r.externalBuildURL,
		LifecycleState:   r.lifecycleState,
		RunAt:            r.runAt,
	}
}

func toRunRecord(r *datastore.Run) *runRecord {
	return &runRecord{
		id:             r.ID,
		projectID:      r.ProjectID,
		buildID:        r.BuildID,
		url:            r.URL,
		representative: r.Representative,
		lhr:            r.LHR,
		createdAt:      r.CreatedAt,
	}
}

func fromRunRecord(r *runRecord) *datastore.Run {
	return &datastore.Run{
		ID:             r.id,
		ProjectID:      r.projectID,
		BuildID:        r.buildID,
		URL:            r.url,
		Representative: r.representative,
		LHR:            r.lhr,
		CreatedAt:      r.createdAt,
	}
}

func toStatisticRecord(s *datastore.Statistic) *statisticRecord {
	return &statisticRecord{
		id:        s.ID,
		projectID: s.ProjectID,
		buildID:   s.BuildID,
		url:       s.URL,
		name:      s.Name,
		value:     s.Value,
	}
}

func fromStatisticRecord(r *statisticRecord) *datastore.Statistic {
	return &datastore.Statistic{
		ID:        r.id,
		ProjectID: r.projectID,
		BuildID:   r.buildID,
		URL:       r.url,
		Name:      r.name,
		Value:     r.value,
	}
}
