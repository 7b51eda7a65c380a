// Package migrate walks a datastore's schema between revisions. Each SQL
// engine declares an ordered chain of revisions at package level and
// registers them from init functions; the manager computes the path from
// whatever revision the database reports to the requested one and applies
// each step inside the driver's transaction, recording the new revision in
// the same transaction as its DDL.
package migrate

import (
	"context"
	"fmt"
	"strings"

	log "github.com/treosh/lightci/internal/logging"
)

// Head names the newest revision of a chain without spelling it out.
const Head = "head"

// MigrationFunc applies one revision inside the driver's transaction type.
type MigrationFunc[T any] func(ctx context.Context, tx T) error

// Driver abstracts the datastore under migration.
type Driver[T any] interface {
	// Version returns the revision the datastore is at. A datastore that
	// has never been migrated reports the empty string without error.
	Version(ctx context.Context) (string, error)

	// WriteVersion records the move from replaced to version within tx,
	// so a failed migration leaves the recorded revision untouched.
	WriteVersion(ctx context.Context, tx T, version, replaced string) error

	// Transact runs f with transactional semantics.
	Transact(ctx context.Context, f MigrationFunc[T]) error

	// Close releases the driver's connection.
	Close(ctx context.Context) error
}

type migration[T any] struct {
	version  string
	replaces string
	up       MigrationFunc[T]
}

// Manager holds one engine's migration chain.
type Manager[D Driver[T], T any] struct {
	migrations map[string]migration[T]
}

// NewManager creates an empty migration manager.
func NewManager[D Driver[T], T any]() *Manager[D, T] {
	return &Manager[D, T]{migrations: make(map[string]migration[T])}
}

// Register adds a revision to the chain. The replaces argument names the
// revision this one builds on, empty for the first revision.
func (m *Manager[D, T]) Register(version, replaces string, up MigrationFunc[T]) error {
	if strings.EqualFold(version, Head) {
		return fmt.Errorf("unable to register a revision named %q", Head)
	}
	if _, ok := m.migrations[version]; ok {
		return fmt.Errorf("revision already registered: %s", version)
	}

	m.migrations[version] = migration[T]{version: version, replaces: replaces, up: up}
	return nil
}

// Plan returns, in order, the revisions that moving from -> through would
// apply. The Head alias is resolved before planning.
func (m *Manager[D, T]) Plan(from, through string) ([]string, error) {
	if strings.EqualFold(through, Head) {
		var err error
		through, err = m.HeadRevision()
		if err != nil {
			return nil, err
		}
	}

	chain, err := m.collectInRange(from, through)
	if err != nil {
		return nil, err
	}

	var versions []string
	for _, step := range chain {
		versions = append(versions, step.version)
	}
	return versions, nil
}

// Run migrates the datastore behind driver up to throughRevision, which
// may be Head. Each step re-reads the recorded revision first, so two
// concurrent migrators cannot apply the same step twice.
func (m *Manager[D, T]) Run(ctx context.Context, driver D, throughRevision string) error {
	starting, err := driver.Version(ctx)
	if err != nil {
		return fmt.Errorf("unable to read current revision: %w", err)
	}

	if strings.EqualFold(throughRevision, Head) {
		throughRevision, err = m.HeadRevision()
		if err != nil {
			return fmt.Errorf("unable to compute head revision: %w", err)
		}
	}

	chain, err := m.collectInRange(starting, throughRevision)
	if err != nil {
		return fmt.Errorf("unable to compute migration list: %w", err)
	}

	for _, step := range chain {
		current, err := driver.Version(ctx)
		if err != nil {
			return fmt.Errorf("unable to read current revision: %w", err)
		}
		if step.replaces != current {
			return fmt.Errorf("migration out of order: datastore is at %q, next step replaces %q", current, step.replaces)
		}

		log.Ctx(ctx).Info().Str("from", step.replaces).Str("to", step.version).Msg("running migration")
		err = driver.Transact(ctx, func(ctx context.Context, tx T) error {
			if err := step.up(ctx, tx); err != nil {
				return err
			}
			return driver.WriteVersion(ctx, tx, step.version, step.replaces)
		})
		if err != nil {
			return fmt.Errorf("error executing migration %q: %w", step.version, err)
		}
	}

	return nil
}

// HeadRevision returns the single revision no other revision replaces.
// Zero or multiple heads mean the chain is malformed.
func (m *Manager[D, T]) HeadRevision() (string, error) {
	candidates := make(map[string]struct{}, len(m.migrations))
	for version := range m.migrations {
		candidates[version] = struct{}{}
	}
	for _, step := range m.migrations {
		delete(candidates, step.replaces)
	}

	heads := make([]string, 0, len(candidates))
	for head := range candidates {
		heads = append(heads, head)
	}
	if len(heads) != 1 {
		return "", fmt.Errorf("expected exactly one head revision, found %v", heads)
	}
	return heads[0], nil
}

// IsHeadCompatible reports whether revision is the head revision or the
// one directly beneath it. Engines accept either at startup so a rolling
// deploy can run old and new binaries against one database.
func (m *Manager[D, T]) IsHeadCompatible(revision string) (bool, error) {
	head, err := m.HeadRevision()
	if err != nil {
		return false, err
	}
	headMigration := m.migrations[head]
	return revision == headMigration.version || revision == headMigration.replaces, nil
}

func (m *Manager[D, T]) collectInRange(starting, through string) ([]migration[T], error) {
	var chain []migration[T]

	looking := through
	for looking != starting {
		step, ok := m.migrations[looking]
		if !ok {
			return nil, fmt.Errorf("unknown revision: %s", looking)
		}
		chain = append([]migration[T]{step}, chain...)
		looking = step.replaces
	}

	return chain, nil
}
