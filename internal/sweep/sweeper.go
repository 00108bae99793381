// Package sweep removes source versions no longer referenced by any
// class row or jar link, and identities left with zero versions.
// Reference-driven: renaming a service never creates phantom orphans.
package sweep

import (
	"context"

	"github.com/jarlens/jarlens/internal/logging"
	"github.com/jarlens/jarlens/internal/store"
)

// Report summarizes one sweep.
type Report struct {
	// ByIdentity maps class_full_name to the number of orphaned versions.
	ByIdentity        map[string]int
	VersionsRemoved   int
	IdentitiesRemoved int
	DryRun            bool
}

// Sweeper runs the orphan sweep stage.
type Sweeper struct {
	store *store.Store
}

// New returns a Sweeper backed by st.
func New(st *store.Store) *Sweeper {
	return &Sweeper{store: st}
}

// Run finds orphans and, when execute is set, deletes them one identity
// per transaction so a failure never leaves a half-swept identity.
func (s *Sweeper) Run(ctx context.Context, execute bool) (*Report, error) {
	orphans, err := s.store.OrphanSourceVersions()
	if err != nil {
		return nil, err
	}
	return s.sweep(ctx, orphans, execute)
}

// RunService sweeps only orphans of identities the given service
// references. The orphan test itself stays global: a version another
// service still links is never touched.
func (s *Sweeper) RunService(ctx context.Context, serviceID int64, execute bool) (*Report, error) {
	orphans, err := s.store.OrphanSourceVersionsForService(serviceID)
	if err != nil {
		return nil, err
	}
	return s.sweep(ctx, orphans, execute)
}

func (s *Sweeper) sweep(ctx context.Context, orphans []store.OrphanCount, execute bool) (*Report, error) {
	log := logging.WithComponent("sweep")

	rep := &Report{ByIdentity: make(map[string]int), DryRun: !execute}
	for _, o := range orphans {
		rep.ByIdentity[o.ClassFullName] = len(o.VersionIDs)
	}
	if !execute {
		log.Info().Int("identities", len(orphans)).Msg("orphan sweep dry run")
		return rep, nil
	}

	for _, o := range orphans {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		identityRemoved, err := s.store.DeleteOrphanVersions(o)
		if err != nil {
			return rep, err
		}
		rep.VersionsRemoved += len(o.VersionIDs)
		if identityRemoved {
			rep.IdentitiesRemoved++
		}
		log.Info().Str("class", o.ClassFullName).Int("versions", len(o.VersionIDs)).
			Bool("identity_removed", identityRemoved).Msg("swept orphans")
	}
	return rep, nil
}
