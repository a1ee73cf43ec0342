package snapback

import (
	"context"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
)

// Service drives backup cycles for one repository. It is the only writer a
// repository is designed for: callers must prevent concurrent cycles against
// the same root (external mutual exclusion), as two cycles would race on the
// working mirror and the last-snapshot pointer.
type Service struct {
	repo     *Repository
	transfer Transfer
	policy   Policy
	logger   Logger
	clock    Clock
}

// NewService creates a Service with the provided dependencies.
func NewService(repo *Repository, transfer Transfer, policy Policy, logger Logger, clock Clock) *Service {
	return &Service{
		repo:     repo,
		transfer: transfer,
		policy:   policy,
		logger:   logger,
		clock:    clock,
	}
}

// CycleResult reports what one backup cycle did.
type CycleResult struct {
	Snapshot Snapshot   // the snapshot committed this cycle
	Synced   int        // sources that transferred successfully
	Failed   int        // sources that failed
	Pruned   []Snapshot // snapshots deleted by retention
}

// RunCycle performs one backup cycle: sync every source into the working
// mirror, commit a snapshot, then prune. The history is append-only: a
// failed step aborts the cycle but never undoes a committed snapshot.
//
// A multi-source cycle succeeds when at least one source transfers. When the
// snapshot committed but one or more prunings failed, RunCycle returns the
// result alongside a prune-category error aggregating every failure.
func (s *Service) RunCycle(ctx context.Context, sources []string) (*CycleResult, error) {
	s.logger.Info("cycle start", "root", s.repo.Root(), "sources", len(sources))

	if err := s.repo.Ensure(ctx); err != nil {
		return nil, s.failCycle(err)
	}

	linkDest := ""
	if s.repo.Backend().NeedsLinkHint() {
		last, ok, err := s.repo.LastSnapshot()
		if err != nil {
			return nil, s.failCycle(err)
		}
		if ok {
			linkDest = last.Path
		}
	}

	var synced int
	var transferErrs []error
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, s.failCycle(NewError(CategoryTransfer, src, err))
		}
		if err := s.transfer.Sync(ctx, src, s.repo.Mirror(), linkDest); err != nil {
			if ctx.Err() != nil {
				// Canceled mid-transfer: abort before any snapshot
				// is observable.
				return nil, s.failCycle(NewError(CategoryTransfer, src, err))
			}
			s.logger.Warn("source failed", "source", src, "error", err)
			transferErrs = append(transferErrs, errors.Wrap(err, src))
			continue
		}
		s.logger.Debug("source synced", "source", src)
		synced++
	}

	if synced == 0 {
		// The mirror is left as-is for diagnosis; no snapshot is taken.
		err := NewError(CategoryTransfer, s.repo.Root(),
			errors.Wrap(errors.Join(transferErrs...), "all sources failed"))
		return nil, s.failCycle(err)
	}

	now := s.clock.Now()
	longs, err := s.repo.List(TierLong)
	if err != nil {
		return nil, s.failCycle(err)
	}
	tier := s.policy.Classify(longs, now)

	at, err := NewTimestamp(now, s.repo.Format())
	if err != nil {
		return nil, s.failCycle(NewError(CategoryConfig, s.repo.Root(), err))
	}
	snap, err := s.repo.Commit(ctx, tier, at)
	if err != nil {
		return nil, s.failCycle(err)
	}
	s.logger.Info("snapshot created", "name", snap.Name(), "tier", string(snap.Tier))

	result := &CycleResult{
		Snapshot: snap,
		Synced:   synced,
		Failed:   len(transferErrs),
	}
	result.Pruned, err = s.pruneEligible(ctx, now)
	if err != nil {
		// The snapshot is committed; prune failures are reported, not
		// rolled into a cycle abort.
		return result, err
	}
	return result, nil
}

// Prune runs retention only: no transfer, no new snapshot. Eligibility is
// evaluated against the current clock.
func (s *Service) Prune(ctx context.Context) ([]Snapshot, error) {
	if err := s.repo.Ensure(ctx); err != nil {
		return nil, err
	}
	return s.pruneEligible(ctx, s.clock.Now())
}

// pruneEligible deletes every snapshot the policy retires. Each deletion is
// independent: a failure is collected and the remaining deletions still run,
// with every failure reported together at the end.
func (s *Service) pruneEligible(ctx context.Context, now time.Time) ([]Snapshot, error) {
	longs, err := s.repo.List(TierLong)
	if err != nil {
		return nil, err
	}
	shorts, err := s.repo.List(TierShort)
	if err != nil {
		return nil, err
	}

	var deleted []Snapshot
	var errs []error
	for _, snap := range s.policy.Prune(longs, shorts, now) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.repo.Delete(ctx, snap); err != nil {
			s.logger.Warn("prune failed", "name", snap.Name(), "error", err)
			errs = append(errs, errors.Wrap(err, snap.Name()))
			continue
		}
		s.logger.Info("snapshot deleted", "name", snap.Name(), "tier", string(snap.Tier))
		deleted = append(deleted, snap)
	}
	if len(errs) > 0 {
		return deleted, NewError(CategoryPrune, s.repo.Root(), errors.Join(errs...))
	}
	return deleted, nil
}

// Remove deletes a single named snapshot on operator request. Removing a
// name that is not present is a no-op.
func (s *Service) Remove(ctx context.Context, name string) error {
	tier, ts, ok := ParseSnapshotName(name, s.repo.Format())
	if !ok {
		return NewError(CategoryConfig, name, errors.New("not a snapshot name"))
	}
	snap := Snapshot{Tier: tier, Timestamp: ts}
	snap.Path = filepath.Join(s.repo.Root(), snap.Name())
	if err := s.repo.Delete(ctx, snap); err != nil {
		return err
	}
	s.logger.Info("snapshot deleted", "name", snap.Name(), "tier", string(snap.Tier))
	return nil
}

// List returns every snapshot in the repository in the lister's sort order.
func (s *Service) List() ([]Snapshot, error) {
	return s.repo.ListAll()
}

// failCycle logs the cycle-failure lifecycle event and passes err through.
func (s *Service) failCycle(err error) error {
	s.logger.Error("cycle failed", "root", s.repo.Root(), "error", err)
	return err
}
