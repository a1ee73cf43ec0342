package snapback_test

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"snapback/internal/backend"
	"snapback/internal/snapback"
	"snapback/internal/testutil"
)

type serviceFixture struct {
	root     string
	repo     *snapback.Repository
	transfer *testutil.StubTransfer
	clock    *testutil.StubClock
	svc      *snapback.Service
}

func newServiceFixture(t *testing.T, be snapback.SnapshotBackend, policy snapback.Policy) *serviceFixture {
	t.Helper()
	root := t.TempDir()
	repo := snapback.NewRepository(root, be, snapback.FormatUnix)
	tr := testutil.NewStubTransfer()
	clock := testutil.FixedClock()
	svc := snapback.NewService(repo, tr, policy, snapback.NewNopLogger(), clock)
	return &serviceFixture{root: root, repo: repo, transfer: tr, clock: clock, svc: svc}
}

// seedSnapshot plants a snapshot entry directly on disk, as a previous run
// would have left it.
func seedSnapshot(t *testing.T, root string, tier snapback.Tier, at time.Time) string {
	t.Helper()
	name := string(tier) + "_" + strconv.FormatInt(at.UTC().Unix(), 10)
	if err := os.Mkdir(filepath.Join(root, name), 0755); err != nil {
		t.Fatalf("seeding snapshot %s: %v", name, err)
	}
	return name
}

func snapshotNames(t *testing.T, repo *snapback.Repository) []string {
	t.Helper()
	snaps, err := repo.ListAll()
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	names := make([]string, len(snaps))
	for i, s := range snaps {
		names[i] = s.Name()
	}
	return names
}

func TestService_RunCycle_Classification(t *testing.T) {
	policy := snapback.Policy{MaxLongCount: 4, MaxAge: 30 * day}
	f := newServiceFixture(t, backend.NewPlain(), policy)
	ctx := context.Background()
	sources := []string{"/data/docs"}

	// First ever cycle: no prior Long snapshot, so the sentinel epoch makes
	// it Long.
	result, err := f.svc.RunCycle(ctx, sources)
	if err != nil {
		t.Fatalf("first RunCycle() error = %v", err)
	}
	if result.Snapshot.Tier != snapback.TierLong {
		t.Errorf("first cycle tier = %q, want long", result.Snapshot.Tier)
	}

	// One day later: inside the maxAge window, so Short.
	f.clock.Advance(day)
	result, err = f.svc.RunCycle(ctx, sources)
	if err != nil {
		t.Fatalf("second RunCycle() error = %v", err)
	}
	if result.Snapshot.Tier != snapback.TierShort {
		t.Errorf("second cycle tier = %q, want short", result.Snapshot.Tier)
	}

	// 31 days after the Long snapshot: a new window, Long again.
	f.clock.Advance(30 * day)
	result, err = f.svc.RunCycle(ctx, sources)
	if err != nil {
		t.Fatalf("third RunCycle() error = %v", err)
	}
	if result.Snapshot.Tier != snapback.TierLong {
		t.Errorf("third cycle tier = %q, want long", result.Snapshot.Tier)
	}
}

func TestService_RunCycle_PartialTransfer(t *testing.T) {
	policy := snapback.Policy{MaxLongCount: 4, MaxAge: 30 * day}

	t.Run("one of three sources is enough", func(t *testing.T) {
		f := newServiceFixture(t, backend.NewPlain(), policy)
		f.transfer.FailSource("/data/a", errors.New("connection reset"))
		f.transfer.FailSource("/data/b", errors.New("permission denied"))

		result, err := f.svc.RunCycle(context.Background(), []string{"/data/a", "/data/b", "/data/c"})
		if err != nil {
			t.Fatalf("RunCycle() error = %v", err)
		}
		if result.Synced != 1 || result.Failed != 2 {
			t.Errorf("synced/failed = %d/%d, want 1/2", result.Synced, result.Failed)
		}
		if got := snapshotNames(t, f.repo); len(got) != 1 {
			t.Errorf("repository has %d snapshots, want exactly 1", len(got))
		}
	})

	t.Run("all sources failing aborts without a snapshot", func(t *testing.T) {
		f := newServiceFixture(t, backend.NewPlain(), policy)
		for _, src := range []string{"/data/a", "/data/b", "/data/c"} {
			f.transfer.FailSource(src, errors.New("unreachable"))
		}

		_, err := f.svc.RunCycle(context.Background(), []string{"/data/a", "/data/b", "/data/c"})
		if err == nil {
			t.Fatal("RunCycle() expected error when every source fails")
		}
		if got := snapback.CategoryOf(err); got != snapback.CategoryTransfer {
			t.Errorf("category = %q, want transfer", got)
		}
		if got := snapshotNames(t, f.repo); len(got) != 0 {
			t.Errorf("repository has %d snapshots, want none", len(got))
		}
		// The mirror is left in place for diagnosis.
		if _, err := os.Stat(f.repo.Mirror()); err != nil {
			t.Errorf("mirror missing after failed cycle: %v", err)
		}
	})
}

func TestService_RunCycle_LinkHint(t *testing.T) {
	policy := snapback.Policy{MaxLongCount: 4, MaxAge: 30 * day}
	f := newServiceFixture(t, backend.NewPlain(), policy)
	ctx := context.Background()

	first, err := f.svc.RunCycle(ctx, []string{"/data/docs"})
	if err != nil {
		t.Fatalf("first RunCycle() error = %v", err)
	}

	f.clock.Advance(time.Hour)
	if _, err := f.svc.RunCycle(ctx, []string{"/data/docs"}); err != nil {
		t.Fatalf("second RunCycle() error = %v", err)
	}

	calls := f.transfer.CallsFor("/data/docs")
	if len(calls) != 2 {
		t.Fatalf("recorded %d transfer calls, want 2", len(calls))
	}
	if calls[0].LinkDest != "" {
		t.Errorf("first cycle linkDest = %q, want empty (no previous snapshot)", calls[0].LinkDest)
	}
	if calls[1].LinkDest != first.Snapshot.Path {
		t.Errorf("second cycle linkDest = %q, want %q", calls[1].LinkDest, first.Snapshot.Path)
	}
}

func TestService_RunCycle_Canceled(t *testing.T) {
	policy := snapback.Policy{MaxLongCount: 4, MaxAge: 30 * day}
	f := newServiceFixture(t, backend.NewPlain(), policy)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.RunCycle(ctx, []string{"/data/docs"})
	if err == nil {
		t.Fatal("RunCycle() expected error for canceled context")
	}
	if got := snapback.CategoryOf(err); got != snapback.CategoryTransfer {
		t.Errorf("category = %q, want transfer", got)
	}
	if got := snapshotNames(t, f.repo); len(got) != 0 {
		t.Errorf("repository has %d snapshots after canceled cycle, want none", len(got))
	}
}

func TestService_Prune(t *testing.T) {
	t.Run("retires the excess longs and expired shorts", func(t *testing.T) {
		policy := snapback.Policy{MaxLongCount: 4, MaxAge: 30 * day}
		f := newServiceFixture(t, backend.NewPlain(), policy)
		now := f.clock.Now()

		var names []string
		for i := 5; i >= 1; i-- {
			names = append(names, seedSnapshot(t, f.root, snapback.TierLong, now.Add(-time.Duration(i)*30*day)))
		}
		expired := seedSnapshot(t, f.root, snapback.TierShort, now.Add(-30*day))
		fresh := seedSnapshot(t, f.root, snapback.TierShort, now.Add(-day))

		deleted, err := f.svc.Prune(context.Background())
		if err != nil {
			t.Fatalf("Prune() error = %v", err)
		}
		if len(deleted) != 2 {
			t.Fatalf("Prune() deleted %d snapshots, want 2", len(deleted))
		}

		remaining := snapshotNames(t, f.repo)
		for _, name := range remaining {
			if name == names[0] || name == expired {
				t.Errorf("%s should have been pruned", name)
			}
		}
		found := false
		for _, name := range remaining {
			if name == fresh {
				found = true
			}
		}
		if !found {
			t.Errorf("fresh short snapshot %s was pruned", fresh)
		}
	})

	t.Run("zero maxLongCount retires every long", func(t *testing.T) {
		policy := snapback.Policy{MaxLongCount: 0, MaxAge: 30 * day}
		f := newServiceFixture(t, backend.NewPlain(), policy)
		now := f.clock.Now()

		for i := 1; i <= 3; i++ {
			seedSnapshot(t, f.root, snapback.TierLong, now.Add(-time.Duration(i)*day))
		}

		deleted, err := f.svc.Prune(context.Background())
		if err != nil {
			t.Fatalf("Prune() error = %v", err)
		}
		if len(deleted) != 3 {
			t.Errorf("Prune() deleted %d snapshots, want 3", len(deleted))
		}
	})

	t.Run("one failed deletion does not stop the rest", func(t *testing.T) {
		policy := snapback.Policy{MaxLongCount: 0, MaxAge: 30 * day}
		flaky := &testutil.FlakyBackend{
			Backend:    backend.NewPlain(),
			DeleteErrs: map[string]error{},
		}
		f := newServiceFixture(t, flaky, policy)
		now := f.clock.Now()

		stuck := seedSnapshot(t, f.root, snapback.TierLong, now.Add(-2*day))
		other := seedSnapshot(t, f.root, snapback.TierLong, now.Add(-day))
		flaky.DeleteErrs[filepath.Join(f.root, stuck)] = errors.New("device busy")

		deleted, err := f.svc.Prune(context.Background())
		if err == nil {
			t.Fatal("Prune() expected aggregated error")
		}
		if got := snapback.CategoryOf(err); got != snapback.CategoryPrune {
			t.Errorf("category = %q, want prune", got)
		}
		if len(deleted) != 1 || deleted[0].Name() != other {
			t.Errorf("deleted = %v, want just %s", deleted, other)
		}
	})
}

func TestService_RunCycle_PruneFailureKeepsSnapshot(t *testing.T) {
	policy := snapback.Policy{MaxLongCount: 4, MaxAge: 30 * day}
	flaky := &testutil.FlakyBackend{
		Backend:    backend.NewPlain(),
		DeleteErrs: map[string]error{},
	}
	f := newServiceFixture(t, flaky, policy)
	now := f.clock.Now()

	expired := seedSnapshot(t, f.root, snapback.TierShort, now.Add(-40*day))
	flaky.DeleteErrs[filepath.Join(f.root, expired)] = errors.New("device busy")

	result, err := f.svc.RunCycle(context.Background(), []string{"/data/docs"})
	if err == nil {
		t.Fatal("RunCycle() expected prune error")
	}
	if got := snapback.CategoryOf(err); got != snapback.CategoryPrune {
		t.Errorf("category = %q, want prune", got)
	}
	if result == nil {
		t.Fatal("RunCycle() result = nil, want committed snapshot alongside prune error")
	}
	if _, statErr := os.Stat(result.Snapshot.Path); statErr != nil {
		t.Errorf("committed snapshot missing: %v", statErr)
	}
}

func TestService_Remove(t *testing.T) {
	policy := snapback.Policy{MaxLongCount: 4, MaxAge: 30 * day}
	f := newServiceFixture(t, backend.NewPlain(), policy)
	ctx := context.Background()

	result, err := f.svc.RunCycle(ctx, []string{"/data/docs"})
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	if err := f.svc.Remove(ctx, result.Snapshot.Name()); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if got := snapshotNames(t, f.repo); len(got) != 0 {
		t.Errorf("repository has %d snapshots after remove, want none", len(got))
	}

	// Removing the same name again is a no-op.
	if err := f.svc.Remove(ctx, result.Snapshot.Name()); err != nil {
		t.Errorf("repeated Remove() = %v, want nil", err)
	}

	if err := f.svc.Remove(ctx, "mirror"); err == nil {
		t.Error("Remove() of a non-snapshot name expected error")
	}
}
