package app

import (
	"context"
	"os"
	"time"

	"github.com/cockroachdb/errors"

	"snapback/internal/backend"
	"snapback/internal/config"
	"snapback/internal/journal"
	"snapback/internal/snapback"
	"snapback/internal/transfer"
)

// App is the application layer between the CLI and the core services. It
// constructs all dependencies from config, exposes per-profile operations,
// and manages the journal and log file lifecycle on Close.
type App struct {
	cfg     *config.Config
	journal journal.Journal
	logger  snapback.Logger
	logFile *os.File
	clock   snapback.Clock
	cycleID string
}

// NewApp creates a fully wired App from the given config. Config errors are
// fatal here, before any repository is touched. The caller must call Close
// when done.
func NewApp(cfg *config.Config) (*App, error) {
	for _, p := range cfg.Profiles {
		if err := p.Validate(); err != nil {
			return nil, snapback.NewError(snapback.CategoryConfig, p.Name, err)
		}
		if p.SSHKey != "" {
			if _, err := os.Stat(p.SSHKey); err != nil {
				return nil, snapback.NewError(snapback.CategoryConfig, p.Name,
					errors.Wrap(err, "ssh key"))
			}
		}
	}

	jnl, err := journal.NewFromConfig(cfg.Journal)
	if err != nil {
		return nil, snapback.NewError(snapback.CategoryConfig, cfg.Journal.DataDir, err)
	}

	cycleID := snapback.UUIDGenerator{}.New()
	logger, logFile, err := newLogger(cfg.LogDir, cycleID)
	if err != nil {
		jnl.Close()
		return nil, snapback.NewError(snapback.CategoryConfig, cfg.LogDir, err)
	}

	return &App{
		cfg:     cfg,
		journal: jnl,
		logger:  &slogAdapter{l: logger},
		logFile: logFile,
		clock:   snapback.RealClock{},
		cycleID: cycleID,
	}, nil
}

// serviceFor wires a Service for one profile: backend, transfer, repository,
// and policy all come from the profile's immutable config.
func (a *App) serviceFor(p config.Profile) (*snapback.Service, error) {
	be, err := backend.New(p.Backend)
	if err != nil {
		return nil, snapback.NewError(snapback.CategoryConfig, p.Name, err)
	}

	tr := transfer.NewRsync(p.Endpoint,
		transfer.WithSSHKey(p.SSHKey),
		transfer.WithExcludes(p.Excludes),
	)

	repo := snapback.NewRepository(p.Repository, be, snapback.TimestampFormat(p.TimestampFormat))
	policy := snapback.Policy{
		MaxLongCount: p.MaxLongCount,
		MaxAge:       time.Duration(p.MaxAgeDays) * 24 * time.Hour,
	}

	return snapback.NewService(repo, tr, policy, a.logger, a.clock), nil
}

func (a *App) profile(name string) (config.Profile, error) {
	p, ok := a.cfg.FindProfile(name)
	if !ok {
		return config.Profile{}, snapback.NewError(snapback.CategoryConfig, name,
			errors.New("no such profile"))
	}
	return p, nil
}

// Backup runs one full backup cycle for the named profile and journals the
// outcome. When the snapshot committed but pruning partially failed, the
// result is returned alongside the prune error.
func (a *App) Backup(ctx context.Context, profileName string) (*snapback.CycleResult, error) {
	p, err := a.profile(profileName)
	if err != nil {
		return nil, err
	}
	svc, err := a.serviceFor(p)
	if err != nil {
		return nil, err
	}

	rowID, jerr := a.journal.StartCycle(a.cycleID, p.Name, a.clock.Now())
	if jerr != nil {
		return nil, snapback.NewError(snapback.CategoryConfig, p.Name, jerr)
	}

	result, err := svc.RunCycle(ctx, p.Sources)

	outcome := journal.Outcome{Status: "success", FinishedAt: a.clock.Now()}
	if err != nil {
		outcome.Status = "error"
		outcome.Error = err.Error()
	}
	if result != nil {
		outcome.Snapshot = result.Snapshot.Name()
		outcome.Tier = string(result.Snapshot.Tier)
		outcome.Pruned = len(result.Pruned)
	}
	if jerr := a.journal.FinishCycle(rowID, outcome); jerr != nil {
		a.logger.Warn("journal update failed", "profile", p.Name, "error", jerr)
	}

	return result, err
}

// BackupAll runs a backup cycle for every configured profile, in config
// order. Profiles are independent: a failing profile does not stop the
// rest, and all failures are reported together.
func (a *App) BackupAll(ctx context.Context) (map[string]*snapback.CycleResult, error) {
	results := make(map[string]*snapback.CycleResult, len(a.cfg.Profiles))
	var errs []error
	for _, p := range a.cfg.Profiles {
		result, err := a.Backup(ctx, p.Name)
		if result != nil {
			results[p.Name] = result
		}
		if err != nil {
			errs = append(errs, errors.Wrap(err, p.Name))
		}
	}
	return results, errors.Join(errs...)
}

// List returns the repository root and every snapshot for the named profile,
// in the lister's sort order.
func (a *App) List(profileName string) (string, []snapback.Snapshot, error) {
	p, err := a.profile(profileName)
	if err != nil {
		return "", nil, err
	}
	svc, err := a.serviceFor(p)
	if err != nil {
		return "", nil, err
	}
	snaps, err := svc.List()
	return p.Repository, snaps, err
}

// Prune runs retention only for the named profile: no transfer, no new
// snapshot. Returns the snapshots deleted.
func (a *App) Prune(ctx context.Context, profileName string) ([]snapback.Snapshot, error) {
	p, err := a.profile(profileName)
	if err != nil {
		return nil, err
	}
	svc, err := a.serviceFor(p)
	if err != nil {
		return nil, err
	}
	return svc.Prune(ctx)
}

// Remove deletes a single named snapshot from the profile's repository.
func (a *App) Remove(ctx context.Context, profileName, snapshotName string) error {
	p, err := a.profile(profileName)
	if err != nil {
		return err
	}
	svc, err := a.serviceFor(p)
	if err != nil {
		return err
	}
	return svc.Remove(ctx, snapshotName)
}

// History returns the most recent journal entries, newest first.
func (a *App) History(limit int) ([]*journal.CycleRecord, error) {
	return a.journal.ListCycles(limit)
}

// Close closes the journal and the log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.journal.Close(); err != nil {
		firstErr = errors.Wrap(err, "closing journal")
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
