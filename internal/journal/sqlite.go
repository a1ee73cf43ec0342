package journal

import (
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"snapback/internal/journal/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteJournal implements Journal on a SQLite database.
type SQLiteJournal struct {
	db   *sql.DB
	path string
}

// NewSQLiteJournal opens (or creates) the journal database at path and runs
// any pending migrations. path can be ":memory:" for tests.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening journal database")
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enabling foreign keys")
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrating journal database")
	}
	return &SQLiteJournal{db: db, path: path}, nil
}

// Path returns the journal database file path (or ":memory:").
func (j *SQLiteJournal) Path() string { return j.path }

func (j *SQLiteJournal) StartCycle(cycleID, profile string, startedAt time.Time) (int64, error) {
	res, err := j.db.Exec(
		`INSERT INTO cycles (cycle_id, profile, started_at, status) VALUES (?, ?, ?, 'running')`,
		cycleID, profile, startedAt,
	)
	if err != nil {
		return 0, errors.Wrap(err, "recording cycle start")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "reading cycle row ID")
	}
	return id, nil
}

func (j *SQLiteJournal) FinishCycle(id int64, outcome Outcome) error {
	_, err := j.db.Exec(
		`UPDATE cycles
		 SET finished_at = ?, status = ?, snapshot = ?, tier = ?, pruned = ?, error = ?
		 WHERE id = ?`,
		outcome.FinishedAt, outcome.Status, outcome.Snapshot, outcome.Tier,
		outcome.Pruned, outcome.Error, id,
	)
	if err != nil {
		return errors.Wrap(err, "recording cycle outcome")
	}
	return nil
}

func (j *SQLiteJournal) ListCycles(limit int) ([]*CycleRecord, error) {
	rows, err := j.db.Query(
		`SELECT id, cycle_id, profile, started_at, finished_at, status, snapshot, tier, pruned, error
		 FROM cycles ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "listing cycles")
	}
	defer rows.Close()

	var records []*CycleRecord
	for rows.Next() {
		var r CycleRecord
		if err := rows.Scan(&r.ID, &r.CycleID, &r.Profile, &r.StartedAt, &r.FinishedAt,
			&r.Status, &r.Snapshot, &r.Tier, &r.Pruned, &r.Error); err != nil {
			return nil, errors.Wrap(err, "scanning cycle row")
		}
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "reading cycle rows")
	}
	return records, nil
}

// Close closes the database connection.
func (j *SQLiteJournal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteJournal implements Journal.
var _ Journal = (*SQLiteJournal)(nil)
