// Package journal records backup cycle history in a local SQLite database.
// Every cycle gets a row: when it ran, what snapshot it committed, how many
// snapshots retention deleted, and how it ended.
package journal

import (
	"database/sql"
	"time"
)

// Journal is the audit trail of backup cycles.
type Journal interface {
	// StartCycle records a cycle beginning and returns its row ID.
	StartCycle(cycleID, profile string, startedAt time.Time) (int64, error)
	// FinishCycle completes a cycle row with its outcome.
	FinishCycle(id int64, outcome Outcome) error
	// ListCycles returns the most recent cycles, newest first.
	ListCycles(limit int) ([]*CycleRecord, error)
	Close() error
}

// Outcome is what a finished cycle reports back to the journal.
type Outcome struct {
	Status     string // "success" or "error"
	Snapshot   string // name of the committed snapshot, if any
	Tier       string
	Pruned     int
	Error      string // fatal or prune error text, if any
	FinishedAt time.Time
}

// CycleRecord is one journal row.
type CycleRecord struct {
	ID         int64
	CycleID    string
	Profile    string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Status     string
	Snapshot   string
	Tier       string
	Pruned     int64
	Error      string
}
