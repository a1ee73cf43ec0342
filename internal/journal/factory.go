package journal

import (
	"path/filepath"

	"github.com/cockroachdb/errors"

	"snapback/internal/config"
)

// NewFromConfig creates a Journal implementation based on the journal config type.
func NewFromConfig(cfg config.JournalConfig) (Journal, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, errors.New("data_dir required for sqlite journal")
		}
		return NewSQLiteJournal(filepath.Join(cfg.DataDir, "journal.db"))
	case "memory":
		return NewSQLiteJournal(":memory:")
	default:
		return nil, errors.Newf("unknown journal type: %s", cfg.Type)
	}
}
