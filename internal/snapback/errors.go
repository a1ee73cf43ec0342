package snapback

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Category classifies fatal conditions for the operator boundary.
type Category string

const (
	// CategoryConfig covers invalid or missing profile configuration,
	// detected before any mutation.
	CategoryConfig Category = "config"
	// CategoryPrecondition covers repository preconditions: wrong backend,
	// cross-device trash bin, mismatched timestamp format.
	CategoryPrecondition Category = "precondition"
	// CategoryTransfer covers cycles where every source failed to sync.
	CategoryTransfer Category = "transfer"
	// CategoryBackend covers failed backend primitives (create volume,
	// snapshot, delete).
	CategoryBackend Category = "backend"
	// CategoryPrune covers per-snapshot deletion failures collected during
	// pruning. Prune errors do not abort a cycle that already committed.
	CategoryPrune Category = "prune"
)

// Error attaches a category and the offending path or profile to an
// underlying error. All fatal conditions crossing the operator boundary are
// wrapped in one of these.
type Error struct {
	Category Category
	Path     string
	Err      error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Category, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Category, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a category and offending path.
func NewError(category Category, path string, err error) *Error {
	return &Error{Category: category, Path: path, Err: err}
}

// CategoryOf returns the category of err, or "" if err carries none.
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}
