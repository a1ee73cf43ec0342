package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SyncCall records one StubTransfer invocation.
type SyncCall struct {
	Source   string
	Dest     string
	LinkDest string
}

// StubTransfer is a scripted Transfer. Sources listed in Errs fail with the
// given error; every other source succeeds and drops a marker file into the
// destination so the mirror is never empty.
type StubTransfer struct {
	mu    sync.Mutex
	Errs  map[string]error
	Calls []SyncCall
}

func NewStubTransfer() *StubTransfer {
	return &StubTransfer{Errs: make(map[string]error)}
}

// FailSource makes the given source fail with err.
func (t *StubTransfer) FailSource(source string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Errs[source] = err
}

func (t *StubTransfer) Sync(_ context.Context, source, dest, linkDest string) error {
	t.mu.Lock()
	t.Calls = append(t.Calls, SyncCall{Source: source, Dest: dest, LinkDest: linkDest})
	err := t.Errs[source]
	t.mu.Unlock()

	if err != nil {
		return err
	}

	marker := "data-" + strings.ReplaceAll(strings.Trim(source, "/"), "/", "-")
	return os.WriteFile(filepath.Join(dest, marker), []byte(source+"\n"), 0644)
}

// CallsFor returns the recorded calls for one source.
func (t *StubTransfer) CallsFor(source string) []SyncCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []SyncCall
	for _, c := range t.Calls {
		if c.Source == source {
			out = append(out, c)
		}
	}
	return out
}
