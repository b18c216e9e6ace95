// Package failover rotates model calls across a pool of API credentials.
//
// Every call to the generative backend, whether a user-facing chat turn
// or a memory meta-task, goes through the Rotator: it tries credentials
// in round-robin order starting from a persisted cursor, advancing on
// any failure, and gives up only after one full pass over the pool.
// The cursor is sticky: once a credential works, subsequent calls start
// from it, so dead credentials are not retried first.
package failover

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ErrNoCredentials is returned when the pool is empty. No network call
// is attempted in that case.
var ErrNoCredentials = errors.New("no API keys configured")

// ExhaustedError reports that every credential in the pool failed for
// one task. It wraps the last per-credential error.
type ExhaustedError struct {
	Task string
	Last error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all API keys failed for %s", e.Task)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// IsExhausted reports whether err is a full-rotation exhaustion.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

// fatalError marks an error as non-retryable for rotation purposes.
type fatalError struct {
	err error
}

func (f *fatalError) Error() string { return f.err.Error() }
func (f *fatalError) Unwrap() error { return f.err }

// Fatal wraps err so the Rotator stops immediately instead of advancing
// to the next credential. Used when retrying cannot help, e.g. a stream
// that already delivered content before failing.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IndexStore persists the rotation cursor between calls and process
// restarts.
type IndexStore interface {
	RotationIndex() (int, error)
	SetRotationIndex(int) error
}

// Operation is one model invocation bound to a single credential.
type Operation func(ctx context.Context, apiKey string) error

// Rotator is the round-robin failover controller. A single instance is
// shared by every task in the process; the mutex serializes access to
// the shared cursor, so interleaved tasks cannot interleave their
// read-modify-write of the persisted index.
type Rotator struct {
	mu    sync.Mutex
	keys  []string
	store IndexStore
	log   zerolog.Logger
}

// New creates a Rotator over keys. The pool may be empty; Do reports
// ErrNoCredentials in that case.
func New(keys []string, store IndexStore, log zerolog.Logger) *Rotator {
	return &Rotator{keys: keys, store: store, log: log}
}

// SetKeys replaces the credential pool.
func (r *Rotator) SetKeys(keys []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = keys
}

// PoolSize returns the number of configured credentials.
func (r *Rotator) PoolSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

// Do runs op with each credential in rotation until one succeeds or the
// pool is exhausted. task names the caller for logs and the exhaustion
// error ("chat", "memory extraction", ...).
//
// Failure policy is deliberately uniform: any error from op advances the
// cursor, with no distinction between auth, rate-limit, and transient
// failures. The one exception is an error wrapped with Fatal, which
// stops the rotation without advancing. The cursor is persisted after
// every attempt, success or failure, so rotation state survives a
// restart mid-pass.
func (r *Rotator) Do(ctx context.Context, task string, op Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.keys) == 0 {
		return ErrNoCredentials
	}

	cursor, err := r.store.RotationIndex()
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to read rotation index, starting from 0")
		cursor = 0
	}
	if cursor < 0 || cursor >= len(r.keys) {
		cursor = 0
	}

	var lastErr error
	for attempt := 1; attempt <= len(r.keys); attempt++ {
		err := op(ctx, r.keys[cursor])
		if err == nil {
			if perr := r.store.SetRotationIndex(cursor); perr != nil {
				r.log.Warn().Err(perr).Msg("failed to persist rotation index")
			}
			r.log.Debug().Str("task", task).Int("key", cursor+1).Msg("API key succeeded")
			return nil
		}

		var fatal *fatalError
		if errors.As(err, &fatal) {
			if perr := r.store.SetRotationIndex(cursor); perr != nil {
				r.log.Warn().Err(perr).Msg("failed to persist rotation index")
			}
			return fatal.err
		}

		r.log.Warn().Str("task", task).Int("attempt", attempt).Int("key", cursor+1).
			Err(err).Msg("API key failed")
		lastErr = err

		// Persist the advanced cursor even mid-rotation, so the next
		// call skips this credential after a restart.
		cursor = (cursor + 1) % len(r.keys)
		if perr := r.store.SetRotationIndex(cursor); perr != nil {
			r.log.Warn().Err(perr).Msg("failed to persist rotation index")
		}
	}

	r.log.Error().Str("task", task).Msg("all API keys failed")
	return &ExhaustedError{Task: task, Last: lastErr}
}
