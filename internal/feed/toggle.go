package feed

import (
	"context"
	"log/slog"
	"sync"
)

// LikeState is the part of a post or comment an optimistic toggle owns.
type LikeState struct {
	Count int
	Liked bool
}

// Accessor reads and writes the like state of one target. Load reports
// false when the target is not (or no longer) held locally.
type Accessor interface {
	Load() (LikeState, bool)
	Store(LikeState)
}

// AccessorFuncs adapts a pair of functions to Accessor.
type AccessorFuncs struct {
	LoadFunc  func() (LikeState, bool)
	StoreFunc func(LikeState)
}

func (a AccessorFuncs) Load() (LikeState, bool) { return a.LoadFunc() }
func (a AccessorFuncs) Store(s LikeState)       { a.StoreFunc(s) }

// RemoteToggle performs the remote like (like=true) or unlike call and
// returns the authoritative like count.
type RemoteToggle func(ctx context.Context, like bool) (int, error)

// Outcome of a toggle attempt.
type Outcome string

const (
	// OutcomeSkipped: a toggle for the same target was already in flight,
	// or the target is not held locally. No remote call was made.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeCommitted: the remote call succeeded and the server count
	// was applied.
	OutcomeCommitted Outcome = "committed"
	// OutcomeRolledBack: the remote call failed and the pre-toggle state
	// was restored.
	OutcomeRolledBack Outcome = "rolled_back"
)

// Toggler applies like/unlike toggles optimistically, at most one in
// flight per key. It is shared by posts and comments; keys must be
// unique across both.
type Toggler struct {
	mu       sync.Mutex
	inflight map[string]struct{}
	onCommit func(key string)
	logger   *slog.Logger
}

// NewToggler returns a Toggler. onCommit, if non-nil, runs after every
// committed toggle.
func NewToggler(onCommit func(key string), logger *slog.Logger) *Toggler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Toggler{
		inflight: make(map[string]struct{}),
		onCommit: onCommit,
		logger:   logger,
	}
}

// InFlight reports whether a toggle for key is outstanding.
func (t *Toggler) InFlight(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.inflight[key]
	return ok
}

// Toggle flips the liked state of the target held by acc, issues the
// matching remote call, then either applies the server count or restores
// the snapshot. The returned error is the remote failure on rollback.
func (t *Toggler) Toggle(ctx context.Context, key string, acc Accessor, remote RemoteToggle) (Outcome, LikeState, error) {
	t.mu.Lock()
	if _, busy := t.inflight[key]; busy {
		t.mu.Unlock()
		return OutcomeSkipped, LikeState{}, nil
	}
	t.inflight[key] = struct{}{}
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.inflight, key)
		t.mu.Unlock()
	}()

	snapshot, ok := acc.Load()
	if !ok {
		return OutcomeSkipped, LikeState{}, nil
	}

	optimistic := LikeState{Liked: !snapshot.Liked, Count: snapshot.Count + 1}
	if snapshot.Liked {
		optimistic.Count = max(snapshot.Count-1, 0)
	}
	acc.Store(optimistic)

	count, err := remote(ctx, optimistic.Liked)
	if err != nil {
		acc.Store(snapshot)
		t.logger.Warn("like toggle rolled back", "target", key, "liked", snapshot.Liked, "error", err)
		return OutcomeRolledBack, snapshot, err
	}

	committed := LikeState{Count: count, Liked: optimistic.Liked}
	acc.Store(committed)
	if t.onCommit != nil {
		t.onCommit(key)
	}
	return OutcomeCommitted, committed, nil
}
