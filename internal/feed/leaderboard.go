package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sujalbistaa/karmafeed/internal/metrics"
	"github.com/sujalbistaa/karmafeed/internal/models"
)

// DefaultLeaderboardInterval is the periodic refresh interval.
const DefaultLeaderboardInterval = 30 * time.Second

// LeaderboardSource fetches the current ranked snapshot.
type LeaderboardSource func(ctx context.Context) (models.Leaderboard, error)

// Trigger names why a refresh ran.
type Trigger string

const (
	TriggerMount  Trigger = "mount"
	TriggerTimer  Trigger = "timer"
	TriggerKarma  Trigger = "karma"
	TriggerManual Trigger = "manual"
)

// LeaderboardState is the snapshot plus its refresh status. Err holds the
// last refresh failure and is cleared by the next success; Entries and
// UpdatedAt always describe the last successful refresh.
type LeaderboardState struct {
	Entries   []models.LeaderboardEntry `json:"leaderboard"`
	Period    string                    `json:"period,omitempty"`
	UpdatedAt time.Time                 `json:"updated_at"`
	Loading   bool                      `json:"loading"`
	Err       error                     `json:"-"`
}

// Refresher keeps one leaderboard snapshot fresh: on Start, every
// interval while started, on each karma-change Signal, and on demand.
//
// Overlapping refreshes are not deduplicated or ordered; whichever
// response resolves last overwrites the snapshot.
type Refresher struct {
	source   LeaderboardSource
	interval time.Duration
	logger   *slog.Logger

	mu       sync.RWMutex
	board    models.Leaderboard
	inflight int
	err      error

	lifeMu   sync.Mutex
	base     context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	stopped  bool
	signals  sync.WaitGroup
}

func NewRefresher(source LeaderboardSource, interval time.Duration, logger *slog.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultLeaderboardInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{source: source, interval: interval, logger: logger}
}

// Start performs the initial refresh in the background and starts the
// periodic timer. The timer runs until Stop or until ctx is done.
func (r *Refresher) Start(ctx context.Context) error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	if r.cancel != nil {
		return fmt.Errorf("leaderboard refresher is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.base = ctx
	r.cancel = cancel
	r.stopped = false
	r.loopDone = make(chan struct{})

	r.logger.Info("leaderboard refresher starting", "interval", r.interval.String())
	go r.loop(ctx, r.loopDone)
	return nil
}

func (r *Refresher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	r.refresh(ctx, TriggerMount)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Failures do not stop the timer.
			r.refresh(ctx, TriggerTimer)
		}
	}
}

// Stop cancels the timer and waits for it and for signal-driven
// refreshes to finish. Signals received after Stop are dropped.
func (r *Refresher) Stop() {
	r.lifeMu.Lock()
	cancel, done := r.cancel, r.loopDone
	r.cancel, r.base, r.loopDone = nil, nil, nil
	r.stopped = true
	r.lifeMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		r.logger.Info("leaderboard refresher stopped")
	}
	r.signals.Wait()
}

// Signal reports a karma-changing event. Each signal starts one
// independent refresh.
func (r *Refresher) Signal() {
	r.lifeMu.Lock()
	if r.stopped {
		r.lifeMu.Unlock()
		return
	}
	ctx := r.base
	if ctx == nil {
		ctx = context.Background()
	}
	r.signals.Add(1)
	r.lifeMu.Unlock()

	go func() {
		defer r.signals.Done()
		r.refresh(ctx, TriggerKarma)
	}()
}

// Wait blocks until signal-driven refreshes started so far are done.
func (r *Refresher) Wait() {
	r.signals.Wait()
}

// Refresh fetches the leaderboard now; it is the manual retry path.
func (r *Refresher) Refresh(ctx context.Context) error {
	return r.refresh(ctx, TriggerManual)
}

func (r *Refresher) refresh(ctx context.Context, trigger Trigger) error {
	r.mu.Lock()
	r.inflight++
	r.mu.Unlock()

	board, err := r.source(ctx)

	r.mu.Lock()
	r.inflight--
	switch {
	case err == nil:
		r.board = board
		r.err = nil
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// Torn down mid-flight; not a refresh failure.
	default:
		r.err = err
	}
	r.mu.Unlock()

	metrics.LeaderboardRefreshesTotal.WithLabelValues(string(trigger), metrics.Status(err)).Inc()
	if err != nil {
		r.logger.Error("error loading leaderboard", "trigger", string(trigger), "error", err)
	}
	return err
}

func (r *Refresher) State() LeaderboardState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]models.LeaderboardEntry, len(r.board.Entries))
	copy(entries, r.board.Entries)
	return LeaderboardState{
		Entries:   entries,
		Period:    r.board.Period,
		UpdatedAt: r.board.UpdatedAt,
		Loading:   r.inflight > 0,
		Err:       r.err,
	}
}
