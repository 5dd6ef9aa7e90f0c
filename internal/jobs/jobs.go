// Package jobs runs the periodic background work: re-matching sessions that are still
// unattributed and replaying dead-lettered outbox events.
package jobs

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/robfig/cron"

	"example.com/coach/internal/attribution"
)

// Sweeper re-matches pending sessions.
type Sweeper interface {
	SweepPending(ctx context.Context, since time.Time, limit int) (attribution.SweepReport, error)
}

// Replayer retries dead-lettered outbox events.
type Replayer interface {
	RunOnce(ctx context.Context, batchSize int) (int, error)
}

// Options configures the Runner.
type Options struct {
	SweepLookback  time.Duration
	SweepBatchSize int
	DLQBatchSize   int
	JobTimeout     time.Duration
}

// Runner executes each job at most once at a time; a tick that fires while the previous
// run is still going is skipped.
type Runner struct {
	sweeper  Sweeper
	replayer Replayer
	opts     Options
	logger   *log.Logger
	now      func() time.Time

	sweeping  atomic.Bool
	replaying atomic.Bool
}

// NewRunner constructs a Runner. replayer may be nil when there is no outbox.
func NewRunner(sweeper Sweeper, replayer Replayer, opts Options, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(log.Writer(), "[jobs] ", log.LstdFlags|log.Lshortfile)
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 5 * time.Minute
	}
	return &Runner{sweeper: sweeper, replayer: replayer, opts: opts, logger: logger, now: time.Now}
}

// Sweep runs one pending-session sweep. It returns false when a sweep was already running.
func (r *Runner) Sweep(ctx context.Context) bool {
	if !r.sweeping.CompareAndSwap(false, true) {
		r.logger.Printf("sweep skipped: previous run still active")
		return false
	}
	defer r.sweeping.Store(false)

	ctx, cancel := context.WithTimeout(ctx, r.opts.JobTimeout)
	defer cancel()

	since := r.now().UTC().Add(-r.opts.SweepLookback)
	report, err := r.sweeper.SweepPending(ctx, since, r.opts.SweepBatchSize)
	if err != nil {
		r.logger.Printf("sweep finished with errors (scanned=%d updated=%d): %v", report.Scanned, len(report.Updated), err)
		return true
	}
	if report.Scanned > 0 {
		r.logger.Printf("sweep scanned=%d updated=%d skipped=%d", report.Scanned, len(report.Updated), report.Skipped)
	}
	return true
}

// Replay runs one DLQ replay pass. It returns false when skipped.
func (r *Runner) Replay(ctx context.Context) bool {
	if r.replayer == nil {
		return false
	}
	if !r.replaying.CompareAndSwap(false, true) {
		r.logger.Printf("dlq replay skipped: previous run still active")
		return false
	}
	defer r.replaying.Store(false)

	ctx, cancel := context.WithTimeout(ctx, r.opts.JobTimeout)
	defer cancel()

	processed, err := r.replayer.RunOnce(ctx, r.opts.DLQBatchSize)
	if err != nil {
		r.logger.Printf("dlq manager error: %v", err)
	} else if processed > 0 {
		r.logger.Printf("dlq manager processed %d entries", processed)
	}
	return true
}

// Schedule registers the jobs on c. An empty schedule leaves that job unscheduled.
func (r *Runner) Schedule(ctx context.Context, c *cron.Cron, sweepSchedule, dlqSchedule string) error {
	if sweepSchedule != "" {
		if err := c.AddFunc(sweepSchedule, func() { r.Sweep(ctx) }); err != nil {
			return err
		}
	}
	if dlqSchedule != "" && r.replayer != nil {
		if err := c.AddFunc(dlqSchedule, func() { r.Replay(ctx) }); err != nil {
			return err
		}
	}
	return nil
}
