// Package poller tracks a remote generation job until it succeeds, fails or
// disappears. A Poller owns at most one ticker at a time; Start and Stop are
// its only mutators.
package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"videoclient/internal/domain"
	"videoclient/internal/infra"
)

// DefaultInterval is the period between two status reads.
const DefaultInterval = 2 * time.Second

// Fetcher reads the current state of a job. *api.Client satisfies it.
type Fetcher interface {
	VideoResult(ctx context.Context, id string) (*domain.Envelope[domain.Job], error)
}

// Ticker is the part of *time.Ticker the poller uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker wraps time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Phase is the poller state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePolling
	PhaseSucceeded
	PhaseFailed
	PhaseNotFound
	// PhaseStopped is entered when a run is stopped before reaching a
	// terminal job state.
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePolling:
		return "polling"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	case PhaseNotFound:
		return "not_found"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Terminal reports whether the phase ends a run on its own.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed || p == PhaseNotFound
}

// Snapshot is the observable state of a poller.
type Snapshot struct {
	JobID string
	Phase Phase
	Job   *domain.Job
	Err   error
}

// Options configures a Poller.
type Options struct {
	Fetcher  Fetcher
	Interval time.Duration
	Logger   *infra.Logger
	// OnChange receives every published snapshot. It runs on the polling
	// goroutine, or on the caller's goroutine for Stop.
	OnChange  func(Snapshot)
	NewTicker func(time.Duration) Ticker
}

// Poller is the job polling state machine.
type Poller struct {
	fetcher   Fetcher
	interval  time.Duration
	logger    *infra.Logger
	onChange  func(Snapshot)
	newTicker func(time.Duration) Ticker

	mu     sync.Mutex
	gen    uint64
	snap   Snapshot
	ticker Ticker
	cancel context.CancelFunc
	done   chan struct{}
}

// New validates opts and returns an idle poller.
func New(opts Options) (*Poller, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("poller: fetcher is required")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	newTicker := opts.NewTicker
	if newTicker == nil {
		newTicker = NewTimeTicker
	}
	done := make(chan struct{})
	close(done)
	return &Poller{
		fetcher:   opts.Fetcher,
		interval:  interval,
		logger:    infra.LoggerOrDiscard(opts.Logger),
		onChange:  opts.OnChange,
		newTicker: newTicker,
		done:      done,
	}, nil
}

// Start begins polling jobID. A run in progress is stopped first, so the
// poller never holds more than one ticker. Cancelling ctx stops the run.
func (p *Poller) Start(ctx context.Context, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return errors.New("poller: job id is required")
	}

	p.mu.Lock()
	var previous chan struct{}
	if p.ticker != nil {
		previous = p.endLocked(PhaseStopped)
	}
	p.gen++
	gen := p.gen
	runCtx, cancel := context.WithCancel(ctx)
	ticker := p.newTicker(p.interval)
	p.ticker = ticker
	p.cancel = cancel
	p.done = make(chan struct{})
	p.snap = Snapshot{JobID: jobID, Phase: PhasePolling}
	snap := p.snapshotLocked()
	p.mu.Unlock()
	if previous != nil {
		close(previous)
	}

	p.logger.Info().Str("job_id", jobID).Dur("interval", p.interval).Msg("poller: started")
	p.notify(snap)
	go p.run(runCtx, gen, jobID, ticker)
	return nil
}

// Stop releases the ticker before returning. It is safe to call at any time
// and any number of times; a fetch still in flight is discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return
	}
	p.gen++
	done := p.endLocked(PhaseStopped)
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.logger.Info().Str("job_id", snap.JobID).Msg("poller: stopped")
	p.notify(snap)
	close(done)
}

// Snapshot returns a copy of the current state.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Active reports whether a ticker is held.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ticker != nil
}

// Done returns a channel closed when the current run ends. It is already
// closed while no run is active.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Wait blocks until the current run ends or ctx is done and returns the
// final snapshot.
func (p *Poller) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-p.Done():
		return p.Snapshot(), nil
	case <-ctx.Done():
		return p.Snapshot(), ctx.Err()
	}
}

func (p *Poller) run(ctx context.Context, gen uint64, jobID string, ticker Ticker) {
	for {
		select {
		case <-ctx.Done():
			p.abandon(gen)
			return
		case <-ticker.C():
			if !p.tick(ctx, gen, jobID) {
				return
			}
		}
	}
}

// abandon ends a run whose context was cancelled by its owner.
func (p *Poller) abandon(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || p.ticker == nil {
		p.mu.Unlock()
		return
	}
	p.gen++
	done := p.endLocked(PhaseStopped)
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.logger.Info().Str("job_id", snap.JobID).Msg("poller: context cancelled")
	p.notify(snap)
	close(done)
}

// tick performs one status read and reports whether the run continues.
func (p *Poller) tick(ctx context.Context, gen uint64, jobID string) bool {
	env, err := p.fetcher.VideoResult(ctx, jobID)

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return false
	}
	var done chan struct{}
	switch {
	case err != nil && errors.Is(err, domain.ErrSessionExpired):
		p.snap.Err = err
		done = p.endLocked(PhaseFailed)
	case err != nil || env == nil:
		p.mu.Unlock()
		p.logger.Warn().Err(err).Str("job_id", jobID).Msg("poller: status read failed, retrying on next tick")
		return true
	case env.Code == domain.CodeJobNotFound:
		p.snap.Err = fmt.Errorf("poller: job %s: %w", jobID, domain.ErrJobNotFound)
		done = p.endLocked(PhaseNotFound)
	case !env.OK():
		p.mu.Unlock()
		p.logger.Warn().Int("code", env.Code).Str("msg", env.Message).Str("job_id", jobID).Msg("poller: status read rejected")
		return true
	default:
		done = p.publishLocked(env.Data)
	}
	snap := p.snapshotLocked()
	p.mu.Unlock()

	if done != nil {
		p.logger.Info().
			AnErr("reason", snap.Err).
			Str("job_id", jobID).
			Str("phase", snap.Phase.String()).
			Msg("poller: finished")
	}
	p.notify(snap)
	if done != nil {
		close(done)
		return false
	}
	return true
}

// publishLocked stores job and returns the run's done channel when job is
// terminal.
func (p *Poller) publishLocked(job domain.Job) chan struct{} {
	job = job.Clone()
	p.snap.Job = &job
	switch job.Status {
	case domain.JobStatusSucceeded:
		if len(job.Results) == 0 {
			p.snap.Err = fmt.Errorf("poller: job %s: %w", job.ID, domain.ErrEmptyResult)
			return p.endLocked(PhaseFailed)
		}
		return p.endLocked(PhaseSucceeded)
	case domain.JobStatusFailed:
		p.snap.Err = fmt.Errorf("poller: job %s: %w: %s", job.ID, domain.ErrJobFailed, job.Error)
		return p.endLocked(PhaseFailed)
	}
	return nil
}

// endLocked releases the ticker and returns the done channel of the run. The
// caller closes it after unlocking and notifying, so Done never fires before
// the last snapshot was delivered. Callers hold mu and have checked that a
// run is active.
func (p *Poller) endLocked(phase Phase) chan struct{} {
	p.ticker.Stop()
	p.ticker = nil
	p.cancel()
	p.cancel = nil
	p.snap.Phase = phase
	return p.done
}

func (p *Poller) snapshotLocked() Snapshot {
	snap := p.snap
	if snap.Job != nil {
		job := snap.Job.Clone()
		snap.Job = &job
	}
	return snap
}

func (p *Poller) notify(snap Snapshot) {
	if p.onChange != nil {
		p.onChange(snap)
	}
}
