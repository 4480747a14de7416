// Package sched runs the ingestion pipeline on a schedule: at fixed
// local wall-clock times for normal operation, or on a short fixed
// interval for verifying a deployment.
package sched

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tmori/mailsift/internal/model"
	"github.com/tmori/mailsift/internal/pipeline"
)

// RunFunc executes one ingestion run.
type RunFunc func(ctx context.Context) (pipeline.Result, error)

// runTimeout bounds a single scheduled run.
const runTimeout = 10 * time.Minute

// Poller triggers pipeline runs according to the schedule configuration.
type Poller struct {
	run      RunFunc
	times    []string
	interval time.Duration
	logger   zerolog.Logger

	triggerCh chan struct{}
	stopCh    chan struct{}

	mu      sync.Mutex
	running bool
	lastRun time.Time
	lastErr error
}

// New creates a poller. When cfg.IntervalSec is set the poller runs on
// that fixed interval; otherwise it runs at each configured local time.
func New(run RunFunc, cfg model.ScheduleConfig, logger zerolog.Logger) *Poller {
	return &Poller{
		run:       run,
		times:     append([]string(nil), cfg.Times...),
		interval:  time.Duration(cfg.IntervalSec) * time.Second,
		logger:    logger,
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the polling goroutine. Calling Start twice is a no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	go p.loop()
}

// Stop halts the polling goroutine. A run already in flight finishes.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	close(p.stopCh)
	p.running = false
}

// TriggerNow requests an immediate run without waiting for the schedule.
func (p *Poller) TriggerNow() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
		// A trigger is already pending; one run covers both.
	}
}

// LastRun returns when the last run finished and its error, if any.
func (p *Poller) LastRun() (time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRun, p.lastErr
}

// loop waits for the next scheduled slot, a manual trigger, or Stop.
func (p *Poller) loop() {
	for {
		timer := time.NewTimer(p.untilNext(time.Now()))

		select {
		case <-p.stopCh:
			timer.Stop()
			return
		case <-p.triggerCh:
			timer.Stop()
			p.runOnce()
		case <-timer.C:
			p.runOnce()
		}
	}
}

// untilNext computes the wait before the next scheduled run.
func (p *Poller) untilNext(now time.Time) time.Duration {
	if p.interval > 0 {
		return p.interval
	}
	next := nextRunAt(now, p.times)
	return next.Sub(now)
}

// runOnce executes a single run with a bounded context and records the
// outcome. A failed run never stops the schedule.
func (p *Poller) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	res, err := p.run(ctx)

	p.mu.Lock()
	p.lastRun = time.Now()
	p.lastErr = err
	p.mu.Unlock()

	if err != nil {
		p.logger.Error().Err(err).Msg("scheduled run failed")
		return
	}
	p.logger.Info().
		Int("archived", res.Archived).
		Int("excluded", res.Excluded).
		Int("skipped", res.Skipped).
		Msg("scheduled run finished")
}

// nextRunAt returns the earliest configured wall-clock time after now,
// rolling over to the first slot tomorrow when today's slots are spent.
// With no valid slots configured it falls back to one hour from now.
func nextRunAt(now time.Time, times []string) time.Time {
	var next time.Time

	for _, entry := range times {
		t, err := time.ParseInLocation("15:04", entry, now.Location())
		if err != nil {
			continue
		}
		candidate := time.Date(now.Year(), now.Month(), now.Day(),
			t.Hour(), t.Minute(), 0, 0, now.Location())
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		if next.IsZero() || candidate.Before(next) {
			next = candidate
		}
	}

	if next.IsZero() {
		return now.Add(time.Hour)
	}
	return next
}
