package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// EverySpec is the cron cadence of the evaluation pass.
const EverySpec = "* * * * *"

// Runner drives an Evaluator once a minute. Ticks never overlap; a tick
// that finds the previous one still running is skipped.
type Runner struct {
	eval    *Evaluator
	cron    *cron.Cron
	lg      *slog.Logger
	now     func() time.Time
	timeout time.Duration
	running atomic.Bool
	startup sync.WaitGroup
}

// NewRunner creates a new Runner for eval on the evaluator's location.
func NewRunner(eval *Evaluator, lg *slog.Logger) *Runner {
	if lg == nil {
		lg = slog.New(slog.DiscardHandler)
	}
	lg = lg.With("component", "scheduler")
	return &Runner{
		eval: eval,
		cron: cron.New(
			cron.WithLocation(eval.loc),
			cron.WithChain(cron.Recover(cron.PrintfLogger(slog.NewLogLogger(lg.Handler(), slog.LevelError)))),
		),
		lg:      lg,
		now:     time.Now,
		timeout: 50 * time.Second,
	}
}

// Start evaluates once immediately and then on every minute.
func (r *Runner) Start() error {
	if _, err := r.cron.AddFunc(EverySpec, r.Tick); err != nil {
		return err
	}
	r.startup.Add(1)
	go func() {
		defer r.startup.Done()
		r.Tick()
	}()
	r.cron.Start()
	r.lg.Info("scheduler started", "spec", EverySpec, "location", r.eval.loc.String())
	return nil
}

// Stop halts the cadence and waits for running ticks, the startup pass
// included, to finish or ctx to end.
func (r *Runner) Stop(ctx context.Context) {
	cronDone := r.cron.Stop()
	done := make(chan struct{})
	go func() {
		r.startup.Wait()
		<-cronDone.Done()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		r.lg.Warn("scheduler stop timed out with a pass still running")
	}
	r.lg.Info("scheduler stopped")
}

// Tick runs one evaluation pass unless one is already in flight.
func (r *Runner) Tick() {
	if !r.running.CompareAndSwap(false, true) {
		r.lg.Warn("previous evaluation still running, tick skipped")
		return
	}
	defer r.running.Store(false)
	defer func() {
		if rec := recover(); rec != nil {
			r.lg.Error("evaluation panicked", "panic", rec)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	res, err := r.eval.Evaluate(ctx, r.now())
	if err != nil {
		r.lg.Error("evaluation skipped", "error", err)
		return
	}
	if res.Issued > 0 || res.Failed > 0 {
		r.lg.Info("evaluation done", "evaluated", res.Evaluated, "issued", res.Issued, "skipped", res.Skipped, "failed", res.Failed)
	} else {
		r.lg.Debug("evaluation done", "evaluated", res.Evaluated)
	}
}
