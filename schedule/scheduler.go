// Package schedule drives the engagement cycle and dedupe store maintenance on two independent timers.
//
// Cycles fire immediately on start and then every CycleInterval, measured from trigger start. A tick that fires while the previous cycle is still running is dropped, never queued or interleaved. Maintenance fires every ResetInterval regardless of cycle state: it wipes a volatile store, and prunes a durable store when a retention window is configured.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bolhadev/engagebot/dedupe"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
)

const (
	DefaultCycleInterval = 25 * time.Minute
	DefaultResetInterval = time.Hour
)

var ticksSkipped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "engagebot_cycle_ticks_skipped_total",
	Help: "Number of cycle ticks dropped because a cycle was still running",
})

var maintenanceRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "engagebot_maintenance_total",
	Help: "Number of dedupe store maintenance operations, by operation and outcome",
}, []string{"op", "result"})

// One engagement cycle. Errors are logged by the scheduler and never stop it.
type CycleFunc func(ctx context.Context) error

type Config struct {
	CycleInterval time.Duration
	ResetInterval time.Duration

	// Durable stores supporting pruning drop entries older than this on each maintenance tick. Zero never evicts.
	Retention time.Duration

	Logger *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		CycleInterval: DefaultCycleInterval,
		ResetInterval: DefaultResetInterval,
	}
}

type Scheduler struct {
	config Config
	store  dedupe.Store
	run    CycleFunc
	logger *slog.Logger

	cron       *cron.Cron
	cycleJob   cron.Job
	cycleEntry cron.EntryID

	// base context handed to jobs; canceled at shutdown
	ctx context.Context
	wg  sync.WaitGroup
}

func New(run CycleFunc, store dedupe.Store, config Config) (*Scheduler, error) {
	if run == nil {
		return nil, fmt.Errorf("nil cycle function")
	}
	if config.CycleInterval < time.Second {
		return nil, fmt.Errorf("cycle interval must be at least one second: %s", config.CycleInterval)
	}
	if config.ResetInterval < time.Second {
		return nil, fmt.Errorf("reset interval must be at least one second: %s", config.ResetInterval)
	}
	if config.Retention < 0 {
		return nil, fmt.Errorf("negative retention: %s", config.Retention)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")
	cl := &cronLogger{logger: logger}

	s := &Scheduler{
		config: config,
		store:  store,
		run:    run,
		logger: logger,
		cron:   cron.New(cron.WithLogger(cl)),
		ctx:    context.Background(),
	}
	// the same wrapped job serves the immediate first run and every tick, so they share one guard.
	// Recover must sit inside the guard: SkipIfStillRunning only returns its token when the inner job returns normally.
	s.cycleJob = cron.NewChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)).Then(cron.FuncJob(s.runCycle))
	return s, nil
}

func (s *Scheduler) runCycle() {
	start := time.Now()
	if err := s.run(s.ctx); err != nil {
		s.logger.Error("engagement cycle failed, will retry next tick", "err", err, "duration", time.Since(start).String())
	}
}

// True when maintenance has anything to do for this store.
func (s *Scheduler) needsMaintenance() bool {
	if _, ok := s.store.(dedupe.Resetter); ok {
		return true
	}
	if _, ok := s.store.(dedupe.Pruner); ok && s.config.Retention > 0 {
		return true
	}
	return false
}

// Registers both triggers, starts the timers, and kicks off the first cycle without waiting for a tick. Jobs receive ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cycleEntry = s.cron.Schedule(cron.Every(s.config.CycleInterval), s.cycleJob)

	if s.needsMaintenance() {
		cl := &cronLogger{logger: s.logger}
		maint := cron.NewChain(cron.Recover(cl)).Then(cron.FuncJob(func() { s.Maintain(s.ctx) }))
		s.cron.Schedule(cron.Every(s.config.ResetInterval), maint)
		s.logger.Info("dedupe maintenance scheduled", "interval", s.config.ResetInterval.String(), "retention", s.config.Retention.String())
	} else {
		s.logger.Info("durable dedupe store without retention, no maintenance scheduled")
	}

	s.logger.Info("scheduler starting", "cycleInterval", s.config.CycleInterval.String())
	s.cron.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.cycleJob.Run()
	}()
}

// Stops both timers and waits for any running cycle or maintenance to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("scheduler stopping")
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// Time of the next cycle tick; zero if not started.
func (s *Scheduler) NextCycle() time.Time {
	if s.cycleEntry == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.cycleEntry).Next
}

// Runs one maintenance pass: reset a volatile store, prune a durable one if retention is configured.
func (s *Scheduler) Maintain(ctx context.Context) {
	if r, ok := s.store.(dedupe.Resetter); ok {
		if err := r.Reset(ctx); err != nil {
			maintenanceRuns.WithLabelValues("reset", "error").Inc()
			s.logger.Error("failed to reset dedupe store", "err", err)
		} else {
			maintenanceRuns.WithLabelValues("reset", "ok").Inc()
			s.logger.Info("dedupe store reset; previously processed items are eligible again")
		}
	}

	if s.config.Retention <= 0 {
		return
	}
	if p, ok := s.store.(dedupe.Pruner); ok {
		n, err := p.Prune(ctx, s.config.Retention)
		if err != nil {
			maintenanceRuns.WithLabelValues("prune", "error").Inc()
			s.logger.Error("failed to prune dedupe store", "err", err)
			return
		}
		maintenanceRuns.WithLabelValues("prune", "ok").Inc()
		s.logger.Info("pruned dedupe store", "removed", n, "olderThan", s.config.Retention.String())
	}
}
