package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	log "github.com/sirupsen/logrus"
)

const flushTimeout = 10 * time.Second

// Flusher persists ledger accounts whose last write failed
type Flusher interface {
	Flush(ctx context.Context) error
}

// WagerPruner forgets resolved wager sessions
type WagerPruner interface {
	PruneResolved(olderThan time.Duration) int
}

// MatchPruner forgets finished matches
type MatchPruner interface {
	PruneFinished(olderThan time.Duration) int
}

// Config controls how often maintenance jobs run
type Config struct {
	FlushInterval     time.Duration
	PruneInterval     time.Duration
	WagerRetention    time.Duration
	FinishedRetention time.Duration
}

// Scheduler runs the periodic ledger flush and registry pruning
type Scheduler struct {
	sched   gocron.Scheduler
	ledger  Flusher
	wagers  WagerPruner
	matches MatchPruner
	cfg     Config
}

// New registers the maintenance jobs; they run once Start is called
func New(ledger Flusher, wagers WagerPruner, matches MatchPruner, cfg Config) (*Scheduler, error) {
	if cfg.FlushInterval <= 0 || cfg.PruneInterval <= 0 {
		return nil, fmt.Errorf("scheduler intervals must be positive")
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	s := &Scheduler{
		sched:   sched,
		ledger:  ledger,
		wagers:  wagers,
		matches: matches,
		cfg:     cfg,
	}

	jobs := []struct {
		name     string
		interval time.Duration
		task     func()
	}{
		{"ledger-flush", cfg.FlushInterval, s.flush},
		{"prune-wagers", cfg.PruneInterval, s.pruneWagers},
		{"prune-matches", cfg.PruneInterval, s.pruneMatches},
	}
	for _, job := range jobs {
		_, err := sched.NewJob(
			gocron.DurationJob(job.interval),
			gocron.NewTask(job.task),
			gocron.WithName(job.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = sched.Shutdown()
			return nil, fmt.Errorf("failed to schedule %s: %w", job.name, err)
		}
	}

	return s, nil
}

// Start begins running the jobs in the background
func (s *Scheduler) Start() {
	s.sched.Start()
	log.WithFields(log.Fields{
		"flushInterval": s.cfg.FlushInterval,
		"pruneInterval": s.cfg.PruneInterval,
	}).Info("Maintenance scheduler started")
}

// Shutdown stops the scheduler and waits for running jobs
func (s *Scheduler) Shutdown() error {
	if err := s.sched.Shutdown(); err != nil {
		return fmt.Errorf("failed to shut down scheduler: %w", err)
	}
	return nil
}

func (s *Scheduler) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := s.ledger.Flush(ctx); err != nil {
		log.WithError(err).Error("Periodic ledger flush failed")
	}
}

func (s *Scheduler) pruneWagers() {
	if n := s.wagers.PruneResolved(s.cfg.WagerRetention); n > 0 {
		log.WithField("pruned", n).Debug("Pruned resolved wager sessions")
	}
}

func (s *Scheduler) pruneMatches() {
	if n := s.matches.PruneFinished(s.cfg.FinishedRetention); n > 0 {
		log.WithField("pruned", n).Debug("Pruned finished matches")
	}
}
