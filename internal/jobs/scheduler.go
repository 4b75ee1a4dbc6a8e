package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type CleanupEnqueuer interface {
	EnqueueCleanup(ctx context.Context) error
}

// Sweeper drops per-client state older than cutoff.
type Sweeper interface {
	Sweep(cutoff time.Time) int
}

// Sweep evicts Target's entries idle for longer than TTL, once a minute.
type Sweep struct {
	Name   string
	Target Sweeper
	TTL    time.Duration
}

// Scheduler runs the dashboard's periodic housekeeping.
type Scheduler struct {
	cron    *cron.Cron
	cleanup CleanupEnqueuer
	sweeps  []Sweep
	log     zerolog.Logger
}

func NewScheduler(cleanup CleanupEnqueuer, log zerolog.Logger, sweeps ...Sweep) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:    c,
		cleanup: cleanup,
		sweeps:  sweeps,
		log:     log,
	}
}

func (s *Scheduler) Start() error {
	if s.cleanup != nil {
		if _, err := s.cron.AddFunc("0 0 3 * * *", s.EnqueueCleanup); err != nil {
			return err
		}
	}
	for _, sw := range s.sweeps {
		if sw.Target == nil || sw.TTL <= 0 {
			continue
		}
		if _, err := s.cron.AddFunc("@every 1m", func() { s.RunSweep(sw) }); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop waits for running jobs or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) EnqueueCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.cleanup.EnqueueCleanup(ctx); err != nil {
		s.log.Error().Err(err).Msg("enqueue cleanup failed")
	}
}

func (s *Scheduler) RunSweep(sw Sweep) {
	if removed := sw.Target.Sweep(time.Now().Add(-sw.TTL)); removed > 0 {
		s.log.Debug().Str("sweep", sw.Name).Int("removed", removed).Msg("stale entries swept")
	}
}
