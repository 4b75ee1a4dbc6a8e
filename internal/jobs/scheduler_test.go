package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEnqueuer struct {
	calls int
	err   error
}

func (c *countingEnqueuer) EnqueueCleanup(context.Context) error {
	c.calls++
	return c.err
}

type recordingSweeper struct {
	cutoffs []time.Time
}

func (r *recordingSweeper) Sweep(cutoff time.Time) int {
	r.cutoffs = append(r.cutoffs, cutoff)
	return 2
}

func TestSchedulerJobs(t *testing.T) {
	enq := &countingEnqueuer{err: errors.New("redis down")}
	sweeper := &recordingSweeper{}
	buffers := Sweep{Name: "capture buffers", Target: sweeper, TTL: 15 * time.Minute}
	s := NewScheduler(enq, zerolog.Nop(), buffers)

	s.EnqueueCleanup()
	assert.Equal(t, 1, enq.calls)

	before := time.Now()
	s.RunSweep(buffers)
	require.Len(t, sweeper.cutoffs, 1)
	assert.WithinDuration(t, before.Add(-15*time.Minute), sweeper.cutoffs[0], time.Second)
}

func TestSchedulerStartStop(t *testing.T) {
	s := NewScheduler(&countingEnqueuer{}, zerolog.Nop(),
		Sweep{Name: "capture buffers", Target: &recordingSweeper{}, TTL: time.Minute},
		Sweep{Name: "theme stores", Target: &recordingSweeper{}, TTL: time.Hour},
		Sweep{Name: "disabled", Target: &recordingSweeper{}},
	)
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 3)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
