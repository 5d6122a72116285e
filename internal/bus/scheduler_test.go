package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkden-lab/eventbus/internal/logging"
)

type countingJob struct {
	calls   atomic.Int32
	blocked atomic.Int32
}

func (j *countingJob) StartJob(ctx context.Context) error {
	j.calls.Add(1)
	j.blocked.Add(1)
	defer j.blocked.Add(-1)
	<-ctx.Done()
	return ctx.Err()
}

func TestScheduler_TriggersRepeatedly(t *testing.T) {
	job := &countingJob{}
	s := NewScheduler(job, 5*time.Millisecond, logging.Discard())
	s.Start()

	require.Eventually(t, func() bool { return job.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond,
		"triggers keep firing while earlier runs are still blocked")

	s.Stop()
	assert.Zero(t, job.blocked.Load(), "Stop waits for in-flight runs")
}

func TestScheduler_WithListenerJob(t *testing.T) {
	poller := &scriptedPoller{}
	job := newJob(t, signupProvider(), poller, &recordingExecutor{})

	s := NewScheduler(job, 5*time.Millisecond, logging.Discard())
	s.Start()
	require.Eventually(t, func() bool { return poller.Calls() >= 2 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	assert.Equal(t, StateIdle, job.State())
}

func TestNewScheduler_NonPositiveInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		job := &countingJob{}
		s := NewScheduler(job, interval, logging.Discard())
		assert.Equal(t, DefaultJobInterval, s.interval)

		s.Start()
		require.Eventually(t, func() bool { return job.calls.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
		s.Stop()
	}
}
