package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"kenya-earn/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls  int32
	minAge time.Duration
	ttl    time.Duration
	err    error
}

func (s *countingSweeper) SweepPending(_ context.Context, minAge, ttl time.Duration) (services.SweepStats, error) {
	atomic.AddInt32(&s.calls, 1)
	s.minAge, s.ttl = minAge, ttl
	return services.SweepStats{Checked: 1}, s.err
}

func TestRunOncePassesWindow(t *testing.T) {
	s := &countingSweeper{}
	w := NewPaymentSweepWorker(s, time.Minute, 2*time.Minute, 24*time.Hour)

	stats, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Checked)
	assert.Equal(t, 2*time.Minute, s.minAge)
	assert.Equal(t, 24*time.Hour, s.ttl)
}

func TestStartPollsUntilCancelled(t *testing.T) {
	s := &countingSweeper{err: errors.New("db down")}
	w := NewPaymentSweepWorker(s, 5*time.Millisecond, time.Minute, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&s.calls) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
