package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BatmanBruc/chat-earn-ledger/types"
	"github.com/stretchr/testify/assert"
)

type countingReconciler struct {
	calls atomic.Int32
	err   error
}

func (r *countingReconciler) Reconcile(context.Context) (types.StatsSnapshot, error) {
	r.calls.Add(1)
	return types.StatsSnapshot{}, r.err
}

func TestSchedulerRunsPeriodically(t *testing.T) {
	r := &countingReconciler{}
	s := NewScheduler(r, Config{Interval: 10 * time.Millisecond}, nil)
	s.Start()
	s.Start()

	assert.Eventually(t, func() bool { return r.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()

	after := r.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, r.calls.Load(), "no runs after Stop")
}

func TestRunOnceSurvivesErrors(t *testing.T) {
	r := &countingReconciler{err: errors.New("db down")}
	s := NewScheduler(r, Config{}, nil)
	s.RunOnce(context.Background())
	assert.Equal(t, int32(1), r.calls.Load())
	assert.Equal(t, time.Hour, s.interval)
}
