package jobs

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePool struct {
	calls atomic.Int32
}

func (f *fakePool) Replenish() int {
	f.calls.Add(1)
	return 1
}

type fakeSweeper struct {
	maxAge time.Duration
	err    error
}

func (f *fakeSweeper) Sweep(maxAge time.Duration) (int, error) {
	f.maxAge = maxAge
	return 2, f.err
}

func TestScheduler_AddInvalidSpec(t *testing.T) {
	t.Parallel()

	s := NewScheduler()
	_, err := s.Add(Job{Name: "bad", Spec: "not a cron", Run: func() error { return nil }})
	assert.Error(t, err)
}

func TestScheduler_RunEntry(t *testing.T) {
	t.Parallel()

	pool := &fakePool{}
	s := NewScheduler()
	id, err := s.Add(PoolHealthCheck("@every 1h", pool))
	require.NoError(t, err)

	entry := s.Entry(id)
	require.True(t, entry.Valid())
	entry.WrappedJob.Run()
	assert.Equal(t, int32(1), pool.calls.Load())
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	s := NewScheduler()
	_, err := s.Add(Job{Name: "tick", Spec: "@every 1s", Run: func() error {
		runs.Add(1)
		return nil
	}})
	require.NoError(t, err)

	s.Start()
	assert.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}

func TestRetentionSweep(t *testing.T) {
	t.Parallel()

	store := &fakeSweeper{}
	job := RetentionSweep("@every 1h", store, 24*time.Hour)
	require.NoError(t, job.Run())
	assert.Equal(t, 24*time.Hour, store.maxAge)

	store.err = errors.New("permission denied")
	assert.Error(t, job.Run())

	// 出错只记日志，不向调度器传播
	wrap(job)()
}
