package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJobs struct {
	retrains  int32
	refreshes int32
}

func (c *countingJobs) Retrain(context.Context) error {
	atomic.AddInt32(&c.retrains, 1)
	return nil
}

func (c *countingJobs) RefreshStandards(context.Context) error {
	atomic.AddInt32(&c.refreshes, 1)
	return errors.New("ml service down")
}

func TestScheduler_RunsBothJobs(t *testing.T) {
	jobs := &countingJobs{}
	s := New(Config{
		RetrainInterval:          50 * time.Millisecond,
		StandardsRefreshInterval: 50 * time.Millisecond,
	}, jobs, nil)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&jobs.retrains) >= 2 && atomic.LoadInt32(&jobs.refreshes) >= 2
	}, 3*time.Second, 10*time.Millisecond)
}

func TestScheduler_NoJobs(t *testing.T) {
	jobs := &countingJobs{}
	s := New(Config{}, jobs, nil)
	require.NoError(t, s.Start())
	s.Stop()

	assert.Zero(t, atomic.LoadInt32(&jobs.retrains))
}
