package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LJTian/NewsDigest/internal/pipeline"
)

type blockingRunner struct {
	release chan struct{}
	started chan struct{}
	calls   int32
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{release: make(chan struct{}), started: make(chan struct{}, 1)}
}

func (r *blockingRunner) Run(context.Context) pipeline.TaskResult {
	atomic.AddInt32(&r.calls, 1)
	r.started <- struct{}{}
	<-r.release
	return pipeline.TaskResult{Success: true, Message: "ok"}
}

type instantRunner struct{ calls int32 }

func (r *instantRunner) Run(context.Context) pipeline.TaskResult {
	atomic.AddInt32(&r.calls, 1)
	return pipeline.TaskResult{Success: true, Message: "ok"}
}

func TestValidateSpec(t *testing.T) {
	assert.NoError(t, ValidateSpec("0 8 * * *"))
	assert.NoError(t, ValidateSpec("0 0 8,18 * * *"))
	assert.NoError(t, ValidateSpec("@hourly"))
	assert.Error(t, ValidateSpec("bogus"))
	assert.Error(t, ValidateSpec("61 * * * *"))
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(Options{Spec: "nope"}, &instantRunner{}, nil)
	assert.Error(t, err)

	_, err = New(Options{Spec: "0 8 * * *", Timezone: "Mars/Olympus"}, &instantRunner{}, nil)
	assert.Error(t, err)
}

func TestExecuteNowRejectsConcurrentRun(t *testing.T) {
	r := newBlockingRunner()
	s, err := New(Options{Spec: "0 8 * * *"}, r, nil)
	require.NoError(t, err)

	done := make(chan pipeline.TaskResult)
	go func() {
		res, err := s.ExecuteNow(context.Background())
		assert.NoError(t, err)
		done <- res
	}()
	<-r.started

	assert.True(t, s.Status().Executing)
	_, err = s.ExecuteNow(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(r.release)
	res := <-done
	assert.True(t, res.Success)

	st := s.Status()
	assert.False(t, st.Executing)
	assert.Equal(t, 1, st.ExecutionCount)
	require.NotNil(t, st.LastExecutionTime)
	require.NotNil(t, st.LastResult)
	assert.Equal(t, "ok", st.LastResult.Message)
	assert.EqualValues(t, 1, atomic.LoadInt32(&r.calls))
}

func TestStartStopAndNextExecution(t *testing.T) {
	s, err := New(Options{Enabled: true, Spec: "0 8 * * *"}, &instantRunner{}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)

	st := s.Status()
	assert.True(t, st.Running)
	assert.Equal(t, DefaultTimezone, st.Timezone)
	require.NotNil(t, st.NextExecutionTime)
	assert.True(t, st.NextExecutionTime.After(time.Now()))

	s.Stop()
	st = s.Status()
	assert.False(t, st.Running)
	assert.Nil(t, st.NextExecutionTime)
}

func TestStartDisabled(t *testing.T) {
	s, err := New(Options{Enabled: false, Spec: "0 8 * * *"}, &instantRunner{}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Start(context.Background()), ErrNotEnabled)
}

func TestScheduledTriggerRunsJob(t *testing.T) {
	r := &instantRunner{}
	s, err := New(Options{Enabled: true, Spec: "@every 1s"}, r, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&r.calls) >= 1
	}, 3*time.Second, 50*time.Millisecond)
}
