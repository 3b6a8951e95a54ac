package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connectivity/internal/logger"
)

func blockUntilDone(stopped *int32) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		<-ctx.Done()
		atomic.AddInt32(stopped, 1)
		return nil
	}
}

func TestSupervisor_FailingTaskStopsOthers(t *testing.T) {
	var stopped int32
	boom := errors.New("consumer connection lost")

	s := New(time.Second, logger.NopLogger())
	s.Add("affiliation-check", blockUntilDone(&stopped))
	s.Add("document-authentication", func(ctx context.Context) error {
		time.Sleep(20 * time.Millisecond)
		return boom
	})
	s.Add("http", blockUntilDone(&stopped))

	err := s.Run(context.Background())

	var exit *ExitError
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, "document-authentication", exit.Task)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), atomic.LoadInt32(&stopped))
}

func TestSupervisor_CleanReturnIsUnexpected(t *testing.T) {
	var stopped int32

	s := New(time.Second, logger.NopLogger())
	s.Add("affiliation-check", func(ctx context.Context) error { return nil })
	s.Add("document-authentication", blockUntilDone(&stopped))

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedExit)
	assert.Equal(t, int32(1), atomic.LoadInt32(&stopped))
}

func TestSupervisor_PanicIsAnExit(t *testing.T) {
	var stopped int32

	s := New(time.Second, logger.NopLogger())
	s.Add("affiliation-check", func(ctx context.Context) error { panic("nil map") })
	s.Add("document-authentication", blockUntilDone(&stopped))

	err := s.Run(context.Background())

	var exit *ExitError
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, "affiliation-check", exit.Task)
	assert.Contains(t, err.Error(), "nil map")
	assert.Equal(t, int32(1), atomic.LoadInt32(&stopped))
}

func TestSupervisor_SignalShutdownIsClean(t *testing.T) {
	var stopped int32

	s := New(time.Second, logger.NopLogger())
	s.Add("affiliation-check", blockUntilDone(&stopped))
	s.Add("document-authentication", func(ctx context.Context) error {
		<-ctx.Done()
		atomic.AddInt32(&stopped, 1)
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	assert.NoError(t, s.Run(ctx))
	assert.Equal(t, int32(2), atomic.LoadInt32(&stopped))
}

func TestSupervisor_GraceBoundsShutdown(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	s := New(50*time.Millisecond, logger.NopLogger())
	s.Add("stuck", func(ctx context.Context) error {
		<-release
		return nil
	})
	s.Add("failing", func(ctx context.Context) error {
		return errors.New("broker closed")
	})

	start := time.Now()
	err := s.Run(context.Background())
	elapsed := time.Since(start)

	var exit *ExitError
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, "failing", exit.Task)
	assert.Less(t, elapsed, time.Second)
}

func TestSupervisor_GraceExceededOnSignal(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	s := New(30*time.Millisecond, logger.NopLogger())
	s.Add("stuck", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Run(ctx), ErrGraceExceeded)
}

func TestSupervisor_NoTasks(t *testing.T) {
	assert.Error(t, New(time.Second, logger.NopLogger()).Run(context.Background()))
}
