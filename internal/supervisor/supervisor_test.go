package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunOnStartInvokesImmediately(t *testing.T) {
	s := New(nil)
	var calls int32
	require.NoError(t, s.Register("warmup", func() error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, 60, true, true, 10))

	require.NoError(t, s.Start("warmup"))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop("warmup"))
}

func TestTicksAtInterval(t *testing.T) {
	s := New(nil)
	var calls int32
	require.NoError(t, s.Register("tick", func() error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, 0.02, true, false, 10))

	require.NoError(t, s.Start("tick"))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop("tick"))
}

func TestConsecutiveErrorsTripsToErrorState(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Register("flaky", func() error {
		return errors.New("boom")
	}, 0.01, true, true, 3))

	require.NoError(t, s.Start("flaky"))

	require.Eventually(t, func() bool {
		procs := s.ListProcesses(false)
		for _, p := range procs {
			if p.Name == "flaky" {
				return p.State == StateError
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	stats := s.GetStatistics()
	require.GreaterOrEqual(t, stats["flaky"].ConsecutiveErrors, 3)
}

func TestSuccessResetsConsecutiveErrors(t *testing.T) {
	s := New(nil)
	var calls int32
	require.NoError(t, s.Register("recovering", func() error {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return errors.New("transient")
		}
		return nil
	}, 0.02, true, true, 5))

	require.NoError(t, s.Start("recovering"))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 2 }, time.Second, 5*time.Millisecond)

	stats := s.GetStatistics()
	require.Equal(t, 0, stats["recovering"].ConsecutiveErrors)
	require.NoError(t, s.Stop("recovering"))
}

func TestDisableStopsRunningProcess(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Register("p", func() error { return nil }, 0.02, true, false, 10))
	require.NoError(t, s.Start("p"))
	require.NoError(t, s.Disable("p"))

	procs := s.ListProcesses(false)
	require.Len(t, procs, 1)
	require.Equal(t, StateStopped, procs[0].State)
}

func TestDrainStopsAllProcesses(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Register("a", func() error { return nil }, 0.02, true, false, 10))
	require.NoError(t, s.Register("b", func() error { return nil }, 0.02, true, false, 10))
	s.StartAll()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Drain(ctx))

	for _, p := range s.ListProcesses(false) {
		require.Equal(t, StateStopped, p.State)
	}
}
