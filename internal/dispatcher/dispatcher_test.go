package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agentrt/internal/eventqueue"
)

func mkEvent(id string, typ eventqueue.Type) eventqueue.Event {
	return eventqueue.Event{EventID: id, Type: typ, Priority: eventqueue.PriorityNormal, CreatedAt: time.Now()}
}

func TestHandlerDispatchUsesLastReturnValue(t *testing.T) {
	d := New(Config{}, nil)
	var calls []string
	d.RegisterHandler(eventqueue.TypeMessage, func(e eventqueue.Event) (any, error) {
		calls = append(calls, "first")
		return "first-result", nil
	})
	d.RegisterHandler(eventqueue.TypeMessage, func(e eventqueue.Event) (any, error) {
		calls = append(calls, "second")
		return "second-result", nil
	})

	result := d.Process(context.Background(), mkEvent("e1", eventqueue.TypeMessage))
	require.True(t, result.Success)
	require.Equal(t, "second-result", result.Result)
	require.Equal(t, []string{"first", "second"}, calls)
}

func TestFallsBackToDefaultHandler(t *testing.T) {
	d := New(Config{}, nil)
	d.SetDefaultHandler(func(e eventqueue.Event) (any, error) { return "default-result", nil })

	result := d.Process(context.Background(), mkEvent("e1", eventqueue.TypeCustom))
	require.True(t, result.Success)
	require.Equal(t, "default-result", result.Result)
	require.Equal(t, "default", result.HandlerName)
}

func TestNoHandlerOrDefaultReturnsSuccessWithNilResult(t *testing.T) {
	d := New(Config{}, nil)
	result := d.Process(context.Background(), mkEvent("e1", eventqueue.TypeCustom))
	require.True(t, result.Success)
	require.Nil(t, result.Result)
}

func TestMiddlewareSkipRecordsSkippedStat(t *testing.T) {
	d := New(Config{}, nil)
	d.Use(func(e eventqueue.Event) (eventqueue.Event, bool, error) { return e, false, nil })
	d.RegisterHandler(eventqueue.TypeMessage, func(e eventqueue.Event) (any, error) { return nil, nil })

	result := d.Process(context.Background(), mkEvent("e1", eventqueue.TypeMessage))
	require.True(t, result.Success)
	require.Equal(t, "middleware_skip", result.HandlerName)
	require.EqualValues(t, 1, d.StatsSnapshot().EventsSkipped)
}

func TestMiddlewareErrorFailsEventAndInvokesErrorHandlers(t *testing.T) {
	d := New(Config{}, nil)
	d.Use(func(e eventqueue.Event) (eventqueue.Event, bool, error) { return e, false, errors.New("boom") })

	var gotErr error
	d.AddErrorHandler(func(e eventqueue.Event, err error) { gotErr = err })

	result := d.Process(context.Background(), mkEvent("e1", eventqueue.TypeMessage))
	require.False(t, result.Success)
	require.Equal(t, "boom", result.Error)
	require.Error(t, gotErr)
}

func TestHandlerErrorInvokesErrorHandlers(t *testing.T) {
	d := New(Config{}, nil)
	d.RegisterHandler(eventqueue.TypeMessage, func(e eventqueue.Event) (any, error) { return nil, errors.New("handler failed") })

	var invoked bool
	d.AddErrorHandler(func(e eventqueue.Event, err error) { invoked = true })

	result := d.Process(context.Background(), mkEvent("e1", eventqueue.TypeMessage))
	require.False(t, result.Success)
	require.True(t, invoked)
}

func TestPreAndPostHooksRunAndErrorsAreNonFatal(t *testing.T) {
	d := New(Config{}, nil)
	var preCalled, postCalled bool
	d.AddPreHook(func(e eventqueue.Event) error { preCalled = true; return errors.New("pre failed") })
	d.AddPostHook(func(r ProcessingResult) error { postCalled = true; return errors.New("post failed") })
	d.RegisterHandler(eventqueue.TypeMessage, func(e eventqueue.Event) (any, error) { return "ok", nil })

	result := d.Process(context.Background(), mkEvent("e1", eventqueue.TypeMessage))
	require.True(t, result.Success)
	require.True(t, preCalled)
	require.True(t, postCalled)
}

func TestPerEventTimeoutCancelsContext(t *testing.T) {
	d := New(Config{PerEventTimeout: 10 * time.Millisecond}, nil)
	d.RegisterHandler(eventqueue.TypeMessage, func(e eventqueue.Event) (any, error) {
		time.Sleep(50 * time.Millisecond)
		return nil, nil
	})

	result := d.Process(context.Background(), mkEvent("e1", eventqueue.TypeMessage))
	require.False(t, result.Success)
}

func TestStatsTrackByTypeAndHandler(t *testing.T) {
	d := New(Config{}, nil)
	d.RegisterHandler(eventqueue.TypeMessage, func(e eventqueue.Event) (any, error) { return nil, nil })

	d.Process(context.Background(), mkEvent("e1", eventqueue.TypeMessage))
	d.Process(context.Background(), mkEvent("e2", eventqueue.TypeMessage))

	stats := d.StatsSnapshot()
	require.EqualValues(t, 2, stats.EventsProcessed)
	require.EqualValues(t, 2, stats.EventsSucceeded)
	require.EqualValues(t, 2, stats.ByType["message"])
}

func TestBatchProcessorFlushesAtSizeAndExplicitly(t *testing.T) {
	d := New(Config{}, nil)
	d.RegisterHandler(eventqueue.TypeMessage, func(e eventqueue.Event) (any, error) { return nil, nil })

	bp := NewBatchProcessor(d, 2)
	require.Nil(t, bp.Add(context.Background(), mkEvent("e1", eventqueue.TypeMessage)))
	results := bp.Add(context.Background(), mkEvent("e2", eventqueue.TypeMessage))
	require.Len(t, results, 2)
	require.Equal(t, 0, bp.PendingCount())

	bp.Add(context.Background(), mkEvent("e3", eventqueue.TypeMessage))
	require.Equal(t, 1, bp.PendingCount())
	flushed := bp.Flush(context.Background())
	require.Len(t, flushed, 1)
}
