package metacognition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agentrt/internal/learning"
)

func TestFailurePredictorLowConfidenceWithoutTracker(t *testing.T) {
	p := NewFailurePredictor(nil)
	prediction := p.Predict("fetch", ContextFlags{})
	require.InDelta(t, 0.3, prediction.Confidence, 1e-9)
}

func TestFailurePredictorHistoricalLowSuccessRateSignal(t *testing.T) {
	tracker := learning.NewTracker()
	for i := 0; i < 10; i++ {
		tracker.Record("fetch", "ctx", -1, false, nil)
	}
	p := NewFailurePredictor(tracker)
	prediction := p.Predict("fetch", ContextFlags{})
	require.Greater(t, prediction.Probability, 0.5)
	require.True(t, prediction.IsHighRisk)
}

func TestFailurePredictorRateLimitSignal(t *testing.T) {
	p := NewFailurePredictor(nil)
	p.RecordRateLimit("search_web", 95, 100, time.Now().Add(time.Minute))
	prediction := p.Predict("search_web", ContextFlags{})
	require.Contains(t, prediction.Alternatives, "search_docs")
	require.Greater(t, prediction.WaitSeconds, 0.0)
}

func TestFailurePredictorContextFlagsSignal(t *testing.T) {
	p := NewFailurePredictor(nil)
	prediction := p.Predict("fetch", ContextFlags{ErrorState: true, RetryCountPositive: true, SlowResponse: true, LowResources: true})
	require.Greater(t, prediction.Probability, 0.0)
}

func TestFailurePredictorConfidenceScalesWithObservationCount(t *testing.T) {
	tracker := learning.NewTracker()
	for i := 0; i < 25; i++ {
		tracker.Record("fetch", "ctx", 1, true, nil)
	}
	p := NewFailurePredictor(tracker)
	prediction := p.Predict("fetch", ContextFlags{})
	require.InDelta(t, 0.9, prediction.Confidence, 1e-9)
}

func TestFailurePredictorRecordFailureFeedsRecentWindow(t *testing.T) {
	p := NewFailurePredictor(nil)
	for i := 0; i < 6; i++ {
		p.RecordFailure(FailureOutcome{Action: "fetch", Success: false, Timestamp: time.Now()})
	}
	prediction := p.Predict("fetch", ContextFlags{})
	require.Greater(t, prediction.Probability, 0.0)
}
