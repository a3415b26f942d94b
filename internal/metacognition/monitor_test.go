package metacognition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agentrt/internal/learning"
)

func TestMonitorReturnsContinueByDefault(t *testing.T) {
	m := NewMonitor(MonitorConfig{})
	iv := m.Monitor("fetch", MonitorContext{Confidence: ConfidenceFactors{Goal: "do a clearly scoped well-defined task", HasSuccessRate: true, SuccessRate: 0.8}})
	require.Equal(t, InterventionContinue, iv.Kind)
}

func TestMonitorDetectsLoopBeforeOtherChecks(t *testing.T) {
	m := NewMonitor(MonitorConfig{})
	for i := 0; i < 2; i++ {
		m.Monitor("fetch", MonitorContext{ContextHash: "ctx", AvailableActions: []string{"fetch", "alt"}})
	}
	iv := m.Monitor("fetch", MonitorContext{ContextHash: "ctx", AvailableActions: []string{"fetch", "alt"}})
	require.Equal(t, InterventionBreakLoop, iv.Kind)
	require.Equal(t, "alt", iv.SuggestedAction)
}

func TestMonitorAbortsAfterMaxConsecutiveFailures(t *testing.T) {
	m := NewMonitor(MonitorConfig{MaxConsecutiveFailures: 3})
	for i := 0; i < 3; i++ {
		m.RecordActionResult("fetch", false, "boom")
	}
	iv := m.Monitor("other_action", MonitorContext{Confidence: ConfidenceFactors{Goal: "do a clearly scoped well-defined task", HasSuccessRate: true, SuccessRate: 0.9}})
	require.Equal(t, InterventionAbort, iv.Kind)
}

func TestMonitorRecordActionResultResetsOnSuccess(t *testing.T) {
	m := NewMonitor(MonitorConfig{MaxConsecutiveFailures: 3})
	m.RecordActionResult("fetch", false, "boom")
	m.RecordActionResult("fetch", false, "boom")
	m.RecordActionResult("fetch", true, "")
	iv := m.Monitor("fetch", MonitorContext{Confidence: ConfidenceFactors{Goal: "do a clearly scoped well-defined task", HasSuccessRate: true, SuccessRate: 0.9}})
	require.NotEqual(t, InterventionAbort, iv.Kind)
}

func TestMonitorHumanHandoffWhenEnabled(t *testing.T) {
	m := NewMonitor(MonitorConfig{HandoffEnabled: true})
	iv := m.Monitor("fetch", MonitorContext{Confidence: ConfidenceFactors{ErrorState: true, HasSuccessRate: true}})
	require.Equal(t, InterventionHumanHandoff, iv.Kind)
	require.NotEmpty(t, iv.Reason)
}

func TestMonitorUsesTrackerSuccessRate(t *testing.T) {
	tracker := learning.NewTracker()
	for i := 0; i < 10; i++ {
		tracker.Record("fetch", "ctx", 1, true, nil)
	}
	m := NewMonitor(MonitorConfig{Tracker: tracker})
	iv := m.Monitor("fetch", MonitorContext{Confidence: ConfidenceFactors{Goal: "do a clearly scoped well-defined task"}})
	require.Equal(t, InterventionContinue, iv.Kind)
}

func TestHumanHandoffRequestAndRespond(t *testing.T) {
	h := NewHumanHandoff()
	var capturedID string
	h.RegisterChannel("console", func(req HumanRequest) error {
		capturedID = req.RequestID
		return nil
	})

	go func() {
		time.Sleep(10 * time.Millisecond)
		h.ProvideResponse(capturedID, HumanResponse{Answer: "proceed"})
	}()

	resp, err := h.RequestHelp("should I proceed?", "ctx", "high", nil, time.Second, "console")
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Equal(t, "proceed", resp.Answer)
}

func TestHumanHandoffTimesOutWithoutResponse(t *testing.T) {
	h := NewHumanHandoff()
	h.RegisterChannel("console", func(req HumanRequest) error { return nil })
	resp, err := h.RequestHelp("should I proceed?", "ctx", "low", nil, 20*time.Millisecond, "console")
	require.NoError(t, err)
	require.Nil(t, resp)
}

func TestHumanHandoffCancelRequest(t *testing.T) {
	h := NewHumanHandoff()
	h.RegisterChannel("console", func(req HumanRequest) error { return nil })

	done := make(chan struct{})
	var capturedID string
	h.RegisterChannel("console", func(req HumanRequest) error {
		capturedID = req.RequestID
		return nil
	})
	go func() {
		resp, err := h.RequestHelp("cancel me", "ctx", "low", nil, time.Second, "console")
		require.NoError(t, err)
		require.NotNil(t, resp)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	require.True(t, h.CancelRequest(capturedID))
	<-done
}
