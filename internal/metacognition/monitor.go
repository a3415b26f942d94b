package metacognition

import (
	"sync"
	"time"

	"agentrt/internal/learning"
)

// InterventionKind enumerates the possible monitor decisions (spec.md
// §4.P).
type InterventionKind string

const (
	InterventionContinue        InterventionKind = "continue"
	InterventionBreakLoop       InterventionKind = "break_loop"
	InterventionFallback        InterventionKind = "fallback"
	InterventionPause           InterventionKind = "pause"
	InterventionPreemptiveReplan InterventionKind = "preemptive_replan"
	InterventionHumanHandoff    InterventionKind = "human_handoff"
	InterventionAbort           InterventionKind = "abort"
)

// Intervention is the monitor's decision for one pre-action check.
type Intervention struct {
	Kind            InterventionKind
	SuggestedAction string
	Alternatives    []string
	WaitSeconds     float64
	ConfidenceFactors []FactorScore
	Reason          string
	At              time.Time
}

const maxConsecutiveFailures = 5

// MonitorConfig tunes the Monitor's thresholds and collaborators.
type MonitorConfig struct {
	Tracker               *learning.Tracker
	HandoffEnabled        bool
	MaxConsecutiveFailures int
	HistoryCap            int
}

// Monitor orchestrates the loop detector, failure predictor, and confidence
// estimator into a single pre-action intervention decision (spec.md §4.P).
type Monitor struct {
	cfg       MonitorConfig
	loop      *LoopDetector
	predictor *FailurePredictor
	handoff   *HumanHandoff

	mu                      sync.Mutex
	actionsSinceIntervention int
	interventionCount       int
	consecutiveFailures     int
	history                 []Intervention
}

// NewMonitor creates a Monitor; cfg.Tracker may be nil.
func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = maxConsecutiveFailures
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 50
	}
	return &Monitor{
		cfg:       cfg,
		loop:      NewLoopDetector(0, 0, 0, 0),
		predictor: NewFailurePredictor(cfg.Tracker),
		handoff:   NewHumanHandoff(),
	}
}

// AgentState carries the fields the monitor needs about current agent
// status; callers populate it from their own richer state representation.
type AgentState struct {
	ConsecutiveFailures int // informational only; the monitor keeps its own counter
}

// MonitorContext carries the optional pre-action fields spec.md §4.P names.
type MonitorContext struct {
	ContextHash     string
	Flags           ContextFlags
	Goal            string
	Plan            *PlanInfo
	AvailableActions []string
	Confidence      ConfidenceFactors
}

// PlanInfo mirrors the plan-completeness fields the confidence estimator
// consumes.
type PlanInfo struct {
	Steps            bool
	Goal             bool
	SuccessCriteria  bool
	Fallback         bool
	RequiredTools    []string
}

// Monitor evaluates one pre-action check in the precedence order specified
// by spec.md §4.P: loop check, failure prediction, confidence check,
// consecutive-failure abort, else continue.
func (m *Monitor) Monitor(action string, ctx MonitorContext) Intervention {
	m.mu.Lock()
	m.actionsSinceIntervention++
	m.mu.Unlock()

	if detection := m.loop.IsStuck(action, ctx.ContextHash); detection.Stuck {
		suggestion, _ := m.loop.SuggestBreakAction(ctx.AvailableActions)
		return m.recordIntervention(Intervention{
			Kind:            InterventionBreakLoop,
			SuggestedAction: suggestion,
			Reason:          detection.Pattern,
		})
	}

	prediction := m.predictor.Predict(action, ctx.Flags)
	if prediction.IsHighRisk {
		switch {
		case len(prediction.Alternatives) > 0:
			return m.recordIntervention(Intervention{
				Kind:            InterventionFallback,
				SuggestedAction: prediction.Alternatives[0],
				Alternatives:    prediction.Alternatives,
				Reason:          "predicted high failure risk",
			})
		case prediction.WaitSeconds > 0:
			return m.recordIntervention(Intervention{
				Kind:        InterventionPause,
				WaitSeconds: prediction.WaitSeconds,
				Reason:      "predicted high failure risk",
			})
		default:
			return m.recordIntervention(Intervention{
				Kind:   InterventionPreemptiveReplan,
				Reason: "predicted high failure risk with no fallback",
			})
		}
	}

	confidenceFactors := ctx.Confidence
	if m.cfg.Tracker != nil {
		confidenceFactors.SuccessRate = m.cfg.Tracker.GetSuccessRate(action)
		confidenceFactors.HasSuccessRate = true
	}
	estimate := Estimate(confidenceFactors)
	if estimate.ShouldRequestHelp && m.cfg.HandoffEnabled {
		return m.recordIntervention(Intervention{
			Kind:              InterventionHumanHandoff,
			ConfidenceFactors: estimate.Factors,
			Reason:            estimate.HelpRequestText,
		})
	}

	m.mu.Lock()
	consecutive := m.consecutiveFailures
	m.mu.Unlock()
	if consecutive >= m.cfg.MaxConsecutiveFailures {
		return m.recordIntervention(Intervention{Kind: InterventionAbort, Reason: "too many consecutive failures"})
	}

	return Intervention{Kind: InterventionContinue, At: time.Now().UTC()}
}

func (m *Monitor) recordIntervention(iv Intervention) Intervention {
	iv.At = time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, iv)
	if len(m.history) > m.cfg.HistoryCap {
		m.history = m.history[len(m.history)-m.cfg.HistoryCap:]
	}
	m.actionsSinceIntervention = 0
	m.interventionCount++
	return iv
}

// RecordActionResult resets or increments the consecutive-failure counter
// and records the outcome, success or failure, in the predictor's
// recent-outcome window (spec.md §4.P).
func (m *Monitor) RecordActionResult(action string, success bool, errorMessage string) {
	m.mu.Lock()
	if success {
		m.consecutiveFailures = 0
	} else {
		m.consecutiveFailures++
	}
	m.mu.Unlock()

	if !success {
		m.predictor.RecordFailure(FailureOutcome{Action: action, Success: false, Timestamp: time.Now().UTC()})
	} else {
		m.predictor.RecordFailure(FailureOutcome{Action: action, Success: true, Timestamp: time.Now().UTC()})
	}
}

// History returns a copy of the recorded interventions.
func (m *Monitor) History() []Intervention {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Intervention{}, m.history...)
}

// InterventionCount returns the number of non-continue decisions made.
func (m *Monitor) InterventionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interventionCount
}

// RequestHelp delegates to the configured human-handoff channel.
func (m *Monitor) RequestHelp(question, context string, urgency string, options []string, timeout time.Duration, channel string) (*HumanResponse, error) {
	return m.handoff.RequestHelp(question, context, urgency, options, timeout, channel)
}

// ProvideResponse delegates to the configured human-handoff channel.
func (m *Monitor) ProvideResponse(requestID string, resp HumanResponse) bool {
	return m.handoff.ProvideResponse(requestID, resp)
}

// CancelRequest delegates to the configured human-handoff channel.
func (m *Monitor) CancelRequest(requestID string) bool {
	return m.handoff.CancelRequest(requestID)
}
