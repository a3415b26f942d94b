package metacognition

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"agentrt/internal/learning"
)

// RateLimitState is the cached rate-limit usage for one action.
type RateLimitState struct {
	Used      int
	Max       int
	ResetTime time.Time
}

// usageRatio returns Used/Max, or 0 if Max is non-positive.
func (s RateLimitState) usageRatio() float64 {
	if s.Max <= 0 {
		return 0
	}
	return float64(s.Used) / float64(s.Max)
}

// FailureOutcome is one recorded action outcome, used for the recent-
// failures signal.
type FailureOutcome struct {
	Action    string
	Success   bool
	Timestamp time.Time
}

// FailurePrediction is the result of FailurePredictor.Predict.
type FailurePrediction struct {
	Action      string
	Probability float64
	Confidence  float64
	IsHighRisk  bool
	Alternatives []string
	WaitSeconds float64
	Reason      string
}

var actionAlternatives = map[string][]string{
	"search_web":      {"search_docs", "search_cache"},
	"search_docs":     {"search_web", "search_cache"},
	"send_message":    {"send_email", "send_webhook"},
	"send_email":      {"send_message", "send_webhook"},
	"call_primary_api": {"call_secondary_api"},
}

// FailurePredictor combines historical, recent, rate-limit, and context-flag
// signals into a single failure probability (spec.md §4.N).
type FailurePredictor struct {
	tracker *learning.Tracker

	mu        sync.Mutex
	outcomes  map[string][]FailureOutcome // action -> recent outcomes, capped at 10
	rateLimits *lru.Cache[string, RateLimitState]
}

// NewFailurePredictor creates a predictor; tracker may be nil.
func NewFailurePredictor(tracker *learning.Tracker) *FailurePredictor {
	cache, _ := lru.New[string, RateLimitState](256)
	return &FailurePredictor{
		tracker:    tracker,
		outcomes:   make(map[string][]FailureOutcome),
		rateLimits: cache,
	}
}

// RecordRateLimit updates the rate-limit cache for action.
func (p *FailurePredictor) RecordRateLimit(action string, used, max int, resetTime time.Time) {
	p.rateLimits.Add(action, RateLimitState{Used: used, Max: max, ResetTime: resetTime})
}

// RecordFailure appends outcome to the recent-outcomes window, capped at 10.
func (p *FailurePredictor) RecordFailure(outcome FailureOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := append(p.outcomes[outcome.Action], outcome)
	if len(list) > 10 {
		list = list[len(list)-10:]
	}
	p.outcomes[outcome.Action] = list
}

// ContextFlags mirrors the four boolean flags considered for the
// context-flags signal.
type ContextFlags struct {
	ErrorState     bool
	RetryCountPositive bool
	SlowResponse   bool
	LowResources   bool
	RateLimitWarning bool
}

// Predict combines up to four signals into a FailurePrediction (spec.md
// §4.N).
func (p *FailurePredictor) Predict(action string, flags ContextFlags) FailurePrediction {
	var signals []float64

	if p.tracker != nil {
		if stats, ok := p.tracker.GetStats(action); ok && stats.TotalCount >= 3 && stats.SuccessRate() < 0.3 {
			signals = append(signals, 1-stats.SuccessRate())
		}
	}

	if recentSignal, ok := p.recentFailureSignal(action); ok {
		signals = append(signals, recentSignal)
	}

	rateSignal := p.rateLimitSignal(action, flags)
	if rateSignal > 0 {
		signals = append(signals, rateSignal)
	}

	if flagSignal := contextFlagSignal(flags); flagSignal > 0.3 {
		signals = append(signals, flagSignal)
	}

	probability := combineSignals(signals)
	confidence := p.confidence(action)

	prediction := FailurePrediction{
		Action:      action,
		Probability: probability,
		Confidence:  confidence,
		IsHighRisk:  probability >= 0.7 && confidence >= 0.5,
	}

	if alts, ok := actionAlternatives[action]; ok && rateSignal > 0 {
		prediction.Alternatives = alts
	}
	prediction.WaitSeconds = p.waitSeconds(action, rateSignal, flags)

	return prediction
}

func (p *FailurePredictor) recentFailureSignal(action string) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	outcomes, ok := p.outcomes[action]
	if !ok || len(outcomes) == 0 {
		return 0, false
	}
	cutoff := time.Now().Add(-24 * time.Hour)
	var total, failures int
	for _, o := range outcomes {
		if o.Timestamp.Before(cutoff) {
			continue
		}
		total++
		if !o.Success {
			failures++
		}
	}
	if total == 0 {
		return 0, false
	}
	rate := float64(failures) / float64(total)
	if rate > 0.5 {
		return rate, true
	}
	return 0, false
}

func (p *FailurePredictor) rateLimitSignal(action string, flags ContextFlags) float64 {
	if state, ok := p.rateLimits.Get(action); ok {
		ratio := state.usageRatio()
		switch {
		case ratio >= 0.9:
			return 0.9
		case ratio >= 0.7:
			return 0.5
		case ratio >= 0.5:
			return 0.2
		}
	}
	if flags.RateLimitWarning {
		return 0.7
	}
	return 0
}

func contextFlagSignal(flags ContextFlags) float64 {
	total := 4
	set := 0
	if flags.ErrorState {
		set++
	}
	if flags.RetryCountPositive {
		set++
	}
	if flags.SlowResponse {
		set++
	}
	if flags.LowResources {
		set++
	}
	return float64(set) / float64(total)
}

func combineSignals(signals []float64) float64 {
	if len(signals) == 0 {
		return 0
	}
	max := signals[0]
	sum := 0.0
	for _, s := range signals {
		if s > max {
			max = s
		}
		sum += s
	}
	mean := sum / float64(len(signals))
	p := 0.6*max + 0.4*mean
	if p > 1 {
		p = 1
	}
	if p < 0 {
		p = 0
	}
	return p
}

func (p *FailurePredictor) confidence(action string) float64 {
	if p.tracker == nil {
		return 0.3
	}
	stats, ok := p.tracker.GetStats(action)
	if !ok {
		return 0.3
	}
	switch {
	case stats.TotalCount >= 20:
		return 0.9
	case stats.TotalCount >= 10:
		return 0.7
	case stats.TotalCount >= 5:
		return 0.5
	default:
		return 0.3
	}
}

func (p *FailurePredictor) waitSeconds(action string, rateSignal float64, flags ContextFlags) float64 {
	if state, ok := p.rateLimits.Get(action); ok && rateSignal > 0 {
		if !state.ResetTime.IsZero() {
			wait := time.Until(state.ResetTime).Seconds()
			if wait > 0 {
				return wait
			}
		}
		return 60
	}
	if flags.SlowResponse {
		return 30
	}
	if _, ok := p.recentFailureSignal(action); ok {
		return 10
	}
	return 0
}
