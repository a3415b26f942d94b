// Package learning implements the agent's adaptive-learning collaborators
// (spec.md §4.I-§4.L): an action outcome tracker, a rule-based self-critic,
// a vector-backed lesson repository, and a strategy adapter translating
// accumulated experience into action biases. Grounded on the teacher's
// internal/app/context/priority.go ranking style (weighted, clamped scores)
// and golang-lru-backed bounded windows used elsewhere in the pack.
package learning

import (
	"sort"
	"sync"
	"time"
)

const recentRewardWindow = 20
const maxRecentRewardsPerPair = 100

// ActionStats accumulates outcomes for one action (spec.md §4.I).
type ActionStats struct {
	Action       string
	TotalCount   int
	SuccessCount int
	TotalReward  float64
}

// SuccessRate returns SuccessCount/TotalCount, or 0 if no observations.
func (s ActionStats) SuccessRate() float64 {
	if s.TotalCount == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.TotalCount)
}

// ActionOutcome is returned by Tracker.Record.
type ActionOutcome struct {
	Action      string
	ContextKey  string
	Reward      float64
	Success     bool
	Metadata    map[string]any
	RecordedAt  time.Time
}

// Tracker holds per-action statistics and a bounded recent-reward window
// per (context_key, action) pair (spec.md §4.I).
type Tracker struct {
	mu sync.Mutex

	stats   map[string]*ActionStats
	pairKey map[string][]float64 // "context|action" -> recent rewards, capped at maxRecentRewardsPerPair
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		stats:   make(map[string]*ActionStats),
		pairKey: make(map[string][]float64),
	}
}

func pairID(contextKey, action string) string { return contextKey + "|" + action }

// Record updates global and per-context statistics and returns the
// resulting ActionOutcome.
func (t *Tracker) Record(action, contextKey string, reward float64, success bool, metadata map[string]any) ActionOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.stats[action]
	if !ok {
		st = &ActionStats{Action: action}
		t.stats[action] = st
	}
	st.TotalCount++
	st.TotalReward += reward
	if success {
		st.SuccessCount++
	}

	key := pairID(contextKey, action)
	rewards := append(t.pairKey[key], reward)
	if len(rewards) > maxRecentRewardsPerPair {
		rewards = rewards[len(rewards)-maxRecentRewardsPerPair:]
	}
	t.pairKey[key] = rewards

	return ActionOutcome{
		Action:     action,
		ContextKey: contextKey,
		Reward:     reward,
		Success:    success,
		Metadata:   metadata,
		RecordedAt: time.Now().UTC(),
	}
}

// GetSuccessRate returns the global success rate for action, or 0.5 if
// unknown (spec.md §4.I).
func (t *Tracker) GetSuccessRate(action string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.stats[action]
	if !ok || st.TotalCount == 0 {
		return 0.5
	}
	return st.SuccessRate()
}

// GetStats returns a copy of ActionStats for action, and false if unknown.
func (t *Tracker) GetStats(action string) (ActionStats, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.stats[action]
	if !ok {
		return ActionStats{}, false
	}
	return *st, true
}

// GetContextSuccessRate returns the mean recent reward for (contextKey,
// action) mapped through a success heuristic (reward > 0 counts as a
// success), or 0.5 for an unseen pair.
func (t *Tracker) GetContextSuccessRate(contextKey, action string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	rewards, ok := t.pairKey[pairID(contextKey, action)]
	if !ok || len(rewards) == 0 {
		return 0.5
	}
	recent := rewards
	if len(recent) > recentRewardWindow {
		recent = recent[len(recent)-recentRewardWindow:]
	}
	successes := 0
	for _, r := range recent {
		if r > 0 {
			successes++
		}
	}
	return float64(successes) / float64(len(recent))
}

// GetBestActionForContext ranks actions by context-specific success rate,
// optionally restricted to availableActions.
func (t *Tracker) GetBestActionForContext(contextKey string, availableActions []string) (string, bool) {
	t.mu.Lock()
	candidates := make([]string, 0, len(t.stats))
	if len(availableActions) > 0 {
		candidates = append(candidates, availableActions...)
	} else {
		for action := range t.stats {
			candidates = append(candidates, action)
		}
	}
	t.mu.Unlock()

	if len(candidates) == 0 {
		return "", false
	}

	best := candidates[0]
	bestRate := t.GetContextSuccessRate(contextKey, best)
	for _, action := range candidates[1:] {
		rate := t.GetContextSuccessRate(contextKey, action)
		if rate > bestRate {
			best, bestRate = action, rate
		}
	}
	return best, true
}

// FailingAction pairs an action with its observed success rate, for
// GetFailingActions.
type FailingAction struct {
	Action      string
	SuccessRate float64
	TotalCount  int
}

// GetFailingActions returns actions with at least minObservations
// observations and a success rate below threshold, sorted ascending by
// rate (spec.md §4.I).
func (t *Tracker) GetFailingActions(threshold float64, minObservations int) []FailingAction {
	if threshold <= 0 {
		threshold = 0.3
	}
	if minObservations <= 0 {
		minObservations = 5
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var out []FailingAction
	for action, st := range t.stats {
		if st.TotalCount < minObservations {
			continue
		}
		rate := st.SuccessRate()
		if rate < threshold {
			out = append(out, FailingAction{Action: action, SuccessRate: rate, TotalCount: st.TotalCount})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SuccessRate < out[j].SuccessRate })
	return out
}
