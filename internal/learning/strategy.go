package learning

import (
	"sort"
	"strings"
	"sync"
)

// MaxBias bounds ActionBias magnitude (spec.md §4.L).
const MaxBias = 0.5

// ActionBias is a manual override for an action's bias.
type ActionBias struct {
	Bias   float64
	Reason string
}

// StrategyAdapter translates accumulated tracker/lesson experience into
// per-action bias scores in [-MaxBias, MaxBias] (spec.md §4.L).
type StrategyAdapter struct {
	tracker  *Tracker
	lessons  *LessonRepository // optional, may be nil

	mu        sync.Mutex
	overrides map[string]ActionBias
	modifiers map[string]float64 // "context_key|action" -> modifier
	recent    map[string][]float64
}

// NewStrategyAdapter creates an adapter over tracker, with an optional
// lesson repository.
func NewStrategyAdapter(tracker *Tracker, lessons *LessonRepository) *StrategyAdapter {
	return &StrategyAdapter{
		tracker:   tracker,
		lessons:   lessons,
		overrides: make(map[string]ActionBias),
		modifiers: make(map[string]float64),
		recent:    make(map[string][]float64),
	}
}

// SetOverride installs a manual bias override that short-circuits
// computation for action.
func (a *StrategyAdapter) SetOverride(action string, bias float64, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.overrides[action] = ActionBias{Bias: bias, Reason: reason}
}

// ClearOverride removes a manual override.
func (a *StrategyAdapter) ClearOverride(action string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.overrides, action)
}

// RecordRecentOutcome feeds the recent-window component for action.
func (a *StrategyAdapter) RecordRecentOutcome(action string, reward float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	window := append(a.recent[action], reward)
	if len(window) > recentRewardWindow {
		window = window[len(window)-recentRewardWindow:]
	}
	a.recent[action] = window
}

func rateToBias(rate float64) float64 {
	return 2 * MaxBias * (rate - 0.5)
}

func clampBias(b float64) float64 {
	if b > MaxBias {
		return MaxBias
	}
	if b < -MaxBias {
		return -MaxBias
	}
	return b
}

func modifierKey(contextKey, action string) string {
	if contextKey == "" {
		contextKey = "global"
	}
	return contextKey + "|" + action
}

// Bias computes the bias for action under contextKey. Manual overrides
// short-circuit; otherwise a weighted average of up to four present
// components (spec.md §4.L).
func (a *StrategyAdapter) Bias(action, contextKey string) float64 {
	a.mu.Lock()
	if override, ok := a.overrides[action]; ok {
		a.mu.Unlock()
		return clampBias(override.Bias)
	}
	recentWindow := append([]float64{}, a.recent[action]...)
	modifier, hasModifier := a.modifiers[modifierKey(contextKey, action)]
	a.mu.Unlock()

	var weightedSum, weightTotal float64

	if stats, ok := a.tracker.GetStats(action); ok && stats.TotalCount > 0 {
		weightedSum += 0.4 * rateToBias(stats.SuccessRate())
		weightTotal += 0.4
	}

	if contextKey != "" {
		contextRate := a.tracker.GetContextSuccessRate(contextKey, action)
		weightedSum += 0.4 * rateToBias(contextRate)
		weightTotal += 0.4
	}

	if len(recentWindow) > 0 {
		successes := 0
		for _, r := range recentWindow {
			if r > 0 {
				successes++
			}
		}
		rate := float64(successes) / float64(len(recentWindow))
		weightedSum += 0.2 * rateToBias(rate)
		weightTotal += 0.2
	}

	if hasModifier {
		weightedSum += 0.4 * modifier
		weightTotal += 0.4
	}

	if weightTotal == 0 {
		return 0
	}
	return clampBias(weightedSum / weightTotal)
}

// knownActions lists the actions the tracker has observed, so
// UpdateFromLesson can recognize action names mentioned in free text.
func (a *StrategyAdapter) knownActions() []string {
	a.tracker.mu.Lock()
	defer a.tracker.mu.Unlock()
	out := make([]string, 0, len(a.tracker.stats))
	for action := range a.tracker.stats {
		out = append(out, action)
	}
	return out
}

// UpdateFromLesson decrements the (context_key or "global", lesson.action)
// modifier, and increments the modifier for any known action token
// mentioned in BetterApproach (spec.md §4.L).
func (a *StrategyAdapter) UpdateFromLesson(lesson Lesson) {
	key := modifierKey(lesson.ContextKey, lesson.Action)
	decrement := 0.1 * (1 + 0.1*float64(lesson.ReinforcementCount))

	a.mu.Lock()
	a.modifiers[key] -= decrement
	a.mu.Unlock()

	better := strings.ToLower(lesson.BetterApproach)
	for _, action := range a.knownActions() {
		if action == lesson.Action {
			continue
		}
		if strings.Contains(better, strings.ToLower(action)) {
			k := modifierKey(lesson.ContextKey, action)
			a.mu.Lock()
			a.modifiers[k] += 0.1
			a.mu.Unlock()
		}
	}
}

// RankedAction pairs an action with its bias, for GetRankedActions.
type RankedAction struct {
	Action string
	Bias   float64
}

// GetRankedActions computes bias for each action under contextKey, sorted
// descending.
func (a *StrategyAdapter) GetRankedActions(actions []string, contextKey string) []RankedAction {
	out := make([]RankedAction, 0, len(actions))
	for _, action := range actions {
		out = append(out, RankedAction{Action: action, Bias: a.Bias(action, contextKey)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bias > out[j].Bias })
	return out
}

// GetPreferredAction returns the highest-bias action, or false if actions is
// empty.
func (a *StrategyAdapter) GetPreferredAction(actions []string, contextKey string) (string, bool) {
	ranked := a.GetRankedActions(actions, contextKey)
	if len(ranked) == 0 {
		return "", false
	}
	return ranked[0].Action, true
}

// GetActionsToAvoid returns actions whose bias is below threshold (default
// -0.2).
func (a *StrategyAdapter) GetActionsToAvoid(actions []string, contextKey string, threshold float64) []string {
	if threshold == 0 {
		threshold = -0.2
	}
	var out []string
	for _, ranked := range a.GetRankedActions(actions, contextKey) {
		if ranked.Bias < threshold {
			out = append(out, ranked.Action)
		}
	}
	return out
}

func truncateField(v string) string {
	if len(v) > 50 {
		return v[:50]
	}
	return v
}

// ExtractContextFeatures normalizes fields into "field:value[:50]" tokens
// and returns a short stable hash, or "global" if no fields are present
// (spec.md §4.L).
func ExtractContextFeatures(fields map[string]any) string {
	get := func(keys ...string) (string, bool) {
		for _, k := range keys {
			if v, ok := fields[k]; ok {
				if s, ok := v.(string); ok && s != "" {
					return s, true
				}
			}
		}
		return "", false
	}

	var tokens []string
	if v, ok := get("goal"); ok {
		tokens = append(tokens, "goal:"+truncateField(v))
	}
	if v, ok := get("task_type", "type"); ok {
		tokens = append(tokens, "task_type:"+truncateField(v))
	}
	if v, ok := get("environment", "env"); ok {
		tokens = append(tokens, "environment:"+truncateField(v))
	}
	if v, ok := get("previous_action"); ok {
		tokens = append(tokens, "previous_action:"+truncateField(v))
	}
	if v, ok := get("error", "error_state"); ok {
		tokens = append(tokens, "error:"+truncateField(v))
	}

	if len(tokens) == 0 {
		return "global"
	}
	return shortHash(strings.Join(tokens, "|"))
}
