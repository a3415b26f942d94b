package learning

import (
	"sort"
	"strings"
	"sync"
)

// Critique is the result of SelfCritic.Critique (spec.md §4.J).
type Critique struct {
	Action         string
	Source         string // "rule_based" or "llm"
	Level          string // "warning" by default for the generic fallback
	Reason         string
	BetterApproach string
	Pattern        string
	Confidence     float64
}

type failureRule struct {
	family         string
	keywords       []string
	reason         string
	betterApproach string
	pattern        string
}

var failureRules = []failureRule{
	{
		family:         "rate_limit",
		keywords:       []string{"rate limit", "too many requests", "429", "throttle"},
		reason:         "the action was rate-limited by the downstream service",
		betterApproach: "back off and retry with exponential delay, or switch to an alternative action",
		pattern:        "rate_limit",
	},
	{
		family:         "timeout",
		keywords:       []string{"timeout", "timed out", "deadline exceeded"},
		reason:         "the action exceeded its allotted time",
		betterApproach: "reduce scope, increase timeout, or retry with a smaller payload",
		pattern:        "timeout",
	},
	{
		family:         "auth_error",
		keywords:       []string{"unauthorized", "forbidden", "401", "403", "permission"},
		reason:         "the action lacked sufficient authorization",
		betterApproach: "verify credentials or request elevated permissions before retrying",
		pattern:        "auth_error",
	},
	{
		family:         "not_found",
		keywords:       []string{"not found", "404", "missing"},
		reason:         "the target resource did not exist",
		betterApproach: "verify the resource identifier or create it before acting on it",
		pattern:        "not_found",
	},
	{
		family:         "invalid_input",
		keywords:       []string{"invalid", "bad request", "400", "validation", "malformed"},
		reason:         "the action's input failed validation",
		betterApproach: "re-derive the input from a validated source before retrying",
		pattern:        "invalid_input",
	},
	{
		family:         "connection_error",
		keywords:       []string{"connection", "network", "unreachable", "refused"},
		reason:         "the action could not reach the target over the network",
		betterApproach: "check connectivity and retry, or fall back to a cached result",
		pattern:        "connection_error",
	},
}

// LLMCollaborator optionally replaces the rule-based critique (spec.md §4.J
// point 4). Kept as a narrow seam; no implementation ships here since the
// language-model collaborator is out of scope.
type LLMCollaborator interface {
	Critique(action, context, outcome, errorMessage string) (Critique, error)
}

// SelfCritic classifies failed outcomes into a Critique using keyword-family
// rules, with an optional LLM collaborator taking precedence.
type SelfCritic struct {
	mu         sync.Mutex
	llm        LLMCollaborator
	history    []Critique
	historyCap int
}

// NewSelfCritic creates a SelfCritic retaining up to historyCap recent
// critiques; historyCap <= 0 selects the default of 100.
func NewSelfCritic(llm LLMCollaborator, historyCap int) *SelfCritic {
	if historyCap <= 0 {
		historyCap = 100
	}
	return &SelfCritic{llm: llm, historyCap: historyCap}
}

// Critique combines outcome and errorMessage and matches against the
// built-in failure-family rules, or defers to an LLM collaborator if
// configured (spec.md §4.J).
func (c *SelfCritic) Critique(action, context, outcome, errorMessage string) Critique {
	if c.llm != nil {
		if crit, err := c.llm.Critique(action, context, outcome, errorMessage); err == nil {
			c.record(crit)
			return crit
		}
	}

	text := strings.ToLower(outcome + " " + errorMessage)
	for _, rule := range failureRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				crit := Critique{
					Action:         action,
					Source:         "rule_based",
					Level:          "error",
					Reason:         rule.reason,
					BetterApproach: rule.betterApproach,
					Pattern:        rule.pattern,
					Confidence:     0.6,
				}
				c.record(crit)
				return crit
			}
		}
	}

	crit := Critique{
		Action:         action,
		Source:         "rule_based",
		Level:          "warning",
		Reason:         "the action failed for an unrecognized reason",
		BetterApproach: "inspect the raw error and outcome text manually",
		Pattern:        "unknown",
		Confidence:     0.4,
	}
	c.record(crit)
	return crit
}

func (c *SelfCritic) record(crit Critique) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, crit)
	if len(c.history) > c.historyCap {
		c.history = c.history[len(c.history)-c.historyCap:]
	}
}

// RecentCritiques returns a copy of the retained critique history.
func (c *SelfCritic) RecentCritiques() []Critique {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Critique{}, c.history...)
}

// FailedAction is one input to GenerateImprovementSuggestions.
type FailedAction struct {
	Action       string
	ErrorMessage string
	Outcome      string
}

// Suggestion is one output of GenerateImprovementSuggestions.
type Suggestion struct {
	Action     string // empty for a system-wide, cross-action suggestion
	Text       string
	Confidence float64
	Priority   int // 1 highest
}

// GenerateImprovementSuggestions groups failedActions by action and emits a
// suggestion for any action with ≥2 failures, plus a system-wide suggestion
// for any failure family touching ≥2 distinct actions (spec.md §4.J).
func (c *SelfCritic) GenerateImprovementSuggestions(failedActions []FailedAction) []Suggestion {
	byAction := make(map[string][]FailedAction)
	for _, fa := range failedActions {
		byAction[fa.Action] = append(byAction[fa.Action], fa)
	}

	var suggestions []Suggestion
	actionNames := make([]string, 0, len(byAction))
	for action := range byAction {
		actionNames = append(actionNames, action)
	}
	sort.Strings(actionNames)

	familyActions := make(map[string]map[string]bool)
	familyRule := make(map[string]failureRule)

	for _, action := range actionNames {
		failures := byAction[action]
		for _, fa := range failures {
			text := strings.ToLower(fa.Outcome + " " + fa.ErrorMessage)
			for _, rule := range failureRules {
				for _, kw := range rule.keywords {
					if strings.Contains(text, kw) {
						if familyActions[rule.family] == nil {
							familyActions[rule.family] = make(map[string]bool)
							familyRule[rule.family] = rule
						}
						familyActions[rule.family][action] = true
						break
					}
				}
			}
		}

		if len(failures) < 2 {
			continue
		}
		confidence := 0.3 + 0.15*float64(len(failures))
		if confidence > 0.9 {
			confidence = 0.9
		}
		priority := 2
		if len(failures) >= 3 {
			priority = 1
		}
		suggestions = append(suggestions, Suggestion{
			Action:     action,
			Text:       "action " + action + " has repeated failures; consider revising its approach",
			Confidence: confidence,
			Priority:   priority,
		})
	}

	families := make([]string, 0, len(familyActions))
	for family := range familyActions {
		families = append(families, family)
	}
	sort.Strings(families)

	for _, family := range families {
		actions := familyActions[family]
		if len(actions) < 2 {
			continue
		}
		rule := familyRule[family]
		suggestions = append(suggestions, Suggestion{
			Text:       "system-wide " + family + " pattern across multiple actions: " + rule.betterApproach,
			Confidence: 0.7,
			Priority:   1,
		})
	}

	return suggestions
}
