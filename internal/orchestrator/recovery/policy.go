package recovery

import (
	"math"
	"time"
)

// The seven recovery strategies (§4.6).
const (
	StrategyRetry               = "retry"
	StrategyRetryWithBackoff    = "retry_with_backoff"
	StrategyAlternativeApproach = "alternative_approach"
	StrategyHumanIntervention   = "human_intervention"
	StrategyCompensatingAction  = "compensating_action"
	StrategySkipStep            = "skip_step"
	StrategyAbort               = "abort"
)

// Policy is one row of the default policy table: a strategy plus its retry
// bounds. InitialDelay/MaxDelay/Factor are only meaningful for
// retry_with_backoff; plain "retry" fires immediately, attempt after attempt,
// until MaxAttempts is reached.
type Policy struct {
	Strategy     string
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
}

// DefaultPolicies is the table from §4.6, keyed by taxonomy type. New starts
// every Engine from it; Engine.WithPolicies replaces individual entries
// (internal/app passes the configured recovery overrides that way).
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		TypeValidation:    {Strategy: StrategyRetry, MaxAttempts: 3},
		TypeSchema:        {Strategy: StrategyRetry, MaxAttempts: 3},
		TypeLLM:           {Strategy: StrategyRetryWithBackoff, MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: 60 * time.Second, Factor: 2},
		TypeDB:            {Strategy: StrategyRetryWithBackoff, MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 15 * time.Second, Factor: 2},
		TypeGit:           {Strategy: StrategyRetry, MaxAttempts: 3},
		TypeNetwork:       {Strategy: StrategyRetryWithBackoff, MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: 30 * time.Second, Factor: 2},
		TypeTimeout:       {Strategy: StrategyRetry, MaxAttempts: 2},
		TypeExecution:     {Strategy: StrategyAlternativeApproach},
		TypeResource:      {Strategy: StrategyRetryWithBackoff, MaxAttempts: 3, InitialDelay: 5 * time.Second, MaxDelay: 60 * time.Second, Factor: 2},
		TypeOrchestration: {Strategy: StrategyRetry, MaxAttempts: 3},
		TypeUnknown:       {Strategy: StrategyHumanIntervention},
	}
}

// escalationTarget is the strategy the engine substitutes once a retry/
// retry_with_backoff policy's MaxAttempts is exhausted (§4.6 "Escalation on
// exhaustion").
func escalationTarget(errType string) string {
	switch errType {
	case TypeLLM:
		return StrategyAlternativeApproach
	case TypeNetwork, TypeDB, TypeGit:
		return StrategyHumanIntervention
	default:
		return StrategyAbort
	}
}

// Delay computes the backoff for a given 1-based attempt number:
// min(maxDelay, initialDelay * factor^(attempt-1)), so the first retry
// waits exactly initialDelay.
func Delay(p Policy, attempt int) time.Duration {
	if p.InitialDelay <= 0 {
		return 0
	}
	factor := p.Factor
	if factor <= 0 {
		factor = 1
	}
	raw := float64(p.InitialDelay) * math.Pow(factor, float64(attempt-1))
	d := time.Duration(raw)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
