package recovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayMatchesSpecBackoffSchedule(t *testing.T) {
	p := DefaultPolicies()[TypeLLM]
	assert.Equal(t, 1000*time.Millisecond, Delay(p, 1))
	assert.Equal(t, 2000*time.Millisecond, Delay(p, 2))
	assert.Equal(t, 4000*time.Millisecond, Delay(p, 3))
}

func TestDelayCapsAtMaxDelay(t *testing.T) {
	p := DefaultPolicies()[TypeLLM] // max 60s
	assert.Equal(t, 60*time.Second, Delay(p, 10))
}

func TestDelayZeroForPlainRetry(t *testing.T) {
	p := DefaultPolicies()[TypeValidation]
	assert.Equal(t, time.Duration(0), Delay(p, 1))
}

func TestEscalationTargetTable(t *testing.T) {
	assert.Equal(t, StrategyAlternativeApproach, escalationTarget(TypeLLM))
	assert.Equal(t, StrategyHumanIntervention, escalationTarget(TypeNetwork))
	assert.Equal(t, StrategyHumanIntervention, escalationTarget(TypeDB))
	assert.Equal(t, StrategyHumanIntervention, escalationTarget(TypeGit))
	assert.Equal(t, StrategyAbort, escalationTarget(TypeTimeout))
	assert.Equal(t, StrategyAbort, escalationTarget(TypeOrchestration))
}

func TestDefaultPoliciesMatchSpecTable(t *testing.T) {
	pol := DefaultPolicies()
	assert.Equal(t, Policy{Strategy: StrategyRetry, MaxAttempts: 3}, pol[TypeValidation])
	assert.Equal(t, Policy{Strategy: StrategyRetry, MaxAttempts: 3}, pol[TypeSchema])
	assert.Equal(t, StrategyRetryWithBackoff, pol[TypeDB].Strategy)
	assert.Equal(t, 3, pol[TypeDB].MaxAttempts)
	assert.Equal(t, 15*time.Second, pol[TypeDB].MaxDelay)
	assert.Equal(t, StrategyRetryWithBackoff, pol[TypeNetwork].Strategy)
	assert.Equal(t, 5, pol[TypeNetwork].MaxAttempts)
	assert.Equal(t, 2, pol[TypeTimeout].MaxAttempts)
	assert.Equal(t, StrategyAlternativeApproach, pol[TypeExecution].Strategy)
	assert.Equal(t, StrategyRetryWithBackoff, pol[TypeResource].Strategy)
	assert.Equal(t, 5*time.Second, pol[TypeResource].InitialDelay)
	assert.Equal(t, StrategyHumanIntervention, pol[TypeUnknown].Strategy)
}
