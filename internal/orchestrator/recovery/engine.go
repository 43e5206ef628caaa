package recovery

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/orchestrator/internal/domain/orchestration"
	"github.com/taskforge/orchestrator/internal/platform/dbctx"
	"github.com/taskforge/orchestrator/internal/platform/logger"
	"github.com/taskforge/orchestrator/internal/repos"
)

// Action is one of the four directives the Scheduler can receive back from
// Recover (§4.6).
type Action string

const (
	ActionRetry    Action = "retry"
	ActionSkip     Action = "skip"
	ActionContinue Action = "continue"
	ActionAbort    Action = "abort"
)

// Directive is the Recovery Engine's verdict for one failed step attempt.
type Directive struct {
	Action    Action
	Delay     time.Duration
	Input     map[string]any // retry: the (possibly alternative-approach-modified) input for re-execution
	Result    map[string]any // continue: the compensated result to record as though the step had succeeded
	Reason    string         // abort: why; "human_intervention_required" routes the caller to waiting_for_input rather than failed
	ErrorType string         // the taxonomy type this failure classified as (§4.6), carried for notification/audit payloads
}

type counterKey struct {
	taskID uuid.UUID
	step   string
}

// counterStore is the retry-attempt counter backing, keyed by (taskId,
// stepName). The default is an in-memory map; WithCounterStore swaps in a
// Redis-backed implementation for multi-process deployments (§5: "a
// Redis-backed variant for multi-process deployments").
type counterStore interface {
	Increment(taskID uuid.UUID, stepName string) int
	Reset(taskID uuid.UUID, stepName string)
}

// inMemoryCounters is the default counterStore: a mutex-guarded map, process
// lifetime only.
type inMemoryCounters struct {
	mu       sync.Mutex
	attempts map[counterKey]int
}

func newInMemoryCounters() *inMemoryCounters {
	return &inMemoryCounters{attempts: make(map[counterKey]int)}
}

func (c *inMemoryCounters) Increment(taskID uuid.UUID, stepName string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := counterKey{taskID, stepName}
	c.attempts[k]++
	return c.attempts[k]
}

func (c *inMemoryCounters) Reset(taskID uuid.UUID, stepName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attempts, counterKey{taskID, stepName})
}

// Engine is the Recovery Engine (C5). Retry counters are scoped to the
// scheduler component's process lifetime by default, reset on that step's
// first success — matching §4.6's "process-wide state..." lifecycle
// (§REDESIGN FLAGS).
type Engine struct {
	counters counterStore
	policies map[string]Policy
	repo     repos.RecoveryRepo
	log      *logger.Logger
}

func New(repo repos.RecoveryRepo, baseLog *logger.Logger) *Engine {
	return &Engine{
		counters: newInMemoryCounters(),
		policies: DefaultPolicies(),
		repo:     repo,
		log:      baseLog.With("component", "RecoveryEngine"),
	}
}

// WithPolicies replaces individual table entries (e.g. from §6 config
// overrides); unset keys keep their default.
func (e *Engine) WithPolicies(overrides map[string]Policy) *Engine {
	for k, v := range overrides {
		e.policies[k] = v
	}
	return e
}

// WithCounterStore swaps the retry-attempt counter backing, e.g. for a
// Redis-backed store shared across orchestratord replicas.
func (e *Engine) WithCounterStore(cs counterStore) *Engine {
	e.counters = cs
	return e
}

// ResetOnSuccess clears the retry counter for a step once it succeeds, so a
// later unrelated failure starts counting from attempt 1 again.
func (e *Engine) ResetOnSuccess(taskID uuid.UUID, stepName string) {
	e.counters.Reset(taskID, stepName)
}

func (e *Engine) nextAttempt(taskID uuid.UUID, stepName string) int {
	return e.counters.Increment(taskID, stepName)
}

// Recover classifies the failure, consults the policy table, and returns the
// directive the Scheduler should act on, appending an audit row to
// task_recovery along the way.
func (e *Engine) Recover(dbc dbctx.Context, taskID uuid.UUID, stepName string, cause error, errCode string, input map[string]any) Directive {
	errType := Classify(cause, errCode)
	policy := e.policyFor(errType)
	attempt := e.nextAttempt(taskID, stepName)

	strategy := policy.Strategy
	if (strategy == StrategyRetry || strategy == StrategyRetryWithBackoff) && attempt >= policy.MaxAttempts {
		strategy = escalationTarget(errType)
	}

	directive := e.directiveFor(strategy, policy, attempt, input)
	directive.ErrorType = errType
	e.audit(dbc, taskID, stepName, errType, strategy, attempt, cause)
	e.log.Warn("recovery decision", "taskId", taskID, "step", stepName, "errorType", errType, "strategy", strategy, "attempt", attempt, "action", directive.Action)
	return directive
}

func (e *Engine) directiveFor(strategy string, policy Policy, attempt int, input map[string]any) Directive {
	switch strategy {
	case StrategyRetry:
		return Directive{Action: ActionRetry, Input: input}
	case StrategyRetryWithBackoff:
		return Directive{Action: ActionRetry, Delay: Delay(policy, attempt), Input: input}
	case StrategyAlternativeApproach:
		return Directive{Action: ActionRetry, Input: withAlternativeApproach(input)}
	case StrategyHumanIntervention:
		return Directive{Action: ActionAbort, Reason: "human_intervention_required"}
	case StrategyCompensatingAction:
		return Directive{Action: ActionContinue, Result: input}
	case StrategySkipStep:
		return Directive{Action: ActionSkip}
	case StrategyAbort:
		return Directive{Action: ActionAbort, Reason: "retries_exhausted"}
	default:
		return Directive{Action: ActionAbort, Reason: "unrecognized_strategy"}
	}
}

// withAlternativeApproach shapes the retry input for the alternative_approach
// strategy (§8 S3): the executor is asked to simplify its request and split
// the work into chunks rather than repeat the exhausted attempt verbatim.
func withAlternativeApproach(input map[string]any) map[string]any {
	out := make(map[string]any, len(input)+2)
	for k, v := range input {
		out[k] = v
	}
	out["simplifyRequest"] = true
	out["splitIntoChunks"] = true
	return out
}

func (e *Engine) policyFor(errType string) Policy {
	if p, ok := e.policies[errType]; ok {
		return p
	}
	return Policy{Strategy: StrategyHumanIntervention}
}

func (e *Engine) audit(dbc dbctx.Context, taskID uuid.UUID, stepName, errType, strategy string, attempt int, cause error) {
	if e.repo == nil {
		return
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	rec := &orchestration.Recovery{
		TaskID:        taskID,
		StepName:      stepName,
		ErrorType:     errType,
		AttemptNumber: attempt,
	}
	if msg != "" {
		rec.ErrorJSON = jsonOrNil(map[string]any{"message": msg})
	}
	rec.StrategyJSON = jsonOrNil(map[string]any{"strategy": strategy})
	if err := e.repo.Append(dbc, rec); err != nil {
		e.log.Error("failed to append recovery audit row", "taskId", taskID, "step", stepName, "err", err)
	}
}
