// Package executor is the dispatch table for pluggable Step Executors (C7).
//
// Purpose:
//   - Map a step name to a concrete Executor implementation
//   - Enforce a one-to-one relationship between step name and executor
//   - Provide a safe, concurrent lookup mechanism for the Scheduler
//
// The registry is the *only* place where step-name -> code binding happens.
// The Scheduler does not know about concrete executors; it only asks the
// registry for the one that claims responsibility for a given step name.
// This indirection decouples task orchestration from step-specific business
// logic and makes a missing or duplicate executor an explicit, fatal
// wiring error rather than a silent misdispatch.
package executor

import (
	"fmt"
	"sync"
	"time"

	"github.com/taskforge/orchestrator/internal/orchestrator/runtime"
)

// ResourceEstimate is the advisory hint returned by Executor.EstimateResources
// (§4.5); the Scheduler may use it to bias queued-vs-inline dispatch but
// correctness never depends on it.
type ResourceEstimate struct {
	Time    time.Duration
	Memory  int64
	CPUBand string
	Tokens  int
}

// Metadata describes a step independent of its implementation: its name,
// its 1-based ordering position in the fifteen-phase pipeline, and the set
// of step names whose successful result it requires as input (§4.8.1).
type Metadata struct {
	StepName     string
	Position     int
	Dependencies []string
}

// Executor is the polymorphic interface every step implementation must
// satisfy; one variant per pipeline phase (§4.5, §9).
//
// Execute must be safe to replay with the same recovery.attempts counter:
// the Recovery Engine may re-invoke a step after a transient failure, and
// the executor is responsible for any effect it needs to make idempotent.
type Executor interface {
	Metadata() Metadata
	CanExecute(ctx *runtime.StepContext) bool
	Execute(ctx *runtime.StepContext, input map[string]any) (runtime.Result, error)
	Rollback(ctx *runtime.StepContext) error
	EstimateResources(ctx *runtime.StepContext) ResourceEstimate
}

// BaseExecutor implements Rollback and EstimateResources as no-ops/zero
// values so concrete executors only need to override what they care about.
type BaseExecutor struct{ Meta Metadata }

func (b BaseExecutor) Metadata() Metadata { return b.Meta }
func (b BaseExecutor) Rollback(ctx *runtime.StepContext) error { return nil }
func (b BaseExecutor) EstimateResources(ctx *runtime.StepContext) ResourceEstimate {
	return ResourceEstimate{}
}

// Registry is a concurrency-safe map of step name -> Executor.
//
// Invariants:
//   - At most one executor may be registered per step name.
//   - Registration is expected to happen at process startup.
//   - Lookups may happen concurrently from many task-processor goroutines.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register adds an executor to the registry. Duplicate registration for the
// same step name is a configuration error and is rejected: step-name
// ambiguity would make step dispatch non-deterministic, and failing fast at
// startup is better than silently picking one.
func (r *Registry) Register(e Executor) error {
	if e == nil {
		return fmt.Errorf("executor: nil executor")
	}
	name := e.Metadata().StepName
	if name == "" {
		return fmt.Errorf("executor: Metadata().StepName is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executors[name]; exists {
		return fmt.Errorf("executor: already registered for step=%s", name)
	}
	r.executors[name] = e
	return nil
}

// Get retrieves the executor responsible for a given step name.
func (r *Registry) Get(stepName string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[stepName]
	return e, ok
}

// Dependencies returns the declared dependency set for a step, or nil if the
// step is not registered.
func (r *Registry) Dependencies(stepName string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[stepName]
	if !ok {
		return nil
	}
	return e.Metadata().Dependencies
}
