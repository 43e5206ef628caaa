// Package validator implements the Validator (C1): pure functions that
// check a transition record or a step result against a schema. The State
// Manager runs ValidateTransition before every state write; nothing in the
// orchestration core calls ValidateStepResult.
package validator

import (
	"fmt"

	"github.com/taskforge/orchestrator/internal/domain/orchestration"
)

// DefaultMaxMetadataBytes bounds the serialized size of a transition's
// metadata map; configurable via Validator.MaxMetadataBytes.
const DefaultMaxMetadataBytes = 32 * 1024

// Result is the {valid, errors[]} value returned by every check (§4.1).
type Result struct {
	Valid  bool
	Errors []string
}

func ok() Result  { return Result{Valid: true} }
func fail(msgs ...string) Result { return Result{Valid: false, Errors: msgs} }

// Validator holds the one tunable check, the metadata size limit (New sets
// DefaultMaxMetadataBytes; internal/config has no key for it); everything
// else in §4.1 is a fixed structural check.
type Validator struct {
	MaxMetadataBytes int
}

func New() *Validator {
	return &Validator{MaxMetadataBytes: DefaultMaxMetadataBytes}
}

// ValidateTransition checks a candidate transition record: non-empty
// taskId, known state tokens, and a metadata size bound. It does NOT check
// table admissibility — that is the Transition Manager's job, since
// admissibility depends on the current state, not the record's shape.
func (v *Validator) ValidateTransition(t *orchestration.Transition) Result {
	if t == nil {
		return fail("transition record is nil")
	}
	var errs []string
	if t.TaskID.String() == "" || t.TaskID.String() == "00000000-0000-0000-0000-000000000000" {
		errs = append(errs, "taskId is required")
	}
	if t.ToState == "" {
		errs = append(errs, "toState is required")
	}
	states := orchestration.ValidStates()
	if t.FromState != "" && !states[t.FromState] {
		errs = append(errs, fmt.Sprintf("unknown fromState %q", t.FromState))
	}
	if t.ToState != "" && !states[t.ToState] {
		errs = append(errs, fmt.Sprintf("unknown toState %q", t.ToState))
	}
	if limit := v.limit(); len(t.Metadata) > limit {
		errs = append(errs, fmt.Sprintf("metadata exceeds %d bytes", limit))
	}
	if len(errs) > 0 {
		return fail(errs...)
	}
	return ok()
}

// ValidateStepResult checks a step result record: the step name is present
// and a failed result carries an error message.
func (v *Validator) ValidateStepResult(stepName string, r *orchestration.StepResult) Result {
	if stepName == "" {
		return fail("stepName is required")
	}
	if r == nil {
		return fail("step result is nil")
	}
	var errs []string
	if !r.Success && r.Error == "" {
		errs = append(errs, "failed step result must carry an error message")
	}
	if len(errs) > 0 {
		return fail(errs...)
	}
	return ok()
}

func (v *Validator) limit() int {
	if v == nil || v.MaxMetadataBytes <= 0 {
		return DefaultMaxMetadataBytes
	}
	return v.MaxMetadataBytes
}
