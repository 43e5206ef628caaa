// Package orchestration holds the state-token enumeration, the transition
// and recovery audit records, and the durable Context record that the
// orchestration core reads and writes. These are pure data types; the rules
// that govern how they change live in internal/orchestrator/*.
package orchestration

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Phase is one of the fifteen ordered pipeline phases from §3.
type Phase string

const (
	PhaseTaskUnderstanding    Phase = "task_understanding"
	PhaseProjectUnderstanding Phase = "project_understanding"
	PhaseTaskPlanning         Phase = "task_planning"
	PhaseTechnologySelection  Phase = "technology_selection"
	PhaseCodeGeneration       Phase = "code_generation"
	PhaseCodeRefinement       Phase = "code_refinement"
	PhaseSelfReview           Phase = "self_review"
	PhaseErrorCorrection      Phase = "error_correction"
	PhaseTestGeneration       Phase = "test_generation"
	PhaseCodeExecution        Phase = "code_execution"
	PhaseTestAnalysis         Phase = "test_analysis"
	PhaseDocumentationUpdate  Phase = "documentation_update"
	PhaseLearningUpdate       Phase = "learning_update"
	PhasePrPreparation        Phase = "pr_preparation"
	PhaseFeedbackIntegration  Phase = "feedback_integration"
)

// Phases is the fixed, ordered pipeline. Index in this slice doubles as the
// 1-based "ordering position" referenced by the executor contract (§4.5).
var Phases = []Phase{
	PhaseTaskUnderstanding,
	PhaseProjectUnderstanding,
	PhaseTaskPlanning,
	PhaseTechnologySelection,
	PhaseCodeGeneration,
	PhaseCodeRefinement,
	PhaseSelfReview,
	PhaseErrorCorrection,
	PhaseTestGeneration,
	PhaseCodeExecution,
	PhaseTestAnalysis,
	PhaseDocumentationUpdate,
	PhaseLearningUpdate,
	PhasePrPreparation,
	PhaseFeedbackIntegration,
}

// StepWeights gives each phase's share of the 0-100 progress percentage used
// by the Scheduler's progress notifications (§4.8 step 4). Weights sum to
// 100; an in-flight step counts half its weight (computeProgress in
// internal/orchestrator/scheduler).
var StepWeights = map[Phase]int{
	PhaseTaskUnderstanding:    4,
	PhaseProjectUnderstanding: 6,
	PhaseTaskPlanning:         8,
	PhaseTechnologySelection: 5,
	PhaseCodeGeneration:       22,
	PhaseCodeRefinement:       10,
	PhaseSelfReview:           8,
	PhaseErrorCorrection:      6,
	PhaseTestGeneration:       10,
	PhaseCodeExecution:        8,
	PhaseTestAnalysis:         6,
	PhaseDocumentationUpdate:  3,
	PhaseLearningUpdate:       2,
	PhasePrPreparation:        1,
	PhaseFeedbackIntegration:  1,
}

// Ordinal returns the 1-based pipeline position of a phase, or 0 if unknown.
func Ordinal(p Phase) int {
	for i, ph := range Phases {
		if ph == p {
			return i + 1
		}
	}
	return 0
}

// Completed returns the "<phase>_completed" state token for a phase.
func (p Phase) Completed() string { return string(p) + "_completed" }

// Special, non-phase state tokens (§3).
const (
	StateInitialized      = "initialized"
	StateCompleted        = "completed"
	StateFailed           = "failed"
	StatePaused           = "paused"
	StateWaitingForInput  = "waiting_for_input"
	StateRecovering       = "recovering"
)

// IsTerminal reports whether a state token is a terminal state.
func IsTerminal(state string) bool {
	return state == StateCompleted || state == StateFailed
}

// IsSuspended reports whether a processor holding this state has released
// its admission slot (§5 suspension points).
func IsSuspended(state string) bool {
	return state == StatePaused || state == StateWaitingForInput
}

// ValidStates is the closed set used by the Validator (C1) to reject unknown
// tokens.
func ValidStates() map[string]bool {
	out := map[string]bool{
		StateInitialized:     true,
		StateCompleted:       true,
		StateFailed:          true,
		StatePaused:          true,
		StateWaitingForInput: true,
		StateRecovering:      true,
	}
	for _, p := range Phases {
		out[string(p)] = true
		out[p.Completed()] = true
	}
	return out
}

// State is the `task_state` table of §6: one row per write, latest row per
// task is authoritative.
type State struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TaskID       uuid.UUID      `gorm:"type:uuid;index;not null" json:"taskId"`
	State        string         `gorm:"not null" json:"state"`
	PreviousState string        `json:"previousState"`
	Message      string         `json:"message"`
	Metadata     datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt    time.Time      `gorm:"index" json:"createdAt"`
}

func (State) TableName() string { return "task_state" }

// Transition is `task_state_transition`: append-only audit (§3, §4.3).
type Transition struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TaskID    uuid.UUID      `gorm:"type:uuid;index;not null" json:"taskId"`
	FromState string         `gorm:"column:from_state;not null" json:"fromState"`
	ToState   string         `gorm:"column:to_state;not null" json:"toState"`
	Message   string         `json:"message"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`
	Timestamp time.Time      `gorm:"index" json:"timestamp"`
}

func (Transition) TableName() string { return "task_state_transition" }

// Recovery is `task_recovery`: append-only, attached under a step's
// `recovery` field in Context.StepResults (§3, §4.6).
type Recovery struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TaskID        uuid.UUID      `gorm:"type:uuid;index;not null" json:"taskId"`
	StepName      string         `gorm:"not null" json:"stepName"`
	ErrorType     string         `gorm:"not null" json:"errorType"`
	ErrorJSON     datatypes.JSON `json:"errorJson,omitempty"`
	StrategyJSON  datatypes.JSON `json:"strategyJson,omitempty"`
	AttemptNumber int            `json:"attemptNumber"`
	Timestamp     time.Time      `gorm:"index" json:"timestamp"`
}

func (Recovery) TableName() string { return "task_recovery" }
