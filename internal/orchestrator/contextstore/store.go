// Package contextstore implements the Context Store (C2): the durable,
// per-task record that step executors read from and write results into.
package contextstore

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/orchestrator/internal/domain/orchestration"
	"github.com/taskforge/orchestrator/internal/domain/task"
	"github.com/taskforge/orchestrator/internal/platform/apierr"
	"github.com/taskforge/orchestrator/internal/platform/dbctx"
	"github.com/taskforge/orchestrator/internal/platform/logger"
	"github.com/taskforge/orchestrator/internal/repos"
)

// Store serializes read-modify-write access to each task's Context behind a
// per-task mutex, since the underlying JSON-blob row (§6) has no native
// dotted-path update and the store must still honor "atomic w.r.t.
// concurrent reads" (§4.2).
type Store struct {
	repo repos.ContextRepo
	log  *logger.Logger

	mu     sync.Mutex
	locks  map[uuid.UUID]*sync.Mutex
}

func New(repo repos.ContextRepo, baseLog *logger.Logger) *Store {
	return &Store{repo: repo, log: baseLog.With("component", "ContextStore"), locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (s *Store) lockFor(taskID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[taskID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[taskID] = l
	}
	return l
}

// Initialize creates the Context record. Calling it again with the same
// descriptor ID and Title, the same project id and the same initialData is a
// no-op (idempotent on identical initial data per §4.2); a difference in any
// of those is an AlreadyExists conflict. Other descriptor fields are not
// compared.
func (s *Store) Initialize(dbc dbctx.Context, taskID uuid.UUID, projectID *uuid.UUID, descriptor task.Descriptor, initialData map[string]any) (*orchestration.Context, error) {
	l := s.lockFor(taskID)
	l.Lock()
	defer l.Unlock()

	existing, err := s.repo.Get(dbc, taskID)
	if err == nil {
		if contextsEquivalent(existing, projectID, descriptor, initialData) {
			return existing, nil
		}
		return nil, apierr.AlreadyExists(fmt.Errorf("task %s already initialized with different data", taskID))
	}
	if !apierr.Is(err, apierr.CodeNotFound) {
		return nil, err
	}

	if initialData == nil {
		initialData = map[string]any{}
	}
	ctx := &orchestration.Context{
		TaskID:       taskID,
		ProjectID:    projectID,
		Task:         descriptor,
		CurrentState: orchestration.StateInitialized,
		StepResults:  map[string]orchestration.StepResult{},
		Data:         initialData,
	}
	if err := s.repo.Create(dbc, ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}

func contextsEquivalent(existing *orchestration.Context, projectID *uuid.UUID, descriptor task.Descriptor, initialData map[string]any) bool {
	if existing.Task.ID != descriptor.ID || existing.Task.Title != descriptor.Title {
		return false
	}
	if (existing.ProjectID == nil) != (projectID == nil) {
		return false
	}
	if existing.ProjectID != nil && projectID != nil && *existing.ProjectID != *projectID {
		return false
	}
	if len(initialData) != len(existing.Data) {
		return false
	}
	for k, v := range initialData {
		if fmt.Sprint(existing.Data[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

// Get returns a snapshot of the task's Context.
func (s *Store) Get(dbc dbctx.Context, taskID uuid.UUID) (*orchestration.Context, error) {
	return s.repo.Get(dbc, taskID)
}

// Update applies a dotted-path write (e.g. "userInput.task_understanding" or
// "nextStateAfterInput") against Context.Data, creating intermediate maps as
// needed, then persists the whole record.
func (s *Store) Update(dbc dbctx.Context, taskID uuid.UUID, path string, value any) error {
	l := s.lockFor(taskID)
	l.Lock()
	defer l.Unlock()

	ctx, err := s.repo.Get(dbc, taskID)
	if err != nil {
		return err
	}
	if ctx.Data == nil {
		ctx.Data = map[string]any{}
	}
	if err := setPath(ctx.Data, path, value); err != nil {
		return apierr.ValidationError(err)
	}
	return s.repo.Save(dbc, ctx)
}

// AddStepResult merges a step's result under stepResults[stepName],
// preserving the recovery.attempts counter across overwrites (§4.2, §8
// property 4): a new result inherits the prior attempt count unchanged
// (keeping its own count if that is higher), rather than resetting it.
func (s *Store) AddStepResult(dbc dbctx.Context, taskID uuid.UUID, stepName string, result orchestration.StepResult) error {
	l := s.lockFor(taskID)
	l.Lock()
	defer l.Unlock()

	ctx, err := s.repo.Get(dbc, taskID)
	if err != nil {
		return err
	}
	if ctx.StepResults == nil {
		ctx.StepResults = map[string]orchestration.StepResult{}
	}
	if prev, ok := ctx.StepResults[stepName]; ok && prev.Recovery != nil {
		attempts := prev.Recovery.Attempts
		if result.Recovery == nil {
			result.Recovery = &orchestration.RecoveryMeta{Attempts: attempts}
		} else if result.Recovery.Attempts < attempts {
			result.Recovery.Attempts = attempts
		}
	}
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}
	ctx.StepResults[stepName] = result
	return s.repo.Save(dbc, ctx)
}

// UpdateState is called by the State Manager once a transition has been
// persisted to task_state/task_state_transition; it keeps the Context's
// cached currentState and history in sync with that write (§4.2, §4.3 step
// 4). Callers pass a dbc carrying the same transaction as the state write
// where the underlying store supports it.
func (s *Store) UpdateState(dbc dbctx.Context, taskID uuid.UUID, transition orchestration.Transition) error {
	l := s.lockFor(taskID)
	l.Lock()
	defer l.Unlock()

	ctx, err := s.repo.Get(dbc, taskID)
	if err != nil {
		return err
	}
	ctx.CurrentState = transition.ToState
	ctx.History = append(ctx.History, transition)
	return s.repo.Save(dbc, ctx)
}

// setPath walks/creates nested map[string]any values along a dot-separated
// path and assigns value at the leaf.
func setPath(root map[string]any, path string, value any) error {
	if path == "" {
		return errors.New("path must not be empty")
	}
	parts := strings.Split(path, ".")
	cur := root
	for i, p := range parts {
		if p == "" {
			return fmt.Errorf("empty path segment in %q", path)
		}
		if i == len(parts)-1 {
			cur[p] = value
			return nil
		}
		next, ok := cur[p]
		if !ok {
			m := map[string]any{}
			cur[p] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("path segment %q is not a map", p)
		}
		cur = m
	}
	return nil
}
