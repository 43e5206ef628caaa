package contextstore

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/taskforge/orchestrator/internal/domain/orchestration"
	"github.com/taskforge/orchestrator/internal/domain/task"
	"github.com/taskforge/orchestrator/internal/platform/apierr"
	"github.com/taskforge/orchestrator/internal/platform/dbctx"
	"github.com/taskforge/orchestrator/internal/platform/logger"
	"github.com/taskforge/orchestrator/internal/repos"
)

var seq int64

func newStore(t *testing.T) *Store {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)

	n := atomic.AddInt64(&seq, 1)
	dsn := fmt.Sprintf("file:contextstoretest_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), n)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repos.AutoMigrate(db))

	return New(repos.NewContextRepo(db, log), log)
}

func descriptor() task.Descriptor {
	return task.Descriptor{ID: uuid.New(), Title: "Add login", Priority: task.PriorityHigh}
}

func TestInitializeIsIdempotentOnIdenticalData(t *testing.T) {
	s := newStore(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	taskID := uuid.New()
	d := descriptor()
	data := map[string]any{"foo": "bar"}

	_, err := s.Initialize(dbc, taskID, nil, d, data)
	require.NoError(t, err)

	got, err := s.Initialize(dbc, taskID, nil, d, data)
	require.NoError(t, err)
	assert.Equal(t, orchestration.StateInitialized, got.CurrentState)
}

func TestInitializeConflictsOnDifferentData(t *testing.T) {
	s := newStore(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	taskID := uuid.New()
	d := descriptor()

	_, err := s.Initialize(dbc, taskID, nil, d, map[string]any{"foo": "bar"})
	require.NoError(t, err)

	_, err = s.Initialize(dbc, taskID, nil, d, map[string]any{"foo": "different"})
	assert.True(t, apierr.Is(err, apierr.CodeAlreadyExists))
}

func TestGetUnknownTaskIsNotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.Get(dbctx.Context{Ctx: context.Background()}, uuid.New())
	assert.True(t, apierr.Is(err, apierr.CodeNotFound))
}

func TestUpdateDottedPathCreatesIntermediateMaps(t *testing.T) {
	s := newStore(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	taskID := uuid.New()
	_, err := s.Initialize(dbc, taskID, nil, descriptor(), nil)
	require.NoError(t, err)

	require.NoError(t, s.Update(dbc, taskID, "userInput.task_understanding", map[string]any{"answer": "yes"}))

	got, err := s.Get(dbc, taskID)
	require.NoError(t, err)
	ui, ok := got.UserInput("task_understanding")
	require.True(t, ok)
	assert.Equal(t, "yes", ui["answer"])
}

func TestAddStepResultPreservesAttemptsCounterAcrossOverwrites(t *testing.T) {
	s := newStore(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	taskID := uuid.New()
	_, err := s.Initialize(dbc, taskID, nil, descriptor(), nil)
	require.NoError(t, err)

	require.NoError(t, s.AddStepResult(dbc, taskID, "codeGenerator", orchestration.StepResult{
		Success:  false,
		Error:    "llm_error",
		Recovery: &orchestration.RecoveryMeta{Attempts: 2},
	}))

	require.NoError(t, s.AddStepResult(dbc, taskID, "codeGenerator", orchestration.StepResult{
		Success: true,
	}))

	got, err := s.Get(dbc, taskID)
	require.NoError(t, err)
	r := got.StepResults["codeGenerator"]
	assert.True(t, r.Success)
	require.NotNil(t, r.Recovery)
	assert.Equal(t, 2, r.Recovery.Attempts)
}

func TestUpdateStateAppendsHistory(t *testing.T) {
	s := newStore(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	taskID := uuid.New()
	_, err := s.Initialize(dbc, taskID, nil, descriptor(), nil)
	require.NoError(t, err)

	tr := orchestration.Transition{
		TaskID:    taskID,
		FromState: orchestration.StateInitialized,
		ToState:   "task_understanding",
		Timestamp: time.Now(),
	}
	require.NoError(t, s.UpdateState(dbc, taskID, tr))

	got, err := s.Get(dbc, taskID)
	require.NoError(t, err)
	assert.Equal(t, "task_understanding", got.CurrentState)
	require.Len(t, got.History, 1)
	assert.Equal(t, "task_understanding", got.History[0].ToState)
}
