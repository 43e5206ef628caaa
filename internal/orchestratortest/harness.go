// Package orchestratortest wires a full, in-memory Orchestrator API stack
// (sqlite-backed repos, the testexec fake executor set, an in-process job
// queue) for scenario and invariant tests across the orchestrator packages,
// grounded on the teacher's internal/data/repos/testutil package (Logger/DB
// helpers built once per test binary, gorm.AutoMigrate driving schema setup).
package orchestratortest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/taskforge/orchestrator/internal/domain/notification"
	"github.com/taskforge/orchestrator/internal/domain/orchestration"
	"github.com/taskforge/orchestrator/internal/executor/testexec"
	"github.com/taskforge/orchestrator/internal/jobqueue/inprocess"
	"github.com/taskforge/orchestrator/internal/orchestrator/api"
	"github.com/taskforge/orchestrator/internal/orchestrator/contextstore"
	"github.com/taskforge/orchestrator/internal/orchestrator/executor"
	"github.com/taskforge/orchestrator/internal/orchestrator/notifier"
	"github.com/taskforge/orchestrator/internal/orchestrator/notifier/channels"
	"github.com/taskforge/orchestrator/internal/orchestrator/recovery"
	"github.com/taskforge/orchestrator/internal/orchestrator/scheduler"
	"github.com/taskforge/orchestrator/internal/orchestrator/statemachine"
	"github.com/taskforge/orchestrator/internal/orchestrator/validator"
	"github.com/taskforge/orchestrator/internal/platform/dbctx"
	"github.com/taskforge/orchestrator/internal/platform/logger"
	"github.com/taskforge/orchestrator/internal/repos"
)

// CapturedNotification is one delivery a captureChannel observed, kept for
// assertions (e.g. S4's action_required notification, S1's monotonic
// progress sequence).
type CapturedNotification struct {
	Type    notification.Type
	TaskID  *uuid.UUID
	Title   string
	Message string
	Data    map[string]any
}

type captureChannel struct {
	name string
	mu   sync.Mutex
	sent []CapturedNotification
}

func (c *captureChannel) Name() string { return c.name }

func (c *captureChannel) Deliver(_ context.Context, n *notification.Notification, _ []uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var data map[string]any
	if len(n.Data) > 0 {
		_ = json.Unmarshal(n.Data, &data)
	}
	c.sent = append(c.sent, CapturedNotification{
		Type:    n.Type,
		TaskID:  n.TaskID,
		Title:   n.Title,
		Message: n.Message,
		Data:    data,
	})
	return nil
}

func (c *captureChannel) All() []CapturedNotification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CapturedNotification, len(c.sent))
	copy(out, c.sent)
	return out
}

// Harness bundles one fully-wired, in-memory orchestrator stack: sqlite
// repos, the testexec fake executor registry, an in-process job queue, and
// a capturing notification channel standing in for the real-time transport.
type Harness struct {
	DB       *gorm.DB
	Log      *logger.Logger
	Repos    repos.Set
	State    *statemachine.Manager
	CtxStore *contextstore.Store
	Recovery *recovery.Engine
	Registry *executor.Registry
	Notify   *notifier.Dispatcher
	Sched    *scheduler.Scheduler
	API      *api.API

	Captured *captureChannel

	sleeps   []time.Duration
	sleepsMu sync.Mutex
}

var sqliteSeq int64

// Option customizes a Harness's scheduler configuration before construction,
// e.g. WithMaxConcurrentTasks for admission-queueing scenarios.
type Option func(*scheduler.Config)

// WithMaxConcurrentTasks overrides the scheduler's admission bound (default 5).
func WithMaxConcurrentTasks(n int64) Option {
	return func(c *scheduler.Config) { c.MaxConcurrentTasks = n }
}

// New builds a Harness backed by its own isolated sqlite in-memory database
// (a unique shared-cache name per call keeps parallel tests from colliding,
// since plain ":memory:" is per-connection and gorm's pool would otherwise
// hand out unrelated databases to concurrent queries).
func New(tb testing.TB, registry *executor.Registry, opts ...Option) *Harness {
	tb.Helper()

	log, err := logger.New("test")
	if err != nil {
		tb.Fatalf("logger.New: %v", err)
	}

	n := atomic.AddInt64(&sqliteSeq, 1)
	dsn := fmt.Sprintf("file:orchestratortest_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), n)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("db.DB(): %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := repos.AutoMigrate(db); err != nil {
		tb.Fatalf("AutoMigrate: %v", err)
	}

	if registry == nil {
		registry = testexec.Registry()
	}

	repoSet := repos.New(db, log)
	valid := validator.New()
	ctxStore := contextstore.New(repoSet.Context, log)
	stateMgr := statemachine.New(repoSet.State, valid, log).WithContextCache(ctxStore)
	recov := recovery.New(repoSet.Recovery, log)

	capture := &captureChannel{name: "websocket"}
	notify := notifier.New(notifier.DefaultConfig(), repoSet.Subscribers, repoSet.Notifications, log)
	notify.Register(channels.NewPersistedChannel(repoSet.Notifications))
	notify.Register(capture)

	h := &Harness{
		DB: db, Log: log, Repos: repoSet,
		State: stateMgr, CtxStore: ctxStore, Recovery: recov,
		Registry: registry, Notify: notify, Captured: capture,
	}

	cfg := scheduler.DefaultConfig()
	cfg.RecoverySleep = h.recordSleep
	for _, opt := range opts {
		opt(&cfg)
	}
	queue := inprocess.New(registry, log)
	sched := scheduler.New(stateMgr, ctxStore, recov, registry, queue, notify, cfg, log)

	h.Sched = sched
	h.API = api.New(repoSet.Tasks, stateMgr, ctxStore, sched, log)
	return h
}

func (h *Harness) recordSleep(d time.Duration) {
	h.sleepsMu.Lock()
	h.sleeps = append(h.sleeps, d)
	h.sleepsMu.Unlock()
}

// Sleeps returns every delay the Scheduler asked its scheduler.Config
// RecoverySleep hook to wait on, in call order — without actually sleeping,
// so S2's "1000, 2000, 4000ms" backoff assertion runs instantly.
func (h *Harness) Sleeps() []time.Duration {
	h.sleepsMu.Lock()
	defer h.sleepsMu.Unlock()
	out := make([]time.Duration, len(h.sleeps))
	copy(out, h.sleeps)
	return out
}

// AwaitTerminal polls getStatus until the task reaches a terminal or
// suspended state (or the deadline elapses), since the Scheduler processes
// a task on its own goroutine.
func (h *Harness) AwaitTerminal(tb testing.TB, taskID uuid.UUID, timeout time.Duration) *api.Status {
	tb.Helper()
	deadline := time.Now().Add(timeout)
	for {
		st, err := h.API.GetStatus(context.Background(), taskID)
		if err != nil {
			tb.Fatalf("GetStatus: %v", err)
		}
		if isSettled(st.State) {
			return st
		}
		if time.Now().After(deadline) {
			tb.Fatalf("task %s did not settle before timeout; last state=%s", taskID, st.State)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// History returns a task's full transition log, wrapping the dbctx.Context
// plumbing the orchestrator packages require.
func (h *Harness) History(tb testing.TB, taskID uuid.UUID) []orchestration.Transition {
	tb.Helper()
	hist, err := h.State.GetStateHistory(dbctx.Context{Ctx: context.Background()}, taskID)
	if err != nil {
		tb.Fatalf("GetStateHistory: %v", err)
	}
	return hist
}

func isSettled(state string) bool {
	switch state {
	case "completed", "failed", "paused", "waiting_for_input":
		return true
	default:
		return false
	}
}
