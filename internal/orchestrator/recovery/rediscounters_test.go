package recovery_test

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/orchestrator/internal/orchestrator/recovery"
	"github.com/taskforge/orchestrator/internal/platform/logger"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

// TestRedisCountersIncrementAndReset exercises the Redis-backed retry
// counter that WithCounterStore installs for multi-replica deployments
// (§5), backed by miniredis so the test needs no live Redis.
func TestRedisCountersIncrementAndReset(t *testing.T) {
	log, err := logger.New("test")
	require.NoError(t, err)

	counters := recovery.NewRedisCounters(newTestClient(t), log)
	taskID := uuid.New()

	require.Equal(t, 1, counters.Increment(taskID, "codeGenerator"))
	require.Equal(t, 2, counters.Increment(taskID, "codeGenerator"))

	// A distinct (taskId, stepName) key starts its own count from zero.
	require.Equal(t, 1, counters.Increment(taskID, "prManager"))

	counters.Reset(taskID, "codeGenerator")
	require.Equal(t, 1, counters.Increment(taskID, "codeGenerator"))
}

// TestRedisCountersIncrementFallsBackOnError mirrors Increment's documented "a Redis error
// falls back to attempt 1 rather than blocking the Scheduler": with the
// server gone, Increment must not panic or hang.
func TestRedisCountersIncrementFallsBackOnError(t *testing.T) {
	log, err := logger.New("test")
	require.NoError(t, err)

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	srv.Close()

	counters := recovery.NewRedisCounters(client, log)
	require.Equal(t, 1, counters.Increment(uuid.New(), "codeGenerator"))
}
