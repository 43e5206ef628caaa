package recovery

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/taskforge/orchestrator/internal/platform/logger"
)

// RedisCounters is a counterStore backed by Redis INCR/DEL, letting several
// orchestratord replicas agree on one task's retry-attempt count for a step
// (§5's Redis-backed variant of the process-local retry-counter map).
type RedisCounters struct {
	client *redis.Client
	prefix string
	log    *logger.Logger
}

// NewRedisCounters wraps an already-connected client; internal/app builds
// the client from §6's redis.url config entry.
func NewRedisCounters(client *redis.Client, baseLog *logger.Logger) *RedisCounters {
	return &RedisCounters{client: client, prefix: "taskforge:recovery:attempts", log: baseLog.With("component", "RedisRetryCounters")}
}

func (r *RedisCounters) key(taskID uuid.UUID, stepName string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, taskID, stepName)
}

// Increment atomically bumps and returns the new attempt count. A Redis
// error falls back to attempt 1 rather than blocking the Scheduler on a
// down cache.
func (r *RedisCounters) Increment(taskID uuid.UUID, stepName string) int {
	n, err := r.client.Incr(context.Background(), r.key(taskID, stepName)).Result()
	if err != nil {
		r.log.Error("redis retry counter increment failed, treating as attempt 1", "taskId", taskID, "step", stepName, "err", err)
		return 1
	}
	return int(n)
}

func (r *RedisCounters) Reset(taskID uuid.UUID, stepName string) {
	if err := r.client.Del(context.Background(), r.key(taskID, stepName)).Err(); err != nil {
		r.log.Error("redis retry counter reset failed", "taskId", taskID, "step", stepName, "err", err)
	}
}
