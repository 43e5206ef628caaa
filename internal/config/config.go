// Package config loads the §6 configuration surface via spf13/viper:
// environment variables (TASKFORGE_ prefix), an optional config file, and
// hardcoded defaults, in the same precedence order the teacher's CLI binds
// viper flags in (env overrides file overrides default).
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/taskforge/orchestrator/internal/domain/notification"
	"github.com/taskforge/orchestrator/internal/orchestrator/notifier"
	"github.com/taskforge/orchestrator/internal/orchestrator/recovery"
	"github.com/taskforge/orchestrator/internal/orchestrator/scheduler"
)

// Config is the fully resolved, typed configuration for one orchestratord
// process.
type Config struct {
	DatabaseDSN string
	DatabaseDriver string // "postgres" | "sqlite"

	MaxConcurrentTasks int64
	LongRunningSteps   map[string]bool
	QueueCapacity      int
	StepTimeouts       map[string]time.Duration

	Notifications notifier.Config

	RecoveryOverrides map[string]recovery.Policy

	JobQueueBackend string // "inprocess" | "temporal" | "amqp"
	TemporalTaskQueue string
	AMQPURL           string
	AMQPWorkQueue     string
	AMQPReplyQueue    string

	WebhookURL string

	HTTPAddr string

	// RedisURL, when set, backs the Recovery Engine's retry-attempt counters
	// with Redis INCR/DEL instead of the in-process default, so multiple
	// orchestratord replicas sharing one database agree on attempt counts
	// for the same (taskId, stepName).
	RedisURL string
}

// Load reads TASKFORGE_*-prefixed environment variables (and, if present, a
// taskforge.yaml in the working directory or /etc/taskforge/) into a
// Config, applying the §6 defaults for anything unset.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("taskforge")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/taskforge/")

	v.SetEnvPrefix("TASKFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, err
		}
	}

	cfg := Config{
		DatabaseDSN:        v.GetString("database.dsn"),
		DatabaseDriver:     v.GetString("database.driver"),
		MaxConcurrentTasks: v.GetInt64("maxConcurrentTasks"),
		QueueCapacity:      v.GetInt("admission.queueCapacity"),
		LongRunningSteps:   toBoolSet(v.GetStringSlice("longRunningSteps")),
		StepTimeouts:       toDurations(v.GetStringMapString("stepTimeouts")),
		JobQueueBackend:    v.GetString("jobQueue.backend"),
		TemporalTaskQueue:  v.GetString("jobQueue.temporal.taskQueue"),
		AMQPURL:            v.GetString("jobQueue.amqp.url"),
		AMQPWorkQueue:      v.GetString("jobQueue.amqp.workQueue"),
		AMQPReplyQueue:     v.GetString("jobQueue.amqp.replyQueue"),
		WebhookURL:         v.GetString("channels.webhook.url"),
		HTTPAddr:           v.GetString("http.addr"),
		RedisURL:           v.GetString("redis.url"),
		Notifications: notifier.Config{
			Websocket: channelConfig(v, "channels.websocket"),
			Persisted: channelConfig(v, "channels.persisted"),
			Webhook:   channelConfig(v, "channels.webhook"),
			Email:     channelConfig(v, "channels.email"),
		},
		RecoveryOverrides: map[string]recovery.Policy{},
	}
	// Each recovery.<error_type> entry replaces that type's whole default policy.
	if err := v.UnmarshalKey("recovery", &cfg.RecoveryOverrides); err != nil {
		return Config{}, err
	}
	if len(cfg.LongRunningSteps) == 0 {
		cfg.LongRunningSteps = scheduler.DefaultConfig().LongRunningSteps
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "taskforge.db")
	v.SetDefault("maxConcurrentTasks", 5)
	v.SetDefault("admission.queueCapacity", 100)
	v.SetDefault("jobQueue.backend", "inprocess")
	v.SetDefault("jobQueue.temporal.taskQueue", "taskforge")
	v.SetDefault("jobQueue.amqp.workQueue", "taskforge.steps")
	v.SetDefault("jobQueue.amqp.replyQueue", "taskforge.steps.replies")

	v.SetDefault("channels.websocket.enabled", true)
	v.SetDefault("channels.websocket.minPriority", "low")
	v.SetDefault("channels.persisted.enabled", true)
	v.SetDefault("channels.persisted.minPriority", "low")
	v.SetDefault("channels.webhook.enabled", false)
	v.SetDefault("channels.webhook.minPriority", "high")
	v.SetDefault("channels.email.enabled", false)
	v.SetDefault("channels.email.minPriority", "high")

	v.SetDefault("channels.webhook.url", "")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("redis.url", "")
}

func channelConfig(v *viper.Viper, key string) notifier.ChannelConfig {
	return notifier.ChannelConfig{
		Enabled:     v.GetBool(key + ".enabled"),
		MinPriority: notifierPriority(v.GetString(key + ".minPriority")),
	}
}

func notifierPriority(s string) notification.Priority {
	if s == "" {
		return notification.PriorityLow
	}
	return notification.Priority(s)
}

func toBoolSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

func toDurations(raw map[string]string) map[string]time.Duration {
	out := make(map[string]time.Duration, len(raw))
	for k, v := range raw {
		if d, err := time.ParseDuration(v); err == nil {
			out[k] = d
		}
	}
	return out
}
