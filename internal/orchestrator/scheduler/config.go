package scheduler

import "time"

// Config is the §6 configuration surface the Scheduler reads at
// construction time: maxConcurrentTasks, longRunningSteps,
// admission.queueCapacity. Recovery overrides reach the Recovery Engine
// through Engine.WithPolicies in internal/app; stepTimeouts is loaded by
// internal/config but applied neither here nor by any other component.
type Config struct {
	// MaxConcurrentTasks bounds the admission semaphore (default 5).
	MaxConcurrentTasks int64

	// LongRunningSteps is the configured subset of step names dispatched
	// through the job queue rather than run inline (§4.8.2).
	LongRunningSteps map[string]bool

	// QueueCapacity caps the waiting-admission queue; Execute returns
	// ResourceError once it is full (§6 admission.queueCapacity).
	QueueCapacity int

	// RecoverySleep is injectable so tests can skip real backoff sleeps.
	RecoverySleep func(time.Duration)
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrentTasks: 5,
		LongRunningSteps: map[string]bool{
			"code_generation":       true,
			"project_understanding": true,
			"code_execution":        true,
			"test_generation":       true,
			"learning_update":       true,
			"pr_preparation":        true,
		},
		QueueCapacity: 100,
		RecoverySleep: time.Sleep,
	}
}

func (c Config) isLongRunning(stepName string) bool {
	return c.LongRunningSteps[stepName]
}
