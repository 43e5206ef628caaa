// Package recovery implements the Recovery Engine (C5): error
// classification, the default retry-policy table, escalation-on-exhaustion,
// and the retry/skip/continue/abort directive the Scheduler acts on.
package recovery

import "strings"

// The eleven error-type tokens of the taxonomy.
const (
	TypeValidation   = "validation_error"
	TypeSchema       = "schema_error"
	TypeLLM          = "llm_error"
	TypeDB           = "db_error"
	TypeGit          = "git_error"
	TypeNetwork      = "network_error"
	TypeTimeout      = "timeout_error"
	TypeExecution    = "execution_error"
	TypeResource     = "resource_error"
	TypeOrchestration = "orchestration_error"
	TypeUnknown      = "unknown_error"
)

// keywordRules maps a taxonomy type to the substrings recognized in an
// error's code or message. Order matters: the first match wins, so more
// specific tokens (e.g. "timeout") are listed ahead of broader ones
// ("network") that might otherwise swallow them.
var keywordRules = []struct {
	errType string
	needles []string
}{
	{TypeValidation, []string{"validation", "invalid_input", "invalid input"}},
	{TypeSchema, []string{"schema"}},
	{TypeTimeout, []string{"timeout", "deadline exceeded", "context deadline"}},
	{TypeLLM, []string{"llm", "model_error", "completion_error", "token_limit", "rate_limit"}},
	{TypeDB, []string{"db_error", "database", "sql", "constraint", "deadlock", "gorm"}},
	{TypeGit, []string{"git_error", "git ", "merge conflict", "repository"}},
	{TypeNetwork, []string{"network", "connection refused", "dial tcp", "dns", "econnreset"}},
	{TypeExecution, []string{"execution", "exit code", "panic", "runtime error"}},
	{TypeResource, []string{"resource", "quota", "out of memory", "disk full", "too many open files"}},
	{TypeOrchestration, []string{"orchestration", "transition", "state machine"}},
}

// Classify derives a taxonomy type from a caller-supplied structured code
// (exact or substring match against the eleven type names, e.g. "llm" or
// "LLM_ERROR", then the keywordRules substrings, e.g. "database_error") and,
// failing that, substrings of the error's message. Unmapped
// errors classify as TypeUnknown, which escalates straight to
// human_intervention per the default policy table.
func Classify(cause error, code string) string {
	if t, ok := classifyToken(code); ok {
		return t
	}
	if cause == nil {
		return TypeUnknown
	}
	msg := strings.ToLower(cause.Error())
	for _, rule := range keywordRules {
		for _, needle := range rule.needles {
			if strings.Contains(msg, needle) {
				return rule.errType
			}
		}
	}
	return TypeUnknown
}

func classifyToken(code string) (string, bool) {
	if code == "" {
		return "", false
	}
	c := strings.ToLower(strings.TrimSpace(code))
	for _, rule := range keywordRules {
		base := strings.TrimSuffix(rule.errType, "_error")
		if c == rule.errType || c == base || strings.Contains(c, base) {
			return rule.errType, true
		}
	}
	for _, rule := range keywordRules {
		for _, needle := range rule.needles {
			if strings.Contains(c, needle) {
				return rule.errType, true
			}
		}
	}
	return "", false
}
