package recovery

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyByStructuredCode(t *testing.T) {
	cases := map[string]string{
		"llm":             TypeLLM,
		"LLM_ERROR":       TypeLLM,
		"db":              TypeDB,
		"database_error":  TypeDB,
		"git":             TypeGit,
		"network":         TypeNetwork,
		"timeout":         TypeTimeout,
		"execution_error": TypeExecution,
		"resource":        TypeResource,
		"orchestration":   TypeOrchestration,
		"validation":      TypeValidation,
		"schema":          TypeSchema,
	}
	for code, want := range cases {
		got := Classify(errors.New("boom"), code)
		assert.Equalf(t, want, got, "code=%q", code)
	}
}

func TestClassifyFallsBackToMessageSubstring(t *testing.T) {
	cases := map[string]string{
		"connection refused by peer":     TypeNetwork,
		"context deadline exceeded":      TypeTimeout,
		"rate_limit exceeded on request": TypeLLM,
		"merge conflict in file.go":      TypeGit,
		"out of memory":                  TypeResource,
		"unrecognizable failure":         TypeUnknown,
	}
	for msg, want := range cases {
		got := Classify(errors.New(msg), "")
		assert.Equalf(t, want, got, "msg=%q", msg)
	}
}

func TestClassifyTimeoutBeforeNetwork(t *testing.T) {
	// "timeout" rule must win over "network" even though a timeout message
	// might mention a connection.
	got := Classify(errors.New("dial tcp: i/o timeout"), "")
	assert.Equal(t, TypeTimeout, got)
}

func TestClassifyNilErrorNoCode(t *testing.T) {
	assert.Equal(t, TypeUnknown, Classify(nil, ""))
}
