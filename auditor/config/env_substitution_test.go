package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstituteEnvVarsBasic(t *testing.T) {
	os.Setenv("AUDIT_TEST_VAR", "test_value")
	os.Setenv("AUDIT_OTHER_VAR", "other_value")
	defer func() {
		os.Unsetenv("AUDIT_TEST_VAR")
		os.Unsetenv("AUDIT_OTHER_VAR")
	}()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple substitution",
			input:    "site: ${AUDIT_TEST_VAR}",
			expected: "site: test_value",
		},
		{
			name:     "multiple substitutions",
			input:    "first: ${AUDIT_TEST_VAR}, second: ${AUDIT_OTHER_VAR}",
			expected: "first: test_value, second: other_value",
		},
		{
			name:     "substitution in URL",
			input:    "prometheus_url: http://${AUDIT_TEST_VAR}:9090",
			expected: "prometheus_url: http://test_value:9090",
		},
		{
			name:     "no references",
			input:    "plain text without vars",
			expected: "plain text without vars",
		},
		{
			name:     "unset variable",
			input:    "value: ${AUDIT_UNSET_VAR}",
			expected: "value: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := SubstituteEnvVars(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSubstituteEnvVarsDefaults(t *testing.T) {
	os.Setenv("AUDIT_SET_VAR", "set_value")
	defer os.Unsetenv("AUDIT_SET_VAR")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "default when unset",
			input:    "value: ${AUDIT_UNSET_VAR:-fallback}",
			expected: "value: fallback",
		},
		{
			name:     "actual value when set",
			input:    "value: ${AUDIT_SET_VAR:-fallback}",
			expected: "value: set_value",
		},
		{
			name:     "empty default",
			input:    "value: ${AUDIT_UNSET_VAR:-}",
			expected: "value: ",
		},
		{
			name:     "default with spaces",
			input:    "value: ${AUDIT_UNSET_VAR:-default with spaces}",
			expected: "value: default with spaces",
		},
		{
			name:     "default containing a URL",
			input:    "value: ${AUDIT_UNSET_VAR:-http://localhost:9090}",
			expected: "value: http://localhost:9090",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := SubstituteEnvVars(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSubstituteEnvVarsRequired(t *testing.T) {
	os.Setenv("AUDIT_SET_VAR", "set_value")
	defer os.Unsetenv("AUDIT_SET_VAR")

	tests := []struct {
		name          string
		input         string
		expectedError string
		expectedValue string
	}{
		{
			name:          "error when required var unset",
			input:         "password: ${AUDIT_UNSET_VAR:?database password must be set}",
			expectedError: "database password must be set",
		},
		{
			name:          "error with generated message",
			input:         "password: ${AUDIT_UNSET_VAR:?}",
			expectedError: "environment variable AUDIT_UNSET_VAR is required",
		},
		{
			name:          "no error when set",
			input:         "value: ${AUDIT_SET_VAR:?must be set}",
			expectedValue: "value: set_value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := SubstituteEnvVars(tt.input)
			if tt.expectedError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expectedValue, result)
			}
		})
	}
}

func TestSubstituteEnvVarsEscapes(t *testing.T) {
	os.Setenv("AUDIT_TEST_VAR", "test_value")
	defer os.Unsetenv("AUDIT_TEST_VAR")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "escaped reference",
			input:    "literal: $${AUDIT_TEST_VAR}",
			expected: "literal: ${AUDIT_TEST_VAR}",
		},
		{
			name:     "mixed escaped and substituted",
			input:    "escaped: $${VAR}, substituted: ${AUDIT_TEST_VAR}",
			expected: "escaped: ${VAR}, substituted: test_value",
		},
		{
			name:     "escaped with default syntax",
			input:    "value: $${VAR:-default}",
			expected: "value: ${VAR:-default}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := SubstituteEnvVars(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSubstituteEnvVarsEdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "unclosed brace left alone",
			input:    "value: ${VAR",
			expected: "value: ${VAR",
		},
		{
			name:     "empty reference",
			input:    "value: ${}",
			expected: "value: ",
		},
		{
			name:     "nested braces in default",
			input:    "value: ${VAR:-{nested}}",
			expected: "value: {nested}",
		},
		{
			name:     "triple dollar keeps one literal",
			input:    "value: $$${VAR}",
			expected: "value: $${VAR}",
		},
		{
			name:     "lone dollar",
			input:    "cost: $5",
			expected: "cost: $5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := SubstituteEnvVars(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}
