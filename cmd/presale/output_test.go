package main

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput runs fn with stdout and stderr redirected and returns both.
func captureOutput(t *testing.T, fn func() error) (string, string, error) {
	t.Helper()

	oldStdout, oldStderr := os.Stdout, os.Stderr
	r, w, err := os.Pipe()
	require.NoError(t, err)
	r2, w2, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout, os.Stderr = w, w2

	runErr := fn()

	w.Close()
	w2.Close()
	os.Stdout, os.Stderr = oldStdout, oldStderr

	var stdout, stderr bytes.Buffer
	stdout.ReadFrom(r)
	stderr.ReadFrom(r2)
	return stdout.String(), stderr.String(), runErr
}

func TestJQFilterMatching(t *testing.T) {
	tests := []struct {
		name        string
		event       string
		filter      string
		expectMatch bool
		expectErr   bool
	}{
		{
			name:        "network match",
			event:       `{"network": "ETH", "token_amount": 9000}`,
			filter:      `.network == "ETH"`,
			expectMatch: true,
		},
		{
			name:        "network mismatch",
			event:       `{"network": "SOL", "token_amount": 9000}`,
			filter:      `.network == "ETH"`,
			expectMatch: false,
		},
		{
			name:        "large purchase",
			event:       `{"token_amount": 250000}`,
			filter:      `.token_amount > 100000`,
			expectMatch: true,
		},
		{
			name:        "small purchase",
			event:       `{"token_amount": 25}`,
			filter:      `.token_amount > 100000`,
			expectMatch: false,
		},
		{
			name:        "missing field is null",
			event:       `{"network": "ETH"}`,
			filter:      `.inviter`,
			expectMatch: false,
		},
		{
			name:        "non-boolean value is truthy",
			event:       `{"inviter": "0xabc"}`,
			filter:      `.inviter`,
			expectMatch: true,
		},
		{
			name:        "failed balance in raised event",
			event:       `{"balances": [{"asset": "SOL", "balance": null}]}`,
			filter:      `any(.balances[]; .balance == null)`,
			expectMatch: true,
		},
		{
			name:      "invalid JSON event",
			event:     `not-json`,
			filter:    `.network`,
			expectErr: true,
		},
		{
			name:      "runtime error",
			event:     `{"network": "ETH"}`,
			filter:    `.network | tonumber`,
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := compileJQ(tt.filter)
			require.NoError(t, err)

			matched, err := matchesJQ(code, []byte(tt.event))
			if tt.expectErr {
				assert.Error(t, err)
				assert.False(t, matched)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectMatch, matched)
		})
	}
}

func TestCompileJQ_Invalid(t *testing.T) {
	_, err := compileJQ(`.network ==`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid jq filter")
}

func TestIsTruthy(t *testing.T) {
	assert.False(t, isTruthy(nil))
	assert.False(t, isTruthy(false))
	assert.True(t, isTruthy(true))
	assert.True(t, isTruthy(0))
	assert.True(t, isTruthy(""))
	assert.True(t, isTruthy([]interface{}{}))
}

func TestWriteJSON(t *testing.T) {
	rows := []balanceRow{
		{Asset: "ETH", Network: "ETH", Address: "0xabc", Display: "1.5"},
		{Asset: "SOL", Network: "SOL", Address: "So1", Display: "0"},
	}

	t.Run("no filter", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeJSON(&buf, "", rows))

		var decoded []balanceRow
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, rows, decoded)
	})

	t.Run("filter emits each result", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeJSON(&buf, `.[].display`, rows))
		assert.Equal(t, "\"1.5\"\n\"0\"\n", buf.String())
	})

	t.Run("filter error", func(t *testing.T) {
		var buf bytes.Buffer
		err := writeJSON(&buf, `.[].display | tonumber | . / "x"`, rows)
		assert.Error(t, err)
	})
}
