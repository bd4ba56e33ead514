package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New("json", false, &buf, "1.2.3")

	l.LogError("claim failed", errors.New("boom"), "lead_id", 42)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "claim failed", rec["msg"])
	assert.Equal(t, "boom", rec["error"])
	assert.Equal(t, float64(42), rec["lead_id"])
	assert.Equal(t, "1.2.3", rec["version"])
}

func TestLoggerVerbose(t *testing.T) {
	var quiet, loud bytes.Buffer
	New("text", false, &quiet, "dev").Verbose("tick")
	New("text", true, &loud, "dev").Verbose("tick")

	assert.Empty(t, quiet.String())
	assert.Contains(t, loud.String(), "msg=tick")
}
