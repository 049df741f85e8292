package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, false)
	log.Debug("hidden")
	log.Info("alert sent", "alert_id", 42)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "alert sent")
	assert.Contains(t, out, "alert_id=42")

	buf.Reset()
	NewWithWriter(&buf, true).Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}
