package logger

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := logger
	logger = log.New(&buf, "", 0)
	t.Cleanup(func() {
		logger = orig
		Init("info")
	})
	return &buf
}

func TestInitAndLevelString(t *testing.T) {
	t.Cleanup(func() { Init("info") })
	for in, want := range map[string]string{
		"debug":    "debug",
		"WARN":     "warn",
		"warning":  "warn",
		"Error":    "error",
		"nonsense": "info",
	} {
		Init(in)
		assert.Equal(t, want, LevelString(), "Init(%q)", in)
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t)

	Init("warn")
	Debugf("debug-msg")
	Infof("info-msg")
	Warnf("warn-msg")
	Errorf("error-msg")
	Println("hello")

	out := buf.String()
	assert.NotContains(t, out, "debug-msg")
	assert.NotContains(t, out, "info-msg")
	assert.NotContains(t, out, "hello")
	assert.Contains(t, out, "[WARN] warn-msg")
	assert.Contains(t, out, "[ERROR] error-msg")

	Init("info")
	buf.Reset()
	Println("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestWithRendersContext(t *testing.T) {
	buf := captureOutput(t)
	Init("debug")

	With("doc", "A01VA004", "action", "publish").With("reason", "typo found").Infof("committed %d", 2)
	assert.Contains(t, buf.String(), `[INFO] doc=A01VA004 action=publish reason="typo found" committed 2`)

	buf.Reset()
	With("dangling").Debugf("x")
	assert.Contains(t, buf.String(), "dangling= x")
}
