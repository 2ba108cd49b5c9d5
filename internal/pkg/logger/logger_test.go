package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureEntry(t *testing.T, fn func()) map[string]string {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })

	fn()

	var entry map[string]string
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	return entry
}

func TestInfoWritesStructuredEntry(t *testing.T) {
	entry := captureEntry(t, func() {
		Info("batch finished", "processed", 3, "failed", 1)
	})
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "batch finished", entry["msg"])
	assert.Equal(t, "3", entry["processed"])
	assert.Equal(t, "1", entry["failed"])
	assert.NotEmpty(t, entry["time"])
}

func TestSecretsAreMasked(t *testing.T) {
	entry := captureEntry(t, func() {
		Warn("pull", "session_cookie", "sessionid=abc123", "cron_secret", "hunter2", "account_id", "acct-1")
	})
	assert.Equal(t, masked, entry["session_cookie"])
	assert.Equal(t, masked, entry["cron_secret"])
	assert.Equal(t, "acct-1", entry["account_id"])
}

func TestUsernamesArePartiallyMasked(t *testing.T) {
	entry := captureEntry(t, func() {
		Error("send failed", "recipient_username", "@jane.doe")
	})
	assert.Equal(t, "ja***", entry["recipient_username"])
}

func TestBelowLevelIsDropped(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })

	Debug("noise")
	assert.Zero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("warning"))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("bogus"))
}

func TestRedactHandle(t *testing.T) {
	assert.Equal(t, "***", RedactHandle("jd"))
	assert.Equal(t, "ab***", RedactHandle("abcdef"))
}
