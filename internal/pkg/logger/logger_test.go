package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(INFO)
	SetRedactPII(true)
	t.Cleanup(func() { SetOutput(os.Stderr) })
	return &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]string {
	t.Helper()
	var entry map[string]string
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	return entry
}

func TestLogger_RedactsStudentData(t *testing.T) {
	buf := captureLogs(t)

	Info("import committed",
		"student_name", "Jo Lee",
		"guardian_phone", "+254 700 123456",
		"contact_email", "guardian@example.com",
		"file_name", "students.csv",
		"note", "mail guardian@example.com")

	entry := decodeLine(t, buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "import committed", entry["msg"])
	assert.Equal(t, "J. L.", entry["student_name"])
	assert.Equal(t, "***456", entry["guardian_phone"])
	assert.Equal(t, "gu***@example.com", entry["contact_email"])
	assert.Equal(t, "students.csv", entry["file_name"])
	assert.Equal(t, "mail gu***@example.com", entry["note"])
}

func TestLogger_LevelFilter(t *testing.T) {
	buf := captureLogs(t)
	SetLevel(WARN)
	defer SetLevel(INFO)

	Info("hidden")
	assert.Zero(t, buf.Len())
	Warn("shown")
	assert.Equal(t, "WARN", decodeLine(t, buf)["level"])
}

func TestLogger_KeyValueFields(t *testing.T) {
	buf := captureLogs(t)
	Error("commit failed", "session", "abc", "err", "boom", "dangling")

	entry := decodeLine(t, buf)
	assert.Equal(t, "abc", entry["session"])
	assert.Equal(t, "boom", entry["err"])
	assert.Equal(t, "ERROR", entry["level"])
	assert.NotContains(t, entry, "dangling", "odd trailing key is dropped")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("WARNING"))
	assert.Equal(t, ERROR, ParseLevel(" error "))
	assert.Equal(t, INFO, ParseLevel("chatty"))
}

func TestRedactHelpers(t *testing.T) {
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
	assert.Equal(t, "***", RedactPhone("12"))
	assert.Equal(t, "", RedactName("  "))
}
