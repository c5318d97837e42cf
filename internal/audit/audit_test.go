// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_RecordWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	clock := clockwork.NewFakeClockAt(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	l, err := Open(path, WithClock(clock))
	require.NoError(t, err)

	l.Record("OVERLAY_ACTIVATED", "s1", true, map[string]string{"auto_dismiss": "true"})
	l.Record("PIN_REJECTED", "s1", false, map[string]string{"remaining_attempts": "2"})
	require.NoError(t, l.Close())

	events, err := ReadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "OVERLAY_ACTIVATED", events[0].EventType)
	assert.True(t, events[0].Success)
	assert.True(t, clock.Now().Equal(events[0].Timestamp))
	assert.Equal(t, os.Getpid(), events[0].PID)
	assert.Equal(t, "2", events[1].Metadata["remaining_attempts"])
	assert.False(t, events[1].Success)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestLogger_RedactsSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(path)
	require.NoError(t, err)

	l.Record("PIN_REJECTED", "s1", false, map[string]string{
		"pin":    "1234",
		"detail": "header Bearer abc.def-123",
		"note":   "pin_code=9876",
	})
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.NotContains(t, text, "1234")
	assert.NotContains(t, text, "abc.def-123")
	assert.NotContains(t, text, "9876")
	assert.Contains(t, text, "[REDACTED]")
}

func TestLogger_Rotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	l, err := Open(path, WithMaxSize(1))
	require.NoError(t, err)
	defer l.Close()

	l.Record("OVERLAY_ACTIVATED", "s1", true, nil)
	l.Record("OVERLAY_DISMISSED", "s1", true, nil)

	matches, err := filepath.Glob(filepath.Join(dir, "audit_*.log"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	events, err := ReadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "OVERLAY_DISMISSED", events[0].EventType)
}

func TestLogger_Disabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(path)
	require.NoError(t, err)
	l.SetEnabled(false)
	l.Record("OVERLAY_ACTIVATED", "s1", true, nil)
	require.NoError(t, l.Close())

	events, err := ReadEvents(path)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestLogger_WriteAfterCloseIsIgnored(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "audit.log"))
	require.NoError(t, err)
	require.NoError(t, l.Close())
	assert.NoError(t, l.Log(Event{EventType: "X"}))
	assert.False(t, l.Failed())
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "Bearer [TOKEN_REDACTED]", Redact("Bearer s3cr3t"))
	assert.Equal(t, "nothing here", Redact("nothing here"))
}
