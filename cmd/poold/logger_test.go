package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevels(t *testing.T) {
	_, err := NewLogger("verbose", "", "")
	assert.Error(t, err)

	l, err := NewLogger("", "", "")
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
	require.NoError(t, l.Close())

	l, err = NewLogger("debug", "", "")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, l.GetLevel())
	require.NoError(t, l.Close())
}

func TestAuditSink(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "poold.log")
	auditPath := filepath.Join(dir, "audit.log")

	l, err := NewLogger("info", logPath, auditPath)
	require.NoError(t, err)
	l.Info().Msg("routine")
	l.Warn().Msg("suspicious")
	l.Audit("deposit", map[string]any{"amount": 5})
	require.NoError(t, l.Close())

	audit, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	assert.Contains(t, string(audit), "suspicious")
	assert.Contains(t, string(audit), `"event":"deposit"`)
	assert.NotContains(t, string(audit), "routine")

	primary, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(primary), "routine")
	assert.Contains(t, string(primary), "suspicious")
}
