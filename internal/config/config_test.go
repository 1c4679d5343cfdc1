package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadFrom_DefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
smtp:
  host: smtp.local
  port: 587
notification:
  admin_email: ops@example.com
`)
	t.Setenv("NOTIFICATION_TIMEZONE", "Europe/Berlin")
	t.Setenv("ADMIN_EMAIL", "")

	cfg, err := LoadFrom("test", dir)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30, cfg.Notification.DefaultDays)
	assert.Equal(t, "09:00", cfg.Notification.DefaultTime)
	assert.Equal(t, "ops@example.com", cfg.Notification.AdminEmail)
	assert.Equal(t, "Europe/Berlin", cfg.Location().String())
	assert.Equal(t, time.Hour, cfg.DedupTTL())
	assert.False(t, cfg.Notification.SkipAlreadyNotified)
}

func TestLoadFrom_InvalidTimezone(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
notification:
  timezone: Mars/Olympus
`)
	t.Setenv("NOTIFICATION_TIMEZONE", "")

	_, err := LoadFrom("test", dir)
	assert.Error(t, err)
}

func TestLoadFrom_InvalidDefaultTime(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
notification:
  default_time: "27:00"
`)
	t.Setenv("NOTIFICATION_TIMEZONE", "")

	_, err := LoadFrom("test", dir)
	assert.Error(t, err)
}
