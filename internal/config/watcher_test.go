package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/streambroker/internal/config"
)

func TestWatcherReloadsMessageExpiryOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retention_policy:\n  message_expiry: 1h\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.RetentionPolicy.MessageExpiry)

	w, err := config.NewWatcher(path, cfg, nil)
	require.NoError(t, err)
	defer w.Close()
	assert.Equal(t, time.Hour, w.MessageExpiry())

	require.NoError(t, os.WriteFile(path, []byte("retention_policy:\n  message_expiry: 2h\n"), 0o644))

	require.Eventually(t, func() bool {
		return w.MessageExpiry() == 2*time.Hour
	}, 2*time.Second, 10*time.Millisecond)
}
