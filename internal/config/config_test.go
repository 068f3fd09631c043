package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/streambroker/internal/brokerr"
	"github.com/flowforge/streambroker/internal/config"
	"github.com/flowforge/streambroker/internal/sysinfo"
)

func probeWithTotal(total uint64) config.MemoryProbe {
	return func() (sysinfo.Memory, error) {
		return sysinfo.Memory{TotalBytes: total, FreeBytes: total / 2}, nil
	}
}

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	err := cfg.Validate(probeWithTotal(8<<30), func(string, ...any) {})
	assert.NoError(t, err)
}

func TestValidateRejectsOversizedSegment(t *testing.T) {
	cfg := config.Default()
	cfg.Segment.SizeBytes = config.MaxSegmentSizeBytes + 1
	err := cfg.Validate(nil, nil)
	require.Error(t, err)
	var target brokerr.InvalidConfigurationError
	assert.ErrorAs(t, err, &target)
}

func TestValidateRejectsZeroIntervalWhenEnabled(t *testing.T) {
	cfg := config.Default()
	cfg.MessageCleaner.Enabled = true
	cfg.MessageCleaner.Interval = 0
	err := cfg.Validate(nil, nil)
	require.Error(t, err)
	var target brokerr.InvalidConfigurationError
	assert.ErrorAs(t, err, &target)
}

func TestValidateAllowsZeroIntervalWhenDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.MessageCleaner.Enabled = false
	cfg.MessageCleaner.Interval = 0
	err := cfg.Validate(nil, nil)
	assert.NoError(t, err)
}

func TestValidateRejectsCacheLargerThanMemory(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.SizeBytes = 16 << 30
	err := cfg.Validate(probeWithTotal(8<<30), func(string, ...any) {})
	require.Error(t, err)
	var target brokerr.CacheConfigValidationFailureError
	assert.ErrorAs(t, err, &target)
}

func TestValidateWarnsAboveMemoryThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.SizeBytes = 7 << 30
	var warned bool
	err := cfg.Validate(probeWithTotal(8<<30), func(string, ...any) { warned = true })
	assert.NoError(t, err)
	assert.True(t, warned)
}

func TestValidateSkipsMemoryCheckWhenProbeFails(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.SizeBytes = 1 << 40
	failing := func() (sysinfo.Memory, error) { return sysinfo.Memory{}, assertError{} }
	err := cfg.Validate(failing, nil)
	assert.NoError(t, err)
}

type assertError struct{}

func (assertError) Error() string { return "probe unavailable" }

func TestLoadFillsDefaultsForAbsentFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("segment:\n  size_bytes: 2048\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(2048), cfg.Segment.SizeBytes)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.True(t, cfg.MessageSaver.Enabled)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("segment: [unterminated\n"), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
	var target brokerr.InvalidConfigurationError
	assert.ErrorAs(t, err, &target)
}

func TestLoadMissingFileReturnsIoError(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	var target brokerr.IoError
	assert.ErrorAs(t, err, &target)
}
