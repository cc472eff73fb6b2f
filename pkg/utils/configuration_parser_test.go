package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/janael-pinheiro/trap-module-golang/pkg/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const runtimeYAML = `
logLevel: debug
storage:
  driver: sqlite
  path: /var/lib/trap/state.db
timing:
  minWakeGap: 1m
  maxHardwareSleep: 70m
batteryLimitVolts: 3.2
probeWhenAlone: true
`

func writeFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "trap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestGivenYAMLThenParseRuntimeConfig(t *testing.T) {
	path := writeFile(t, runtimeYAML)

	conf, err := ConfigurationParser(path, entities.RuntimeConfig{})

	require.NoError(t, err)
	assert.Equal(t, "debug", conf.LogLevel)
	assert.Equal(t, "sqlite", conf.Storage.Driver)
	assert.Equal(t, time.Minute, conf.Timing.MinWakeGap)
	assert.Equal(t, 70*time.Minute, conf.Timing.MaxHardwareSleep)
	assert.True(t, conf.ProbeWhenAlone)
}

func TestGivenMissingFileThenParserReturnsError(t *testing.T) {
	_, err := ConfigurationParser(filepath.Join(t.TempDir(), "absent.yaml"), entities.RuntimeConfig{})
	assert.Error(t, err)
}

func TestGivenPartialFileThenLoadRuntimeConfigKeepsDefaults(t *testing.T) {
	path := writeFile(t, runtimeYAML)

	conf, err := LoadRuntimeConfig(path)

	require.NoError(t, err)
	assert.Equal(t, time.Minute, conf.Timing.MinWakeGap)
	assert.Equal(t, entities.DefaultSyncSleepGrace, conf.Timing.SyncSleepGrace)
	assert.Equal(t, int64(entities.DefaultRetryIterations), conf.Timing.RetryIterations)
	assert.Equal(t, 3.2, conf.BatteryLimitVolts)
}

func TestGivenMissingFileThenLoadRuntimeConfigUsesDefaults(t *testing.T) {
	conf, err := LoadRuntimeConfig(filepath.Join(t.TempDir(), "absent.yaml"))

	require.NoError(t, err)
	assert.Equal(t, entities.NewDefaultRuntimeConfig().Timing, conf.Timing)
}

func TestGivenEnvironmentThenOverrideFileSettings(t *testing.T) {
	t.Setenv("TRAP_STORAGE_DRIVER", "file")
	t.Setenv("TRAP_MIN_WAKE_GAP", "5m")
	path := writeFile(t, runtimeYAML)

	conf, err := LoadRuntimeConfig(path)

	require.NoError(t, err)
	assert.Equal(t, "file", conf.Storage.Driver)
	assert.Equal(t, 5*time.Minute, conf.Timing.MinWakeGap)
}

func TestGetValueFromEnvironmentVariable(t *testing.T) {
	t.Setenv("TRAP_TEST_VALUE", "x")
	assert.Equal(t, "x", GetValueFromEnvironmentVariable("TRAP_TEST_VALUE", "y"))
	assert.Equal(t, "y", GetValueFromEnvironmentVariable("TRAP_TEST_UNSET", "y"))
}
