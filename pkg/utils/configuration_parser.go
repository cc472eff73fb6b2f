package utils

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/janael-pinheiro/trap-module-golang/pkg/entities"
	"gopkg.in/yaml.v2"
)

type config interface {
	entities.RuntimeConfig | entities.TimingConfig | map[string]string
}

func readTextFile(filepathName string) ([]byte, error) {
	fileContent, err := os.ReadFile(filepath.Clean(filepathName))
	return fileContent, err
}

func ConfigurationParser[T config](filepathName string, configEntity T) (T, error) {
	fileContent, err := readTextFile(filepath.Clean(filepathName))
	if err != nil {
		return configEntity, err
	}

	err = yaml.Unmarshal(fileContent, &configEntity)
	return configEntity, err
}

// GetValueFromEnvironmentVariable returns the variable value or the default when unset.
func GetValueFromEnvironmentVariable(variableName, defaultValue string) string {
	value := os.Getenv(variableName)
	if value != "" {
		return value
	}
	return defaultValue
}

// ApplyEnvironmentOverrides lets the deployment override the file settings that change
// between fleets without editing the YAML.
func ApplyEnvironmentOverrides(conf entities.RuntimeConfig) entities.RuntimeConfig {
	conf.LogLevel = GetValueFromEnvironmentVariable("TRAP_LOG_LEVEL", conf.LogLevel)
	conf.ControlListen = GetValueFromEnvironmentVariable("TRAP_CONTROL_LISTEN", conf.ControlListen)
	conf.Storage.Driver = GetValueFromEnvironmentVariable("TRAP_STORAGE_DRIVER", conf.Storage.Driver)
	conf.Storage.Path = GetValueFromEnvironmentVariable("TRAP_STORAGE_PATH", conf.Storage.Path)
	conf.Uplink.URL = GetValueFromEnvironmentVariable("TRAP_UPLINK_URL", conf.Uplink.URL)
	conf.Uplink.UserToken = GetValueFromEnvironmentVariable("TRAP_UPLINK_TOKEN", conf.Uplink.UserToken)
	if gap, err := time.ParseDuration(os.Getenv("TRAP_MIN_WAKE_GAP")); err == nil {
		conf.Timing.MinWakeGap = gap
	}
	if limit, err := strconv.ParseFloat(os.Getenv("TRAP_BATTERY_LIMIT"), 64); err == nil {
		conf.BatteryLimitVolts = limit
	}
	return conf
}

// LoadRuntimeConfig reads the YAML file over the defaults; a missing file keeps the defaults.
func LoadRuntimeConfig(filepathName string) (entities.RuntimeConfig, error) {
	conf := entities.NewDefaultRuntimeConfig()
	if filepathName != "" {
		parsed, err := ConfigurationParser(filepathName, conf)
		if err != nil && !os.IsNotExist(err) {
			return conf, err
		}
		if err == nil {
			conf = parsed
		}
	}
	conf = ApplyEnvironmentOverrides(conf)
	conf.Timing = conf.Timing.WithDefaults()
	if conf.BatteryLimitVolts <= 0 {
		conf.BatteryLimitVolts = entities.DefaultBatteryLimitVolts
	}
	return conf, nil
}
