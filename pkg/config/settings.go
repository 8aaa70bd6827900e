package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables of the runtime settings
const EnvPrefix = "AZT"

// Setting keys, shared by flags and environment variables
// (data-dir <-> AZT_DATA_DIR).
const (
	KeyDataDir          = "data-dir"
	KeyLogLevel         = "log-level"
	KeyLogFormat        = "log-format"
	KeyProgressInterval = "progress-interval"
	KeyTrace            = "trace"
	KeyPushgatewayURL   = "pushgateway-url"
)

// Settings are the runtime settings of one process
type Settings struct {
	DataDir          string
	LogLevel         string
	LogFormat        string
	ProgressInterval time.Duration
	Trace            bool
	PushgatewayURL   string
}

// NewViper creates a viper instance with defaults and environment binding
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyDataDir, "/data")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "json")
	v.SetDefault(KeyProgressInterval, 30*time.Second)
	v.SetDefault(KeyTrace, false)
	v.SetDefault(KeyPushgatewayURL, "")
	return v
}

// SettingsFrom reads the runtime settings from v
func SettingsFrom(v *viper.Viper) Settings {
	interval := v.GetDuration(KeyProgressInterval)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return Settings{
		DataDir:          v.GetString(KeyDataDir),
		LogLevel:         v.GetString(KeyLogLevel),
		LogFormat:        v.GetString(KeyLogFormat),
		ProgressInterval: interval,
		Trace:            v.GetBool(KeyTrace),
		PushgatewayURL:   v.GetString(KeyPushgatewayURL),
	}
}
