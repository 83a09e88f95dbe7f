package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Load reads a YAML/TOML/JSON config file (if path is non-empty and exists)
// plus FORGE_-prefixed environment overrides into a FileConfig, then
// translates it into Config. An empty or missing path is not an error;
// Load simply returns config.Config{} layered entirely on the Default*Config
// factories, the same "zero value is a sane default" contract every
// Default*Config() in this repo already provides.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return Config{}, newError("Load", "reading %s: %v", path, err)
			}
		}
	}

	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return Config{}, newError("Load", "unmarshalling config: %v", err)
	}
	return fc.ToConfig()
}

// LogSinkConfig describes the optional rotating file sink a CLI's
// --log-file flag wires into zap, grounded on the pack's lumberjack
// dependency.
type LogSinkConfig struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultLogSinkConfig mirrors the Default*Config() factory shape used
// throughout this repo's config types.
func DefaultLogSinkConfig(filename string) LogSinkConfig {
	return LogSinkConfig{
		Filename:   filename,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 28,
		Compress:   true,
	}
}

// NewRotatingWriter builds the lumberjack.Logger a zapcore.Core writes
// through when file logging is enabled.
func NewRotatingWriter(cfg LogSinkConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}
