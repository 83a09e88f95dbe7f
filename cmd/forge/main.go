// Command forge is the CLI entry point for the evolutionary strategy
// search engine: it wires internal/config, internal/candleio,
// internal/discovery/genetic/islands/evaluator and internal/ga_metrics
// together behind a small cobra command tree, using a multi-verb CLI idiom
// suited to a tool with several distinct operations (evolve, run, report).
package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atlas-desktop/strategyforge/internal/config"
)

const appName = "forge"

var (
	flagConfigPath string
	flagLogLevel   string
	flagLogFile    string
)

func main() {
	root := &cobra.Command{
		Use:   appName,
		Short: "Offline algorithmic-trading backtest and strategy-search engine",
		Long: `forge backtests rule-based trading strategies against historical OHLCV
candles and searches for new ones with a genetic algorithm evolved across
multiple islands.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to a YAML/TOML/JSON config file")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "optional rotating log file path (in addition to stderr)")

	root.AddCommand(newEvolveCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newReportCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogger builds a zap logger writing colorized, human-readable output
// to stderr when it's a terminal (mattn/go-isatty) via mattn/go-colorable
// (Windows-safe ANSI passthrough), plus an optional rotating file sink
// (internal/config.NewRotatingWriter) when --log-file is set. The
// zapcore.EncoderConfig is built by hand rather than through
// zap.NewProduction() so the console and file sinks can use different
// level encoders.
func setupLogger(level, logFile string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var consoleOut zapcore.WriteSyncer
	if isatty.IsTerminal(os.Stderr.Fd()) {
		consoleOut = zapcore.AddSync(colorable.NewColorableStderr())
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		consoleOut = zapcore.AddSync(os.Stderr)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), consoleOut, zapLevel),
	}

	if logFile != "" {
		sink := config.NewRotatingWriter(config.DefaultLogSinkConfig(logFile))
		fileEncoderCfg := encoderCfg
		fileEncoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderCfg), zapcore.AddSync(sink), zapLevel))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func loadConfig() (config.Config, error) {
	return config.Load(flagConfigPath)
}
