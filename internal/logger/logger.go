package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// L is the process-wide sugared logger. Initialized at import time so
// every package can log before main has finished wiring.
var L *zap.SugaredLogger

func init() {
	encoding := "console"
	if os.Getenv("LOG_FORMAT") == "json" {
		encoding = "json"
	}

	config := zap.Config{
		Encoding:         encoding,
		Level:            zap.NewAtomicLevelAt(parseLevel(os.Getenv("LOG_LEVEL"))),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			MessageKey:     "msg",
			CallerKey:      "caller",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
	}

	zl, err := config.Build()
	if err != nil {
		panic(err)
	}

	L = zl.Sugar()
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func Infof(template string, args ...interface{}) {
	L.Infof(template, args...)
}

func Warnf(template string, args ...interface{}) {
	L.Warnf(template, args...)
}

func Errorf(template string, args ...interface{}) {
	L.Errorf(template, args...)
}

func Debugf(template string, args ...interface{}) {
	L.Debugf(template, args...)
}
