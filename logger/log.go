package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Log   *zap.Logger
	level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
)

func init() {
	encCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeLevel:   zapcore.CapitalColorLevelEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(os.Stdout),
		level,
	)

	// skip one frame so the caller of the helpers below is reported
	Log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

// SetLevel switches the global level; unknown names leave it untouched.
func SetLevel(name string) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(name)))); err != nil {
		return
	}
	level.SetLevel(l)
}

// Named returns a child logger that reports its own call sites.
func Named(name string) *zap.Logger {
	return Log.WithOptions(zap.AddCallerSkip(-1)).Named(name)
}

func Sync() { _ = Log.Sync() }

// 快捷方法
func Info(msg string, fields ...zap.Field) { Log.Info(msg, fields...) }
func Infof(format string, args ...interface{}) {
	Log.Info(fmt.Sprintf(format, args...))
}
func Warn(msg string, fields ...zap.Field) { Log.Warn(msg, fields...) }
func Warnf(format string, args ...interface{}) {
	Log.Warn(fmt.Sprintf(format, args...))
}
func Error(msg string, fields ...zap.Field) { Log.Error(msg, fields...) }

func Errorf(format string, args ...interface{}) {
	Log.Error(fmt.Sprintf(format, args...))
}

func Debug(msg string, fields ...zap.Field) { Log.Debug(msg, fields...) }
func Debugf(format string, args ...interface{}) {
	Log.Debug(fmt.Sprintf(format, args...))
}
