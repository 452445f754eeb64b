package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the small structured logger accepted by every package in this module.
// Pass key-value pairs after the message, the way zap's sugared logger does.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// NoopLogger discards everything.
type NoopLogger struct{}

func (NoopLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (NoopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (NoopLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (NoopLogger) Error(msg string, keysAndValues ...interface{}) {}

// Options configures New.
type Options struct {
	// Dir holds the rotated log file. Empty disables file output.
	Dir string `yaml:"dir"`
	// File is the log file name inside Dir.
	File string `yaml:"file"`
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// MaxSizeMB, MaxBackups and MaxAgeDays are passed to lumberjack.
	MaxSizeMB  int `yaml:"max_size_mb"`
	MaxBackups int `yaml:"max_backups"`
	MaxAgeDays int `yaml:"max_age_days"`
}

func (o *Options) ApplyDefaults() {
	if o.File == "" {
		o.File = "credhost.log"
	}
	if o.Level == "" {
		o.Level = "info"
	}
	if o.MaxSizeMB == 0 {
		o.MaxSizeMB = 50
	}
	if o.MaxBackups == 0 {
		o.MaxBackups = 3
	}
	if o.MaxAgeDays == 0 {
		o.MaxAgeDays = 7
	}
}

// New builds a JSON zap logger writing to stdout and, when Dir is set, to a
// lumberjack-rotated file.
func New(opts Options) (*zap.Logger, error) {
	opts.ApplyDefaults()

	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(os.Stdout), level),
	}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, err
		}
		w := zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, opts.File),
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), w, level))
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}

// Sugar adapts a zap logger to Logger.
func Sugar(l *zap.Logger) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return sugared{s: l.Sugar()}
}

type sugared struct {
	s *zap.SugaredLogger
}

func (l sugared) Debug(msg string, keysAndValues ...interface{}) { l.s.Debugw(msg, keysAndValues...) }
func (l sugared) Info(msg string, keysAndValues ...interface{})  { l.s.Infow(msg, keysAndValues...) }
func (l sugared) Warn(msg string, keysAndValues ...interface{})  { l.s.Warnw(msg, keysAndValues...) }
func (l sugared) Error(msg string, keysAndValues ...interface{}) { l.s.Errorw(msg, keysAndValues...) }
