// Package logging builds the zap logger raftd uses everywhere, following
// server/cmd/server/main.go's buildLogger: a production or development zap
// config picked by level string, with an optional syslog core tee'd
// alongside it.
package logging

import (
	"log/syslog"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	Level  string // debug, info, warn, error
	Syslog bool
}

// Build constructs a *zap.Logger per opts. When opts.Syslog is set, records
// are tee'd to the local syslog daemon in addition to the usual
// console/JSON core; there is no third-party zap-syslog core anywhere in
// the corpus, so this one leaf uses the standard library log/syslog
// directly.
func Build(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	if opts.Level == "debug" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level(opts.Level))

	if !opts.Syslog {
		return cfg.Build()
	}

	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	syslogCore, err := newSyslogCore(cfg.Level)
	if err != nil {
		base.Warn("syslog core unavailable, continuing without it", zap.Error(err))
		return base, nil
	}

	return zap.New(zapcore.NewTee(base.Core(), syslogCore)), nil
}

func level(s string) zapcore.Level {
	switch s {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// syslogWriteSyncer forwards encoded zap entries to the local syslog daemon
// at info priority.
type syslogWriteSyncer struct {
	w *syslog.Writer
}

func (s syslogWriteSyncer) Write(p []byte) (int, error) {
	if err := s.w.Info(string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s syslogWriteSyncer) Sync() error { return nil }

func newSyslogCore(enabler zapcore.LevelEnabler) (zapcore.Core, error) {
	w, err := syslog.New(syslog.LOG_INFO|syslog.LOG_DAEMON, "raftd")
	if err != nil {
		return nil, err
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = ""
	encoder := zapcore.NewJSONEncoder(encCfg)
	return zapcore.NewCore(encoder, syslogWriteSyncer{w: w}, enabler), nil
}
