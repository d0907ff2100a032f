package main

import (
	"io"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-auth-server/config"
)

// newLogger builds the root logger. Components take named children
// through GetLogger.
func newLogger(cfg config.Logging, out io.Writer) *glog.BaseLogger {
	opts := []glog.Option{
		glog.WithName("authd"),
		glog.WithLevel(logLevel(cfg.Level)),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
		glog.WithWriter(out),
	}

	switch strings.ToLower(cfg.Format) {
	case "json":
		opts = append(opts, glog.WithLoggerTypeJSON())
	case "pretty":
		opts = append(opts, glog.WithLoggerTypePretty())
	default:
		opts = append(opts, glog.WithLoggerTypeConsole())
	}

	return glog.NewLogger(opts...)
}

func logLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return glog.Debug
	case "warn", "warning":
		return glog.Warn
	case "error":
		return glog.Error
	default:
		return glog.Info
	}
}
