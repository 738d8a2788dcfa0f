// Package logging builds the run logger: human-readable lines on the
// console and JSON records in a log file.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures New.
type Options struct {
	// File receives JSON records at debug level. Empty disables it.
	File    string
	Verbose bool
	// Console defaults to stderr.
	Console io.Writer
}

// New returns a logger and a function that flushes and closes it.
func New(opts Options) (*zap.Logger, func(), error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	level := zapcore.InfoLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	consoleEnc := zap.NewDevelopmentEncoderConfig()
	consoleEnc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEnc), zapcore.AddSync(console), level),
	}

	closeFile := func() {}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file %s: %w", opts.File, err)
		}
		closeFile = func() { _ = f.Close() }
		fileEnc := zap.NewProductionEncoderConfig()
		fileEnc.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEnc), zapcore.AddSync(f), zapcore.DebugLevel))
	}

	log := zap.New(zapcore.NewTee(cores...))
	return log, func() {
		_ = log.Sync()
		closeFile()
	}, nil
}
