// Package logging builds the zap logger shared by the commands.
//
// Entries can go to the console, a size-rotated file and a Feed that a
// terminal UI drains into its log pane. Any combination may be enabled.
package logging

import (
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the log outputs.
type Options struct {
	Level   zapcore.Level
	Console io.Writer // nil disables console output
	File    string    // rotated log file, empty disables
	Feed    *Feed
}

// New builds a logger writing to every output in opts. With no outputs it
// returns a no-op logger.
func New(opts Options) *zap.Logger {
	var cores []zapcore.Core

	if opts.Console != nil {
		enc := zap.NewDevelopmentEncoderConfig()
		enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(enc),
			zapcore.Lock(zapcore.AddSync(opts.Console)),
			opts.Level))
	}

	if opts.File != "" {
		enc := zap.NewProductionEncoderConfig()
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(enc),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    64,
				MaxBackups: 3,
				Compress:   true,
			}),
			zapcore.DebugLevel))
	}

	if opts.Feed != nil {
		enc := zapcore.EncoderConfig{
			TimeKey:          "T",
			LevelKey:         "L",
			MessageKey:       "M",
			LineEnding:       "\n",
			EncodeTime:       zapcore.TimeEncoderOfLayout("[15:04:05]"),
			EncodeLevel:      zapcore.CapitalLevelEncoder,
			EncodeDuration:   zapcore.StringDurationEncoder,
			ConsoleSeparator: " ",
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(enc),
			opts.Feed,
			zapcore.InfoLevel))
	}

	if len(cores) == 0 {
		return zap.NewNop()
	}
	return zap.New(zapcore.NewTee(cores...))
}

// CaptureStdLog sends the standard library logger, which ffmpeg-go prints
// its commands to, to l at debug level. The returned func restores it.
func CaptureStdLog(l *zap.Logger) func() {
	restore, err := zap.RedirectStdLogAt(l.Named("stdlog"), zapcore.DebugLevel)
	if err != nil {
		return func() {}
	}
	return restore
}

// Feed is a bounded channel of formatted log lines. When the reader falls
// behind new lines are dropped rather than blocking the logger.
type Feed struct {
	ch chan string
}

// NewFeed returns a feed buffering up to size lines.
func NewFeed(size int) *Feed {
	return &Feed{ch: make(chan string, size)}
}

// Lines returns the channel of log lines.
func (f *Feed) Lines() <-chan string {
	return f.ch
}

// Write implements zapcore.WriteSyncer. Each call carries one entry.
func (f *Feed) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	select {
	case f.ch <- line:
	default:
		// Drop if channel full
	}
	return len(p), nil
}

// Sync implements zapcore.WriteSyncer.
func (f *Feed) Sync() error {
	return nil
}
