package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the process-wide logger. Helpers are no-ops until Init runs.
var Logger *log.Logger

type Config struct {
	Debug bool
	// Dir enables a rotating log file when set.
	Dir string
	// FileName defaults to Prefix + ".log".
	FileName string
	Prefix   string
	// Quiet keeps stderr silent unless Debug is set. The CLI uses it so
	// background refresh noise does not interleave with command output.
	Quiet bool
}

func Init(cfg Config) error {
	var writers []io.Writer
	if !cfg.Quiet || cfg.Debug {
		writers = append(writers, os.Stderr)
	}

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return err
		}
		name := cfg.FileName
		if name == "" {
			name = cfg.Prefix + ".log"
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, name),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	var w io.Writer = io.Discard
	if len(writers) > 0 {
		w = io.MultiWriter(writers...)
	}

	level := log.InfoLevel
	if cfg.Quiet {
		level = log.WarnLevel
	}
	if cfg.Debug {
		level = log.DebugLevel
	}

	Logger = log.NewWithOptions(w, log.Options{
		ReportCaller:    cfg.Debug,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          cfg.Prefix,
	})
	return nil
}

func Debug(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Debug(msg, keyvals...)
	}
}

func Info(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Info(msg, keyvals...)
	}
}

func Warn(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Warn(msg, keyvals...)
	}
}

func Error(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Error(msg, keyvals...)
	}
}

// Fatal logs and exits with status 1.
func Fatal(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Fatal(msg, keyvals...)
	}
	os.Exit(1)
}
