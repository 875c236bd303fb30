package console

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const maxUnexpectedMessage = 120

// Reporter prints severity-gated messages and terminates the process on fatal errors.
// It is created once from the verbosity flags and handed to every component that reports.
type Reporter struct {
	logger    *logrus.Logger
	verbosity int
	exit      func(int)
}

type Option func(*Reporter)

// WithOutput redirects every message to w.
func WithOutput(w io.Writer) Option {
	return func(r *Reporter) {
		r.logger.SetOutput(w)
	}
}

// WithExit replaces os.Exit.
func WithExit(exit func(int)) Option {
	return func(r *Reporter) {
		r.exit = exit
	}
}

// NewReporter builds a reporter for the given verbosity: below zero only errors are shown,
// zero adds warnings and info, one and above adds debug messages.
func NewReporter(verbosity int, opts ...Option) *Reporter {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		ForceColors:            true,
		DisableTimestamp:       true,
		DisableLevelTruncation: true,
	})
	logger.SetOutput(os.Stdout)
	logger.SetLevel(levelFor(verbosity))

	r := &Reporter{
		logger:    logger,
		verbosity: verbosity,
		exit:      os.Exit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func levelFor(verbosity int) logrus.Level {
	switch {
	case verbosity < 0:
		return logrus.ErrorLevel
	case verbosity == 0:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}

func (r *Reporter) Verbosity() int {
	return r.verbosity
}

// Logger exposes the underlying logger for structured fields.
func (r *Reporter) Logger() logrus.FieldLogger {
	return r.logger
}

func (r *Reporter) Error(format string, args ...interface{}) {
	r.logger.Errorf(format, args...)
}

func (r *Reporter) Warning(format string, args ...interface{}) {
	r.logger.Warnf(format, args...)
}

func (r *Reporter) Info(format string, args ...interface{}) {
	r.logger.Infof(format, args...)
}

func (r *Reporter) Debug(format string, args ...interface{}) {
	r.logger.Debugf(format, args...)
}

// Fatal reports err and exits with code 1. The stack trace is included when verbose.
func (r *Reporter) Fatal(err error) {
	if r.verbosity > 0 {
		r.logger.Errorf("%+v", err)
	} else {
		r.logger.Error(err.Error())
	}
	r.exit(1)
}

// Unexpected reports a recovered panic value and exits with code 1.
func (r *Reporter) Unexpected(recovered interface{}) {
	category := fmt.Sprintf("%T", recovered)
	message := fmt.Sprintf("%v", recovered)
	if r.verbosity > 0 {
		if err, ok := recovered.(error); ok {
			message = fmt.Sprintf("%+v", err)
		}
		r.logger.Errorf("Unexpected error: %s\n%s", category, message)
	} else {
		r.logger.Errorf("Unexpected error: %s\n%s\nRun with '-v' for more information.", category, truncate(message))
	}
	r.exit(1)
}

func truncate(message string) string {
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		message = message[:i]
	}
	if len(message) > maxUnexpectedMessage {
		message = message[:maxUnexpectedMessage] + "..."
	}
	return message
}
