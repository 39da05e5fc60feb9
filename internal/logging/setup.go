package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Setup configures the standard logrus logger. With a non-empty path, output
// goes to that file (the TUI owns the terminal); otherwise to stderr.
// The returned closer releases the file and is safe to call when none was opened.
func Setup(level, path string) (io.Closer, error) {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nopCloser{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})

	if path == "" {
		logrus.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logrus.SetOutput(os.Stderr)
		return nopCloser{}, fmt.Errorf("failed to open log file: %w", err)
	}
	logrus.SetOutput(f)
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	return f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
