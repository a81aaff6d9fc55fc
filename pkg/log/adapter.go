package log

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the application logger. An unknown level falls back to info
// and is reported in the returned error so the caller can warn about it.
func NewLogger(level string, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	if out != nil {
		logger.SetOutput(out)
	}
	logger.SetLevel(logrus.InfoLevel)

	if level == "" {
		return logger, nil
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return logger, err
	}
	logger.SetLevel(parsed)
	return logger, nil
}

// BadgerLogger implements badger.Logger on top of a logrus entry.
// Badger reports routine table and compaction activity at info level;
// those lines are demoted to debug so they don't drown the scrape log.
type BadgerLogger struct {
	entry *logrus.Entry
}

// NewBadgerLogger creates a badger logger tagged with component=badgerdb
func NewBadgerLogger(entry *logrus.Entry) *BadgerLogger {
	return &BadgerLogger{entry: entry.WithField("component", "badgerdb")}
}

func (l *BadgerLogger) Errorf(f string, v ...interface{}) { l.entry.Errorf(trimNewline(f), v...) }

func (l *BadgerLogger) Warningf(f string, v ...interface{}) { l.entry.Warnf(trimNewline(f), v...) }

func (l *BadgerLogger) Infof(f string, v ...interface{}) { l.entry.Debugf(trimNewline(f), v...) }

func (l *BadgerLogger) Debugf(f string, v ...interface{}) { l.entry.Tracef(trimNewline(f), v...) }

// Badger format strings end in "\n", which logrus would print as an empty line
func trimNewline(f string) string {
	return strings.TrimRight(f, "\n")
}
