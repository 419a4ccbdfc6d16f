package common

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lni/dragonboat/v4/logger"
)

// LoggerNames lists every package logger of the driver
var LoggerNames = []string{
	"rpc",
	"transport/rpc",
	"pool",
	"server",
	"cli",
}

// levels maps accepted level names to dragonboat levels. The empty name
// selects the default.
var levels = map[string]logger.LogLevel{
	"":        logger.INFO,
	"debug":   logger.DEBUG,
	"info":    logger.INFO,
	"warn":    logger.WARNING,
	"warning": logger.WARNING,
	"error":   logger.ERROR,
}

// levelTags are the fixed width tags written in front of each line
var levelTags = map[logger.LogLevel]string{
	logger.DEBUG:    "DBG",
	logger.INFO:     "INF",
	logger.WARNING:  "WRN",
	logger.ERROR:    "ERR",
	logger.CRITICAL: "CRT",
}

// sink is shared by all package loggers so that lines of concurrent
// connections are never interleaved
type sink struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

var output = &sink{out: os.Stderr, now: time.Now}

// SetLogOutput redirects all driver loggers to w
func SetLogOutput(w io.Writer) {
	output.mu.Lock()
	output.out = w
	output.mu.Unlock()
}

func (s *sink) write(tag, name, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintf(s.out, "%s %s [%s] %s\n",
		s.now().Format("2006-01-02T15:04:05.000"), tag, name, strings.TrimRight(msg, "\n"))
}

// tupleLogger is the dragonboat logger.ILogger of the driver
type tupleLogger struct {
	name  string
	level logger.LogLevel
}

func (l *tupleLogger) SetLevel(level logger.LogLevel) { l.level = level }

func (l *tupleLogger) logf(level logger.LogLevel, format string, args ...interface{}) {
	if l.level < level {
		return
	}
	output.write(levelTags[level], l.name, fmt.Sprintf(format, args...))
}

func (l *tupleLogger) Debugf(format string, args ...interface{}) {
	l.logf(logger.DEBUG, format, args...)
}

func (l *tupleLogger) Infof(format string, args ...interface{}) {
	l.logf(logger.INFO, format, args...)
}

func (l *tupleLogger) Warningf(format string, args ...interface{}) {
	l.logf(logger.WARNING, format, args...)
}

func (l *tupleLogger) Errorf(format string, args ...interface{}) {
	l.logf(logger.ERROR, format, args...)
}

// Panicf logs and panics regardless of the level
func (l *tupleLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	output.write(levelTags[logger.CRITICAL], l.name, msg)
	panic(msg)
}

// CreateLogger is the dragonboat logger.Factory of the driver
func CreateLogger(pkgName string) logger.ILogger {
	return &tupleLogger{name: pkgName, level: logger.INFO}
}

// ParseLogLevel converts a level name (case insensitive) to a logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	lvl, ok := levels[strings.ToLower(strings.TrimSpace(level))]
	if !ok {
		return logger.INFO, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", level)
	}
	return lvl, nil
}

var installFactory sync.Once

// InitLoggers installs the driver logger factory and sets the level of
// every logger in LoggerNames
func InitLoggers(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	installFactory.Do(func() { logger.SetLoggerFactory(CreateLogger) })
	for _, name := range LoggerNames {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
