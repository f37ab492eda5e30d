package logger

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Logger is a category-tagged console logger. Every line carries a level,
// a timestamp and an upper-case category so service output stays greppable.
type Logger struct {
	mu    sync.Mutex
	debug bool
}

var (
	infoColor    = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	debugColor   = color.New(color.FgCyan)
	processColor = color.New(color.FgMagenta)
)

func NewLogger() *Logger {
	return &Logger{
		debug: os.Getenv("LOG_DEBUG") == "true",
	}
}

func (l *Logger) Close() {}

func (l *Logger) write(c *color.Color, level, category, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format("2006-01-02 15:04:05")
	c.Fprintf(os.Stdout, "[%s] %-5s [%s] %s\n", ts, level, category, msg)
}

func (l *Logger) Info(category, msg string) {
	l.write(infoColor, "INFO", category, msg)
}

func (l *Logger) Warn(category, msg string) {
	l.write(warnColor, "WARN", category, msg)
}

func (l *Logger) Error(category, msg string) {
	l.write(errorColor, "ERROR", category, msg)
}

func (l *Logger) Debug(category, msg string) {
	if !l.debug {
		return
	}
	l.write(debugColor, "DEBUG", category, msg)
}

func (l *Logger) Fatal(category, msg string) {
	l.write(errorColor, "FATAL", category, msg)
	os.Exit(1)
}

func (l *Logger) LogProcess(category, msg string) {
	l.write(processColor, "PROC", category, msg)
}

func (l *Logger) LogDatabase(operation, table, msg string) {
	l.Debug("DATABASE", fmt.Sprintf("[%s:%s] %s", operation, table, msg))
}

func (l *Logger) LogKafka(operation, topic, msg string) {
	l.Info("KAFKA", fmt.Sprintf("[%s:%s] %s", operation, topic, msg))
}

func (l *Logger) LogSettlement(operation, paymentRef, msg string) {
	l.Info("SETTLEMENT", fmt.Sprintf("[%s:%s] %s", operation, paymentRef, msg))
}

func (l *Logger) LogAPI(method, path, status, duration string) {
	l.Info("API", fmt.Sprintf("%s %s - %s (%s)", method, path, status, duration))
}

func (l *Logger) LogSecurity(event, msg string) {
	l.Warn("SECURITY", fmt.Sprintf("[%s] %s", event, msg))
}
