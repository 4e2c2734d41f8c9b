package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Leveled logger shared by the document controller binaries.
// Init(level) selects the threshold; With(kv...) prefixes key=value context.

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var (
	mu     sync.RWMutex
	logger *log.Logger = log.New(os.Stdout, "", 0)
	level  Level       = LevelInfo
)

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
// Unknown values fall back to info.
func Init(l string) {
	mu.Lock()
	defer mu.Unlock()
	level = parseLevel(l)
}

func parseLevel(l string) Level {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	}
	return LevelInfo
}

func header(lvl string) string {
	return fmt.Sprintf("%s [%s] ", time.Now().UTC().Format(time.RFC3339), strings.ToUpper(lvl))
}

func enabled(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

func emit(l Level, tag, prefix, format string, v ...interface{}) {
	if !enabled(l) {
		return
	}
	logger.Printf(header(tag)+prefix+format, v...)
}

func Debugf(format string, v ...interface{}) { emit(LevelDebug, "debug", "", format, v...) }
func Infof(format string, v ...interface{})  { emit(LevelInfo, "info", "", format, v...) }
func Warnf(format string, v ...interface{})  { emit(LevelWarn, "warn", "", format, v...) }
func Errorf(format string, v ...interface{}) { emit(LevelError, "error", "", format, v...) }

func Fatalf(format string, v ...interface{}) {
	logger.Printf(header("fatal")+format, v...)
	os.Exit(1)
}

// Println maps to info.
func Println(v ...interface{}) {
	if !enabled(LevelInfo) {
		return
	}
	logger.Print(header("info") + fmt.Sprintln(v...))
}

// Entry carries key=value context rendered in front of the message.
type Entry struct {
	prefix string
}

// With renders alternating keys and values, e.g.
// With("doc", id, "action", a).Infof("committed").
// A trailing key without value is rendered with an empty value.
func With(kv ...interface{}) Entry {
	var b strings.Builder
	for i := 0; i < len(kv); i += 2 {
		var val interface{} = ""
		if i+1 < len(kv) {
			val = kv[i+1]
		}
		s := fmt.Sprint(val)
		if strings.ContainsAny(s, " \t\"=") {
			s = fmt.Sprintf("%q", s)
		}
		fmt.Fprintf(&b, "%v=%s ", kv[i], s)
	}
	return Entry{prefix: b.String()}
}

// With appends more context to an existing entry.
func (e Entry) With(kv ...interface{}) Entry {
	return Entry{prefix: e.prefix + With(kv...).prefix}
}

func (e Entry) Debugf(format string, v ...interface{}) { emit(LevelDebug, "debug", e.prefix, format, v...) }
func (e Entry) Infof(format string, v ...interface{})  { emit(LevelInfo, "info", e.prefix, format, v...) }
func (e Entry) Warnf(format string, v ...interface{})  { emit(LevelWarn, "warn", e.prefix, format, v...) }
func (e Entry) Errorf(format string, v ...interface{}) { emit(LevelError, "error", e.prefix, format, v...) }

// LevelString returns the current level as text.
func LevelString() string {
	mu.RLock()
	defer mu.RUnlock()
	switch level {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	}
	return "info"
}
