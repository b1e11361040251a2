package logging

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"slices"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.viam.com/utils"
)

type (
	impl struct {
		name  string
		level *atomic.Int32
		inUTC bool

		mu        sync.RWMutex
		appenders []Appender
	}

	// LogEntry embeds a zapcore Entry and slice of Fields.
	LogEntry struct {
		zapcore.Entry
		fields []zapcore.Field
	}
)

func newImpl(name string, level Level, inUTC bool, appenders ...Appender) *impl {
	return &impl{
		name:      name,
		level:     atomic.NewInt32(int32(level)),
		inUTC:     inUTC,
		appenders: appenders,
	}
}

func (imp *impl) AddAppender(appender Appender) {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	imp.appenders = append(imp.appenders, appender)
}

func (imp *impl) RemoveAppender(appender Appender) {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	imp.appenders = slices.DeleteFunc(imp.appenders, func(a Appender) bool { return a == appender })
}

func (imp *impl) currentAppenders() []Appender {
	imp.mu.RLock()
	defer imp.mu.RUnlock()
	return imp.appenders
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Store(int32(level))
}

func (imp *impl) GetLevel() Level {
	return Level(imp.level.Load())
}

// Sublogger copies the parent's appenders; appenders added to either side later are not shared.
func (imp *impl) Sublogger(subname string) Logger {
	newName := subname
	if imp.name != "" {
		newName = imp.name + "." + subname
	}
	return newImpl(newName, imp.GetLevel(), imp.inUTC, slices.Clone(imp.currentAppenders())...)
}

func (imp *impl) Sync() error {
	var err error
	for _, appender := range imp.currentAppenders() {
		err = multierr.Append(err, appender.Sync())
	}
	return err
}

func (imp *impl) shouldLog(logLevel Level) bool {
	return logLevel >= imp.GetLevel()
}

func (imp *impl) log(entry *LogEntry) {
	if imp.inUTC {
		entry.Time = entry.Time.UTC()
	}

	for _, appender := range imp.currentAppenders() {
		if core, ok := appender.(zapcore.Core); ok && !core.Enabled(entry.Level) {
			continue
		}
		if err := appender.Write(entry.Entry, entry.fields); err != nil {
			_, printErr := fmt.Fprintln(os.Stderr, err)
			utils.UncheckedError(printErr)
		}
	}
}

func (imp *impl) newLogEntry(logLevel Level, msg string) *LogEntry {
	entry := &LogEntry{}
	entry.Time = time.Now()
	entry.LoggerName = imp.name
	entry.Caller = getCaller()
	entry.Level = logLevel.AsZap()
	entry.Message = msg
	return entry
}

func (imp *impl) format(logLevel Level, msg string) *LogEntry {
	return imp.newLogEntry(logLevel, msg)
}

// formatw pairs up keysAndValues as zap fields. A trailing key without a value gets an error
// value so the mistake shows up in the output.
func (imp *impl) formatw(logLevel Level, msg string, keysAndValues ...interface{}) *LogEntry {
	entry := imp.newLogEntry(logLevel, msg)
	entry.fields = make([]zapcore.Field, 0, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 == len(keysAndValues) {
			entry.fields = append(entry.fields, zap.Any(key, errors.New("unpaired log key")))
			break
		}
		entry.fields = append(entry.fields, zap.Any(key, keysAndValues[i+1]))
	}
	return entry
}

func (imp *impl) Debug(args ...interface{}) {
	if imp.shouldLog(DEBUG) {
		imp.log(imp.format(DEBUG, fmt.Sprint(args...)))
	}
}

func (imp *impl) Debugf(template string, args ...interface{}) {
	if imp.shouldLog(DEBUG) {
		imp.log(imp.format(DEBUG, fmt.Sprintf(template, args...)))
	}
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	if imp.shouldLog(DEBUG) {
		imp.log(imp.formatw(DEBUG, msg, keysAndValues...))
	}
}

func (imp *impl) Info(args ...interface{}) {
	if imp.shouldLog(INFO) {
		imp.log(imp.format(INFO, fmt.Sprint(args...)))
	}
}

func (imp *impl) Infof(template string, args ...interface{}) {
	if imp.shouldLog(INFO) {
		imp.log(imp.format(INFO, fmt.Sprintf(template, args...)))
	}
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	if imp.shouldLog(INFO) {
		imp.log(imp.formatw(INFO, msg, keysAndValues...))
	}
}

func (imp *impl) Warn(args ...interface{}) {
	if imp.shouldLog(WARN) {
		imp.log(imp.format(WARN, fmt.Sprint(args...)))
	}
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	if imp.shouldLog(WARN) {
		imp.log(imp.format(WARN, fmt.Sprintf(template, args...)))
	}
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	if imp.shouldLog(WARN) {
		imp.log(imp.formatw(WARN, msg, keysAndValues...))
	}
}

func (imp *impl) Error(args ...interface{}) {
	if imp.shouldLog(ERROR) {
		imp.log(imp.format(ERROR, fmt.Sprint(args...)))
	}
}

func (imp *impl) Errorf(template string, args ...interface{}) {
	if imp.shouldLog(ERROR) {
		imp.log(imp.format(ERROR, fmt.Sprintf(template, args...)))
	}
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	if imp.shouldLog(ERROR) {
		imp.log(imp.formatw(ERROR, msg, keysAndValues...))
	}
}

// getCaller returns the call site of the public logging method, e.g. "simlogger/plugin.go:120".
// The stack is getCaller, newLogEntry, format(w), the level method, then the caller.
func getCaller() zapcore.EntryCaller {
	const skipToLogCaller = 4
	var caller zapcore.EntryCaller
	var ok bool
	caller.PC, caller.File, caller.Line, ok = runtime.Caller(skipToLogCaller)
	if !ok {
		return caller
	}
	caller.Defined = true
	if fn := runtime.FuncForPC(caller.PC); fn != nil {
		caller.Function = fn.Name()
	}
	return caller
}

func callerToString(caller *zapcore.EntryCaller) string {
	return caller.TrimmedPath()
}
