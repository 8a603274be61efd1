package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Event names one significant decision in the debug log.
type Event string

const (
	EventStartup          Event = "startup"
	EventStartupInfo      Event = "startup-info"
	EventRestore          Event = "restore"
	EventEntryBlocked     Event = "entry-blocked"
	EventEnterExec        Event = "enter-exec"
	EventExitExec         Event = "exit-exec"
	EventTrailMove        Event = "trail-move"
	EventPyramidAdd       Event = "pyramid-add"
	EventStopRaisePyramid Event = "stop-raise-pyramid"
	EventHTFPass          Event = "htf-pass"
	EventHTFVeto          Event = "htf-veto"
	EventHTFRefresh       Event = "htf-refresh"
	EventDayRoll          Event = "day-roll"
	EventIterationError   Event = "iteration-error"
	EventStateSave        Event = "state-save"
	EventEquity           Event = "equity"
)

// EventTimeFormat stamps every line in UTC with millisecond precision.
const EventTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Fields is the JSON payload attached to an event line.
type Fields map[string]any

// EventLog writes one line per event:
//
//	2024-03-01T14:00:00.000Z | entry-blocked | {"why":"cooldown"}
//
// Every event is mirrored to the structured logger at debug level.
type EventLog struct {
	out    io.Writer
	closer io.Closer
	logger *Logger
}

// RotationConfig controls the size based rotation of the debug log file.
type RotationConfig struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultRotation keeps five 20MB files.
func DefaultRotation() RotationConfig {
	return RotationConfig{
		MaxSizeMB:  20,
		MaxBackups: 5,
		MaxAgeDays: 30,
		Compress:   false,
	}
}

// NewEventLog creates an event log backed by a rotating file at path.
func NewEventLog(path string, rotation RotationConfig, log *Logger) *EventLog {
	//nolint:exhaustruct // lumberjack keeps internal state in unexported fields
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotation.MaxSizeMB,
		MaxBackups: rotation.MaxBackups,
		MaxAge:     rotation.MaxAgeDays,
		Compress:   rotation.Compress,
	}

	return &EventLog{
		out:    file,
		closer: file,
		logger: log,
	}
}

// NewEventLogWriter creates an event log that writes to w. The caller owns w.
func NewEventLogWriter(w io.Writer, log *Logger) *EventLog {
	return &EventLog{
		out:    w,
		closer: nil,
		logger: log,
	}
}

// Emit appends one event line. Write failures are reported to the structured
// logger and never returned, so logging can't interrupt a trading decision.
func (e *EventLog) Emit(at time.Time, event Event, fields Fields) {
	if e == nil {
		return
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"marshalError":%q}`, err.Error()))
	}

	if fields == nil {
		payload = []byte("{}")
	}

	line := fmt.Sprintf("%s | %s | %s\n", at.UTC().Format(EventTimeFormat), event, payload)

	if e.out != nil {
		if _, err := io.WriteString(e.out, line); err != nil && e.logger != nil {
			e.logger.Warn("Failed to write event log line", zap.String("event", string(event)), zap.Error(err))
		}
	}

	if e.logger != nil {
		e.logger.Debug(string(event), zap.Time("bar_time", at), zap.ByteString("payload", payload))
	}
}

// Close closes the underlying file when the event log owns it.
func (e *EventLog) Close() error {
	if e == nil || e.closer == nil {
		return nil
	}

	return e.closer.Close()
}
