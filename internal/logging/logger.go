// Package logging provides leveled operational logging and a structured
// event trail for netwave runs.
//   - NewLogger returns a leveled slog.Logger for stderr diagnostics
//   - EventLogger appends one JSON object per run event to events.jsonl
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace sits below Debug and enables per-step logging.
const LevelTrace = slog.LevelDebug - 4

// EventsFile is the file name EventLogger writes inside its directory.
const EventsFile = "events.jsonl"

// ParseLevel maps "info", "debug" or "trace" (any case) to a slog.Level.
// Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled text logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// EventLogger records run events (benchmark grid points, simulation runs) as
// JSON lines. It is safe for concurrent use. A nil *EventLogger accepts every
// call and does nothing.
type EventLogger struct {
	mu  sync.Mutex
	out io.WriteCloser
	now func() time.Time
}

// NewEventLogger opens dir/events.jsonl for append when level is debug or
// trace. At info level, or if the file cannot be opened, it returns nil.
func NewEventLogger(dir, level string) *EventLogger {
	if ParseLevel(level) > slog.LevelDebug {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, EventsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &EventLogger{out: f, now: time.Now}
}

// Emit writes an event of the given kind. attrs are alternating key/value
// pairs, as with slog; a trailing key without a value is recorded under
// "!BADKEY". "event" and "time" are filled in automatically.
func (el *EventLogger) Emit(kind string, attrs ...any) {
	if el == nil {
		return
	}

	entry := make(map[string]any, len(attrs)/2+2)
	for i := 0; i < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			key = fmt.Sprint(attrs[i])
		}
		if i+1 >= len(attrs) {
			entry["!BADKEY"] = key
			break
		}
		entry[key] = attrs[i+1]
	}

	el.mu.Lock()
	defer el.mu.Unlock()
	if el.out == nil {
		return
	}

	entry["event"] = kind
	entry["time"] = el.now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_, _ = el.out.Write(append(data, '\n'))
}

// Close closes the underlying file. Further Emit calls are no-ops.
func (el *EventLogger) Close() error {
	if el == nil {
		return nil
	}
	el.mu.Lock()
	defer el.mu.Unlock()
	if el.out == nil {
		return nil
	}
	err := el.out.Close()
	el.out = nil
	return err
}
