// Package logging provides leveled logging and run tracing for rbdc.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A RunLogger for structured JSONL run events (~/.rbdc/runs.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom slog level below Debug. At this level every
// recorded sample of every run is logged.
const LevelTrace = slog.LevelDebug - 4

// RunsFile is the name of the JSONL run event file.
const RunsFile = "runs.jsonl"

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Label the custom trace level
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

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Run event names.
const (
	EventRunFinished = "run_finished"
	EventRunFailed   = "run_failed"
)

// RunEvent is one line of runs.jsonl. Outcome fields are set only for
// finished runs, Kind and Error only for failed ones.
type RunEvent struct {
	Time  time.Time `json:"time"`
	Event string    `json:"event"`
	// Key is the parameter set's content hash.
	Key string `json:"key"`

	Samples          int     `json:"samples,omitempty"`
	Steps            int     `json:"steps,omitempty"`
	MaxRadius        float64 `json:"max_radius"`
	DomainUndersized bool    `json:"domain_undersized,omitempty"`
	FinalMass        float64 `json:"final_mass,omitempty"`
	ReleasedMass     float64 `json:"released_mass,omitempty"`

	Kind  string `json:"kind,omitempty"`
	Error string `json:"error,omitempty"`
}

// RunLogger appends RunEvents to a JSONL file. Sweep workers share one
// logger. A nil *RunLogger discards everything.
type RunLogger struct {
	mu      sync.Mutex
	enc     *json.Encoder
	file    *os.File
	nowFunc func() time.Time
}

// NewRunLogger opens dir/runs.jsonl for append at "debug" or "trace" level.
// At "info", or when the file cannot be opened, it returns nil.
func NewRunLogger(dir string, level string) *RunLogger {
	if ParseLevel(level) == slog.LevelInfo {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, RunsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &RunLogger{enc: json.NewEncoder(f), file: f, nowFunc: time.Now}
}

// Finished records a completed run.
func (rl *RunLogger) Finished(ev RunEvent) {
	ev.Event, ev.Kind, ev.Error = EventRunFinished, "", ""
	rl.write(ev)
}

// Failed records a run that returned err, classified as kind.
func (rl *RunLogger) Failed(key, kind string, err error) {
	ev := RunEvent{Event: EventRunFailed, Key: key, Kind: kind}
	if err != nil {
		ev.Error = err.Error()
	}
	rl.write(ev)
}

func (rl *RunLogger) write(ev RunEvent) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.file == nil {
		return
	}
	ev.Time = rl.nowFunc().UTC()
	_ = rl.enc.Encode(ev)
}

// Close closes the underlying file. Later events are dropped.
func (rl *RunLogger) Close() {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.file != nil {
		rl.file.Close()
		rl.file = nil
	}
}
