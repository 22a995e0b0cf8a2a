// Package audit implements the append-only JSON Lines audit log of every
// tool invocation, plus planner/responder/error events used for debugging.
// Grounded on the original audit_log.py.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one append-only record. ToolName/Args/Success/ExitCode/
// DurationSec/OutputLength are the AuditEntry fields spec.md §3 mandates;
// EventType/Extra extend it for planner decisions, responder replies, and
// errors, matching the original's richer log.
type Entry struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	LoopID       int            `json:"loop_id"`
	EventType    string         `json:"event_type"`
	ToolName     string         `json:"tool_name,omitempty"`
	Args         map[string]any `json:"args,omitempty"`
	Success      bool           `json:"success,omitempty"`
	ExitCode     *int           `json:"exit_code,omitempty"`
	DurationSec  float64        `json:"duration_sec,omitempty"`
	OutputLength int            `json:"output_length,omitempty"`
	Error        string         `json:"error,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// Log is a process-wide append-only writer. Concurrent writers coordinate
// through mu, guaranteeing one complete line at a time (spec.md §5).
type Log struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// Open creates the log file (and its directory) if needed and appends from
// there on.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &Log{path: path, file: f}, nil
}

func (l *Log) append(e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.file.Write(line)
	return err
}

// LogToolCall records a ToolRunner execution.
func (l *Log) LogToolCall(loopID int, toolName string, args map[string]any, success bool, errMsg string, exitCode *int, durationSec float64, outputLength int) error {
	return l.append(Entry{
		LoopID:       loopID,
		EventType:    "tool_call",
		ToolName:     toolName,
		Args:         args,
		Success:      success,
		Error:        errMsg,
		ExitCode:     exitCode,
		DurationSec:  durationSec,
		OutputLength: outputLength,
	})
}

// LogPlannerDecision records a Planner decision.
func (l *Log) LogPlannerDecision(loopID int, needTools bool, reasonBrief, stopCondition string) error {
	return l.append(Entry{
		LoopID:    loopID,
		EventType: "planner_decision",
		Extra: map[string]any{
			"need_tools":     needTools,
			"reason_brief":   reasonBrief,
			"stop_condition": stopCondition,
		},
	})
}

// LogResponderResponse records a Responder reply.
func (l *Log) LogResponderResponse(loopID int, response string, toolCount int, isFinal bool) error {
	preview := response
	if len(preview) > 300 {
		preview = preview[:300]
	}
	return l.append(Entry{
		LoopID:    loopID,
		EventType: "responder_response",
		Extra: map[string]any{
			"response_preview": preview,
			"tool_count":       toolCount,
			"is_final_answer":  isFinal,
		},
	})
}

// LogError records a loop-level error.
func (l *Log) LogError(loopID int, errType, message string) error {
	return l.append(Entry{
		LoopID:    loopID,
		EventType: "error",
		Error:     message,
		Extra:     map[string]any{"error_type": errType},
	})
}

// Path returns the configured log file path.
func (l *Log) Path() string { return l.path }

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// ReadAll parses every line of the log file at path, skipping blank lines.
// Used by audit export and by the WebSocket tail endpoint's initial replay.
func ReadAll(path string) ([]Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == '\n' {
			line := raw[start:i]
			start = i + 1
			if len(line) == 0 {
				continue
			}
			var e Entry
			if err := json.Unmarshal(line, &e); err != nil {
				continue
			}
			entries = append(entries, e)
		}
	}
	return entries, nil
}
