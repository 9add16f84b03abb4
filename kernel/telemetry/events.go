package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// Event is one line of events.jsonl, per spec.md §3/§4.9.
type Event struct {
	TMs     int64  `json:"t_ms"`
	Side    string `json:"side"`
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// EventWriter appends newline-delimited JSON events.
type EventWriter struct {
	f *os.File
	w *bufio.Writer
}

// NewEventWriter creates (or truncates) events.jsonl at path.
func NewEventWriter(path string) (*EventWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create events.jsonl: %w", err)
	}
	return &EventWriter{f: file, w: bufio.NewWriter(file)}, nil
}

// WriteEvent appends one event as a single JSON line.
func (e *EventWriter) WriteEvent(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("telemetry: marshal event: %w", err)
	}
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("telemetry: write event: %w", err)
	}
	return e.w.WriteByte('\n')
}

// Flush flushes buffered writes without closing the file.
func (e *EventWriter) Flush() error {
	return e.w.Flush()
}

// Close flushes and closes events.jsonl.
func (e *EventWriter) Close() error {
	if err := e.Flush(); err != nil {
		e.f.Close()
		return err
	}
	return e.f.Close()
}
