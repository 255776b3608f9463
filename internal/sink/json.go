package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Geun-Oh/lxring/internal/entry"
)

// Line is the JSON Lines rendering of an entry. The HTTP API uses the same
// shape.
type Line struct {
	Timestamp string `json:"timestamp"`
	Tag       string `json:"tag"`
	PID       int32  `json:"pid"`
	TID       int32  `json:"tid"`
	UID       uint32 `json:"uid"`
	Level     string `json:"level,omitempty"`
	Message   string `json:"message"`
	Dropped   uint64 `json:"dropped,omitempty"`
}

// LineOf converts an entry.
func LineOf(e *entry.Entry) Line {
	l := Line{
		Timestamp: e.Time.Time().Format("2006-01-02T15:04:05.000000000Z07:00"),
		Tag:       e.Tag,
		PID:       e.Owner.PID,
		TID:       e.Owner.TID,
		UID:       e.Owner.UID,
		Message:   string(e.Payload),
	}
	if n, ok := e.DropCount(); ok {
		l.Dropped = n
	} else if lvl := e.Level(); lvl != entry.LevelUnknown {
		l.Level = lvl.String()
	}
	return l
}

// JSONSink writes one JSON object per line.
type JSONSink struct {
	enc *json.Encoder
}

// NewJSONSink writes to w, or stdout when w is nil.
func NewJSONSink(w io.Writer) *JSONSink {
	if w == nil {
		w = os.Stdout
	}
	return &JSONSink{enc: json.NewEncoder(w)}
}

func (s *JSONSink) Write(e *entry.Entry) error {
	return s.enc.Encode(LineOf(e))
}

func (s *JSONSink) Flush() error { return nil }

func (s *JSONSink) Close() error { return nil }

func (s *JSONSink) Name() string { return "json" }

// FileSink appends text or JSON Lines to a file.
type FileSink struct {
	inner Sink
	file  *os.File
}

// NewFileSink opens path for appending. format is "json" or "text".
func NewFileSink(path string, format string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sink: open %s: %w", path, err)
	}

	var inner Sink
	switch format {
	case "json":
		inner = NewJSONSink(f)
	default:
		inner = NewTerminalSink(f, false)
	}
	return &FileSink{inner: inner, file: f}, nil
}

func (s *FileSink) Write(e *entry.Entry) error {
	return s.inner.Write(e)
}

// Flush syncs the file to disk.
func (s *FileSink) Flush() error {
	return s.file.Sync()
}

func (s *FileSink) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	return s.file.Close()
}

func (s *FileSink) Name() string {
	return "file:" + s.file.Name()
}
