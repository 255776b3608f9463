package sink

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Geun-Oh/lxring/internal/entry"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// TerminalSink writes one text line per entry, optionally with ANSI colour.
type TerminalSink struct {
	w     io.Writer
	color bool
}

// NewTerminalSink writes to w, or stdout when w is nil.
func NewTerminalSink(w io.Writer, color bool) *TerminalSink {
	if w == nil {
		w = os.Stdout
	}
	return &TerminalSink{w: w, color: color}
}

func (s *TerminalSink) Write(e *entry.Entry) error {
	if n, ok := e.DropCount(); ok {
		if s.color {
			_, err := fmt.Fprintf(s.w, "%s--- %d entries dropped ---%s\n", colorBold+colorYellow, n, colorReset)
			return err
		}
		_, err := fmt.Fprintf(s.w, "--- %d entries dropped ---\n", n)
		return err
	}
	if !s.color {
		_, err := fmt.Fprintln(s.w, e.Format())
		return err
	}

	ts := e.Time.Time().Format(time.RFC3339)
	lvl := e.Level()
	if lvl != entry.LevelUnknown {
		_, err := fmt.Fprintf(s.w, "%s[%s]%s[%s:%d]%s[%s]%s: %s\n",
			colorGray, ts, colorReset,
			e.Tag, e.Owner.PID,
			levelColor(lvl), lvl, colorReset,
			e.Payload,
		)
		return err
	}
	_, err := fmt.Fprintf(s.w, "%s[%s]%s[%s:%d]: %s\n",
		colorGray, ts, colorReset,
		e.Tag, e.Owner.PID,
		e.Payload,
	)
	return err
}

func (s *TerminalSink) Flush() error { return nil }

func (s *TerminalSink) Close() error { return nil }

func (s *TerminalSink) Name() string { return "terminal" }

func levelColor(l entry.Level) string {
	switch l {
	case entry.LevelError, entry.LevelFatal:
		return colorBold + colorRed
	case entry.LevelWarn:
		return colorYellow
	case entry.LevelDebug:
		return colorGray
	default:
		return colorCyan
	}
}
