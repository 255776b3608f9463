// Package sink writes drained entries to an output.
package sink

import (
	"github.com/Geun-Oh/lxring/internal/entry"
)

// Sink receives entries that passed a drain's filters.
type Sink interface {
	Write(e *entry.Entry) error
	Flush() error
	Close() error
	Name() string
}
