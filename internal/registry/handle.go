package registry

import (
	"fmt"

	"github.com/Geun-Oh/lxring/internal/buffer"
	"github.com/Geun-Oh/lxring/internal/entry"
)

// Mode selects which side of a store a handle opens.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Handle is an open store endpoint: either a *ReaderHandle or a
// *WriterHandle.
type Handle interface {
	Store() *buffer.Store
	Mode() Mode
	Close() error
}

// ReaderHandle owns one cursor. Ready doubles as the poll operation.
type ReaderHandle struct {
	*buffer.Cursor
}

func (h *ReaderHandle) Mode() Mode { return ModeRead }

// WriterHandle appends to a store. It holds no state of its own.
type WriterHandle struct {
	store *buffer.Store
}

func (h *WriterHandle) Store() *buffer.Store { return h.store }

func (h *WriterHandle) Mode() Mode { return ModeWrite }

func (h *WriterHandle) Close() error { return nil }

// Append writes one entry to the store.
func (h *WriterHandle) Append(owner entry.Owner, tag string, ts entry.Timestamp, payload []byte) error {
	return h.store.Append(owner, tag, ts, payload)
}

// Open returns a handle on the named store. Reader options are ignored in
// write mode.
func (r *Registry) Open(name string, mode Mode, opts buffer.ReaderOptions) (Handle, error) {
	s, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	switch mode {
	case ModeRead:
		c, err := s.OpenReader(opts)
		if err != nil {
			return nil, err
		}
		return &ReaderHandle{Cursor: c}, nil
	case ModeWrite:
		return &WriterHandle{store: s}, nil
	default:
		return nil, fmt.Errorf("registry: unknown open mode %v", mode)
	}
}
