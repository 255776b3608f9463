// Package buffer implements the shared log ring: one arena of framed entries,
// a writer that never waits for readers, and any number of independent
// reader cursors.
package buffer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Geun-Oh/lxring/internal/entry"
)

var (
	// ErrInvalidCapacity is returned for a capacity that is not a power of two
	// or too small to hold a single header-sized entry.
	ErrInvalidCapacity = errors.New("buffer: invalid capacity")
	// ErrEntryTooLarge is returned when an entry can never fit the store.
	ErrEntryTooLarge = errors.New("buffer: entry too large")
	// ErrInvalidTag is returned for tags containing a NUL byte.
	ErrInvalidTag = errors.New("buffer: invalid tag")
	// ErrInvalidTimestamp is returned for timestamps the header cannot hold.
	ErrInvalidTimestamp = errors.New("buffer: invalid timestamp")
	// ErrWouldBlock means no entry is available right now.
	ErrWouldBlock = errors.New("buffer: would block")
	// ErrTimeout means a blocking read gave up waiting.
	ErrTimeout = errors.New("buffer: read timed out")
	// ErrCursorClosed is returned by reads on a closed cursor.
	ErrCursorClosed = errors.New("buffer: cursor closed")
	// ErrCorrupt aliases the codec error; a store that reports it is unusable.
	ErrCorrupt = entry.ErrCorrupt
)

// MinCapacity is the smallest arena a store accepts.
const MinCapacity = 4 * entry.HeaderSize

// Options configures a Store.
type Options struct {
	Logger *slog.Logger
	// Clock stamps synthetic drop summaries. Defaults to time.Now.
	Clock func() time.Time
}

// Store is a fixed-capacity ring of framed entries.
//
// Positions are 64-bit logical byte counts since creation; the arena offset
// of a position is pos & mask. The readable region is [head, write). head is
// always an entry boundary.
type Store struct {
	name string
	log  *slog.Logger
	now  func() time.Time

	mu       sync.Mutex
	arena    []byte
	mask     uint64
	write    uint64
	head     uint64
	dropped  uint64 // every entry evicted past head; per-reader loss is on Cursor
	appended uint64
	cursors  map[*Cursor]struct{}
	wake     chan struct{} // closed and replaced by every append
	broken   error
	starts   []uint64 // fixup scratch
	owners   []uint32 // UID of each entry in starts
}

// NewStore creates a store with the given power-of-two capacity in bytes.
func NewStore(name string, capacity int, opts Options) (*Store, error) {
	if capacity < MinCapacity || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("%w: %d (need a power of two >= %d)", ErrInvalidCapacity, capacity, MinCapacity)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	s := &Store{
		name:    name,
		log:     opts.Logger.With("store", name),
		now:     opts.Clock,
		arena:   make([]byte, capacity),
		mask:    uint64(capacity - 1),
		cursors: make(map[*Cursor]struct{}),
		wake:    make(chan struct{}),
	}
	s.log.Debug("store created", "capacity", capacity)
	return s, nil
}

// Name returns the store name.
func (s *Store) Name() string { return s.name }

// Capacity returns the arena size in bytes.
func (s *Store) Capacity() int { return len(s.arena) }

// MaxPayload returns the largest payload Append accepts for the given tag.
func (s *Store) MaxPayload(tag string) int {
	n := min(entry.MaxBody, len(s.arena)-2*entry.HeaderSize) - len(tag) - 1
	return max(n, 0)
}

// WriteOffset returns the arena offset of the next byte to be written.
func (s *Store) WriteOffset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.write & s.mask)
}

// HeadOffset returns the arena offset where new readers start.
func (s *Store) HeadOffset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.head & s.mask)
}

// Dropped returns the number of entries evicted from the store, whether or
// not any reader was still behind them. What a given reader lost is reported
// through its drop summaries.
func (s *Store) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Err returns the error that made the store unusable, or nil.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broken
}

// Snapshot is a point-in-time view of store state.
type Snapshot struct {
	Name        string `json:"name"`
	Capacity    int    `json:"capacity"`
	Used        int    `json:"used"`
	WriteOffset int    `json:"write_offset"`
	HeadOffset  int    `json:"head_offset"`
	Appended    uint64 `json:"appended"`
	Dropped     uint64 `json:"dropped"` // all evictions, read or not
	Readers     int    `json:"readers"`
	Broken      bool   `json:"broken,omitempty"`
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Name:        s.name,
		Capacity:    len(s.arena),
		Used:        int(s.write - s.head),
		WriteOffset: int(s.write & s.mask),
		HeadOffset:  int(s.head & s.mask),
		Appended:    s.appended,
		Dropped:     s.dropped,
		Readers:     len(s.cursors),
		Broken:      s.broken != nil,
	}
}

// Entries returns every entry currently readable, oldest first, without
// disturbing other readers.
func (s *Store) Entries(v entry.Version) ([]*entry.Entry, error) {
	c, err := s.OpenReader(ReaderOptions{Privileged: true, Version: v})
	if err != nil {
		return nil, err
	}
	defer c.Close()

	var out []*entry.Entry
	for {
		e, err := c.TryNext()
		if errors.Is(err, ErrWouldBlock) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}

// poison marks the store unusable. Must be called with s.mu held.
func (s *Store) poison(err error) {
	if s.broken != nil {
		return
	}
	s.broken = fmt.Errorf("buffer: store %q: %w", s.name, err)
	s.log.Error("store invariant violated", "error", err, "write", s.write, "head", s.head)
	close(s.wake)
}

func (s *Store) offset(pos uint64) int {
	return int(pos & s.mask)
}
