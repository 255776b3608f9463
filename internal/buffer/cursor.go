package buffer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Geun-Oh/lxring/internal/entry"
)

// ReaderOptions configures a cursor at open time.
type ReaderOptions struct {
	// Privileged readers see every entry; others only see entries whose
	// owner UID matches UID.
	Privileged bool
	UID        uint32
	// Version is the wire shape stamped on returned entries. Zero means V2.
	Version entry.Version
}

// ReadOptions controls a single Next call.
type ReadOptions struct {
	Block bool
	// Timeout bounds a blocking read. Zero waits until ctx is done.
	Timeout time.Duration
}

// Cursor is one reader's private position in a store. Its fields are
// guarded by the store lock since the writer moves it during fixup.
type Cursor struct {
	id    uuid.UUID
	store *Store
	opts  ReaderOptions

	pos      uint64
	dropped  uint64 // entries lost since the last real read
	reported uint64 // part of dropped already announced by a summary
	closed   bool
}

// OpenReader attaches a new cursor at the store's head.
func (s *Store) OpenReader(opts ReaderOptions) (*Cursor, error) {
	if opts.Version == 0 {
		opts.Version = entry.V2
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken != nil {
		return nil, s.broken
	}
	c := &Cursor{
		id:    uuid.New(),
		store: s,
		opts:  opts,
		pos:   s.head,
	}
	s.cursors[c] = struct{}{}
	return c, nil
}

// ID returns the cursor identifier.
func (c *Cursor) ID() uuid.UUID { return c.id }

// Store returns the store the cursor reads from.
func (c *Cursor) Store() *Store { return c.store }

// Options returns the options the cursor was opened with.
func (c *Cursor) Options() ReaderOptions { return c.opts }

// Position returns the logical read position. It never decreases.
func (c *Cursor) Position() uint64 {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return c.pos
}

// Offset returns the arena offset of the next entry this cursor reads.
func (c *Cursor) Offset() int {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return c.store.offset(c.pos)
}

// Pending returns the number of lost entries not yet cleared by a real read.
func (c *Cursor) Pending() uint64 {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return c.dropped
}

// Close detaches the cursor. Other cursors and the store are unaffected.
func (c *Cursor) Close() error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if !c.closed {
		c.closed = true
		delete(c.store.cursors, c)
	}
	return nil
}

// TryNext returns the next entry or ErrWouldBlock.
func (c *Cursor) TryNext() (*entry.Entry, error) {
	e, _, err := c.next()
	return e, err
}

// Next returns the next entry. With opts.Block it waits for the writer,
// returning ErrTimeout after opts.Timeout or ctx.Err() on cancellation.
//
// When entries were lost since the last read, a drop summary is returned
// first. The loss is only cleared by the following real read.
func (c *Cursor) Next(ctx context.Context, opts ReadOptions) (*entry.Entry, error) {
	var deadline <-chan time.Time
	if opts.Block && opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	for {
		e, wake, err := c.next()
		if !opts.Block || !errors.Is(err, ErrWouldBlock) {
			return e, err
		}
		select {
		case <-wake:
		case <-deadline:
			return nil, ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// next performs one read attempt under the store lock. On ErrWouldBlock it
// also returns the channel the next append will close.
func (c *Cursor) next() (*entry.Entry, <-chan struct{}, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.closed {
		return nil, nil, ErrCursorClosed
	}
	if s.broken != nil {
		return nil, nil, s.broken
	}

	h, err := c.seek()
	if errors.Is(err, ErrWouldBlock) {
		return nil, s.wake, err
	}
	if err != nil {
		return nil, nil, err
	}

	if pending := c.dropped - c.reported; pending > 0 {
		c.reported = c.dropped
		return entry.NewDropSummary(pending, entry.TimestampOf(s.now()), c.opts.Version), nil, nil
	}

	e, err := entry.ReadEntryAt(s.arena, s.offset(c.pos), h)
	if err != nil {
		s.poison(err)
		return nil, nil, s.broken
	}
	c.pos += uint64(entry.TotalLen(h))
	c.dropped, c.reported = 0, 0
	e.Version = c.opts.Version
	return e, nil, nil
}

// Ready reports whether a non-blocking read would return an entry.
func (c *Cursor) Ready() bool {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if c.closed || c.store.broken != nil {
		return false
	}
	_, err := c.seek()
	return err == nil
}

func (c *Cursor) sees(uid uint32) bool {
	return c.opts.Privileged || uid == c.opts.UID
}

// seek moves past entries this cursor may not see and returns the header at
// its position. Must be called with the store lock held.
func (c *Cursor) seek() (entry.Header, error) {
	s := c.store
	for {
		if c.pos == s.write {
			return entry.Header{}, ErrWouldBlock
		}
		h, err := entry.ReadHeaderAt(s.arena, s.offset(c.pos))
		if err != nil {
			s.poison(err)
			return h, s.broken
		}
		if c.pos+uint64(entry.TotalLen(h)) > s.write {
			s.poison(ErrCorrupt)
			return h, s.broken
		}
		if c.sees(h.UID) {
			return h, nil
		}
		c.pos += uint64(entry.TotalLen(h))
	}
}
