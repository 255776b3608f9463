package buffer

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Geun-Oh/lxring/internal/entry"
)

var nul = []byte{0}

// Append writes one entry. It never waits for readers: entries older than
// the new one are evicted as needed and every reader that pointed at them
// is moved forward and charged with the loss.
func (s *Store) Append(owner entry.Owner, tag string, ts entry.Timestamp, payload []byte) error {
	return s.Write(&entry.Record{Owner: owner, Tag: tag, Time: ts, Payload: payload})
}

// Write appends a prepared record. See Append.
func (s *Store) Write(rec *entry.Record) error {
	if err := s.validate(rec); err != nil {
		return err
	}
	h := entry.HeaderOf(rec)
	size := uint64(entry.TotalLen(h))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken != nil {
		return s.broken
	}

	// Readers are moved before any byte is overwritten.
	if err := s.fixup(size); err != nil {
		s.poison(err)
		return s.broken
	}
	entry.WriteEntry(s.arena, s.offset(s.write), h, []byte(rec.Tag), nul, rec.Payload)
	s.write += size
	s.appended++

	close(s.wake)
	s.wake = make(chan struct{})
	return nil
}

func (s *Store) validate(rec *entry.Record) error {
	if strings.IndexByte(rec.Tag, 0) >= 0 {
		return fmt.Errorf("%w: tag %q contains NUL", ErrInvalidTag, rec.Tag)
	}
	if !rec.Time.Valid() {
		return fmt.Errorf("%w: %d.%09d", ErrInvalidTimestamp, rec.Time.Sec, rec.Time.Nsec)
	}
	body := rec.BodyLen()
	if body > entry.MaxBody || entry.HeaderSize+body > len(s.arena)-entry.HeaderSize {
		return fmt.Errorf("%w: %d byte payload, store %q accepts at most %d",
			ErrEntryTooLarge, len(rec.Payload), s.name, s.MaxPayload(rec.Tag))
	}
	return nil
}

// fixup makes room for size bytes at s.write. Every entry starting below
// write+size-capacity is about to be overwritten; head and any cursor
// pointing at one of them moves to the first boundary past that limit. A
// cursor is charged only for evicted entries it would have returned.
// Must be called with s.mu held.
func (s *Store) fixup(size uint64) error {
	capacity := uint64(len(s.arena))
	if s.write+size <= capacity {
		return nil
	}
	limit := s.write + size - capacity
	if s.head >= limit {
		return nil
	}

	// size <= capacity-HeaderSize, so limit < write and the walk stays
	// inside the readable region.
	starts, owners := s.starts[:0], s.owners[:0]
	pos := s.head
	for pos < limit {
		h, err := entry.ReadHeaderAt(s.arena, s.offset(pos))
		if err != nil {
			return err
		}
		next := pos + uint64(entry.TotalLen(h))
		if next > s.write {
			return fmt.Errorf("%w: entry at %d overruns write position %d", ErrCorrupt, pos, s.write)
		}
		starts = append(starts, pos)
		owners = append(owners, h.UID)
		pos = next
	}
	s.starts, s.owners = starts, owners
	evicted := uint64(len(starts))

	for c := range s.cursors {
		if c.pos >= pos {
			continue
		}
		i, ok := slices.BinarySearch(starts, c.pos)
		if !ok {
			return fmt.Errorf("%w: reader %s at %d is off an entry boundary", ErrCorrupt, c.id, c.pos)
		}
		if c.opts.Privileged {
			c.dropped += evicted - uint64(i)
		} else {
			for _, uid := range owners[i:] {
				if c.sees(uid) {
					c.dropped++
				}
			}
		}
		c.pos = pos
	}
	s.dropped += evicted
	s.head = pos
	return nil
}
