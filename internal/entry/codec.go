package entry

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrCorrupt marks a header or body that cannot have been produced by the
// writer. Seeing one means entry-boundary alignment was lost.
var ErrCorrupt = errors.New("entry: corrupt record")

// Stored header layout (24 bytes, little-endian):
//
//	uint16 len      // body length: tag, NUL, payload
//	uint16 hdr_size // always HeaderSize
//	int32  pid
//	int32  tid
//	uint32 sec
//	uint32 nsec
//	uint32 uid
//
// The legacy layout stops after nsec and carries a zero pad in place of
// hdr_size.

// TotalLen returns the number of arena bytes an entry with header h occupies.
func TotalLen(h Header) int {
	return HeaderSize + int(h.Length)
}

// HeaderOf builds the stored header for a record. It does not validate.
func HeaderOf(r *Record) Header {
	return Header{
		Length:  uint16(r.BodyLen()),
		HdrSize: HeaderSize,
		PID:     r.Owner.PID,
		TID:     r.Owner.TID,
		Sec:     uint32(r.Time.Sec),
		Nsec:    uint32(r.Time.Nsec),
		UID:     r.Owner.UID,
	}
}

func putHeader(b []byte, h Header) {
	binary.LittleEndian.PutUint16(b[0:2], h.Length)
	binary.LittleEndian.PutUint16(b[2:4], h.HdrSize)
	binary.LittleEndian.PutUint32(b[4:8], uint32(h.PID))
	binary.LittleEndian.PutUint32(b[8:12], uint32(h.TID))
	binary.LittleEndian.PutUint32(b[12:16], h.Sec)
	binary.LittleEndian.PutUint32(b[16:20], h.Nsec)
	binary.LittleEndian.PutUint32(b[20:24], h.UID)
}

func parseHeader(b []byte) Header {
	return Header{
		Length:  binary.LittleEndian.Uint16(b[0:2]),
		HdrSize: binary.LittleEndian.Uint16(b[2:4]),
		PID:     int32(binary.LittleEndian.Uint32(b[4:8])),
		TID:     int32(binary.LittleEndian.Uint32(b[8:12])),
		Sec:     binary.LittleEndian.Uint32(b[12:16]),
		Nsec:    binary.LittleEndian.Uint32(b[16:20]),
		UID:     binary.LittleEndian.Uint32(b[20:24]),
	}
}

// ReadHeaderAt decodes the header starting at off (taken mod len(arena)).
// A header that straddles the end of the arena is reassembled in a scratch
// copy, so callers never see a torn header.
func ReadHeaderAt(arena []byte, off int) (Header, error) {
	off %= len(arena)
	var h Header
	if off+HeaderSize <= len(arena) {
		h = parseHeader(arena[off : off+HeaderSize])
	} else {
		var scratch [HeaderSize]byte
		readAt(arena, off, scratch[:])
		h = parseHeader(scratch[:])
	}
	if h.HdrSize != HeaderSize {
		return h, fmt.Errorf("%w: header size %d at offset %d", ErrCorrupt, h.HdrSize, off)
	}
	return h, nil
}

// WriteEntry writes h followed by the body parts starting at off, wrapping
// at the end of the arena. It returns the offset just past the entry, mod
// len(arena). The parts must add up to h.Length.
func WriteEntry(arena []byte, off int, h Header, parts ...[]byte) int {
	var scratch [HeaderSize]byte
	putHeader(scratch[:], h)
	off = writeAt(arena, off%len(arena), scratch[:])
	for _, p := range parts {
		off = writeAt(arena, off, p)
	}
	return off
}

// ReadEntryAt decodes the body of the entry whose header h sits at off. The
// returned entry owns its memory.
func ReadEntryAt(arena []byte, off int, h Header) (*Entry, error) {
	body := make([]byte, h.Length)
	readAt(arena, (off+HeaderSize)%len(arena), body)
	return fromBody(h, body)
}

func fromBody(h Header, body []byte) (*Entry, error) {
	i := bytes.IndexByte(body, 0)
	if i < 0 {
		return nil, fmt.Errorf("%w: body of %d bytes has no tag terminator", ErrCorrupt, len(body))
	}
	return &Entry{
		Length:  int(h.Length),
		Owner:   Owner{PID: h.PID, TID: h.TID, UID: h.UID},
		Tag:     string(body[:i]),
		Time:    Timestamp{Sec: int64(h.Sec), Nsec: int32(h.Nsec)},
		Payload: body[i+1:],
		Version: V2,
	}, nil
}

// readAt fills dst from the arena starting at off, wrapping once if needed.
func readAt(arena []byte, off int, dst []byte) {
	n := copy(dst, arena[off:])
	if n < len(dst) {
		copy(dst[n:], arena)
	}
}

// writeAt copies src into the arena at off, wrapping once if needed, and
// returns the offset after the last byte written.
func writeAt(arena []byte, off int, src []byte) int {
	n := copy(arena[off:], src)
	if n < len(src) {
		copy(arena, src[n:])
	}
	return (off + len(src)) % len(arena)
}

// AppendWire appends e to dst in the wire shape v. Stored bytes are not
// involved; this is the read-time conversion between header versions.
func (e *Entry) AppendWire(dst []byte, v Version) []byte {
	body := len(e.Tag) + 1 + len(e.Payload)
	switch v {
	case V1:
		var b [LegacyHeaderSize]byte
		binary.LittleEndian.PutUint16(b[0:2], uint16(body))
		binary.LittleEndian.PutUint32(b[4:8], uint32(e.Owner.PID))
		binary.LittleEndian.PutUint32(b[8:12], uint32(e.Owner.TID))
		binary.LittleEndian.PutUint32(b[12:16], uint32(e.Time.Sec))
		binary.LittleEndian.PutUint32(b[16:20], uint32(e.Time.Nsec))
		dst = append(dst, b[:]...)
	default:
		var b [HeaderSize]byte
		putHeader(b[:], Header{
			Length:  uint16(body),
			HdrSize: HeaderSize,
			PID:     e.Owner.PID,
			TID:     e.Owner.TID,
			Sec:     uint32(e.Time.Sec),
			Nsec:    uint32(e.Time.Nsec),
			UID:     e.Owner.UID,
		})
		dst = append(dst, b[:]...)
	}
	dst = append(dst, e.Tag...)
	dst = append(dst, 0)
	return append(dst, e.Payload...)
}

// MarshalBinary encodes e in the wire shape recorded in e.Version.
func (e *Entry) MarshalBinary() ([]byte, error) {
	v := e.Version
	if v == 0 {
		v = V2
	}
	return e.AppendWire(nil, v), nil
}

// DecodeWire decodes one entry of shape v from the front of b and returns
// it with the number of bytes consumed.
func DecodeWire(b []byte, v Version) (*Entry, int, error) {
	size := HeaderSize
	if v == V1 {
		size = LegacyHeaderSize
	}
	if len(b) < size {
		return nil, 0, fmt.Errorf("%w: short header (%d bytes)", ErrCorrupt, len(b))
	}
	var h Header
	if v == V1 {
		h = Header{
			Length:  binary.LittleEndian.Uint16(b[0:2]),
			HdrSize: HeaderSize,
			PID:     int32(binary.LittleEndian.Uint32(b[4:8])),
			TID:     int32(binary.LittleEndian.Uint32(b[8:12])),
			Sec:     binary.LittleEndian.Uint32(b[12:16]),
			Nsec:    binary.LittleEndian.Uint32(b[16:20]),
		}
	} else {
		h = parseHeader(b)
		if h.HdrSize != HeaderSize {
			return nil, 0, fmt.Errorf("%w: header size %d", ErrCorrupt, h.HdrSize)
		}
	}
	end := size + int(h.Length)
	if len(b) < end {
		return nil, 0, fmt.Errorf("%w: body needs %d bytes, have %d", ErrCorrupt, h.Length, len(b)-size)
	}
	body := make([]byte, h.Length)
	copy(body, b[size:end])
	e, err := fromBody(h, body)
	if err != nil {
		return nil, 0, err
	}
	e.Version = v
	return e, end, nil
}
