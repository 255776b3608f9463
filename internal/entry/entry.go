// Package entry defines the framed log record stored in an lxring buffer and
// the codec that moves it in and out of a wrapping byte arena.
package entry

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Version selects the wire shape of a header. Stored bytes are always
// current; older shapes are produced on demand at read time.
type Version int

const (
	// V1 is the legacy 20-byte header without an owner field.
	V1 Version = 1
	// V2 is the current 24-byte header.
	V2 Version = 2
)

// String returns "v1" or "v2".
func (v Version) String() string {
	return "v" + strconv.Itoa(int(v))
}

// ParseVersion accepts "1", "2", "v1" or "v2". An empty string means V2.
func ParseVersion(s string) (Version, error) {
	switch strings.TrimPrefix(strings.ToLower(s), "v") {
	case "", "2":
		return V2, nil
	case "1":
		return V1, nil
	default:
		return 0, fmt.Errorf("entry: unknown header version %q", s)
	}
}

const (
	// HeaderSize is the size of the stored (V2) header.
	HeaderSize = 24
	// LegacyHeaderSize is the size of the V1 header.
	LegacyHeaderSize = 20
	// MaxBody is the largest body a header length can describe.
	MaxBody = math.MaxUint16

	// DropOwner is the uid stamped on synthetic drop-summary entries.
	DropOwner uint32 = math.MaxUint32
	// DropTag is the tag of synthetic drop-summary entries.
	DropTag = "lxring"
)

// Owner identifies who wrote an entry. UID is the identity used for
// non-privileged read filtering.
type Owner struct {
	PID int32
	TID int32
	UID uint32
}

// Timestamp is a seconds/nanoseconds pair.
type Timestamp struct {
	Sec  int64
	Nsec int32
}

// TimestampOf converts a time.Time.
func TimestampOf(t time.Time) Timestamp {
	return Timestamp{Sec: t.Unix(), Nsec: int32(t.Nanosecond())}
}

// Time returns the timestamp as a UTC time.Time.
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Sec, int64(ts.Nsec)).UTC()
}

// Valid reports whether the timestamp fits the stored header fields.
func (ts Timestamp) Valid() bool {
	return ts.Sec >= 0 && ts.Sec <= math.MaxUint32 && ts.Nsec >= 0 && ts.Nsec < 1e9
}

// Header is the decoded fixed-size prefix of a stored entry.
type Header struct {
	Length  uint16 // body length: tag, NUL, payload
	HdrSize uint16
	PID     int32
	TID     int32
	Sec     uint32
	Nsec    uint32
	UID     uint32
}

// Record is an entry waiting to be appended.
type Record struct {
	Owner   Owner
	Tag     string
	Time    Timestamp
	Payload []byte
}

// BodyLen returns the stored body size of the record.
func (r *Record) BodyLen() int {
	return len(r.Tag) + 1 + len(r.Payload)
}

// Entry is one decoded record as handed to a reader.
type Entry struct {
	Length  int // body length as stored
	Owner   Owner
	Tag     string
	Time    Timestamp
	Payload []byte
	// Version is the wire shape requested by the cursor that produced this entry.
	Version Version
}

// NewDropSummary builds the synthetic entry reporting n lost entries.
func NewDropSummary(n uint64, ts Timestamp, v Version) *Entry {
	payload := []byte(fmt.Sprintf("%d entries dropped", n))
	return &Entry{
		Length:  len(DropTag) + 1 + len(payload),
		Owner:   Owner{UID: DropOwner},
		Tag:     DropTag,
		Time:    ts,
		Payload: payload,
		Version: v,
	}
}

// IsDropSummary reports whether e was synthesized to report lost entries.
func (e *Entry) IsDropSummary() bool {
	return e.Owner.UID == DropOwner && e.Tag == DropTag
}

// DropCount returns the number of lost entries a drop summary reports.
func (e *Entry) DropCount() (uint64, bool) {
	if !e.IsDropSummary() {
		return 0, false
	}
	num, _, ok := strings.Cut(string(e.Payload), " ")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Level returns the severity detected from the payload text.
func (e *Entry) Level() Level {
	return DetectLevel(string(e.Payload))
}

// Format returns a one-line text rendering of the entry.
func (e *Entry) Format() string {
	ts := e.Time.Time().Format(time.RFC3339)
	if lvl := e.Level(); lvl != LevelUnknown {
		return fmt.Sprintf("[%s][%s:%d][%s]: %s", ts, e.Tag, e.Owner.PID, lvl, e.Payload)
	}
	return fmt.Sprintf("[%s][%s:%d]: %s", ts, e.Tag, e.Owner.PID, e.Payload)
}
