// Package monitor counts what flows through ingest and drain.
package monitor

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Stats counts pipeline events without locking.
type Stats struct {
	ingested  atomic.Uint64
	rejected  atomic.Uint64
	read      atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	summaries atomic.Uint64
	startTime time.Time
}

func NewStats() *Stats {
	return &Stats{startTime: time.Now()}
}

// RecordIngested counts a record appended to a store.
func (s *Stats) RecordIngested() { s.ingested.Add(1) }

// RecordRejected counts a record the store refused, e.g. for size.
func (s *Stats) RecordRejected() { s.rejected.Add(1) }

// RecordRead counts a real entry read from a cursor.
func (s *Stats) RecordRead() { s.read.Add(1) }

// RecordDelivered counts an entry written to the sinks.
func (s *Stats) RecordDelivered() { s.delivered.Add(1) }

// RecordDropped counts one drop summary reporting n lost entries.
func (s *Stats) RecordDropped(n uint64) {
	s.summaries.Add(1)
	s.dropped.Add(n)
}

func (s *Stats) Ingested() uint64  { return s.ingested.Load() }
func (s *Stats) Rejected() uint64  { return s.rejected.Load() }
func (s *Stats) Read() uint64      { return s.read.Load() }
func (s *Stats) Delivered() uint64 { return s.delivered.Load() }
func (s *Stats) Dropped() uint64   { return s.dropped.Load() }
func (s *Stats) Summaries() uint64 { return s.summaries.Load() }

// Elapsed returns the time since the collector was created.
func (s *Stats) Elapsed() time.Duration {
	return time.Since(s.startTime)
}

// Rate returns ingested records per second.
func (s *Stats) Rate() float64 {
	elapsed := s.Elapsed().Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(s.Ingested()) / elapsed
}

// Summary returns a multi-line report.
func (s *Stats) Summary() string {
	read := s.Read()
	lossRate := float64(0)
	if total := read + s.Dropped(); total > 0 {
		lossRate = float64(s.Dropped()) / float64(total) * 100
	}
	return fmt.Sprintf(
		"── Summary ──\n"+
			"  Ingested:   %d (%d rejected)\n"+
			"  Read:       %d\n"+
			"  Delivered:  %d\n"+
			"  Dropped:    %d in %d gaps (%.1f%%)\n"+
			"  Duration:   %s\n"+
			"  Throughput: %.0f lines/s\n"+
			"─────────────",
		s.Ingested(), s.Rejected(),
		read,
		s.Delivered(),
		s.Dropped(), s.Summaries(), lossRate,
		s.Elapsed().Round(time.Millisecond),
		s.Rate(),
	)
}
