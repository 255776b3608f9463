package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Geun-Oh/lxring/internal/buffer"
	"github.com/Geun-Oh/lxring/internal/entry"
	"github.com/Geun-Oh/lxring/internal/filter"
	"github.com/Geun-Oh/lxring/internal/monitor"
	"github.com/Geun-Oh/lxring/internal/sink"
	"github.com/Geun-Oh/lxring/internal/source"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memorySink struct {
	mu      sync.Mutex
	entries []*entry.Entry
	failOn  string
	flushed int
}

func (s *memorySink) Write(e *entry.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != "" && string(e.Payload) == s.failOn {
		return errors.New("disk full")
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *memorySink) Flush() error { s.flushed++; return nil }
func (s *memorySink) Close() error { return nil }
func (s *memorySink) Name() string { return "memory" }

func (s *memorySink) payloads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.entries {
		out = append(out, string(e.Payload))
	}
	return out
}

func numbered(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	return sb.String()
}

func newStore(t *testing.T, capacity int) *buffer.Store {
	t.Helper()
	s, err := buffer.NewStore("pipe", capacity, buffer.Options{})
	require.NoError(t, err)
	return s
}

func TestRunDeliversEverything(t *testing.T) {
	store := newStore(t, 1<<16)
	out := &memorySink{}
	stats := monitor.NewStats()
	d := &Drain{Sinks: []sink.Sink{out}, Stats: stats}

	err := Run(context.Background(), source.NewReaderSource(strings.NewReader(numbered(200))), store, d)
	require.NoError(t, err)

	got := out.payloads()
	require.Len(t, got, 200)
	assert.Equal(t, "line 0", got[0])
	assert.Equal(t, "line 199", got[199])
	assert.Equal(t, uint64(200), stats.Ingested())
	assert.Equal(t, uint64(200), stats.Delivered())
	assert.Zero(t, store.Stats().Readers, "run closes its cursor")
}

func TestRunAccountsForEveryRecord(t *testing.T) {
	// A store this small laps the drain cursor now and then; every record
	// is then either delivered or counted in a summary.
	store := newStore(t, 1024)
	stats := monitor.NewStats()
	d := &Drain{Stats: stats}

	err := Run(context.Background(), source.NewReaderSource(strings.NewReader(numbered(5000))), store, d)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), stats.Read()+stats.Dropped())
}

func TestIngestRejectsOversizedRecords(t *testing.T) {
	store := newStore(t, 128)
	stats := monitor.NewStats()
	input := "short\n" + strings.Repeat("x", 200) + "\nafter\n"
	require.NoError(t, Ingest(context.Background(), source.NewReaderSource(strings.NewReader(input)), store, stats, nil))

	assert.Equal(t, uint64(2), stats.Ingested())
	assert.Equal(t, uint64(1), stats.Rejected())
}

type brokenStore struct{}

func (brokenStore) Write(*entry.Record) error { return buffer.ErrCorrupt }

func TestIngestStopsOnCorruptStore(t *testing.T) {
	err := Ingest(context.Background(), source.NewReaderSource(strings.NewReader(numbered(3))), brokenStore{}, nil, nil)
	assert.ErrorIs(t, err, buffer.ErrCorrupt)
}

func TestDrainReportsLoss(t *testing.T) {
	store := newStore(t, 1024)
	c, err := store.OpenReader(buffer.ReaderOptions{Privileged: true})
	require.NoError(t, err)
	defer c.Close()
	for i := 0; i < 20; i++ {
		require.NoError(t, store.Append(entry.Owner{}, "t", entry.Timestamp{}, []byte(fmt.Sprintf("%03d %s", i, strings.Repeat(".", 90)))))
	}

	out := &memorySink{}
	stats := monitor.NewStats()
	d := &Drain{
		Reader:  c,
		Filters: filter.NewChain(filter.MatchAll, filter.NewKeywordFilter("019")),
		Sinks:   []sink.Sink{out},
		Stats:   stats,
		Loss:    monitor.NewRateDetector(10*time.Second, 3),
	}
	require.NoError(t, d.Run(context.Background()))

	require.Len(t, out.entries, 2)
	n, ok := out.entries[0].DropCount()
	require.True(t, ok, "summary passes the filter")
	assert.Equal(t, store.Dropped(), n)
	assert.True(t, strings.HasPrefix(string(out.entries[1].Payload), "019"))
	assert.Equal(t, uint64(20), stats.Read()+stats.Dropped())
	assert.Equal(t, 1, out.flushed)
}

func TestDrainAlertsAndCallback(t *testing.T) {
	store := newStore(t, 4096)
	c, err := store.OpenReader(buffer.ReaderOptions{Privileged: true})
	require.NoError(t, err)
	defer c.Close()
	for _, line := range []string{"ok", "panic: nil map", "ok"} {
		require.NoError(t, store.Append(entry.Owner{}, "t", entry.Timestamp{}, []byte(line)))
	}

	alerts, err := monitor.NewAlertEngine([]string{"panic"})
	require.NoError(t, err)
	var hits []string
	d := &Drain{
		Reader: c,
		Alerts: alerts,
		OnEntry: func(e *entry.Entry, triggered []string) {
			if len(triggered) > 0 {
				hits = append(hits, string(e.Payload))
			}
		},
	}
	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, []string{"panic: nil map"}, hits)
}

func TestDrainFollowStopsOnCancel(t *testing.T) {
	store := newStore(t, 4096)
	c, err := store.OpenReader(buffer.ReaderOptions{Privileged: true})
	require.NoError(t, err)
	defer c.Close()

	out := &memorySink{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- (&Drain{Reader: c, Sinks: []sink.Sink{out}, Follow: true}).Run(ctx)
	}()

	require.NoError(t, store.Append(entry.Owner{}, "t", entry.Timestamp{}, []byte("live")))
	require.Eventually(t, func() bool { return len(out.payloads()) == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("drain did not stop")
	}
}

func TestRunStopsOnSinkError(t *testing.T) {
	store := newStore(t, 1<<16)
	out := &memorySink{failOn: "line 3"}
	err := Run(context.Background(), source.NewReaderSource(strings.NewReader(numbered(10))), store, &Drain{Sinks: []sink.Sink{out}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
