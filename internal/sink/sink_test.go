package sink

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Geun-Oh/lxring/internal/entry"
)

func sample(payload string) *entry.Entry {
	return &entry.Entry{
		Owner:   entry.Owner{PID: 12, TID: 13, UID: 1000},
		Tag:     "stdout",
		Time:    entry.Timestamp{Sec: 1700000000, Nsec: 5},
		Payload: []byte(payload),
		Version: entry.V2,
	}
}

func TestTerminalSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewTerminalSink(&buf, false)
	require.NoError(t, s.Write(sample("[ERROR] disk full")))
	require.NoError(t, s.Write(sample("plain")))
	require.NoError(t, s.Write(entry.NewDropSummary(7, entry.Timestamp{}, entry.V2)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "[2023-11-14T22:13:20Z][stdout:12][ERROR]: [ERROR] disk full", lines[0])
	assert.Equal(t, "[2023-11-14T22:13:20Z][stdout:12]: plain", lines[1])
	assert.Equal(t, "--- 7 entries dropped ---", lines[2])
}

func TestTerminalSinkColor(t *testing.T) {
	var buf bytes.Buffer
	s := NewTerminalSink(&buf, true)
	require.NoError(t, s.Write(sample("WARN slow")))
	assert.Contains(t, buf.String(), colorYellow+"[WARN]"+colorReset)
}

func TestJSONSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONSink(&buf)
	require.NoError(t, s.Write(sample("level=info ready")))
	require.NoError(t, s.Write(entry.NewDropSummary(3, entry.Timestamp{}, entry.V2)))

	dec := json.NewDecoder(&buf)
	var l Line
	require.NoError(t, dec.Decode(&l))
	assert.Equal(t, "INFO", l.Level)
	assert.Equal(t, "level=info ready", l.Message)
	assert.Equal(t, uint32(1000), l.UID)
	assert.Equal(t, "2023-11-14T22:13:20.000000005Z", l.Timestamp)

	require.NoError(t, dec.Decode(&l))
	assert.Equal(t, uint64(3), l.Dropped)
	assert.Equal(t, entry.DropTag, l.Tag)
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	s, err := NewFileSink(path, "json")
	require.NoError(t, err)
	require.NoError(t, s.Write(sample("a")))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"a"`)
	assert.Equal(t, "file:"+path, s.Name())
}

func TestArchiveRoundTrip(t *testing.T) {
	for _, v := range []entry.Version{entry.V1, entry.V2} {
		t.Run(v.String(), func(t *testing.T) {
			var buf bytes.Buffer
			s, err := NewArchiveSink(&buf, v)
			require.NoError(t, err)
			in := []*entry.Entry{
				sample("first"),
				entry.NewDropSummary(2, entry.Timestamp{Sec: 9}, entry.V2),
				sample(strings.Repeat("x", 3000)),
			}
			for _, e := range in {
				require.NoError(t, s.Write(e))
			}
			require.NoError(t, s.Close())

			r, err := NewArchiveReader(&buf)
			require.NoError(t, err)
			defer r.Close()
			assert.Equal(t, v, r.Version())

			for _, want := range in {
				got, err := r.Next()
				require.NoError(t, err)
				assert.Equal(t, want.Tag, got.Tag)
				assert.Equal(t, want.Payload, got.Payload)
				assert.Equal(t, want.Owner.PID, got.Owner.PID)
				assert.Equal(t, want.Time, got.Time)
				assert.Equal(t, v, got.Version)
				if v == entry.V2 {
					assert.Equal(t, want.Owner.UID, got.Owner.UID)
				} else {
					assert.Zero(t, got.Owner.UID, "legacy frames carry no owner uid")
				}
			}
			_, err = r.Next()
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestArchiveFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.lxa")
	s, err := CreateArchive(path, entry.V2)
	require.NoError(t, err)
	require.NoError(t, s.Write(sample("kept")))
	require.NoError(t, s.Flush())
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r, err := NewArchiveReader(f)
	require.NoError(t, err)
	defer r.Close()
	e, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "kept", string(e.Payload))
}

func TestArchiveRejectsForeignData(t *testing.T) {
	_, err := NewArchiveReader(strings.NewReader("definitely not zstd"))
	assert.Error(t, err)

	var buf bytes.Buffer
	s, err := NewArchiveSink(&buf, entry.V2)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	r, err := NewArchiveReader(&buf)
	require.NoError(t, err)
	defer r.Close()
	_, err = r.Next()
	assert.True(t, errors.Is(err, io.EOF))
}
