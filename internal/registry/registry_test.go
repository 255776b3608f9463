package registry

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Geun-Oh/lxring/internal/buffer"
	"github.com/Geun-Oh/lxring/internal/entry"
)

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name     string
		store    string
		capacity int
		wantErr  error
	}{
		{"ok min", "a", 16 << 10, nil},
		{"ok max", "b", 1 << 20, nil},
		{"too small", "c", 8 << 10, ErrInvalidCapacity},
		{"too large", "d", 2 << 20, ErrInvalidCapacity},
		{"not pow2", "e", 48 << 10, ErrInvalidCapacity},
		{"empty name", "", 16 << 10, ErrInvalidName},
		{"bad chars", "no/slash", 16 << 10, ErrInvalidName},
		{"long name", strings.Repeat("a", 65), 16 << 10, ErrInvalidName},
	}
	r := New(Limits{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := r.Create(tt.store, tt.capacity)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.capacity, s.Capacity())
		})
	}
	assert.Equal(t, 2, r.Len())
}

func TestCreateDuplicateAndLimit(t *testing.T) {
	r := New(Limits{MaxStores: 2})
	_, err := r.Create("main", 16<<10)
	require.NoError(t, err)
	_, err = r.Create("main", 32<<10)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = r.Create("events", 16<<10)
	require.NoError(t, err)
	_, err = r.Create("radio", 16<<10)
	assert.ErrorIs(t, err, ErrTooManyStores)
}

func TestLookupAndEnsure(t *testing.T) {
	r := New(Limits{})
	_, err := r.Lookup("main")
	assert.ErrorIs(t, err, ErrNotFound)

	a, err := r.Ensure("main", 64<<10)
	require.NoError(t, err)
	b, err := r.Ensure("main", 16<<10)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 64<<10, b.Capacity())

	got, err := r.Lookup("main")
	require.NoError(t, err)
	assert.Same(t, a, got)
}

func TestEnsureConcurrent(t *testing.T) {
	r := New(Limits{})
	var wg sync.WaitGroup
	stores := make([]*buffer.Store, 16)
	for i := range stores {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.Ensure("shared", 16<<10)
			assert.NoError(t, err)
			stores[i] = s
		}(i)
	}
	wg.Wait()
	for _, s := range stores {
		assert.Same(t, stores[0], s)
	}
	assert.Equal(t, 1, r.Len())
}

func TestListSortedSnapshot(t *testing.T) {
	r := New(Limits{})
	for _, name := range []string{"system", "crash", "main", "events"} {
		_, err := r.Create(name, 16<<10)
		require.NoError(t, err)
	}

	var names []string
	for name, capacity := range r.List() {
		assert.Equal(t, 16<<10, capacity)
		names = append(names, name)
		// Creating during iteration neither deadlocks nor shows up.
		if name == "crash" {
			_, err := r.Create("radio", 32<<10)
			require.NoError(t, err)
		}
	}
	assert.Equal(t, []string{"crash", "events", "main", "system"}, names)

	// A fresh iteration sees the new store.
	names = names[:0]
	for name := range r.List() {
		names = append(names, name)
	}
	assert.Equal(t, []string{"crash", "events", "main", "radio", "system"}, names)

	// Early break.
	count := 0
	for range r.List() {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestOpenHandles(t *testing.T) {
	r := New(Limits{})
	_, err := r.Create("main", 16<<10)
	require.NoError(t, err)

	_, err = r.Open("missing", ModeRead, buffer.ReaderOptions{})
	assert.ErrorIs(t, err, ErrNotFound)

	rh, err := r.Open("main", ModeRead, buffer.ReaderOptions{Privileged: true})
	require.NoError(t, err)
	defer rh.Close()
	wh, err := r.Open("main", ModeWrite, buffer.ReaderOptions{})
	require.NoError(t, err)
	defer wh.Close()

	assert.Equal(t, ModeRead, rh.Mode())
	assert.Equal(t, ModeWrite, wh.Mode())
	assert.Same(t, rh.Store(), wh.Store())

	w, ok := wh.(*WriterHandle)
	require.True(t, ok)
	reader, ok := rh.(*ReaderHandle)
	require.True(t, ok)

	assert.False(t, reader.Ready())
	for i := 0; i < 3; i++ {
		owner := entry.Owner{PID: 1, UID: 0}
		require.NoError(t, w.Append(owner, "main", entry.Timestamp{Sec: 1}, []byte(fmt.Sprint(i))))
	}
	assert.True(t, reader.Ready())
	for i := 0; i < 3; i++ {
		e, err := reader.TryNext()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(i), string(e.Payload))
	}

	_, err = r.Open("main", Mode(9), buffer.ReaderOptions{})
	assert.Error(t, err)
	assert.Equal(t, "Mode(9)", Mode(9).String())
}

func TestStats(t *testing.T) {
	r := New(Limits{})
	s, err := r.Create("b", 16<<10)
	require.NoError(t, err)
	_, err = r.Create("a", 16<<10)
	require.NoError(t, err)
	require.NoError(t, s.Append(entry.Owner{}, "t", entry.Timestamp{}, []byte("x")))

	stats := r.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "a", stats[0].Name)
	assert.Equal(t, uint64(1), stats[1].Appended)
}
