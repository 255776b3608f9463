package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Geun-Oh/lxring/internal/buffer"
	"github.com/Geun-Oh/lxring/internal/entry"
	"github.com/Geun-Oh/lxring/internal/registry"
	"github.com/Geun-Oh/lxring/internal/sink"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestServer(t *testing.T) (*httptest.Server, *registry.Registry) {
	t.Helper()
	reg := registry.New(registry.Limits{MaxStores: 3})
	_, err := reg.Create("main", 16<<10)
	require.NoError(t, err)
	srv := httptest.NewServer(New(reg, Options{}).Handler())
	t.Cleanup(srv.Close)
	return srv, reg
}

func do(t *testing.T, method, url, contentType, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestStoreRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/stores", "application/json", `{"name":"events","capacity":32768}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var snap buffer.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Equal(t, "events", snap.Name)
	assert.Equal(t, 32768, snap.Capacity)

	resp, body = do(t, http.MethodPost, srv.URL+"/stores", "application/json", `{"name":"radio"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Equal(t, 16<<10, snap.Capacity, "default capacity")

	resp, _ = do(t, http.MethodGet, srv.URL+"/stores", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = do(t, http.MethodGet, srv.URL+"/stores/events", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"name":"events"`)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"missing store", http.MethodGet, "/stores/nope", "", http.StatusNotFound},
		{"duplicate", http.MethodPost, "/stores", `{"name":"main"}`, http.StatusConflict},
		{"full", http.MethodPost, "/stores", `{"name":"crash"}`, http.StatusInsufficientStorage},
		{"bad json", http.MethodPost, "/stores", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, tt.method, srv.URL+tt.path, "application/json", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
			var e errorResponse
			require.NoError(t, json.Unmarshal(body, &e))
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestCreateValidation(t *testing.T) {
	reg := registry.New(registry.Limits{})
	srv := httptest.NewServer(New(reg, Options{}).Handler())
	defer srv.Close()

	resp, _ := do(t, http.MethodPost, srv.URL+"/stores", "application/json", `{"name":"x","capacity":1000}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, srv.URL+"/stores", "application/json", `{"name":"a b"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAppendAndList(t *testing.T) {
	srv, reg := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/stores/main/entries", "application/json",
		`[{"tag":"api","pid":7,"uid":1000,"message":"[ERROR] boom"},{"tag":"api","message":"ok"}]`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"appended":2}`, string(body))

	resp, body = do(t, http.MethodPost, srv.URL+"/stores/main/entries?tag=plain", "text/plain", "one\ntwo\n")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"appended":2}`, string(body))

	resp, body = do(t, http.MethodGet, srv.URL+"/stores/main/entries", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var lines []sink.Line
	require.NoError(t, json.Unmarshal(body, &lines))
	require.Len(t, lines, 4)
	assert.Equal(t, "ERROR", lines[0].Level)
	assert.Equal(t, int32(7), lines[0].PID)
	assert.Equal(t, "plain", lines[3].Tag)
	assert.Equal(t, "two", lines[3].Message)

	st, err := reg.Lookup("main")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), st.Stats().Appended)
}

func TestAppendErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	big := strings.Repeat("x", 20000)
	resp, _ := do(t, http.MethodPost, srv.URL+"/stores/main/entries", "application/json", `[{"message":"`+big+`"}]`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/stores/main/entries", "application/json", `[{"tag":"a\u0000b"}]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/stores/main/entries", "application/json", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/stores/main/entries?version=v7", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBodyLimits(t *testing.T) {
	srv, reg := newTestServer(t)
	st, err := reg.Lookup("main")
	require.NoError(t, err)

	lines := strings.Repeat(strings.Repeat("y", 99)+"\n", 400)
	resp, body := do(t, http.MethodPost, srv.URL+"/stores/main/entries?tag=bulk", "text/plain", lines)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode, string(body))
	assert.Contains(t, string(body), "request body too large")
	assert.Zero(t, st.Stats().Appended)

	batch := `[` + strings.Repeat(`{"message":"`+strings.Repeat("z", 200)+`"},`, 200) + `{"message":"last"}]`
	resp, _ = do(t, http.MethodPost, srv.URL+"/stores/main/entries", "application/json", batch)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	name := strings.Repeat("n", 8<<10)
	resp, _ = do(t, http.MethodPost, srv.URL+"/stores", "application/json", `{"name":"`+name+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	resp, body = do(t, http.MethodPost, srv.URL+"/stores/main/entries?tag=bulk", "text/plain", "under\nthe limit\n")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"appended":2}`, string(body))
}

func dialTail(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stores/main/tail" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	return conn
}

func waitReaders(t *testing.T, st *buffer.Store, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return st.Stats().Readers == n }, 5*time.Second, 10*time.Millisecond)
}

func TestTailJSON(t *testing.T) {
	srv, reg := newTestServer(t)
	st, err := reg.Lookup("main")
	require.NoError(t, err)

	conn := dialTail(t, srv, "?uid=1000")
	waitReaders(t, st, 1)

	require.NoError(t, st.Append(entry.Owner{UID: 2}, "t", entry.Timestamp{Sec: 1}, []byte("not yours")))
	require.NoError(t, st.Append(entry.Owner{UID: 1000}, "t", entry.Timestamp{Sec: 2}, []byte("yours")))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var l sink.Line
	require.NoError(t, conn.ReadJSON(&l))
	assert.Equal(t, "yours", l.Message)
	assert.Equal(t, uint32(1000), l.UID)

	require.NoError(t, conn.Close())
	waitReaders(t, st, 0)
}

func TestTailBinaryLegacy(t *testing.T) {
	srv, reg := newTestServer(t)
	st, err := reg.Lookup("main")
	require.NoError(t, err)
	require.NoError(t, st.Append(entry.Owner{PID: 9, UID: 5}, "bin", entry.Timestamp{Sec: 3}, []byte("frame")))

	conn := dialTail(t, srv, "?privileged=true&version=v1&format=binary")
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	e, n, err := entry.DecodeWire(data, entry.V1)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, "frame", string(e.Payload))
	assert.Equal(t, int32(9), e.Owner.PID)
	assert.True(t, bytes.HasPrefix(data[4:8], []byte{9, 0, 0, 0}))
}

func TestTailRejectsBadQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, q := range []string{"?uid=-1", "?privileged=maybe", "?version=9", "?format=xml"} {
		resp, _ := do(t, http.MethodGet, srv.URL+"/stores/main/tail"+q, "", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
	resp, _ := do(t, http.MethodGet, srv.URL+"/stores/nope/tail", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
