package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Geun-Oh/lxring/internal/entry"
)

func TestGrokFields(t *testing.T) {
	g, err := NewGrokParser(`%{IP:client} %{HTTPMETHOD:method} %{PATH:path} %{STATUSCODE:status}`)
	require.NoError(t, err)

	e := &entry.Entry{Payload: []byte("10.0.0.1 GET /api/orders 503")}
	assert.Equal(t, map[string]string{
		"client": "10.0.0.1",
		"method": "GET",
		"path":   "/api/orders",
		"status": "503",
	}, g.Fields(e))
	assert.True(t, g.Match(e))
	assert.True(t, g.Captures("status"))
	assert.False(t, g.Captures("latency"))

	assert.Nil(t, g.Fields(&entry.Entry{Payload: []byte("no match here")}))
	assert.False(t, g.Match(entry.NewDropSummary(3, entry.Timestamp{}, entry.V2)))
}

func TestGrokUnnamedAndUnknown(t *testing.T) {
	g, err := NewGrokParser(`%{LOGLEVEL} %{GREEDYDATA:msg}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"msg": "disk full"}, g.Fields(&entry.Entry{Payload: []byte("ERROR disk full")}))
	assert.Equal(t, `%{LOGLEVEL} %{GREEDYDATA:msg}`, g.Pattern())

	_, err = NewGrokParser(`%{NOPE:x}`)
	assert.ErrorContains(t, err, "unknown grok pattern")
}
