package snapshot

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalStampsCaptureTimestamp(t *testing.T) {
	capturedAt := time.Unix(1700000000, 0)
	res := &Response{
		StatusCode: 200,
		Body:       []byte("hello"),
		CapturedAt: capturedAt,
	}
	bytes, err := res.Marshal()
	require.NoError(t, err)

	parsed, err := Unmarshal(bytes)
	require.NoError(t, err)
	assert.Equal(t, 200, parsed.StatusCode)
	assert.Equal(t, []byte("hello"), parsed.Body)
	assert.True(t, parsed.CapturedAt.Equal(capturedAt))
	assert.NotEmpty(t, parsed.Header.Get(CapturedAtHeader))
}

func TestMarshalDefaultsCaptureTimestampToNow(t *testing.T) {
	res := &Response{StatusCode: 200, Body: []byte("x")}
	bytes, err := res.Marshal()
	require.NoError(t, err)

	parsed, err := Unmarshal(bytes)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), parsed.CapturedAt, time.Minute)
}

func TestWriteToOmitsCaptureTimestamp(t *testing.T) {
	res := &Response{
		StatusCode: 404,
		Header: map[string][]string{
			"Content-Type":   {"text/plain"},
			CapturedAtHeader: {"1700000000"},
		},
		Body: []byte("not found"),
	}
	rr := httptest.NewRecorder()
	require.NoError(t, res.WriteTo(rr))

	assert.Equal(t, 404, rr.Code)
	assert.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
	assert.Empty(t, rr.Header().Get(CapturedAtHeader))
	assert.Equal(t, "not found", rr.Body.String())
}
