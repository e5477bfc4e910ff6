package offlineagent

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	snapshot "github.com/offline-agent/offline-agent/pkg/response-snapshot"
	"github.com/offline-agent/offline-agent/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putEntry(t *testing.T, st store.Store, key string, capturedAt time.Time) {
	t.Helper()
	res := &snapshot.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body of " + key),
		CapturedAt: capturedAt,
	}
	bytes, err := res.Marshal()
	require.NoError(t, err)
	require.NoError(t, st.Put(key, bytes))
}

func TestSweepCountBound(t *testing.T) {
	st, err := store.NewMemProvider().Open("ns")
	require.NoError(t, err)
	now := time.Now()
	max := 10
	for i := 0; i < max+5; i++ {
		putEntry(t, st, fmt.Sprintf("key-%02d", i), now)
	}

	Evictor{MaxEntries: max}.Sweep(st, zerolog.Nop())

	keys, err := st.Keys()
	require.NoError(t, err)
	require.Len(t, keys, max)
	// the 5 oldest by insertion order are gone
	assert.Equal(t, "key-05", keys[0])
	for _, key := range []string{"key-00", "key-01", "key-02", "key-03", "key-04"} {
		_, ok, err := st.Get(key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
}

func TestSweepAgeBound(t *testing.T) {
	st, err := store.NewMemProvider().Open("ns")
	require.NoError(t, err)
	now := time.Now()
	putEntry(t, st, "fresh", now.Add(-time.Hour))
	putEntry(t, st, "stale", now.Add(-48*time.Hour))
	putEntry(t, st, "ancient", now.Add(-300*time.Hour))

	Evictor{MaxAge: 24 * time.Hour, Now: func() time.Time { return now }}.Sweep(st, zerolog.Nop())

	keys, err := st.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, keys)
}

func TestSweepCountThenAge(t *testing.T) {
	st, err := store.NewMemProvider().Open("ns")
	require.NoError(t, err)
	now := time.Now()
	// oldest-inserted entries are fresh, newest-inserted are expired
	putEntry(t, st, "a", now)
	putEntry(t, st, "b", now)
	putEntry(t, st, "c", now.Add(-48*time.Hour))
	putEntry(t, st, "d", now.Add(-48*time.Hour))

	Evictor{
		MaxEntries: 3,
		MaxAge:     24 * time.Hour,
		Now:        func() time.Time { return now },
	}.Sweep(st, zerolog.Nop())

	// count bound drops "a" (FIFO), age bound drops "c" and "d"
	keys, err := st.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)
}

func TestSweepPurgesUnparsableEntries(t *testing.T) {
	st, err := store.NewMemProvider().Open("ns")
	require.NoError(t, err)
	putEntry(t, st, "good", time.Now())
	require.NoError(t, st.Put("bad", []byte("not a response")))

	Evictor{MaxAge: 24 * time.Hour}.Sweep(st, zerolog.Nop())

	keys, err := st.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, keys)
}

func TestSweepDisabledBounds(t *testing.T) {
	st, err := store.NewMemProvider().Open("ns")
	require.NoError(t, err)
	putEntry(t, st, "a", time.Now().Add(-1000*time.Hour))
	putEntry(t, st, "b", time.Now())

	Evictor{}.Sweep(st, zerolog.Nop())

	count, err := st.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
