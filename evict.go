package offlineagent

import (
	"time"

	snapshot "github.com/offline-agent/offline-agent/pkg/response-snapshot"
	"github.com/offline-agent/offline-agent/store"

	"github.com/rs/zerolog"
)

// Evictor bounds a cache namespace by entry count and entry age.
// It runs once per activation cutover.
type Evictor struct {
	// MaxEntries is the entry count bound. Zero disables it.
	MaxEntries int
	// MaxAge is the entry age bound. Zero disables it.
	MaxAge time.Duration
	// Now is the clock used for age computation. time.Now if nil.
	Now func() time.Time
}

// Sweep removes entries beyond the count bound (oldest first by insertion
// order) and entries older than the age bound. A failure on one entry never
// halts the sweep.
func (e Evictor) Sweep(st store.Store, log zerolog.Logger) {
	keys, err := st.Keys()
	if err != nil {
		log.Error().Err(err).Msg("Could not list cache keys for eviction")
		return
	}

	// step 1: count bound, FIFO
	if e.MaxEntries > 0 && len(keys) > e.MaxEntries {
		excess := len(keys) - e.MaxEntries
		log.Debug().Int("count", len(keys)).Int("excess", excess).Msg("Evicting oldest entries")
		for _, key := range keys[:excess] {
			if err := st.Delete(key); err != nil {
				log.Error().Err(err).Str("key", key).Msg("Could not evict entry")
			}
		}
		keys = keys[excess:]
	}

	// step 2: age bound, on whatever remains
	if e.MaxAge <= 0 {
		return
	}
	now := time.Now()
	if e.Now != nil {
		now = e.Now()
	}
	for _, key := range keys {
		bytes, ok, err := st.Get(key)
		if err != nil {
			log.Error().Err(err).Str("key", key).Msg("Could not read entry during sweep")
			continue
		}
		if !ok {
			continue
		}
		res, err := snapshot.Unmarshal(bytes)
		if err != nil {
			// an entry that cannot be parsed cannot be served either
			log.Error().Err(err).Str("key", key).Msg("Purging unparsable entry")
			if err := st.Delete(key); err != nil {
				log.Error().Err(err).Str("key", key).Msg("Could not purge entry")
			}
			continue
		}
		if res.CapturedAt.IsZero() {
			continue
		}
		if now.Sub(res.CapturedAt) > e.MaxAge {
			log.Trace().Str("key", key).Time("capturedAt", res.CapturedAt).Msg("Evicting expired entry")
			if err := st.Delete(key); err != nil {
				log.Error().Err(err).Str("key", key).Msg("Could not evict entry")
			}
		}
	}
}
