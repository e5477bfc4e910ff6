package coalescer

import (
	"context"

	snapshot "github.com/offline-agent/offline-agent/pkg/response-snapshot"

	"golang.org/x/sync/singleflight"
)

// Coalescer deduplicates concurrent fetches sharing the same request key.
// While a fetch for a key is in flight, further calls for that key attach to
// it and observe the same outcome instead of issuing their own fetch. The
// pending table is process-scoped: entries are registered when a fetch starts
// and removed unconditionally once it settles.
//
// The zero value is ready to use.
type Coalescer struct {
	group singleflight.Group
}

// Fetch returns the result of performFetch for the given key, issuing at most
// one underlying call per key at any time. Calls with different keys never
// block each other.
//
// The context bounds only this caller's wait: if it is canceled the caller
// gets the context error, but an in-flight fetch keeps running for the
// callers still attached to it.
func (c *Coalescer) Fetch(ctx context.Context, key string, performFetch func() (*snapshot.Response, error)) (*snapshot.Response, error) {
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return performFetch()
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-ch:
		if result.Val == nil {
			return nil, result.Err
		}
		return result.Val.(*snapshot.Response), result.Err
	}
}
