package coalescer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	snapshot "github.com/offline-agent/offline-agent/pkg/response-snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentCallsShareOneFetch(t *testing.T) {
	var c Coalescer
	var fetches atomic.Int32
	release := make(chan struct{})

	performFetch := func() (*snapshot.Response, error) {
		fetches.Add(1)
		<-release
		return &snapshot.Response{StatusCode: 200, Body: []byte("shared")}, nil
	}

	const callers = 10
	results := make([]*snapshot.Response, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := c.Fetch(context.Background(), "key", performFetch)
			require.NoError(t, err)
			results[i] = res
		}(i)
	}
	// let all callers attach before the fetch settles
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), fetches.Load())
	for i := 1; i < callers; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestErrorSharedByAllCallers(t *testing.T) {
	var c Coalescer
	fetchErr := errors.New("network down")
	release := make(chan struct{})

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Fetch(context.Background(), "key", func() (*snapshot.Response, error) {
				<-release
				return nil, fetchErr
			})
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, fetchErr)
	}
}

func TestDistinctKeysDoNotBlockEachOther(t *testing.T) {
	var c Coalescer
	block := make(chan struct{})
	defer close(block)

	go c.Fetch(context.Background(), "slow", func() (*snapshot.Response, error) {
		<-block
		return nil, nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		res, err := c.Fetch(context.Background(), "fast", func() (*snapshot.Response, error) {
			return &snapshot.Response{StatusCode: 200}, nil
		})
		require.NoError(t, err)
		require.NotNil(t, res)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fetch for a distinct key blocked behind an in-flight fetch")
	}
}

func TestKeyReusableAfterSettlement(t *testing.T) {
	var c Coalescer
	var fetches atomic.Int32
	performFetch := func() (*snapshot.Response, error) {
		fetches.Add(1)
		return &snapshot.Response{StatusCode: 200}, nil
	}

	_, err := c.Fetch(context.Background(), "key", performFetch)
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), "key", performFetch)
	require.NoError(t, err)

	assert.Equal(t, int32(2), fetches.Load())
}

func TestCanceledCallerDetachesWithoutKillingFetch(t *testing.T) {
	var c Coalescer
	release := make(chan struct{})
	fetched := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Fetch(ctx, "key", func() (*snapshot.Response, error) {
			<-release
			close(fetched)
			return &snapshot.Response{StatusCode: 200}, nil
		})
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	// the underlying fetch keeps running to completion
	close(release)
	select {
	case <-fetched:
	case <-time.After(time.Second):
		t.Fatal("underlying fetch did not complete")
	}
}
