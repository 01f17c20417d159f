package core

import "golang.org/x/sync/errgroup"

// Flusher persists pending in-memory changes to durable storage when called.
type Flusher func() error

// NoopFlusher is returned by structures without pending state.
func NoopFlusher() error { return nil }

// JoinFlushers returns a flusher that runs all given flushers concurrently
// and returns the first error. Nil flushers are skipped.
func JoinFlushers(flushers ...Flusher) Flusher {
	return func() error {
		var g errgroup.Group
		for _, f := range flushers {
			if f == nil {
				continue
			}
			g.Go(f)
		}
		return g.Wait()
	}
}
