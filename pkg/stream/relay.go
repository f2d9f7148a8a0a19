// Package stream relays incrementally generated text to an HTTP
// response as it is produced.
package stream

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Relay forwards text chunks to an HTTP response body in arrival order,
// flushing after every chunk.
//
// When the client disconnects the relay flips a closed flag and
// swallows further writes instead of failing: the producer keeps
// generating and persisting its result even when nobody is listening.
type Relay struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  atomic.Bool
	wrote   atomic.Bool
	logger  *zap.Logger
}

// NewRelay prepares the response for incremental text delivery and
// starts watching the request context for client disconnect. Returns an
// error if the ResponseWriter cannot flush.
func NewRelay(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (*Relay, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	relay := &Relay{
		w:       w,
		flusher: flusher,
		logger:  logger.Named("stream"),
	}
	go relay.watch(r.Context())

	return relay, nil
}

func (r *Relay) watch(ctx context.Context) {
	<-ctx.Done()
	if r.closed.CompareAndSwap(false, true) {
		r.logger.Debug("client disconnected, suppressing further writes")
	}
}

// Closed reports whether the client has gone away. Producers check this
// before enqueueing a chunk; generation itself is never aborted by it.
func (r *Relay) Closed() bool {
	return r.closed.Load()
}

// Wrote reports whether any chunk has reached the response body. Once
// true, the handler can no longer switch to a JSON error response.
func (r *Relay) Wrote() bool {
	return r.wrote.Load()
}

// Write sends one chunk to the client. Chunks are delivered in call
// order. Writes after close are silently dropped.
func (r *Relay) Write(chunk string) {
	if chunk == "" || r.closed.Load() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return
	}

	r.wrote.Store(true)
	if _, err := fmt.Fprint(r.w, chunk); err != nil {
		r.closed.Store(true)
		r.logger.Debug("write failed, closing relay", zap.Error(err))
		return
	}
	r.flusher.Flush()
}

// WriteMarker sends a structural marker on its own line so a consumer
// can split one continuous stream into per-file segments.
func (r *Relay) WriteMarker(m Marker) {
	encoded, err := m.Encode()
	if err != nil {
		r.logger.Error("failed to encode stream marker", zap.Error(err))
		return
	}
	r.Write(encoded)
}
