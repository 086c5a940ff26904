// Package ingest tracks active transport connections, coupling the bytes a
// network receiver reads with the parser that consumes them.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ErrDuplicate is returned by Register when the key is already in use.
var ErrDuplicate = errors.New("ingest: stream key already registered")

// Stats captures connection-level counters for an ingest stream.
type Stats struct {
	BytesReceived int64
	ReadCount     int64
	ConnectedAt   time.Time
	Uptime        time.Duration
	RemoteAddr    string
}

// Stream is one active connection. Bytes written by the receiver through
// the writer returned from Register come out of Reader.
type Stream struct {
	Key       string
	StartedAt time.Time

	pr   *io.PipeReader
	pw   *io.PipeWriter
	done chan struct{}

	bytesReceived atomic.Int64
	readCount     atomic.Int64
	remoteAddr    atomic.Value
}

// Reader returns the consuming end of the stream. It reports io.EOF once
// the stream is unregistered.
func (s *Stream) Reader() io.Reader { return s.pr }

// Done is closed when the stream is unregistered.
func (s *Stream) Done() <-chan struct{} { return s.done }

// RecordRead adds one socket read of n bytes to the counters.
func (s *Stream) RecordRead(n int) {
	s.bytesReceived.Add(int64(n))
	s.readCount.Add(1)
}

// SetRemoteAddr stores the peer address for diagnostics.
func (s *Stream) SetRemoteAddr(addr string) {
	s.remoteAddr.Store(addr)
}

// Stats returns a snapshot of the connection counters.
func (s *Stream) Stats() Stats {
	addr, _ := s.remoteAddr.Load().(string)
	return Stats{
		BytesReceived: s.bytesReceived.Load(),
		ReadCount:     s.readCount.Load(),
		ConnectedAt:   s.StartedAt,
		Uptime:        time.Since(s.StartedAt),
		RemoteAddr:    addr,
	}
}

// Registry tracks active streams by key.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*Stream
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{streams: make(map[string]*Stream)}
}

// Register creates a stream under key and returns it along with the writer
// the receiver should copy socket data into. Writes block until the
// stream's Reader consumes them.
func (r *Registry) Register(key string) (*Stream, io.Writer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.streams[key]; ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrDuplicate, key)
	}

	pr, pw := io.Pipe()
	stream := &Stream{
		Key:       key,
		StartedAt: time.Now(),
		pr:        pr,
		pw:        pw,
		done:      make(chan struct{}),
	}
	r.streams[key] = stream
	return stream, pw, nil
}

// Unregister removes a stream by key, closing its pipe and signaling Done.
// Pending and future writes fail with io.ErrClosedPipe.
func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	stream, ok := r.streams[key]
	if ok {
		delete(r.streams, key)
	}
	r.mu.Unlock()

	if ok {
		stream.pw.Close()
		close(stream.done)
	}
}

// Get returns the Stream for the given key, or false if not found.
func (r *Registry) Get(key string) (*Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[key]
	return s, ok
}

// Len returns the number of active streams.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}
