package hub

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
)

type fakeConnection struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	sendErr error

	mu       sync.Mutex
	closed   bool
	received [][]byte
}

func newFakeConnection(id string) *fakeConnection {
	ctx, cancel := context.WithCancel(context.Background())
	return &fakeConnection{id: id, ctx: ctx, cancel: cancel}
}

func (f *fakeConnection) ID() string         { return f.id }
func (f *fakeConnection) Type() string       { return "fake" }
func (f *fakeConnection) RemoteAddr() string { return "127.0.0.1:1" }

func (f *fakeConnection) Send(ctx context.Context, data []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrConnectionClosed
	}
	f.received = append(f.received, data)
	return nil
}

func (f *fakeConnection) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.cancel()
	return nil
}

func (f *fakeConnection) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConnection) Context() context.Context { return f.ctx }

func (f *fakeConnection) messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.received...)
}

// blockingConnection never accepts a frame until its context ends.
type blockingConnection struct {
	*fakeConnection
}

func (b *blockingConnection) Send(ctx context.Context, data []byte) error {
	<-ctx.Done()
	return errors.Join(ErrSendTimeout, ctx.Err())
}

// streamRecorder is a ResponseWriter that can be read while a writer
// goroutine is still using it.
type streamRecorder struct {
	header http.Header

	mu      sync.Mutex
	body    bytes.Buffer
	flushes int
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{header: make(http.Header)}
}

func (r *streamRecorder) Header() http.Header { return r.header }

func (r *streamRecorder) WriteHeader(int) {}

func (r *streamRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.Write(p)
}

func (r *streamRecorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
}

func (r *streamRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.String()
}

func (r *streamRecorder) flushed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes
}

// stalledWriter is a client that stopped reading: every Write blocks
// until release is closed.
type stalledWriter struct {
	header  http.Header
	release chan struct{}
}

func newStalledWriter() *stalledWriter {
	return &stalledWriter{header: make(http.Header), release: make(chan struct{})}
}

func (w *stalledWriter) Header() http.Header { return w.header }

func (w *stalledWriter) WriteHeader(int) {}

func (w *stalledWriter) Write(p []byte) (int, error) {
	<-w.release
	return 0, errors.New("client gone")
}
